package feed

import (
	"context"
	"sync"
)

// TranscriptChannel names the push channel carrying transcript rows for a call
func TranscriptChannel(callID string) string {
	return "call:" + callID + ":transcript"
}

// SuggestionChannel names the push channel carrying coaching rows for a call
func SuggestionChannel(callID string) string {
	return "call:" + callID + ":suggestions"
}

// Source is a push channel keyed by name. Delivery is at-least-once; the
// feeds deduplicate by row id before touching the session store.
type Source interface {
	// Subscribe opens a subscription. The returned subscription's channel
	// is closed when the subscription ends.
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
	// Publish delivers a payload to all current subscribers of a channel.
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscription is the single-owner handle for one channel subscription.
// Unsubscribe is idempotent.
type Subscription struct {
	C      <-chan []byte
	once   sync.Once
	cancel func()
}

// Unsubscribe tears the subscription down. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// MemorySource is an in-process Source used in simulation mode and tests
type MemorySource struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

// NewMemorySource creates an empty in-process source
func NewMemorySource() *MemorySource {
	return &MemorySource{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe opens an in-process subscription
func (m *MemorySource) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ch := make(chan []byte, 64)

	m.mu.Lock()
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[chan []byte]struct{})
	}
	m.subs[channel][ch] = struct{}{}
	m.mu.Unlock()

	remove := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if set, ok := m.subs[channel]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
		}
	}

	// Honor context cancellation like a network-backed source would
	go func() {
		<-ctx.Done()
		remove()
	}()

	return &Subscription{C: ch, cancel: remove}, nil
}

// Publish delivers the payload to all subscribers of the channel. Slow
// subscribers with a full buffer are skipped rather than blocked on.
func (m *MemorySource) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}
