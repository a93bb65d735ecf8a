package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/metrics"
	"github.com/leadwire/callcoach/internal/session"
	"github.com/leadwire/callcoach/internal/types"
)

// TranscriptionFeed subscribes to the live transcript channel of the active
// call and appends incoming segments to the session store. It is an
// independent failure domain: a broken feed degrades the UI but never the
// call itself.
type TranscriptionFeed struct {
	store  *session.Store
	source Source
	logger zerolog.Logger
	notify func(types.TranscriptPush)

	mu     sync.Mutex
	callID string
	sub    *Subscription
	cancel context.CancelFunc
}

// NewTranscriptionFeed creates a feed bound to a store and a push source.
// notify is invoked for every accepted segment and may be nil.
func NewTranscriptionFeed(store *session.Store, source Source, logger zerolog.Logger, notify func(types.TranscriptPush)) *TranscriptionFeed {
	return &TranscriptionFeed{
		store:  store,
		source: source,
		logger: logger.With().Str("component", "transcription_feed").Logger(),
		notify: notify,
	}
}

// SetCall re-targets the feed at a new call. An empty id unsubscribes
// without starting a new subscription. Retargeting is idempotent for the
// same id.
func (f *TranscriptionFeed) SetCall(callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if callID == f.callID {
		return nil
	}
	f.stopLocked()
	f.callID = callID
	if callID == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := f.source.Subscribe(ctx, TranscriptChannel(callID))
	if err != nil {
		cancel()
		f.callID = ""
		metrics.Get().RecordFeedError()
		f.logger.Error().Err(err).Str("call_id", callID).Msg("transcript subscription failed")
		return err
	}
	f.sub = sub
	f.cancel = cancel

	go f.run(callID, sub)
	f.logger.Info().Str("call_id", callID).Msg("transcript feed attached")
	return nil
}

// Close detaches the feed from its current call
func (f *TranscriptionFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.callID = ""
}

func (f *TranscriptionFeed) stopLocked() {
	if f.sub != nil {
		f.sub.Unsubscribe()
		f.sub = nil
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// run drains one subscription. seen is scoped to the subscription so a
// re-attached call starts with a clean dedup window.
func (f *TranscriptionFeed) run(callID string, sub *Subscription) {
	seen := make(map[string]struct{})

	for payload := range sub.C {
		var seg types.TranscriptSegment
		if err := json.Unmarshal(payload, &seg); err != nil {
			metrics.Get().RecordFeedError()
			f.logger.Warn().Err(err).Msg("malformed transcript row dropped")
			continue
		}
		if seg.CallID != "" && seg.CallID != callID {
			metrics.Get().RecordFeedDropped()
			continue
		}
		if _, dup := seen[seg.SegmentID]; dup {
			metrics.Get().RecordFeedDropped()
			continue
		}
		seen[seg.SegmentID] = struct{}{}

		if seg.Timestamp == 0 {
			seg.Timestamp = time.Now().UnixMilli()
		}

		f.store.AddTranscriptSegment(seg)
		metrics.Get().RecordTranscriptSegment()

		if f.notify != nil {
			f.notify(types.TranscriptPush{
				Type:    types.PushTypeTranscript,
				Segment: seg,
			})
		}
	}
}
