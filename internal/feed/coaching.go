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

// CoachingFeed subscribes to the AI suggestion channel of the active call.
// It shares nothing with the transcription feed beyond the source: either
// can fail while the other keeps delivering.
type CoachingFeed struct {
	store  *session.Store
	source Source
	logger zerolog.Logger
	notify func(types.SuggestionPush)

	mu     sync.Mutex
	callID string
	sub    *Subscription
	cancel context.CancelFunc
}

// NewCoachingFeed creates a feed bound to a store and a push source.
// notify is invoked for every accepted suggestion and may be nil.
func NewCoachingFeed(store *session.Store, source Source, logger zerolog.Logger, notify func(types.SuggestionPush)) *CoachingFeed {
	return &CoachingFeed{
		store:  store,
		source: source,
		logger: logger.With().Str("component", "coaching_feed").Logger(),
		notify: notify,
	}
}

// SetCall re-targets the feed at a new call. An empty id unsubscribes
// without starting a new subscription.
func (f *CoachingFeed) SetCall(callID string) error {
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
	sub, err := f.source.Subscribe(ctx, SuggestionChannel(callID))
	if err != nil {
		cancel()
		f.callID = ""
		metrics.Get().RecordFeedError()
		f.logger.Error().Err(err).Str("call_id", callID).Msg("suggestion subscription failed")
		return err
	}
	f.sub = sub
	f.cancel = cancel

	go f.run(callID, sub)
	f.logger.Info().Str("call_id", callID).Msg("coaching feed attached")
	return nil
}

// Close detaches the feed from its current call
func (f *CoachingFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	f.callID = ""
}

func (f *CoachingFeed) stopLocked() {
	if f.sub != nil {
		f.sub.Unsubscribe()
		f.sub = nil
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *CoachingFeed) run(callID string, sub *Subscription) {
	seen := make(map[string]struct{})

	for payload := range sub.C {
		var sg types.AISuggestion
		if err := json.Unmarshal(payload, &sg); err != nil {
			metrics.Get().RecordFeedError()
			f.logger.Warn().Err(err).Msg("malformed suggestion row dropped")
			continue
		}
		if sg.CallID != "" && sg.CallID != callID {
			metrics.Get().RecordFeedDropped()
			continue
		}
		if !sg.Type.Valid() {
			metrics.Get().RecordFeedError()
			f.logger.Warn().Str("type", string(sg.Type)).Msg("unknown suggestion type dropped")
			continue
		}
		if _, dup := seen[sg.SuggestionID]; dup {
			metrics.Get().RecordFeedDropped()
			continue
		}
		seen[sg.SuggestionID] = struct{}{}

		if sg.Timestamp == 0 {
			sg.Timestamp = time.Now().UnixMilli()
		}

		f.store.AddSuggestion(sg)
		metrics.Get().RecordSuggestion()

		if f.notify != nil {
			f.notify(types.SuggestionPush{
				Type:       types.PushTypeSuggestion,
				Suggestion: sg,
			})
		}
	}
}
