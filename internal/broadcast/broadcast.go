package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/metrics"
	"github.com/leadwire/callcoach/internal/session"
	"github.com/leadwire/callcoach/internal/websocket"
)

// Broadcaster periodically pushes the session snapshot to all UI clients.
// Together with the orchestrator's duration ticker this is what makes the
// in-call timer advance on screen once per second.
type Broadcaster struct {
	store    *session.Store
	hub      *websocket.Hub
	interval time.Duration
	logger   zerolog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(store *session.Store, hub *websocket.Hub, interval time.Duration, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		store:    store,
		hub:      hub,
		interval: interval,
		logger:   logger,
	}
}

// Start begins broadcasting session snapshots
func (b *Broadcaster) Start(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info().Dur("interval", b.interval).Msg("session broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("session broadcaster stopped")
			return

		case <-ticker.C:
			if b.hub.ClientCount() == 0 {
				continue
			}

			data, err := b.Snapshot()
			if err != nil {
				b.logger.Error().Err(err).Msg("failed to marshal session snapshot")
				continue
			}

			b.hub.Broadcast(data)
			metrics.Get().RecordBroadcastCycle()
			b.logger.Debug().
				Int("clients", b.hub.ClientCount()).
				Msg("broadcasted session snapshot")
		}
	}
}

// Snapshot marshals the current session state. Also used to seed freshly
// connected WebSocket clients.
func (b *Broadcaster) Snapshot() ([]byte, error) {
	return json.Marshal(b.store.Snapshot())
}
