package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/feed"
	"github.com/leadwire/callcoach/internal/metrics"
	"github.com/leadwire/callcoach/internal/types"
)

// IngestHandler receives transcript segments and coaching suggestions from
// the server-side speech and AI pipelines and publishes them onto the push
// channels the feeds subscribe to.
type IngestHandler struct {
	source       feed.Source
	logger       zerolog.Logger
	rowsReceived int64
	lastReceived time.Time
	mu           sync.RWMutex
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(source feed.Source, logger zerolog.Logger) *IngestHandler {
	return &IngestHandler{
		source: source,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// HandleTranscript receives one transcript segment
// POST /internal/transcript
func (h *IngestHandler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	m := metrics.Get()

	var seg types.TranscriptSegment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		h.logger.Error().Err(err).Msg("failed to decode transcript segment")
		m.RecordIngestError()
		http.Error(w, "invalid segment", http.StatusBadRequest)
		return
	}

	if seg.CallID == "" || seg.SegmentID == "" {
		m.RecordIngestError()
		http.Error(w, "callId and segmentId are required", http.StatusBadRequest)
		return
	}
	if seg.Speaker != types.SpeakerUser && seg.Speaker != types.SpeakerContact {
		m.RecordIngestError()
		http.Error(w, "speaker must be user or contact", http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(seg)
	if err != nil {
		m.RecordIngestError()
		http.Error(w, "failed to encode segment", http.StatusInternalServerError)
		return
	}

	if err := h.source.Publish(r.Context(), feed.TranscriptChannel(seg.CallID), payload); err != nil {
		h.logger.Error().Err(err).Str("call_id", seg.CallID).Msg("failed to publish transcript segment")
		m.RecordIngestError()
		http.Error(w, "failed to publish segment", http.StatusInternalServerError)
		return
	}

	m.RecordIngestReceived()
	h.recordReceived()

	w.WriteHeader(http.StatusOK)
}

// HandleSuggestion receives one coaching suggestion
// POST /internal/suggestion
func (h *IngestHandler) HandleSuggestion(w http.ResponseWriter, r *http.Request) {
	m := metrics.Get()

	var sg types.AISuggestion
	if err := json.NewDecoder(r.Body).Decode(&sg); err != nil {
		h.logger.Error().Err(err).Msg("failed to decode suggestion")
		m.RecordIngestError()
		http.Error(w, "invalid suggestion", http.StatusBadRequest)
		return
	}

	if sg.CallID == "" || sg.SuggestionID == "" {
		m.RecordIngestError()
		http.Error(w, "callId and suggestionId are required", http.StatusBadRequest)
		return
	}
	if !sg.Type.Valid() {
		m.RecordIngestError()
		http.Error(w, "unknown suggestion type", http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(sg)
	if err != nil {
		m.RecordIngestError()
		http.Error(w, "failed to encode suggestion", http.StatusInternalServerError)
		return
	}

	if err := h.source.Publish(r.Context(), feed.SuggestionChannel(sg.CallID), payload); err != nil {
		h.logger.Error().Err(err).Str("call_id", sg.CallID).Msg("failed to publish suggestion")
		m.RecordIngestError()
		http.Error(w, "failed to publish suggestion", http.StatusInternalServerError)
		return
	}

	m.RecordIngestReceived()
	h.recordReceived()

	w.WriteHeader(http.StatusOK)
}

// GetStats returns ingest statistics
// GET /internal/ingest/stats
func (h *IngestHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	lastReceived := h.lastReceived
	h.mu.RUnlock()

	stats := map[string]interface{}{
		"rows_received": atomic.LoadInt64(&h.rowsReceived),
		"last_received": lastReceived,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *IngestHandler) recordReceived() {
	count := atomic.AddInt64(&h.rowsReceived, 1)
	h.mu.Lock()
	h.lastReceived = time.Now()
	h.mu.Unlock()

	// Log periodically
	if count%1000 == 0 {
		h.logger.Info().Int64("total_received", count).Msg("ingest rows received")
	}
}
