package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/feed"
	"github.com/leadwire/callcoach/internal/orchestrator"
	"github.com/leadwire/callcoach/internal/session"
	"github.com/leadwire/callcoach/internal/telephony"
)

// CallsHandler provides REST endpoints for the call lifecycle
type CallsHandler struct {
	orch          *orchestrator.Orchestrator
	store         *session.Store
	transcription *feed.TranscriptionFeed
	coaching      *feed.CoachingFeed
	logger        zerolog.Logger
}

// NewCallsHandler creates a new CallsHandler. The feeds may be nil when the
// service runs without live transcription.
func NewCallsHandler(orch *orchestrator.Orchestrator, store *session.Store, transcription *feed.TranscriptionFeed, coaching *feed.CoachingFeed, logger zerolog.Logger) *CallsHandler {
	return &CallsHandler{
		orch:          orch,
		store:         store,
		transcription: transcription,
		coaching:      coaching,
		logger:        logger.With().Str("component", "calls_handler").Logger(),
	}
}

type startCallRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	ContactID   string `json:"contactId"`
	ContactName string `json:"contactName"`
}

// StartCall handles POST /api/calls
func (h *CallsHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.orch.StartCall(r.Context(), req.PhoneNumber, req.ContactID, req.ContactName)
	if err != nil {
		var invalidNumber *orchestrator.InvalidPhoneNumberError
		switch {
		case errors.As(err, &invalidNumber):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, orchestrator.ErrCallInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error().Err(err).Str("number", req.PhoneNumber).Msg("failed to start call")
			http.Error(w, "failed to start call", http.StatusInternalServerError)
		}
		return
	}

	if result.Handoff {
		h.logger.Info().Str("dialer_uri", result.DialerURI).Msg("call handed off to platform dialer")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"handoff":   true,
			"dialerUri": result.DialerURI,
		})
		return
	}

	h.attachFeeds(result.Call.CallID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result.Call)
}

// EndCall handles POST /api/calls/end
func (h *CallsHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.EndCall(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to end call")
		http.Error(w, "failed to end call", http.StatusInternalServerError)
		return
	}

	h.detachFeeds()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "call ended"})
}

// ToggleMute handles POST /api/calls/mute
func (h *CallsHandler) ToggleMute(w http.ResponseWriter, r *http.Request) {
	h.toggleControl(w, r, "mute", h.orch.ToggleMute)
}

// ToggleSpeaker handles POST /api/calls/speaker
func (h *CallsHandler) ToggleSpeaker(w http.ResponseWriter, r *http.Request) {
	h.toggleControl(w, r, "speaker", h.orch.ToggleSpeaker)
}

// ToggleHold handles POST /api/calls/hold
func (h *CallsHandler) ToggleHold(w http.ResponseWriter, r *http.Request) {
	h.toggleControl(w, r, "hold", h.orch.ToggleHold)
}

// DismissSuggestion handles POST /api/calls/suggestions/{suggestionId}/dismiss
func (h *CallsHandler) DismissSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "suggestionId")
	if id == "" {
		http.Error(w, "suggestionId is required", http.StatusBadRequest)
		return
	}

	h.orch.DismissSuggestion(id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "suggestion dismissed"})
}

// Reset handles POST /api/calls/reset
func (h *CallsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.orch.Reset()
	h.detachFeeds()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "session reset"})
}

// GetSession handles GET /api/calls/session
func (h *CallsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.store.Snapshot())
}

func (h *CallsHandler) toggleControl(w http.ResponseWriter, r *http.Request, name string, toggle func(ctx context.Context) error) {
	if err := toggle(r.Context()); err != nil {
		var unavailable *telephony.ControlUnavailableError
		if errors.As(err, &unavailable) {
			// Non-fatal: the session error is already set for the UI
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Str("control", name).Msg("control toggle failed")
		http.Error(w, "control toggle failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.store.Controls())
}

func (h *CallsHandler) attachFeeds(callID string) {
	if h.transcription != nil {
		if err := h.transcription.SetCall(callID); err != nil {
			h.logger.Warn().Err(err).Msg("transcription feed unavailable for this call")
		}
	}
	if h.coaching != nil {
		if err := h.coaching.SetCall(callID); err != nil {
			h.logger.Warn().Err(err).Msg("coaching feed unavailable for this call")
		}
	}
}

func (h *CallsHandler) detachFeeds() {
	if h.transcription != nil {
		h.transcription.SetCall("")
	}
	if h.coaching != nil {
		h.coaching.SetCall("")
	}
}
