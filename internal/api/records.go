package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/storage"
	"github.com/leadwire/callcoach/internal/types"
)

// RecordsHandler provides REST endpoints for persisted call history
type RecordsHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewRecordsHandler creates a new RecordsHandler
func NewRecordsHandler(store storage.Store, logger zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		store:  store,
		logger: logger.With().Str("component", "records_handler").Logger(),
	}
}

// GetRecords returns call records for a specific date
// GET /api/calls/records?date=YYYY-MM-DD
func (h *RecordsHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	records, err := h.store.GetCallRecords(date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", date).Msg("failed to get call records")
		http.Error(w, "failed to retrieve records", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.CallRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// GetTranscript returns the persisted transcript of a completed call
// GET /api/calls/{callId}/transcript
func (h *RecordsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if callID == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	record, err := h.store.GetTranscript(callID)
	if err != nil {
		h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to get transcript")
		http.Error(w, "failed to retrieve transcript", http.StatusInternalServerError)
		return
	}

	if record == nil {
		http.Error(w, "transcript not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}
