package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/token"
)

// TokenHandler mints short-lived access tokens for environments without an
// OIDC provider in front of the service
type TokenHandler struct {
	minter *token.Minter
	logger zerolog.Logger
}

// NewTokenHandler creates a new TokenHandler
func NewTokenHandler(minter *token.Minter, logger zerolog.Logger) *TokenHandler {
	return &TokenHandler{
		minter: minter,
		logger: logger.With().Str("component", "token_handler").Logger(),
	}
}

type tokenRequest struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

// Mint handles POST /api/token
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Subject == "" {
		http.Error(w, "subject is required", http.StatusBadRequest)
		return
	}

	tok, err := h.minter.Issue(time.Now(), req.Subject, req.Email, req.Name, req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info().Str("subject", req.Subject).Str("role", req.Role).Msg("token minted")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": tok})
}
