package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/leadwire/callcoach/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now
		// TODO: Implement proper origin checking based on config
		return true
	},
}

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub      *Hub
	config   *config.Config
	logger   zerolog.Logger
	snapshot func() []byte
}

// NewHandler creates a new WebSocket handler. snapshot returns the current
// session state pushed to every client right after connect so the UI renders
// without waiting for the next broadcast cycle; it may be nil.
func NewHandler(hub *Hub, cfg *config.Config, logger zerolog.Logger, snapshot func() []byte) *Handler {
	return &Handler{
		hub:      hub,
		config:   cfg,
		logger:   logger,
		snapshot: snapshot,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	// Create new client
	client := NewClient(h.hub, conn, h.config, h.logger)

	// Seed the send buffer before the pumps start so the snapshot is the
	// first frame the client sees
	if h.snapshot != nil {
		if data := h.snapshot(); data != nil {
			client.send <- data
		}
	}

	// Register client with hub
	h.hub.register <- client

	// Start client pumps
	client.Start()
}
