package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leadwire/callcoach/internal/api"
	"github.com/leadwire/callcoach/internal/auth"
	"github.com/leadwire/callcoach/internal/broadcast"
	"github.com/leadwire/callcoach/internal/config"
	"github.com/leadwire/callcoach/internal/feed"
	"github.com/leadwire/callcoach/internal/metrics"
	"github.com/leadwire/callcoach/internal/orchestrator"
	"github.com/leadwire/callcoach/internal/session"
	"github.com/leadwire/callcoach/internal/storage"
	"github.com/leadwire/callcoach/internal/telephony"
	"github.com/leadwire/callcoach/internal/token"
	"github.com/leadwire/callcoach/internal/types"
	"github.com/leadwire/callcoach/internal/websocket"
	"github.com/leadwire/callcoach/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("telephony_mode", cfg.TelephonyMode).
		Str("feed_mode", cfg.FeedMode).
		Bool("in_app_calling", cfg.InAppCalling).
		Msg("starting callcoach server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session store and WebSocket hub
	store := session.NewStore()
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	// Persistence (noop unless DYNAMO_MODE is set)
	callStore, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Push feed source
	var source feed.Source
	if cfg.FeedMode == config.FeedRedis {
		redisSource, err := feed.NewRedisSource(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisSource.Close()
		source = redisSource
	} else {
		source = feed.NewMemorySource()
	}

	// Feeds push accepted rows straight to connected UI clients
	transcription := feed.NewTranscriptionFeed(store, source, log.Logger, func(p types.TranscriptPush) {
		if data, err := json.Marshal(p); err == nil {
			hub.Broadcast(data)
		}
	})
	defer transcription.Close()

	coaching := feed.NewCoachingFeed(store, source, log.Logger, func(p types.SuggestionPush) {
		if data, err := json.Marshal(p); err == nil {
			hub.Broadcast(data)
		}
	})
	defer coaching.Close()

	// Telephony adapter
	var adapter telephony.Adapter
	var twilioAdapter *telephony.TwilioAdapter
	if cfg.TelephonyMode == config.TelephonyTwilio {
		twilioAdapter = telephony.NewTwilioAdapter(cfg.TwilioCallbackURL, cfg.TwilioVoiceURL, log.Logger)
		adapter = twilioAdapter
	} else {
		adapter = telephony.NewSimulatedAdapter(telephony.DefaultSimScript(), log.Logger)
	}

	cred := telephony.Credential{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		CallerID:   cfg.TwilioCallerID,
	}
	if cfg.TelephonyMode == config.TelephonySimulated && cred.AccountSID == "" {
		cred.AccountSID = "SIMULATED"
	}

	// Orchestrator. An adapter that cannot initialize is not fatal: calls
	// hand off to the platform dialer instead.
	orch := orchestrator.New(store, adapter, callStore, cred, cfg.InAppCalling, log.Logger)
	if err := orch.Start(ctx); err != nil {
		if errors.Is(err, orchestrator.ErrAdapterUnavailable) {
			log.Warn().Err(err).Msg("running without in-app calling")
		} else {
			log.Fatal().Err(err).Msg("failed to start orchestrator")
		}
	}
	defer orch.Close()

	// Session broadcaster drives the 1 Hz UI refresh
	broadcaster := broadcast.NewBroadcaster(store, hub, 1*time.Second, log.Logger)
	go broadcaster.Start(ctx)

	// WebSocket handler seeds new clients with the current snapshot
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger, func() []byte {
		data, err := broadcaster.Snapshot()
		if err != nil {
			log.Error().Err(err).Msg("failed to snapshot session for new client")
			return nil
		}
		return data
	})

	// REST handlers
	callsHandler := api.NewCallsHandler(orch, store, transcription, coaching, log.Logger)
	recordsHandler := api.NewRecordsHandler(callStore, log.Logger)
	ingestHandler := api.NewIngestHandler(source, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Internal routes (no auth - for the speech and AI pipelines)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/transcript", ingestHandler.HandleTranscript)
		r.Post("/suggestion", ingestHandler.HandleSuggestion)
		r.Get("/ingest/stats", ingestHandler.GetStats)

		// Twilio posts call progress here
		if twilioAdapter != nil {
			r.Post("/telephony/status", twilioAdapter.StatusCallbackHandler())
		}
	})

	// Token minting for environments without an OIDC provider
	if secret := os.Getenv("AUTH_SECRET"); secret != "" {
		minter, err := token.NewMinter(secret, os.Getenv("AUTH_ISSUER"), 15*time.Minute)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create token minter")
		}
		tokenHandler := api.NewTokenHandler(minter, log.Logger)
		r.Post("/api/token", tokenHandler.Mint)
	}

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api/calls", func(r chi.Router) {
			r.Post("/", callsHandler.StartCall)
			r.Post("/end", callsHandler.EndCall)
			r.Post("/mute", callsHandler.ToggleMute)
			r.Post("/speaker", callsHandler.ToggleSpeaker)
			r.Post("/hold", callsHandler.ToggleHold)
			r.Post("/reset", callsHandler.Reset)
			r.Post("/suggestions/{suggestionId}/dismiss", callsHandler.DismissSuggestion)
			r.Get("/session", callsHandler.GetSession)
			r.Get("/records", recordsHandler.GetRecords)
			r.Get("/{callId}/transcript", recordsHandler.GetTranscript)
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background services
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"callcoach"}`)
}
