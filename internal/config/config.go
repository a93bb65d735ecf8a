package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Telephony backend selection
const (
	TelephonyTwilio    = "twilio"
	TelephonySimulated = "simulated"
)

// Feed source selection
const (
	FeedRedis  = "redis"
	FeedMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	LogLevel       string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Telephony
	TelephonyMode     string // "twilio" or "simulated"
	InAppCalling      bool   // false routes StartCall to the device dialer
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioCallerID    string
	TwilioCallbackURL string // public base URL for status callbacks
	TwilioVoiceURL    string // TwiML document dialed calls execute

	// Push feeds
	FeedMode      string // "redis" or "memory"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		TelephonyMode:     getEnv("TELEPHONY_MODE", TelephonySimulated),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioCallerID:    getEnv("TWILIO_CALLER_ID", ""),
		TwilioCallbackURL: getEnv("TWILIO_CALLBACK_URL", ""),
		TwilioVoiceURL:    getEnv("TWILIO_VOICE_URL", ""),

		FeedMode:      getEnv("FEED_MODE", FeedMemory),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}

	if config.TelephonyMode != TelephonyTwilio && config.TelephonyMode != TelephonySimulated {
		return nil, fmt.Errorf("invalid TELEPHONY_MODE: %q", config.TelephonyMode)
	}
	if config.FeedMode != FeedRedis && config.FeedMode != FeedMemory {
		return nil, fmt.Errorf("invalid FEED_MODE: %q", config.FeedMode)
	}

	inApp, err := strconv.ParseBool(getEnv("IN_APP_CALLING", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid IN_APP_CALLING: %w", err)
	}
	config.InAppCalling = inApp

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	config.RedisDB = redisDB

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
