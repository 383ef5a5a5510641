// Package config provides environment configuration for the bot services.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	Env                string

	// Storage
	SQLitePath   string
	BadgerDir    string
	TicketPrefix string

	// Conversation engine
	VocabularyFile string
	ChatHashSalt   string

	// Ingestion
	WebhookToken  string
	TelegramToken string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings for the ops API
	JWTSecret string

	// Outbound delivery
	WazzupAPIURL       string
	WazzupAPIKey       string
	BotSendEnabled     bool
	OpsChannelID       string
	OpsChatID          string
	OpsChatType        string
	OutboxPollInterval time.Duration
	OutboxMaxAttempts  int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		Env:                getEnv("ENV", "production"),

		// Storage
		SQLitePath:   getEnv("SQLITE_PATH", "data/railbot.db"),
		BadgerDir:    getEnv("BADGER_DIR", "data/sessions"),
		TicketPrefix: getEnv("TICKET_PREFIX", "KTZH"),

		// Conversation engine
		VocabularyFile: getEnv("VOCABULARY_FILE", ""),
		ChatHashSalt:   getEnv("CHAT_HASH_SALT", "development-salt-change-in-production"),

		// Ingestion
		WebhookToken:  getEnv("WEBHOOK_TOKEN", ""),
		TelegramToken: getEnv("TELEGRAM_TOKEN", ""),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Outbound delivery
		WazzupAPIURL:       getEnv("WAZZUP_API_URL", "https://api.wazzup24.com"),
		WazzupAPIKey:       getEnv("WAZZUP_API_KEY", ""),
		BotSendEnabled:     getBoolEnv("BOT_SEND_ENABLED", false),
		OpsChannelID:       getEnv("OPS_CHANNEL_ID", ""),
		OpsChatID:          getEnv("OPS_CHAT_ID", ""),
		OpsChatType:        getEnv("OPS_CHAT_TYPE", "whatsapp"),
		OutboxPollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxMaxAttempts:  getIntEnv("OUTBOX_MAX_ATTEMPTS", 5),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Development reports whether ENV selects the development profile.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
