package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.ServerPort)
	}
	if cfg.TicketPrefix != "KTZH" {
		t.Errorf("expected ticket prefix KTZH, got %s", cfg.TicketPrefix)
	}
	if cfg.BotSendEnabled || cfg.NATSEnabled {
		t.Error("expected outbound delivery and NATS disabled by default")
	}
	if cfg.OutboxMaxAttempts != 5 {
		t.Errorf("expected 5 outbox attempts, got %d", cfg.OutboxMaxAttempts)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BOT_SEND_ENABLED", "true")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("ENV", "development")

	cfg := Load()
	if cfg.ServerPort != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.ServerPort)
	}
	if !cfg.BotSendEnabled {
		t.Error("expected send enabled")
	}
	if cfg.OutboxPollInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms poll interval, got %s", cfg.OutboxPollInterval)
	}
	if cfg.OutboxMaxAttempts != 5 {
		t.Errorf("expected invalid int to fall back to default, got %d", cfg.OutboxMaxAttempts)
	}
	if !cfg.Development() {
		t.Error("expected development profile")
	}
}
