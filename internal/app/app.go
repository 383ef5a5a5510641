// Package app builds the long-lived components shared by the API server
// and the operator CLI from configuration.
package app

import (
	"fmt"

	"github.com/capitalize-ai/rail-support-bot/internal/config"
	"github.com/capitalize-ai/rail-support-bot/internal/nlu"
	"github.com/capitalize-ai/rail-support-bot/internal/service"
	"github.com/capitalize-ai/rail-support-bot/internal/store"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

// NewLogger returns a development logger for ENV=development and a JSON
// logger at LOG_LEVEL otherwise.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Development() {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}

// NewAnalyzer compiles the keyword vocabulary, from VOCABULARY_FILE when
// set, else the embedded default.
func NewAnalyzer(cfg *config.Config) (*nlu.Analyzer, error) {
	if cfg.VocabularyFile == "" {
		return nlu.NewDefault()
	}
	v, err := nlu.LoadVocabulary(cfg.VocabularyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	return nlu.New(v), nil
}

// OpenStores opens the badger session store and the sqlite record store.
// The returned composite owns both; the sqlite store is also returned for
// health checks.
func OpenStores(cfg *config.Config, log *logger.Logger) (*store.Composite, *store.SQLiteStore, error) {
	sessions, err := store.OpenBadgerSessions(cfg.BadgerDir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	records, err := store.NewSQLiteStore(cfg.SQLitePath, cfg.TicketPrefix)
	if err != nil {
		sessions.Close()
		return nil, nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return store.NewComposite(sessions, records), records, nil
}

// ChatConfig extracts the chat service settings.
func ChatConfig(cfg *config.Config) service.ChatConfig {
	return service.ChatConfig{
		HashSalt:     cfg.ChatHashSalt,
		SendEnabled:  cfg.BotSendEnabled,
		OpsChannelID: cfg.OpsChannelID,
		OpsChatID:    cfg.OpsChatID,
		OpsChatType:  cfg.OpsChatType,
	}
}
