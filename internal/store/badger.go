package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/model"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
)

const sessionKeyPrefix = "session:"

// BadgerSessions stores one JSON-encoded session per conversation key.
type BadgerSessions struct {
	db *badger.DB
}

// OpenBadgerSessions opens the session database in dir. An empty dir runs
// badger in memory.
func OpenBadgerSessions(dir string, log *logger.Logger) (*BadgerSessions, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log.Component("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerSessions{db: db}, nil
}

func sessionKey(key string) []byte {
	return []byte(sessionKeyPrefix + key)
}

// GetSession returns the stored session, or nil when the key is unseen.
func (b *BadgerSessions) GetSession(_ context.Context, key string) (*model.Session, error) {
	var s model.Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return &s, nil
}

// UpsertSession writes the whole session.
func (b *BadgerSessions) UpsertSession(_ context.Context, key string, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(key), data)
	}); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// ResetSession overwrites the session with the default shape.
func (b *BadgerSessions) ResetSession(ctx context.Context, key string) error {
	return b.UpsertSession(ctx, key, model.NewSession())
}

// Close closes the database.
func (b *BadgerSessions) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging to zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
