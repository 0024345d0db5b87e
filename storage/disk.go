// Package storage opens the on-disk stores of the chat: the badger database
// holding every record and the bluge index used for prefix search.
package storage

import (
	"chat-core/repositories"
	"chat-core/runtime"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
)

type Disk struct {
	DB    *badger.DB
	Index *bluge.Writer
	log   *slog.Logger
}

// Open opens (or creates) both stores. The caller must Close the result.
func Open(log *slog.Logger, badgerPath, blugePath string) (*Disk, error) {
	db, err := badger.Open(badger.DefaultOptions(badgerPath).
		WithLogger(badgerLogger{log: log.With("component", "badger")}).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	index, err := bluge.OpenWriter(bluge.DefaultConfig(blugePath))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("search index opening failed: %w", err)
	}
	return &Disk{DB: db, Index: index, log: log}, nil
}

// Repositories wires every repository on top of the stores.
// limitMessages caps a single page read, nil for no cap.
func (d *Disk) Repositories(limitMessages *int) runtime.Repositories {
	return runtime.Repositories{
		Users:         repositories.NewUserRepository(d.DB),
		Channels:      repositories.NewChannelRepository(d.DB),
		Conversations: repositories.NewConversationRepository(d.DB),
		Messages:      repositories.NewMessageRepository(d.DB, d.log, limitMessages),
		Search:        repositories.NewSearchRepository(d.Index, d.log),
	}
}

func (d *Disk) Close() error {
	d.log.Info("Closing search index and BadgerDB...")
	return stderrors.Join(d.Index.Close(), d.DB.Close())
}

// badgerLogger routes badger's own logs to slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
