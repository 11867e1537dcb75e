// Package storage persists the notification lifecycle state.
//
// One row per open GitHub thread: created when the item is first
// announced, touched when a reminder goes out, deleted when a human
// acknowledges it. The store is the single source of truth for "has
// this item been announced already".
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

// Record tracks one feed item from announcement to acknowledgment.
//
// ThreadID, Title and URL are snapshots from the first sighting and are
// never updated. MessageID is the locally generated correlation token
// embedded in the delivered message's Done button; it is the only key
// an acknowledgment carries.
type Record struct {
	ThreadID       string
	MessageID      string
	Title          string
	URL            string
	LastRemindedAt time.Time
}

// Store is the persistence API used by the relay engine.
//
// All operations are atomic at the row level: a concurrent acknowledgment
// racing a reminder touch on the same thread can never resurrect a
// deleted record or tear a write.
type Store interface {
	// Get returns the record for a thread. Absence is (zero, false, nil),
	// not an error.
	Get(ctx context.Context, threadID string) (Record, bool, error)

	// Upsert inserts the record, replacing any existing row for the
	// same thread.
	Upsert(ctx context.Context, rec Record) error

	// TouchReminder advances last_reminded_at. It reports false when the
	// row no longer exists (acknowledged concurrently) or when the update
	// would move the timestamp backward; neither is an error.
	TouchReminder(ctx context.Context, threadID string, at time.Time) (bool, error)

	// DeleteByMessageID removes the record carrying the given correlation
	// token and returns it. A second call for the same token reports
	// (zero, false, nil), which callers treat as a benign duplicate.
	DeleteByMessageID(ctx context.Context, messageID string) (Record, bool, error)

	// Count returns the number of open records.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Open initializes the configured store. The driver defaults to sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
