package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, threadID string) (Record, bool, error) {
	var rec Record
	var reminded string
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id, message_id, title, url, last_reminded_at
		 FROM notifications WHERE thread_id = ?`, threadID,
	).Scan(&rec.ThreadID, &rec.MessageID, &rec.Title, &rec.URL, &reminded)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec.LastRemindedAt, err = parseTime(reminded)
	if err != nil {
		return Record{}, false, fmt.Errorf("record %s: %w", threadID, err)
	}
	return rec, true, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(thread_id, message_id, title, url, last_reminded_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   message_id=excluded.message_id,
		   title=excluded.title,
		   url=excluded.url,
		   last_reminded_at=excluded.last_reminded_at`,
		rec.ThreadID, rec.MessageID, rec.Title, rec.URL, formatTime(rec.LastRemindedAt),
	)
	return err
}

func (s *sqliteStore) TouchReminder(ctx context.Context, threadID string, at time.Time) (bool, error) {
	// RFC3339Nano with fixed-width fraction sorts lexicographically, so
	// the string comparison keeps last_reminded_at monotonic.
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET last_reminded_at = ?
		 WHERE thread_id = ? AND last_reminded_at <= ?`,
		formatTime(at), threadID, formatTime(at),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) DeleteByMessageID(ctx context.Context, messageID string) (Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var rec Record
	var reminded string
	err = tx.QueryRowContext(ctx,
		`SELECT thread_id, message_id, title, url, last_reminded_at
		 FROM notifications WHERE message_id = ?`, messageID,
	).Scan(&rec.ThreadID, &rec.MessageID, &rec.Title, &rec.URL, &reminded)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec.LastRemindedAt, err = parseTime(reminded)
	if err != nil {
		return Record{}, false, fmt.Errorf("record %s: %w", rec.ThreadID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE message_id = ?`, messageID); err != nil {
		return Record{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n)
	return n, err
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_reminded_at %q: %w", s, err)
	}
	return t, nil
}
