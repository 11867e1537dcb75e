// Package relay implements the notification lifecycle engine: the
// poll-merge reconciler, the reminder policy, and the idempotent
// acknowledgment handler.
//
// The engine owns no I/O of its own. It drives the record store and the
// injected feed/notifier capabilities, and contains every feed- and
// chat-boundary failure so that only store failures surface to the
// caller.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nomanoma121/github-notification-bot/internal/feed"
)

// FeedSource is the polled upstream capability.
type FeedSource interface {
	ListOpenItems(ctx context.Context) ([]feed.Item, error)
	MarkRead(ctx context.Context, threadID string) error
}

// Notifier delivers announcements, reminders and acknowledgment side
// effects to the chat surface.
type Notifier interface {
	// Announce delivers a new item's message carrying the Done button
	// bound to token.
	Announce(ctx context.Context, item feed.Item, token string) error

	// Remind re-surfaces an unacknowledged item.
	Remind(ctx context.Context, title, token string) error

	// ConfirmAck answers the pressed button. duplicate marks a late or
	// replayed acknowledgment, which is still confirmed, never errored.
	ConfirmAck(ctx context.Context, ev AckEvent, duplicate bool) error

	// ApplyTerminalUI disables the acknowledged message's button and
	// adds a completion marker.
	ApplyTerminalUI(ctx context.Context, ev AckEvent, title string) error
}

// AckEvent is one inbound button press.
//
// Token is the correlation token generated at announce time and echoed
// back by the chat platform; it is the only key that maps the event to
// a record. The message coordinates locate the chat message whose
// button was pressed.
type AckEvent struct {
	Token      string
	CallbackID string
	ChatID     int64
	ThreadID   int
	MessageID  int
}

// Config tunes the engine. Zero fields fall back to defaults.
type Config struct {
	// RemindAfter is the minimum silence before an unacknowledged item
	// is re-announced. Default 2h.
	RemindAfter time.Duration
	// SendTimeout bounds each individual notifier or mark-read call.
	// Default 15s.
	SendTimeout time.Duration
}

const (
	defaultRemindAfter = 2 * time.Hour
	defaultSendTimeout = 15 * time.Second
)

func (c Config) withDefaults() Config {
	if c.RemindAfter <= 0 {
		c.RemindAfter = defaultRemindAfter
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

func newToken() string { return uuid.NewString() }
