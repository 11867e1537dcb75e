package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/nomanoma121/github-notification-bot/internal/storage"
	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

// AckHandler consumes button presses and retires the matching record.
//
// Handle is idempotent: a late or replayed press finds no record, still
// gets its button answered, and reports success. The local deletion is
// authoritative; the upstream mark-read and the terminal UI edit are
// best-effort and never roll it back.
type AckHandler struct {
	store storage.Store
	src   FeedSource
	notif Notifier
	log   logx.Logger

	mu  sync.Mutex
	cfg Config
}

func NewAckHandler(cfg Config, store storage.Store, src FeedSource, notif Notifier, log logx.Logger) *AckHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &AckHandler{store: store, src: src, notif: notif, log: log, cfg: cfg.withDefaults()}
}

func (h *AckHandler) Apply(cfg Config) {
	h.mu.Lock()
	h.cfg = cfg.withDefaults()
	h.mu.Unlock()
}

func (h *AckHandler) config() Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// Handle processes one acknowledgment event. Only a store failure is
// returned; every chat/feed side effect failure is logged and absorbed.
func (h *AckHandler) Handle(ctx context.Context, ev AckEvent) error {
	cfg := h.config()

	rec, removed, err := h.store.DeleteByMessageID(ctx, ev.Token)
	if err != nil {
		return fmt.Errorf("ack delete: %w", err)
	}

	if !removed {
		// Benign duplicate or an item already retired elsewhere. Answer
		// the press so the human never sees an error for acking twice.
		sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		defer cancel()
		if err := h.notif.ConfirmAck(sctx, ev, true); err != nil {
			h.log.Debug("duplicate ack confirm failed", logx.String("token", ev.Token), logx.Err(err))
		}
		h.log.Debug("duplicate acknowledgment", logx.String("token", ev.Token))
		return nil
	}

	// Best-effort upstream mark-read; its failure never resurrects the record.
	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	if err := h.src.MarkRead(sctx, rec.ThreadID); err != nil {
		h.log.Warn("upstream mark-read failed", logx.String("thread", rec.ThreadID), logx.Err(err))
	}
	cancel()

	sctx, cancel = context.WithTimeout(ctx, cfg.SendTimeout)
	if err := h.notif.ConfirmAck(sctx, ev, false); err != nil {
		h.log.Warn("ack confirm failed", logx.String("thread", rec.ThreadID), logx.Err(err))
	}
	cancel()

	sctx, cancel = context.WithTimeout(ctx, cfg.SendTimeout)
	if err := h.notif.ApplyTerminalUI(sctx, ev, rec.Title); err != nil {
		h.log.Warn("terminal ui failed", logx.String("thread", rec.ThreadID), logx.Err(err))
	}
	cancel()

	h.log.Info("notification acknowledged", logx.String("thread", rec.ThreadID), logx.String("title", rec.Title))
	return nil
}
