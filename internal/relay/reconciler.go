package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nomanoma121/github-notification-bot/internal/feed"
	"github.com/nomanoma121/github-notification-bot/internal/storage"
	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

// Reconciler merges one polled feed snapshot into the record store.
//
// Per item it decides NEW (announce, then create the record), EXISTING
// and due (remind, then touch), or EXISTING and quiet (nothing). Items
// that vanish from the feed are left alone; records die only through
// acknowledgment.
type Reconciler struct {
	store storage.Store
	src   FeedSource
	notif Notifier
	log   logx.Logger

	mu  sync.Mutex
	cfg Config

	// injectable for tests
	now      func() time.Time
	newToken func() string
}

func NewReconciler(cfg Config, store storage.Store, src FeedSource, notif Notifier, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{
		store:    store,
		src:      src,
		notif:    notif,
		log:      log,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		newToken: newToken,
	}
}

// Apply swaps the engine tuning at runtime (config hot reload).
func (r *Reconciler) Apply(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg.withDefaults()
	r.mu.Unlock()
}

func (r *Reconciler) config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Tick fetches the open-item list and reconciles it against the store.
//
// A fetch failure skips the whole tick: no partial reconciliation. Per-
// item failures (delivery, store) are logged and do not stop the other
// items; a failed announce leaves no record, so the item retries as NEW
// on the next tick.
func (r *Reconciler) Tick(ctx context.Context) error {
	items, err := r.src.ListOpenItems(ctx)
	if err != nil {
		return fmt.Errorf("skipping tick: %w", err)
	}

	var announced, reminded int
	for _, item := range items {
		res, err := r.reconcile(ctx, item)
		if err != nil {
			r.log.Warn("reconcile failed", logx.String("thread", item.ID), logx.Err(err))
			continue
		}
		switch res {
		case resultAnnounced:
			announced++
		case resultReminded:
			reminded++
		}
	}

	if announced > 0 || reminded > 0 {
		r.log.Info("tick done",
			logx.Int("open", len(items)),
			logx.Int("announced", announced),
			logx.Int("reminded", reminded),
		)
	} else {
		r.log.Trace("tick done", logx.Int("open", len(items)))
	}
	return nil
}

type result int

const (
	resultQuiet result = iota
	resultAnnounced
	resultReminded
)

func (r *Reconciler) reconcile(ctx context.Context, item feed.Item) (result, error) {
	cfg := r.config()
	now := r.now()

	rec, ok, err := r.store.Get(ctx, item.ID)
	if err != nil {
		return resultQuiet, fmt.Errorf("store get: %w", err)
	}

	if !ok {
		token := r.newToken()
		sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := r.notif.Announce(sctx, item, token)
		cancel()
		if err != nil {
			// No record: the item stays NEW and retries next tick.
			return resultQuiet, fmt.Errorf("announce: %w", err)
		}
		rec := storage.Record{
			ThreadID:       item.ID,
			MessageID:      token,
			Title:          item.Title,
			URL:            item.URL,
			LastRemindedAt: now,
		}
		if err := r.store.Upsert(ctx, rec); err != nil {
			return resultQuiet, fmt.Errorf("store upsert: %w", err)
		}
		r.log.Info("item announced", logx.String("thread", item.ID), logx.String("title", item.Title))
		return resultAnnounced, nil
	}

	if !ShouldRemind(rec.LastRemindedAt, now, cfg.RemindAfter) {
		// The common, silent case.
		return resultQuiet, nil
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	err = r.notif.Remind(sctx, rec.Title, rec.MessageID)
	cancel()
	if err != nil {
		return resultQuiet, fmt.Errorf("remind: %w", err)
	}
	touched, err := r.store.TouchReminder(ctx, rec.ThreadID, now)
	if err != nil {
		return resultQuiet, fmt.Errorf("store touch: %w", err)
	}
	if !touched {
		// Acknowledged between the lookup and the touch; nothing to do.
		r.log.Debug("reminder raced an acknowledgment", logx.String("thread", rec.ThreadID))
		return resultQuiet, nil
	}
	r.log.Info("reminder sent", logx.String("thread", rec.ThreadID), logx.String("title", rec.Title))
	return resultReminded, nil
}
