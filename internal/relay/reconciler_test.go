package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nomanoma121/github-notification-bot/internal/feed"
	"github.com/nomanoma121/github-notification-bot/pkg/logx"
)

var tick1 = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func newTestReconciler(store *fakeStore, src *fakeFeed, notif *fakeNotifier) *Reconciler {
	r := NewReconciler(Config{RemindAfter: 2 * time.Hour}, store, src, notif, logx.Nop())
	seq := 0
	r.newToken = func() string {
		seq++
		return fmt.Sprintf("tok-%d", seq)
	}
	r.now = func() time.Time { return tick1 }
	return r
}

func TestNewItemAnnouncedOnce(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug", URL: "https://example.test/1"}}}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	rec, ok := store.record("t1")
	if !ok {
		t.Fatal("record not created")
	}
	if rec.Title != "Fix bug" || rec.URL != "https://example.test/1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.MessageID != "tok-1" {
		t.Fatalf("MessageID = %q, want tok-1", rec.MessageID)
	}
	if !rec.LastRemindedAt.Equal(tick1) {
		t.Fatalf("LastRemindedAt = %v, want %v", rec.LastRemindedAt, tick1)
	}
	if a, _, _, _ := notif.counts(); a != 1 {
		t.Fatalf("announces = %d, want 1", a)
	}
}

func TestRepeatTicksAnnounceExactlyOnce(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug"}}}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	// The same item observed over many ticks inside the quiet window.
	for i := 0; i < 5; i++ {
		now := tick1.Add(time.Duration(i) * 10 * time.Minute)
		r.now = func() time.Time { return now }
		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d error: %v", i, err)
		}
	}

	a, rem, _, _ := notif.counts()
	if a != 1 {
		t.Fatalf("announces = %d, want exactly 1", a)
	}
	if rem != 0 {
		t.Fatalf("reminds = %d, want 0", rem)
	}
	rec, _ := store.record("t1")
	if !rec.LastRemindedAt.Equal(tick1) {
		t.Fatalf("quiet ticks mutated LastRemindedAt: %v", rec.LastRemindedAt)
	}
}

func TestQuietItemProducesNoSideEffects(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug"}}}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	// Ten minutes later: nothing should happen.
	r.now = func() time.Time { return tick1.Add(10 * time.Minute) }
	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	a, rem, _, _ := notif.counts()
	if a != 1 || rem != 0 {
		t.Fatalf("announces/reminds = %d/%d, want 1/0", a, rem)
	}
}

func TestOverdueItemRemindsAndTouches(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug"}}}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	tickN := tick1.Add(3 * time.Hour)
	r.now = func() time.Time { return tickN }
	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	a, rem, _, _ := notif.counts()
	if a != 1 || rem != 1 {
		t.Fatalf("announces/reminds = %d/%d, want 1/1", a, rem)
	}
	if notif.reminds[0] != "tok-1" {
		t.Fatalf("reminder token = %q, want the announce token", notif.reminds[0])
	}
	rec, _ := store.record("t1")
	if !rec.LastRemindedAt.Equal(tickN) {
		t.Fatalf("LastRemindedAt = %v, want tick time %v", rec.LastRemindedAt, tickN)
	}
}

func TestAnnounceFailureLeavesNoRecord(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug"}}}
	notif := &fakeNotifier{announceErr: errors.New("telegram down")}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if _, ok := store.record("t1"); ok {
		t.Fatal("record created despite failed announce")
	}

	// Delivery recovers: the item is retried as NEW on the next tick.
	notif.announceErr = nil
	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if _, ok := store.record("t1"); !ok {
		t.Fatal("record not created after retry")
	}
	if a, _, _, _ := notif.counts(); a != 1 {
		t.Fatalf("announces = %d, want 1", a)
	}
}

func TestFetchFailureSkipsWholeTick(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{listErr: errors.New("http 503")}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err == nil {
		t.Fatal("expected tick error on fetch failure")
	}
	if a, rem, _, _ := notif.counts(); a != 0 || rem != 0 {
		t.Fatal("side effects produced from a failed fetch")
	}
}

func TestRemindFailureKeepsTimestamp(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug"}}}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	notif.remindErr = errors.New("telegram down")
	r.now = func() time.Time { return tick1.Add(3 * time.Hour) }
	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	rec, _ := store.record("t1")
	if !rec.LastRemindedAt.Equal(tick1) {
		t.Fatalf("failed remind advanced LastRemindedAt to %v", rec.LastRemindedAt)
	}
}

func TestSnapshotWinsOverFeedRewording(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug", URL: "u1"}}}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	// Upstream rewords the item; the stored snapshot is authoritative.
	src.items = []feed.Item{{ID: "t1", Title: "Fix bug (edited)", URL: "u2"}}
	r.now = func() time.Time { return tick1.Add(10 * time.Minute) }
	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	rec, _ := store.record("t1")
	if rec.Title != "Fix bug" || rec.URL != "u1" {
		t.Fatalf("snapshot mutated: %+v", rec)
	}
}

func TestVanishedItemIsNotCleanedUp(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	src := &fakeFeed{items: []feed.Item{{ID: "t1", Title: "Fix bug"}}}
	notif := &fakeNotifier{}
	r := newTestReconciler(store, src, notif)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	// Item resolved outside this system: it disappears from the feed but
	// its record (and reminder cycle) stays until acknowledged.
	src.items = nil
	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if _, ok := store.record("t1"); !ok {
		t.Fatal("record removed for an item that merely left the feed")
	}
}
