package relay

import (
	"context"
	"sync"
	"time"

	"github.com/nomanoma121/github-notification-bot/internal/feed"
	"github.com/nomanoma121/github-notification-bot/internal/storage"
)

// fakeStore is an in-memory storage.Store for engine tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]storage.Record // keyed by thread id

	getErr    error
	upsertErr error
	deleteErr error
	touchErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]storage.Record{}}
}

func (s *fakeStore) Get(_ context.Context, threadID string) (storage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return storage.Record{}, false, s.getErr
	}
	rec, ok := s.records[threadID]
	return rec, ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.records[rec.ThreadID] = rec
	return nil
}

func (s *fakeStore) TouchReminder(_ context.Context, threadID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return false, s.touchErr
	}
	rec, ok := s.records[threadID]
	if !ok || at.Before(rec.LastRemindedAt) {
		return false, nil
	}
	rec.LastRemindedAt = at
	s.records[threadID] = rec
	return true, nil
}

func (s *fakeStore) DeleteByMessageID(_ context.Context, messageID string) (storage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return storage.Record{}, false, s.deleteErr
	}
	for id, rec := range s.records {
		if rec.MessageID == messageID {
			delete(s.records, id)
			return rec, true, nil
		}
	}
	return storage.Record{}, false, nil
}

func (s *fakeStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) record(threadID string) (storage.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[threadID]
	return rec, ok
}

// fakeFeed serves a fixed item list and records mark-read calls.
type fakeFeed struct {
	mu       sync.Mutex
	items    []feed.Item
	listErr  error
	markErr  error
	markRead []string
}

func (f *fakeFeed) ListOpenItems(context.Context) ([]feed.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]feed.Item(nil), f.items...), nil
}

func (f *fakeFeed) MarkRead(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markRead = append(f.markRead, threadID)
	return f.markErr
}

func (f *fakeFeed) marked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markRead...)
}

// fakeNotifier records every delivery and side effect.
type fakeNotifier struct {
	mu        sync.Mutex
	announces []string // tokens, in order
	reminds   []string // tokens
	confirms  []bool   // duplicate flag per ConfirmAck
	terminals []string // titles

	announceErr error
	remindErr   error
	confirmErr  error
	terminalErr error
}

func (n *fakeNotifier) Announce(_ context.Context, _ feed.Item, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.announceErr != nil {
		return n.announceErr
	}
	n.announces = append(n.announces, token)
	return nil
}

func (n *fakeNotifier) Remind(_ context.Context, _ string, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.remindErr != nil {
		return n.remindErr
	}
	n.reminds = append(n.reminds, token)
	return nil
}

func (n *fakeNotifier) ConfirmAck(_ context.Context, _ AckEvent, duplicate bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirms = append(n.confirms, duplicate)
	return n.confirmErr
}

func (n *fakeNotifier) ApplyTerminalUI(_ context.Context, _ AckEvent, title string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.terminalErr != nil {
		return n.terminalErr
	}
	n.terminals = append(n.terminals, title)
	return nil
}

func (n *fakeNotifier) counts() (announces, reminds, confirms, terminals int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.announces), len(n.reminds), len(n.confirms), len(n.terminals)
}
