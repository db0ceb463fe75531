package turns

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/core"
	"github.com/you/turnbell/internal/store"
)

// flakyStore wraps the memory store and fails selected operations.
type flakyStore struct {
	*store.Memory
	failGet     bool
	failHistory bool
	failUpsert  bool
	failList    bool

	mu      sync.Mutex
	upserts map[string]int
}

func newFlakyStore() *flakyStore { return &flakyStore{Memory: store.NewMemory()} }

var errBoom = errors.New("boom")

func (s *flakyStore) GetTurn(ctx context.Context, key string) (core.TurnRecord, error) {
	if s.failGet {
		return core.TurnRecord{}, errBoom
	}
	return s.Memory.GetTurn(ctx, key)
}

func (s *flakyStore) UpsertTurn(ctx context.Context, rec core.TurnRecord) error {
	s.mu.Lock()
	if s.upserts == nil {
		s.upserts = make(map[string]int)
	}
	s.upserts[rec.Key]++
	s.mu.Unlock()
	if s.failUpsert {
		return errBoom
	}
	return s.Memory.UpsertTurn(ctx, rec)
}

// upsertCounts returns per-key UpsertTurn calls and resets the tally.
func (s *flakyStore) upsertCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.upserts
	s.upserts = nil
	return out
}

func (s *flakyStore) UpsertHistory(ctx context.Context, rec core.HistoryRecord) error {
	if s.failHistory {
		return errBoom
	}
	return s.Memory.UpsertHistory(ctx, rec)
}

func (s *flakyStore) ListTurns(ctx context.Context) ([]core.TurnRecord, error) {
	if s.failList {
		return nil, errBoom
	}
	return s.Memory.ListTurns(ctx)
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []string
	failOn func(text string) bool
}

func (f *fakeNotifier) Name() string                 { return "fake" }
func (f *fakeNotifier) Mention(chatID string) string { return "<@" + chatID + ">" }
func (f *fakeNotifier) Everyone() string             { return "@everyone" }

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil && f.failOn(text) {
		return errBoom
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type mapMapper map[string]string

func (m mapMapper) Lookup(p string) (string, bool) {
	id, ok := m[p]
	return id, ok
}

func firstLine(pool []string) string { return pool[0] }

func coreTurn(key, player, round, started string) core.TurnRecord {
	return core.TurnRecord{
		Key:           key,
		GameName:      key,
		SteamUsername: player,
		RoundNumber:   round,
		TurnStartedAt: started,
	}
}
