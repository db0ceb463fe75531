package store

import (
	"context"
	"sort"
	"sync"

	"github.com/you/turnbell/internal/core"
)

// Memory is a process-local Store, used for tests and throwaway runs.
type Memory struct {
	mu      sync.Mutex
	turns   map[string]core.TurnRecord
	history map[string]map[string]core.HistoryRecord
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		turns:   make(map[string]core.TurnRecord),
		history: make(map[string]map[string]core.HistoryRecord),
	}
}

func (m *Memory) GetTurn(_ context.Context, key string) (core.TurnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.turns[key]
	if !ok {
		return core.TurnRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) UpsertTurn(_ context.Context, rec core.TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[rec.Key] = rec
	return nil
}

func (m *Memory) DeleteTurn(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.turns[key]; !ok {
		return ErrNotFound
	}
	delete(m.turns, key)
	return nil
}

func (m *Memory) ListTurns(context.Context) ([]core.TurnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.TurnRecord, 0, len(m.turns))
	for _, rec := range m.turns {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) UpsertHistory(_ context.Context, rec core.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.history[rec.GameKey]
	if !ok {
		rows = make(map[string]core.HistoryRecord)
		m.history[rec.GameKey] = rows
	}
	rows[rec.RowKey] = rec
	return nil
}

func (m *Memory) ListHistory(_ context.Context, gameKey string) ([]core.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.history[gameKey]
	out := make([]core.HistoryRecord, 0, len(rows))
	for _, rec := range rows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnCompletedAt < out[j].TurnCompletedAt })
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
