package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/you/turnbell/internal/core"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "turns.db"), SQLiteOptions{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteGetTurnMissing(t *testing.T) {
	s := openTestSQLite(t)
	_, err := s.GetTurn(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteUpsertTurnOverwrites(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	first := core.TurnRecord{
		Key:           "game-1",
		GameName:      "Alpha",
		GameID:        "game-1",
		SteamUsername: "bob",
		RoundNumber:   "1",
		TurnStartedAt: "2024-05-01T10:00:00+00:00",
		ReminderCount: 3,
	}
	if err := s.UpsertTurn(ctx, first); err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	second := first
	second.SteamUsername = "carol"
	second.RoundNumber = "2"
	second.DiscordUserID = "42"
	second.ReminderCount = 0
	if err := s.UpsertTurn(ctx, second); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	got, err := s.GetTurn(ctx, "game-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != second {
		t.Fatalf("record mismatch:\n got %+v\nwant %+v", got, second)
	}

	all, err := s.ListTurns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one record per game, got %d", len(all))
	}
}

func TestSQLiteDeleteTurn(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.UpsertTurn(ctx, core.TurnRecord{Key: "k", GameName: "K"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeleteTurn(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTurn(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := s.GetTurn(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}
}

func TestSQLiteHistoryUpsertIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rec := core.HistoryRecord{
		GameKey:         "game-1",
		RowKey:          "1_bob",
		GameName:        "Alpha",
		SteamUsername:   "bob",
		RoundNumber:     "1",
		TurnStartedAt:   "2024-05-01T10:00:00+00:00",
		TurnCompletedAt: "2024-05-01T11:00:00+00:00",
		DurationSeconds: 3600,
	}
	if err := s.UpsertHistory(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.TurnCompletedAt = "2024-05-01T11:05:00+00:00"
	rec.DurationSeconds = 3900
	if err := s.UpsertHistory(ctx, rec); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	other := rec
	other.GameKey = "game-2"
	if err := s.UpsertHistory(ctx, other); err != nil {
		t.Fatalf("upsert other game: %v", err)
	}

	list, err := s.ListHistory(ctx, "game-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one history row, got %d", len(list))
	}
	if list[0] != rec {
		t.Fatalf("history mismatch:\n got %+v\nwant %+v", list[0], rec)
	}
}

func TestSQLiteUnknownDurationRoundTrips(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	rec := core.HistoryRecord{GameKey: "g", RowKey: "3_ann", DurationSeconds: core.UnknownDuration}
	if err := s.UpsertHistory(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	list, err := s.ListHistory(ctx, "g")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].DurationSeconds != -1 {
		t.Fatalf("expected unknown duration sentinel, got %+v", list)
	}
}
