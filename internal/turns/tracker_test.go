package turns

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker(st *flakyStore) (*Tracker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(t0)
	return NewTracker(TrackerOptions{Store: st, Clock: clock}), clock
}

func TestRecordTurnFirstObservation(t *testing.T) {
	st := newFlakyStore()
	tr, _ := newTestTracker(st)
	ctx := context.Background()

	res, err := tr.RecordTurn(ctx, TurnUpdate{GameID: "g1", GameName: "Alpha", Player: "bob", ChatID: "11", Round: "1"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.Transition != TransitionFirst || res.History != nil {
		t.Fatalf("unexpected result %+v", res)
	}

	rec, err := st.GetTurn(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SteamUsername != "bob" || rec.DiscordUserID != "11" || rec.RoundNumber != "1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.TurnStartedAt != "2024-05-01T12:00:00+00:00" || rec.LastReminderAt != "" || rec.ReminderCount != 0 {
		t.Fatalf("unexpected timing fields %+v", rec)
	}
	if h, _ := st.ListHistory(ctx, "g1"); len(h) != 0 {
		t.Fatalf("expected no history, got %v", h)
	}
}

func TestRecordTurnChangeWritesHistory(t *testing.T) {
	st := newFlakyStore()
	tr, clock := newTestTracker(st)
	ctx := context.Background()

	if _, err := tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "bob", Round: "5"}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	res, err := tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "carol", Round: "5"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Transition != TransitionChanged || res.History == nil {
		t.Fatalf("expected history to be written, got %+v", res)
	}

	hist, err := st.ListHistory(ctx, "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(hist))
	}
	h := hist[0]
	if h.RowKey != "5_bob" || h.SteamUsername != "bob" || h.DurationSeconds != 3600 {
		t.Fatalf("unexpected history %+v", h)
	}
	if h.TurnStartedAt != "2024-05-01T12:00:00+00:00" || h.TurnCompletedAt != "2024-05-01T13:00:00+00:00" {
		t.Fatalf("unexpected history times %+v", h)
	}

	cur, _ := st.GetTurn(ctx, "Alpha")
	if cur.SteamUsername != "carol" || cur.TurnStartedAt != "2024-05-01T13:00:00+00:00" {
		t.Fatalf("current turn not replaced: %+v", cur)
	}
}

func TestRecordTurnRoundChangeSamePlayer(t *testing.T) {
	st := newFlakyStore()
	tr, clock := newTestTracker(st)
	ctx := context.Background()

	_, _ = tr.RecordTurn(ctx, TurnUpdate{GameName: "Solo", Player: "bob", Round: "1"})
	clock.Advance(90 * time.Second)
	res, _ := tr.RecordTurn(ctx, TurnUpdate{GameName: "Solo", Player: "bob", Round: "2"})
	if res.History == nil || res.History.RowKey != "1_bob" || res.History.DurationSeconds != 90 {
		t.Fatalf("unexpected result %+v", res.History)
	}
}

func TestRecordTurnDuplicateResetsStart(t *testing.T) {
	st := newFlakyStore()
	tr, clock := newTestTracker(st)
	ctx := context.Background()

	_, _ = tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "bob", Round: "2"})
	rec, _ := st.GetTurn(ctx, "Alpha")
	rec.ReminderCount = 4
	rec.LastReminderAt = "2024-05-01T12:30:00+00:00"
	_ = st.UpsertTurn(ctx, rec)

	clock.Advance(2 * time.Hour)
	res, err := tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "bob", Round: "2"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Transition != TransitionDuplicate || res.History != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	cur, _ := st.GetTurn(ctx, "Alpha")
	if cur.TurnStartedAt != "2024-05-01T14:00:00+00:00" || cur.ReminderCount != 0 || cur.LastReminderAt != "" {
		t.Fatalf("duplicate should reset tracking fields: %+v", cur)
	}
	if h, _ := st.ListHistory(ctx, "Alpha"); len(h) != 0 {
		t.Fatalf("duplicate wrote history: %v", h)
	}
}

func TestRecordTurnUnknownDuration(t *testing.T) {
	for _, started := range []string{"", "not a time"} {
		st := newFlakyStore()
		tr, _ := newTestTracker(st)
		ctx := context.Background()
		_ = st.UpsertTurn(ctx, coreTurn("Beta", "dave", "7", started))

		res, err := tr.RecordTurn(ctx, TurnUpdate{GameName: "Beta", Player: "erin", Round: "7"})
		if err != nil {
			t.Fatal(err)
		}
		if res.History == nil || res.History.DurationSeconds != -1 {
			t.Fatalf("start %q: expected unknown duration, got %+v", started, res.History)
		}
		if res.History.TurnStartedAt != started {
			t.Fatalf("start %q: history should keep stored start, got %q", started, res.History.TurnStartedAt)
		}
	}
}

func TestRecordTurnEmptyPreviousPlayerSkipsHistory(t *testing.T) {
	st := newFlakyStore()
	tr, _ := newTestTracker(st)
	ctx := context.Background()
	_ = st.UpsertTurn(ctx, coreTurn("Gamma", "", "1", "2024-05-01T10:00:00+00:00"))

	res, _ := tr.RecordTurn(ctx, TurnUpdate{GameName: "Gamma", Player: "bob", Round: "2"})
	if res.History != nil {
		t.Fatalf("expected no history for empty previous player, got %+v", res.History)
	}
}

func TestRecordTurnStoreErrorsAreNotFatal(t *testing.T) {
	st := newFlakyStore()
	tr, clock := newTestTracker(st)
	ctx := context.Background()
	_, _ = tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "bob", Round: "1"})

	st.failHistory = true
	clock.Advance(time.Minute)
	res, err := tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "carol", Round: "1"})
	if err == nil {
		t.Fatal("expected history error to be reported")
	}
	if res.History != nil {
		t.Fatal("history should not be reported as written")
	}
	cur, _ := st.GetTurn(ctx, "Alpha")
	if cur.SteamUsername != "carol" {
		t.Fatalf("current turn should still be updated, got %+v", cur)
	}

	st.failHistory = false
	st.failGet = true
	if _, err := tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "dave", Round: "2"}); err == nil {
		t.Fatal("expected read error to be reported")
	}
	st.failGet = false
	cur, _ = st.GetTurn(ctx, "Alpha")
	if cur.SteamUsername != "dave" {
		t.Fatalf("read failure should fall through to upsert, got %+v", cur)
	}
}

func TestRemoveGame(t *testing.T) {
	st := newFlakyStore()
	tr, _ := newTestTracker(st)
	ctx := context.Background()
	_, _ = tr.RecordTurn(ctx, TurnUpdate{GameName: "Alpha", Player: "bob", Round: "1"})

	if err := tr.RemoveGame(ctx, "Alpha"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := tr.RemoveGame(ctx, "Alpha"); err == nil {
		t.Fatal("expected error removing untracked game")
	}
}
