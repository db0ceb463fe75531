package turns

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/you/turnbell/internal/notify"
)

type evalFixture struct {
	store    *flakyStore
	notifier *fakeNotifier
	clock    *clockwork.FakeClock
	eval     *Evaluator
}

func newEvalFixture(policy Policy, mapper Mapper) *evalFixture {
	f := &evalFixture{
		store:    newFlakyStore(),
		notifier: &fakeNotifier{},
		clock:    clockwork.NewFakeClockAt(t0),
	}
	f.eval = NewEvaluator(EvaluatorOptions{
		Store:    f.store,
		Notifier: f.notifier,
		Mapper:   mapper,
		Policy:   policy,
		Clock:    f.clock,
		Pick:     firstLine,
	})
	return f
}

func (f *evalFixture) run(t *testing.T) Summary {
	t.Helper()
	sum, err := f.eval.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return sum
}

func TestReminderCadence(t *testing.T) {
	f := newEvalFixture(Policy{ThresholdHours: 2}, nil)
	ctx := context.Background()
	rec := coreTurn("Alpha", "bob", "4", FormatTimestamp(t0.Add(-3*time.Hour)))
	rec.DiscordUserID = "42"
	_ = f.store.UpsertTurn(ctx, rec)

	sum := f.run(t)
	if sum.Sent != 1 || sum.Considered != 1 {
		t.Fatalf("first run: %+v", sum)
	}
	msgs := f.notifier.messages()
	want := "⏰ <@42> - Reminder #1: Your turn in \"Alpha\" (Round 4) has been waiting for 3.0 hours.\n\n" + notify.SnarkyReminders[0]
	if msgs[0] != want {
		t.Fatalf("message:\n got %q\nwant %q", msgs[0], want)
	}
	got, _ := f.store.GetTurn(ctx, "Alpha")
	if got.ReminderCount != 1 || got.LastReminderAt != FormatTimestamp(t0) {
		t.Fatalf("tracking not updated: %+v", got)
	}

	// Immediately again: cooldown.
	if sum := f.run(t); sum.Sent != 0 || sum.Cooldown != 1 {
		t.Fatalf("second run: %+v", sum)
	}

	f.clock.Advance(time.Hour + 59*time.Minute)
	if sum := f.run(t); sum.Sent != 0 || sum.Cooldown != 1 {
		t.Fatalf("just under cooldown: %+v", sum)
	}

	f.clock.Advance(time.Minute)
	if sum := f.run(t); sum.Sent != 1 {
		t.Fatalf("after cooldown: %+v", sum)
	}
	got, _ = f.store.GetTurn(ctx, "Alpha")
	if got.ReminderCount != 2 {
		t.Fatalf("expected count 2, got %d", got.ReminderCount)
	}
	if msgs := f.notifier.messages(); !strings.Contains(msgs[1], "Reminder #2") || !strings.Contains(msgs[1], "5.0 hours") {
		t.Fatalf("unexpected second reminder %q", msgs[1])
	}
}

func TestReminderNotDue(t *testing.T) {
	f := newEvalFixture(Policy{ThresholdHours: 2}, nil)
	ctx := context.Background()
	_ = f.store.UpsertTurn(ctx, coreTurn("Fresh", "bob", "1", FormatTimestamp(t0.Add(-119*time.Minute))))
	_ = f.store.UpsertTurn(ctx, coreTurn("NoStart", "bob", "1", ""))

	sum := f.run(t)
	if sum.NotDue != 2 || sum.Sent != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if n := len(f.notifier.messages()); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
}

func TestReminderFallbackUsesMapperThenEveryone(t *testing.T) {
	f := newEvalFixture(Policy{ThresholdHours: 2}, mapMapper{"carol": "77"})
	ctx := context.Background()
	old := FormatTimestamp(t0.Add(-150 * time.Minute))
	_ = f.store.UpsertTurn(ctx, coreTurn("A-mapped", "carol", "2", old))
	_ = f.store.UpsertTurn(ctx, coreTurn("B-unmapped", "zed", "9", old))

	sum := f.run(t)
	if sum.Sent != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	var mapped, unmapped string
	for _, m := range f.notifier.messages() {
		if strings.Contains(m, "A-mapped") {
			mapped = m
		} else {
			unmapped = m
		}
	}
	if !strings.HasPrefix(mapped, "⏰ <@77> - Reminder #1: Your turn in \"A-mapped\"") {
		t.Fatalf("mapped message %q", mapped)
	}
	if !strings.HasPrefix(unmapped, "⏰ @everyone - Reminder #1: **zed**'s turn in \"B-unmapped\" (Round 9) has been waiting for 2.5 hours.") {
		t.Fatalf("unmapped message %q", unmapped)
	}
}

func TestReminderBlackoutSkipsStore(t *testing.T) {
	policy := Policy{
		ThresholdHours: 2,
		Blackout:       Blackout{Enabled: true, StartHour: 22, EndHour: 6, GMTOffset: -5},
	}
	f := newEvalFixture(policy, nil)
	f.clock = clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 4, 0, 0, 0, time.UTC))
	f.eval.clock = f.clock
	f.store.failList = true

	sum, err := f.eval.Run(context.Background())
	if err != nil {
		t.Fatalf("blackout run should not touch the store: %v", err)
	}
	if !sum.Blackout {
		t.Fatalf("expected blackout summary, got %+v", sum)
	}

	f.eval.clock = clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)) // 21:00 local
	if _, err := f.eval.Run(context.Background()); err == nil {
		t.Fatal("outside blackout the store should be listed")
	}
}

func TestReminderFailuresAreIsolated(t *testing.T) {
	f := newEvalFixture(Policy{ThresholdHours: 2}, nil)
	ctx := context.Background()
	old := FormatTimestamp(t0.Add(-5 * time.Hour))
	_ = f.store.UpsertTurn(ctx, coreTurn("A", "ann", "1", "garbage"))
	_ = f.store.UpsertTurn(ctx, coreTurn("B", "ben", "1", old))
	bad := coreTurn("C", "cat", "1", old)
	bad.LastReminderAt = "garbage"
	_ = f.store.UpsertTurn(ctx, bad)
	_ = f.store.UpsertTurn(ctx, coreTurn("D", "dan", "1", old))
	f.notifier.failOn = func(text string) bool { return strings.Contains(text, "**ben**") }

	sum := f.run(t)
	if sum.Considered != 4 || sum.Failed != 3 || sum.Sent != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	ben, _ := f.store.GetTurn(ctx, "B")
	if ben.ReminderCount != 0 || ben.LastReminderAt != "" {
		t.Fatalf("failed send must leave record untouched: %+v", ben)
	}
	dan, _ := f.store.GetTurn(ctx, "D")
	if dan.ReminderCount != 1 {
		t.Fatalf("healthy record should be reminded: %+v", dan)
	}
}

func TestReminderUpsertFailureStillCountsSend(t *testing.T) {
	f := newEvalFixture(Policy{}, nil)
	ctx := context.Background()
	_ = f.store.UpsertTurn(ctx, coreTurn("A", "ann", "1", FormatTimestamp(t0.Add(-3*time.Hour))))
	f.store.failUpsert = true

	sum := f.run(t)
	if sum.Sent != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestReminderConcurrentRun(t *testing.T) {
	f := newEvalFixture(Policy{ThresholdHours: 1}, nil)
	f.eval.concurrency = 4
	ctx := context.Background()
	old := FormatTimestamp(t0.Add(-90 * time.Minute))
	keys := []string{"a", "b", "c", "d", "e", "f"}
	for _, k := range keys {
		_ = f.store.UpsertTurn(ctx, coreTurn(k, "p"+k, "1", old))
	}
	f.store.upsertCounts()
	if sum := f.run(t); sum.Sent != 6 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	counts := f.store.upsertCounts()
	if len(counts) != len(keys) {
		t.Fatalf("upserted %d records, want %d: %v", len(counts), len(keys), counts)
	}
	for _, k := range keys {
		if counts[k] != 1 {
			t.Fatalf("record %q upserted %d times, want 1", k, counts[k])
		}
		rec, err := f.store.GetTurn(ctx, k)
		if err != nil || rec.ReminderCount != 1 {
			t.Fatalf("record %q: %+v err=%v", k, rec, err)
		}
	}
	if got := len(f.notifier.messages()); got != 6 {
		t.Fatalf("sent %d messages, want 6", got)
	}
}

func TestReminderNotConfigured(t *testing.T) {
	e := NewEvaluator(EvaluatorOptions{
		Store:    newFlakyStore(),
		Notifier: notify.NewDiscord(notify.StaticURL(""), nil, 0),
		Clock:    clockwork.NewFakeClockAt(t0),
	})
	if _, err := e.Run(context.Background()); !errors.Is(err, notify.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
