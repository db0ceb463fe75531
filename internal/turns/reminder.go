package turns

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/you/turnbell/internal/core"
	"github.com/you/turnbell/internal/metrics"
	"github.com/you/turnbell/internal/notify"
	"github.com/you/turnbell/internal/store"
)

// DefaultThresholdHours applies when the policy leaves the threshold unset.
const DefaultThresholdHours = 2

// Policy decides when reminders may go out. ThresholdHours is both the
// minimum wait before the first reminder and the minimum gap between
// reminders.
type Policy struct {
	Blackout       Blackout
	ThresholdHours float64
}

func (p Policy) threshold() float64 {
	if p.ThresholdHours <= 0 {
		return DefaultThresholdHours
	}
	return p.ThresholdHours
}

// Mapper resolves a player to a chat identity.
type Mapper interface {
	Lookup(player string) (string, bool)
}

// Outcome of evaluating one tracked game.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeNotDue   Outcome = "not_due"
	OutcomeCooldown Outcome = "cooldown"
	OutcomeFailed   Outcome = "failed"
)

// Summary reports one evaluator run.
type Summary struct {
	Blackout   bool `json:"blackout"`
	Considered int  `json:"considered"`
	Sent       int  `json:"sent"`
	NotDue     int  `json:"notDue"`
	Cooldown   int  `json:"cooldown"`
	Failed     int  `json:"failed"`
}

func (s *Summary) add(o Outcome) {
	s.Considered++
	switch o {
	case OutcomeSent:
		s.Sent++
	case OutcomeNotDue:
		s.NotDue++
	case OutcomeCooldown:
		s.Cooldown++
	case OutcomeFailed:
		s.Failed++
	}
}

// EvaluatorOptions configures an Evaluator. Only Store and Notifier are
// required.
type EvaluatorOptions struct {
	Store       store.Store
	Notifier    notify.Notifier
	Mapper      Mapper
	Policy      Policy
	Clock       clockwork.Clock
	Concurrency int
	SendTimeout time.Duration
	Pick        func(pool []string) string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Evaluator nags players whose turn has been pending too long.
type Evaluator struct {
	store       store.Store
	notifier    notify.Notifier
	mapper      Mapper
	policy      Policy
	clock       clockwork.Clock
	concurrency int
	sendTimeout time.Duration
	pick        func([]string) string
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewEvaluator(opts EvaluatorOptions) *Evaluator {
	e := &Evaluator{
		store:       opts.Store,
		notifier:    opts.Notifier,
		mapper:      opts.Mapper,
		policy:      opts.Policy,
		clock:       opts.Clock,
		concurrency: opts.Concurrency,
		sendTimeout: opts.SendTimeout,
		pick:        opts.Pick,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	if e.sendTimeout <= 0 {
		e.sendTimeout = 10 * time.Second
	}
	if e.pick == nil {
		e.pick = notify.Pick
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Policy returns the active policy.
func (e *Evaluator) Policy() Policy { return e.policy }

// Run evaluates every tracked game once. Only a failure to list the games
// is returned; per-game failures are counted in the summary.
func (e *Evaluator) Run(ctx context.Context) (Summary, error) {
	e.metrics.IncReminderRuns()
	now := e.clock.Now().UTC()
	var sum Summary

	if e.policy.Blackout.Active(now) {
		b := e.policy.Blackout
		e.log.Info("reminders: skipping, inside blackout period",
			"start_hour", b.StartHour, "end_hour", b.EndHour, "gmt_offset", b.GMTOffset,
			"local_hour", b.LocalHour(now))
		sum.Blackout = true
		return sum, nil
	}
	if e.notifier == nil || !configured(e.notifier) {
		e.log.Error("reminders: chat destination not configured, cannot send reminders")
		return sum, notify.ErrNotConfigured
	}

	records, err := e.store.ListTurns(ctx)
	if err != nil {
		e.metrics.IncStoreErrors("list_turns")
		return sum, errors.Wrap(err, "list active games")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, rec := range records {
		g.Go(func() error {
			o := e.evaluate(gctx, rec, now)
			mu.Lock()
			sum.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.metrics.AddReminders(string(OutcomeSent), sum.Sent)
	e.metrics.AddReminders(string(OutcomeNotDue), sum.NotDue)
	e.metrics.AddReminders(string(OutcomeCooldown), sum.Cooldown)
	e.metrics.AddReminders(string(OutcomeFailed), sum.Failed)
	e.log.Info("reminders: run complete", "considered", sum.Considered, "sent", sum.Sent,
		"not_due", sum.NotDue, "cooldown", sum.Cooldown, "failed", sum.Failed)
	return sum, nil
}

func configured(n notify.Notifier) bool {
	c, ok := n.(interface{ Configured() bool })
	return !ok || c.Configured()
}

func (e *Evaluator) evaluate(ctx context.Context, rec core.TurnRecord, now time.Time) Outcome {
	threshold := e.policy.threshold()
	log := e.log.With("key", rec.Key, "game", rec.GameName)

	hoursWaiting := 0.0
	if rec.TurnStartedAt != "" {
		started, err := ParseTimestamp(rec.TurnStartedAt)
		if err != nil {
			log.Error("reminders: bad turnStartedAt", "value", rec.TurnStartedAt, "err", err)
			return OutcomeFailed
		}
		hoursWaiting = now.Sub(started).Hours()
	}
	if hoursWaiting < threshold {
		log.Debug("reminders: not due", "hours_waiting", hoursWaiting, "threshold", threshold)
		return OutcomeNotDue
	}

	if rec.LastReminderAt != "" {
		last, err := ParseTimestamp(rec.LastReminderAt)
		if err != nil {
			log.Error("reminders: bad lastReminderAt", "value", rec.LastReminderAt, "err", err)
			return OutcomeFailed
		}
		if since := now.Sub(last).Hours(); since < threshold {
			log.Debug("reminders: cooling down", "hours_since_last", since, "threshold", threshold)
			return OutcomeCooldown
		}
	}

	chatID := rec.DiscordUserID
	if chatID == "" && e.mapper != nil {
		chatID, _ = e.mapper.Lookup(rec.SteamUsername)
	}
	msg := notify.ReminderMessage(e.notifier, notify.Reminder{
		Game:         rec.GameName,
		Player:       rec.SteamUsername,
		ChatID:       chatID,
		Round:        rec.RoundNumber,
		Number:       rec.ReminderCount + 1,
		HoursWaiting: hoursWaiting,
	}, e.pick(notify.SnarkyReminders))

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	err := e.notifier.Send(sendCtx, msg)
	cancel()
	if err != nil {
		log.Error("reminders: send failed", "player", rec.SteamUsername, "err", err)
		return OutcomeFailed
	}

	rec.LastReminderAt = FormatTimestamp(now)
	rec.ReminderCount++
	log.Info("reminders: sent", "player", rec.SteamUsername, "number", rec.ReminderCount)
	if err := e.store.UpsertTurn(ctx, rec); err != nil {
		e.metrics.IncStoreErrors("upsert_turn")
		log.Error("reminders: update reminder tracking failed", "err", err)
	}
	return OutcomeSent
}
