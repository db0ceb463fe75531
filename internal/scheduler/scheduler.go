// Package scheduler runs the reminder evaluator on a cron schedule.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/turns"
)

// DefaultSchedule fires every 15 minutes, on the minute.
const DefaultSchedule = "0 */15 * * * *"

type Runner interface {
	RunReminders(ctx context.Context) (turns.Summary, error)
}

type Options struct {
	// Schedule is a six-field cron expression (seconds first).
	Schedule string
	// Timeout bounds a single run; zero means no limit beyond ctx.
	Timeout time.Duration
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Start registers the reminder job and starts the scheduler. Runs never
// overlap: a tick that lands on a running job is skipped.
func Start(ctx context.Context, runner Runner, opts Options) (gocron.Scheduler, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s, err := gocron.NewScheduler(
		gocron.WithClock(opts.Clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: create")
	}

	job, err := s.NewJob(
		gocron.CronJob(opts.Schedule, true),
		gocron.NewTask(func() {
			runCtx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			summary, err := runner.RunReminders(runCtx)
			if err != nil {
				log.Error("scheduler: reminder run failed", "err", err)
				return
			}
			log.Info("scheduler: reminder run",
				"blackout", summary.Blackout,
				"considered", summary.Considered,
				"sent", summary.Sent,
				"not_due", summary.NotDue,
				"cooldown", summary.Cooldown,
				"failed", summary.Failed)
		}),
		gocron.WithName("reminders"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, errors.Wrapf(err, "scheduler: schedule %q", opts.Schedule)
	}

	s.Start()
	if next, err := job.NextRun(); err == nil {
		log.Info("scheduler: started", "schedule", opts.Schedule, "next_run", next)
	}
	return s, nil
}
