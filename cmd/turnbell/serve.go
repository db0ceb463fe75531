package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"

	"github.com/you/turnbell/internal/config"
	httpadmin "github.com/you/turnbell/internal/http"
	"github.com/you/turnbell/internal/httpapi"
	"github.com/you/turnbell/internal/scheduler"
	"github.com/you/turnbell/internal/version"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr      string
		schedule  string
		noRemind  bool
		accessLog bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver, the API and the reminder schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("schedule") {
				cfg.Reminders.Schedule = schedule
			}
			if cmd.Flags().Changed("no-reminders") {
				cfg.Reminders.Enabled = !noRemind
			}
			if cmd.Flags().Changed("access-log") {
				cfg.HTTP.AccessLog = accessLog
			}
			return serve(cmd.Context(), cfg, root)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides TURNBELL_HTTP_ADDR)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "six-field cron schedule for reminders (overrides TURNBELL_REMINDER_SCHEDULE)")
	cmd.Flags().BoolVar(&noRemind, "no-reminders", false, "do not schedule reminder runs")
	cmd.Flags().BoolVar(&accessLog, "access-log", false, "log every HTTP request")
	return cmd
}

func serve(parent context.Context, cfg config.Config, root *rootOptions) error {
	log := root.log
	log.Info("turnbell: starting", "version", version.Version, "commit", version.Commit)
	log.Info("turnbell: config", "summary", string(cfg.SummaryJSON()))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	api := httpapi.New(a.svc, httpapi.Options{
		Addr:            cfg.HTTP.Addr,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		RateLimitRPS:    cfg.HTTP.RateRPS,
		RateLimitBurst:  cfg.HTTP.RateBurst,
		EnableMetrics:   cfg.HTTP.Metrics,
		EnableAccessLog: cfg.HTTP.AccessLog,
		Build:           buildInfo(),
		ConfigSnapshot:  cfg.Redacted(),
		Metrics:         a.metrics,
		Logger:          log,
	})
	a.svc.SetPublisher(api)
	httpadmin.New(a.svc, cfg.HTTP.AdminToken).Register(api.Mux())

	if err := a.mapper.Watch(ctx); err != nil {
		log.Warn("turnbell: mapping file watch disabled", "path", a.mapper.Path(), "err", err)
	}

	var sched gocron.Scheduler
	if cfg.Reminders.Enabled {
		sched, err = scheduler.Start(ctx, a.svc, scheduler.Options{
			Schedule: cfg.Reminders.Schedule,
			Timeout:  10 * time.Minute,
			Logger:   log,
		})
		if err != nil {
			return err
		}
	} else {
		log.Info("turnbell: reminder schedule disabled")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- api.Start() }()

	select {
	case <-ctx.Done():
		log.Info("turnbell: shutting down")
	case err = <-errCh:
		if err != nil {
			log.Error("turnbell: http server failed", "err", err)
		}
	}

	if sched != nil {
		if serr := sched.Shutdown(); serr != nil {
			log.Warn("turnbell: scheduler shutdown", "err", serr)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := api.Shutdown(shutdownCtx); serr != nil {
		log.Warn("turnbell: http shutdown", "err", serr)
	}
	return err
}

func buildInfo() httpapi.BuildInfo {
	info := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
		info.BuiltAt = t
	}
	return info
}
