package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/config"
	"github.com/you/turnbell/internal/identity"
	"github.com/you/turnbell/internal/metrics"
	"github.com/you/turnbell/internal/notify"
	"github.com/you/turnbell/internal/secret"
	"github.com/you/turnbell/internal/service"
	"github.com/you/turnbell/internal/store"
	"github.com/you/turnbell/internal/turns"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	store    store.Store
	mapper   *identity.Mapper
	notifier notify.Notifier
	svc      *service.Service
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	m := metrics.New()
	mapper := identity.FromEnv(cfg.Mapping.Inline, cfg.Mapping.File, log)
	tracker := turns.NewTracker(turns.TrackerOptions{
		Store:   st,
		Metrics: m,
		Logger:  log,
	})
	evaluator := turns.NewEvaluator(turns.EvaluatorOptions{
		Store:       st,
		Notifier:    notifier,
		Mapper:      mapper,
		Policy:      cfg.Policy,
		Concurrency: cfg.Reminders.Concurrency,
		SendTimeout: cfg.Chat.Timeout,
		Metrics:     m,
		Logger:      log,
	})
	svc := service.New(service.Options{
		Store:       st,
		Tracker:     tracker,
		Evaluator:   evaluator,
		Notifier:    notifier,
		Mapper:      mapper,
		Metrics:     m,
		SendTimeout: cfg.Chat.Timeout,
		Logger:      log,
	})

	log.Info("app: ready",
		"store", cfg.Store.Backend,
		"notifier", notifier.Name(),
		"mapped_players", mapper.Len(),
		"threshold_hours", cfg.Policy.ThresholdHours,
		"blackout", cfg.Policy.Blackout.Enabled,
		"policy_source", string(cfg.PolicySource))

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		store:    st,
		mapper:   mapper,
		notifier: notifier,
		svc:      svc,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("app: close store", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		log.Warn("store: using in-memory store; state is lost on exit")
		return store.NewMemory(), nil
	case config.StoreRedis:
		st, err := store.OpenRedis(ctx, store.RedisOptions{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Prefix:   cfg.Store.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := store.OpenSQLite(cfg.Store.SQLitePath, store.SQLiteOptions{Tuning: cfg.Store.SQLiteTuning})
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		if err := migrateSQLite(ctx, st.RawDB(), log); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	}
}

func buildNotifier(cfg config.Config) (notify.Notifier, error) {
	client := &http.Client{Timeout: cfg.Chat.Timeout}
	if cfg.Chat.Notifier == config.NotifierTelegram {
		token, err := secret.Source(cfg.Chat.TelegramToken, cfg.Chat.TelegramTokenFile)()
		if err != nil {
			return nil, errors.Wrap(err, "telegram token")
		}
		tg, err := notify.NewTelegram(notify.TelegramOptions{
			Token:  token,
			ChatID: cfg.Chat.TelegramChatID,
			Client: client,
		})
		if err != nil {
			return nil, errors.Wrap(err, "telegram notifier")
		}
		return tg, nil
	}
	// The webhook URL is read per send so a rotated file takes effect live.
	url := secret.Source(cfg.Chat.WebhookURL, cfg.Chat.WebhookURLFile)
	return notify.NewDiscord(notify.URLSource(url), client, cfg.Chat.Timeout), nil
}
