// Package service ties the tracker, the reminder evaluator, the identity
// mapping and the chat notifier together behind the operations the HTTP
// handlers and the CLI call.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/core"
	"github.com/you/turnbell/internal/identity"
	"github.com/you/turnbell/internal/metrics"
	"github.com/you/turnbell/internal/notify"
	"github.com/you/turnbell/internal/store"
	"github.com/you/turnbell/internal/turns"
)

// Publisher receives tracked turns for live subscribers.
type Publisher interface {
	Publish(core.TurnNotice)
}

type Options struct {
	Store       store.Store
	Tracker     *turns.Tracker
	Evaluator   *turns.Evaluator
	Notifier    notify.Notifier
	Mapper      *identity.Mapper
	Metrics     *metrics.Metrics
	SendTimeout time.Duration
	Pick        func(pool []string) string
	Logger      *slog.Logger
}

type Service struct {
	store       store.Store
	tracker     *turns.Tracker
	evaluator   *turns.Evaluator
	notifier    notify.Notifier
	mapper      *identity.Mapper
	metrics     *metrics.Metrics
	sendTimeout time.Duration
	pick        func([]string) string
	log         *slog.Logger

	mu  sync.Mutex
	pub Publisher
}

func New(opts Options) *Service {
	s := &Service{
		store:       opts.Store,
		tracker:     opts.Tracker,
		evaluator:   opts.Evaluator,
		notifier:    opts.Notifier,
		mapper:      opts.Mapper,
		metrics:     opts.Metrics,
		sendTimeout: opts.SendTimeout,
		pick:        opts.Pick,
		log:         opts.Logger,
	}
	if s.sendTimeout <= 0 {
		s.sendTimeout = 10 * time.Second
	}
	if s.pick == nil {
		s.pick = notify.Pick
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.mapper == nil {
		s.mapper = identity.New(nil, "", s.log)
	}
	return s
}

func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.pub = p
	s.mu.Unlock()
}

func (s *Service) publisher() Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pub
}

// Delivery is what HandleTurn did with one turn event.
type Delivery struct {
	Key        string
	Transition turns.Transition
	ChatID     string
	Message    string
}

// HandleTurn maps the player, records the turn and announces it. Tracking
// failures are logged and never block the announcement; the returned error
// is the chat send result only.
func (s *Service) HandleTurn(ctx context.Context, ev core.TurnEvent, deliveryID string) (Delivery, error) {
	chatID, ok := s.mapper.Lookup(ev.UserName)
	if !ok {
		s.log.Warn("webhook: no chat mapping for player", "player", ev.UserName)
	}

	res, err := s.tracker.RecordTurn(ctx, turns.TurnUpdate{
		GameID:   ev.GameID,
		GameName: ev.GameName,
		Player:   ev.UserName,
		ChatID:   chatID,
		Round:    ev.Round,
	})
	if err != nil {
		s.log.Error("webhook: turn tracking incomplete", "game", ev.GameName, "err", err)
	}

	msg := notify.TurnMessage(s.notifier, notify.Turn{
		Game:   ev.GameName,
		Player: ev.UserName,
		ChatID: chatID,
		Round:  ev.Round,
		Civ:    ev.CivName,
		Leader: ev.LeaderName,
	}, s.pick(notify.Admonishments))
	d := Delivery{Key: res.Key, Transition: res.Transition, ChatID: chatID, Message: msg}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	sendErr := s.notifier.Send(sendCtx, msg)
	cancel()

	if p := s.publisher(); p != nil {
		p.Publish(core.TurnNotice{
			DeliveryID: deliveryID,
			GameKey:    res.Key,
			GameName:   ev.GameName,
			Player:     ev.UserName,
			Mapped:     chatID != "",
			Round:      ev.Round,
			CivName:    ev.CivName,
			LeaderName: ev.LeaderName,
			Transition: string(res.Transition),
			StartedAt:  res.Current.TurnStartedAt,
			Delivered:  sendErr == nil,
		})
	}

	if sendErr != nil {
		s.metrics.IncWebhook(outcomeFor(sendErr))
		return d, sendErr
	}
	s.metrics.IncWebhook("sent")
	s.log.Info("webhook: posted turn", "notifier", s.notifier.Name(), "game", ev.GameName, "player", ev.UserName)
	return d, nil
}

func outcomeFor(err error) string {
	var se *notify.StatusError
	switch {
	case errors.Is(err, notify.ErrNotConfigured):
		return "not_configured"
	case errors.As(err, &se):
		return "rejected"
	default:
		return "unreachable"
	}
}

// RunReminders runs the evaluator once.
func (s *Service) RunReminders(ctx context.Context) (turns.Summary, error) {
	if s.evaluator == nil {
		return turns.Summary{}, errors.New("reminder evaluator unavailable")
	}
	return s.evaluator.Run(ctx)
}

// ReloadMapping re-reads the identity mapping file.
func (s *Service) ReloadMapping() (int, error) {
	if s.mapper.Path() == "" {
		return s.mapper.Len(), errors.New("mapping file not configured")
	}
	return s.mapper.Reload()
}

// RemoveGame stops tracking a game by its storage key.
func (s *Service) RemoveGame(ctx context.Context, key string) error {
	return s.tracker.RemoveGame(ctx, turns.SanitizeKey(key))
}

func (s *Service) ActiveGames(ctx context.Context) ([]core.TurnRecord, error) {
	return s.store.ListTurns(ctx)
}

func (s *Service) History(ctx context.Context, key string) ([]core.HistoryRecord, error) {
	return s.store.ListHistory(ctx, turns.SanitizeKey(key))
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
