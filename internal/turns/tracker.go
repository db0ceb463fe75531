package turns

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/core"
	"github.com/you/turnbell/internal/metrics"
	"github.com/you/turnbell/internal/store"
)

// Transition classifies how an incoming turn relates to the stored one.
type Transition string

const (
	TransitionFirst     Transition = "first"
	TransitionDuplicate Transition = "duplicate"
	TransitionChanged   Transition = "changed"
)

// TurnUpdate is the tracker's view of one incoming turn notification.
type TurnUpdate struct {
	GameID   string
	GameName string
	Player   string
	ChatID   string // mapped chat identity, may be empty
	Round    string
}

// RecordResult describes what RecordTurn did.
type RecordResult struct {
	Key        string
	Transition Transition
	History    *core.HistoryRecord // set when a completed turn was written
	Current    core.TurnRecord
}

// TrackerOptions configures a Tracker. Clock, Metrics and Logger are optional.
type TrackerOptions struct {
	Store   store.Store
	Clock   clockwork.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Tracker maintains the Current-Turn Record of each game and closes the
// previous turn into history when the player or round changes.
type Tracker struct {
	store   store.Store
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewTracker(opts TrackerOptions) *Tracker {
	t := &Tracker{
		store:   opts.Store,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	if t.clock == nil {
		t.clock = clockwork.NewRealClock()
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// RecordTurn stores the new current turn. Store failures are logged and
// reported in the returned error, but each step is attempted regardless so
// that a broken history table never blocks tracking.
func (t *Tracker) RecordTurn(ctx context.Context, u TurnUpdate) (RecordResult, error) {
	now := t.clock.Now().UTC()
	key := GameKey(u.GameID, u.GameName)
	res := RecordResult{Key: key, Transition: TransitionFirst}
	var firstErr error

	existing, err := t.store.GetTurn(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		t.log.Info("tracker: first turn seen for game", "game", u.GameName, "key", key)
	case err != nil:
		t.metrics.IncStoreErrors("get_turn")
		t.log.Warn("tracker: read current turn failed, treating as first", "key", key, "err", err)
		firstErr = err
	case existing.SteamUsername == u.Player && existing.RoundNumber == u.Round:
		res.Transition = TransitionDuplicate
	default:
		res.Transition = TransitionChanged
		if existing.SteamUsername != "" {
			hist := t.closeTurn(existing, u, key, now)
			if err := t.store.UpsertHistory(ctx, hist); err != nil {
				t.metrics.IncStoreErrors("upsert_history")
				t.log.Error("tracker: record turn completion failed", "key", key, "err", err)
				if firstErr == nil {
					firstErr = err
				}
			} else {
				res.History = &hist
				t.logCompletion(hist)
			}
		}
	}

	cur := core.TurnRecord{
		Key:            key,
		GameName:       u.GameName,
		GameID:         u.GameID,
		SteamUsername:  u.Player,
		DiscordUserID:  u.ChatID,
		RoundNumber:    u.Round,
		TurnStartedAt:  FormatTimestamp(now),
		LastReminderAt: "",
		ReminderCount:  0,
	}
	if err := t.store.UpsertTurn(ctx, cur); err != nil {
		t.metrics.IncStoreErrors("upsert_turn")
		t.log.Error("tracker: update turn tracking failed", "key", key, "err", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		t.log.Info("tracker: turn tracked", "game", u.GameName, "player", u.Player, "round", u.Round)
	}
	res.Current = cur
	t.metrics.IncTransition(string(res.Transition))
	return res, firstErr
}

func (t *Tracker) closeTurn(prev core.TurnRecord, u TurnUpdate, key string, now time.Time) core.HistoryRecord {
	duration := core.UnknownDuration
	if prev.TurnStartedAt != "" {
		started, err := ParseTimestamp(prev.TurnStartedAt)
		if err != nil {
			t.log.Warn("tracker: could not parse turn start time", "key", key, "value", prev.TurnStartedAt, "err", err)
		} else {
			duration = int64(now.Sub(started) / time.Second)
		}
	}
	return core.HistoryRecord{
		GameKey:         key,
		RowKey:          HistoryRowKey(prev.RoundNumber, prev.SteamUsername),
		GameName:        u.GameName,
		GameID:          u.GameID,
		SteamUsername:   prev.SteamUsername,
		RoundNumber:     prev.RoundNumber,
		TurnStartedAt:   prev.TurnStartedAt,
		TurnCompletedAt: FormatTimestamp(now),
		DurationSeconds: duration,
	}
}

func (t *Tracker) logCompletion(h core.HistoryRecord) {
	if h.DurationSeconds < 0 {
		t.log.Info("tracker: turn completed", "game", h.GameName, "player", h.SteamUsername,
			"round", h.RoundNumber, "duration", "unknown")
		return
	}
	d := time.Duration(h.DurationSeconds) * time.Second
	t.log.Info("tracker: turn completed", "game", h.GameName, "player", h.SteamUsername,
		"round", h.RoundNumber, "duration", d.String())
}

// RemoveGame stops tracking a game.
func (t *Tracker) RemoveGame(ctx context.Context, key string) error {
	if err := t.store.DeleteTurn(ctx, key); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.metrics.IncStoreErrors("delete_turn")
		}
		return err
	}
	t.log.Info("tracker: removed game tracking", "key", key)
	return nil
}
