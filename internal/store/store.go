// Package store persists Current-Turn and Turn-History records.
package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/core"
)

// Table names double as the partition key of the current-turn table.
const (
	TableActiveGames = "activegames"
	TableTurnHistory = "turnhistory"
)

// ErrNotFound is returned by GetTurn when no record exists for the key.
var ErrNotFound = errors.New("store: record not found")

// Store is the key-value surface the turn tracker and reminder evaluator
// depend on. Keys are already sanitized by the caller.
type Store interface {
	GetTurn(ctx context.Context, key string) (core.TurnRecord, error)
	UpsertTurn(ctx context.Context, rec core.TurnRecord) error
	DeleteTurn(ctx context.Context, key string) error
	ListTurns(ctx context.Context) ([]core.TurnRecord, error)

	UpsertHistory(ctx context.Context, rec core.HistoryRecord) error
	ListHistory(ctx context.Context, gameKey string) ([]core.HistoryRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
