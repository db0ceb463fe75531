package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// basePragmas are always applied. A webhook and a reminder tick can write at
// the same time, so writers wait on the lock instead of failing fast.
func basePragmas(busy time.Duration) []string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", busy.Milliseconds()),
	}
}

// tuningPragmas are applied only when SQLiteOptions.Tuning is set.
var tuningPragmas = []string{
	"PRAGMA wal_autocheckpoint=1000;",
	"PRAGMA temp_store=MEMORY;",
	"PRAGMA mmap_size=268435456;",
}

func applySQLitePragmas(ctx context.Context, db *sql.DB, opts SQLiteOptions) error {
	for _, pragma := range basePragmas(opts.BusyTimeout) {
		if _, err := applyPragma(ctx, db, pragma); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if !opts.Tuning {
		return nil
	}
	for _, pragma := range tuningPragmas {
		value, err := applyPragma(ctx, db, pragma)
		if err != nil {
			slog.Warn("store: sqlite tuning pragma failed", "pragma", pragma, "err", err)
			continue
		}
		slog.Debug("store: sqlite tuning pragma", "pragma", pragma, "value", value)
	}
	return nil
}

func applyPragma(ctx context.Context, db *sql.DB, pragma string) (any, error) {
	row := db.QueryRowContext(ctx, pragma)
	var value any
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				return nil, execErr
			}
			return "ok", nil
		}
		return nil, err
	}
	return value, nil
}
