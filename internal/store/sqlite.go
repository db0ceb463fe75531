package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/core"
)

const schema = `CREATE TABLE IF NOT EXISTS activegames (
  PartitionKey TEXT NOT NULL,
  RowKey TEXT NOT NULL,
  gameName TEXT NOT NULL DEFAULT '',
  gameId TEXT NOT NULL DEFAULT '',
  steamUsername TEXT NOT NULL DEFAULT '',
  discordUserId TEXT NOT NULL DEFAULT '',
  roundNumber TEXT NOT NULL DEFAULT '',
  turnStartedAt TEXT NOT NULL DEFAULT '',
  lastReminderAt TEXT NOT NULL DEFAULT '',
  reminderCount INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (PartitionKey, RowKey)
);
CREATE TABLE IF NOT EXISTS turnhistory (
  PartitionKey TEXT NOT NULL,
  RowKey TEXT NOT NULL,
  gameName TEXT NOT NULL DEFAULT '',
  gameId TEXT NOT NULL DEFAULT '',
  steamUsername TEXT NOT NULL DEFAULT '',
  roundNumber TEXT NOT NULL DEFAULT '',
  turnStartedAt TEXT NOT NULL DEFAULT '',
  turnCompletedAt TEXT NOT NULL DEFAULT '',
  durationSeconds INTEGER NOT NULL DEFAULT -1,
  PRIMARY KEY (PartitionKey, RowKey)
);`

// SQLiteOptions tunes the SQLite backend.
type SQLiteOptions struct {
	BusyTimeout time.Duration
	Tuning      bool
}

// SQLiteStore keeps both tables in one SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One writer at a time keeps read-modify-write sequences from a single
	// process serialized.
	db.SetMaxOpenConns(1)
	if err := applySQLitePragmas(context.Background(), db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &SQLiteStore{db: db}, nil
}

// RawDB exposes the handle for migrations.
func (s *SQLiteStore) RawDB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping sqlite")
}

func (s *SQLiteStore) String() string {
	return fmt.Sprintf("SQLiteStore{%p}", s.db)
}

const turnColumns = `RowKey, gameName, gameId, steamUsername, discordUserId, roundNumber, turnStartedAt, lastReminderAt, reminderCount`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (core.TurnRecord, error) {
	var rec core.TurnRecord
	err := row.Scan(&rec.Key, &rec.GameName, &rec.GameID, &rec.SteamUsername, &rec.DiscordUserID,
		&rec.RoundNumber, &rec.TurnStartedAt, &rec.LastReminderAt, &rec.ReminderCount)
	return rec, err
}

func (s *SQLiteStore) GetTurn(ctx context.Context, key string) (core.TurnRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+turnColumns+` FROM activegames WHERE PartitionKey = ? AND RowKey = ?;`,
		TableActiveGames, key)
	rec, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TurnRecord{}, ErrNotFound
	}
	if err != nil {
		return core.TurnRecord{}, errors.Wrap(err, "get turn")
	}
	return rec, nil
}

func (s *SQLiteStore) UpsertTurn(ctx context.Context, rec core.TurnRecord) error {
	const q = `INSERT INTO activegames (PartitionKey, ` + turnColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(PartitionKey, RowKey) DO UPDATE SET
  gameName=excluded.gameName,
  gameId=excluded.gameId,
  steamUsername=excluded.steamUsername,
  discordUserId=excluded.discordUserId,
  roundNumber=excluded.roundNumber,
  turnStartedAt=excluded.turnStartedAt,
  lastReminderAt=excluded.lastReminderAt,
  reminderCount=excluded.reminderCount;`
	_, err := s.db.ExecContext(ctx, q, TableActiveGames, rec.Key, rec.GameName, rec.GameID,
		rec.SteamUsername, rec.DiscordUserID, rec.RoundNumber, rec.TurnStartedAt,
		rec.LastReminderAt, rec.ReminderCount)
	return errors.Wrap(err, "upsert turn")
}

func (s *SQLiteStore) DeleteTurn(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM activegames WHERE PartitionKey = ? AND RowKey = ?;`, TableActiveGames, key)
	if err != nil {
		return errors.Wrap(err, "delete turn")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context) ([]core.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM activegames WHERE PartitionKey = ?;`, TableActiveGames)
	if err != nil {
		return nil, errors.Wrap(err, "list turns")
	}
	defer rows.Close()

	var out []core.TurnRecord
	for rows.Next() {
		rec, err := scanTurn(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan turn")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate turns")
	}
	return out, nil
}

func (s *SQLiteStore) UpsertHistory(ctx context.Context, rec core.HistoryRecord) error {
	const q = `INSERT INTO turnhistory (PartitionKey, RowKey, gameName, gameId, steamUsername, roundNumber, turnStartedAt, turnCompletedAt, durationSeconds)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(PartitionKey, RowKey) DO UPDATE SET
  gameName=excluded.gameName,
  gameId=excluded.gameId,
  steamUsername=excluded.steamUsername,
  roundNumber=excluded.roundNumber,
  turnStartedAt=excluded.turnStartedAt,
  turnCompletedAt=excluded.turnCompletedAt,
  durationSeconds=excluded.durationSeconds;`
	_, err := s.db.ExecContext(ctx, q, rec.GameKey, rec.RowKey, rec.GameName, rec.GameID,
		rec.SteamUsername, rec.RoundNumber, rec.TurnStartedAt, rec.TurnCompletedAt, rec.DurationSeconds)
	return errors.Wrap(err, "upsert history")
}

func (s *SQLiteStore) ListHistory(ctx context.Context, gameKey string) ([]core.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT PartitionKey, RowKey, gameName, gameId, steamUsername, roundNumber, turnStartedAt, turnCompletedAt, durationSeconds
FROM turnhistory WHERE PartitionKey = ? ORDER BY turnCompletedAt ASC;`, gameKey)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	defer rows.Close()

	var out []core.HistoryRecord
	for rows.Next() {
		var rec core.HistoryRecord
		if err := rows.Scan(&rec.GameKey, &rec.RowKey, &rec.GameName, &rec.GameID, &rec.SteamUsername,
			&rec.RoundNumber, &rec.TurnStartedAt, &rec.TurnCompletedAt, &rec.DurationSeconds); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate history")
	}
	return out, nil
}
