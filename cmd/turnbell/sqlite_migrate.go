package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

const sqliteSchemaVersion = 2

type sqliteColumn struct {
	Name        string
	Type        string
	NotNull     bool
	DefaultText string
}

type columnSpec struct {
	table string
	name  string
	ddl   string
}

// Columns added after the first release; older files lack them.
var addedColumns = []columnSpec{
	{"activegames", "gameid", `ALTER TABLE activegames ADD COLUMN gameId TEXT NOT NULL DEFAULT '';`},
	{"activegames", "discorduserid", `ALTER TABLE activegames ADD COLUMN discordUserId TEXT NOT NULL DEFAULT '';`},
	{"activegames", "lastreminderat", `ALTER TABLE activegames ADD COLUMN lastReminderAt TEXT NOT NULL DEFAULT '';`},
	{"activegames", "remindercount", `ALTER TABLE activegames ADD COLUMN reminderCount INTEGER NOT NULL DEFAULT 0;`},
	{"turnhistory", "gameid", `ALTER TABLE turnhistory ADD COLUMN gameId TEXT NOT NULL DEFAULT '';`},
	{"turnhistory", "durationseconds", `ALTER TABLE turnhistory ADD COLUMN durationSeconds INTEGER NOT NULL DEFAULT -1;`},
}

func migrateSQLite(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	path := sqlitePath(ctx, db)
	userVersion, err := sqliteUserVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("sqlite: user_version: %w", err)
	}
	log.Info("sqlite: opened", "path", path, "user_version", userVersion)

	tables := make(map[string]map[string]sqliteColumn)
	for _, table := range []string{"activegames", "turnhistory"} {
		cols, err := sqliteTableInfo(ctx, db, table)
		if err != nil {
			return fmt.Errorf("sqlite: describe %s: %w", table, err)
		}
		if len(cols) == 0 {
			log.Warn("sqlite: table missing; skipping migration", "table", table)
			return nil
		}
		tables[table] = cols
	}

	for _, col := range addedColumns {
		if _, ok := tables[col.table][col.name]; ok {
			continue
		}
		if _, err := db.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("sqlite: ensure %s.%s: %w", col.table, col.name, err)
		}
		log.Info("sqlite: added column", "table", col.table, "column", col.name)
	}

	normalize := []struct {
		query string
		label string
	}{
		{`UPDATE activegames SET discordUserId='' WHERE discordUserId IS NULL;`, "activegames.discordUserId"},
		{`UPDATE activegames SET lastReminderAt='' WHERE lastReminderAt IS NULL;`, "activegames.lastReminderAt"},
		{`UPDATE activegames SET reminderCount=0 WHERE reminderCount IS NULL;`, "activegames.reminderCount"},
		{`UPDATE activegames SET turnStartedAt='' WHERE turnStartedAt IS NULL;`, "activegames.turnStartedAt"},
		{`UPDATE turnhistory SET durationSeconds=-1 WHERE durationSeconds IS NULL;`, "turnhistory.durationSeconds"},
	}
	for _, step := range normalize {
		res, execErr := db.ExecContext(ctx, step.query)
		if execErr != nil {
			return fmt.Errorf("sqlite: normalize %s: %w", step.label, execErr)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Info("sqlite: normalized nulls", "column", step.label, "rows", n)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS turnhistory_completed
        ON turnhistory(PartitionKey, turnCompletedAt);`); err != nil {
		return fmt.Errorf("sqlite: ensure turnhistory_completed: %w", err)
	}

	if userVersion < sqliteSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, sqliteSchemaVersion)); err != nil {
			return fmt.Errorf("sqlite: set user_version: %w", err)
		}
	}

	hasIndex, err := sqliteHasIndex(ctx, db, "turnhistory", "turnhistory_completed")
	if err != nil {
		return fmt.Errorf("sqlite: inspect indices: %w", err)
	}
	var active, history int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activegames;`).Scan(&active); err != nil {
		return fmt.Errorf("sqlite: count activegames: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turnhistory;`).Scan(&history); err != nil {
		return fmt.Errorf("sqlite: count turnhistory: %w", err)
	}
	log.Info("sqlite: schema ready",
		"user_version", max(userVersion, sqliteSchemaVersion),
		"turnhistory_completed", hasIndex,
		"active_games", active,
		"history_rows", history)
	return nil
}

func sqlitePath(ctx context.Context, db *sql.DB) string {
	rows, err := db.QueryContext(ctx, `PRAGMA database_list;`)
	if err != nil {
		return "(unknown)"
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int
			name string
			file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return "(unknown)"
		}
		if strings.EqualFold(strings.TrimSpace(name), "main") {
			if file.Valid && strings.TrimSpace(file.String) != "" {
				return file.String
			}
			return "(memory)"
		}
	}
	return "(unknown)"
}

func sqliteUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var userVersion int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return 0, err
	}
	return userVersion, nil
}

func sqliteTableInfo(ctx context.Context, db *sql.DB, table string) (map[string]sqliteColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]sqliteColumn)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		out[strings.ToLower(strings.TrimSpace(name))] = sqliteColumn{
			Name:        name,
			Type:        strings.TrimSpace(colType),
			NotNull:     notNull == 1,
			DefaultText: strings.TrimSpace(defaultVal.String),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sqliteHasIndex(ctx context.Context, db *sql.DB, table, index string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list('%s');`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(name), index) {
			return true, nil
		}
	}
	return false, rows.Err()
}
