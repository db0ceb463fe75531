package main

import (
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/you/turnbell/internal/config"
)

type rootOptions struct {
	envFile    string
	logLevel   string
	logFormat  string
	store      string
	sqlitePath string
	policyFile string

	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "turnbell",
		Short:         "Relay play-by-cloud turn notifications to chat and nag slow players",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return opts.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides TURNBELL_LOG_LEVEL)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json (overrides TURNBELL_LOG_FORMAT)")
	pf.StringVar(&opts.store, "store", "", "storage backend: sqlite, redis or memory (overrides TURNBELL_STORE)")
	pf.StringVar(&opts.sqlitePath, "db", "", "sqlite database path (overrides TURNBELL_SQLITE_PATH)")
	pf.StringVar(&opts.policyFile, "config", "", "reminder policy file (overrides TURNBELL_CONFIG)")

	root.AddCommand(
		newServeCmd(opts),
		newRemindCmd(opts),
		newGamesCmd(opts),
		newHistoryCmd(opts),
		newRemoveCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the dotenv file and the environment, then applies flags that
// were set explicitly.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "load %s", o.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Changed("store") {
		cfg.Store.Backend = strings.ToLower(strings.TrimSpace(o.store))
	}
	if flags.Changed("db") {
		cfg.Store.SQLitePath = o.sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.Changed("config") {
		cfg.Reminders.PolicyFile = o.policyFile
		if err := cfg.LoadPolicy(); err != nil {
			return err
		}
	}

	o.cfg = cfg
	o.log = newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(o.log)
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
