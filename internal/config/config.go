package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/turns"
)

type Config struct {
	Store     StoreConfig
	Chat      ChatConfig
	Mapping   MappingConfig
	HTTP      HTTPConfig
	Reminders ReminderConfig
	Log       LogConfig

	// Policy is read from Reminders.PolicyFile, not the environment.
	Policy       turns.Policy
	PolicySource PolicySource
}

type StoreConfig struct {
	Backend       string `env:"TURNBELL_STORE" envDefault:"sqlite"`
	SQLitePath    string `env:"TURNBELL_SQLITE_PATH" envDefault:"turnbell.db"`
	SQLiteTuning  bool   `env:"TURNBELL_SQLITE_TUNING" envDefault:"false"`
	RedisAddr     string `env:"TURNBELL_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"TURNBELL_REDIS_PASSWORD"`
	RedisDB       int    `env:"TURNBELL_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"TURNBELL_REDIS_PREFIX" envDefault:"turnbell"`
}

type ChatConfig struct {
	Notifier          string        `env:"TURNBELL_NOTIFIER" envDefault:"discord"`
	WebhookURL        string        `env:"DISCORD_WEBHOOK_URL"`
	WebhookURLFile    string        `env:"DISCORD_WEBHOOK_URL_FILE"`
	TelegramToken     string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramTokenFile string        `env:"TELEGRAM_BOT_TOKEN_FILE"`
	TelegramChatID    int64         `env:"TELEGRAM_CHAT_ID"`
	Timeout           time.Duration `env:"TURNBELL_NOTIFY_TIMEOUT" envDefault:"10s"`
}

type MappingConfig struct {
	Inline string `env:"USER_MAPPING" envDefault:"{}"`
	File   string `env:"USER_MAPPING_FILE"`
}

type HTTPConfig struct {
	Addr        string   `env:"TURNBELL_HTTP_ADDR" envDefault:":8080"`
	RateRPS     int      `env:"TURNBELL_HTTP_RATE_RPS" envDefault:"5"`
	RateBurst   int      `env:"TURNBELL_HTTP_RATE_BURST" envDefault:"10"`
	Metrics     bool     `env:"TURNBELL_HTTP_METRICS" envDefault:"true"`
	CORSOrigins []string `env:"TURNBELL_HTTP_CORS_ORIGINS" envSeparator:","`
	AccessLog   bool     `env:"TURNBELL_HTTP_ACCESS_LOG" envDefault:"false"`
	AdminToken  string   `env:"TURNBELL_ADMIN_TOKEN"`
}

type ReminderConfig struct {
	Enabled     bool   `env:"TURNBELL_REMINDERS" envDefault:"true"`
	Schedule    string `env:"TURNBELL_REMINDER_SCHEDULE" envDefault:"0 */15 * * * *"`
	Concurrency int    `env:"TURNBELL_REMINDER_CONCURRENCY" envDefault:"1"`
	PolicyFile  string `env:"TURNBELL_CONFIG" envDefault:"config.json"`
}

type LogConfig struct {
	Level  string `env:"TURNBELL_LOG_LEVEL" envDefault:"info"`
	Format string `env:"TURNBELL_LOG_FORMAT" envDefault:"text"`
}

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"

	NotifierDiscord  = "discord"
	NotifierTelegram = "telegram"
)

// Load reads the environment and the reminder policy file.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "config: parse environment")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.LoadPolicy()
}

// LoadPolicy (re)reads Reminders.PolicyFile into Policy.
func (c *Config) LoadPolicy() error {
	policy, source, err := LoadPolicy(c.Reminders.PolicyFile)
	if err != nil {
		return err
	}
	c.Policy = policy
	c.PolicySource = source
	return nil
}

func (c *Config) normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Chat.Notifier = strings.ToLower(strings.TrimSpace(c.Chat.Notifier))
	c.Chat.WebhookURL = strings.TrimSpace(c.Chat.WebhookURL)
	c.Mapping.File = strings.TrimSpace(c.Mapping.File)
	if c.Reminders.Concurrency <= 0 {
		c.Reminders.Concurrency = 1
	}
	if c.Chat.Timeout <= 0 {
		c.Chat.Timeout = 10 * time.Second
	}
	origins := c.HTTP.CORSOrigins[:0]
	for _, o := range c.HTTP.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.HTTP.CORSOrigins = origins
}

// Validate rejects settings the process cannot start with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return errors.Errorf("config: unknown store %q", c.Store.Backend)
	}
	switch c.Chat.Notifier {
	case NotifierDiscord, NotifierTelegram:
	default:
		return errors.Errorf("config: unknown notifier %q", c.Chat.Notifier)
	}
	if c.Store.Backend == StoreSQLite && strings.TrimSpace(c.Store.SQLitePath) == "" {
		return errors.New("config: sqlite path is empty")
	}
	return nil
}

func (c Config) Summary() Summary {
	return Summary{
		Store:       c.Store.Backend,
		SQLitePath:  c.Store.SQLitePath,
		Notifier:    c.Chat.Notifier,
		WebhookSet:  c.Chat.WebhookURL != "" || c.Chat.WebhookURLFile != "",
		MappingFile: c.Mapping.File,
		HTTPAddr:    c.HTTP.Addr,
		Schedule:    c.Reminders.Schedule,
		Threshold:   c.Policy.ThresholdHours,
		Blackout:    c.Policy.Blackout,
		PolicyFrom:  string(c.PolicySource),
	}
}

type Summary struct {
	Store       string         `json:"store"`
	SQLitePath  string         `json:"sqlite_path,omitempty"`
	Notifier    string         `json:"notifier"`
	WebhookSet  bool           `json:"webhook_configured"`
	MappingFile string         `json:"mapping_file,omitempty"`
	HTTPAddr    string         `json:"http_addr"`
	Schedule    string         `json:"schedule"`
	Threshold   float64        `json:"threshold_hours"`
	Blackout    turns.Blackout `json:"blackout"`
	PolicyFrom  string         `json:"policy_source"`
}

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"store": map[string]any{
			"backend":        c.Store.Backend,
			"sqlite_path":    c.Store.SQLitePath,
			"sqlite_tuning":  c.Store.SQLiteTuning,
			"redis_addr":     c.Store.RedisAddr,
			"redis_password": redactString(c.Store.RedisPassword),
			"redis_db":       c.Store.RedisDB,
			"redis_prefix":   c.Store.RedisPrefix,
		},
		"chat": map[string]any{
			"notifier":            c.Chat.Notifier,
			"webhook_url":         redactString(c.Chat.WebhookURL),
			"webhook_url_file":    c.Chat.WebhookURLFile,
			"telegram_token":      redactString(c.Chat.TelegramToken),
			"telegram_token_file": c.Chat.TelegramTokenFile,
			"telegram_chat_id":    c.Chat.TelegramChatID,
			"timeout":             c.Chat.Timeout.String(),
		},
		"mapping": map[string]any{
			"inline_bytes": len(c.Mapping.Inline),
			"file":         c.Mapping.File,
		},
		"http": map[string]any{
			"addr":         c.HTTP.Addr,
			"rate_rps":     c.HTTP.RateRPS,
			"rate_burst":   c.HTTP.RateBurst,
			"metrics":      c.HTTP.Metrics,
			"cors_origins": append([]string(nil), c.HTTP.CORSOrigins...),
			"access_log":   c.HTTP.AccessLog,
			"admin_token":  redactString(c.HTTP.AdminToken),
		},
		"reminders": map[string]any{
			"enabled":         c.Reminders.Enabled,
			"schedule":        c.Reminders.Schedule,
			"concurrency":     c.Reminders.Concurrency,
			"policy_file":     c.Reminders.PolicyFile,
			"policy_source":   string(c.PolicySource),
			"threshold_hours": c.Policy.ThresholdHours,
			"blackout":        c.Policy.Blackout,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}
