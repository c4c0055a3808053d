package config

// Config is the on-disk daemon configuration (JSON or YAML).
//
// Example (YAML):
//
//	logging:  { level: info, console: true }
//	store:    { driver: file, path: ./events.json }
//	scheduler:
//	  timezone: Europe/Berlin
//	  resync: "@every 15m"
//	notifier: { enabled: true, console: true }
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the event store backend.
//
// Driver values: "file" (default, JSON mapping), "sqlite", "memory".
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the reminder scheduling engine.
//
// Defaults (when fields are omitted/zero):
//   - timezone: local time (used for dates without an offset)
//   - max_pending: 100000
//   - workers: 2
//   - queue_size: 256
//   - resync: "" (disabled); any robfig/cron spec, e.g. "@every 15m"
//   - watch: false (reschedule when the events file changes; file driver only)
type SchedulerConfig struct {
	Timezone   string `json:"timezone,omitempty"`
	MaxPending int    `json:"max_pending,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	Resync     string `json:"resync,omitempty"`
	Watch      bool   `json:"watch,omitempty"`
}

// NotifierConfig controls reminder delivery.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type NotifierConfig struct {
	Enabled    bool           `json:"enabled"`
	Workers    int            `json:"workers,omitempty"`
	QueueSize  int            `json:"queue_size,omitempty"`
	RatePerSec int            `json:"rate_per_sec,omitempty"`
	RetryMax   int            `json:"retry_max,omitempty"`
	RetryBase  string         `json:"retry_base,omitempty"`
	Console    *bool          `json:"console,omitempty"` // nil means true
	Telegram   TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"` // do not log
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// MetricsConfig controls the optional Prometheus listener.
// Pprof also mounts /debug/pprof/ on the same listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9310"
	Pprof   bool   `json:"pprof,omitempty"`
}

// ConsoleEnabled reports whether the console sink is on (default true).
func (n NotifierConfig) ConsoleEnabled() bool {
	return n.Console == nil || *n.Console
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Console: true},
		Store:    StoreConfig{Driver: "file", Path: "./events.json"},
		Notifier: NotifierConfig{Enabled: true},
	}
}
