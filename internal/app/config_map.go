package app

import (
	"fmt"
	"time"

	"remindd/internal/config"
	"remindd/internal/notify"
	"remindd/internal/store"
	"remindd/internal/task/engine"
	"remindd/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busy,
	}, nil
}

// mapTaskEngineConfig sizes the pool that runs fire callbacks.
func mapTaskEngineConfig(cfg *config.Config) engine.Config {
	s := cfg.Scheduler
	return engine.Config{
		Enabled:     true,
		Workers:     s.Workers,
		QueueSize:   s.QueueSize,
		HistorySize: 200,
	}
}

func mapNotifierConfig(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notifier
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:    n.Enabled,
		Workers:    n.Workers,
		QueueSize:  n.QueueSize,
		RatePerSec: n.RatePerSec,
		RetryMax:   n.RetryMax,
		RetryBase:  base,
	}, nil
}

// buildSinks returns the configured sinks. A Telegram sink that cannot be
// constructed is reported as an error so a misconfigured daemon fails fast.
func buildSinks(cfg *config.Config, log logx.Logger) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if cfg.Notifier.ConsoleEnabled() {
		sinks = append(sinks, notify.NewConsoleSink(nil))
	}
	if tg := cfg.Notifier.Telegram; tg.Enabled {
		s, err := notify.NewTelegramSink(notify.TelegramConfig{
			Token:    tg.Token,
			ChatID:   tg.ChatID,
			ThreadID: tg.ThreadID,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("notifier.telegram: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// OpenStore opens the store described by cfg. The CLI uses it for one-shot commands.
func OpenStore(cfg *config.Config, log logx.Logger) (store.Store, error) {
	scfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	return store.Open(scfg, log)
}
