package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindd/pkg/logx"
)

// CronParser is the parser used for scheduler.resync. Standard 5-field specs,
// optional seconds, and descriptors ("@every 15m", "@hourly") are accepted.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks value ranges and parses every duration/timezone/cron field once,
// so bad values fail at load time instead of at first use.
func (c *Config) Validate() error {
	var errs []error
	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "file", "sqlite", "sqlite3", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if _, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	s := c.Scheduler
	if s.MaxPending < 0 {
		errs = append(errs, errors.New("scheduler.max_pending must be >= 0"))
	}
	if s.Workers < 0 {
		errs = append(errs, errors.New("scheduler.workers must be >= 0"))
	}
	if s.QueueSize < 0 {
		errs = append(errs, errors.New("scheduler.queue_size must be >= 0"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if spec := strings.TrimSpace(s.Resync); spec != "" {
		if _, err := CronParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.resync: invalid spec %q: %w", spec, err))
		}
	}

	n := c.Notifier
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		errs = append(errs, errors.New("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0"))
	}
	if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		errs = append(errs, err)
	}
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.Token) == "" {
			errs = append(errs, errors.New("notifier.telegram.token is required when telegram is enabled"))
		}
		if n.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notifier.telegram.chat_id is required when telegram is enabled"))
		}
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone (empty means time.Local).
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
