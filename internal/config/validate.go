package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"threadsched/internal/recurrence"
	"threadsched/internal/storage"
)

// Validate checks values the schema cannot express. The returned error wraps
// ErrInvalidValue and lists every problem found.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidValue)
	}
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := time.LoadLocation(strings.TrimSpace(c.Timezone)); err != nil {
		add("timezone: unknown zone %q", c.Timezone)
	}

	switch c.Platform.Kind {
	case "discord", "telegram":
	default:
		add("platform.kind: unsupported platform %q", c.Platform.Kind)
	}
	if c.Platform.RatePerSec < 0 {
		add("platform.rate_per_sec: must be >= 0")
	}
	if d, err := c.Durations(); err != nil {
		errs = append(errs, err)
	} else if d.Cooldown <= 0 {
		add("cooldown: must be > 0")
	}

	switch c.Storage.Driver {
	case "file", "sqlite":
	case "redis":
		if strings.TrimSpace(c.Storage.Addr) == "" {
			add("storage.addr: required for redis")
		}
	default:
		add("storage.driver: unsupported driver %q", c.Storage.Driver)
	}

	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Token) == "" && !c.HTTP.AllowInsecure && !IsLoopbackAddr(c.HTTP.Addr) {
		add("http.addr: %q is not a loopback address; set http.token or http.allow_insecure", c.HTTP.Addr)
	}

	// Task ids key the pin ledger, so they must be unique process-wide once
	// mapped to their ledger file names.
	owner := map[string]string{}
	tasks := c.Tasks()
	for _, ref := range tasks {
		path := fmt.Sprintf("channels.%s.threads.%s", ref.Channel, ref.Task)
		if strings.TrimSpace(ref.Channel) == "" {
			add("%s: empty channel id", path)
		}
		if strings.TrimSpace(ref.Task) == "" {
			add("%s: empty task id", path)
		}
		key := storage.FileName(ref.Task)
		if prev, ok := owner[key]; ok {
			add("%s: task id collides with %s (both stored as %s)", path, prev, key)
		} else {
			owner[key] = fmt.Sprintf("channels.%s.threads.%s", ref.Channel, ref.Task)
		}
		if strings.TrimSpace(ref.Config.Title) == "" {
			add("%s.title: must not be empty", path)
		}
		errs = append(errs, validatePeriod(path+".period", ref.Config.Period)...)
	}
	if len(tasks) == 0 {
		add("channels: no tasks configured")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidValue, errors.Join(errs...))
}

func validatePeriod(path string, p PeriodConfig) []error {
	var errs []error
	t := p.Time
	if t.Hour < 0 || t.Hour > 23 {
		errs = append(errs, fmt.Errorf("%s.time.hour: %d out of range 0-23", path, t.Hour))
	}
	if t.Minute < 0 || t.Minute > 59 {
		errs = append(errs, fmt.Errorf("%s.time.minute: %d out of range 0-59", path, t.Minute))
	}
	if t.Second < 0 || t.Second > 59 {
		errs = append(errs, fmt.Errorf("%s.time.second: %d out of range 0-59", path, t.Second))
	}
	switch recurrence.Kind(p.Type) {
	case recurrence.KindDaily:
	case recurrence.KindWeekly:
		if _, err := recurrence.ParseWeekday(p.Day.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s.day: %w", path, err))
		}
	case recurrence.KindMonthly:
		if p.Day.Name != "" || p.Day.Number < 1 || p.Day.Number > 31 {
			errs = append(errs, fmt.Errorf("%s.day: %s out of range 1-31", path, p.Day))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.type: unknown period type %q", path, p.Type))
	}
	return errs
}

// IsLoopbackAddr reports whether a host:port listen address binds only to
// the local machine. An empty host means all interfaces.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
