package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Durations holds every duration-valued key resolved against its default.
type Durations struct {
	Cooldown    time.Duration
	PollTimeout time.Duration // 0 leaves the platform default
	BusyTimeout time.Duration
}

// Durations resolves the duration keys. The error lists every bad key.
func (c *Config) Durations() (Durations, error) {
	var (
		d    Durations
		errs []error
	)
	read := func(dst *time.Duration, key, raw string, def time.Duration) {
		v, err := parseDuration(key, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	read(&d.Cooldown, "cooldown", c.Cooldown, DefaultCooldown)
	read(&d.PollTimeout, "platform.poll_timeout", c.Platform.PollTimeout, 0)
	read(&d.BusyTimeout, "storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout)
	return d, errors.Join(errs...)
}

// parseDuration accepts Go duration syntax ("2h", "90s") or whole seconds
// ("7200"). Empty yields def.
func parseDuration(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, nerr := strconv.ParseUint(s, 10, 32)
		if nerr != nil {
			return 0, fmt.Errorf("%s: %q is not a duration like \"2h\" or \"90s\"", key, raw)
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: %s is negative", key, s)
	}
	return d, nil
}
