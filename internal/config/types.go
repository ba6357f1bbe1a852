package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"threadsched/internal/recurrence"
)

const (
	DefaultTimezone    = "UTC"
	DefaultPlatform    = "discord"
	DefaultRatePerSec  = 5
	DefaultCooldown    = 2 * time.Hour
	DefaultBusyTimeout = time.Second
	DefaultDriver      = "file"
	DefaultHTTPAddr    = "127.0.0.1:9464"
)

type Config struct {
	// Timezone is an IANA zone id used for every task. Defaults to UTC.
	Timezone string         `json:"timezone,omitempty"`
	Platform PlatformConfig `json:"platform"`

	// Cooldown is the pause after each occurrence before the next one is
	// computed. A duration such as "90m" or whole seconds, default "2h".
	Cooldown string `json:"cooldown,omitempty"`

	Storage  StorageConfig            `json:"storage"`
	Logging  LoggingConfig            `json:"logging"`
	HTTP     HTTPConfig               `json:"http"`
	Channels map[string]ChannelConfig `json:"channels"`
}

// PlatformConfig selects the chat backend. The token never lives here; see
// ResolveToken.
type PlatformConfig struct {
	Kind       string `json:"kind,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// PollTimeout is a Go duration string (telegram only).
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// StorageConfig controls the pin ledger backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./pins" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// redis
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
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

// HTTPConfig controls the optional status server.
//
// Security note:
//   - Prefer binding to localhost (the default).
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

type ChannelConfig struct {
	Threads map[string]TaskConfig `json:"threads"`
}

type TaskConfig struct {
	Title  string       `json:"title"`
	Pin    PinConfig    `json:"pin"`
	Period PeriodConfig `json:"period"`
}

type PinConfig struct {
	Pin   bool `json:"pin"`
	Unpin bool `json:"unpin"`
}

type TimeConfig struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// PeriodConfig is the tagged period union. Day is a weekday name for weekly
// periods and a day of month for monthly ones.
type PeriodConfig struct {
	Type string     `json:"type"`
	Time TimeConfig `json:"time"`
	Day  DayValue   `json:"day"`
}

// UnmarshalJSON disallows unknown fields so typos inside a period block are
// reported instead of silently defaulting.
func (p *PeriodConfig) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Type string     `json:"type"`
		Time TimeConfig `json:"time"`
		Day  DayValue   `json:"day"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PeriodConfig{Type: strings.ToLower(strings.TrimSpace(t.Type)), Time: t.Time, Day: t.Day}
	return nil
}

// DayValue holds either a weekday name or a day-of-month number.
type DayValue struct {
	Name   string
	Number int
}

func (d DayValue) IsZero() bool { return d.Name == "" && d.Number == 0 }

func (d DayValue) String() string {
	if d.Name != "" {
		return d.Name
	}
	return strconv.Itoa(d.Number)
}

func (d *DayValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = DayValue{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*d = DayValue{Name: name}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("day must be a weekday name or a day of month: %w", err)
	}
	*d = DayValue{Number: n}
	return nil
}

func (d DayValue) MarshalJSON() ([]byte, error) {
	if d.Name != "" {
		return json.Marshal(d.Name)
	}
	if d.Number != 0 {
		return json.Marshal(d.Number)
	}
	return []byte("null"), nil
}

// Period converts the config block into a recurrence.Period. Ranges are not
// checked here; Validate does that.
func (p PeriodConfig) Period() (recurrence.Period, error) {
	tod := recurrence.TimeOfDay{Hour: p.Time.Hour, Minute: p.Time.Minute, Second: p.Time.Second}
	switch recurrence.Kind(p.Type) {
	case recurrence.KindDaily:
		return recurrence.Daily{Time: tod}, nil
	case recurrence.KindWeekly:
		wd, err := recurrence.ParseWeekday(p.Day.Name)
		if err != nil {
			return nil, err
		}
		return recurrence.Weekly{Time: tod, Weekday: wd}, nil
	case recurrence.KindMonthly:
		return recurrence.Monthly{Time: tod, Day: p.Day.Number}, nil
	default:
		return nil, fmt.Errorf("unknown period type %q", p.Type)
	}
}

// Location returns the configured timezone. Call after Validate.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	return time.LoadLocation(tz)
}

// CooldownDuration returns the post-occurrence pause.
func (c *Config) CooldownDuration() time.Duration {
	d, err := c.Durations()
	if err != nil || d.Cooldown <= 0 {
		return DefaultCooldown
	}
	return d.Cooldown
}

// TaskRef names one configured task.
type TaskRef struct {
	Channel string
	Task    string
	Config  TaskConfig
}

// Tasks lists every configured task sorted by channel then task id, so
// startup order and logs are stable.
func (c *Config) Tasks() []TaskRef {
	out := make([]TaskRef, 0, 8)
	for ch, cc := range c.Channels {
		for id, tc := range cc.Threads {
			out = append(out, TaskRef{Channel: ch, Task: id, Config: tc})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Task < out[j].Task
	})
	return out
}

// ChannelIDs returns the configured channel ids, sorted.
func (c *Config) ChannelIDs() []string {
	out := make([]string, 0, len(c.Channels))
	for id := range c.Channels {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func applyDefaults(c *Config) {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = DefaultTimezone
	}
	c.Platform.Kind = strings.ToLower(strings.TrimSpace(c.Platform.Kind))
	if c.Platform.Kind == "" {
		c.Platform.Kind = DefaultPlatform
	}
	if c.Platform.RatePerSec == 0 {
		c.Platform.RatePerSec = DefaultRatePerSec
	}
	if strings.TrimSpace(c.Cooldown) == "" {
		c.Cooldown = DefaultCooldown.String()
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.Driver == "redis" && strings.TrimSpace(c.Storage.Prefix) == "" {
		c.Storage.Prefix = "threadsched:pin:"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}
