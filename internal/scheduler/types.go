package scheduler

import (
	"context"
	"errors"
	"time"

	"threadsched/internal/eventbus"
	"threadsched/internal/recurrence"
)

var (
	ErrChannelNotFound   = errors.New("channel not found")
	ErrNotMessageChannel = errors.New("channel does not support threaded messages")
	// ErrHalted wraps the firing error of a runner that stopped for good.
	ErrHalted = errors.New("task halted")
	// ErrAllHalted is returned by the app once no runner is left alive.
	ErrAllHalted = errors.New("all tasks halted")
)

// State is a runner's position in its loop.
type State string

const (
	StateIdle      State = "idle"
	StateComputing State = "computing"
	StateWaiting   State = "waiting"
	StateFiring    State = "firing"
	StatePinning   State = "pinning"
	StateCooldown  State = "cooldown"
	StateHalted    State = "halted"
	StateStopped   State = "stopped"
)

type PinPolicy struct {
	Pin bool
	// Unpin is consulted only when Pin is set.
	Unpin bool
}

// Task is one scheduled thread in one channel.
type Task struct {
	ID        string
	ChannelID string
	// Title is the template rendered at each occurrence.
	Title  string
	Period recurrence.Period
	Pin    PinPolicy
}

// Clock abstracts time so runners can be driven by tests.
type Clock interface {
	Now() time.Time
	// Sleep waits d or until ctx ends, returning ctx.Err() in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config is shared by every runner of a Service.
type Config struct {
	Location *time.Location
	// Cooldown is the pause after each occurrence. Defaults to two hours.
	Cooldown time.Duration
	Clock    Clock
	// Bus receives runner events. Optional.
	Bus eventbus.Bus
}

const defaultCooldown = 2 * time.Hour

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

// TaskSnapshot is a point-in-time view of one runner, served by the status endpoint.
type TaskSnapshot struct {
	Task          string    `json:"task"`
	Channel       string    `json:"channel"`
	State         State     `json:"state"`
	Period        string    `json:"period"`
	Next          time.Time `json:"next,omitempty"`
	Iterations    uint64    `json:"iterations"`
	RunID         string    `json:"run_id,omitempty"`
	LastFiredAt   time.Time `json:"last_fired_at,omitempty"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	LastThreadID  string    `json:"last_thread_id,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}
