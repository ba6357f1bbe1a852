package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"threadsched/internal/eventbus"
	"threadsched/internal/recurrence"
	"threadsched/internal/storage"
	"threadsched/internal/title"
	"threadsched/internal/transport"
	logx "threadsched/pkg/logx"
)

// Runner drives a single task. Its state is private to it; runners share
// nothing mutable with each other.
type Runner struct {
	task  Task
	ch    transport.Channel
	store storage.Store
	cfg   Config
	log   logx.Logger

	mu   sync.Mutex
	snap TaskSnapshot
}

func newRunner(task Task, ch transport.Channel, store storage.Store, cfg Config, log logx.Logger) *Runner {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		task:  task,
		ch:    ch,
		store: store,
		cfg:   cfg,
		log:   log.With(logx.String("task", task.ID), logx.String("channel", task.ChannelID)),
		snap: TaskSnapshot{
			Task:    task.ID,
			Channel: task.ChannelID,
			State:   StateIdle,
			Period:  task.Period.Describe(),
		},
	}
}

// Run loops until ctx ends (nil) or a firing fails permanently (an error
// wrapping ErrHalted). Transient firing failures skip the occurrence.
func (r *Runner) Run(ctx context.Context) error {
	for {
		r.setState(StateComputing)
		now := r.cfg.Clock.Now()
		next := recurrence.Next(r.task.Period, r.cfg.Location, now)
		delay := recurrence.Delay(r.task.Period, r.cfg.Location, now)
		r.update(func(s *TaskSnapshot) { s.Next = next })
		r.log.Info("next occurrence computed",
			logx.Time("next", next),
			logx.Duration("delay", delay),
			logx.Int64("delay_ms", delay.Milliseconds()),
		)
		r.publish(eventbus.TaskScheduled, eventbus.TaskEvent{Next: next})

		r.setState(StateWaiting)
		if err := r.cfg.Clock.Sleep(ctx, delay); err != nil {
			return r.stop()
		}

		r.setState(StateFiring)
		runID := uuid.NewString()
		r.update(func(s *TaskSnapshot) { s.RunID = runID })
		msg, th, err := r.fire(ctx)
		switch {
		case err == nil:
			r.fired(ctx, runID, msg, th)
		case ctx.Err() != nil:
			return r.stop()
		case transport.IsPermanent(err):
			return r.halt(runID, err)
		default:
			r.fail(runID, err)
		}

		r.setState(StateCooldown)
		r.log.Info("cooling down", logx.Duration("cooldown", r.cfg.Cooldown))
		if err := r.cfg.Clock.Sleep(ctx, r.cfg.Cooldown); err != nil {
			return r.stop()
		}
	}
}

func (r *Runner) fired(ctx context.Context, runID string, msg transport.Message, th transport.Thread) {
	r.update(func(s *TaskSnapshot) {
		s.Iterations++
		s.LastFiredAt = r.cfg.Clock.Now()
		s.LastMessageID = msg.ID()
		s.LastThreadID = th.ID
		s.LastError = ""
	})
	r.publish(eventbus.TaskFired, eventbus.TaskEvent{RunID: runID, MessageID: msg.ID(), ThreadID: th.ID, OK: true})

	if r.task.Pin.Pin {
		r.setState(StatePinning)
		r.pin(ctx, runID, msg)
	}
}

// fire renders the title from the current instant, posts it and opens a thread
// on the posted message.
func (r *Runner) fire(ctx context.Context) (transport.Message, transport.Thread, error) {
	name := title.Render(r.task.Title, r.cfg.Clock.Now().In(r.cfg.Location))
	r.log.Info("title rendered", logx.String("title", name))

	msg, err := r.ch.SendMessage(ctx, name)
	if err != nil {
		return nil, transport.Thread{}, fmt.Errorf("send message: %w", err)
	}
	th, err := msg.StartThread(ctx, name)
	if err != nil {
		return nil, transport.Thread{}, fmt.Errorf("start thread on message %s: %w", msg.ID(), err)
	}
	r.log.Info("thread created", logx.String("message_id", msg.ID()), logx.String("thread_id", th.ID), logx.String("thread", th.Name))
	return msg, th, nil
}

// pin unpins the previously recorded message when asked to, pins msg and
// records it. Every failure here is logged and swallowed.
func (r *Runner) pin(ctx context.Context, runID string, msg transport.Message) {
	if r.task.Pin.Unpin {
		r.unpinPrevious(ctx, runID, msg.ID())
	}

	if err := msg.Pin(ctx); err != nil {
		r.log.Warn("pin failed", logx.String("message_id", msg.ID()), logx.Err(err))
		r.publish(eventbus.PinPinned, eventbus.TaskEvent{RunID: runID, MessageID: msg.ID(), Err: err.Error()})
		return
	}
	r.log.Info("message pinned", logx.String("message_id", msg.ID()))
	r.publish(eventbus.PinPinned, eventbus.TaskEvent{RunID: runID, MessageID: msg.ID(), OK: true})

	if err := r.store.StorePin(ctx, r.task.ID, msg.ID()); err != nil {
		r.log.Warn("pin ledger write failed", logx.String("message_id", msg.ID()), logx.Err(err))
	}
}

func (r *Runner) unpinPrevious(ctx context.Context, runID, current string) {
	prevID, ok, err := r.store.LoadPin(ctx, r.task.ID)
	if err != nil {
		r.log.Warn("pin ledger read failed; treating as absent", logx.Err(err))
		return
	}
	if !ok || prevID == current {
		r.log.Info("no previous pin recorded")
		return
	}

	prev, err := r.ch.FetchMessage(ctx, prevID)
	if err == nil {
		err = prev.Unpin(ctx)
	}
	switch {
	case err == nil:
		r.log.Info("previous message unpinned", logx.String("message_id", prevID))
		r.publish(eventbus.PinUnpinned, eventbus.TaskEvent{RunID: runID, MessageID: prevID, OK: true})
		return
	case errors.Is(err, transport.ErrNotFound):
		r.log.Warn("previous pinned message not found", logx.String("message_id", prevID), logx.Err(err))
	default:
		r.log.Warn("unpin failed", logx.String("message_id", prevID), logx.Err(err))
	}
	r.publish(eventbus.PinUnpinned, eventbus.TaskEvent{RunID: runID, MessageID: prevID, Err: err.Error()})
}

// fail records a firing error the platform may recover from. The task keeps
// its schedule.
func (r *Runner) fail(runID string, err error) {
	r.log.Error("firing failed; retrying next occurrence", logx.String("run_id", runID), logx.Err(err))
	r.update(func(s *TaskSnapshot) { s.LastError = err.Error() })
	r.publish(eventbus.TaskFailed, eventbus.TaskEvent{RunID: runID, Err: err.Error()})
}

func (r *Runner) halt(runID string, err error) error {
	r.log.Error("firing failed; task halted", logx.String("run_id", runID), logx.Err(err))
	r.update(func(s *TaskSnapshot) { s.LastError = err.Error() })
	r.publish(eventbus.TaskFailed, eventbus.TaskEvent{RunID: runID, Err: err.Error()})
	r.setState(StateHalted)
	r.publish(eventbus.TaskHalted, eventbus.TaskEvent{RunID: runID, Err: err.Error()})
	return fmt.Errorf("%w: %s: %w", ErrHalted, r.task.ID, err)
}

func (r *Runner) stop() error {
	r.setState(StateStopped)
	return nil
}

func (r *Runner) setState(st State) {
	r.mu.Lock()
	prev := r.snap.State
	r.snap.State = st
	r.mu.Unlock()
	if prev != st {
		r.log.Info("state changed", logx.String("from", string(prev)), logx.String("to", string(st)))
	}
}

func (r *Runner) update(fn func(s *TaskSnapshot)) {
	r.mu.Lock()
	fn(&r.snap)
	r.mu.Unlock()
}

// Snapshot returns a copy of the runner's current view.
func (r *Runner) Snapshot() TaskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

func (r *Runner) publish(typ string, ev eventbus.TaskEvent) {
	if r.cfg.Bus == nil {
		return
	}
	ev.Task = r.task.ID
	ev.Channel = r.task.ChannelID
	r.cfg.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
