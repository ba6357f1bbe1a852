package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"threadsched/internal/runtime/supervisor"
	"threadsched/internal/storage"
	"threadsched/internal/transport"
	logx "threadsched/pkg/logx"
)

// Service resolves channels and supervises one Runner per task.
type Service struct {
	log      logx.Logger
	platform transport.Platform
	store    storage.Store
	cfg      Config

	mu       sync.Mutex
	launched bool
	runners  []*Runner
	sup      *supervisor.Supervisor

	halted    atomic.Int32
	allHalted chan struct{}
}

func New(platform transport.Platform, store storage.Store, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:       log.With(logx.String("comp", "scheduler")),
		platform:  platform,
		store:     store,
		cfg:       cfg.withDefaults(),
		allHalted: make(chan struct{}),
	}
}

// Launch resolves every channel referenced by tasks before starting anything.
// A channel that does not exist fails with ErrChannelNotFound, one that cannot
// hold threaded messages with ErrNotMessageChannel; in both cases no runner is
// started. Launch may be called once.
func (s *Service) Launch(ctx context.Context, tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.launched {
		return errors.New("scheduler already launched")
	}

	ids := make([]string, 0, len(tasks))
	seen := map[string]bool{}
	for _, t := range tasks {
		if !seen[t.ChannelID] {
			seen[t.ChannelID] = true
			ids = append(ids, t.ChannelID)
		}
	}
	sort.Strings(ids)

	channels := make(map[string]transport.Channel, len(ids))
	for _, id := range ids {
		ch, err := s.platform.ResolveChannel(ctx, id)
		if err != nil {
			if transport.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
			}
			return fmt.Errorf("resolve channel %s: %w", id, err)
		}
		if !ch.SupportsThreadedMessaging() {
			return fmt.Errorf("%w: %s (%s)", ErrNotMessageChannel, id, ch.Kind())
		}
		s.log.Info("channel resolved", logx.String("channel", id), logx.String("name", ch.Name()), logx.String("kind", ch.Kind()))
		channels[id] = ch
	}

	s.launched = true
	s.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
	for _, t := range tasks {
		r := newRunner(t, channels[t.ChannelID], s.store, s.cfg, s.log)
		s.runners = append(s.runners, r)
	}
	total := int32(len(s.runners))
	for _, r := range s.runners {
		r := r
		s.sup.Go("task:"+r.task.ID, func(ctx context.Context) error {
			err := r.Run(ctx)
			if errors.Is(err, ErrHalted) && s.halted.Add(1) == total {
				s.log.Error("every task has halted")
				close(s.allHalted)
			}
			return err
		})
	}
	s.log.Info("scheduler launched", logx.Int("tasks", len(s.runners)), logx.Int("channels", len(channels)))
	return nil
}

// AllHalted is closed when every launched runner has halted on a permanent firing error.
func (s *Service) AllHalted() <-chan struct{} { return s.allHalted }

// Snapshot returns every runner's view, sorted by channel then task.
func (s *Service) Snapshot() []TaskSnapshot {
	s.mu.Lock()
	runners := append([]*Runner(nil), s.runners...)
	s.mu.Unlock()

	out := make([]TaskSnapshot, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Task < out[j].Task
	})
	return out
}

// Goroutines exposes the supervisor view for the status endpoint.
func (s *Service) Goroutines() supervisor.Snapshot {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup.Snapshot()
}

// Stop cancels every runner and waits for them until ctx ends. Halt errors are
// not reported here; they were logged when they happened.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	if errors.Is(err, ErrHalted) {
		return nil
	}
	return err
}
