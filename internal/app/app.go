package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threadsched/internal/config"
	"threadsched/internal/eventbus"
	"threadsched/internal/observability/metrics"
	"threadsched/internal/observability/status"
	rtsup "threadsched/internal/runtime/supervisor"
	"threadsched/internal/scheduler"
	"threadsched/internal/storage"
	"threadsched/internal/transport"
	logx "threadsched/pkg/logx"
	"threadsched/pkg/sdnotify"
)

// Options are the command-line inputs of the run command.
type Options struct {
	ConfigPath string

	Token     string
	TokenFile string
	EnvFile   string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string

	// Dial defaults to connecting to Discord or Telegram per platform.kind.
	Dial Dialer
	// Clock defaults to the wall clock.
	Clock scheduler.Clock
}

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	platform transport.Platform

	sched   *scheduler.Service
	tasks   []scheduler.Task
	metrics *metrics.Collector
	status  *status.Service
	notify  *sdnotify.Notifier
}

// New loads the config, resolves the bot token, opens the pin ledger and
// connects to the platform. Nothing is scheduled until Start.
func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	tasks, err := scheduler.TasksFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %w", config.ErrInvalidValue, err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	token, err := config.ResolveToken(config.TokenSource{
		Token:     opts.Token,
		TokenFile: opts.TokenFile,
		EnvFile:   opts.EnvFile,
		Getenv:    opts.Getenv,
	})
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	dial := opts.Dial
	if dial == nil {
		dial = dialPlatform
	}
	platform, err := dial(ctx, cfg, token, log)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	log.Info("platform connected", logx.String("platform", platform.Name()))

	bus := eventbus.New()
	sched := scheduler.New(platform, store, scheduler.Config{
		Location: loc,
		Cooldown: cfg.CooldownDuration(),
		Clock:    opts.Clock,
		Bus:      bus,
	}, log)
	mc := metrics.New(bus, log)

	return &App{
		cfgm:     cfgm,
		cfg:      cfg,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		platform: platform,
		sched:    sched,
		tasks:    tasks,
		metrics:  mc,
		status:   status.New(mapStatusConfig(cfg), sched, mc.Registry(), log),
		notify:   sdnotify.New(log),
	}, nil
}

// Scheduler exposes the task runners, mainly for tests.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Start resolves every channel and launches the runners, then the metrics
// collector, status server and config watcher. A channel error is returned
// before any runner starts.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log))

	// Subscribe before launching so the first events are seen.
	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("metrics", func(c context.Context) {
		defer unsub()
		a.metrics.Run(c, events)
	})
	debugEvents, unsubDebug := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubDebug()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-debugEvents:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	if err := a.sched.Launch(a.sup.Context(), a.tasks); err != nil {
		return err
	}

	a.status.Start(a.sup.Context())
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("sdnotify.watchdog", a.notify.Watchdog)

	_, _ = a.notify.Ready()
	_, _ = a.notify.Status("%d tasks scheduled on %s", len(a.tasks), a.platform.Name())
	a.log.Info("app started",
		logx.Int("tasks", len(a.tasks)),
		logx.String("timezone", a.cfg.Timezone),
		logx.Duration("cooldown", a.cfg.CooldownDuration()),
	)
	return nil
}

// Wait blocks until ctx ends (nil) or every runner has halted (ErrAllHalted).
func (a *App) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-a.sched.AllHalted():
		return scheduler.ErrAllHalted
	}
}

// Stop shuts components down in order, each step bounded so one component
// cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = a.notify.Stopping()

	if a.sup != nil {
		a.sup.Cancel()
	}

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := a.step(ctx, name, max, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("scheduler", 3*time.Second, a.sched.Stop)
	step("status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("platform", 2*time.Second, func(context.Context) error { return a.platform.Close() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}

	a.log.Info("stopped", logx.Uint64("events_dropped", a.bus.Dropped()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// step runs fn with an upper bound that never extends the caller's deadline.
// A step that overruns is logged and left to finish in the background.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return context.DeadlineExceeded
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			return err
		}
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return nil
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
		return stepCtx.Err()
	}
}
