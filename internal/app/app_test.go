package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"threadsched/internal/config"
	"threadsched/internal/scheduler"
	"threadsched/internal/transport"
	logx "threadsched/pkg/logx"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"unexpected", errors.New("boom"), ExitUnexpected},
		{"usage", fmt.Errorf("%w: unknown flag", ErrUsage), ExitUsage},
		{"token and file", config.ErrTokenAndTokenFile, ExitTokenAndFile},
		{"no token", config.ErrNoToken, ExitNoToken},
		{"invalid token", fmt.Errorf("%w: discord: %w", ErrConnect, transport.ErrUnauthorized), ExitInvalidToken},
		{"connect", fmt.Errorf("%w: dial tcp: timeout", ErrConnect), ExitConnect},
		{"token file missing", fmt.Errorf("%w: tok.txt", config.ErrTokenFileNotFound), ExitTokenFileMissing},
		{"token file empty", config.ErrTokenFileEmpty, ExitTokenFileEmpty},
		{"config missing", config.ErrConfigNotFound, ExitConfigMissing},
		{"config format", fmt.Errorf("%w: line 3", config.ErrInvalidFormat), ExitConfigFormat},
		{"config value", fmt.Errorf("%w: timezone", config.ErrInvalidValue), ExitConfigValue},
		{"channel not found", fmt.Errorf("%w: 42", scheduler.ErrChannelNotFound), ExitChannelNotFound},
		{"not message channel", scheduler.ErrNotMessageChannel, ExitNotMessageChan},
		{"all halted", scheduler.ErrAllHalted, ExitAllHalted},
		{"storage", fmt.Errorf("%w: disk full", ErrStorage), ExitStorage},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// ---- fakes ----

type fakePlatform struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
	closed   bool
}

func (p *fakePlatform) Name() string { return "fake" }

func (p *fakePlatform) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) ResolveChannel(_ context.Context, id string) (transport.Channel, error) {
	ch, ok := p.channels[id]
	if !ok {
		return nil, fmt.Errorf("fake: channel %s: %w", id, transport.ErrNotFound)
	}
	return ch, nil
}

type fakeChannel struct {
	id      string
	sendErr error
}

func (c *fakeChannel) ID() string                      { return c.id }
func (c *fakeChannel) Name() string                    { return "general" }
func (c *fakeChannel) Kind() string                    { return "text" }
func (c *fakeChannel) SupportsThreadedMessaging() bool { return true }

func (c *fakeChannel) SendMessage(context.Context, string) (transport.Message, error) {
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	return nil, errors.New("fake: send not supported")
}

func (c *fakeChannel) FetchMessage(_ context.Context, id string) (transport.Message, error) {
	return nil, fmt.Errorf("fake: message %s: %w", id, transport.ErrNotFound)
}

// instantClock never waits.
type instantClock struct{ now time.Time }

func (c instantClock) Now() time.Time { return c.now }

func (c instantClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// ---- helpers ----

func writeConfig(t *testing.T, storagePath string) string {
	t.Helper()
	doc := map[string]any{
		"timezone": "UTC",
		"logging":  map[string]any{"level": "error"},
		"storage":  map[string]any{"driver": "file", "path": storagePath},
		"channels": map[string]any{
			"100": map[string]any{
				"threads": map[string]any{
					"standup": map[string]any{
						"title":  "Standup %dd.%mm",
						"pin":    map[string]any{"pin": true, "unpin": true},
						"period": map[string]any{"type": "daily", "time": map[string]any{"hour": 9}},
					},
				},
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func dialTo(p transport.Platform, err error) Dialer {
	return func(context.Context, *config.Config, string, logx.Logger) (transport.Platform, error) {
		return p, err
	}
}

func noEnv(string) string { return "" }

// ---- tests ----

func TestNewErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, filepath.Join(dir, "pins"))
	notADir := filepath.Join(dir, "file")
	if err := os.WriteFile(notADir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	badStorage := writeConfig(t, notADir)
	ok := dialTo(&fakePlatform{}, nil)

	tests := []struct {
		name string
		opts Options
		want int
	}{
		{
			name: "config missing",
			opts: Options{ConfigPath: filepath.Join(dir, "missing.json"), Token: "t", Dial: ok},
			want: ExitConfigMissing,
		},
		{
			name: "token and file",
			opts: Options{ConfigPath: cfgPath, Token: "t", TokenFile: "tok.txt", Dial: ok},
			want: ExitTokenAndFile,
		},
		{
			name: "token file missing",
			opts: Options{ConfigPath: cfgPath, TokenFile: filepath.Join(dir, "nope.txt"), Dial: ok},
			want: ExitTokenFileMissing,
		},
		{
			name: "no token",
			opts: Options{ConfigPath: cfgPath, Getenv: noEnv, EnvFile: "", Dial: ok},
			want: ExitNoToken,
		},
		{
			name: "storage",
			opts: Options{ConfigPath: badStorage, Token: "t", Dial: ok},
			want: ExitStorage,
		},
		{
			name: "unauthorized",
			opts: Options{ConfigPath: cfgPath, Token: "t", Dial: dialTo(nil, fmt.Errorf("discord: %w", transport.ErrUnauthorized))},
			want: ExitInvalidToken,
		},
		{
			name: "connect",
			opts: Options{ConfigPath: cfgPath, Token: "t", Dial: dialTo(nil, errors.New("dial tcp: i/o timeout"))},
			want: ExitConnect,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := New(context.Background(), tt.opts)
			if err == nil {
				_ = a.Stop(context.Background(), StopUnknown)
				t.Fatal("New succeeded")
			}
			if got := ExitCode(err); got != tt.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", err, got, tt.want)
			}
		})
	}
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	p := &fakePlatform{channels: map[string]*fakeChannel{"100": {id: "100"}}}
	a, err := New(context.Background(), Options{
		ConfigPath: writeConfig(t, t.TempDir()),
		Token:      "t",
		Dial:       dialTo(p, nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := a.Scheduler().Snapshot()
	if len(snap) != 1 || snap[0].Task != "standup" || snap[0].Channel != "100" {
		t.Fatalf("snapshot = %+v", snap)
	}

	cancel()
	if err := a.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if !closed {
		t.Fatal("platform not closed")
	}
}

func TestStartChannelNotFound(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), Options{
		ConfigPath: writeConfig(t, t.TempDir()),
		Token:      "t",
		Dial:       dialTo(&fakePlatform{}, nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = a.Start(context.Background())
	if got := ExitCode(err); got != ExitChannelNotFound {
		t.Fatalf("Start err = %v (exit %d), want exit %d", err, got, ExitChannelNotFound)
	}
	if len(a.Scheduler().Snapshot()) != 0 {
		t.Fatal("runners started despite missing channel")
	}
	_ = a.Stop(context.Background(), StopStartFailed)
}

func TestWaitAllHalted(t *testing.T) {
	t.Parallel()

	p := &fakePlatform{channels: map[string]*fakeChannel{"100": {id: "100", sendErr: fmt.Errorf("missing permissions: %w", transport.ErrForbidden)}}}
	a, err := New(context.Background(), Options{
		ConfigPath: writeConfig(t, t.TempDir()),
		Token:      "t",
		Dial:       dialTo(p, nil),
		Clock:      instantClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = a.Wait(ctx)
	if !errors.Is(err, scheduler.ErrAllHalted) || ExitCode(err) != ExitAllHalted {
		t.Fatalf("Wait = %v, want ErrAllHalted", err)
	}
	if st := a.Scheduler().Snapshot()[0]; st.State != scheduler.StateHalted || st.LastError == "" {
		t.Fatalf("task = %+v, want halted with error", st)
	}
	_ = a.Stop(context.Background(), StopAllHalted)
}
