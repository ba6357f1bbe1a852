package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	rtsup "threadsched/internal/runtime/supervisor"
	"threadsched/internal/scheduler"
	logx "threadsched/pkg/logx"
)

type fakeSource struct {
	tasks []scheduler.TaskSnapshot
}

func (f fakeSource) Snapshot() []scheduler.TaskSnapshot { return f.tasks }
func (f fakeSource) Goroutines() rtsup.Snapshot         { return rtsup.Snapshot{Active: int64(len(f.tasks))} }

func newTestService(cfg Config, src Source) *Service {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "threadsched_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	return New(cfg, src, reg, logx.Nop())
}

func do(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	next := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	src := fakeSource{tasks: []scheduler.TaskSnapshot{
		{Task: "standup", Channel: "123", State: scheduler.StateWaiting, Period: "daily at 09:00:00", Next: next},
		{Task: "retro", Channel: "123", State: scheduler.StateHalted, LastError: "send message: boom"},
	}}
	h := newTestService(Config{}, src).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var health struct {
		Status      string `json:"status"`
		Tasks       int    `json:"tasks"`
		TasksHalted int    `json:"tasks_halted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health.Status != "ok" || health.Tasks != 2 || health.TasksHalted != 1 {
		t.Fatalf("healthz = %+v", health)
	}

	rec = do(t, h, http.MethodGet, "/tasks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tasks status = %d", rec.Code)
	}
	var body struct {
		Tasks []scheduler.TaskSnapshot `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	if len(body.Tasks) != 2 || body.Tasks[0].Task != "standup" || !body.Tasks[0].Next.Equal(next) {
		t.Fatalf("tasks = %+v", body.Tasks)
	}
	if body.Tasks[1].State != scheduler.StateHalted || body.Tasks[1].LastError == "" {
		t.Fatalf("halted task = %+v", body.Tasks[1])
	}

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "threadsched_test_total 1") {
		t.Fatalf("metrics = %d %q", rec.Code, rec.Body.String())
	}

	if rec := do(t, h, http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof without flag = %d, want 404", rec.Code)
	}
}

func TestHealthAllHalted(t *testing.T) {
	t.Parallel()

	src := fakeSource{tasks: []scheduler.TaskSnapshot{{Task: "a", State: scheduler.StateHalted}}}
	rec := do(t, newTestService(Config{}, src).Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPprofRoutes(t *testing.T) {
	t.Parallel()

	h := newTestService(Config{Pprof: true}, fakeSource{}).Handler()
	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/goroutine?debug=1"} {
		if rec := do(t, h, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, rec.Code)
		}
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()

	h := newTestService(Config{Token: "s3cret"}, fakeSource{}).Handler()
	tests := []struct {
		name   string
		target string
		hdr    map[string]string
		want   int
	}{
		{name: "missing", target: "/tasks", want: http.StatusUnauthorized},
		{name: "bearer", target: "/tasks", hdr: map[string]string{"Authorization": "Bearer s3cret"}, want: http.StatusOK},
		{name: "bearer lowercase", target: "/tasks", hdr: map[string]string{"Authorization": "bearer s3cret"}, want: http.StatusOK},
		{name: "wrong bearer", target: "/tasks", hdr: map[string]string{"Authorization": "Bearer nope"}, want: http.StatusUnauthorized},
		{name: "query", target: "/tasks?token=s3cret", want: http.StatusOK},
		{name: "wrong query", target: "/tasks?token=nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, http.MethodGet, tt.target, tt.hdr)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Fatalf("missing WWW-Authenticate header")
			}
		})
	}
}

func TestServeRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := newTestService(Config{Enabled: true, Addr: "0.0.0.0:0"}, fakeSource{})
	if err := s.serveOnce(context.Background()); err == nil || !strings.Contains(err.Error(), "insecure bind") {
		t.Fatalf("serveOnce = %v, want insecure bind refusal", err)
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	t.Parallel()

	s := newTestService(Config{Enabled: true, Addr: ":0"}, fakeSource{})
	s.Start(context.Background())
	if s.Supervisor() != nil {
		t.Fatal("supervisor started for an unauthenticated public bind")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s := newTestService(Config{Enabled: true, Addr: "127.0.0.1:0"}, fakeSource{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for addr == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
		addr = s.Addr()
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	if s.Supervisor() != nil || s.Addr() != "" {
		t.Fatal("server still running after Stop")
	}
}
