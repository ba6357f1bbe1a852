// Package status serves health, task snapshots, metrics and optional pprof over HTTP.
package status

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threadsched/internal/config"
	rtsup "threadsched/internal/runtime/supervisor"
	"threadsched/internal/scheduler"
	logx "threadsched/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9464"

// Config controls the optional status HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Source is what the server reports on. *scheduler.Service implements it.
type Source interface {
	Snapshot() []scheduler.TaskSnapshot
	Goroutines() rtsup.Snapshot
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	src      Source
	gatherer prometheus.Gatherer
	handler  http.Handler

	ln       net.Listener
	srv      *http.Server
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

// New builds the router. gatherer may be nil, in which case /metrics is not served.
func New(cfg Config, src Source, gatherer prometheus.Gatherer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	s := &Service{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "status")),
		src:      src,
		gatherer: gatherer,
	}
	s.handler = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Service) Handler() http.Handler { return s.handler }

// Addr returns the bound listen address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Supervisor returns the server's internal supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

var releaseMode sync.Once

func (s *Service) routes() http.Handler {
	releaseMode.Do(func() { gin.SetMode(gin.ReleaseMode) })
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.authMiddleware(s.cfg.Token))

	r.GET("/healthz", s.handleHealth)
	r.GET("/tasks", s.handleTasks)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	if s.cfg.Pprof {
		pp := r.Group("/debug/pprof")
		{
			pp.GET("/", gin.WrapF(hpprof.Index))
			pp.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
			pp.GET("/profile", gin.WrapF(hpprof.Profile))
			pp.GET("/symbol", gin.WrapF(hpprof.Symbol))
			pp.POST("/symbol", gin.WrapF(hpprof.Symbol))
			pp.GET("/trace", gin.WrapF(hpprof.Trace))
			pp.GET("/:name", gin.WrapF(hpprof.Index))
		}
	}
	return r
}

// handleHealth reports 200 while at least one runner is alive and 503 once
// every runner has halted.
func (s *Service) handleHealth(c *gin.Context) {
	tasks := s.src.Snapshot()
	halted := 0
	for _, t := range tasks {
		if t.State == scheduler.StateHalted {
			halted++
		}
	}
	status, code := "ok", http.StatusOK
	if len(tasks) > 0 && halted == len(tasks) {
		status, code = "halted", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":       status,
		"tasks":        len(tasks),
		"tasks_halted": halted,
		"supervisor":   s.src.Goroutines(),
	})
}

func (s *Service) handleTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.src.Snapshot()})
}

func (s *Service) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("latency", latency),
		)
	}
}

// authMiddleware accepts "Authorization: Bearer <token>" or ?token=<token>.
func (s *Service) authMiddleware(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			ah := c.GetHeader("Authorization")
			if len(ah) > 7 && strings.EqualFold(ah[:7], "bearer ") {
				got = strings.TrimSpace(ah[7:])
			}
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Start runs the server under a restart loop. It is idempotent and does
// nothing when the server is disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.mu.Lock()
		// If stopping, wait for it to finish before restarting.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
			continue
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		// Retrying cannot fix the address, so refuse once.
		if insecureBind(s.cfg) {
			addr := s.cfg.Addr
			s.mu.Unlock()
			s.log.Error("status server refused to start: non-loopback addr requires token or allow_insecure",
				logx.String("addr", addr),
			)
			return
		}
		s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))
		sup := s.sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce,
			rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
			rtsup.WithMaxRestarts(20),
		)
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	sup := s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.ln = nil
		s.srv = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("status server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cur.Addr)

	if insecureBind(cur) {
		return errInsecureBind
	}
	if cur.AllowInsecure && cur.Token == "" && !config.IsLoopbackAddr(addr) {
		s.log.Warn("status server running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.log.Error("status listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			// Bounded; Stop(ctx) does the real graceful shutdown.
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = srv.Shutdown(cctx)
			cancel()
		case <-stopWatch:
		}
	}()

	s.log.Info("status server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cur.Token != ""),
		logx.Bool("pprof", cur.Pprof),
	)
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("status server exited unexpectedly")
	}
	return err
}

var errInsecureBind = errors.New("status server refused to start: insecure bind")

// insecureBind reports a public listen address with no auth configured.
func insecureBind(cfg Config) bool {
	return !cfg.AllowInsecure && cfg.Token == "" && !config.IsLoopbackAddr(cfg.Addr)
}
