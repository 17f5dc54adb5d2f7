// Package app wires the earshot subsystems into a running process.
//
// The App struct owns the full lifecycle: New creates and connects the voice
// backend, the two queues, the scheduler and the demo world; Run drives the
// tick loop, the background worker, the HTTP surface and the config watcher;
// Shutdown releases every voice and tears the backend down.
//
// For testing, inject doubles via functional options (WithBackend,
// WithRegistry, WithMetrics). When an option is not provided, New builds the
// real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/dispatch"
	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/internal/scheduler"
	"github.com/MrWong99/earshot/internal/sim"
	"github.com/MrWong99/earshot/internal/workqueue"
	"github.com/MrWong99/earshot/pkg/voice"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	cfgPath  string
	registry *config.Registry
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	backend      voice.Backend
	closeBackend func() error
	breaker      *resilience.CircuitBreaker

	work   *workqueue.Queue
	driver *workqueue.Driver
	main   *dispatch.Dispatcher
	sched  *scheduler.Scheduler
	world  *sim.World

	health   *health.Handler
	listener net.Listener
	server   *http.Server
	ready    chan struct{}

	lastTick atomic.Int64

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a voice backend instead of creating one from the
// registry. The caller keeps ownership; Shutdown does not close it.
func WithBackend(b voice.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithRegistry replaces the registry backends are looked up in.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metrics instance shared by every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the process log level so config reloads can
// change it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConfigPath makes Run watch path and apply reloadable changes.
func WithConfigPath(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It opens the audio
// backend, so a failing device surfaces here rather than in Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:          cfg,
		closeBackend: func() error { return nil },
		ready:        make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.backend == nil {
		b, closeFn, err := a.registry.CreateBackend(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.backend, a.closeBackend = b, closeFn
	}

	bc := cfg.Backend.Breaker
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "voice-create",
		MaxFailures:  bc.MaxFailures,
		ResetTimeout: bc.ResetTimeout,
		HalfOpenMax:  bc.HalfOpenMax,
		OnStateChange: func(name string, _, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
	guarded := resilience.NewGuardedBackend(a.backend, a.breaker)

	a.work = workqueue.New(workqueue.WithMetrics(a.metrics))
	a.driver = workqueue.NewDriver(a.work,
		workqueue.WithSlice(cfg.Worker.SliceBudget),
		workqueue.WithMinSleep(cfg.Worker.MinSleep),
	)
	a.main = dispatch.New(dispatch.WithMetrics(a.metrics))

	a.world = sim.New(cfg.Simulation.Seed, cfg.Simulation.Bounds, sim.ListenerSpec{
		OrbitRadius: cfg.Simulation.Listener.OrbitRadius,
		OrbitSpeed:  cfg.Simulation.Listener.OrbitSpeed,
		Height:      cfg.Simulation.Listener.Height,
	}, emitterSpecs(cfg.Simulation.Emitters))

	att, err := cfg.Scheduler.Attenuation.Attenuator()
	if err != nil {
		_ = a.closeBackend()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.sched = scheduler.New(guarded, a.work, a.main,
		scheduler.WithMaxVoices(cfg.Scheduler.MaxVoices),
		scheduler.WithAttenuator(att),
		scheduler.WithLoadTimeout(cfg.Scheduler.LoadTimeout),
		scheduler.WithSummaryInterval(cfg.Scheduler.SummaryInterval),
		scheduler.WithAttacher(a.world),
		scheduler.WithMetrics(a.metrics),
	)

	tick := cfg.Scheduler.TickInterval()
	a.health = health.New(
		health.Heartbeat("ticks", a.LastTick, max(time.Second, 10*tick), nil),
		health.Heartbeat("worker", a.driver.LastSlice, max(time.Second, 10*(cfg.Worker.SliceBudget+cfg.Worker.MinSleep)), nil),
		health.Checker{Name: "backend", Check: func(context.Context) error {
			if st := a.breaker.State(); st == resilience.StateOpen {
				return fmt.Errorf("voice creation breaker is %s", st)
			}
			return nil
		}},
	).WithStatus(a.Status)

	slog.Info("app: initialised",
		"backend", cfg.Backend.Name,
		"max_voices", cfg.Scheduler.MaxVoices,
		"tick_rate", cfg.Scheduler.TickRate,
		"emitters", humanize.Comma(int64(a.world.Population())),
	)
	return a, nil
}

func emitterSpecs(cfgs []config.EmitterConfig) []sim.EmitterSpec {
	specs := make([]sim.EmitterSpec, 0, len(cfgs))
	for _, e := range cfgs {
		specs = append(specs, sim.EmitterSpec{
			Name:          e.Name,
			Count:         e.Count,
			Descriptor:    e.Descriptor,
			Speed:         e.Speed,
			DespawnChance: e.DespawnChance,
		})
	}
	return specs
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run blocks until ctx is cancelled or a subsystem fails. It supervises the
// tick loop and the background work driver, plus the HTTP server when an
// address is configured and the config watcher when a path was given.
// Call Shutdown after Run returns.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Server.ListenAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
		a.listener = ln
		a.server = &http.Server{
			Handler:           observe.Middleware(a.metrics, "/healthz", "/readyz", "/statusz", "/metrics")(a.routes()),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.driver.Run(gctx) })
	g.Go(func() error { return a.tickLoop(gctx) })

	if a.server != nil {
		slog.Info("app: http server listening", "addr", a.listener.Addr().String())
		g.Go(func() error {
			if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	if a.cfgPath != "" {
		w, err := config.NewWatcher(a.cfgPath, a.Reload)
		if err != nil {
			slog.Warn("app: config hot reload disabled", "path", a.cfgPath, "err", err)
		} else {
			g.Go(func() error {
				<-gctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	close(a.ready)
	return g.Wait()
}

// Ready is closed once Run has started every subsystem.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr returns the HTTP listen address, or nil before Run or when no server
// is configured.
func (a *App) Addr() net.Addr {
	select {
	case <-a.ready:
	default:
		return nil
	}
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// tickLoop is the simulation goroutine: it alone touches the scheduler, the
// registry and the world.
func (a *App) tickLoop(ctx context.Context) error {
	interval := a.cfg.Scheduler.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			a.step(now.Sub(last))
			last = now
		}
	}
}

// step runs one simulation frame.
func (a *App) step(dt time.Duration) {
	a.main.RunAll()
	a.world.Advance(dt)
	a.sched.Step(a.world, a.world)
	a.lastTick.Store(time.Now().UnixNano())
}

// LastTick returns when the last tick finished, or the zero time.
func (a *App) LastTick() time.Time {
	ns := a.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every voice and closes the backend. It must be called
// after Run has returned, because it takes over the simulation goroutine's
// role. Released voices are drained until the queues are empty, every load
// in flight has been answered, or the shutdown budget (bounded by ctx) runs
// out.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.main.RunAll()
		released := a.sched.Shutdown()
		slog.Info("app: shutting down", "released", released, "in_flight", a.sched.InFlight())

		deadline := time.Now().Add(a.cfg.Worker.ShutdownBudget)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		for a.work.Len() > 0 || a.main.Len() > 0 || a.sched.InFlight() > 0 {
			left := time.Until(deadline)
			if left <= 0 || ctx.Err() != nil {
				slog.Warn("app: shutdown budget exhausted",
					"pending_jobs", a.work.Len(),
					"in_flight", a.sched.InFlight(),
				)
				shutdownErr = context.DeadlineExceeded
				break
			}
			a.driver.Drain(min(left, a.cfg.Worker.SliceBudget))
			if a.main.RunAll() == 0 && a.work.Len() == 0 && a.sched.InFlight() > 0 {
				// Every job has run, so no answer can still arrive.
				slog.Error("app: loads lost during shutdown", "in_flight", a.sched.InFlight())
				break
			}
		}
		a.work.Close()

		if err := a.closeBackend(); err != nil {
			slog.Warn("app: backend close error", "err", err)
		}
		slog.Info("app: shutdown complete",
			"jobs", humanize.Comma(int64(a.work.Processed())),
			"despawns", humanize.Comma(int64(a.world.Despawns())),
		)
	})
	return shutdownErr
}
