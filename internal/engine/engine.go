// Package engine runs one load profile end to end: setup, the executor,
// teardown and threshold evaluation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/socialload/internal/config"
	"github.com/wesleyorama2/socialload/internal/metrics"
	"github.com/wesleyorama2/socialload/internal/profile"
	"github.com/wesleyorama2/socialload/internal/runtime"
	"github.com/wesleyorama2/socialload/internal/runtime/executor"
	"github.com/wesleyorama2/socialload/internal/threshold"
	"github.com/wesleyorama2/socialload/internal/workload"
)

const (
	// DefaultProgressInterval is how often OnProgress is called.
	DefaultProgressInterval = 5 * time.Second

	schedulerShutdownTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

// Options are the per-run settings that do not belong to a profile.
type Options struct {
	// BaseURL of the social network front end. Empty means config.DefaultBaseURL.
	BaseURL string

	// RequestTimeout overrides the profile timeout when > 0.
	RequestTimeout time.Duration

	// HTTP tunes the shared transport. Zero value means
	// runtime.DefaultHTTPClientConfig.
	HTTP runtime.HTTPClientConfig

	// MetricsAddr serves Prometheus metrics while the run is in progress.
	// Empty disables the endpoint.
	MetricsAddr string

	// Seed fixes the per-VU random sources. Zero picks a random seed.
	Seed uint64

	Logger logr.Logger

	// OnProgress is called every ProgressInterval while the executor runs.
	OnProgress       func(Progress)
	ProgressInterval time.Duration
}

// Progress is a live view of a running test.
type Progress struct {
	Fraction   float64
	Elapsed    time.Duration
	ActiveVUs  int
	Iterations int64
	Snapshot   *metrics.Snapshot
}

// TestResult contains the complete test results.
type TestResult struct {
	RunID       string        `json:"runId"`
	Profile     string        `json:"profile"`
	Description string        `json:"description,omitempty"`
	Executor    string        `json:"executor"`
	BaseURL     string        `json:"baseUrl"`
	Seed        uint64        `json:"seed"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	Metrics      *metrics.Snapshot                 `json:"metrics"`
	Operations   map[string]metrics.OperationStats `json:"operations"`
	StatusCounts metrics.StatusCounts              `json:"statusCounts"`
	Teardown     workload.TeardownSummary          `json:"teardown"`
	Iterations   int64                             `json:"iterations"`

	// StoppedGracefully is false when VUs had to be cut off after the
	// graceful stop window.
	StoppedGracefully bool                  `json:"stoppedGracefully"`
	Phases            []metrics.PhaseChange `json:"phases,omitempty"`
	TimeSeries        []*metrics.TimeBucket `json:"timeSeries,omitempty"`

	Passed     bool               `json:"passed"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

// Engine is the main orchestrator of a load test.
//
// Example usage:
//
//	p, _ := profile.Get("load")
//	eng, _ := engine.NewEngine(p, engine.Options{BaseURL: "http://localhost:8080"})
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	profile    *profile.Profile
	opts       Options
	root       logr.Logger
	log        logr.Logger
	thresholds []threshold.Threshold

	metricsEngine *metrics.Engine
	exec          executor.Executor
	metricsLn     net.Listener

	mu        sync.RWMutex
	startTime time.Time
	running   bool
}

// NewEngine validates p and prepares a run.
func NewEngine(p *profile.Profile, opts Options) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	ts, err := threshold.ParseSet(p.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.HTTP == (runtime.HTTPClientConfig{}) {
		opts.HTTP = runtime.DefaultHTTPClientConfig()
	}
	opts.HTTP.Timeout = p.Timeout()
	if opts.RequestTimeout > 0 {
		opts.HTTP.Timeout = opts.RequestTimeout
	}

	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Engine{
		profile:    p,
		opts:       opts,
		root:       log,
		log:        log.WithName("engine").WithValues("profile", p.Name),
		thresholds: ts,
	}, nil
}

// Profile returns the profile being run.
func (e *Engine) Profile() *profile.Profile {
	return e.profile
}

func (e *Engine) newGenerator(httpClient *http.Client, sink metrics.Sink) (*workload.Generator, error) {
	client := workload.NewClient(e.opts.BaseURL, httpClient)
	return workload.New(client, sink, e.root, e.profile.Workload)
}

// Setup registers the seed user and returns without generating load.
func (e *Engine) Setup(ctx context.Context) (workload.SeedContext, error) {
	httpClient := runtime.NewHTTPClient(e.opts.HTTP)
	defer httpClient.CloseIdleConnections()

	gen, err := e.newGenerator(httpClient, metrics.SinkFunc(func(metrics.Sample) {}))
	if err != nil {
		return workload.SeedContext{}, err
	}
	return gen.Setup(ctx), nil
}

// Run executes the profile and returns the test results. The returned
// error is only set when the run could not be carried out; failed
// thresholds are reported through TestResult.Passed.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()
	e.metricsEngine = metrics.NewEngine()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	defer e.metricsEngine.Stop()

	exec, err := executor.CreateAndInitExecutor(ctx, &e.profile.Executor)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.exec = exec
	e.mu.Unlock()

	var sink metrics.Sink = e.metricsEngine
	var prom *metrics.PromCollector
	if e.opts.MetricsAddr != "" {
		prom = metrics.NewPromCollector()
		e.metricsEngine.Attach(prom)
		sink = metrics.Fanout{e.metricsEngine, prom}
	}

	httpClient := runtime.NewHTTPClient(e.opts.HTTP)
	gen, err := e.newGenerator(httpClient, sink)
	if err != nil {
		return nil, err
	}

	var srv *http.Server
	if prom != nil {
		srv, err = e.listenMetrics(prom)
		if err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			if err := srv.Serve(e.metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	var result *TestResult
	g.Go(func() error {
		if srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
		var runErr error
		result, runErr = e.execute(gctx, exec, gen, httpClient)
		return runErr
	})

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// execute is the setup -> executor -> teardown sequence.
func (e *Engine) execute(ctx context.Context, exec executor.Executor, gen *workload.Generator, httpClient *http.Client) (*TestResult, error) {
	m := e.metricsEngine

	e.log.Info("starting test",
		"baseUrl", e.opts.BaseURL,
		"executor", exec.Type(),
		"peakVUs", e.profile.Executor.PeakVUs(),
		"duration", e.profile.Executor.TotalDuration().String(),
	)

	m.SetPhase(metrics.PhaseSetup)
	seed := gen.Setup(ctx)

	scheduler := runtime.NewVUScheduler(gen.Bind(seed), m, httpClient, e.opts.Seed)

	stopProgress := e.reportProgress(exec)
	runErr := exec.Run(ctx, scheduler, m)
	stopProgress()

	if !scheduler.Shutdown(schedulerShutdownTimeout) {
		e.log.Info("scheduler shutdown timed out", "timeout", schedulerShutdownTimeout.String())
	}

	m.SetPhase(metrics.PhaseTeardown)
	m.Stop()
	teardown := gen.Teardown(m.StatusCounts())
	m.SetPhase(metrics.PhaseDone)

	results, passed := threshold.EvaluateAll(e.thresholds, m)
	for _, r := range results {
		if !r.Passed {
			e.log.Info("threshold failed", "metric", r.Metric, "expression", r.Expression, "value", r.Value)
		}
	}

	graceful := true
	if g, ok := exec.(interface{ StoppedGracefully() bool }); ok {
		graceful = g.StoppedGracefully()
	}

	end := time.Now()
	result := &TestResult{
		RunID:             uuid.NewString(),
		Profile:           e.profile.Name,
		Description:       e.profile.Description,
		Executor:          string(exec.Type()),
		BaseURL:           e.opts.BaseURL,
		Seed:              scheduler.Seed(),
		StartTime:         e.startTime,
		EndTime:           end,
		Duration:          end.Sub(e.startTime),
		Metrics:           m.Snapshot(),
		Operations:        m.Operations(),
		StatusCounts:      m.StatusCounts(),
		Teardown:          teardown,
		Iterations:        m.Iterations(),
		StoppedGracefully: graceful,
		Phases:            m.PhaseHistory(),
		TimeSeries:        m.TimeSeries(),
		Passed:            passed,
		Thresholds:        results,
	}

	if runErr != nil {
		return result, fmt.Errorf("executor: %w", runErr)
	}
	return result, nil
}

func (e *Engine) reportProgress(exec executor.Executor) (stop func()) {
	if e.opts.OnProgress == nil {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.opts.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.opts.OnProgress(e.progress(exec))
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (e *Engine) progress(exec executor.Executor) Progress {
	snap := e.metricsEngine.Snapshot()
	return Progress{
		Fraction:   exec.GetProgress(),
		Elapsed:    snap.Elapsed,
		ActiveVUs:  exec.GetActiveVUs(),
		Iterations: snap.Iterations,
		Snapshot:   snap,
	}
}

func (e *Engine) listenMetrics(prom *metrics.PromCollector) (*http.Server, error) {
	ln, err := net.Listen("tcp", e.opts.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", e.opts.MetricsAddr, err)
	}
	e.mu.Lock()
	e.metricsLn = ln
	e.mu.Unlock()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", prom.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	e.log.Info("serving metrics", "addr", ln.Addr().String())
	return &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}, nil
}

// MetricsAddr returns the address the metrics endpoint is bound to, or ""
// when it is disabled or the run has not started.
func (e *Engine) MetricsAddr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metricsLn == nil {
		return ""
	}
	return e.metricsLn.Addr().String()
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	m := e.metricsEngine
	e.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.Snapshot()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// GetProgress returns the executor progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	exec := e.exec
	e.mu.RUnlock()
	if exec == nil {
		return 0
	}
	return exec.GetProgress()
}

// Stop ends the run early. Running iterations still get the graceful
// stop window.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	running, exec := e.running, e.exec
	e.mu.RUnlock()
	if !running || exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}
