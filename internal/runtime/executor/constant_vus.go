package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/socialload/internal/metrics"
	"github.com/wesleyorama2/socialload/internal/runtime"
)

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// Each VU runs iterations back to back (closed model); the pause between
// iterations is the workload's think time.
type ConstantVUs struct {
	config  *Config
	metrics *metrics.Engine
	pool    *vuPool

	startTime time.Time
	running   atomic.Bool
	graceful  atomic.Bool

	cancelFunc context.CancelFunc
	done       chan struct{}

	mu sync.RWMutex
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{done: make(chan struct{})}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run spawns all VUs, keeps them running for the configured duration and
// then drains them.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *runtime.VUScheduler, metricsEngine *metrics.Engine) error {
	defer close(e.done)

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	defer cancel()

	e.mu.Lock()
	e.metrics = metricsEngine
	e.pool = newVUPool(ctx, scheduler, metricsEngine)
	e.startTime = time.Now()
	e.cancelFunc = cancel
	e.mu.Unlock()
	e.running.Store(true)

	metricsEngine.SetPhase(metrics.PhaseSteady)
	e.pool.scaleTo(e.config.VUs)

	<-runCtx.Done()

	metricsEngine.SetPhase(metrics.PhaseRampDown)
	e.graceful.Store(e.pool.drain(e.config.gracefulStop()))
	e.running.Store(false)

	return nil
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if !e.running.Load() {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(e.config.Duration)
	return min(progress, 1.0)
}

// GetActiveVUs returns current active VU count.
func (e *ConstantVUs) GetActiveVUs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return 0
	}
	return e.pool.activeVUs()
}

// StoppedGracefully reports whether every VU finished its last iteration
// inside the graceful stop window.
func (e *ConstantVUs) StoppedGracefully() bool {
	return e.graceful.Load()
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{
		StartTime:     e.startTime,
		CurrentTime:   time.Now(),
		TotalDuration: e.config.Duration,
		TargetVUs:     e.config.VUs,
	}
	if !e.startTime.IsZero() {
		stats.Elapsed = time.Since(e.startTime)
	}
	if e.pool != nil {
		stats.ActiveVUs = e.pool.activeVUs()
	}
	if e.metrics != nil {
		stats.Iterations = e.metrics.Iterations()
	}
	return stats
}

// Stop ends the run early and waits for Run to return.
func (e *ConstantVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure ConstantVUs implements Executor
var _ Executor = (*ConstantVUs)(nil)
