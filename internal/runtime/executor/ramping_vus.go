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

// adjustInterval is how often the ramping controller recomputes the target.
const adjustInterval = 100 * time.Millisecond

// RampingVUs ramps VU count up and down according to stages.
//
// The target is interpolated linearly inside each stage, starting from 0
// for the first stage, and re-evaluated every 100ms.
//
// Example stages:
//
//	stages:
//	  - duration: 2m
//	    target: 75     # Ramp from 0 to 75 VUs over 2m
//	  - duration: 26m
//	    target: 75     # Hold 75 VUs
//	  - duration: 2m
//	    target: 0      # Ramp down to 0
type RampingVUs struct {
	config  *Config
	metrics *metrics.Engine
	pool    *vuPool

	startTime    time.Time
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool
	graceful     atomic.Bool

	cancelFunc context.CancelFunc
	done       chan struct{}

	mu sync.RWMutex
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{done: make(chan struct{})}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run drives the VU count through the stages and blocks until they are
// over and the VUs have drained.
func (e *RampingVUs) Run(ctx context.Context, scheduler *runtime.VUScheduler, metricsEngine *metrics.Engine) error {
	defer close(e.done)

	runCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
	defer cancel()

	e.mu.Lock()
	e.metrics = metricsEngine
	e.pool = newVUPool(ctx, scheduler, metricsEngine)
	e.startTime = time.Now()
	e.cancelFunc = cancel
	e.mu.Unlock()
	e.running.Store(true)

	e.adjust(0)

	ticker := time.NewTicker(adjustInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			e.adjust(time.Since(e.startTime))
		}
	}

	metricsEngine.SetPhase(metrics.PhaseRampDown)
	e.graceful.Store(e.pool.drain(e.config.gracefulStop()))
	e.running.Store(false)

	return nil
}

func (e *RampingVUs) adjust(elapsed time.Duration) {
	target, stage := e.calculateTargetVUs(elapsed)
	e.currentStage.Store(int32(stage))
	e.targetVUs.Store(int32(target))
	e.pool.scaleTo(target)
	e.updatePhase(stage)
}

// calculateTargetVUs returns the interpolated VU target and the stage index
// for the given elapsed time.
func (e *RampingVUs) calculateTargetVUs(elapsed time.Duration) (int, int) {
	var stageStart time.Duration
	prevTarget := 0

	for i, stage := range e.config.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			progress = max(0, min(progress, 1))

			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5), i
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	last := len(e.config.Stages) - 1
	if last < 0 {
		return 0, 0
	}
	return e.config.Stages[last].Target, last
}

// updatePhase maps the stage shape onto a metrics phase.
func (e *RampingVUs) updatePhase(stageIdx int) {
	if stageIdx >= len(e.config.Stages) {
		return
	}

	stage := e.config.Stages[stageIdx]
	prevTarget := 0
	if stageIdx > 0 {
		prevTarget = e.config.Stages[stageIdx-1].Target
	}

	switch {
	case stage.Target == prevTarget:
		e.metrics.SetPhase(metrics.PhaseSteady)
	case stage.Target > prevTarget:
		e.metrics.SetPhase(metrics.PhaseRampUp)
	default:
		e.metrics.SetPhase(metrics.PhaseRampDown)
	}
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if !e.running.Load() {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}

	total := e.config.TotalDuration()
	if total == 0 {
		return 1.0
	}
	return min(float64(time.Since(start))/float64(total), 1.0)
}

// GetActiveVUs returns current active VU count.
func (e *RampingVUs) GetActiveVUs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return 0
	}
	return e.pool.activeVUs()
}

// StoppedGracefully reports whether every VU finished its last iteration
// inside the graceful stop window.
func (e *RampingVUs) StoppedGracefully() bool {
	return e.graceful.Load()
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stageIdx := int(e.currentStage.Load())
	stageName := ""
	if stageIdx < len(e.config.Stages) {
		stageName = e.config.Stages[stageIdx].Name
	}

	stats := &Stats{
		StartTime:        e.startTime,
		CurrentTime:      time.Now(),
		TotalDuration:    e.config.TotalDuration(),
		TargetVUs:        int(e.targetVUs.Load()),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(e.config.Stages),
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
func (e *RampingVUs) Stop(ctx context.Context) error {
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

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
