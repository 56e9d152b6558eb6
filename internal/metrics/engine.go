// Package metrics accumulates the samples produced by the workload generator.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine aggregates samples into HDR histograms and atomic counters.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms are guarded by mutexes, and the bucket emitter runs in its
// own goroutine until Stop is called.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	operations   map[string]*operationStats
	operationsMu sync.RWMutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	checkFailures   atomic.Int64
	totalBytes      atomic.Int64
	iterations      atomic.Int64

	status200   atomic.Int64
	status400   atomic.Int64
	status5xx   atomic.Int64
	statusOther atomic.Int64

	activeVUs atomic.Int32

	observers   []Observer
	observersMu sync.RWMutex

	bucketStore *TimeBucketStore

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

type operationStats struct {
	hist     *hdrhistogram.Histogram
	failures int64
}

// OperationStats summarizes one operation (endpoint call) of the workload.
type OperationStats struct {
	Name     string       `json:"name"`
	Requests int64        `json:"requests"`
	Failures int64        `json:"failures"`
	Latency  LatencyStats `json:"latency"`
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine and starts its emitter.
func NewEngineWithConfig(config EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = def.BucketInterval
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = def.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = def.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = def.HistogramSigFigs
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		operations:    make(map[string]*operationStats),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	e.emitterWg.Add(1)
	go e.runEmitter()

	return e
}

// Record implements Sink.
func (e *Engine) Record(s Sample) {
	micros := e.clamp(s.Duration.Microseconds())

	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(micros)
	e.latencyHistMu.Unlock()

	if s.Operation != "" {
		e.recordOperation(s.Operation, micros, s.Success)
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(s.Bytes)
	if s.Success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}
	if s.FailedCheck() {
		e.checkFailures.Add(1)
	}

	switch s.Class() {
	case Status200:
		e.status200.Add(1)
	case Status400:
		e.status400.Add(1)
	case Status5xx:
		e.status5xx.Add(1)
	default:
		e.statusOther.Add(1)
	}

	e.bucketStore.RecordRequest(s.Success)
}

func (e *Engine) clamp(micros int64) int64 {
	if micros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return micros
}

// recordOperation records into the per-operation histogram.
// HDR histograms are not thread-safe, so the write lock is held throughout.
func (e *Engine) recordOperation(name string, micros int64, success bool) {
	e.operationsMu.Lock()
	defer e.operationsMu.Unlock()

	op, ok := e.operations[name]
	if !ok {
		op = &operationStats{
			hist: hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs),
		}
		e.operations[name] = op
	}

	_ = op.hist.RecordValue(micros)
	if !success {
		op.failures++
	}
}

// Observer mirrors the VU gauge and iteration counter elsewhere.
type Observer interface {
	SetActiveVUs(int)
	AddIteration()
}

// Attach registers an observer for VU and iteration updates.
func (e *Engine) Attach(o Observer) {
	e.observersMu.Lock()
	defer e.observersMu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) eachObserver(fn func(Observer)) {
	e.observersMu.RLock()
	defer e.observersMu.RUnlock()
	for _, o := range e.observers {
		fn(o)
	}
}

// AddIteration counts one completed workload iteration.
func (e *Engine) AddIteration() {
	e.iterations.Add(1)
	e.eachObserver(func(o Observer) { o.AddIteration() })
}

// Iterations returns the number of completed iterations.
func (e *Engine) Iterations() int64 {
	return e.iterations.Load()
}

// SetPhase records a phase transition.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// PhaseHistory returns a copy of the phase transitions.
func (e *Engine) PhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// SetActiveVUs updates the active VU count.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
	e.eachObserver(func(o Observer) { o.SetActiveVUs(count) })
}

// ActiveVUs returns the current active VU count.
func (e *Engine) ActiveVUs() int {
	return int(e.activeVUs.Load())
}

// StatusCounts returns the status-class counters.
func (e *Engine) StatusCounts() StatusCounts {
	return StatusCounts{
		OK:         e.status200.Load(),
		BadRequest: e.status400.Load(),
		ServerErr:  e.status5xx.Load(),
		Other:      e.statusOther.Load(),
	}
}

func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.bucketStore.closeBucket(bucketTotals{
		requests:  e.totalRequests.Load(),
		successes: e.successRequests.Load(),
		failures:  e.failedRequests.Load(),
		bytes:     e.totalBytes.Load(),
		latencies: e.LatencyPercentiles(),
		activeVUs: e.ActiveVUs(),
		phase:     e.Phase(),
	})
}

// LatencyPercentiles returns the current overall latency percentiles.
func (e *Engine) LatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

// Quantile returns the overall latency at percentile q (0-100).
func (e *Engine) Quantile(q float64) time.Duration {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()
	return micros(e.latencyHist.ValueAtQuantile(q))
}

// Snapshot returns a point-in-time view of every counter and the overall
// latency distribution.
func (e *Engine) Snapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := statsFromHistogram(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	total := e.totalRequests.Load()
	failed := e.failedRequests.Load()

	overall := 0.0
	if elapsed.Seconds() > 0 {
		overall = float64(total) / elapsed.Seconds()
	}

	steady, steadyBuckets := e.bucketStore.SteadyStateRPS()
	rps := overall
	if steadyBuckets > 0 {
		rps = steady
	}

	checkFailures := e.checkFailures.Load()
	errorRate, checkRate := 0.0, 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
		checkRate = float64(checkFailures) / float64(total)
	}

	return &Snapshot{
		TotalRequests:    total,
		SuccessRequests:  e.successRequests.Load(),
		FailedRequests:   failed,
		CheckFailures:    checkFailures,
		TotalBytes:       e.totalBytes.Load(),
		Iterations:       e.iterations.Load(),
		Latency:          latency,
		Status:           e.StatusCounts(),
		RPS:              rps,
		OverallRPS:       overall,
		SteadyStateRPS:   steady,
		ErrorRate:        errorRate,
		CheckFailureRate: checkRate,
		ActiveVUs:        e.ActiveVUs(),
		CurrentPhase:     e.Phase(),
		Elapsed:          elapsed,
		StartTime:        e.startTime,
		Timestamp:        time.Now(),
	}
}

// Operations returns per-operation statistics keyed by operation name.
func (e *Engine) Operations() map[string]OperationStats {
	e.operationsMu.RLock()
	defer e.operationsMu.RUnlock()

	result := make(map[string]OperationStats, len(e.operations))
	for name, op := range e.operations {
		result[name] = OperationStats{
			Name:     name,
			Requests: op.hist.TotalCount(),
			Failures: op.failures,
			Latency:  statsFromHistogram(op.hist),
		}
	}
	return result
}

// TimeSeries returns the retained time buckets.
func (e *Engine) TimeSeries() []*TimeBucket {
	return e.bucketStore.Buckets()
}

// Stop stops the emitter and closes a final bucket. Safe to call twice.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()
	})
}

func statsFromHistogram(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

var (
	_ Sink     = (*Engine)(nil)
	_ Observer = (*Engine)(nil)
	_ Observer = (*PromCollector)(nil)
)
