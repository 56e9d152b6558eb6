package metrics

import "time"

// Phase represents a phase of the load run.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseSetup    Phase = "setup"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseTeardown Phase = "teardown"
	PhaseDone     Phase = "done"
)

// Snapshot contains a point-in-time view of all metrics.
//
// Every field is a plain value; callers never see histogram internals.
type Snapshot struct {
	// TotalRequests is the total number of recorded HTTP calls
	TotalRequests int64 `json:"totalRequests"`

	// SuccessRequests is the number of calls answered with 200
	SuccessRequests int64 `json:"successRequests"`

	// FailedRequests is the number of calls that were not a 200, including
	// transport errors and timeouts
	FailedRequests int64 `json:"failedRequests"`

	// CheckFailures is the number of calls that failed their checks: every
	// failed request plus 200s slower than their latency bound
	CheckFailures int64 `json:"checkFailures"`

	// TotalBytes is the total bytes received
	TotalBytes int64 `json:"totalBytes"`

	// Iterations is the number of completed VU iterations
	Iterations int64 `json:"iterations"`

	// Latency contains latency statistics over every call
	Latency LatencyStats `json:"latency"`

	// Status holds the 200 / 400 / 5xx / other counters
	Status StatusCounts `json:"status"`

	// RPS is the steady-state rate when the run had a steady phase,
	// otherwise the overall average.
	RPS float64 `json:"rps"`

	// OverallRPS is TotalRequests divided by the elapsed time
	OverallRPS float64 `json:"overallRps"`

	// SteadyStateRPS is the RPS calculated only from steady-state buckets
	SteadyStateRPS float64 `json:"steadyStateRps"`

	// ErrorRate is the fraction of samples not marked successful (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	// CheckFailureRate is CheckFailures over TotalRequests (0.0 to 1.0)
	CheckFailureRate float64 `json:"checkFailureRate"`

	// ActiveVUs is the current number of active virtual users
	ActiveVUs int `json:"activeVUs"`

	// CurrentPhase is the current run phase
	CurrentPhase Phase `json:"currentPhase"`

	// Elapsed is the time elapsed since the run started
	Elapsed time.Duration `json:"elapsed"`

	// StartTime is when the run started
	StartTime time.Time `json:"startTime"`

	// Timestamp is when this snapshot was taken
	Timestamp time.Time `json:"timestamp"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	// Min is the minimum latency observed
	Min time.Duration `json:"min"`

	// Max is the maximum latency observed
	Max time.Duration `json:"max"`

	// Mean is the average latency
	Mean time.Duration `json:"mean"`

	// StdDev is the standard deviation of latencies
	StdDev time.Duration `json:"stdDev"`

	// P50 is the 50th percentile (median) latency
	P50 time.Duration `json:"p50"`

	// P90 is the 90th percentile latency
	P90 time.Duration `json:"p90"`

	// P95 is the 95th percentile latency
	P95 time.Duration `json:"p95"`

	// P99 is the 99th percentile latency
	P99 time.Duration `json:"p99"`

	// Count is the number of latency observations
	Count int64 `json:"count"`
}

// Percentile returns the latency at quantile q when it is one of the
// tracked percentiles (50, 90, 95, 99).
func (l LatencyStats) Percentile(q float64) (time.Duration, bool) {
	switch q {
	case 50:
		return l.P50, true
	case 90:
		return l.P90, true
	case 95:
		return l.P95, true
	case 99:
		return l.P99, true
	}
	return 0, false
}

// LatencyPercentiles holds latency percentile values.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// TimeBucket represents metrics for one emitter interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters (total since run start)
	TotalRequests  int64 `json:"totalRequests"`
	TotalSuccesses int64 `json:"totalSuccesses"`
	TotalFailures  int64 `json:"totalFailures"`
	TotalBytes     int64 `json:"totalBytes"`

	// Interval metrics
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the ring buffer size (default: 3600)
	MaxBuckets int

	// Histogram bounds in microseconds and precision
	HistogramMin     int64
	HistogramMax     int64
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}
