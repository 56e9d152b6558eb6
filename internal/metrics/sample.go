package metrics

import (
	"net/http"
	"time"
)

// Sample is a single observed HTTP call made by the workload generator.
type Sample struct {
	// Operation names the endpoint call (e.g. "RegisterUser", "ComposePost")
	Operation string

	// StatusCode is the HTTP status; 0 when the call never produced a response
	StatusCode int

	Duration time.Duration
	Success  bool

	// CheckFailed is set when the call failed its checks, e.g. a 200 that
	// exceeded its latency bound. Unsuccessful samples always count as
	// failed checks.
	CheckFailed bool

	Bytes int64
}

// FailedCheck reports whether the sample counts against the errors rate.
func (s Sample) FailedCheck() bool {
	return s.CheckFailed || !s.Success
}

// Class returns the status class of the sample.
func (s Sample) Class() StatusClass {
	return Classify(s.StatusCode)
}

// StatusClass buckets a status code for the teardown summary.
type StatusClass string

const (
	Status200   StatusClass = "200"
	Status400   StatusClass = "400"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// StatusClasses lists every class in summary order.
var StatusClasses = []StatusClass{Status200, Status400, Status5xx, StatusOther}

// Classify maps a status code onto exactly one StatusClass.
//
// 0 (transport error or timeout) and every code that is neither 200, 400
// nor >= 500 land in StatusOther.
func Classify(code int) StatusClass {
	switch {
	case code == http.StatusOK:
		return Status200
	case code == http.StatusBadRequest:
		return Status400
	case code >= http.StatusInternalServerError:
		return Status5xx
	default:
		return StatusOther
	}
}

// StatusCounts is a plain numeric view of the status-class counters.
type StatusCounts struct {
	OK         int64 `json:"200"`
	BadRequest int64 `json:"400"`
	ServerErr  int64 `json:"5xx"`
	Other      int64 `json:"other"`
}

// Total returns the number of classified samples.
func (c StatusCounts) Total() int64 {
	return c.OK + c.BadRequest + c.ServerErr + c.Other
}

// SuccessRate is the share of 200 responses, 0 when nothing was recorded.
func (c StatusCounts) SuccessRate() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.OK) / float64(total)
}

// Get returns the counter for a class.
func (c StatusCounts) Get(class StatusClass) int64 {
	switch class {
	case Status200:
		return c.OK
	case Status400:
		return c.BadRequest
	case Status5xx:
		return c.ServerErr
	default:
		return c.Other
	}
}

// Sink receives samples from the workload generator.
//
// Implementations must be safe for concurrent use: every virtual user
// records into the same sink.
type Sink interface {
	Record(Sample)
}

// Fanout forwards each sample to every sink it holds.
type Fanout []Sink

// Record implements Sink.
func (f Fanout) Record(s Sample) {
	for _, sink := range f {
		if sink != nil {
			sink.Record(s)
		}
	}
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Sample)

// Record implements Sink.
func (fn SinkFunc) Record(s Sample) {
	fn(s)
}

var (
	_ Sink = Fanout(nil)
	_ Sink = SinkFunc(nil)
)
