// Package threshold parses and evaluates k6-style pass/fail criteria such
// as "p(95)<500" on http_req_duration or "rate<0.05" on http_req_failed.
//
// http_req_failed is the share of calls that were not a 200. errors is the
// share of calls that failed their checks, which also counts 200s slower
// than the profile's latency bound.
package threshold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/socialload/internal/metrics"
)

// Metric names accepted as threshold keys.
const (
	MetricDuration = "http_req_duration"
	MetricFailed   = "http_req_failed"
	MetricReqs     = "http_reqs"
	MetricErrors   = "errors"
)

// Metrics lists every supported metric.
var Metrics = []string{MetricDuration, MetricFailed, MetricReqs, MetricErrors}

var exprRe = regexp.MustCompile(`^(\w+)(?:\(\s*(\d+(?:\.\d+)?)\s*\))?\s*(<=|>=|==|!=|<>|<|>|=)\s*(.+)$`)

// Set maps a metric name to its expressions, the shape of k6's
// options.thresholds.
type Set map[string][]string

// Threshold is one parsed expression.
type Threshold struct {
	Metric string
	Raw    string

	// Stat is the aggregation: "p", "avg", "med", "min", "max", "rate" or "count".
	Stat string
	// Quantile is set for Stat "p", in percent.
	Quantile float64

	Op    string
	Value float64
}

// Parse parses expr for metric. Duration values are milliseconds unless a
// Go duration unit is given ("500ms", "2s").
func Parse(metric, expr string) (Threshold, error) {
	t := Threshold{Metric: metric, Raw: strings.TrimSpace(expr)}

	m := exprRe.FindStringSubmatch(t.Raw)
	if m == nil {
		return t, fmt.Errorf("invalid expression format: %s", expr)
	}
	stat, arg, op, value := m[1], m[2], m[3], strings.TrimSpace(m[4])
	t.Op = op

	switch metric {
	case MetricDuration:
		switch {
		case stat == "p" && arg != "":
			q, _ := strconv.ParseFloat(arg, 64)
			t.Stat, t.Quantile = "p", q
		case strings.HasPrefix(stat, "p") && arg == "" && len(stat) > 1:
			q, err := strconv.ParseFloat(stat[1:], 64)
			if err != nil {
				return t, fmt.Errorf("unknown statistic %q for %s", stat, metric)
			}
			t.Stat, t.Quantile = "p", q
		case arg == "" && (stat == "avg" || stat == "med" || stat == "min" || stat == "max"):
			t.Stat = stat
		default:
			return t, fmt.Errorf("unknown statistic %q for %s", stat, metric)
		}
		if t.Stat == "p" && (t.Quantile <= 0 || t.Quantile > 100) {
			return t, fmt.Errorf("percentile must be in (0, 100], got %v", t.Quantile)
		}
		ms, err := parseMillis(value)
		if err != nil {
			return t, err
		}
		t.Value = ms

	case MetricFailed, MetricErrors:
		if stat != "rate" || arg != "" {
			return t, fmt.Errorf("%s only supports 'rate', got: %s", metric, stat)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return t, fmt.Errorf("failed to parse threshold value: %w", err)
		}
		t.Stat, t.Value = stat, v

	case MetricReqs:
		if (stat != "rate" && stat != "count") || arg != "" {
			return t, fmt.Errorf("%s only supports 'count' or 'rate', got: %s", metric, stat)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return t, fmt.Errorf("failed to parse threshold value: %w", err)
		}
		t.Stat, t.Value = stat, v

	default:
		return t, fmt.Errorf("unknown metric: %s", metric)
	}

	return t, nil
}

func parseMillis(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse threshold value %q: %w", s, err)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// ParseSet parses every expression of s, in metric name order.
func ParseSet(s Set) ([]Threshold, error) {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Threshold
	for _, name := range names {
		for _, expr := range s[name] {
			t, err := Parse(name, expr)
			if err != nil {
				return nil, fmt.Errorf("threshold %s %q: %w", name, expr, err)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// Source supplies the values thresholds are checked against.
type Source interface {
	Snapshot() *metrics.Snapshot
	Quantile(q float64) time.Duration
}

// Result contains the result of a threshold evaluation.
type Result struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Evaluate checks t against the current values of src.
func Evaluate(t Threshold, src Source) Result {
	snap := src.Snapshot()
	res := Result{Metric: t.Metric, Expression: t.Raw}

	var actual float64
	switch t.Metric {
	case MetricDuration:
		var d time.Duration
		switch t.Stat {
		case "p":
			d = src.Quantile(t.Quantile)
		case "avg":
			d = snap.Latency.Mean
		case "med":
			d = snap.Latency.P50
		case "min":
			d = snap.Latency.Min
		case "max":
			d = snap.Latency.Max
		}
		actual = float64(d) / float64(time.Millisecond)
		res.Value = fmt.Sprintf("%.2fms", actual)

	case MetricFailed:
		actual = snap.ErrorRate
		res.Value = fmt.Sprintf("%.4f", actual)

	case MetricErrors:
		actual = snap.CheckFailureRate
		res.Value = fmt.Sprintf("%.4f", actual)

	case MetricReqs:
		if t.Stat == "count" {
			actual = float64(snap.TotalRequests)
		} else {
			actual = snap.OverallRPS
		}
		res.Value = fmt.Sprintf("%.2f", actual)
	}

	res.Passed = compareValues(actual, t.Op, t.Value)
	if !res.Passed {
		res.Message = fmt.Sprintf("%s is %s, threshold: %s %v", t.statName(), res.Value, t.Op, t.Value)
	}
	return res
}

// EvaluateAll evaluates every threshold and reports whether all passed.
func EvaluateAll(ts []Threshold, src Source) ([]Result, bool) {
	results := make([]Result, 0, len(ts))
	passed := true
	for _, t := range ts {
		r := Evaluate(t, src)
		passed = passed && r.Passed
		results = append(results, r)
	}
	return results, passed
}

func (t Threshold) statName() string {
	if t.Stat == "p" {
		return fmt.Sprintf("p(%g)", t.Quantile)
	}
	return t.Stat
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
