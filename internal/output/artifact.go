package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/socialload/internal/engine"
	"github.com/wesleyorama2/socialload/internal/metrics"
	"github.com/wesleyorama2/socialload/internal/threshold"
)

// WriteArtifact writes result as indented JSON to dir/name and returns the
// path written.
func WriteArtifact(dir, name string, result *engine.TestResult) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return path, nil
}

// Artifact is the subset of a saved result shown by the report command.
type Artifact struct {
	RunID         string
	Profile       string
	BaseURL       string
	StartTime     time.Time
	Duration      time.Duration
	Passed        bool
	TotalRequests int64
	ErrorRate     float64
	P95           time.Duration
	P99           time.Duration
	Status        metrics.StatusCounts
	Thresholds    []threshold.Result
}

// ReadArtifact loads the headline figures of a JSON artifact without
// decoding the time series.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return ParseArtifact(data)
}

// ParseArtifact extracts an Artifact from raw JSON.
func ParseArtifact(data []byte) (*Artifact, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("artifact is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.Get("runId").Exists() || !doc.Get("profile").Exists() {
		return nil, fmt.Errorf("artifact is missing runId or profile")
	}

	a := &Artifact{
		RunID:         doc.Get("runId").String(),
		Profile:       doc.Get("profile").String(),
		BaseURL:       doc.Get("baseUrl").String(),
		StartTime:     doc.Get("startTime").Time(),
		Duration:      time.Duration(doc.Get("duration").Int()),
		Passed:        doc.Get("passed").Bool(),
		TotalRequests: doc.Get("metrics.totalRequests").Int(),
		ErrorRate:     doc.Get("metrics.errorRate").Float(),
		P95:           time.Duration(doc.Get("metrics.latency.p95").Int()),
		P99:           time.Duration(doc.Get("metrics.latency.p99").Int()),
		Status: metrics.StatusCounts{
			OK:         doc.Get("statusCounts.200").Int(),
			BadRequest: doc.Get("statusCounts.400").Int(),
			ServerErr:  doc.Get("statusCounts.5xx").Int(),
			Other:      doc.Get("statusCounts.other").Int(),
		},
	}

	doc.Get("thresholds").ForEach(func(_, t gjson.Result) bool {
		a.Thresholds = append(a.Thresholds, threshold.Result{
			Metric:     t.Get("metric").String(),
			Expression: t.Get("expression").String(),
			Passed:     t.Get("passed").Bool(),
			Value:      t.Get("value").String(),
			Message:    t.Get("message").String(),
		})
		return true
	})

	return a, nil
}
