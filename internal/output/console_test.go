package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/socialload/internal/engine"
	"github.com/wesleyorama2/socialload/internal/metrics"
	"github.com/wesleyorama2/socialload/internal/profile"
	"github.com/wesleyorama2/socialload/internal/threshold"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{5*time.Hour + 20*time.Minute, "5h 20m 00s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDurationShort(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{962, "962"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatNumber(tt.number)
			if result != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, result, tt.expected)
			}
		})
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"\033[32mgreen\033[0m", "green"},
		{"no \033[31mcolors\033[0m here", "no colors here"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := stripANSI(tt.input); got != tt.expected {
				t.Errorf("stripANSI(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	for _, p := range []float64{-1, 0, 0.5, 1, 2} {
		bar := renderProgressBar(p, 20)
		if !strings.HasPrefix(bar, "[") || !strings.HasSuffix(bar, "]") {
			t.Errorf("progress bar should be wrapped in brackets: %q", bar)
		}
		if n := len([]rune(bar)); n != 22 {
			t.Errorf("progress bar rune count = %d, want 22", n)
		}
	}
}

func sampleResult(passed bool) *engine.TestResult {
	return &engine.TestResult{
		RunID:    "4f1c",
		Profile:  "load",
		BaseURL:  "http://localhost:8080",
		Duration: 14 * time.Minute,
		Metrics: &metrics.Snapshot{
			TotalRequests:   1000,
			SuccessRequests: 990,
			FailedRequests:  10,
			ErrorRate:       0.01,
			OverallRPS:      33.3,
			Latency: metrics.LatencyStats{
				Min:  10 * time.Millisecond,
				Mean: 30 * time.Millisecond,
				P50:  25 * time.Millisecond,
				P95:  60 * time.Millisecond,
				P99:  80 * time.Millisecond,
				Max:  100 * time.Millisecond,
			},
		},
		StatusCounts: metrics.StatusCounts{OK: 990, BadRequest: 6, ServerErr: 3, Other: 1},
		Operations: map[string]metrics.OperationStats{
			"ReadHomeTimeline": {Name: "ReadHomeTimeline", Requests: 700, Failures: 0},
			"ComposePost":      {Name: "ComposePost", Requests: 300, Failures: 10},
		},
		Iterations:        1000,
		StoppedGracefully: true,
		Passed:            passed,
		Thresholds: []threshold.Result{
			{Metric: "http_req_duration", Expression: "p(95)<500", Passed: true, Value: "60.00ms"},
			{Metric: "errors", Expression: "rate<0.1", Passed: passed, Value: "0.0100"},
		},
	}
}

func TestConsole_NotTTYForBuffer(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})
	if c.IsTTY() {
		t.Error("expected non-TTY when writing to buffer")
	}
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	c.PrintSummary(sampleResult(true))
	out := buf.String()

	for _, want := range []string{
		"load - Completed ✓",
		"1,000",
		"200:       990 (99.0%)",
		"5xx:       3 (0.3%)",
		"other:     1 (0.1%)",
		"ComposePost",
		"ReadHomeTimeline",
		"✓ http_req_duration p(95)<500",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "ComposePost") > strings.Index(out, "ReadHomeTimeline") {
		t.Error("operations should be sorted by name")
	}
	if strings.Contains(out, "\033[") {
		t.Error("NoColor output should not contain escape codes")
	}
	if strings.Contains(out, "Checks Failed") {
		t.Error("check failures equal to failed requests should not get their own line")
	}
}

func TestConsole_PrintSummaryFailed(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	r := sampleResult(false)
	r.StoppedGracefully = false
	r.Metrics.CheckFailures = 150
	r.Metrics.CheckFailureRate = 0.15
	c.PrintSummary(r)
	out := buf.String()

	if !strings.Contains(out, "Checks Failed: 15.0%") {
		t.Errorf("summary should show the check failure rate:\n%s", out)
	}

	if !strings.Contains(out, "Failed ✗") {
		t.Errorf("summary should show failure:\n%s", out)
	}
	if !strings.Contains(out, "✗ errors rate<0.1") {
		t.Errorf("summary should mark the failed threshold:\n%s", out)
	}
	if !strings.Contains(out, "graceful stop") {
		t.Errorf("summary should mention interrupted iterations:\n%s", out)
	}
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true})

	p, err := profile.Get("quick")
	if err != nil {
		t.Fatal(err)
	}
	c.PrintHeader(p, "http://localhost:8080")
	c.Update(engine.Progress{Fraction: 0.5})
	if buf.Len() != 0 {
		t.Errorf("quiet console wrote %q", buf.String())
	}

	c.PrintSummary(sampleResult(false))
	if strings.TrimSpace(buf.String()) != "FAILED" {
		t.Errorf("quiet summary = %q, want FAILED", buf.String())
	}
}

func TestConsole_UpdateNonInteractive(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	c.Update(engine.Progress{
		Fraction:   0.25,
		Elapsed:    30 * time.Second,
		ActiveVUs:  12,
		Iterations: 40,
		Snapshot:   &metrics.Snapshot{TotalRequests: 160, FailedRequests: 8, ErrorRate: 0.05},
	})
	c.Update(engine.Progress{Fraction: 0.3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one line per update, got %d: %q", len(lines), buf.String())
	}
	for _, want := range []string{"Progress: 25%", "VUs: 12", "Iters: 40", "Reqs: 160", "Errors: 8 (5.0%)"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("status line missing %q: %s", want, lines[0])
		}
	}
}

func TestConsole_UpdateTTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, ForceTTY: true})

	c.Update(engine.Progress{Fraction: 0.1, Snapshot: &metrics.Snapshot{}})
	if strings.Contains(buf.String(), "\033[") {
		t.Error("first update should not move the cursor")
	}
	c.Update(engine.Progress{Fraction: 0.2, Snapshot: &metrics.Snapshot{}})
	if !strings.Contains(buf.String(), "\033[3A") {
		t.Error("second update should redraw the three live lines")
	}
}

func TestConsole_PrintHeaderAndProfiles(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})

	p, err := profile.Get("spike")
	if err != nil {
		t.Fatal(err)
	}
	c.PrintHeader(p, "http://nginx:8080")
	out := buf.String()
	for _, want := range []string{"spike - Running [ramping-vus]", "http://nginx:8080", "Peak VUs:   500", "spike-test-results.json"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	c.PrintProfiles(profile.Builtins())
	for _, name := range profile.Names() {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("profile list missing %s", name)
		}
	}
}
