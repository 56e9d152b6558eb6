// Package output renders load test progress and results: the live console
// view, the end-of-run summary and the JSON artifact.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/socialload/internal/engine"
	"github.com/wesleyorama2/socialload/internal/metrics"
	"github.com/wesleyorama2/socialload/internal/profile"
)

// cursor control for the live view
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	ruleWidth      = 64
	boxHorizontal  = "━"
	progressFilled = "█"
	progressEmpty  = "░"
)

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// Console manages console output during and after a run.
type Console struct {
	writer io.Writer
	scheme *ColorScheme
	isTTY  bool
	quiet  bool

	mu          sync.Mutex
	linesOutput int
}

// NewConsole creates a console printer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)

	var scheme *ColorScheme
	switch {
	case cfg.NoColor:
		scheme = NoColorScheme()
	case cfg.ForceColors:
		scheme = ForceColorScheme()
	case isTTY && supportsColors():
		scheme = DefaultColorScheme()
	default:
		scheme = NoColorScheme()
	}

	return &Console{
		writer: cfg.Writer,
		scheme: scheme,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader announces the run.
func (c *Console) PrintHeader(p *profile.Profile, baseURL string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.scheme
	rule := s.Title.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - Running [%s]", s.Label.Sprint(p.Name), p.Executor.Type))
	c.writeln(rule)
	if p.Description != "" {
		c.writeln(s.Dim.Sprint(p.Description))
	}
	c.writeln(fmt.Sprintf("Target:     %s", s.Value.Sprint(baseURL)))
	c.writeln(fmt.Sprintf("Peak VUs:   %s", s.Value.Sprint(p.Executor.PeakVUs())))
	c.writeln(fmt.Sprintf("Duration:   %s", s.Value.Sprint(formatDuration(p.Executor.TotalDuration()))))
	c.writeln(fmt.Sprintf("Artifact:   %s", s.Value.Sprint(p.ResultFileName())))
	c.writeln("")
}

// Update shows live progress. On a terminal the previous block is
// redrawn in place, otherwise a single status line is appended.
func (c *Console) Update(p engine.Progress) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.statusLine(p))
		return
	}

	if c.linesOutput > 0 {
		c.clearLive()
	}
	lines := c.renderLive(p)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *Console) clearLive() {
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *Console) statusLine(p engine.Progress) string {
	snap := p.Snapshot
	if snap == nil {
		snap = &metrics.Snapshot{}
	}
	return fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d | Iters: %d | Reqs: %d | RPS: %.1f | Errors: %d (%s) | P95: %s",
		formatDuration(p.Elapsed),
		p.Fraction*100,
		p.ActiveVUs,
		p.Iterations,
		snap.TotalRequests,
		snap.OverallRPS,
		snap.FailedRequests,
		formatPercent(snap.ErrorRate),
		formatDurationShort(snap.Latency.P95),
	)
}

func (c *Console) renderLive(p engine.Progress) []string {
	s := c.scheme
	snap := p.Snapshot
	if snap == nil {
		snap = &metrics.Snapshot{}
	}

	lines := []string{
		fmt.Sprintf("Progress: %s %s | %s | %s",
			s.Good.Sprint(renderProgressBar(p.Fraction, 40)),
			s.Label.Sprintf("%.0f%%", p.Fraction*100),
			s.Dim.Sprint(formatDuration(p.Elapsed)),
			s.Highlight.Sprint(snap.CurrentPhase),
		),
		fmt.Sprintf("VUs: %s  Iterations: %s  Requests: %s  RPS: %s",
			s.Value.Sprint(p.ActiveVUs),
			s.Value.Sprint(formatNumber(p.Iterations)),
			s.Value.Sprint(formatNumber(snap.TotalRequests)),
			s.Good.Sprintf("%.1f", snap.OverallRPS),
		),
		fmt.Sprintf("Status: 200=%d 400=%d 5xx=%d other=%d  Errors: %s  P95: %s",
			snap.Status.OK, snap.Status.BadRequest, snap.Status.ServerErr, snap.Status.Other,
			s.rate(snap.ErrorRate).Sprint(formatPercent(snap.ErrorRate)),
			s.Value.Sprint(formatDurationShort(snap.Latency.P95)),
		),
	}
	return lines
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	progress = max(0, min(progress, 1))
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// PrintSummary prints the final test summary.
func (c *Console) PrintSummary(result *engine.TestResult) {
	s := c.scheme
	if c.quiet {
		if result.Passed {
			c.writeln(s.Good.Sprint("PASSED"))
		} else {
			c.writeln(s.Bad.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY && c.linesOutput > 0 {
		c.clearLive()
	}

	status := s.Good.Sprint("Completed ✓")
	if !result.Passed {
		status = s.Bad.Sprint("Failed ✗")
	}
	rule := s.Title.Sprint(strings.Repeat(boxHorizontal, ruleWidth))

	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", s.Label.Sprint(result.Profile), status))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", s.Dim.Sprint(result.RunID)))
	c.writeln(fmt.Sprintf("Target:        %s", s.Value.Sprint(result.BaseURL)))
	c.writeln(fmt.Sprintf("Duration:      %s", s.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Iterations:    %s", s.Value.Sprint(formatNumber(result.Iterations))))
	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", s.Value.Sprint(formatNumber(m.TotalRequests))))
		c.writeln(fmt.Sprintf("Throughput:    %s", s.Value.Sprintf("%.1f req/s", m.OverallRPS)))
		c.writeln(fmt.Sprintf("Success Rate:  %s", s.rate(m.ErrorRate).Sprint(formatPercent(1-m.ErrorRate))))
		if m.CheckFailures > m.FailedRequests {
			c.writeln(fmt.Sprintf("Checks Failed: %s", s.rate(m.CheckFailureRate).Sprint(formatPercent(m.CheckFailureRate))))
		}
	}
	if !result.StoppedGracefully {
		c.writeln(s.Warn.Sprint("Some iterations were interrupted after the graceful stop window"))
	}
	c.writeln("")

	c.printStatusCounts(result.StatusCounts)

	if m := result.Metrics; m != nil {
		c.writeln(s.Label.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  Avg:       %s", formatDurationShort(m.Latency.Mean)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
		c.writeln("")
	}

	c.printOperations(result.Operations)

	if len(result.Thresholds) > 0 {
		c.writeln(s.Label.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := s.SuccessIcon()
			if !t.Passed {
				icon = s.ErrorIcon()
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

func (c *Console) printStatusCounts(counts metrics.StatusCounts) {
	s := c.scheme
	total := counts.Total()
	share := func(n int64) string {
		if total == 0 {
			return formatPercent(0)
		}
		return formatPercent(float64(n) / float64(total))
	}

	c.writeln(s.Label.Sprint("Status Codes:"))
	c.writeln(fmt.Sprintf("  200:       %s (%s)", s.Good.Sprint(formatNumber(counts.OK)), share(counts.OK)))
	c.writeln(fmt.Sprintf("  400:       %s (%s)", s.Warn.Sprint(formatNumber(counts.BadRequest)), share(counts.BadRequest)))
	c.writeln(fmt.Sprintf("  5xx:       %s (%s)", s.Bad.Sprint(formatNumber(counts.ServerErr)), share(counts.ServerErr)))
	c.writeln(fmt.Sprintf("  other:     %s (%s)", s.Bad.Sprint(formatNumber(counts.Other)), share(counts.Other)))
	c.writeln("")
}

func (c *Console) printOperations(ops map[string]metrics.OperationStats) {
	if len(ops) == 0 {
		return
	}
	s := c.scheme

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	c.writeln(s.Label.Sprint("Operations:"))
	c.writeln(s.Dim.Sprint(fmt.Sprintf("  %-18s %10s %8s %9s %9s %9s", "name", "requests", "errors", "p50", "p95", "p99")))
	for _, name := range names {
		op := ops[name]
		errRate := 0.0
		if op.Requests > 0 {
			errRate = float64(op.Failures) / float64(op.Requests)
		}
		c.writeln(fmt.Sprintf("  %-18s %10s %s %9s %9s %9s",
			name,
			formatNumber(op.Requests),
			s.rate(errRate).Sprintf("%8s", formatPercent(errRate)),
			formatDurationShort(op.Latency.P50),
			formatDurationShort(op.Latency.P95),
			formatDurationShort(op.Latency.P99),
		))
	}
	c.writeln("")
}

// PrintProfiles lists the built-in profiles.
func (c *Console) PrintProfiles(profiles []profile.Profile) {
	s := c.scheme
	c.mu.Lock()
	defer c.mu.Unlock()

	width := 0
	for _, p := range profiles {
		width = max(width, len(p.Name))
	}
	for _, p := range profiles {
		c.writeln(fmt.Sprintf("%s  %s",
			padRight(s.Label.Sprint(p.Name), width),
			s.Dim.Sprintf("%-11s peak %4d VUs  %-10s", p.Executor.Type, p.Executor.PeakVUs(), formatDuration(p.Executor.TotalDuration())),
		))
		if p.Description != "" {
			c.writeln(strings.Repeat(" ", width+2) + p.Description)
		}
	}
}

// PrintArtifact prints the key figures of a saved result.
func (c *Console) PrintArtifact(a *Artifact) {
	s := c.scheme
	c.mu.Lock()
	defer c.mu.Unlock()

	status := s.Good.Sprint("PASSED")
	if !a.Passed {
		status = s.Bad.Sprint("FAILED")
	}
	c.writeln(fmt.Sprintf("%s - %s", s.Label.Sprint(a.Profile), status))
	c.writeln(fmt.Sprintf("  Run ID:     %s", a.RunID))
	c.writeln(fmt.Sprintf("  Target:     %s", a.BaseURL))
	c.writeln(fmt.Sprintf("  Started:    %s", a.StartTime.Format(time.RFC3339)))
	c.writeln(fmt.Sprintf("  Duration:   %s", formatDuration(a.Duration)))
	c.writeln(fmt.Sprintf("  Requests:   %s (%s failed)", formatNumber(a.TotalRequests), formatPercent(a.ErrorRate)))
	c.writeln(fmt.Sprintf("  P95 / P99:  %s / %s", formatDurationShort(a.P95), formatDurationShort(a.P99)))
	c.writeln(fmt.Sprintf("  Status:     200=%d 400=%d 5xx=%d other=%d",
		a.Status.OK, a.Status.BadRequest, a.Status.ServerErr, a.Status.Other))
	for _, t := range a.Thresholds {
		icon := s.SuccessIcon()
		if !t.Passed {
			icon = s.ErrorIcon()
		}
		c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
	}
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}
