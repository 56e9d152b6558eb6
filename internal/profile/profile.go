// Package profile describes named load profiles: how many virtual users run
// for how long, what each iteration does and which thresholds decide
// pass/fail.
package profile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wesleyorama2/socialload/internal/runtime/executor"
	"github.com/wesleyorama2/socialload/internal/threshold"
	"github.com/wesleyorama2/socialload/internal/workload"
)

// DefaultRequestTimeout is used when a profile leaves the timeout unset.
const DefaultRequestTimeout = 30 * time.Second

// Profile is a complete, runnable load test description.
type Profile struct {
	Name        string
	Description string

	Executor   executor.Config
	Thresholds threshold.Set

	// RequestTimeout bounds each HTTP call.
	RequestTimeout time.Duration

	// ResultFile is the JSON artifact name; empty means "<name>-results.json".
	ResultFile string

	Workload workload.Config
}

// ResultFileName returns the artifact file name.
func (p *Profile) ResultFileName() string {
	if p.ResultFile != "" {
		return p.ResultFile
	}
	return p.Name + "-results.json"
}

// Timeout returns the effective per-request timeout.
func (p *Profile) Timeout() time.Duration {
	if p.RequestTimeout > 0 {
		return p.RequestTimeout
	}
	return DefaultRequestTimeout
}

// Validate checks everything that the executor, workload and threshold
// packages would otherwise reject at run time, and reports all problems
// at once.
func (p *Profile) Validate() error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(p.Name) == "" {
		errs.Add("name", "name is required")
	}

	p.Executor.Name = p.Name
	if err := p.Executor.Validate(); err != nil {
		if ve, ok := err.(*executor.ValidationError); ok {
			errs.Add("executor."+ve.Field, ve.Message)
		} else {
			errs.Add("executor", err.Error())
		}
	}

	if p.RequestTimeout < 0 {
		errs.Add("requestTimeout", "requestTimeout must be >= 0")
	}

	validateWorkload(&p.Workload, errs)

	names := make([]string, 0, len(p.Thresholds))
	for name := range p.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for i, expr := range p.Thresholds[name] {
			if _, err := threshold.Parse(name, expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", name, i), err.Error())
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateWorkload(w *workload.Config, errs *ValidationErrors) {
	if _, err := workload.NewMix(w.Branches); err != nil {
		errs.Add("workload.mix", err.Error())
	}

	pauses := map[string]workload.ThinkTime{
		"workload.thinkTime":             w.ThinkTime,
		"workload.journey.afterRegister": w.Journey.AfterRegister,
		"workload.journey.afterFollow":   w.Journey.AfterFollow,
		"workload.journey.afterCompose":  w.Journey.AfterCompose,
		"workload.journey.afterRead":     w.Journey.AfterRead,
		"workload.journey.onFailure":     w.Journey.OnFailure,
	}
	fields := make([]string, 0, len(pauses))
	for f := range pauses {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		t := pauses[f]
		if t.Min < 0 || t.Max < 0 {
			errs.Add(f, "pause must be >= 0")
		} else if t.Max != 0 && t.Max < t.Min {
			errs.Add(f, "max must be >= min")
		}
	}

	switch w.Post.Style {
	case "", workload.PostStyleDefault, workload.PostStyleRandom, workload.PostStyleHeavy:
	default:
		errs.Add("workload.post.style", fmt.Sprintf("unknown post style: %s", w.Post.Style))
	}
	if w.Post.PostType > 2 {
		errs.Add("workload.post.postType", "postType must be 0, 1, 2 or negative for random")
	}
	if w.Post.TextLength < 0 {
		errs.Add("workload.post.textLength", "textLength must be >= 0")
	}
	if w.ExistingUsers < 0 {
		errs.Add("workload.existingUsers", "existingUsers must be >= 0")
	}
	if w.ClientWork < 0 {
		errs.Add("workload.clientWork", "clientWork must be >= 0")
	}

	if w.CheckLatency.Max < 0 {
		errs.Add("workload.checkLatency.max", "bound must be >= 0")
	}
	ops := make([]string, 0, len(w.CheckLatency.Operations))
	for op := range w.CheckLatency.Operations {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		field := "workload.checkLatency.operations." + op
		if !workload.IsOperation(op) {
			errs.Add(field, fmt.Sprintf("unknown operation: %s", op))
		} else if w.CheckLatency.Operations[op] < 0 {
			errs.Add(field, "bound must be >= 0")
		}
	}
}
