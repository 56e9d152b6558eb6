package profile

import (
	"fmt"
	"sort"
	"time"

	"github.com/wesleyorama2/socialload/internal/runtime/executor"
	"github.com/wesleyorama2/socialload/internal/threshold"
	"github.com/wesleyorama2/socialload/internal/workload"
)

func stage(d time.Duration, target int) executor.Stage {
	return executor.Stage{Duration: d, Target: target}
}

func ramping(stages ...executor.Stage) executor.Config {
	return executor.Config{Type: executor.TypeRampingVUs, Stages: stages}
}

func branch(a workload.Action, w float64) workload.Branch {
	return workload.Branch{Action: a, Weight: w}
}

func journeyOnly() []workload.Branch {
	return []workload.Branch{branch(workload.ActionUserJourney, 1)}
}

const (
	ms     = time.Millisecond
	sec    = time.Second
	minute = time.Minute
)

// helmPost is the post shape of the helm-chart scripts: random text, type 0.
var helmPost = workload.PostOptions{Style: workload.PostStyleRandom, TextLength: 100}

// loadChecks bounds reads at 500ms and composes at 1s; other calls are
// checked on status only.
var loadChecks = workload.LatencyCheck{Operations: map[string]time.Duration{
	workload.OpReadHomeTimeline: 500 * ms,
	workload.OpReadUserTimeline: 500 * ms,
	workload.OpComposePost:      sec,
}}

// randomPostType lets every post pick a type from {0, 1, 2}.
var randomPostType = workload.PostOptions{Style: workload.PostStyleDefault, PostType: -1}

var builtins = []Profile{
	{
		Name:        "constant-load",
		Description: "Ramp to 50 VUs, hold, ramp down; full register/follow/compose/read chain",
		Executor:    ramping(stage(minute, 50), stage(minute, 50), stage(minute, 0)),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(50)<500", "p(95)<1000", "p(99)<2000"},
			threshold.MetricFailed:   {"rate<0.05"},
			threshold.MetricReqs:     {"rate>10"},
		},
		Workload: workload.Config{
			Branches: journeyOnly(),
			Post:     randomPostType,
			Journey: workload.JourneyConfig{
				AfterRegister:    workload.Fixed(sec),
				AfterFollow:      workload.Fixed(500 * ms),
				AfterCompose:     workload.Fixed(sec),
				AfterRead:        workload.Fixed(2 * sec),
				OnFailure:        workload.Fixed(sec),
				ReadAfterCompose: true,
			},
		},
	},
	{
		Name:        "quick",
		Description: "10 VUs for 20s smoke test of the full chain",
		Executor:    executor.Config{Type: executor.TypeConstantVUs, VUs: 10, Duration: 20 * sec},
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(50)<500", "p(95)<1000", "p(99)<2000"},
			threshold.MetricFailed:   {"rate<0.05"},
			threshold.MetricReqs:     {"rate>1"},
		},
		ResultFile: "quick-test-results.json",
		Workload: workload.Config{
			Branches: journeyOnly(),
			Post:     randomPostType,
			Journey: workload.JourneyConfig{
				AfterRegister:    workload.Fixed(500 * ms),
				AfterFollow:      workload.Fixed(300 * ms),
				AfterCompose:     workload.Fixed(500 * ms),
				AfterRead:        workload.Fixed(500 * ms),
				OnFailure:        workload.Fixed(500 * ms),
				ReadAfterCompose: true,
			},
		},
	},
	{
		Name:        "sweet-spot",
		Description: "Challenging but achievable ramp to 1000 VUs and back",
		Executor: ramping(
			stage(90*sec, 50), stage(90*sec, 200), stage(2*minute, 400), stage(2*minute, 600),
			stage(2*minute, 800), stage(2*minute, 1000), stage(2*minute, 800), stage(2*minute, 600),
			stage(2*minute, 400), stage(90*sec, 200), stage(minute, 50), stage(30*sec, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(50)<800", "p(95)<2000", "p(99)<4000"},
			threshold.MetricFailed:   {"rate<0.15"},
		},
		Workload: workload.Config{
			Branches: journeyOnly(),
			Post:     randomPostType,
			Journey: workload.JourneyConfig{
				AfterRegister:    workload.Fixed(500 * ms),
				AfterFollow:      workload.Fixed(300 * ms),
				AfterCompose:     workload.Fixed(500 * ms),
				AfterRead:        workload.Between(500*ms, 2*sec),
				OnFailure:        workload.Fixed(500 * ms),
				ReadAfterCompose: true,
			},
		},
	},
	{
		Name:        "peak",
		Description: "Sudden jump to 1000 VUs for a minute, then back to 50",
		Executor: ramping(
			stage(2*minute, 50), stage(30*sec, 1000), stage(minute, 1000),
			stage(30*sec, 100), stage(2*minute, 50), stage(minute, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(95)<2000", "p(99)<5000"},
			threshold.MetricFailed:   {"rate<0.05"},
		},
		Workload: workload.Config{
			Branches: journeyOnly(),
			Post:     randomPostType,
			Journey: workload.JourneyConfig{
				AfterRegister:    workload.Between(0, 2*sec),
				AfterFollow:      workload.Between(0, 2*sec),
				AfterCompose:     workload.Between(0, 2*sec),
				OnFailure:        workload.Fixed(500 * ms),
				ReadAfterCompose: true,
			},
		},
	},
	{
		Name:        "peak-gke",
		Description: "Peak test used on GKE: 50 -> 1000 -> 500 -> 100 -> 50 VUs",
		Executor: ramping(
			stage(2*minute, 50), stage(2*minute, 1000), stage(2*minute, 500),
			stage(2*minute, 100), stage(2*minute, 50), stage(minute, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(50)<800", "p(95)<2000", "p(99)<5000"},
			threshold.MetricFailed:   {"rate<0.20"},
		},
		Workload: workload.Config{
			Branches: journeyOnly(),
			Post:     randomPostType,
			Journey: workload.JourneyConfig{
				AfterRegister:    workload.Between(0, 500*ms),
				AfterFollow:      workload.Fixed(200 * ms),
				AfterCompose:     workload.Fixed(300 * ms),
				AfterRead:        workload.Between(0, 500*ms),
				OnFailure:        workload.Fixed(500 * ms),
				ReadAfterCompose: true,
			},
		},
	},
	{
		Name:        "stress",
		Description: "Step up to 1000 VUs, hold 5m, step down; read-heavy mix",
		Executor: ramping(
			stage(2*minute, 10), stage(2*minute, 50), stage(2*minute, 100), stage(2*minute, 150),
			stage(2*minute, 200), stage(2*minute, 250), stage(2*minute, 300), stage(2*minute, 400),
			stage(2*minute, 500), stage(2*minute, 600), stage(2*minute, 700), stage(2*minute, 800),
			stage(2*minute, 900), stage(2*minute, 1000), stage(5*minute, 1000), stage(2*minute, 500),
			stage(2*minute, 250), stage(2*minute, 100), stage(2*minute, 50), stage(minute, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(50)<500", "p(95)<2000", "p(99)<5000"},
			threshold.MetricFailed:   {"rate<0.1"},
		},
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionReadUserTimeline, 40),
				branch(workload.ActionReadHomeTimeline, 20),
				branch(workload.ActionComposePost, 20),
				branch(workload.ActionFollow, 20),
			},
			Post:      randomPostType,
			ThinkTime: workload.Between(sec, 4*sec),
		},
	},
	{
		Name:        "endurance",
		Description: "100 VUs for 5 hours; 80% reads, 20% writes",
		Executor:    ramping(stage(10*minute, 100), stage(5*time.Hour, 100), stage(10*minute, 0)),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(95)<500", "p(99)<1000"},
			threshold.MetricFailed:   {"rate<0.01"},
		},
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionReadUserTimeline, 60),
				branch(workload.ActionReadHomeTimeline, 20),
				branch(workload.ActionComposePost, 20),
			},
			Post:                 randomPostType,
			ThinkTime:            workload.Between(2*sec, 7*sec),
			SlowRequestThreshold: 2 * sec,
		},
	},
	{
		Name:        "cpu-intensive",
		Description: "Large posts with mentions and client-side work to drive CPU-based autoscaling",
		Executor: ramping(
			stage(minute, 10), stage(2*minute, 50), stage(2*minute, 500), stage(3*minute, 1000),
			stage(3*minute, 500), stage(3*minute, 250), stage(3*minute, 100),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(50)<1000", "p(95)<3000", "p(99)<5000"},
			threshold.MetricFailed:   {"rate<0.15"},
		},
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionRegister, 25),
				branch(workload.ActionUserJourney, 25),
				branch(workload.ActionReadTimelines, 50),
			},
			Post:              workload.PostOptions{Style: workload.PostStyleHeavy, PostType: -1},
			ThinkTime:         workload.Between(500*ms, 1500*ms),
			ReadsPerIteration: 2,
			ExistingUsers:     1000,
			TimelineStop:      20,
			ClientWork:        500,
		},
	},
	{
		Name:        "load",
		Description: "Ramp to 50 then 100 VUs with the realistic read/write mix",
		Executor: ramping(
			stage(2*minute, 50), stage(5*minute, 50), stage(2*minute, 100), stage(3*minute, 100), stage(2*minute, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(95)<500", "p(99)<1000"},
			threshold.MetricErrors:   {"rate<0.1"},
		},
		ResultFile: "load-test-results.json",
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionReadHomeTimeline, 35),
				branch(workload.ActionReadUserTimeline, 30),
				branch(workload.ActionComposePost, 15),
				branch(workload.ActionFollow, 10),
				branch(workload.ActionUnfollow, 5),
				branch(workload.ActionRegister, 5),
			},
			Post:         helmPost,
			ThinkTime:    workload.Between(sec, 3*sec),
			CheckLatency: loadChecks,
		},
	},
	{
		Name:        "spike",
		Description: "Three sudden spikes to 300, 400 and 500 VUs with recovery in between",
		Executor: ramping(
			stage(minute, 50), stage(10*sec, 300), stage(minute, 300), stage(10*sec, 50),
			stage(minute, 50), stage(10*sec, 400), stage(minute, 400), stage(10*sec, 50),
			stage(minute, 50), stage(10*sec, 500), stage(minute, 500), stage(30*sec, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(95)<3000"},
			threshold.MetricErrors:   {"rate<0.3"},
		},
		RequestTimeout: 10 * sec,
		ResultFile:     "spike-test-results.json",
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionReadHomeTimeline, 40),
				branch(workload.ActionReadUserTimeline, 30),
				branch(workload.ActionComposePost, 15),
				branch(workload.ActionFollow, 10),
				branch(workload.ActionRegister, 5),
			},
			Post:         helmPost,
			ThinkTime:    workload.Fixed(100 * ms),
			CheckLatency: workload.LatencyCheck{Max: 10 * sec},
		},
	},
	{
		Name:        "soak",
		Description: "75 VUs for 26 minutes to surface leaks and slow degradation",
		Executor:    ramping(stage(2*minute, 75), stage(26*minute, 75), stage(2*minute, 0)),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(95)<500", "p(99)<1000"},
			threshold.MetricErrors:   {"rate<0.05"},
		},
		RequestTimeout: 30 * sec,
		ResultFile:     "soak-test-results.json",
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionReadHomeTimeline, 50),
				branch(workload.ActionReadUserTimeline, 30),
				branch(workload.ActionComposePost, 15),
				branch(workload.ActionFollow, 5),
			},
			Post:         helmPost,
			ThinkTime:    workload.Between(sec, 4*sec),
			CheckLatency: workload.LatencyCheck{Max: sec},
		},
	},
	{
		Name:        "breaking-point",
		Description: "Aggressive ramp to 600 VUs to find where the system breaks",
		Executor: ramping(
			stage(minute, 50), stage(2*minute, 100), stage(2*minute, 200), stage(2*minute, 300),
			stage(2*minute, 400), stage(2*minute, 500), stage(2*minute, 600), stage(2*minute, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(95)<2000"},
			threshold.MetricErrors:   {"rate<0.5"},
		},
		RequestTimeout: 10 * sec,
		ResultFile:     "stress-test-results.json",
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionReadHomeTimeline, 40),
				branch(workload.ActionReadUserTimeline, 30),
				branch(workload.ActionComposePost, 20),
				branch(workload.ActionFollow, 10),
			},
			Post:         helmPost,
			ThinkTime:    workload.Fixed(300 * ms),
			CheckLatency: workload.LatencyCheck{Max: 10 * sec},
		},
	},
	{
		Name:        "hpa-trigger",
		Description: "Heavy ramp to 800 VUs with long posts to trigger horizontal pod autoscaling",
		Executor: ramping(
			stage(30*sec, 100), stage(minute, 200), stage(minute, 400), stage(2*minute, 600),
			stage(3*minute, 800), stage(2*minute, 800), stage(minute, 400), stage(minute, 200), stage(minute, 0),
		),
		Thresholds: threshold.Set{
			threshold.MetricDuration: {"p(95)<5000"},
			threshold.MetricErrors:   {"rate<0.8"},
		},
		RequestTimeout: 10 * sec,
		ResultFile:     "hpa-trigger-results.json",
		Workload: workload.Config{
			Branches: []workload.Branch{
				branch(workload.ActionReadHomeTimeline, 40),
				branch(workload.ActionReadUserTimeline, 30),
				branch(workload.ActionComposePost, 20),
				branch(workload.ActionFollow, 10),
			},
			Post:         workload.PostOptions{Style: workload.PostStyleRandom, TextLength: 280},
			ThinkTime:    workload.Fixed(100 * ms),
			TimelineStop: 20,
		},
	},
}

// Names returns the built-in profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for _, p := range builtins {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a copy of every built-in profile in declaration order.
func Builtins() []Profile {
	out := make([]Profile, len(builtins))
	for i := range builtins {
		out[i] = builtins[i].clone()
	}
	return out
}

// Get returns a copy of the named built-in profile.
func Get(name string) (*Profile, error) {
	for i := range builtins {
		if builtins[i].Name == name {
			p := builtins[i].clone()
			return &p, nil
		}
	}
	return nil, fmt.Errorf("unknown profile %q (available: %v)", name, Names())
}

// clone copies the slices and maps so callers can tweak a profile without
// touching the package-level table.
func (p Profile) clone() Profile {
	p.Executor.Stages = append([]executor.Stage(nil), p.Executor.Stages...)
	p.Workload.Branches = append([]workload.Branch(nil), p.Workload.Branches...)
	if ops := p.Workload.CheckLatency.Operations; ops != nil {
		p.Workload.CheckLatency.Operations = make(map[string]time.Duration, len(ops))
		for op, d := range ops {
			p.Workload.CheckLatency.Operations[op] = d
		}
	}
	if p.Thresholds != nil {
		ts := make(threshold.Set, len(p.Thresholds))
		for k, v := range p.Thresholds {
			ts[k] = append([]string(nil), v...)
		}
		p.Thresholds = ts
	}
	return p
}
