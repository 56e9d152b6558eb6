package workload

import (
	"fmt"
	"math"
)

// Action is one branch of the weighted dispatcher.
type Action string

const (
	ActionReadHomeTimeline Action = "read-home-timeline"
	ActionReadUserTimeline Action = "read-user-timeline"
	ActionReadTimelines    Action = "read-timelines"
	ActionComposePost      Action = "compose-post"
	ActionFollow           Action = "follow"
	ActionUnfollow         Action = "unfollow"
	ActionRegister         Action = "register"
	ActionUserJourney      Action = "user-journey"
)

// Actions lists every known action.
var Actions = []Action{
	ActionReadHomeTimeline,
	ActionReadUserTimeline,
	ActionReadTimelines,
	ActionComposePost,
	ActionFollow,
	ActionUnfollow,
	ActionRegister,
	ActionUserJourney,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Branch pairs an action with its relative weight.
type Branch struct {
	Action Action  `json:"action" yaml:"action"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Mix selects a branch from a single uniform draw.
//
// Weights are normalized into cumulative thresholds; Pick returns the first
// branch whose threshold exceeds the draw. The final threshold is pinned to
// 1 so floating point residue always lands on the last branch.
type Mix struct {
	branches   []Branch
	thresholds []float64
}

// NewMix validates the weights and builds the cumulative thresholds.
func NewMix(branches []Branch) (*Mix, error) {
	if len(branches) == 0 {
		return nil, fmt.Errorf("workload mix needs at least one branch")
	}

	var total float64
	for i, b := range branches {
		if !b.Action.Valid() {
			return nil, fmt.Errorf("branch %d: unknown action %q", i, b.Action)
		}
		if b.Weight < 0 || math.IsNaN(b.Weight) || math.IsInf(b.Weight, 0) {
			return nil, fmt.Errorf("branch %d (%s): weight must be a finite non-negative number", i, b.Action)
		}
		total += b.Weight
	}
	if total <= 0 {
		return nil, fmt.Errorf("workload mix weights sum to zero")
	}

	m := &Mix{
		branches:   append([]Branch(nil), branches...),
		thresholds: make([]float64, len(branches)),
	}

	var cum float64
	for i, b := range branches {
		cum += b.Weight / total
		m.thresholds[i] = cum
	}
	m.thresholds[len(m.thresholds)-1] = 1

	return m, nil
}

// mustMix is NewMix that panics on an invalid mix.
func mustMix(branches ...Branch) *Mix {
	m, err := NewMix(branches)
	if err != nil {
		panic(err)
	}
	return m
}

// Pick maps a draw u in [0,1) onto an action.
func (m *Mix) Pick(u float64) Action {
	for i, t := range m.thresholds {
		if u < t {
			return m.branches[i].Action
		}
	}
	return m.branches[len(m.branches)-1].Action
}

// Branches returns a copy of the configured branches.
func (m *Mix) Branches() []Branch {
	return append([]Branch(nil), m.branches...)
}

// Share returns the normalized probability of the i-th branch.
func (m *Mix) Share(i int) float64 {
	if i < 0 || i >= len(m.thresholds) {
		return 0
	}
	if i == 0 {
		return m.thresholds[0]
	}
	return m.thresholds[i] - m.thresholds[i-1]
}
