package executor

import (
	"testing"
	"time"
)

func TestRampingVUs_CalculateTargetVUs(t *testing.T) {
	e := NewRampingVUs()
	e.config = &Config{
		Type: TypeRampingVUs,
		Stages: []Stage{
			{Duration: 2 * time.Minute, Target: 75},
			{Duration: 26 * time.Minute, Target: 75},
			{Duration: 2 * time.Minute, Target: 0},
		},
	}

	tests := []struct {
		elapsed   time.Duration
		wantVUs   int
		wantStage int
	}{
		{0, 0, 0},
		{time.Minute, 38, 0}, // 37.5 rounds up
		{2 * time.Minute, 75, 1},
		{10 * time.Minute, 75, 1},
		{29 * time.Minute, 38, 2},
		{31 * time.Minute, 0, 2},
	}

	for _, tt := range tests {
		vus, stage := e.calculateTargetVUs(tt.elapsed)
		if vus != tt.wantVUs || stage != tt.wantStage {
			t.Errorf("calculateTargetVUs(%v) = (%d, %d), want (%d, %d)", tt.elapsed, vus, stage, tt.wantVUs, tt.wantStage)
		}
	}
}
