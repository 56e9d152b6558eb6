package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}
	defer engine.Stop()

	snapshot := engine.Snapshot()
	if snapshot.TotalRequests != 0 {
		t.Errorf("Initial TotalRequests = %d, want 0", snapshot.TotalRequests)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
	if snapshot.Status.Total() != 0 {
		t.Errorf("Initial status total = %d, want 0", snapshot.Status.Total())
	}
}

func TestEngine_Record(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.Record(Sample{Operation: "RegisterUser", StatusCode: 200, Duration: 10 * time.Millisecond, Success: true, Bytes: 100})
	engine.Record(Sample{Operation: "RegisterUser", StatusCode: 400, Duration: 20 * time.Millisecond, Bytes: 50})
	engine.Record(Sample{Operation: "ComposePost", StatusCode: 503, Duration: 30 * time.Millisecond})
	engine.Record(Sample{Operation: "FollowUser", StatusCode: 0, Duration: 40 * time.Millisecond})

	snapshot := engine.Snapshot()

	if snapshot.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", snapshot.TotalRequests)
	}
	if snapshot.SuccessRequests != 1 {
		t.Errorf("SuccessRequests = %d, want 1", snapshot.SuccessRequests)
	}
	if snapshot.FailedRequests != 3 {
		t.Errorf("FailedRequests = %d, want 3", snapshot.FailedRequests)
	}
	if snapshot.TotalBytes != 150 {
		t.Errorf("TotalBytes = %d, want 150", snapshot.TotalBytes)
	}
	if snapshot.ErrorRate != 0.75 {
		t.Errorf("ErrorRate = %v, want 0.75", snapshot.ErrorRate)
	}

	want := StatusCounts{OK: 1, BadRequest: 1, ServerErr: 1, Other: 1}
	if snapshot.Status != want {
		t.Errorf("Status = %+v, want %+v", snapshot.Status, want)
	}
}

func TestEngine_CheckFailures(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.Record(Sample{StatusCode: 200, Duration: 10 * time.Millisecond, Success: true})
	engine.Record(Sample{StatusCode: 200, Duration: 2 * time.Second, Success: true, CheckFailed: true})
	engine.Record(Sample{StatusCode: 500, Duration: 10 * time.Millisecond})
	engine.Record(Sample{StatusCode: 200, Duration: 10 * time.Millisecond, Success: true})

	snapshot := engine.Snapshot()
	if snapshot.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snapshot.FailedRequests)
	}
	if snapshot.CheckFailures != 2 {
		t.Errorf("CheckFailures = %d, want 2", snapshot.CheckFailures)
	}
	if snapshot.ErrorRate != 0.25 {
		t.Errorf("ErrorRate = %v, want 0.25", snapshot.ErrorRate)
	}
	if snapshot.CheckFailureRate != 0.5 {
		t.Errorf("CheckFailureRate = %v, want 0.5", snapshot.CheckFailureRate)
	}
}

func TestEngine_LatencyPercentiles(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 1; i <= 10; i++ {
		engine.Record(Sample{Duration: time.Duration(i*10) * time.Millisecond, StatusCode: 200, Success: true})
	}

	p := engine.LatencyPercentiles()

	// HDR binning allows a little slack
	if p.P50 < 40*time.Millisecond || p.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", p.P50)
	}
	if p.P99 < 90*time.Millisecond || p.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms", p.P99)
	}
	if p.Min < 9*time.Millisecond || p.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", p.Min)
	}
}

func TestEngine_Operations(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.Record(Sample{Operation: "ReadHomeTimeline", StatusCode: 200, Duration: 5 * time.Millisecond, Success: true})
	engine.Record(Sample{Operation: "ReadHomeTimeline", StatusCode: 500, Duration: 7 * time.Millisecond})
	engine.Record(Sample{Operation: "ComposePost", StatusCode: 200, Duration: 9 * time.Millisecond, Success: true})

	ops := engine.Operations()
	if len(ops) != 2 {
		t.Fatalf("len(Operations) = %d, want 2", len(ops))
	}

	home := ops["ReadHomeTimeline"]
	if home.Requests != 2 || home.Failures != 1 {
		t.Errorf("ReadHomeTimeline = %d requests / %d failures, want 2/1", home.Requests, home.Failures)
	}
	if ops["ComposePost"].Failures != 0 {
		t.Errorf("ComposePost failures = %d, want 0", ops["ComposePost"].Failures)
	}
}

func TestEngine_Phase(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	phases := []Phase{PhaseSetup, PhaseRampUp, PhaseSteady, PhaseRampDown, PhaseTeardown, PhaseDone}
	for _, phase := range phases {
		engine.SetPhase(phase)
		if engine.Phase() != phase {
			t.Errorf("After SetPhase(%v), Phase() = %v", phase, engine.Phase())
		}
	}

	// repeated phase is not a transition
	engine.SetPhase(PhaseDone)

	if got := len(engine.PhaseHistory()); got != len(phases) {
		t.Errorf("PhaseHistory length = %d, want %d", got, len(phases))
	}
}

type countingObserver struct {
	mu         sync.Mutex
	vus        int
	iterations int
}

func (o *countingObserver) SetActiveVUs(n int) {
	o.mu.Lock()
	o.vus = n
	o.mu.Unlock()
}

func (o *countingObserver) AddIteration() {
	o.mu.Lock()
	o.iterations++
	o.mu.Unlock()
}

func TestEngine_Observers(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	obs := &countingObserver{}
	engine.Attach(obs)

	engine.SetActiveVUs(7)
	engine.AddIteration()
	engine.AddIteration()

	if engine.ActiveVUs() != 7 || obs.vus != 7 {
		t.Errorf("ActiveVUs = %d / observer %d, want 7", engine.ActiveVUs(), obs.vus)
	}
	if engine.Iterations() != 2 || obs.iterations != 2 {
		t.Errorf("Iterations = %d / observer %d, want 2", engine.Iterations(), obs.iterations)
	}
}

func TestEngine_ConcurrentRecord(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	const workers = 20
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				code := 200
				if i%10 == 0 {
					code = 500
				}
				engine.Record(Sample{
					Operation:  "ReadUserTimeline",
					StatusCode: code,
					Duration:   time.Duration(i+1) * time.Microsecond,
					Success:    code == 200,
				})
			}
		}(w)
	}
	wg.Wait()

	counts := engine.StatusCounts()
	if counts.Total() != workers*perWorker {
		t.Errorf("status total = %d, want %d", counts.Total(), workers*perWorker)
	}
	if counts.ServerErr != workers*perWorker/10 {
		t.Errorf("5xx = %d, want %d", counts.ServerErr, workers*perWorker/10)
	}
}

func TestEngine_TimeSeries(t *testing.T) {
	engine := NewEngineWithConfig(EngineConfig{BucketInterval: 20 * time.Millisecond, MaxBuckets: 10})

	engine.SetPhase(PhaseSteady)
	engine.Record(Sample{StatusCode: 200, Duration: time.Millisecond, Success: true})
	time.Sleep(70 * time.Millisecond)
	engine.Stop()
	engine.Stop()

	buckets := engine.TimeSeries()
	if len(buckets) < 2 {
		t.Fatalf("len(TimeSeries) = %d, want >= 2", len(buckets))
	}
	if len(buckets) > 10 {
		t.Errorf("len(TimeSeries) = %d, exceeds ring size", len(buckets))
	}

	var intervalTotal int64
	for _, b := range buckets {
		intervalTotal += b.IntervalRequests
	}
	if intervalTotal != 1 {
		t.Errorf("sum of interval requests = %d, want 1", intervalTotal)
	}
}

func TestTimeBucketStore_RingOrder(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := 1; i <= 5; i++ {
		store.closeBucket(bucketTotals{requests: int64(i), phase: PhaseSteady})
	}

	buckets := store.Buckets()
	if len(buckets) != 3 {
		t.Fatalf("len(Buckets) = %d, want 3", len(buckets))
	}
	for i, want := range []int64{3, 4, 5} {
		if buckets[i].TotalRequests != want {
			t.Errorf("bucket[%d].TotalRequests = %d, want %d", i, buckets[i].TotalRequests, want)
		}
	}
	if store.Latest().TotalRequests != 5 {
		t.Errorf("Latest().TotalRequests = %d, want 5", store.Latest().TotalRequests)
	}
}
