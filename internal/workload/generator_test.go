package workload

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/socialload/internal/metrics"
)

type recordingSink struct {
	mu      sync.Mutex
	samples []metrics.Sample
}

func (s *recordingSink) Record(sample metrics.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
}

func (s *recordingSink) byOperation() map[string][]metrics.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]metrics.Sample)
	for _, sample := range s.samples {
		out[sample.Operation] = append(out[sample.Operation], sample)
	}
	return out
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// stubNetwork is a fake social network. Each path answers with the status
// stored for it, 200 by default.
type stubNetwork struct {
	server   *httptest.Server
	statuses sync.Map
	hits     sync.Map
	forms    chan map[string]string
}

func newStubNetwork(t *testing.T) *stubNetwork {
	t.Helper()
	n := &stubNetwork{forms: make(chan map[string]string, 64)}

	r := chi.NewRouter()
	for _, path := range []string{PathRegister, PathFollow, PathUnfollow, PathCompose} {
		r.Post(path, n.handle(path))
	}
	for _, path := range []string{PathHomeTimeline, PathUserTimeline} {
		r.Get(path, n.handle(path))
	}

	n.server = httptest.NewServer(r)
	t.Cleanup(n.server.Close)
	return n
}

func (n *stubNetwork) handle(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, _ := n.hits.LoadOrStore(path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)

		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err == nil {
				form := map[string]string{"_path": path, "_contentType": r.Header.Get("Content-Type")}
				for k := range r.PostForm {
					form[k] = r.PostForm.Get(k)
				}
				select {
				case n.forms <- form:
				default:
				}
			}
		}

		status := http.StatusOK
		if s, ok := n.statuses.Load(path); ok {
			status = s.(int)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}
}

func (n *stubNetwork) setStatus(path string, status int) {
	n.statuses.Store(path, status)
}

func (n *stubNetwork) hitCount(path string) int64 {
	v, ok := n.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func newTestGenerator(t *testing.T, n *stubNetwork, sink metrics.Sink, cfg Config) *Generator {
	t.Helper()
	g, err := New(NewClient(n.server.URL, n.server.Client()), sink, logr.Discard(), cfg)
	require.NoError(t, err)
	return g
}

func journeyConfig() Config {
	return Config{
		Branches: []Branch{{Action: ActionUserJourney, Weight: 1}},
		Journey:  JourneyConfig{ReadAfterCompose: true},
	}
}

func TestUserJourney_AllSucceed(t *testing.T) {
	n := newStubNetwork(t)
	sink := &recordingSink{}
	g := newTestGenerator(t, n, sink, journeyConfig())

	rng := rand.New(rand.NewPCG(1, 2))
	err := g.RunIteration(context.Background(), rng, SeedContext{SeedUserID: 1})
	require.NoError(t, err)

	ops := sink.byOperation()
	for _, op := range []string{OpRegisterUser, OpFollowUser, OpComposePost, OpReadHomeTimeline} {
		require.Len(t, ops[op], 1, op)
		assert.True(t, ops[op][0].Success, op)
		assert.Equal(t, http.StatusOK, ops[op][0].StatusCode, op)
	}
	assert.Equal(t, 4, sink.len())
}

func TestUserJourney_RegisterFailureStopsChain(t *testing.T) {
	n := newStubNetwork(t)
	n.setStatus(PathRegister, http.StatusInternalServerError)
	sink := &recordingSink{}
	g := newTestGenerator(t, n, sink, journeyConfig())

	rng := rand.New(rand.NewPCG(3, 4))
	require.NoError(t, g.RunIteration(context.Background(), rng, SeedContext{SeedUserID: 1}))

	ops := sink.byOperation()
	require.Len(t, ops[OpRegisterUser], 1)
	assert.False(t, ops[OpRegisterUser][0].Success)
	assert.Equal(t, metrics.Status5xx, ops[OpRegisterUser][0].Class())
	assert.Empty(t, ops[OpFollowUser])
	assert.Empty(t, ops[OpComposePost])
	assert.Zero(t, n.hitCount(PathFollow))
	assert.Zero(t, n.hitCount(PathCompose))
}

func TestUserJourney_FailedRegisterStillThinks(t *testing.T) {
	n := newStubNetwork(t)
	n.setStatus(PathRegister, http.StatusInternalServerError)
	sink := &recordingSink{}
	cfg := journeyConfig()
	cfg.ThinkTime = Fixed(100 * time.Millisecond)
	g := newTestGenerator(t, n, sink, cfg)

	rng := rand.New(rand.NewPCG(13, 14))
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.RunIteration(context.Background(), rng, SeedContext{SeedUserID: 1}))
	}

	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, int64(3), n.hitCount(PathRegister))
	assert.Zero(t, n.hitCount(PathCompose))
}

func TestUserJourney_LaterFailuresDoNotAbort(t *testing.T) {
	n := newStubNetwork(t)
	n.setStatus(PathFollow, http.StatusBadRequest)
	sink := &recordingSink{}
	g := newTestGenerator(t, n, sink, journeyConfig())

	rng := rand.New(rand.NewPCG(5, 6))
	require.NoError(t, g.RunIteration(context.Background(), rng, SeedContext{SeedUserID: 1}))

	ops := sink.byOperation()
	require.Len(t, ops[OpFollowUser], 1)
	assert.False(t, ops[OpFollowUser][0].Success)
	assert.Len(t, ops[OpComposePost], 1)
	assert.Len(t, ops[OpReadHomeTimeline], 1)
}

func TestUserJourney_FollowUsesSeedUser(t *testing.T) {
	n := newStubNetwork(t)
	sink := &recordingSink{}
	g := newTestGenerator(t, n, sink, Config{
		Branches: []Branch{{Action: ActionUserJourney, Weight: 1}},
	})

	rng := rand.New(rand.NewPCG(7, 8))
	require.NoError(t, g.RunIteration(context.Background(), rng, SeedContext{SeedUserID: 1}))

	var register, follow, compose map[string]string
	for len(n.forms) > 0 {
		form := <-n.forms
		switch form["_path"] {
		case PathRegister:
			register = form
		case PathFollow:
			follow = form
		case PathCompose:
			compose = form
		}
	}
	require.NotNil(t, register)
	require.NotNil(t, follow)
	require.NotNil(t, compose)

	assert.Equal(t, formContentType, register["_contentType"])
	assert.Equal(t, "1", follow["user_id"])
	assert.Equal(t, register["user_id"], follow["followee_id"])
	assert.Equal(t, register["user_id"], compose["user_id"])
	assert.Equal(t, register["username"], compose["username"])
	assert.Equal(t, "[]", compose["media_ids"])
	assert.Equal(t, "[]", compose["media_types"])
	assert.Contains(t, []string{"0", "1", "2"}, compose["post_type"])
}

func TestRunIteration_Cancelled(t *testing.T) {
	n := newStubNetwork(t)
	sink := &recordingSink{}
	cfg := journeyConfig()
	cfg.ThinkTime = Fixed(time.Minute)
	g := newTestGenerator(t, n, sink, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := g.RunIteration(ctx, rand.New(rand.NewPCG(9, 10)), SeedContext{SeedUserID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, sink.len(), "aborted calls must not be recorded")
}

func TestRunIteration_TransportErrorRecordedAsOther(t *testing.T) {
	sink := &recordingSink{}
	client := NewClient("http://127.0.0.1:1", &http.Client{Timeout: time.Second})
	g, err := New(client, sink, logr.Discard(), Config{
		Branches: []Branch{{Action: ActionReadHomeTimeline, Weight: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, g.RunIteration(context.Background(), rand.New(rand.NewPCG(1, 1)), SeedContext{SeedUserID: 1}))

	require.Equal(t, 1, sink.len())
	s := sink.samples[0]
	assert.Zero(t, s.StatusCode)
	assert.False(t, s.Success)
	assert.Equal(t, metrics.StatusOther, s.Class())
}

func TestRunIteration_LatencyCheck(t *testing.T) {
	n := newStubNetwork(t)
	n.setStatus(PathUserTimeline, http.StatusInternalServerError)
	sink := &recordingSink{}
	g := newTestGenerator(t, n, sink, Config{
		Branches: []Branch{
			{Action: ActionReadHomeTimeline, Weight: 1},
			{Action: ActionReadUserTimeline, Weight: 1},
		},
		CheckLatency: LatencyCheck{Operations: map[string]time.Duration{OpReadHomeTimeline: time.Nanosecond}},
	})

	rng := rand.New(rand.NewPCG(15, 16))
	for i := 0; i < 20; i++ {
		require.NoError(t, g.RunIteration(context.Background(), rng, SeedContext{SeedUserID: 1}))
	}

	ops := sink.byOperation()
	require.NotEmpty(t, ops[OpReadHomeTimeline])
	require.NotEmpty(t, ops[OpReadUserTimeline])
	for _, s := range ops[OpReadHomeTimeline] {
		assert.True(t, s.Success, "slow 200 is still a successful request")
		assert.True(t, s.CheckFailed, "slow 200 fails its latency check")
	}
	for _, s := range ops[OpReadUserTimeline] {
		assert.False(t, s.Success)
		assert.True(t, s.CheckFailed)
	}
}

func TestLatencyCheck_Failed(t *testing.T) {
	check := LatencyCheck{
		Max:        time.Second,
		Operations: map[string]time.Duration{OpReadHomeTimeline: 500 * time.Millisecond},
	}

	tests := []struct {
		name string
		res  Response
		want bool
	}{
		{"fast 200", Response{Operation: OpComposePost, StatusCode: 200, Duration: 999 * time.Millisecond}, false},
		{"slow 200", Response{Operation: OpComposePost, StatusCode: 200, Duration: 2 * time.Second}, true},
		{"at bound", Response{Operation: OpComposePost, StatusCode: 200, Duration: time.Second}, true},
		{"per-operation bound", Response{Operation: OpReadHomeTimeline, StatusCode: 200, Duration: 600 * time.Millisecond}, true},
		{"fast 500", Response{Operation: OpComposePost, StatusCode: 500, Duration: time.Millisecond}, true},
	}
	for _, tt := range tests {
		if got := check.Failed(tt.res); got != tt.want {
			t.Errorf("%s: Failed() = %v, want %v", tt.name, got, tt.want)
		}
	}

	if (LatencyCheck{}).Failed(Response{StatusCode: 200, Duration: time.Hour}) {
		t.Errorf("zero LatencyCheck should only fail non-200 answers")
	}
}

func TestRunIteration_ReadTimelines(t *testing.T) {
	n := newStubNetwork(t)
	sink := &recordingSink{}
	g := newTestGenerator(t, n, sink, Config{
		Branches:          []Branch{{Action: ActionReadTimelines, Weight: 1}},
		ReadsPerIteration: 3,
	})

	require.NoError(t, g.RunIteration(context.Background(), rand.New(rand.NewPCG(11, 12)), SeedContext{SeedUserID: 1}))
	assert.Equal(t, 3, sink.len())
	assert.Equal(t, int64(3), n.hitCount(PathHomeTimeline)+n.hitCount(PathUserTimeline))
}

func TestRunIteration_SingleActions(t *testing.T) {
	tests := []struct {
		action Action
		op     string
		path   string
	}{
		{ActionReadHomeTimeline, OpReadHomeTimeline, PathHomeTimeline},
		{ActionReadUserTimeline, OpReadUserTimeline, PathUserTimeline},
		{ActionComposePost, OpComposePost, PathCompose},
		{ActionFollow, OpFollowUser, PathFollow},
		{ActionUnfollow, OpUnfollowUser, PathUnfollow},
		{ActionRegister, OpRegisterUser, PathRegister},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			n := newStubNetwork(t)
			sink := &recordingSink{}
			g := newTestGenerator(t, n, sink, Config{Branches: []Branch{{Action: tt.action, Weight: 1}}})

			require.NoError(t, g.RunIteration(context.Background(), rand.New(rand.NewPCG(1, 2)), SeedContext{SeedUserID: 1}))

			ops := sink.byOperation()
			assert.Len(t, ops[tt.op], 1)
			assert.Equal(t, 1, sink.len())
			assert.Equal(t, int64(1), n.hitCount(tt.path))
		})
	}
}

func TestSetup(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		n := newStubNetwork(t)
		n.setStatus(PathRegister, status)
		sink := &recordingSink{}
		g := newTestGenerator(t, n, sink, journeyConfig())

		seed := g.Setup(context.Background())
		assert.Equal(t, DefaultSeedUserID, seed.SeedUserID)
		assert.Equal(t, int64(1), n.hitCount(PathRegister))
		assert.Zero(t, sink.len(), "setup traffic is not part of the run")
	}
}

func TestTeardown(t *testing.T) {
	n := newStubNetwork(t)
	g := newTestGenerator(t, n, &recordingSink{}, journeyConfig())

	summary := g.Teardown(metrics.StatusCounts{OK: 6, BadRequest: 2, ServerErr: 1, Other: 1})
	assert.Equal(t, int64(10), summary.Total)
	assert.InDelta(t, 0.6, summary.SuccessRate, 1e-9)
}

func TestNew_Validation(t *testing.T) {
	client := NewClient("http://localhost:8080", nil)

	_, err := New(nil, &recordingSink{}, logr.Discard(), journeyConfig())
	assert.Error(t, err)

	_, err = New(client, nil, logr.Discard(), journeyConfig())
	assert.Error(t, err)

	_, err = New(client, &recordingSink{}, logr.Discard(), Config{})
	assert.Error(t, err)

	g, err := New(client, &recordingSink{}, logr.Discard(), journeyConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultExistingUsers, g.Config().ExistingUsers)
	assert.Equal(t, DefaultTimelineStop, g.Config().TimelineStop)
}
