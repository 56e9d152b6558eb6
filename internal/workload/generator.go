// Package workload decides what each virtual-user iteration does against the
// social network: which endpoints to call, in what order, with which
// synthetic data, and how long to pause afterwards.
package workload

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/wesleyorama2/socialload/internal/metrics"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultExistingUsers     int64 = 962
	DefaultTimelineStop            = 10
	DefaultReadsPerIteration       = 2
)

// Sampling rates for logging failed response bodies.
const (
	registerFailureLogRate = 0.05
	composeFailureLogRate  = 0.01
)

// JourneyConfig controls the register -> follow -> compose -> read chain.
// Each pause is drawn like the iteration think time.
type JourneyConfig struct {
	AfterRegister ThinkTime
	AfterFollow   ThinkTime
	AfterCompose  ThinkTime
	AfterRead     ThinkTime

	// OnFailure is the pause taken when registration fails. The iteration
	// ends right after it.
	OnFailure ThinkTime

	// ReadAfterCompose reads the new user's home timeline as the last step.
	ReadAfterCompose bool
}

// Config is the full description of a workload.
type Config struct {
	Branches  []Branch
	ThinkTime ThinkTime
	Journey   JourneyConfig
	Post      PostOptions

	// SeedUserID is the user that follows every newly registered user.
	SeedUserID int64
	// UserIDSpace bounds the random part of generated user ids.
	UserIDSpace int64
	// ExistingUsers is the size of the pre-loaded user graph; reads,
	// follows and composes for existing users pick ids in [1, ExistingUsers].
	ExistingUsers int64

	TimelineStop      int
	ReadsPerIteration int

	// ClientWork is the number of CPU-burn loop steps run before each
	// iteration. Zero disables it.
	ClientWork int

	// SlowRequestThreshold logs any call slower than this. Zero disables it.
	SlowRequestThreshold time.Duration

	// CheckLatency marks calls that answered 200 but too slowly as failed
	// checks. They still count as successful HTTP requests.
	CheckLatency LatencyCheck
}

// LatencyCheck holds response-time bounds for the per-call checks.
type LatencyCheck struct {
	// Max bounds every operation without its own entry. Zero disables it.
	Max time.Duration
	// Operations holds bounds keyed by operation name (e.g. "ComposePost").
	Operations map[string]time.Duration
}

// Bound returns the bound for op, 0 when op is unchecked.
func (c LatencyCheck) Bound(op string) time.Duration {
	if d, ok := c.Operations[op]; ok {
		return d
	}
	return c.Max
}

// Failed reports whether res fails its checks: any non-200 answer, or a
// 200 that took at least the operation's bound.
func (c LatencyCheck) Failed(res Response) bool {
	if !res.OK() {
		return true
	}
	bound := c.Bound(res.Operation)
	return bound > 0 && res.Duration >= bound
}

func (c Config) withDefaults() Config {
	if c.SeedUserID <= 0 {
		c.SeedUserID = DefaultSeedUserID
	}
	if c.UserIDSpace <= 0 {
		c.UserIDSpace = DefaultUserIDSpace
	}
	if c.ExistingUsers <= 0 {
		c.ExistingUsers = DefaultExistingUsers
	}
	if c.TimelineStop <= 0 {
		c.TimelineStop = DefaultTimelineStop
	}
	if c.ReadsPerIteration <= 0 {
		c.ReadsPerIteration = DefaultReadsPerIteration
	}
	return c
}

// SeedContext is produced once by Setup and handed to every iteration.
type SeedContext struct {
	SeedUserID int64 `json:"seedUserId"`
}

// Generator runs workload iterations and records one sample per HTTP call
// into the injected sink.
type Generator struct {
	client *Client
	sink   metrics.Sink
	log    logr.Logger
	cfg    Config
	mix    *Mix
}

// New validates cfg and builds a generator.
func New(client *Client, sink metrics.Sink, log logr.Logger, cfg Config) (*Generator, error) {
	if client == nil {
		return nil, fmt.Errorf("workload client is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("metrics sink is required")
	}

	mix, err := NewMix(cfg.Branches)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		sink:   sink,
		log:    log.WithName("workload"),
		cfg:    cfg.withDefaults(),
		mix:    mix,
	}, nil
}

// Config returns the effective configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Setup registers the seed user. 200 means it was created and 400 that it
// most likely exists from an earlier run; both are fine. Anything else is
// logged and the run continues.
func (g *Generator) Setup(ctx context.Context) SeedContext {
	seed := SeedContext{SeedUserID: g.cfg.SeedUserID}

	res := g.client.Register(ctx, SyntheticUser{
		UserID:    seed.SeedUserID,
		Username:  fmt.Sprintf("seed_user_%d", seed.SeedUserID),
		FirstName: "Seed",
		LastName:  "User",
		Password:  "seedpassword123",
	})

	log := g.log.WithValues("seedUserId", seed.SeedUserID, "status", res.StatusCode)
	switch {
	case res.Err != nil:
		log.Error(res.Err, "seed user registration failed, continuing")
	case res.StatusCode == http.StatusOK:
		log.Info("seed user created")
	case res.StatusCode == http.StatusBadRequest:
		log.Info("seed user may already exist")
	default:
		log.Error(fmt.Errorf("unexpected status %d", res.StatusCode), "seed user registration failed, continuing", "body", res.Body)
	}

	return seed
}

// Bind returns an iterator that runs iterations against seed.
func (g *Generator) Bind(seed SeedContext) *Bound {
	return &Bound{g: g, seed: seed}
}

// Bound is a generator with its setup result attached.
type Bound struct {
	g    *Generator
	seed SeedContext
}

// RunIteration runs one iteration.
func (b *Bound) RunIteration(ctx context.Context, rng *rand.Rand) error {
	return b.g.RunIteration(ctx, rng, b.seed)
}

// RunIteration draws once from rng, runs the selected branch and pauses
// for the configured think time, also after a failed journey. Request
// failures are recorded, never returned; the only error is context
// cancellation.
func (g *Generator) RunIteration(ctx context.Context, rng *rand.Rand, seed SeedContext) error {
	if g.cfg.ClientWork > 0 {
		BurnCPU(g.cfg.ClientWork)
	}

	action := g.mix.Pick(rng.Float64())

	switch action {
	case ActionUserJourney:
		g.userJourney(ctx, rng, seed)
	case ActionReadHomeTimeline:
		g.readTimeline(ctx, HomeTimeline, g.existingUser(rng))
	case ActionReadUserTimeline:
		g.readTimeline(ctx, UserTimeline, g.existingUser(rng))
	case ActionReadTimelines:
		g.readTimelines(ctx, rng)
	case ActionComposePost:
		uid := g.existingUser(rng)
		g.compose(ctx, rng, GeneratePost(rng, uid, fmt.Sprintf("user_%d", uid), g.cfg.Post))
	case ActionFollow:
		g.record(ctx, g.client.Follow(ctx, FollowEdge{FollowerID: g.existingUser(rng), FolloweeID: g.existingUser(rng)}))
	case ActionUnfollow:
		g.record(ctx, g.client.Unfollow(ctx, FollowEdge{FollowerID: g.existingUser(rng), FolloweeID: g.existingUser(rng)}))
	case ActionRegister:
		g.register(ctx, rng, generateUser(rng, seed.SeedUserID, g.cfg.UserIDSpace, time.Now()))
	}

	if ctx.Err() == nil {
		Sleep(ctx, g.cfg.ThinkTime.Draw(rng))
	}
	return ctx.Err()
}

// userJourney registers a fresh user, has the seed user follow it, posts as
// it and optionally reads its home timeline. A failed registration ends the
// chain.
func (g *Generator) userJourney(ctx context.Context, rng *rand.Rand, seed SeedContext) {
	j := g.cfg.Journey
	user := generateUser(rng, seed.SeedUserID, g.cfg.UserIDSpace, time.Now())

	if !g.register(ctx, rng, user) {
		Sleep(ctx, j.OnFailure.Draw(rng))
		return
	}
	if !Sleep(ctx, j.AfterRegister.Draw(rng)) {
		return
	}

	g.EnsureFollower(ctx, user.UserID, seed.SeedUserID)
	if !Sleep(ctx, j.AfterFollow.Draw(rng)) {
		return
	}

	g.compose(ctx, rng, GeneratePost(rng, user.UserID, user.Username, g.cfg.Post))
	if !Sleep(ctx, j.AfterCompose.Draw(rng)) {
		return
	}

	if j.ReadAfterCompose {
		g.readTimeline(ctx, HomeTimeline, user.UserID)
		Sleep(ctx, j.AfterRead.Draw(rng))
	}
}

// EnsureFollower makes the seed user follow userID. A failure is recorded
// and otherwise ignored.
func (g *Generator) EnsureFollower(ctx context.Context, userID, seedUserID int64) Response {
	res := g.client.Follow(ctx, FollowEdge{FollowerID: seedUserID, FolloweeID: userID})
	g.record(ctx, res)
	return res
}

func (g *Generator) register(ctx context.Context, rng *rand.Rand, user SyntheticUser) bool {
	res := g.client.Register(ctx, user)
	g.record(ctx, res)
	if !res.OK() && rng.Float64() < registerFailureLogRate {
		g.logFailure(res, "userId", user.UserID)
	}
	return res.OK()
}

func (g *Generator) compose(ctx context.Context, rng *rand.Rand, post Post) {
	res := g.client.ComposePost(ctx, post)
	g.record(ctx, res)
	if !res.OK() && rng.Float64() < composeFailureLogRate {
		g.logFailure(res, "userId", post.UserID)
	}
}

func (g *Generator) readTimeline(ctx context.Context, kind TimelineKind, userID int64) {
	g.record(ctx, g.client.ReadTimeline(ctx, kind, userID, 0, g.cfg.TimelineStop))
}

func (g *Generator) readTimelines(ctx context.Context, rng *rand.Rand) {
	for i := 0; i < g.cfg.ReadsPerIteration; i++ {
		if ctx.Err() != nil {
			return
		}
		kind := HomeTimeline
		if rng.Float64() >= 0.5 {
			kind = UserTimeline
		}
		g.readTimeline(ctx, kind, g.existingUser(rng))
	}
}

func (g *Generator) existingUser(rng *rand.Rand) int64 {
	return 1 + rng.Int64N(g.cfg.ExistingUsers)
}

func (g *Generator) record(ctx context.Context, res Response) {
	// calls aborted by the end of the run are not samples
	if res.Err != nil && res.StatusCode == 0 && ctx.Err() != nil {
		return
	}

	g.sink.Record(metrics.Sample{
		Operation:   res.Operation,
		StatusCode:  res.StatusCode,
		Duration:    res.Duration,
		Success:     res.OK(),
		CheckFailed: g.cfg.CheckLatency.Failed(res),
		Bytes:       res.Bytes,
	})

	if g.cfg.SlowRequestThreshold > 0 && res.Duration > g.cfg.SlowRequestThreshold {
		g.log.Info("high response time", "operation", res.Operation, "duration", res.Duration.String(), "status", res.StatusCode)
	}
}

func (g *Generator) logFailure(res Response, kv ...any) {
	kv = append(kv, "operation", res.Operation, "status", res.StatusCode)
	if res.Err != nil {
		g.log.Error(res.Err, "request failed", kv...)
		return
	}
	g.log.Info("request failed", append(kv, "body", res.Body)...)
}

// TeardownSummary is the end-of-run view of the status-code counters.
type TeardownSummary struct {
	Counts      metrics.StatusCounts `json:"counts"`
	Total       int64                `json:"total"`
	SuccessRate float64              `json:"successRate"`
}

// Teardown reports how many calls fell into each status class.
func (g *Generator) Teardown(counts metrics.StatusCounts) TeardownSummary {
	summary := TeardownSummary{
		Counts:      counts,
		Total:       counts.Total(),
		SuccessRate: counts.SuccessRate(),
	}
	g.log.Info("test completed",
		"status200", counts.OK,
		"status400", counts.BadRequest,
		"status5xx", counts.ServerErr,
		"statusOther", counts.Other,
		"total", summary.Total,
	)
	return summary
}
