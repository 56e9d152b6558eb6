// Package runtime runs virtual users: each one loops over workload
// iterations with its own random source until it is told to stop.
package runtime

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/socialload/internal/metrics"
)

// Iterator is one unit of work a virtual user repeats.
//
// Implementations must be safe for concurrent use by many VUs; all per-VU
// randomness comes from rng.
type Iterator interface {
	RunIteration(ctx context.Context, rng *rand.Rand) error
}

// IteratorFunc adapts a function to the Iterator interface.
type IteratorFunc func(ctx context.Context, rng *rand.Rand) error

// RunIteration implements Iterator.
func (fn IteratorFunc) RunIteration(ctx context.Context, rng *rand.Rand) error {
	return fn(ctx, rng)
}

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop after the
	// current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated user.
//
// Each VU owns its random source and iteration counter. Iterations of one VU
// are strictly sequential.
type VirtualUser struct {
	ID int

	iterator Iterator
	metrics  *metrics.Engine
	rng      *rand.Rand

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64

	lastIterStart atomic.Int64
	lastIterEnd   atomic.Int64
}

// NewVirtualUser creates a VU. A nil rng gets a randomly seeded PCG source.
func NewVirtualUser(id int, iterator Iterator, rng *rand.Rand, metricsEngine *metrics.Engine) *VirtualUser {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), uint64(id)))
	}
	return &VirtualUser{
		ID:       id,
		iterator: iterator,
		metrics:  metricsEngine,
		rng:      rng,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of completed iterations.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// LastIteration returns the start and end of the most recent iteration.
func (vu *VirtualUser) LastIteration() (time.Time, time.Time) {
	return time.Unix(0, vu.lastIterStart.Load()), time.Unix(0, vu.lastIterEnd.Load())
}

// RunIteration runs one iteration. A completed iteration is counted on the
// VU and in the metrics engine; a cancelled one is not.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	if vu.stopping() {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	vu.lastIterStart.Store(time.Now().UnixNano())

	err := vu.iterator.RunIteration(ctx, vu.rng)

	vu.lastIterEnd.Store(time.Now().UnixNano())
	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))

	if err != nil {
		return err
	}
	vu.iteration.Add(1)
	if vu.metrics != nil {
		vu.metrics.AddIteration()
	}
	return nil
}

func (vu *VirtualUser) stopping() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// Stopped is closed once RequestStop has been called.
func (vu *VirtualUser) Stopped() <-chan struct{} {
	return vu.stopCh
}

// WaitForStop waits for the VU goroutine to exit.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Called by the goroutine running the VU when it exits.
func (vu *VirtualUser) MarkStopped() {
	prev := VUState(vu.state.Swap(int32(VUStateStopped)))
	if prev == VUStateIdle || prev == VUStateRunning {
		close(vu.stopCh)
	}
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
