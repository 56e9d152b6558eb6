package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/socialload/internal/metrics"
	"github.com/wesleyorama2/socialload/internal/runtime"
)

// vuPool tracks the VUs an executor started. VUs run on their own context
// so that ending the executor's duration lets iterations finish; the context
// is only cancelled when the graceful stop window runs out.
type vuPool struct {
	scheduler *runtime.VUScheduler
	metrics   *metrics.Engine

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	vus    []*runtime.VirtualUser
	wg     sync.WaitGroup
	active atomic.Int32
}

func newVUPool(ctx context.Context, scheduler *runtime.VUScheduler, metricsEngine *metrics.Engine) *vuPool {
	vuCtx, cancel := context.WithCancel(ctx)
	return &vuPool{
		scheduler: scheduler,
		metrics:   metricsEngine,
		ctx:       vuCtx,
		cancel:    cancel,
	}
}

// scaleTo spawns or stops VUs until target are running. Stopped VUs are
// taken from the end of the list.
func (p *vuPool) scaleTo(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := len(p.vus)
	switch {
	case target > current:
		for i := current; i < target; i++ {
			vu := p.scheduler.SpawnVU()
			p.vus = append(p.vus, vu)
			p.wg.Add(1)
			go p.run(vu)
		}
	case target < current:
		for i := current - 1; i >= target; i-- {
			p.vus[i].RequestStop()
		}
		p.vus = p.vus[:target]
	}
}

func (p *vuPool) run(vu *runtime.VirtualUser) {
	defer p.wg.Done()

	p.setActive(p.active.Add(1))
	defer func() {
		p.setActive(p.active.Add(-1))
		p.scheduler.RemoveVU(vu.ID)
	}()

	p.scheduler.RunVU(p.ctx, vu)
}

func (p *vuPool) setActive(n int32) {
	if p.metrics != nil {
		p.metrics.SetActiveVUs(int(n))
	}
}

func (p *vuPool) activeVUs() int {
	return int(p.active.Load())
}

// drain asks every VU to stop and waits up to grace for them to finish
// their iteration, then cancels whatever is still running. It reports
// whether all VUs stopped inside the window.
func (p *vuPool) drain(grace time.Duration) bool {
	p.scaleTo(0)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return true
	case <-timer.C:
		p.cancel()
		<-done
		return false
	}
}
