package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucketStore keeps the most recent time buckets in a ring buffer.
//
// Interval counters are updated lock-free from the request path; the
// emitter swaps them out when it closes a bucket.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	intervalRequests atomic.Int64
	intervalFailures atomic.Int64
}

// NewTimeBucketStore creates a store retaining at most maxBuckets buckets.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds one request to the open interval.
func (tbs *TimeBucketStore) RecordRequest(success bool) {
	tbs.intervalRequests.Add(1)
	if !success {
		tbs.intervalFailures.Add(1)
	}
}

// bucketTotals carries the cumulative engine state into a new bucket.
type bucketTotals struct {
	requests, successes, failures, bytes int64
	latencies                            LatencyPercentiles
	activeVUs                            int
	phase                                Phase
}

// closeBucket closes the open interval and appends it to the ring.
func (tbs *TimeBucketStore) closeBucket(totals bucketTotals) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()
	requests := tbs.intervalRequests.Swap(0)
	failures := tbs.intervalFailures.Swap(0)

	seconds := now.Sub(tbs.lastBucketTime).Seconds()
	if seconds <= 0 {
		seconds = 1.0
	}

	errorRate := 0.0
	if requests > 0 {
		errorRate = float64(failures) / float64(requests)
	}

	bucket := &TimeBucket{
		Timestamp:         now,
		TotalRequests:     totals.requests,
		TotalSuccesses:    totals.successes,
		TotalFailures:     totals.failures,
		TotalBytes:        totals.bytes,
		IntervalRequests:  requests,
		IntervalRPS:       float64(requests) / seconds,
		IntervalErrorRate: errorRate,
		LatencyP50:        totals.latencies.P50,
		LatencyP95:        totals.latencies.P95,
		LatencyP99:        totals.latencies.P99,
		ActiveVUs:         totals.activeVUs,
		Phase:             totals.phase,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// Buckets returns the retained buckets in chronological order.
func (tbs *TimeBucketStore) Buckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, tbs.count)
	start := 0
	if tbs.count == tbs.maxBuckets {
		start = tbs.head
	}
	for i := 0; i < tbs.count; i++ {
		result[i] = tbs.buckets[(start+i)%tbs.maxBuckets]
	}
	return result
}

// Latest returns the most recent bucket, or nil if none.
func (tbs *TimeBucketStore) Latest() *TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}
	return tbs.buckets[(tbs.head-1+tbs.maxBuckets)%tbs.maxBuckets]
}

// Count returns the number of retained buckets.
func (tbs *TimeBucketStore) Count() int {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()
	return tbs.count
}

// SteadyStateRPS averages the interval RPS of buckets taken during the
// steady phase. The second return value is the number of buckets used.
func (tbs *TimeBucketStore) SteadyStateRPS() (float64, int) {
	var sum float64
	n := 0
	for _, b := range tbs.Buckets() {
		if b.Phase != PhaseSteady {
			continue
		}
		sum += b.IntervalRPS
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
