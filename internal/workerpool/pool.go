// Package workerpool dispatches independent per-block encode work units
// across a bounded set of goroutines (spec.md §5: "the core is
// fundamentally per-block parallel... there is no shared mutable state
// between blocks during encoding"), and pools the per-block scratch
// buffers the bit-plane coder and grid allocate (§9, "arena/pool for
// per-block scratch arrays").
package workerpool

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/google/uuid"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
)

// Job is one unit of per-block work: a stable ID for cancellation
// bookkeeping and structured-log correlation, and the function the pool
// runs. Run receives a done channel it must poll between passes (it is
// closed when the job's context is cancelled); Run is responsible for
// returning promptly once it observes done closed.
type Job struct {
	ID     uuid.UUID
	Width  int
	Height int
	Run    func(done <-chan struct{}) (any, error)
}

// NewJob builds a Job with a content-hash-seeded ID: resubmitting a block
// with identical geometry and a distinguishing seed (e.g. a tile/subband
// index) yields a stable ID, letting a cancellation-retry submit under
// the same identity instead of minting a new one each time.
func NewJob(width, height int, seed []byte, run func(done <-chan struct{}) (any, error)) Job {
	h := sha256.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[0:4], uint32(width))
	binary.BigEndian.PutUint32(dims[4:8], uint32(height))
	h.Write(dims[:])
	h.Write(seed)
	sum := h.Sum(nil)

	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		id = uuid.New()
	}
	return Job{ID: id, Width: width, Height: height, Run: run}
}

// Result is one job's outcome: its ID (to match back against the
// submitted Job), the value Run returned, and an error — coreerr.Cancelled
// when the pool's context was cancelled before Run observed it and
// returned early.
type Result struct {
	ID    uuid.UUID
	Value any
	Err   error
}

// Pool runs jobs across a fixed number of worker goroutines and pools
// per-block scratch buffers keyed by block area (width*height).
type Pool struct {
	sem chan struct{}

	mu      sync.Mutex
	buffers map[int]*bufferBucket
}

const maxBuffersPerBucket = 8

type bufferBucket struct {
	free [][]int32
}

// New creates a pool with the given worker concurrency (at least 1).
func New(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		sem:     make(chan struct{}, concurrency),
		buffers: make(map[int]*bufferBucket),
	}
}

// AcquireBuffer returns an all-zero int32 slice of length area, reused
// from the pool when one of the right size is cached. A reused buffer is
// zeroed here, on acquire, rather than when it is released.
func (p *Pool) AcquireBuffer(area int) []int32 {
	p.mu.Lock()
	bucket := p.buffers[area]
	if bucket != nil && len(bucket.free) > 0 {
		buf := bucket.free[len(bucket.free)-1]
		bucket.free = bucket.free[:len(bucket.free)-1]
		p.mu.Unlock()
		for i := range buf {
			buf[i] = 0
		}
		return buf
	}
	p.mu.Unlock()
	return make([]int32, area)
}

// ReleaseBuffer returns a buffer to the pool for its area's bucket,
// dropping it instead of caching when the bucket is already full.
func (p *Pool) ReleaseBuffer(area int, buf []int32) {
	if len(buf) != area {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buffers[area]
	if bucket == nil {
		bucket = &bufferBucket{}
		p.buffers[area] = bucket
	}
	if len(bucket.free) >= maxBuffersPerBucket {
		return
	}
	bucket.free = append(bucket.free, buf)
}

// Run dispatches every job to a worker, respecting the pool's
// concurrency cap, and returns one Result per job once all have
// completed or ctx is cancelled. A job still queued when ctx is
// cancelled is skipped and reported with coreerr.Cancelled rather than
// run at all; a job already running is left to observe its done channel.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))

	for i, job := range jobs {
		i, job := i, job
		go func() {
			defer wg.Done()

			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = Result{ID: job.ID, Err: coreerr.Sentinel(coreerr.Cancelled)}
				return
			}
			defer func() { <-p.sem }()

			select {
			case <-ctx.Done():
				results[i] = Result{ID: job.ID, Err: coreerr.Sentinel(coreerr.Cancelled)}
				return
			default:
			}

			value, err := job.Run(ctx.Done())
			results[i] = Result{ID: job.ID, Value: value, Err: err}
		}()
	}

	wg.Wait()
	return results
}
