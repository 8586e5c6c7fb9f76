package workerpool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
)

func TestRunExecutesEveryJobIndependently(t *testing.T) {
	pool := New(4)
	var counter int64

	jobs := make([]Job, 20)
	for i := range jobs {
		i := i
		jobs[i] = NewJob(8, 8, []byte{byte(i)}, func(done <-chan struct{}) (any, error) {
			atomic.AddInt64(&counter, 1)
			return i * 2, nil
		})
	}

	results := pool.Run(context.Background(), jobs)
	require.Len(t, results, 20)
	require.EqualValues(t, 20, counter)
	for i, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, i*2, r.Value)
	}
}

func TestRunReportsCancelledForSkippedJobs(t *testing.T) {
	pool := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{
		NewJob(4, 4, []byte("a"), func(done <-chan struct{}) (any, error) { return 1, nil }),
	}
	results := pool.Run(ctx, jobs)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	ce, ok := results[0].Err.(*coreerr.Error)
	require.True(t, ok)
	require.Equal(t, coreerr.Cancelled, ce.Kind)
}

func TestNewJobIsStableForIdenticalGeometryAndSeed(t *testing.T) {
	run := func(done <-chan struct{}) (any, error) { return nil, nil }
	a := NewJob(16, 16, []byte("block-3"), run)
	b := NewJob(16, 16, []byte("block-3"), run)
	require.Equal(t, a.ID, b.ID)

	c := NewJob(16, 16, []byte("block-4"), run)
	require.NotEqual(t, a.ID, c.ID)
}

func TestBufferPoolReusesUpToCapAndZeroesOnAcquire(t *testing.T) {
	pool := New(1)
	area := 64

	buf := pool.AcquireBuffer(area)
	require.Len(t, buf, area)
	for i := range buf {
		buf[i] = int32(i + 1)
	}
	pool.ReleaseBuffer(area, buf)

	reused := pool.AcquireBuffer(area)
	require.Len(t, reused, area)
	for _, v := range reused {
		require.Zero(t, v)
	}
}

func TestBufferPoolDropsBeyondBucketCap(t *testing.T) {
	pool := New(1)
	area := 16

	for i := 0; i < maxBuffersPerBucket+4; i++ {
		pool.ReleaseBuffer(area, make([]int32, area))
	}

	bucket := pool.buffers[area]
	require.NotNil(t, bucket)
	require.LessOrEqual(t, len(bucket.free), maxBuffersPerBucket)
}
