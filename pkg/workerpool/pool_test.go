package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_RunJobs(t *testing.T) {
	pool := New(5)

	var jobs []Job
	var completed int32
	for i := 0; i < 15; i++ {
		jobs = append(jobs, func() error {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&completed, 1)
			return nil
		})
	}

	pool.Add(jobs)
	require.NoError(t, pool.Wait())
	require.EqualValues(t, len(jobs), completed, "expected all jobs to be completed")
}

func Test_Bounded(t *testing.T) {
	pool := New(2)

	var running, peak int32
	var jobs []Job
	for i := 0; i < 10; i++ {
		jobs = append(jobs, func() error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
	}

	pool.AddBlocking(jobs)
	require.NoError(t, pool.Wait())
	require.LessOrEqual(t, peak, int32(2))
}

func Test_ErrorAndReuse(t *testing.T) {
	pool := New(3)
	boom := errors.New("boom")

	pool.Add([]Job{
		func() error { return nil },
		func() error { return boom },
	})
	require.Equal(t, boom, pool.Wait())

	pool.Add([]Job{func() error { return nil }})
	require.NoError(t, pool.Wait())
}

func Test_StopWait(t *testing.T) {
	pool := New(5)

	var jobs []Job
	for i := 0; i < 15; i++ {
		jobs = append(jobs, func() error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})
	}

	pool.Add(jobs)
	<-time.After(10 * time.Millisecond)
	pool.Stop()
	pool.Wait()
}
