package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/wantarr/internal/providers"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(providers.NameScraping, 2, nil)
	ctx := context.Background()

	var inFlight, maxInFlight int32
	release := make(chan struct{})

	for i := 0; i < 4; i++ {
		err := pool.Submit(ctx, func(ctx context.Context) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxInFlight)
				if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inFlight, -1)
			return nil
		}, nil)
		require.NoError(t, err)
	}

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2), "at most maxWorkers jobs may run concurrently")

	close(release)
	pool.Wait()
}

func TestPoolSubmitRespectsContextCancellation(t *testing.T) {
	pool := NewPool(providers.NameScraping, 1, nil)
	ctx := context.Background()

	block := make(chan struct{})
	require.NoError(t, pool.Submit(ctx, func(context.Context) error {
		<-block
		return nil
	}, nil))

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(cancelCtx, func(context.Context) error { return nil }, nil)
	assert.Error(t, err, "submitting with an already-cancelled context and no free slot must fail")

	close(block)
	pool.Wait()
}

func TestPoolDoneCallbackReceivesJobError(t *testing.T) {
	pool := NewPool(providers.NameDownloader, 1, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	boom := assert.AnError
	require.NoError(t, pool.Submit(ctx, func(context.Context) error { return boom }, func(err error) {
		done <- err
	}))

	select {
	case err := <-done:
		assert.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("done callback never fired")
	}
}

func TestManagerCreatesOnePoolPerService(t *testing.T) {
	m := NewManager(nil)

	p1 := m.PoolFor(providers.NameScraping)
	p2 := m.PoolFor(providers.NameScraping)
	p3 := m.PoolFor(providers.NameDownloader)

	assert.Same(t, p1, p2, "the same service must reuse its existing pool")
	assert.NotSame(t, p1, p3)
}

func TestMaxWorkersFromEnvFallsBackWhenUnset(t *testing.T) {
	assert.Equal(t, 1, MaxWorkersFromEnv(providers.Name("NoSuchService"), 1))
}

func TestMaxWorkersFromEnvReadsServiceVariable(t *testing.T) {
	t.Setenv("SCRAPING_MAX_WORKERS", "5")
	assert.Equal(t, 5, MaxWorkersFromEnv(providers.NameScraping, 1))
}

func TestMaxWorkersFromEnvIgnoresInvalidValue(t *testing.T) {
	t.Setenv("SCRAPING_MAX_WORKERS", "not-a-number")
	assert.Equal(t, 1, MaxWorkersFromEnv(providers.NameScraping, 1))
}
