package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/types"
)

// blockingSweeper parks inside Sweep until released, so tests can hold a
// sweep in flight deterministically.
type blockingSweeper struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newBlockingSweeper() *blockingSweeper {
	return &blockingSweeper{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingSweeper) Sweep(_ context.Context) (types.SweepSummary, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()

	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return types.SweepSummary{Total: n}, nil
}

func (b *blockingSweeper) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestRunNow(t *testing.T) {
	sweeper := newBlockingSweeper()
	close(sweeper.release)
	s := NewSweepScheduler(sweeper, time.Hour, nil)

	summary, ran, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, summary.Total)
}

func TestRunNowSkipsWhileSweepInFlight(t *testing.T) {
	sweeper := newBlockingSweeper()
	s := NewSweepScheduler(sweeper, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = s.RunNow(context.Background())
	}()
	<-sweeper.entered

	// A second RunNow while the first is parked must bounce, not queue.
	_, ran, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	close(sweeper.release)
	<-done
	assert.Equal(t, 1, sweeper.callCount())
}

func TestSchedulerStartStop(t *testing.T) {
	sweeper := newBlockingSweeper()
	close(sweeper.release)
	s := NewSweepScheduler(sweeper, time.Hour, nil)

	s.Start(context.Background())
	s.Start(context.Background()) // second Start is a no-op
	s.Stop()
	s.Stop() // second Stop is a no-op

	// With an hour interval no tick fired during the test.
	assert.Zero(t, sweeper.callCount())
}

func TestSchedulerTicksFireSweeps(t *testing.T) {
	sweeper := newBlockingSweeper()
	close(sweeper.release)
	s := NewSweepScheduler(sweeper, 10*time.Millisecond, nil)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return sweeper.callCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}
