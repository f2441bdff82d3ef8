package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsfeed/backend/internal/ingest"
	"newsfeed/backend/internal/scheduler"
	"newsfeed/backend/internal/service"
)

type countingRefresher struct {
	calls     atomic.Int32
	cancelled atomic.Bool
	block     bool
}

func (r *countingRefresher) RefreshAll(ctx context.Context) (service.RefreshSummary, error) {
	r.calls.Add(1)
	if r.block {
		<-ctx.Done()
		r.cancelled.Store(true)
		return service.RefreshSummary{}, ctx.Err()
	}
	return service.RefreshSummary{Feeds: 1}, nil
}

func (r *countingRefresher) RefreshFeed(context.Context, int64) (ingest.IngestResult, error) {
	return ingest.IngestResult{}, nil
}

func (r *countingRefresher) IsRefreshing() bool { return false }

func TestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	r := &countingRefresher{}
	s := scheduler.New(r, 20*time.Millisecond)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopCancelsRunningSweep(t *testing.T) {
	r := &countingRefresher{block: true}
	s := scheduler.New(r, time.Hour)
	s.Start()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.True(t, r.cancelled.Load())

	// Stop is idempotent.
	s.Stop()
}
