package ai_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsfeed/backend/internal/service/ai"
)

func TestRateLimiter_BurstThenWait(t *testing.T) {
	l := ai.NewRateLimiter(2)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	l := ai.NewRateLimiter(1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx))
}
