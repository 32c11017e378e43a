package telegramruntime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitRandomTimeMsWaitsWithinWindow(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, WaitRandomTimeMs(context.Background(), 20, 40))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitRandomTimeMsHonoursCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := WaitRandomTimeMs(ctx, 5000, 6000)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitRandomTimeMsInvalidWindow(t *testing.T) {
	t.Parallel()

	assert.NoError(t, WaitRandomTimeMs(context.Background(), 0, 10))
	assert.NoError(t, WaitRandomTimeMs(context.Background(), 10, 5))
}
