package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-gateway/internal/domain/gateway"
)

func TestLoginToken(t *testing.T) {
	t.Parallel()

	token, err := loginToken(&tg.AuthLoginToken{Token: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), token)

	_, err = loginToken(&tg.AuthLoginTokenMigrateTo{DCID: 4, Token: []byte("x")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, gateway.ErrQRUnsupported)
	assert.Equal(t, gateway.KindExternalService, gateway.KindOf(err))

	_, err = loginToken(&tg.AuthLoginTokenSuccess{})
	require.Error(t, err)
}

func newTestAttempt(importFn func(ctx context.Context) error) (*qrAttempt, chan struct{}) {
	signaled := make(chan struct{})
	return &qrAttempt{
		token:    []byte("t"),
		base:     context.Background(),
		signaled: signaled,
		importFn: importFn,
	}, signaled
}

func TestQRAttemptWaitsForSignal(t *testing.T) {
	t.Parallel()

	attempt, _ := newTestAttempt(func(context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, attempt.Wait(ctx), context.DeadlineExceeded)
}

func TestQRAttemptSlowImportDoesNotBlockWaiters(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	attempt, signaled := newTestAttempt(func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})
	close(signaled)

	// Несколько одновременных опросов с коротким таймаутом возвращаются
	// вовремя, пока импорт ещё идёт.
	errs := make(chan error, 3)
	started := time.Now()
	for range 3 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			errs <- attempt.Wait(ctx)
		}()
	}
	for range 3 {
		assert.ErrorIs(t, <-errs, context.DeadlineExceeded)
	}
	assert.Less(t, time.Since(started), time.Second)

	close(release)
	require.NoError(t, attempt.Wait(context.Background()))
	require.NoError(t, attempt.Wait(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestQRAttemptRetriesFailedImport(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	attempt, signaled := newTestAttempt(func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("rpc error")
		}
		return nil
	})
	close(signaled)

	ctx := context.Background()
	require.ErrorContains(t, attempt.Wait(ctx), "import login token")
	require.NoError(t, attempt.Wait(ctx))
	assert.Equal(t, int32(2), calls.Load())
}
