package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterSpacesActions(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first action is not delayed")

	require.NoError(t, r.Wait(ctx))
	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSimpleRateLimiterHonoursContext(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimpleRateLimiterNormalisesRange(t *testing.T) {
	r := NewSimpleRateLimiter(2*time.Second, time.Second)
	min, max := r.Delay()
	assert.Equal(t, 2*time.Second, min)
	assert.Equal(t, 2*time.Second, max)
}

func TestAdaptiveBackoffAndRecovery(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 2*time.Second)

	for i := 0; i < 3; i++ {
		a.RecordError()
	}
	min, max := a.Delay()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 3*time.Second, max)

	for i := 0; i < 6*10; i++ {
		a.RecordSuccess()
	}
	min, _ = a.Delay()
	assert.Equal(t, 2*time.Second, min, "recovery never goes under the configured floor")
}

func TestSimpleRateLimiterSharedByWorkers(t *testing.T) {
	r := NewSimpleRateLimiter(20*time.Millisecond, 20*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			assert.NoError(t, r.Wait(ctx))
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSimpleRateLimiterReleasesCanceledSlot(t *testing.T) {
	r := NewSimpleRateLimiter(50*time.Millisecond, 50*time.Millisecond)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Wait(ctx), context.Canceled)

	start := time.Now()
	require.NoError(t, r.Wait(context.Background()))
	assert.Less(t, time.Since(start), 90*time.Millisecond, "canceled reservation is handed back")
}

func TestAdaptiveCeiling(t *testing.T) {
	a := NewAdaptiveRateLimiterWithPolicy(40*time.Second, 100*time.Second, Policy{
		ErrorThreshold:   1,
		BackoffFactor:    2,
		SuccessThreshold: 1,
		RecoveryFactor:   0.5,
		CeilingMin:       60 * time.Second,
		CeilingMax:       120 * time.Second,
	})

	a.RecordError()
	min, max := a.Delay()
	assert.Equal(t, 60*time.Second, min)
	assert.Equal(t, 120*time.Second, max)

	a.RecordSuccess()
	min, max = a.Delay()
	assert.Equal(t, 40*time.Second, min)
	assert.Equal(t, 120*time.Second, max)
}
