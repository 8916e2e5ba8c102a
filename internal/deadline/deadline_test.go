package deadline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRace_ReturnsResult(t *testing.T) {
	v, err := Race(context.Background(), time.Second, func(context.Context) (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRace_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Race(context.Background(), time.Second, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRace_TimeoutDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool

	v, err := Race(context.Background(), 20*time.Millisecond, func(context.Context) ([]int, error) {
		<-release
		finished.Store(true)
		return []int{1}, nil
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, v)

	// The late sender must not block on the abandoned channel.
	close(release)
	assert.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
}

func TestRace_RecoversPanic(t *testing.T) {
	_, err := Race(context.Background(), time.Second, func(context.Context) (int, error) {
		panic("bad reply")
	})
	assert.ErrorContains(t, err, "panicked")
}

func TestRace_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Race(ctx, time.Second, func(context.Context) (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
