package console

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var transitions []BreakerState
	b := NewBreaker(2, time.Minute, func(s BreakerState) { transitions = append(transitions, s) })
	b.now = func() time.Time { return now }

	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, b.Do(fail, nil), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(fail, nil), errBoom)
	assert.Equal(t, StateOpen, b.State())

	assert.ErrorIs(t, b.Do(ok, nil), ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Do(ok, nil))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []BreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := NewBreaker(1, time.Minute, nil)
	b.now = func() time.Time { return now }

	_ = b.Do(func() error { return errBoom }, nil)
	now = now.Add(2 * time.Minute)

	assert.ErrorIs(t, b.Do(func() error { return errBoom }, nil), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_UncountedErrors(t *testing.T) {
	b := NewBreaker(1, time.Minute, nil)
	notCounted := func(error) bool { return false }

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(func() error { return errBoom }, notCounted), errBoom)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Disabled(t *testing.T) {
	b := NewBreaker(-1, time.Minute, nil)
	for i := 0; i < 10; i++ {
		_ = b.Do(func() error { return errBoom }, nil)
	}
	assert.NoError(t, b.Do(func() error { return nil }, nil))
}
