package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_FailureWaits(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 20, RandomDelayMs: 10})

	start := time.Now()
	td.Wait(false)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestTimingDelay_SuccessSkips(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 50, RandomDelayMs: 0})

	start := time.Now()
	td.Wait(true)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestTimingDelay_DelayOnSuccess(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 20, DelayOnSuccess: true})

	start := time.Now()
	td.Wait(true)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimingDelay_WaitFromCountsElapsed(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 30, RandomDelayMs: 0})

	start := time.Now().Add(-25 * time.Millisecond)
	td.WaitFrom(start, false)

	// Only the remainder of the target delay should have been slept
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestCryptoRandIntn_Bounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := cryptoRandIntn(10)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 10)
	}

	n, err := cryptoRandIntn(0)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
