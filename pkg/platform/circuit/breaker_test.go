package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dashboardBreaker mirrors the server wiring: failures from
// FLEETGUARD_DASHBOARD_BREAKER_FAILURES (default 3), default success threshold.
func dashboardBreaker(failures int) *Breaker {
	return New("dashboard-cache", WithFailureThreshold(failures))
}

func TestDefaults(t *testing.T) {
	b := New("dashboard-cache")
	assert.Equal(t, "dashboard-cache", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())

	for range defaultFailureThreshold - 1 {
		useFallback, _ := b.RecordFailure()
		require.False(t, useFallback)
	}
	_, change := b.RecordFailure()
	assert.True(t, change.Opened)
	assert.Equal(t, "open", b.State().String())
}

func TestNonPositiveThresholdsKeepDefaults(t *testing.T) {
	b := New("dashboard-cache", WithFailureThreshold(0), WithSuccessThreshold(-1))
	assert.Equal(t, defaultFailureThreshold, b.failureThreshold)
	assert.Equal(t, defaultSuccessThreshold, b.successThreshold)
}

func TestTransitionsAreReportedOnce(t *testing.T) {
	for _, failures := range []int{1, 3, 7} {
		b := dashboardBreaker(failures)

		var opened, closed int
		for range failures * 3 {
			if _, change := b.RecordFailure(); change.Opened {
				opened++
			}
		}
		assert.Equal(t, 1, opened, "failures=%d", failures)
		assert.True(t, b.IsOpen())

		for range defaultSuccessThreshold * 3 {
			if _, change := b.RecordSuccess(); change.Closed {
				closed++
			}
		}
		assert.Equal(t, 1, closed, "failures=%d", failures)
		assert.False(t, b.IsOpen())
	}
}

func TestInterleavedOutcomesDoNotAccumulate(t *testing.T) {
	b := dashboardBreaker(3)

	// A hit between misses restarts the failure streak.
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	_, change := b.RecordFailure()
	require.True(t, change.Opened)

	// One success short of closing, then a failure restarts the recovery streak.
	usePrimary, _ := b.RecordSuccess()
	assert.False(t, usePrimary)
	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.Equal(t, Change{}, change)

	usePrimary, _ = b.RecordSuccess()
	assert.False(t, usePrimary)
	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
}

func TestResetClearsStreaks(t *testing.T) {
	b := dashboardBreaker(2)
	b.RecordFailure()
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback, "reset must clear the failure streak")
	assert.Equal(t, Change{}, change)
}
