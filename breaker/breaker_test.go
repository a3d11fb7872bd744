package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		BaseBackoff:      20 * time.Millisecond,
		MaxBackoff:       80 * time.Millisecond,
		HalfOpenCalls:    1,
	}
}

func TestClosed_AlwaysAllowsWithoutFailures(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 10; i++ {
		require.True(t, b.Allow())
	}
	require.Equal(t, Closed, b.Snapshot().State)
}

func TestTripsOpenAtThreshold(t *testing.T) {
	b := New(testConfig())
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, Closed, b.Snapshot().State)
	b.RecordFailure() // 3rd consecutive failure == threshold
	snap := b.Snapshot()
	require.Equal(t, Open, snap.State)
	require.Equal(t, uint32(3), snap.ConsecutiveFailures)
	require.False(t, snap.OpenSince.IsZero())
}

func TestOpenRejectsBeforeBackoffElapses(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.False(t, b.Allow())
}

func TestOpenTransitionsToHalfOpenAfterBackoff(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < int(cfg.FailureThreshold); i++ {
		b.RecordFailure()
	}
	time.Sleep(cfg.BaseBackoff + 5*time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.Snapshot().State)
}

func TestHalfOpenLimitsConcurrentTrials(t *testing.T) {
	cfg := testConfig()
	cfg.HalfOpenCalls = 1
	b := New(cfg)
	for i := 0; i < int(cfg.FailureThreshold); i++ {
		b.RecordFailure()
	}
	time.Sleep(cfg.BaseBackoff + 5*time.Millisecond)
	require.True(t, b.Allow())  // first trial claims the only slot
	require.False(t, b.Allow()) // second trial rejected
}

func TestHalfOpenSuccessClosesAndResetsOpenCount(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < int(cfg.FailureThreshold); i++ {
		b.RecordFailure()
	}
	time.Sleep(cfg.BaseBackoff + 5*time.Millisecond)
	require.True(t, b.Allow())
	b.RecordSuccess()

	snap := b.Snapshot()
	require.Equal(t, Closed, snap.State)
	require.Equal(t, uint32(0), snap.ConsecutiveFailures)

	// Backoff should restart from BaseBackoff (openCount reset), not grow.
	for i := 0; i < int(cfg.FailureThreshold); i++ {
		b.RecordFailure()
	}
	require.False(t, b.Allow())
	time.Sleep(cfg.BaseBackoff + 5*time.Millisecond)
	require.True(t, b.Allow())
}

func TestHalfOpenFailureReopensAndGrowsBackoff(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	for i := 0; i < int(cfg.FailureThreshold); i++ {
		b.RecordFailure()
	}
	time.Sleep(cfg.BaseBackoff + 5*time.Millisecond)
	require.True(t, b.Allow())
	b.RecordFailure() // trial failed -> open_count++, back to OPEN

	require.Equal(t, Open, b.Snapshot().State)
	// First backoff window (BaseBackoff) should no longer be sufficient.
	time.Sleep(cfg.BaseBackoff + 5*time.Millisecond)
	require.False(t, b.Allow())
	// But the doubled window should be.
	time.Sleep(cfg.BaseBackoff)
	require.True(t, b.Allow())
}

func TestBackoffCapsAtMax(t *testing.T) {
	cfg := testConfig()
	b := New(cfg)
	d := b.backoffFor(10)
	assert.Equal(t, cfg.MaxBackoff, d)
}
