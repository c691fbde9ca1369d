package retry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFiresCallbackAfterDelay(t *testing.T) {
	cfg := Config{BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFactor: 0, MaxRetries: 3}

	var mu sync.Mutex
	var fired []string
	done := make(chan struct{})

	m := New(cfg, func(workOrderID string, attempt int) {
		mu.Lock()
		fired = append(fired, workOrderID)
		mu.Unlock()
		close(done)
	})

	m.Schedule("wo-1", 1, errors.New("build failed"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"wo-1"}, fired)
}

func TestCancelPreventsFire(t *testing.T) {
	cfg := Config{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFactor: 0, MaxRetries: 3}
	fired := false
	m := New(cfg, func(workOrderID string, attempt int) { fired = true })

	m.Schedule("wo-1", 1, nil)
	m.Cancel("wo-1")
	m.Cancel("wo-1") // safe to call when absent

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired)
}

func TestScheduleReplacesPendingTimer(t *testing.T) {
	cfg := Config{BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFactor: 0, MaxRetries: 3}

	var mu sync.Mutex
	var attempts []int
	done := make(chan struct{})

	m := New(cfg, func(workOrderID string, attempt int) {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
		close(done)
	})

	m.Schedule("wo-1", 1, nil)
	m.Schedule("wo-1", 2, nil) // replaces the attempt-1 timer

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 1)
	assert.Equal(t, 2, attempts[0])
}

func TestGetStatsReportsPendingAndAttempts(t *testing.T) {
	cfg := Config{BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2, JitterFactor: 0, MaxRetries: 3}
	m := New(cfg, func(string, int) {})

	m.Schedule("wo-1", 1, nil)
	m.Schedule("wo-2", 2, nil)

	stats := m.GetStats()
	assert.Equal(t, 2, stats.PendingCount)
	assert.Equal(t, 1, stats.Attempts["wo-1"])
	assert.Equal(t, 2, stats.Attempts["wo-2"])

	m.Cancel("wo-1")
	stats = m.GetStats()
	assert.Equal(t, 1, stats.PendingCount)
}

func TestComputeDelayRespectsBackoffAndCap(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, JitterFactor: 0, MaxRetries: 5}
	m := New(cfg, nil)

	assert.Equal(t, time.Second, m.computeDelay(1))
	assert.Equal(t, 2*time.Second, m.computeDelay(2))
	assert.Equal(t, 4*time.Second, m.computeDelay(3))
	assert.Equal(t, 10*time.Second, m.computeDelay(10)) // capped at MaxDelay
}

func TestComputeDelayJitterStaysWithinBand(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, JitterFactor: 0.1, MaxRetries: 5}
	m := New(cfg, nil)

	base := time.Second // multiplier^(1-1) = 1
	lower := time.Duration(float64(base) * 0.9)
	upper := time.Duration(float64(base) * 1.1)
	for i := 0; i < 50; i++ {
		d := m.computeDelay(1)
		assert.GreaterOrEqual(t, d, lower)
		assert.LessOrEqual(t, d, upper)
	}
}
