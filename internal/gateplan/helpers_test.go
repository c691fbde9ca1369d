package gateplan

import (
	"testing"
	"time"
)

// waitForCondition polls cond until it reports true or a short deadline
// passes, used where a test needs to observe an async goroutine's effect
// (cache invalidation) without a dedicated signal channel.
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
