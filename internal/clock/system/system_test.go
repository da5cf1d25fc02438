package system

import (
	"testing"
	"time"
)

// TestClockNow verifies the clock returns a recent UTC timestamp.
func TestClockNow(t *testing.T) {
	t.Parallel()

	c := New()
	now := c.Now()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", now.Location())
	}
	if time.Since(now) > time.Minute {
		t.Fatalf("clock too far in the past: %v", now)
	}
}
