package ratelimit

import (
	"testing"
	"time"
)

func TestWindowCountWithin(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var w slidingWindow

	// 90, 45, 30, 5 and 1 minutes ago, in arrival order.
	offsets := []time.Duration{
		-90 * time.Minute,
		-45 * time.Minute,
		-30 * time.Minute,
		-5 * time.Minute,
		-1 * time.Minute,
	}
	for _, off := range offsets {
		w.record(base.Add(off))
	}

	tests := []struct {
		name   string
		window time.Duration
		want   int
	}{
		{"trailing minute", time.Minute, 1},
		{"trailing ten minutes", 10 * time.Minute, 2},
		{"trailing hour", time.Hour, 4},
		{"trailing two hours", 2 * time.Hour, 5},
		{"nothing in trailing second", time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.countWithin(tt.window, base); got != tt.want {
				t.Errorf("countWithin(%v) = %d, want %d", tt.window, got, tt.want)
			}
		})
	}
}

func TestWindowCountBoundaryInclusive(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var w slidingWindow
	w.record(base.Add(-time.Hour)) // exactly on the cutoff

	if got := w.countWithin(time.Hour, base); got != 1 {
		t.Errorf("event exactly on the cutoff should count, got %d", got)
	}
}

func TestWindowPruneRetention(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var w slidingWindow

	w.record(base.Add(-3 * time.Hour))
	w.record(base.Add(-150 * time.Minute))
	if w.size() != 2 {
		t.Fatalf("size = %d before horizon passes, want 2", w.size())
	}

	// The next record prunes everything older than the retention horizon.
	w.record(base)
	if w.size() != 1 {
		t.Errorf("size = %d after prune, want 1", w.size())
	}
	if got := w.countWithin(2*time.Hour, base); got != 1 {
		t.Errorf("countWithin(2h) = %d, want 1", got)
	}
}

func TestWindowCountEmptyAndPruneIdempotent(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var w slidingWindow

	if got := w.countWithin(time.Hour, base); got != 0 {
		t.Errorf("empty window count = %d, want 0", got)
	}
	w.prune(base)
	w.prune(base)
	if w.size() != 0 {
		t.Errorf("prune on empty window mutated it")
	}
}
