package ratelimit

import "time"

// retentionHorizon bounds how much history a window keeps. Quota math
// only ever looks at the trailing hour; the extra hour of history is
// retained for inspection.
const retentionHorizon = 2 * time.Hour

// slidingWindow is a chronological log of admitted-request timestamps.
// Events arrive in non-decreasing time order.
type slidingWindow struct {
	events []time.Time
}

// record appends t and prunes anything that fell off the horizon.
func (w *slidingWindow) record(t time.Time) {
	w.events = append(w.events, t)
	w.prune(t)
}

// prune drops events older than the retention horizon from the front.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-retentionHorizon)
	drop := 0
	for drop < len(w.events) && w.events[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.events = w.events[drop:]
	}
}

// countWithin counts events inside the trailing window, scanning from the
// newest backward and stopping at the first event outside it.
func (w *slidingWindow) countWithin(window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	n := 0
	for i := len(w.events) - 1; i >= 0; i-- {
		if w.events[i].Before(cutoff) {
			break
		}
		n++
	}
	return n
}

func (w *slidingWindow) size() int { return len(w.events) }
