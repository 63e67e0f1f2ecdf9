package runtime

import (
	"slices"
	"time"
)

// latencyWindow keeps the most recent call durations in a fixed ring.
type latencyWindow struct {
	ring []time.Duration
	head int
	full bool
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{ring: make([]time.Duration, 0, size)}
}

func (w *latencyWindow) Add(d time.Duration) {
	if !w.full {
		w.ring = append(w.ring, d)
		w.full = len(w.ring) == cap(w.ring)
		return
	}
	w.ring[w.head] = d
	w.head = (w.head + 1) % len(w.ring)
}

func (w *latencyWindow) last() time.Duration {
	switch {
	case len(w.ring) == 0:
		return 0
	case !w.full:
		return w.ring[len(w.ring)-1]
	default:
		return w.ring[(w.head+len(w.ring)-1)%len(w.ring)]
	}
}

func (w *latencyWindow) Snapshot() LatencyMetrics {
	m := LatencyMetrics{LastNs: int64(w.last()), SampleSize: len(w.ring)}
	if len(w.ring) == 0 {
		return m
	}
	sorted := make([]int64, len(w.ring))
	var sum int64
	for i, d := range w.ring {
		sorted[i] = int64(d)
		sum += int64(d)
	}
	slices.Sort(sorted)
	m.AverageNs = sum / int64(len(sorted))
	m.P50Ns = percentile(sorted, 0.50)
	m.P95Ns = percentile(sorted, 0.95)
	m.P99Ns = percentile(sorted, 0.99)
	return m
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, q float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	q = min(max(q, 0), 1)
	rank := q * float64(n-1)
	lo := int(rank)
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + int64(float64(sorted[lo+1]-sorted[lo])*(rank-float64(lo)))
}

// throughputWindow counts calls within the trailing horizon.
type throughputWindow struct {
	horizon time.Duration
	calls   []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon}
}

func (w *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	w.calls = append(w.calls, now)
	cutoff := now.Add(-w.horizon)
	if i := slices.IndexFunc(w.calls, func(t time.Time) bool { return !t.Before(cutoff) }); i > 0 {
		w.calls = slices.Delete(w.calls, 0, i)
	}

	span := now.Sub(w.calls[0])
	if span <= 0 {
		span = time.Second
	}
	return throughputSnapshot{
		Count:         len(w.calls),
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(len(w.calls)) / span.Seconds(),
	}
}
