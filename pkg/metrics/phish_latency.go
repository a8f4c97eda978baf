package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent samples in a ring and reports
// percentiles over them.
type LatencyTracker struct {
	mu      sync.Mutex
	ring    []time.Duration
	next    int
	filled  bool
	total   int64
}

// NewLatencyTracker creates a tracker over the last window samples.
func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = 1000
	}
	return &LatencyTracker{ring: make([]time.Duration, window)}
}

// Record adds a sample, evicting the oldest once the window is full.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	lt.ring[lt.next] = d
	lt.next++
	if lt.next == len(lt.ring) {
		lt.next = 0
		lt.filled = true
	}
	lt.total++
	lt.mu.Unlock()
}

// Stats returns percentiles over the current window.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	n := lt.next
	if lt.filled {
		n = len(lt.ring)
	}
	samples := make([]time.Duration, n)
	copy(samples, lt.ring[:n])
	total := lt.total
	lt.mu.Unlock()

	if n == 0 {
		return LatencyStats{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}

	pct := func(p float64) time.Duration {
		return samples[int(float64(n-1)*p)]
	}

	return LatencyStats{
		Count:   total,
		Min:     samples[0],
		Max:     samples[n-1],
		Avg:     sum / time.Duration(n),
		P50:     pct(0.50),
		P90:     pct(0.90),
		P95:     pct(0.95),
		P99:     pct(0.99),
		Samples: n,
	}
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	P50     time.Duration
	P90     time.Duration
	P95     time.Duration
	P99     time.Duration
	Samples int
}

// ToMap renders the stats in milliseconds.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":       s.Count,
		"min_ms":      ms(s.Min),
		"max_ms":      ms(s.Max),
		"avg_ms":      ms(s.Avg),
		"p50_ms":      ms(s.P50),
		"p90_ms":      ms(s.P90),
		"p95_ms":      ms(s.P95),
		"p99_ms":      ms(s.P99),
		"sample_size": s.Samples,
	}
}
