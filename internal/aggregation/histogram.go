package aggregation

// latencyBoundsMs are the fixed upper bounds of the latency histogram, in
// milliseconds. Fixed bounds keep histograms mergeable across buckets.
var latencyBoundsMs = []int64{
	5, 10, 25, 50, 100, 250, 500,
	1000, 2500, 5000, 10000, 30000, 60000,
}

// Histogram is a fixed-bound latency histogram supporting approximate
// quantiles without retaining raw samples. Not safe for concurrent use;
// callers hold the owning bucket's lock.
type Histogram struct {
	counts []int64 // one per bound, plus overflow
	total  int64
	maxMs  int64
}

// NewHistogram creates an empty latency histogram.
func NewHistogram() *Histogram {
	return &Histogram{counts: make([]int64, len(latencyBoundsMs)+1)}
}

// RestoreHistogram rebuilds a histogram from persisted counters. Counts of
// an unexpected length are discarded and the histogram starts empty.
func RestoreHistogram(counts []int64, maxMs int64) *Histogram {
	h := NewHistogram()
	if len(counts) != len(h.counts) {
		return h
	}
	copy(h.counts, counts)
	for _, c := range counts {
		h.total += c
	}
	h.maxMs = maxMs
	return h
}

// Counts returns a copy of the bucket counters, including overflow.
func (h *Histogram) Counts() []int64 {
	return append([]int64(nil), h.counts...)
}

// Max returns the largest observed sample in milliseconds.
func (h *Histogram) Max() int64 { return h.maxMs }

// Observe records one latency sample.
func (h *Histogram) Observe(ms int64) {
	idx := len(latencyBoundsMs)
	for i, bound := range latencyBoundsMs {
		if ms <= bound {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.total++
	if ms > h.maxMs {
		h.maxMs = ms
	}
}

// Merge adds another histogram's counts into this one.
func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i, c := range other.counts {
		h.counts[i] += c
	}
	h.total += other.total
	if other.maxMs > h.maxMs {
		h.maxMs = other.maxMs
	}
}

// Count returns the number of recorded samples.
func (h *Histogram) Count() int64 { return h.total }

// Quantile estimates the latency at quantile q in [0,1] by linear
// interpolation within the containing bucket. Returns 0 for an empty
// histogram.
func (h *Histogram) Quantile(q float64) float64 {
	if h.total == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	rank := q * float64(h.total)
	var cumulative int64
	for i, c := range h.counts {
		if c == 0 {
			continue
		}
		if float64(cumulative+c) < rank {
			cumulative += c
			continue
		}

		var lower, upper float64
		if i == 0 {
			lower, upper = 0, float64(latencyBoundsMs[0])
		} else if i == len(latencyBoundsMs) {
			lower = float64(latencyBoundsMs[len(latencyBoundsMs)-1])
			upper = float64(h.maxMs)
			if upper < lower {
				upper = lower
			}
		} else {
			lower, upper = float64(latencyBoundsMs[i-1]), float64(latencyBoundsMs[i])
		}

		within := (rank - float64(cumulative)) / float64(c)
		return lower + within*(upper-lower)
	}
	return float64(h.maxMs)
}
