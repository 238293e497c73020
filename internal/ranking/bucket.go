// Package ranking maintains the approximate leaderboard: an exact sorted
// top-K head per scope plus a deterministic bucketed histogram of every
// other score, updated in O(1) amortized per points mutation.
package ranking

import "math"

// Histogram bounds. Bucket counters saturate at MaxBucketCount and the
// index space is capped at MaxBuckets; downstream consumers depend on the
// saturation behavior under extreme load, so neither is widened.
const (
	MaxBuckets     = 120
	MaxBucketCount = math.MaxInt32
)

// BucketIndexFor maps a strictly positive score to its histogram bucket.
// Three fixed head bands [0,0.1) [0.1,0.5) [0.5,1) map to indices 0..2,
// then an exponential tail doubles from [1,2) upward. The mapping is a
// pure monotone function of the score.
func BucketIndexFor(points float64) int {
	switch {
	case points < 0.1:
		return 0
	case points < 0.5:
		return 1
	case points < 1:
		return 2
	}
	idx := 3 + int(math.Floor(math.Log2(points)))
	if idx >= MaxBuckets {
		idx = MaxBuckets - 1
	}
	return idx
}

// BucketBounds returns the [lower, upper) score range of a bucket index.
// The last bucket is unbounded above.
func BucketBounds(index int) (lower, upper float64) {
	switch index {
	case 0:
		return 0, 0.1
	case 1:
		return 0.1, 0.5
	case 2:
		return 0.5, 1
	}
	lower = math.Pow(2, float64(index-3))
	if index >= MaxBuckets-1 {
		return lower, math.Inf(1)
	}
	return lower, lower * 2
}

// saturatingInc bumps a bucket counter without overflowing the cap.
func saturatingInc(count int32) int32 {
	if count >= MaxBucketCount {
		return MaxBucketCount
	}
	return count + 1
}

// saturatingDec lowers a bucket counter without going negative.
func saturatingDec(count int32) int32 {
	if count <= 0 {
		return 0
	}
	return count - 1
}
