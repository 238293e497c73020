package ranking

import (
	"math"
	"testing"
)

func TestBucketIndexFor_FixedPoints(t *testing.T) {
	cases := []struct {
		points float64
		want   int
	}{
		{0.05, 0},
		{0.3, 1},
		{0.7, 2},
		{1.5, 3},
		{3, 4},
		{1, 3},
		{2, 4},
		{1024, 13},
	}
	for _, c := range cases {
		if got := BucketIndexFor(c.points); got != c.want {
			t.Errorf("BucketIndexFor(%v): expected %d, got %d", c.points, c.want, got)
		}
	}
}

func TestBucketIndexFor_Monotone(t *testing.T) {
	prev := BucketIndexFor(0.001)
	for p := 0.01; p < 1e30; p *= 1.7 {
		idx := BucketIndexFor(p)
		if idx < prev {
			t.Fatalf("index decreased at points=%v: %d < %d", p, idx, prev)
		}
		prev = idx
	}
}

func TestBucketIndexFor_Cap(t *testing.T) {
	if got := BucketIndexFor(math.MaxFloat64); got != MaxBuckets-1 {
		t.Errorf("expected cap at %d, got %d", MaxBuckets-1, got)
	}
}

func TestBucketBounds_ContainTheirIndex(t *testing.T) {
	for _, p := range []float64{0.05, 0.3, 0.7, 1.5, 3, 100, 1e6} {
		idx := BucketIndexFor(p)
		lower, upper := BucketBounds(idx)
		if p < lower || p >= upper {
			t.Errorf("points %v maps to bucket %d but bounds are [%v, %v)", p, idx, lower, upper)
		}
	}
}

func TestBucketBounds_LastUnboundedAbove(t *testing.T) {
	_, upper := BucketBounds(MaxBuckets - 1)
	if !math.IsInf(upper, 1) {
		t.Errorf("expected +Inf upper bound for last bucket, got %v", upper)
	}
}

func TestSaturatingCounters(t *testing.T) {
	if got := saturatingInc(MaxBucketCount); got != MaxBucketCount {
		t.Errorf("expected saturation at %d, got %d", int32(MaxBucketCount), got)
	}
	if got := saturatingInc(5); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
	if got := saturatingDec(0); got != 0 {
		t.Errorf("expected clamp at 0, got %d", got)
	}
}
