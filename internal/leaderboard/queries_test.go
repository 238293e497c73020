package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/storage"
)

func TestTopK_EmptyScope(t *testing.T) {
	f, _ := newTestFacade()
	entries, err := f.TopK(context.Background(), domain.GlobalScope)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if entries != nil {
		t.Errorf("expected empty head, got %+v", entries)
	}
}

func TestRank_ExactInsideHead(t *testing.T) {
	ctx := context.Background()
	f, store := newTestFacade()
	activateEpoch(t, store, 1)

	if err := f.UpdateUser(ctx, "0xaaa", 1, 30, 30); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.UpdateUser(ctx, "0xbbb", 1, 20, 20); err != nil {
		t.Fatalf("update: %v", err)
	}

	res, err := f.Rank(ctx, domain.GlobalScope, "0xbbb")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if !res.Exact || res.Rank != 2 {
		t.Errorf("expected exact rank 2, got exact=%v rank=%d", res.Exact, res.Rank)
	}
	if res.Points != 20 {
		t.Errorf("expected 20 points, got %f", res.Points)
	}
}

func TestRank_EstimatedOutsideHead(t *testing.T) {
	ctx := context.Background()
	f, store := newTestFacade()
	activateEpoch(t, store, 1)

	// Fill the head with high scorers, then add one low scorer who falls
	// out of the exact head but stays in the histogram.
	for i := 0; i < 100; i++ {
		userID := fmt.Sprintf("0xwhale%03d", i)
		if err := f.UpdateUser(ctx, userID, 1, 1000+float64(i), 1000+float64(i)); err != nil {
			t.Fatalf("update %s: %v", userID, err)
		}
	}
	if err := f.UpdateUser(ctx, "0xminnow", 1, 0.05, 0.05); err != nil {
		t.Fatalf("update minnow: %v", err)
	}

	res, err := f.Rank(ctx, domain.GlobalScope, "0xminnow")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if res.Exact {
		t.Error("expected estimated rank outside the head")
	}
	// All 100 whales sit in strictly higher buckets.
	if res.Rank != 101 {
		t.Errorf("expected estimated rank 101, got %d", res.Rank)
	}
}

func TestRank_ZeroScoreBehindEveryone(t *testing.T) {
	ctx := context.Background()
	f, store := newTestFacade()
	activateEpoch(t, store, 1)

	if err := f.UpdateUser(ctx, "0xaaa", 1, 10, 10); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.UpdateUser(ctx, "0xzero", 1, 5, 5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.UpdateUser(ctx, "0xzero", 1, 0, 0); err != nil {
		t.Fatalf("update to zero: %v", err)
	}

	res, err := f.Rank(ctx, domain.GlobalScope, "0xzero")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if res.Exact || res.Rank != 2 {
		t.Errorf("expected estimated rank 2 behind the single participant, got exact=%v rank=%d", res.Exact, res.Rank)
	}
}

func TestRank_UnknownUser(t *testing.T) {
	f, _ := newTestFacade()
	if _, err := f.Rank(context.Background(), domain.GlobalScope, "0xmissing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBuckets_NonEmptyAscending(t *testing.T) {
	ctx := context.Background()
	f, store := newTestFacade()
	activateEpoch(t, store, 1)

	// Scores in buckets 1, 3 and 4; nothing in 0 or 2.
	if err := f.UpdateUser(ctx, "0xaaa", 1, 0.3, 0.3); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.UpdateUser(ctx, "0xbbb", 1, 1.5, 1.5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.UpdateUser(ctx, "0xccc", 1, 3, 3); err != nil {
		t.Fatalf("update: %v", err)
	}

	buckets, err := f.Buckets(ctx, domain.GlobalScope)
	if err != nil {
		t.Fatalf("buckets: %v", err)
	}
	wantIndexes := []int{1, 3, 4}
	if len(buckets) != len(wantIndexes) {
		t.Fatalf("expected %d buckets, got %d", len(wantIndexes), len(buckets))
	}
	for i, b := range buckets {
		if b.Index != wantIndexes[i] {
			t.Errorf("position %d: expected index %d, got %d", i, wantIndexes[i], b.Index)
		}
		if b.Count != 1 {
			t.Errorf("index %d: expected count 1, got %d", b.Index, b.Count)
		}
		if b.Lower >= b.Upper {
			t.Errorf("index %d: degenerate bounds [%v, %v)", b.Index, b.Lower, b.Upper)
		}
	}
}

func TestParticipants_EmptyScope(t *testing.T) {
	f, _ := newTestFacade()
	count, err := f.Participants(context.Background(), domain.EpochScope(9))
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}
