package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/ranking"
	"lending-points-lab/internal/storage"
)

// RankResult is the answer to a rank query. Rank is exact when the user is
// inside the TopK head, otherwise it is estimated from the histogram:
// one past every user counted in strictly higher buckets.
type RankResult struct {
	UserID string  `json:"userId"`
	Scope  string  `json:"scope"`
	Points float64 `json:"points"`
	Rank   int64   `json:"rank"`
	Exact  bool    `json:"exact"`
}

// TopK returns the exact leaderboard head for a scope. A scope nobody has
// scored in yet yields an empty list.
func (f *Facade) TopK(ctx context.Context, scope domain.Scope) ([]domain.TopKEntry, error) {
	topk, err := f.store.GetTopK(ctx, scope)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get topk: %w", err)
	}
	return topk.Entries, nil
}

// Rank answers "where does this user stand" within a scope.
func (f *Facade) Rank(ctx context.Context, scope domain.Scope, userID string) (*RankResult, error) {
	idx, err := f.store.GetUserIndex(ctx, scope, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user index: %w", err)
	}

	result := &RankResult{UserID: userID, Scope: string(scope), Points: idx.Points}

	if topk, err := f.store.GetTopK(ctx, scope); err == nil {
		for _, entry := range topk.Entries {
			if entry.UserID == userID {
				result.Rank = int64(entry.Rank)
				result.Exact = true
				return result, nil
			}
		}
	}

	if idx.BucketIndex < 0 {
		// Zero score: behind every counted participant.
		totals, err := f.store.GetTotals(ctx, scope)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get totals: %w", err)
		}
		if totals != nil {
			result.Rank = totals.Participants + 1
		} else {
			result.Rank = 1
		}
		return result, nil
	}

	var above int64
	for i := idx.BucketIndex + 1; i < ranking.MaxBuckets; i++ {
		b, err := f.store.GetBucket(ctx, scope, i)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get bucket: %w", err)
		}
		above += int64(b.Count)
	}
	result.Rank = above + 1
	return result, nil
}

// Buckets returns the non-empty histogram buckets of a scope in ascending
// index order.
func (f *Facade) Buckets(ctx context.Context, scope domain.Scope) ([]domain.ScoreBucket, error) {
	var buckets []domain.ScoreBucket
	for i := 0; i < ranking.MaxBuckets; i++ {
		b, err := f.store.GetBucket(ctx, scope, i)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get bucket: %w", err)
		}
		if b.Count > 0 {
			buckets = append(buckets, *b)
		}
	}
	return buckets, nil
}

// Participants returns the count of users with strictly positive score in
// a scope.
func (f *Facade) Participants(ctx context.Context, scope domain.Scope) (int64, error) {
	totals, err := f.store.GetTotals(ctx, scope)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get totals: %w", err)
	}
	return totals.Participants, nil
}
