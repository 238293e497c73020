package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/storage"
)

// Ranking applies score mutations to one scope's top-K, histogram and
// totals rows through the entity store.
type Ranking struct {
	store storage.Store
}

// New creates a Ranking over the given store.
func New(store storage.Store) *Ranking {
	return &Ranking{store: store}
}

// Upsert records a user's new score in a scope, moving them between
// histogram buckets and in or out of the top-K as needed. Negative and
// non-finite scores are normalized to zero.
func (r *Ranking) Upsert(ctx context.Context, scope domain.Scope, userID string, points float64) error {
	if userID == "" {
		return storage.ErrInvalidInput
	}
	if math.IsNaN(points) || math.IsInf(points, 0) || points < 0 {
		points = 0
	}

	old, err := r.store.GetUserIndex(ctx, scope, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get user index: %w", err)
	}
	oldBucket := -1
	if old != nil {
		oldBucket = old.BucketIndex
	}

	if points == 0 {
		if oldBucket >= 0 {
			if err := r.adjustBucket(ctx, scope, oldBucket, -1); err != nil {
				return err
			}
			if err := r.adjustTotals(ctx, scope, -1); err != nil {
				return err
			}
		}
		if err := r.removeFromTopK(ctx, scope, userID); err != nil {
			return err
		}
		idx := &domain.UserIndex{Scope: scope, UserID: userID, Points: 0, BucketIndex: -1}
		return r.store.PutUserIndex(ctx, idx)
	}

	newBucket := BucketIndexFor(points)
	if newBucket != oldBucket {
		if oldBucket >= 0 {
			if err := r.adjustBucket(ctx, scope, oldBucket, -1); err != nil {
				return err
			}
		}
		if err := r.adjustBucket(ctx, scope, newBucket, +1); err != nil {
			return err
		}
		if oldBucket < 0 {
			if err := r.adjustTotals(ctx, scope, +1); err != nil {
				return err
			}
		}
	}

	if err := r.updateTopK(ctx, scope, userID, points); err != nil {
		return err
	}

	idx := &domain.UserIndex{Scope: scope, UserID: userID, Points: points, BucketIndex: newBucket}
	return r.store.PutUserIndex(ctx, idx)
}

// Remove tears a user out of a scope entirely: bucket, top-K, totals and
// index row. Used when a user is blacklisted.
func (r *Ranking) Remove(ctx context.Context, scope domain.Scope, userID string) error {
	if userID == "" {
		return storage.ErrInvalidInput
	}

	old, err := r.store.GetUserIndex(ctx, scope, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get user index: %w", err)
	}

	if old.BucketIndex >= 0 {
		if err := r.adjustBucket(ctx, scope, old.BucketIndex, -1); err != nil {
			return err
		}
		if err := r.adjustTotals(ctx, scope, -1); err != nil {
			return err
		}
	}
	if err := r.removeFromTopK(ctx, scope, userID); err != nil {
		return err
	}
	return r.store.DeleteUserIndex(ctx, scope, userID)
}

// adjustBucket applies a +1/-1 delta to a bucket counter, creating the
// bucket row with its deterministic bounds on first touch. Counters
// saturate high and clamp at zero.
func (r *Ranking) adjustBucket(ctx context.Context, scope domain.Scope, index int, delta int) error {
	bucket, err := r.store.GetBucket(ctx, scope, index)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get bucket: %w", err)
		}
		lower, upper := BucketBounds(index)
		bucket = &domain.ScoreBucket{Scope: scope, Index: index, Lower: lower, Upper: upper}
	}
	if delta > 0 {
		bucket.Count = saturatingInc(bucket.Count)
	} else {
		bucket.Count = saturatingDec(bucket.Count)
	}
	return r.store.PutBucket(ctx, bucket)
}

func (r *Ranking) adjustTotals(ctx context.Context, scope domain.Scope, delta int64) error {
	totals, err := r.store.GetTotals(ctx, scope)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get totals: %w", err)
		}
		totals = &domain.LeaderboardTotals{Scope: scope}
	}
	totals.Participants += delta
	if totals.Participants < 0 {
		totals.Participants = 0
	}
	return r.store.PutTotals(ctx, totals)
}

func (r *Ranking) updateTopK(ctx context.Context, scope domain.Scope, userID string, points float64) error {
	topk, err := r.store.GetTopK(ctx, scope)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get topk: %w", err)
		}
		topk = &domain.TopK{Scope: scope}
	}
	topk.Entries, _ = mergeTopK(topk.Entries, userID, points)
	return r.store.PutTopK(ctx, topk)
}

func (r *Ranking) removeFromTopK(ctx context.Context, scope domain.Scope, userID string) error {
	topk, err := r.store.GetTopK(ctx, scope)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get topk: %w", err)
	}
	entries, removed := dropFromTopK(topk.Entries, userID)
	if !removed {
		return nil
	}
	topk.Entries = entries
	return r.store.PutTopK(ctx, topk)
}
