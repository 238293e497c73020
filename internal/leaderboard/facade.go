// Package leaderboard is the single entry point invoked after every points
// mutation. It resolves blacklist status and the active epoch, then
// dispatches ranking updates to the per-epoch, all-time and global scopes.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/observability"
	"lending-points-lab/internal/ranking"
	"lending-points-lab/internal/storage"
)

// Facade routes points mutations into the ranking structures.
type Facade struct {
	store   storage.Store
	ranking *ranking.Ranking
	metrics *observability.Metrics
	logger  *log.Logger
}

// Options configures a Facade. Metrics and Logger are optional.
type Options struct {
	Store   storage.Store
	Metrics *observability.Metrics
	Logger  *log.Logger
}

// New creates a Facade.
func New(opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Facade{
		store:   opts.Store,
		ranking: ranking.New(opts.Store),
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// UpdateUser records a user's new epoch score and lifetime score.
// Blacklisted users are skipped entirely. The per-epoch structures are
// mirrored into the global scope when the mutated epoch is the active one.
func (f *Facade) UpdateUser(ctx context.Context, userID string, epochNumber uint64, epochPoints, lifetimePoints float64) error {
	state, err := f.store.GetUserState(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get user state: %w", err)
	}
	if state != nil && state.Blacklisted {
		return nil
	}

	if err := f.ranking.Upsert(ctx, domain.EpochScope(epochNumber), userID, epochPoints); err != nil {
		return fmt.Errorf("upsert epoch scope: %w", err)
	}
	if err := f.ranking.Upsert(ctx, domain.AllTimeScope, userID, lifetimePoints); err != nil {
		return fmt.Errorf("upsert all-time scope: %w", err)
	}

	if f.isActiveEpoch(ctx, epochNumber) {
		if err := f.ranking.Upsert(ctx, domain.GlobalScope, userID, epochPoints); err != nil {
			return fmt.Errorf("upsert global scope: %w", err)
		}
	}

	if f.metrics != nil {
		f.metrics.RankingUpserts.Inc()
	}
	return nil
}

// RemoveUser tears a user out of the active-epoch, all-time and global
// scopes, deleting their index rows. Used on blacklisting.
func (f *Facade) RemoveUser(ctx context.Context, userID string) error {
	scopes := []domain.Scope{domain.AllTimeScope, domain.GlobalScope}
	if epoch, err := f.store.ActiveEpoch(ctx); err == nil {
		scopes = append(scopes, domain.EpochScope(epoch.Number))
	}
	for _, scope := range scopes {
		if err := f.ranking.Remove(ctx, scope, userID); err != nil {
			return fmt.Errorf("remove from scope %s: %w", scope, err)
		}
	}
	if f.metrics != nil {
		f.metrics.RankingRemoves.Inc()
	}
	return nil
}

func (f *Facade) isActiveEpoch(ctx context.Context, epochNumber uint64) bool {
	epoch, err := f.store.ActiveEpoch(ctx)
	if err != nil {
		return false
	}
	return epoch.Number == epochNumber
}
