package storage

import (
	"context"

	"lending-points-lab/internal/domain"
)

// Store is the entity store consumed by the points and ranking engines.
// Every method follows get/set/delete-by-key semantics with read-your-writes
// consistency: a read observes all prior writes within the same processing
// step. Get methods return ErrNotFound when no record exists.
type Store interface {
	// Epochs.
	GetEpoch(ctx context.Context, number uint64) (*domain.Epoch, error)
	// ActiveEpoch returns the single epoch with IsActive=true.
	ActiveEpoch(ctx context.Context) (*domain.Epoch, error)
	// LatestClosedEpoch returns the closed epoch with the greatest end time.
	LatestClosedEpoch(ctx context.Context) (*domain.Epoch, error)
	PutEpoch(ctx context.Context, e *domain.Epoch) error

	// Global config (single row).
	GetConfig(ctx context.Context) (*domain.Config, error)
	PutConfig(ctx context.Context, c *domain.Config) error

	// Reserves.
	GetReserve(ctx context.Context, id string) (*domain.Reserve, error)
	ListReserves(ctx context.Context) ([]*domain.Reserve, error)
	PutReserve(ctx context.Context, r *domain.Reserve) error

	// End-of-epoch index snapshots, keyed by (epoch, reserve).
	GetIndexSnapshot(ctx context.Context, epoch uint64, reserveID string) (*domain.EpochIndexSnapshot, error)
	PutIndexSnapshot(ctx context.Context, s *domain.EpochIndexSnapshot) error

	// Scaled balances, keyed by (user, reserve).
	GetUserReserveBalance(ctx context.Context, userID, reserveID string) (*domain.UserReserveBalance, error)
	PutUserReserveBalance(ctx context.Context, b *domain.UserReserveBalance) error

	// Settlement baselines, keyed by (user, reserve).
	GetUserReservePoints(ctx context.Context, userID, reserveID string) (*domain.UserReservePoints, error)
	PutUserReservePoints(ctx context.Context, p *domain.UserReservePoints) error

	// Per-epoch stats, keyed by (user, epoch).
	GetUserEpochStats(ctx context.Context, userID string, epoch uint64) (*domain.UserEpochStats, error)
	PutUserEpochStats(ctx context.Context, s *domain.UserEpochStats) error

	// Denormalized per-user state.
	GetUserState(ctx context.Context, userID string) (*domain.UserLeaderboardState, error)
	PutUserState(ctx context.Context, s *domain.UserLeaderboardState) error

	// Ranking rows, keyed by (scope, user).
	GetUserIndex(ctx context.Context, scope domain.Scope, userID string) (*domain.UserIndex, error)
	PutUserIndex(ctx context.Context, idx *domain.UserIndex) error
	DeleteUserIndex(ctx context.Context, scope domain.Scope, userID string) error

	// Histogram buckets, keyed by (scope, bucket index).
	GetBucket(ctx context.Context, scope domain.Scope, index int) (*domain.ScoreBucket, error)
	PutBucket(ctx context.Context, b *domain.ScoreBucket) error

	// Exact leaderboard head, keyed by scope.
	GetTopK(ctx context.Context, scope domain.Scope) (*domain.TopK, error)
	PutTopK(ctx context.Context, t *domain.TopK) error

	// Positive-score participant counts, keyed by scope.
	GetTotals(ctx context.Context, scope domain.Scope) (*domain.LeaderboardTotals, error)
	PutTotals(ctx context.Context, t *domain.LeaderboardTotals) error

	// Audit mirror of admin/lifecycle events. Upserts by record ID.
	PutAudit(ctx context.Context, a *domain.AuditRecord) error
	ListAuditByUser(ctx context.Context, userID string) ([]*domain.AuditRecord, error)
}

// HistorySink receives append-only accrual history for downstream
// analytics. Writes are best effort: a sink failure must not abort event
// processing.
type HistorySink interface {
	AppendAccruals(ctx context.Context, records []*domain.AccrualRecord) error
	AppendAudit(ctx context.Context, a *domain.AuditRecord) error
}
