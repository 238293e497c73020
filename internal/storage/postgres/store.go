package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/storage"
)

// Store implements storage.Store using PostgreSQL. Every Put is an upsert
// keyed by the entity's primary key, so replays converge.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// GetEpoch retrieves an epoch by number. Returns ErrNotFound if not exists.
func (s *Store) GetEpoch(ctx context.Context, number uint64) (*domain.Epoch, error) {
	query := epochSelect + ` WHERE number = $1`
	e, err := scanEpoch(s.pool.QueryRow(ctx, query, int64(number)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get epoch: %w", err)
	}
	return e, nil
}

// ActiveEpoch retrieves the single active epoch.
func (s *Store) ActiveEpoch(ctx context.Context) (*domain.Epoch, error) {
	query := epochSelect + ` WHERE is_active ORDER BY number DESC LIMIT 1`
	e, err := scanEpoch(s.pool.QueryRow(ctx, query))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active epoch: %w", err)
	}
	return e, nil
}

// LatestClosedEpoch retrieves the closed epoch with the greatest end time.
func (s *Store) LatestClosedEpoch(ctx context.Context) (*domain.Epoch, error) {
	query := epochSelect + ` WHERE end_time > 0 ORDER BY end_time DESC, number DESC LIMIT 1`
	e, err := scanEpoch(s.pool.QueryRow(ctx, query))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest closed epoch: %w", err)
	}
	return e, nil
}

// PutEpoch upserts an epoch by number.
func (s *Store) PutEpoch(ctx context.Context, e *domain.Epoch) error {
	query := `
		INSERT INTO epochs (
			number, start_block, start_time, end_block, end_time, is_active,
			scheduled_start_time, scheduled_end_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (number) DO UPDATE SET
			start_block = EXCLUDED.start_block,
			start_time = EXCLUDED.start_time,
			end_block = EXCLUDED.end_block,
			end_time = EXCLUDED.end_time,
			is_active = EXCLUDED.is_active,
			scheduled_start_time = EXCLUDED.scheduled_start_time,
			scheduled_end_time = EXCLUDED.scheduled_end_time
	`
	_, err := s.pool.Exec(ctx, query,
		int64(e.Number), int64(e.StartBlock), e.StartTime, int64(e.EndBlock), e.EndTime,
		e.IsActive, e.ScheduledStartTime, e.ScheduledEndTime,
	)
	if err != nil {
		return fmt.Errorf("put epoch: %w", err)
	}
	return nil
}

// GetConfig retrieves the single config row.
func (s *Store) GetConfig(ctx context.Context) (*domain.Config, error) {
	query := `
		SELECT deposit_rate_bps, borrow_rate_bps, voting_power_rate_bps, lp_rate_bps,
			supply_daily_bonus, borrow_daily_bonus, repay_daily_bonus, withdraw_daily_bonus,
			min_daily_bonus_usd, cooldown_seconds,
			nft_first_bonus_bps, nft_decay_ratio_bps, vp_tiers, updated_at_block
		FROM config
		WHERE id = 1
	`
	var c domain.Config
	var minUSD string
	var tiersJSON []byte
	var updatedAt int64
	err := s.pool.QueryRow(ctx, query).Scan(
		&c.DepositRateBps, &c.BorrowRateBps, &c.VotingPowerRateBps, &c.LPRateBps,
		&c.SupplyDailyBonus, &c.BorrowDailyBonus, &c.RepayDailyBonus, &c.WithdrawDailyBonus,
		&minUSD, &c.CooldownSeconds,
		&c.NFTFirstBonusBps, &c.NFTDecayRatioBps, &tiersJSON, &updatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get config: %w", err)
	}
	c.MinDailyBonusUSD, err = decimal.NewFromString(minUSD)
	if err != nil {
		return nil, fmt.Errorf("parse min daily bonus: %w", err)
	}
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &c.VPTiers); err != nil {
			return nil, fmt.Errorf("parse vp tiers: %w", err)
		}
	}
	c.UpdatedAtBlock = uint64(updatedAt)
	return &c, nil
}

// PutConfig replaces the single config row.
func (s *Store) PutConfig(ctx context.Context, c *domain.Config) error {
	tiersJSON, err := json.Marshal(c.VPTiers)
	if err != nil {
		return fmt.Errorf("marshal vp tiers: %w", err)
	}
	query := `
		INSERT INTO config (
			id, deposit_rate_bps, borrow_rate_bps, voting_power_rate_bps, lp_rate_bps,
			supply_daily_bonus, borrow_daily_bonus, repay_daily_bonus, withdraw_daily_bonus,
			min_daily_bonus_usd, cooldown_seconds,
			nft_first_bonus_bps, nft_decay_ratio_bps, vp_tiers, updated_at_block
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			deposit_rate_bps = EXCLUDED.deposit_rate_bps,
			borrow_rate_bps = EXCLUDED.borrow_rate_bps,
			voting_power_rate_bps = EXCLUDED.voting_power_rate_bps,
			lp_rate_bps = EXCLUDED.lp_rate_bps,
			supply_daily_bonus = EXCLUDED.supply_daily_bonus,
			borrow_daily_bonus = EXCLUDED.borrow_daily_bonus,
			repay_daily_bonus = EXCLUDED.repay_daily_bonus,
			withdraw_daily_bonus = EXCLUDED.withdraw_daily_bonus,
			min_daily_bonus_usd = EXCLUDED.min_daily_bonus_usd,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			nft_first_bonus_bps = EXCLUDED.nft_first_bonus_bps,
			nft_decay_ratio_bps = EXCLUDED.nft_decay_ratio_bps,
			vp_tiers = EXCLUDED.vp_tiers,
			updated_at_block = EXCLUDED.updated_at_block
	`
	_, err = s.pool.Exec(ctx, query,
		c.DepositRateBps, c.BorrowRateBps, c.VotingPowerRateBps, c.LPRateBps,
		c.SupplyDailyBonus, c.BorrowDailyBonus, c.RepayDailyBonus, c.WithdrawDailyBonus,
		c.MinDailyBonusUSD.String(), c.CooldownSeconds,
		c.NFTFirstBonusBps, c.NFTDecayRatioBps, tiersJSON, int64(c.UpdatedAtBlock),
	)
	if err != nil {
		return fmt.Errorf("put config: %w", err)
	}
	return nil
}

// GetReserve retrieves a reserve by ID. Returns ErrNotFound if not exists.
func (s *Store) GetReserve(ctx context.Context, id string) (*domain.Reserve, error) {
	query := reserveSelect + ` WHERE id = $1`
	r, err := scanReserve(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get reserve: %w", err)
	}
	return r, nil
}

// ListReserves retrieves all reserves ordered by ID.
func (s *Store) ListReserves(ctx context.Context) ([]*domain.Reserve, error) {
	query := reserveSelect + ` ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reserves: %w", err)
	}
	defer rows.Close()

	var reserves []*domain.Reserve
	for rows.Next() {
		r, err := scanReserve(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reserve row: %w", err)
		}
		reserves = append(reserves, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reserve rows: %w", err)
	}
	return reserves, nil
}

// PutReserve upserts a reserve by ID.
func (s *Store) PutReserve(ctx context.Context, r *domain.Reserve) error {
	query := `
		INSERT INTO reserves (
			id, symbol, decimals, liquidity_index, variable_borrow_index,
			liquidity_rate, variable_borrow_rate, last_update_timestamp, price_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			liquidity_index = EXCLUDED.liquidity_index,
			variable_borrow_index = EXCLUDED.variable_borrow_index,
			liquidity_rate = EXCLUDED.liquidity_rate,
			variable_borrow_rate = EXCLUDED.variable_borrow_rate,
			last_update_timestamp = EXCLUDED.last_update_timestamp,
			price_usd = EXCLUDED.price_usd
	`
	_, err := s.pool.Exec(ctx, query,
		r.ID, r.Symbol, r.Decimals, r.LiquidityIndex, r.VariableBorrowIndex,
		r.LiquidityRate, r.VariableBorrowRate, r.LastUpdateTimestamp, r.PriceUSD.String(),
	)
	if err != nil {
		return fmt.Errorf("put reserve: %w", err)
	}
	return nil
}

// GetIndexSnapshot retrieves a frozen index snapshot by (epoch, reserve).
func (s *Store) GetIndexSnapshot(ctx context.Context, epoch uint64, reserveID string) (*domain.EpochIndexSnapshot, error) {
	query := `
		SELECT epoch_number, reserve_id, liquidity_index, variable_borrow_index, frozen_at
		FROM epoch_index_snapshots
		WHERE epoch_number = $1 AND reserve_id = $2
	`
	var snap domain.EpochIndexSnapshot
	var number int64
	err := s.pool.QueryRow(ctx, query, int64(epoch), reserveID).Scan(
		&number, &snap.ReserveID, &snap.LiquidityIndex, &snap.VariableBorrowIndex, &snap.FrozenAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get index snapshot: %w", err)
	}
	snap.EpochNumber = uint64(number)
	return &snap, nil
}

// PutIndexSnapshot upserts a frozen index snapshot.
func (s *Store) PutIndexSnapshot(ctx context.Context, snap *domain.EpochIndexSnapshot) error {
	query := `
		INSERT INTO epoch_index_snapshots (
			epoch_number, reserve_id, liquidity_index, variable_borrow_index, frozen_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (epoch_number, reserve_id) DO UPDATE SET
			liquidity_index = EXCLUDED.liquidity_index,
			variable_borrow_index = EXCLUDED.variable_borrow_index,
			frozen_at = EXCLUDED.frozen_at
	`
	_, err := s.pool.Exec(ctx, query,
		int64(snap.EpochNumber), snap.ReserveID, snap.LiquidityIndex, snap.VariableBorrowIndex, snap.FrozenAt,
	)
	if err != nil {
		return fmt.Errorf("put index snapshot: %w", err)
	}
	return nil
}

// GetUserReserveBalance retrieves scaled balances by (user, reserve).
func (s *Store) GetUserReserveBalance(ctx context.Context, userID, reserveID string) (*domain.UserReserveBalance, error) {
	query := `
		SELECT user_id, reserve_id, scaled_deposit, scaled_borrow, last_block, last_log_index
		FROM user_reserve_balances
		WHERE user_id = $1 AND reserve_id = $2
	`
	var b domain.UserReserveBalance
	var lastBlock, lastLogIndex int64
	err := s.pool.QueryRow(ctx, query, userID, reserveID).Scan(
		&b.UserID, &b.ReserveID, &b.ScaledDeposit, &b.ScaledBorrow, &lastBlock, &lastLogIndex,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user reserve balance: %w", err)
	}
	b.LastBlock = uint64(lastBlock)
	b.LastLogIndex = uint32(lastLogIndex)
	return &b, nil
}

// PutUserReserveBalance upserts scaled balances.
func (s *Store) PutUserReserveBalance(ctx context.Context, b *domain.UserReserveBalance) error {
	query := `
		INSERT INTO user_reserve_balances (user_id, reserve_id, scaled_deposit, scaled_borrow, last_block, last_log_index)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, reserve_id) DO UPDATE SET
			scaled_deposit = EXCLUDED.scaled_deposit,
			scaled_borrow = EXCLUDED.scaled_borrow,
			last_block = EXCLUDED.last_block,
			last_log_index = EXCLUDED.last_log_index
	`
	_, err := s.pool.Exec(ctx, query, b.UserID, b.ReserveID, b.ScaledDeposit, b.ScaledBorrow,
		int64(b.LastBlock), int64(b.LastLogIndex))
	if err != nil {
		return fmt.Errorf("put user reserve balance: %w", err)
	}
	return nil
}

// GetUserReservePoints retrieves a settlement baseline by (user, reserve).
func (s *Store) GetUserReservePoints(ctx context.Context, userID, reserveID string) (*domain.UserReservePoints, error) {
	query := `
		SELECT user_id, reserve_id, deposit_balance, borrow_balance, last_settled_at
		FROM user_reserve_points
		WHERE user_id = $1 AND reserve_id = $2
	`
	var p domain.UserReservePoints
	err := s.pool.QueryRow(ctx, query, userID, reserveID).Scan(
		&p.UserID, &p.ReserveID, &p.DepositBalance, &p.BorrowBalance, &p.LastSettledAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user reserve points: %w", err)
	}
	return &p, nil
}

// PutUserReservePoints upserts a settlement baseline.
func (s *Store) PutUserReservePoints(ctx context.Context, p *domain.UserReservePoints) error {
	query := `
		INSERT INTO user_reserve_points (user_id, reserve_id, deposit_balance, borrow_balance, last_settled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, reserve_id) DO UPDATE SET
			deposit_balance = EXCLUDED.deposit_balance,
			borrow_balance = EXCLUDED.borrow_balance,
			last_settled_at = EXCLUDED.last_settled_at
	`
	_, err := s.pool.Exec(ctx, query, p.UserID, p.ReserveID, p.DepositBalance, p.BorrowBalance, p.LastSettledAt)
	if err != nil {
		return fmt.Errorf("put user reserve points: %w", err)
	}
	return nil
}

// GetUserEpochStats retrieves per-epoch stats by (user, epoch).
func (s *Store) GetUserEpochStats(ctx context.Context, userID string, epoch uint64) (*domain.UserEpochStats, error) {
	query := `
		SELECT user_id, epoch_number,
			deposit_points, borrow_points, lp_points, voting_power_points, bonus_points, manual_points,
			deposit_points_mult, borrow_points_mult, lp_points_mult, voting_power_points_mult, bonus_points_mult,
			supply_mark_usd, supply_mark_day, supply_award_day,
			borrow_mark_usd, borrow_mark_day, borrow_award_day,
			repay_mark_usd, repay_mark_day, repay_award_day,
			withdraw_mark_usd, withdraw_mark_day, withdraw_award_day,
			last_multiplier_bps, total_points, total_points_mult
		FROM user_epoch_stats
		WHERE user_id = $1 AND epoch_number = $2
	`
	var st domain.UserEpochStats
	var number int64
	var supplyUSD, borrowUSD, repayUSD, withdrawUSD string
	err := s.pool.QueryRow(ctx, query, userID, int64(epoch)).Scan(
		&st.UserID, &number,
		&st.DepositPoints, &st.BorrowPoints, &st.LPPoints, &st.VotingPowerPoints,
		&st.BonusPoints, &st.ManualPoints,
		&st.DepositPointsWithMultiplier, &st.BorrowPointsWithMultiplier,
		&st.LPPointsWithMultiplier, &st.VotingPowerPointsWithMultiplier,
		&st.BonusPointsWithMultiplier,
		&supplyUSD, &st.SupplyMark.Day, &st.SupplyMark.LastAwardDay,
		&borrowUSD, &st.BorrowMark.Day, &st.BorrowMark.LastAwardDay,
		&repayUSD, &st.RepayMark.Day, &st.RepayMark.LastAwardDay,
		&withdrawUSD, &st.WithdrawMark.Day, &st.WithdrawMark.LastAwardDay,
		&st.LastMultiplierBps, &st.TotalPoints, &st.TotalPointsWithMultiplier,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user epoch stats: %w", err)
	}
	st.EpochNumber = uint64(number)
	for _, pair := range []struct {
		raw  string
		mark *domain.DailyMark
	}{
		{supplyUSD, &st.SupplyMark},
		{borrowUSD, &st.BorrowMark},
		{repayUSD, &st.RepayMark},
		{withdrawUSD, &st.WithdrawMark},
	} {
		pair.mark.USD, err = decimal.NewFromString(pair.raw)
		if err != nil {
			return nil, fmt.Errorf("parse daily mark usd: %w", err)
		}
	}
	return &st, nil
}

// PutUserEpochStats upserts per-epoch stats.
func (s *Store) PutUserEpochStats(ctx context.Context, st *domain.UserEpochStats) error {
	query := `
		INSERT INTO user_epoch_stats (
			user_id, epoch_number,
			deposit_points, borrow_points, lp_points, voting_power_points, bonus_points, manual_points,
			deposit_points_mult, borrow_points_mult, lp_points_mult, voting_power_points_mult, bonus_points_mult,
			supply_mark_usd, supply_mark_day, supply_award_day,
			borrow_mark_usd, borrow_mark_day, borrow_award_day,
			repay_mark_usd, repay_mark_day, repay_award_day,
			withdraw_mark_usd, withdraw_mark_day, withdraw_award_day,
			last_multiplier_bps, total_points, total_points_mult
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25,
			$26, $27, $28
		)
		ON CONFLICT (user_id, epoch_number) DO UPDATE SET
			deposit_points = EXCLUDED.deposit_points,
			borrow_points = EXCLUDED.borrow_points,
			lp_points = EXCLUDED.lp_points,
			voting_power_points = EXCLUDED.voting_power_points,
			bonus_points = EXCLUDED.bonus_points,
			manual_points = EXCLUDED.manual_points,
			deposit_points_mult = EXCLUDED.deposit_points_mult,
			borrow_points_mult = EXCLUDED.borrow_points_mult,
			lp_points_mult = EXCLUDED.lp_points_mult,
			voting_power_points_mult = EXCLUDED.voting_power_points_mult,
			bonus_points_mult = EXCLUDED.bonus_points_mult,
			supply_mark_usd = EXCLUDED.supply_mark_usd,
			supply_mark_day = EXCLUDED.supply_mark_day,
			supply_award_day = EXCLUDED.supply_award_day,
			borrow_mark_usd = EXCLUDED.borrow_mark_usd,
			borrow_mark_day = EXCLUDED.borrow_mark_day,
			borrow_award_day = EXCLUDED.borrow_award_day,
			repay_mark_usd = EXCLUDED.repay_mark_usd,
			repay_mark_day = EXCLUDED.repay_mark_day,
			repay_award_day = EXCLUDED.repay_award_day,
			withdraw_mark_usd = EXCLUDED.withdraw_mark_usd,
			withdraw_mark_day = EXCLUDED.withdraw_mark_day,
			withdraw_award_day = EXCLUDED.withdraw_award_day,
			last_multiplier_bps = EXCLUDED.last_multiplier_bps,
			total_points = EXCLUDED.total_points,
			total_points_mult = EXCLUDED.total_points_mult
	`
	_, err := s.pool.Exec(ctx, query,
		st.UserID, int64(st.EpochNumber),
		st.DepositPoints, st.BorrowPoints, st.LPPoints, st.VotingPowerPoints,
		st.BonusPoints, st.ManualPoints,
		st.DepositPointsWithMultiplier, st.BorrowPointsWithMultiplier,
		st.LPPointsWithMultiplier, st.VotingPowerPointsWithMultiplier,
		st.BonusPointsWithMultiplier,
		st.SupplyMark.USD.String(), st.SupplyMark.Day, st.SupplyMark.LastAwardDay,
		st.BorrowMark.USD.String(), st.BorrowMark.Day, st.BorrowMark.LastAwardDay,
		st.RepayMark.USD.String(), st.RepayMark.Day, st.RepayMark.LastAwardDay,
		st.WithdrawMark.USD.String(), st.WithdrawMark.Day, st.WithdrawMark.LastAwardDay,
		st.LastMultiplierBps, st.TotalPoints, st.TotalPointsWithMultiplier,
	)
	if err != nil {
		return fmt.Errorf("put user epoch stats: %w", err)
	}
	return nil
}

// GetUserState retrieves the denormalized per-user row.
func (s *Store) GetUserState(ctx context.Context, userID string) (*domain.UserLeaderboardState, error) {
	query := `
		SELECT user_id, nft_count, nft_multiplier_bps,
			voting_power, vp_tier_index, vp_multiplier_bps, combined_multiplier_bps,
			lifetime_points, epochs_participated, last_epoch_number, blacklisted
		FROM user_states
		WHERE user_id = $1
	`
	var st domain.UserLeaderboardState
	var lastEpoch int64
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&st.UserID, &st.NFTCount, &st.NFTMultiplierBps,
		&st.VotingPower, &st.VPTierIndex, &st.VPMultiplierBps, &st.CombinedMultiplierBps,
		&st.LifetimePoints, &st.EpochsParticipated, &lastEpoch, &st.Blacklisted,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user state: %w", err)
	}
	st.LastEpochNumber = uint64(lastEpoch)
	return &st, nil
}

// PutUserState upserts the denormalized per-user row.
func (s *Store) PutUserState(ctx context.Context, st *domain.UserLeaderboardState) error {
	query := `
		INSERT INTO user_states (
			user_id, nft_count, nft_multiplier_bps,
			voting_power, vp_tier_index, vp_multiplier_bps, combined_multiplier_bps,
			lifetime_points, epochs_participated, last_epoch_number, blacklisted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			nft_count = EXCLUDED.nft_count,
			nft_multiplier_bps = EXCLUDED.nft_multiplier_bps,
			voting_power = EXCLUDED.voting_power,
			vp_tier_index = EXCLUDED.vp_tier_index,
			vp_multiplier_bps = EXCLUDED.vp_multiplier_bps,
			combined_multiplier_bps = EXCLUDED.combined_multiplier_bps,
			lifetime_points = EXCLUDED.lifetime_points,
			epochs_participated = EXCLUDED.epochs_participated,
			last_epoch_number = EXCLUDED.last_epoch_number,
			blacklisted = EXCLUDED.blacklisted
	`
	_, err := s.pool.Exec(ctx, query,
		st.UserID, st.NFTCount, st.NFTMultiplierBps,
		st.VotingPower, st.VPTierIndex, st.VPMultiplierBps, st.CombinedMultiplierBps,
		st.LifetimePoints, st.EpochsParticipated, int64(st.LastEpochNumber), st.Blacklisted,
	)
	if err != nil {
		return fmt.Errorf("put user state: %w", err)
	}
	return nil
}

// GetUserIndex retrieves a ranking row by (scope, user).
func (s *Store) GetUserIndex(ctx context.Context, scope domain.Scope, userID string) (*domain.UserIndex, error) {
	query := `
		SELECT scope, user_id, points, bucket_index
		FROM user_indexes
		WHERE scope = $1 AND user_id = $2
	`
	var idx domain.UserIndex
	err := s.pool.QueryRow(ctx, query, string(scope), userID).Scan(
		&idx.Scope, &idx.UserID, &idx.Points, &idx.BucketIndex,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user index: %w", err)
	}
	return &idx, nil
}

// PutUserIndex upserts a ranking row.
func (s *Store) PutUserIndex(ctx context.Context, idx *domain.UserIndex) error {
	query := `
		INSERT INTO user_indexes (scope, user_id, points, bucket_index)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, user_id) DO UPDATE SET
			points = EXCLUDED.points,
			bucket_index = EXCLUDED.bucket_index
	`
	_, err := s.pool.Exec(ctx, query, string(idx.Scope), idx.UserID, idx.Points, idx.BucketIndex)
	if err != nil {
		return fmt.Errorf("put user index: %w", err)
	}
	return nil
}

// DeleteUserIndex deletes a ranking row. Deleting a missing row is not an
// error.
func (s *Store) DeleteUserIndex(ctx context.Context, scope domain.Scope, userID string) error {
	query := `DELETE FROM user_indexes WHERE scope = $1 AND user_id = $2`
	_, err := s.pool.Exec(ctx, query, string(scope), userID)
	if err != nil {
		return fmt.Errorf("delete user index: %w", err)
	}
	return nil
}

// GetBucket retrieves a histogram bucket by (scope, index).
func (s *Store) GetBucket(ctx context.Context, scope domain.Scope, index int) (*domain.ScoreBucket, error) {
	query := `
		SELECT scope, bucket_index, lower_bound, upper_bound, user_count
		FROM score_buckets
		WHERE scope = $1 AND bucket_index = $2
	`
	var b domain.ScoreBucket
	err := s.pool.QueryRow(ctx, query, string(scope), index).Scan(
		&b.Scope, &b.Index, &b.Lower, &b.Upper, &b.Count,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bucket: %w", err)
	}
	return &b, nil
}

// PutBucket upserts a histogram bucket.
func (s *Store) PutBucket(ctx context.Context, b *domain.ScoreBucket) error {
	query := `
		INSERT INTO score_buckets (scope, bucket_index, lower_bound, upper_bound, user_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, bucket_index) DO UPDATE SET
			lower_bound = EXCLUDED.lower_bound,
			upper_bound = EXCLUDED.upper_bound,
			user_count = EXCLUDED.user_count
	`
	_, err := s.pool.Exec(ctx, query, string(b.Scope), b.Index, b.Lower, b.Upper, b.Count)
	if err != nil {
		return fmt.Errorf("put bucket: %w", err)
	}
	return nil
}

// GetTopK retrieves the exact leaderboard head for a scope.
func (s *Store) GetTopK(ctx context.Context, scope domain.Scope) (*domain.TopK, error) {
	query := `SELECT scope, entries FROM topk WHERE scope = $1`
	var t domain.TopK
	var entriesJSON []byte
	err := s.pool.QueryRow(ctx, query, string(scope)).Scan(&t.Scope, &entriesJSON)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get topk: %w", err)
	}
	if len(entriesJSON) > 0 {
		if err := json.Unmarshal(entriesJSON, &t.Entries); err != nil {
			return nil, fmt.Errorf("parse topk entries: %w", err)
		}
	}
	return &t, nil
}

// PutTopK upserts the exact leaderboard head for a scope.
func (s *Store) PutTopK(ctx context.Context, t *domain.TopK) error {
	entriesJSON, err := json.Marshal(t.Entries)
	if err != nil {
		return fmt.Errorf("marshal topk entries: %w", err)
	}
	query := `
		INSERT INTO topk (scope, entries) VALUES ($1, $2)
		ON CONFLICT (scope) DO UPDATE SET entries = EXCLUDED.entries
	`
	if _, err := s.pool.Exec(ctx, query, string(t.Scope), entriesJSON); err != nil {
		return fmt.Errorf("put topk: %w", err)
	}
	return nil
}

// GetTotals retrieves participant totals for a scope.
func (s *Store) GetTotals(ctx context.Context, scope domain.Scope) (*domain.LeaderboardTotals, error) {
	query := `SELECT scope, participants FROM leaderboard_totals WHERE scope = $1`
	var t domain.LeaderboardTotals
	err := s.pool.QueryRow(ctx, query, string(scope)).Scan(&t.Scope, &t.Participants)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get totals: %w", err)
	}
	return &t, nil
}

// PutTotals upserts participant totals for a scope.
func (s *Store) PutTotals(ctx context.Context, t *domain.LeaderboardTotals) error {
	query := `
		INSERT INTO leaderboard_totals (scope, participants) VALUES ($1, $2)
		ON CONFLICT (scope) DO UPDATE SET participants = EXCLUDED.participants
	`
	if _, err := s.pool.Exec(ctx, query, string(t.Scope), t.Participants); err != nil {
		return fmt.Errorf("put totals: %w", err)
	}
	return nil
}

// PutAudit upserts an audit record by its deterministic ID.
func (s *Store) PutAudit(ctx context.Context, a *domain.AuditRecord) error {
	query := `
		INSERT INTO audit_records (
			id, kind, user_id, epoch_number, points, reason, block_number, event_timestamp, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			user_id = EXCLUDED.user_id,
			epoch_number = EXCLUDED.epoch_number,
			points = EXCLUDED.points,
			reason = EXCLUDED.reason,
			block_number = EXCLUDED.block_number,
			event_timestamp = EXCLUDED.event_timestamp,
			tx_hash = EXCLUDED.tx_hash
	`
	_, err := s.pool.Exec(ctx, query,
		a.ID, string(a.Kind), a.UserID, int64(a.EpochNumber), a.Points, a.Reason,
		int64(a.BlockNumber), a.Timestamp, a.TxHash,
	)
	if err != nil {
		return fmt.Errorf("put audit: %w", err)
	}
	return nil
}

// ListAuditByUser retrieves a user's audit records in chain order.
func (s *Store) ListAuditByUser(ctx context.Context, userID string) ([]*domain.AuditRecord, error) {
	query := `
		SELECT id, kind, user_id, epoch_number, points, reason, block_number, event_timestamp, tx_hash
		FROM audit_records
		WHERE user_id = $1
		ORDER BY block_number ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list audit by user: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		var kind string
		var epochNumber, blockNumber int64
		err := rows.Scan(&a.ID, &kind, &a.UserID, &epochNumber, &a.Points, &a.Reason,
			&blockNumber, &a.Timestamp, &a.TxHash)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		a.Kind = domain.EventKind(kind)
		a.EpochNumber = uint64(epochNumber)
		a.BlockNumber = uint64(blockNumber)
		records = append(records, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return records, nil
}

const epochSelect = `
	SELECT number, start_block, start_time, end_block, end_time, is_active,
		scheduled_start_time, scheduled_end_time
	FROM epochs`

const reserveSelect = `
	SELECT id, symbol, decimals, liquidity_index, variable_borrow_index,
		liquidity_rate, variable_borrow_rate, last_update_timestamp, price_usd
	FROM reserves`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpoch(row rowScanner) (*domain.Epoch, error) {
	var e domain.Epoch
	var number, startBlock, endBlock int64
	err := row.Scan(&number, &startBlock, &e.StartTime, &endBlock, &e.EndTime,
		&e.IsActive, &e.ScheduledStartTime, &e.ScheduledEndTime)
	if err != nil {
		return nil, err
	}
	e.Number = uint64(number)
	e.StartBlock = uint64(startBlock)
	e.EndBlock = uint64(endBlock)
	return &e, nil
}

func scanReserve(row rowScanner) (*domain.Reserve, error) {
	var r domain.Reserve
	var priceUSD string
	err := row.Scan(&r.ID, &r.Symbol, &r.Decimals, &r.LiquidityIndex, &r.VariableBorrowIndex,
		&r.LiquidityRate, &r.VariableBorrowRate, &r.LastUpdateTimestamp, &priceUSD)
	if err != nil {
		return nil, err
	}
	r.PriceUSD, err = decimal.NewFromString(priceUSD)
	if err != nil {
		return nil, fmt.Errorf("parse price usd: %w", err)
	}
	return &r, nil
}
