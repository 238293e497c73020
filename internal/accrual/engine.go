// Package accrual converts balance and index deltas into points: ray-math
// interest projection, multiplier application, epoch-boundary settlement
// and once-per-day bonuses.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"log"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/leaderboard"
	"lending-points-lab/internal/multiplier"
	"lending-points-lab/internal/observability"
	"lending-points-lab/internal/raymath"
	"lending-points-lab/internal/storage"
)

const secondsPerDay = 86400

// Point sources for history records and metrics labels.
const (
	SourceDeposit     = "deposit"
	SourceBorrow      = "borrow"
	SourceLP          = "lp"
	SourceVotingPower = "voting_power"
	SourceBonus       = "bonus"
	SourceManual      = "manual"
)

// Engine settles accrual intervals against the entity store and pushes
// the resulting totals through the leaderboard facade.
type Engine struct {
	store   storage.Store
	board   *leaderboard.Facade
	history storage.HistorySink
	metrics *observability.Metrics
	logger  *log.Logger
}

// Options configures an Engine. History, Metrics and Logger are optional.
type Options struct {
	Store   storage.Store
	Board   *leaderboard.Facade
	History storage.HistorySink
	Metrics *observability.Metrics
	Logger  *log.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:   opts.Store,
		board:   opts.Board,
		history: opts.History,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Accrue settles the interval between a user-reserve's baseline and now,
// awarding deposit and borrow points for every epoch window the interval
// covers, then advances the baseline. Returns true when the baseline was
// settled to now (the caller may then refresh baseline amounts after
// mutating scaled balances).
//
// Missing prerequisites (no config, no reserve) skip the points step but
// still advance the baseline so replays stay idempotent.
func (e *Engine) Accrue(ctx context.Context, userID, reserveID string, now int64, block uint64) (bool, error) {
	reserve, err := e.store.GetReserve(ctx, reserveID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.skip("missing_reserve")
			return false, nil
		}
		return false, fmt.Errorf("get reserve: %w", err)
	}

	cfg, err := e.loadConfig(ctx)
	if err != nil {
		return false, err
	}

	baseline, err := e.store.GetUserReservePoints(ctx, userID, reserveID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("get baseline: %w", err)
		}
		// First touch: start the baseline at now, nothing to settle.
		baseline = &domain.UserReservePoints{UserID: userID, ReserveID: reserveID, LastSettledAt: now}
		dep, bor := e.currentAmounts(ctx, userID, reserve, reserve.LiquidityIndex, reserve.VariableBorrowIndex)
		baseline.DepositBalance = dep
		baseline.BorrowBalance = bor
		return true, e.store.PutUserReservePoints(ctx, baseline)
	}

	if now < baseline.LastSettledAt {
		// Stale call; the baseline never moves backwards.
		return false, nil
	}
	if cfg != nil && cfg.CooldownSeconds > 0 && now > baseline.LastSettledAt &&
		now-baseline.LastSettledAt < cfg.CooldownSeconds {
		if e.metrics != nil {
			e.metrics.CooldownSkips.Inc()
		}
		return false, nil
	}

	windows, gapEpoch, err := e.settlementWindows(ctx, baseline.LastSettledAt, now, block)
	if err != nil {
		return false, err
	}

	// Balances at the boundary come from the index frozen at epoch end,
	// never from the live (possibly stale) index.
	boundaryDep, boundaryBor := baseline.DepositBalance, baseline.BorrowBalance
	if gapEpoch != nil {
		if snap, err := e.store.GetIndexSnapshot(ctx, gapEpoch.Number, reserveID); err == nil {
			boundaryDep, boundaryBor = e.currentAmounts(ctx, userID, reserve, snap.LiquidityIndex, snap.VariableBorrowIndex)
		}
		if e.metrics != nil {
			e.metrics.GapSettlements.Inc()
		}
	}

	if cfg != nil {
		for _, w := range windows {
			dep, bor := baseline.DepositBalance, baseline.BorrowBalance
			if gapEpoch != nil && w.epoch.Number != gapEpoch.Number {
				dep, bor = boundaryDep, boundaryBor
			}
			elapsed := float64(w.to - w.from)
			rawDep := dep * float64(cfg.DepositRateBps) / 10000 * elapsed / secondsPerDay
			rawBor := bor * float64(cfg.BorrowRateBps) / 10000 * elapsed / secondsPerDay
			if err := e.credit(ctx, userID, w.epoch.Number, SourceDeposit, reserveID, rawDep, w.to, block); err != nil {
				return false, err
			}
			if err := e.credit(ctx, userID, w.epoch.Number, SourceBorrow, reserveID, rawBor, w.to, block); err != nil {
				return false, err
			}
		}
	}

	dep, bor := e.currentAmounts(ctx, userID, reserve, reserve.LiquidityIndex, reserve.VariableBorrowIndex)
	baseline.DepositBalance = dep
	baseline.BorrowBalance = bor
	baseline.LastSettledAt = now
	if err := e.store.PutUserReservePoints(ctx, baseline); err != nil {
		return false, fmt.Errorf("put baseline: %w", err)
	}
	return true, nil
}

// RefreshBaseline recomputes the baseline token amounts from the current
// scaled balances at the live index, without moving the settlement time.
// Called after an event mutates scaled balances that were already settled.
func (e *Engine) RefreshBaseline(ctx context.Context, userID, reserveID string) error {
	reserve, err := e.store.GetReserve(ctx, reserveID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get reserve: %w", err)
	}
	baseline, err := e.store.GetUserReservePoints(ctx, userID, reserveID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get baseline: %w", err)
	}
	dep, bor := e.currentAmounts(ctx, userID, reserve, reserve.LiquidityIndex, reserve.VariableBorrowIndex)
	baseline.DepositBalance = dep
	baseline.BorrowBalance = bor
	return e.store.PutUserReservePoints(ctx, baseline)
}

// AccrueFlat settles a time-weighted baseline that has no interest index:
// voting power and LP position value. The tracked quantity lives in the
// baseline's deposit column under a pseudo-reserve ID. The new quantity
// takes effect from now onward.
func (e *Engine) AccrueFlat(ctx context.Context, userID, sourceID, source string, rateBps int64, newBalance float64, now int64, block uint64) error {
	baseline, err := e.store.GetUserReservePoints(ctx, userID, sourceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get baseline: %w", err)
		}
		baseline = &domain.UserReservePoints{UserID: userID, ReserveID: sourceID, DepositBalance: newBalance, LastSettledAt: now}
		return e.store.PutUserReservePoints(ctx, baseline)
	}
	if now < baseline.LastSettledAt {
		return nil
	}

	windows, _, err := e.settlementWindows(ctx, baseline.LastSettledAt, now, block)
	if err != nil {
		return err
	}
	for _, w := range windows {
		raw := baseline.DepositBalance * float64(rateBps) / 10000 * float64(w.to-w.from) / secondsPerDay
		if err := e.credit(ctx, userID, w.epoch.Number, source, sourceID, raw, w.to, block); err != nil {
			return err
		}
	}

	baseline.DepositBalance = newBalance
	baseline.LastSettledAt = now
	return e.store.PutUserReservePoints(ctx, baseline)
}

// AwardManual applies an admin award (positive) or removal (negative) of
// points to the active epoch. Removal clamps at zero rather than going
// negative. No-op without an active epoch.
func (e *Engine) AwardManual(ctx context.Context, userID string, points float64, now int64, block uint64) error {
	epoch, err := e.store.ActiveEpoch(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.skip("no_active_epoch")
			return nil
		}
		return fmt.Errorf("active epoch: %w", err)
	}

	stats, created, err := e.loadStats(ctx, userID, epoch.Number)
	if err != nil {
		return err
	}
	delta := points
	if delta < 0 && stats.ManualPoints+delta < 0 {
		delta = -stats.ManualPoints
	}
	stats.ManualPoints += delta
	stats.TotalPoints += delta
	stats.TotalPointsWithMultiplier += delta
	if stats.TotalPoints < 0 {
		stats.TotalPoints = 0
	}
	if stats.TotalPointsWithMultiplier < 0 {
		stats.TotalPointsWithMultiplier = 0
	}
	if err := e.store.PutUserEpochStats(ctx, stats); err != nil {
		return fmt.Errorf("put stats: %w", err)
	}

	state, err := e.loadState(ctx, userID)
	if err != nil {
		return err
	}
	state.LifetimePoints += delta
	if state.LifetimePoints < 0 {
		state.LifetimePoints = 0
	}
	if created {
		state.EpochsParticipated++
		state.LastEpochNumber = epoch.Number
	}
	if err := e.store.PutUserState(ctx, state); err != nil {
		return fmt.Errorf("put state: %w", err)
	}

	e.appendHistory(ctx, &domain.AccrualRecord{
		UserID:               userID,
		EpochNumber:          epoch.Number,
		Source:               SourceManual,
		RawPoints:            delta,
		PointsWithMultiplier: delta,
		MultiplierBps:        multiplier.BaseBps,
		Timestamp:            now,
		BlockNumber:          block,
	})
	return e.board.UpdateUser(ctx, userID, epoch.Number, stats.TotalPointsWithMultiplier, state.LifetimePoints)
}

// credit adds raw points for one source to the user's epoch stats and
// lifetime totals, applying the combined multiplier, then notifies the
// leaderboard. Zero or negative raw amounts are ignored.
func (e *Engine) credit(ctx context.Context, userID string, epochNumber uint64, source, sourceID string, raw float64, now int64, block uint64) error {
	if raw <= 0 {
		return nil
	}

	state, err := e.loadState(ctx, userID)
	if err != nil {
		return err
	}
	mult := state.CombinedMultiplierBps
	if mult < multiplier.BaseBps {
		mult = multiplier.BaseBps
	}
	withMult := raw * float64(mult) / float64(multiplier.BaseBps)

	stats, created, err := e.loadStats(ctx, userID, epochNumber)
	if err != nil {
		return err
	}
	switch source {
	case SourceDeposit:
		stats.DepositPoints += raw
		stats.DepositPointsWithMultiplier += withMult
	case SourceBonus:
		stats.BonusPoints += raw
		stats.BonusPointsWithMultiplier += withMult
	case SourceBorrow:
		stats.BorrowPoints += raw
		stats.BorrowPointsWithMultiplier += withMult
	case SourceLP:
		stats.LPPoints += raw
		stats.LPPointsWithMultiplier += withMult
	case SourceVotingPower:
		stats.VotingPowerPoints += raw
		stats.VotingPowerPointsWithMultiplier += withMult
	default:
		return fmt.Errorf("%w: unknown point source %q", storage.ErrInvalidInput, source)
	}
	stats.LastMultiplierBps = mult
	stats.TotalPoints += raw
	stats.TotalPointsWithMultiplier += withMult
	if err := e.store.PutUserEpochStats(ctx, stats); err != nil {
		return fmt.Errorf("put stats: %w", err)
	}

	state.LifetimePoints += withMult
	if created {
		state.EpochsParticipated++
		state.LastEpochNumber = epochNumber
	}
	if err := e.store.PutUserState(ctx, state); err != nil {
		return fmt.Errorf("put state: %w", err)
	}

	if e.metrics != nil {
		e.metrics.PointsAwarded.WithLabelValues(source).Add(withMult)
	}
	e.appendHistory(ctx, &domain.AccrualRecord{
		UserID:               userID,
		SourceID:             sourceID,
		EpochNumber:          epochNumber,
		Source:               source,
		RawPoints:            raw,
		PointsWithMultiplier: withMult,
		MultiplierBps:        mult,
		Timestamp:            now,
		BlockNumber:          block,
	})
	return e.board.UpdateUser(ctx, userID, epochNumber, stats.TotalPointsWithMultiplier, state.LifetimePoints)
}

func (e *Engine) currentAmounts(ctx context.Context, userID string, reserve *domain.Reserve, liquidityIndex, borrowIndex string) (deposit, borrow float64) {
	bal, err := e.store.GetUserReserveBalance(ctx, userID, reserve.ID)
	if err != nil {
		return 0, 0
	}
	deposit = raymath.CurrentBalance(raymath.BigFromString(bal.ScaledDeposit), raymath.BigFromString(liquidityIndex), reserve.Decimals)
	borrow = raymath.CurrentBalance(raymath.BigFromString(bal.ScaledBorrow), raymath.BigFromString(borrowIndex), reserve.Decimals)
	return deposit, borrow
}

func (e *Engine) loadConfig(ctx context.Context) (*domain.Config, error) {
	cfg, err := e.store.GetConfig(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.skip("missing_config")
			return nil, nil
		}
		return nil, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

func (e *Engine) loadState(ctx context.Context, userID string) (*domain.UserLeaderboardState, error) {
	state, err := e.store.GetUserState(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get user state: %w", err)
		}
		state = &domain.UserLeaderboardState{
			UserID:                userID,
			NFTMultiplierBps:      multiplier.BaseBps,
			VPMultiplierBps:       multiplier.BaseBps,
			VPTierIndex:           -1,
			CombinedMultiplierBps: multiplier.BaseBps,
		}
	}
	return state, nil
}

func (e *Engine) loadStats(ctx context.Context, userID string, epochNumber uint64) (*domain.UserEpochStats, bool, error) {
	stats, err := e.store.GetUserEpochStats(ctx, userID, epochNumber)
	if err == nil {
		return stats, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("get stats: %w", err)
	}
	return &domain.UserEpochStats{UserID: userID, EpochNumber: epochNumber}, true, nil
}

func (e *Engine) appendHistory(ctx context.Context, rec *domain.AccrualRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.AppendAccruals(ctx, []*domain.AccrualRecord{rec}); err != nil {
		if e.metrics != nil {
			e.metrics.HistorySinkErrors.Inc()
		}
		e.logger.Printf("history sink append failed: %v", err)
	}
}

func (e *Engine) skip(reason string) {
	if e.metrics != nil {
		e.metrics.EventsSkipped.WithLabelValues(reason).Inc()
	}
}
