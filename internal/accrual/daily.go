package accrual

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/storage"
)

// Action identifies the balance-moving action a daily bonus tracks.
type Action string

// Daily-bonus actions.
const (
	ActionSupply   Action = "supply"
	ActionBorrow   Action = "borrow"
	ActionRepay    Action = "repay"
	ActionWithdraw Action = "withdraw"
)

// epochDay is the UTC day index of a timestamp: floor(unixSeconds/86400),
// no timezone adjustment.
func epochDay(ts int64) int64 {
	return ts / secondsPerDay
}

// RecordDailyAction accumulates the USD value an action moved into the
// current UTC day's high-water mark and, once the mark meets the
// configured minimum, awards that action's fixed daily bonus exactly once
// for the day. Later activity the same day does not re-award.
func (e *Engine) RecordDailyAction(ctx context.Context, userID string, action Action, usd decimal.Decimal, now int64, block uint64) error {
	cfg, err := e.loadConfig(ctx)
	if err != nil || cfg == nil {
		return err
	}
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

	mark, bonus := markFor(stats, cfg, action)
	if mark == nil {
		return fmt.Errorf("%w: unknown action %q", storage.ErrInvalidInput, action)
	}

	day := epochDay(now)
	if mark.Day != day {
		mark.Day = day
		mark.USD = usd
	} else {
		mark.USD = mark.USD.Add(usd)
	}

	awarded := false
	if bonus > 0 && mark.LastAwardDay != day && mark.USD.GreaterThanOrEqual(cfg.MinDailyBonusUSD) {
		mark.LastAwardDay = day
		awarded = true
	}

	if err := e.store.PutUserEpochStats(ctx, stats); err != nil {
		return fmt.Errorf("put stats: %w", err)
	}
	if created {
		state, err := e.loadState(ctx, userID)
		if err != nil {
			return err
		}
		state.EpochsParticipated++
		state.LastEpochNumber = epoch.Number
		if err := e.store.PutUserState(ctx, state); err != nil {
			return fmt.Errorf("put state: %w", err)
		}
	}

	if !awarded {
		return nil
	}
	if e.metrics != nil {
		e.metrics.DailyBonuses.WithLabelValues(string(action)).Inc()
	}
	return e.credit(ctx, userID, epoch.Number, SourceBonus, string(action), bonus, now, block)
}

// markFor selects the daily mark and bonus amount for an action.
// The returned pointer aliases into stats so mutations persist with it.
func markFor(stats *domain.UserEpochStats, cfg *domain.Config, action Action) (*domain.DailyMark, float64) {
	switch action {
	case ActionSupply:
		return &stats.SupplyMark, cfg.SupplyDailyBonus
	case ActionBorrow:
		return &stats.BorrowMark, cfg.BorrowDailyBonus
	case ActionRepay:
		return &stats.RepayMark, cfg.RepayDailyBonus
	case ActionWithdraw:
		return &stats.WithdrawMark, cfg.WithdrawDailyBonus
	default:
		return nil, 0
	}
}
