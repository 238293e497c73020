package accrual

import (
	"context"
	"errors"
	"fmt"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/storage"
)

// window is one settleable slice of an accrual interval, attributed to a
// single epoch.
type window struct {
	epoch *domain.Epoch
	from  int64
	to    int64
}

// settlementWindows splits [start, now] at the most recent epoch boundary.
// When the latest closed epoch ended inside the interval, the pre-boundary
// slice is attributed to that epoch and gapEpoch reports it so the caller
// can value balances with the frozen end-of-epoch index. The remainder is
// attributed to the active epoch, clipped to its start time, and only when
// block falls inside its block range.
//
// A second settlement after the boundary finds the baseline already at or
// past the epoch end and produces no pre-boundary window, which is what
// makes repeated gap settlement idempotent.
func (e *Engine) settlementWindows(ctx context.Context, start, now int64, block uint64) ([]window, *domain.Epoch, error) {
	var windows []window
	var gapEpoch *domain.Epoch

	prev, err := e.store.LatestClosedEpoch(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("latest closed epoch: %w", err)
	}
	boundaryStart := start
	if prev != nil && prev.EndTime > start && prev.EndTime <= now {
		from := start
		if from < prev.StartTime {
			from = prev.StartTime
		}
		if prev.EndTime > from {
			windows = append(windows, window{epoch: prev, from: from, to: prev.EndTime})
			gapEpoch = prev
		}
		boundaryStart = prev.EndTime
	}

	active, err := e.store.ActiveEpoch(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.skip("no_active_epoch")
			return windows, gapEpoch, nil
		}
		return nil, nil, fmt.Errorf("active epoch: %w", err)
	}
	if !active.ContainsBlock(block) {
		e.skip("block_outside_epoch")
		return windows, gapEpoch, nil
	}

	from := boundaryStart
	if from < active.StartTime {
		from = active.StartTime
	}
	if now > from {
		windows = append(windows, window{epoch: active, from: from, to: now})
	}
	return windows, gapEpoch, nil
}
