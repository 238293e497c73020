// Package processor applies the inbound event stream to the entity store.
// Each event is fully applied before the next is considered; there is no
// parallelism and no background work. Every failure mode resolves to the
// conservative, idempotent action and processing continues.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"lending-points-lab/internal/accrual"
	"lending-points-lab/internal/chain"
	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/leaderboard"
	"lending-points-lab/internal/multiplier"
	"lending-points-lab/internal/observability"
	"lending-points-lab/internal/raymath"
	"lending-points-lab/internal/storage"
)

// nftBalancePrefix keys per-(user, collection) NFT holdings stored as
// ownership baselines alongside reserve balances.
const nftBalancePrefix = "nft:"

// Processor dispatches events to the accrual engine and leaderboard.
type Processor struct {
	store   storage.Store
	engine  *accrual.Engine
	board   *leaderboard.Facade
	reader  chain.Reader
	history storage.HistorySink
	metrics *observability.Metrics
	logger  *log.Logger
}

// Options configures a Processor. Reader, History, Metrics and Logger are
// optional.
type Options struct {
	Store   storage.Store
	Engine  *accrual.Engine
	Board   *leaderboard.Facade
	Reader  chain.Reader
	History storage.HistorySink
	Metrics *observability.Metrics
	Logger  *log.Logger
}

// New creates a Processor.
func New(opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{
		store:   opts.Store,
		engine:  opts.Engine,
		board:   opts.Board,
		reader:  opts.Reader,
		history: opts.History,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Apply fully applies one event. Returned errors are store-level failures;
// domain conditions (missing entities, underflows, failed chain reads)
// never surface as errors.
func (p *Processor) Apply(ctx context.Context, ev *domain.Event) error {
	if ev == nil {
		return storage.ErrInvalidInput
	}
	start := time.Now()

	var err error
	switch ev.Kind {
	case domain.EventSupply:
		err = p.applyBalance(ctx, ev, accrual.ActionSupply)
	case domain.EventWithdraw:
		err = p.applyBalance(ctx, ev, accrual.ActionWithdraw)
	case domain.EventBorrow:
		err = p.applyBalance(ctx, ev, accrual.ActionBorrow)
	case domain.EventRepay:
		err = p.applyBalance(ctx, ev, accrual.ActionRepay)
	case domain.EventReserveSync:
		err = p.applyReserveSync(ctx, ev)
	case domain.EventScaledTransfer:
		err = p.applyTransfer(ctx, ev)
	case domain.EventLiquiditySync:
		err = p.applyLiquidity(ctx, ev)
	case domain.EventLockCreated, domain.EventLockIncreased, domain.EventLockExtended, domain.EventLockWithdrawn:
		err = p.applyLock(ctx, ev)
	case domain.EventNFTTransfer:
		err = p.applyNFTTransfer(ctx, ev)
	case domain.EventConfigSnapshot:
		err = p.applyConfig(ctx, ev)
	case domain.EventEpochStart:
		err = p.applyEpochStart(ctx, ev)
	case domain.EventEpochEnd:
		err = p.applyEpochEnd(ctx, ev)
	case domain.EventManualAward, domain.EventManualRemoval:
		err = p.applyManual(ctx, ev)
	case domain.EventBlacklistSet:
		err = p.applyBlacklist(ctx, ev)
	default:
		p.logger.Printf("unknown event kind %q at block %d, skipping", ev.Kind, ev.BlockNumber)
		return nil
	}
	if err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.EventsProcessed.WithLabelValues(string(ev.Kind)).Inc()
		p.metrics.ApplyLatency.Observe(time.Since(start).Seconds())
		p.metrics.LastApplyTime.Set(float64(ev.Time()))
	}
	return nil
}

// applyBalance handles supply/withdraw/borrow/repay: settle the interval
// on the pre-event balance, mutate scaled balances, refresh the baseline
// amounts and feed the daily-bonus mark. A redelivered event finds its
// chain position already recorded on the balance row and mutates nothing.
func (p *Processor) applyBalance(ctx context.Context, ev *domain.Event, action accrual.Action) error {
	pl := ev.Balance
	if pl == nil {
		return nil
	}
	now := ev.Time()

	settled, err := p.engine.Accrue(ctx, pl.UserID, pl.ReserveID, now, ev.BlockNumber)
	if err != nil {
		return fmt.Errorf("accrue: %w", err)
	}

	delta := raymath.BigFromString(pl.AmountScaled)
	debt := action == accrual.ActionBorrow || action == accrual.ActionRepay
	if action == accrual.ActionWithdraw || action == accrual.ActionRepay {
		delta = new(big.Int).Neg(delta)
	}
	applied, err := p.adjustScaledBalance(ctx, pl.UserID, pl.ReserveID, delta, debt, ev)
	if err != nil {
		return err
	}
	if !applied {
		p.skipStep("already_applied")
		return nil
	}

	if settled {
		if err := p.engine.RefreshBaseline(ctx, pl.UserID, pl.ReserveID); err != nil {
			return fmt.Errorf("refresh baseline: %w", err)
		}
	}

	reserve, err := p.store.GetReserve(ctx, pl.ReserveID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get reserve: %w", err)
	}
	usd := raymath.ToDecimal(raymath.BigFromString(pl.Amount), reserve.Decimals).Mul(reserve.PriceUSD)
	return p.engine.RecordDailyAction(ctx, pl.UserID, action, usd, now, ev.BlockNumber)
}

// applyReserveSync replaces a reserve's live index and rate state.
// Outstanding baselines keep accruing against the old state until their
// next settlement; index updates are monotone so this only defers points,
// never loses them.
func (p *Processor) applyReserveSync(ctx context.Context, ev *domain.Event) error {
	if ev.Reserve == nil {
		return nil
	}
	reserve := *ev.Reserve
	if reserve.LastUpdateTimestamp == 0 {
		reserve.LastUpdateTimestamp = ev.Time()
	}
	if err := p.store.PutReserve(ctx, &reserve); err != nil {
		return fmt.Errorf("put reserve: %w", err)
	}
	return nil
}

// applyTransfer handles scaled-balance transfers of interest-bearing or
// debt tokens: both sides settle on pre-event balances, then the scaled
// amount moves.
func (p *Processor) applyTransfer(ctx context.Context, ev *domain.Event) error {
	pl := ev.Transfer
	if pl == nil {
		return nil
	}
	now := ev.Time()
	amount := raymath.BigFromString(pl.AmountScaled)

	for _, userID := range []string{pl.From, pl.To} {
		if userID == "" {
			continue
		}
		settled, err := p.engine.Accrue(ctx, userID, pl.ReserveID, now, ev.BlockNumber)
		if err != nil {
			return fmt.Errorf("accrue: %w", err)
		}
		delta := amount
		if userID == pl.From {
			delta = new(big.Int).Neg(amount)
		}
		applied, err := p.adjustScaledBalance(ctx, userID, pl.ReserveID, delta, pl.Debt, ev)
		if err != nil {
			return err
		}
		if !applied {
			p.skipStep("already_applied")
			continue
		}
		if settled {
			if err := p.engine.RefreshBaseline(ctx, userID, pl.ReserveID); err != nil {
				return fmt.Errorf("refresh baseline: %w", err)
			}
		}
	}
	return nil
}

// applyLiquidity settles LP points on the previous position value and
// starts a new baseline at the synced value. A zero payload value is
// backfilled from chain when a reader is available; a failed read keeps
// the previously known value.
func (p *Processor) applyLiquidity(ctx context.Context, ev *domain.Event) error {
	pl := ev.Liquidity
	if pl == nil {
		return nil
	}
	now := ev.Time()
	sourceID := domain.LPReservePrefix + pl.PoolID

	value, _ := pl.ValueUSD.Float64()
	if pl.ValueUSD.IsZero() && p.reader != nil {
		positions, err := p.reader.PositionDetails(ctx, pl.PoolID, pl.UserID)
		if err != nil {
			if p.metrics != nil {
				p.metrics.ChainReadErrors.WithLabelValues("PositionDetails").Inc()
			}
			value = p.lastFlatBalance(ctx, pl.UserID, sourceID)
		} else {
			value = 0
			for _, pos := range positions {
				value += pos.ValueUSD
			}
		}
	}

	cfg, err := p.store.GetConfig(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get config: %w", err)
	}
	return p.engine.AccrueFlat(ctx, pl.UserID, sourceID, accrual.SourceLP, cfg.LPRateBps, value, now, ev.BlockNumber)
}

// applyLock settles voting-power points on the previous power, then
// recomputes power, tier and combined multiplier from the lock's new
// state.
func (p *Processor) applyLock(ctx context.Context, ev *domain.Event) error {
	pl := ev.Lock
	if pl == nil {
		return nil
	}
	now := ev.Time()

	var power float64
	if ev.Kind != domain.EventLockWithdrawn {
		power = multiplier.VotingPower(raymath.BigFromString(pl.Amount), pl.UnlockTime, pl.Permanent, now)
	}

	cfg, err := p.store.GetConfig(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get config: %w", err)
	}
	if cfg != nil {
		if err := p.engine.AccrueFlat(ctx, pl.UserID, domain.VotingPowerReserveID, accrual.SourceVotingPower, cfg.VotingPowerRateBps, power, now, ev.BlockNumber); err != nil {
			return err
		}
	}

	state, err := p.loadState(ctx, pl.UserID)
	if err != nil {
		return err
	}
	state.VotingPower = power
	var tiers []domain.VPTier
	if cfg != nil {
		tiers = cfg.VPTiers
	}
	state.VPMultiplierBps, state.VPTierIndex = multiplier.VotingPowerBps(power, tiers)
	state.CombinedMultiplierBps = multiplier.CombinedBps(state.NFTMultiplierBps, state.VPMultiplierBps)
	return p.store.PutUserState(ctx, state)
}

// applyNFTTransfer updates per-collection holdings for both sides,
// preferring a chain read and falling back to the transfer direction,
// then recomputes the NFT and combined multipliers.
func (p *Processor) applyNFTTransfer(ctx context.Context, ev *domain.Event) error {
	pl := ev.NFT
	if pl == nil {
		return nil
	}
	for _, side := range []struct {
		userID string
		delta  int64
	}{{pl.From, -1}, {pl.To, +1}} {
		if side.userID == "" {
			continue
		}
		if err := p.updateNFTHolding(ctx, ev, side.userID, pl.Collection, side.delta); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) updateNFTHolding(ctx context.Context, ev *domain.Event, userID, collection string, delta int64) error {
	key := nftBalancePrefix + collection
	prev := int64(0)
	bal, err := p.store.GetUserReserveBalance(ctx, userID, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get nft holding: %w", err)
	}
	if bal != nil {
		if bal.AppliedAt(ev.BlockNumber, ev.LogIndex) {
			p.skipStep("already_applied")
			return nil
		}
		prev = raymath.BigFromString(bal.ScaledDeposit).Int64()
	}

	next := prev + delta
	if p.reader != nil {
		if onChain, err := p.reader.BalanceOf(ctx, collection, userID); err == nil {
			next = onChain
		} else if ids, idsErr := p.reader.OwnedTokenIDs(ctx, collection, userID); idsErr == nil {
			// Collections without a balance query get counted by
			// enumeration.
			next = int64(len(ids))
		} else if p.metrics != nil {
			p.metrics.ChainReadErrors.WithLabelValues("BalanceOf").Inc()
		}
	}
	if next < 0 {
		next = 0
	}

	if err := p.store.PutUserReserveBalance(ctx, &domain.UserReserveBalance{
		UserID:        userID,
		ReserveID:     key,
		ScaledDeposit: big.NewInt(next).String(),
		ScaledBorrow:  "0",
		LastBlock:     ev.BlockNumber,
		LastLogIndex:  ev.LogIndex,
	}); err != nil {
		return fmt.Errorf("put nft holding: %w", err)
	}

	// Active-collection count changes only when the holding crosses zero.
	countDelta := 0
	if prev == 0 && next > 0 {
		countDelta = 1
	} else if prev > 0 && next == 0 {
		countDelta = -1
	}

	state, err := p.loadState(ctx, userID)
	if err != nil {
		return err
	}
	state.NFTCount += countDelta
	if state.NFTCount < 0 {
		state.NFTCount = 0
	}

	cfg, err := p.store.GetConfig(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get config: %w", err)
	}
	if cfg != nil {
		state.NFTMultiplierBps = multiplier.NFTBps(state.NFTCount, cfg.NFTFirstBonusBps, cfg.NFTDecayRatioBps)
		state.CombinedMultiplierBps = multiplier.CombinedBps(state.NFTMultiplierBps, state.VPMultiplierBps)
	}
	return p.store.PutUserState(ctx, state)
}

func (p *Processor) applyConfig(ctx context.Context, ev *domain.Event) error {
	if ev.Config == nil {
		return nil
	}
	cfg := *ev.Config
	cfg.UpdatedAtBlock = ev.BlockNumber
	if err := p.store.PutConfig(ctx, &cfg); err != nil {
		return fmt.Errorf("put config: %w", err)
	}
	return p.audit(ctx, ev, "", 0, 0, "config snapshot")
}

// applyEpochStart opens a new active epoch, defensively closing any epoch
// still marked active.
func (p *Processor) applyEpochStart(ctx context.Context, ev *domain.Event) error {
	pl := ev.Epoch
	if pl == nil {
		return nil
	}
	now := ev.Time()

	if stale, err := p.store.ActiveEpoch(ctx); err == nil {
		stale.IsActive = false
		stale.EndBlock = ev.BlockNumber
		stale.EndTime = now
		if err := p.store.PutEpoch(ctx, stale); err != nil {
			return fmt.Errorf("close stale epoch: %w", err)
		}
		p.logger.Printf("epoch %d was still active at epoch %d start, closed it", stale.Number, pl.Number)
	}

	epoch := &domain.Epoch{
		Number:             pl.Number,
		StartBlock:         ev.BlockNumber,
		StartTime:          now,
		IsActive:           true,
		ScheduledStartTime: pl.ScheduledStartTime,
		ScheduledEndTime:   pl.ScheduledEndTime,
	}
	if err := p.store.PutEpoch(ctx, epoch); err != nil {
		return fmt.Errorf("put epoch: %w", err)
	}
	return p.audit(ctx, ev, "", pl.Number, 0, "epoch start")
}

// applyEpochEnd closes the epoch and freezes every reserve's live indices
// so gap settlement across the boundary never uses a stale live index.
func (p *Processor) applyEpochEnd(ctx context.Context, ev *domain.Event) error {
	pl := ev.Epoch
	if pl == nil {
		return nil
	}
	now := ev.Time()

	epoch, err := p.store.GetEpoch(ctx, pl.Number)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return p.audit(ctx, ev, "", pl.Number, 0, "epoch end (unknown epoch)")
		}
		return fmt.Errorf("get epoch: %w", err)
	}
	epoch.IsActive = false
	epoch.EndBlock = ev.BlockNumber
	epoch.EndTime = now
	if err := p.store.PutEpoch(ctx, epoch); err != nil {
		return fmt.Errorf("put epoch: %w", err)
	}

	reserves, err := p.store.ListReserves(ctx)
	if err != nil {
		return fmt.Errorf("list reserves: %w", err)
	}
	for _, r := range reserves {
		snap := &domain.EpochIndexSnapshot{
			EpochNumber:         pl.Number,
			ReserveID:           r.ID,
			LiquidityIndex:      r.LiquidityIndex,
			VariableBorrowIndex: r.VariableBorrowIndex,
			FrozenAt:            now,
		}
		if err := p.store.PutIndexSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("put index snapshot: %w", err)
		}
	}
	return p.audit(ctx, ev, "", pl.Number, 0, "epoch end")
}

func (p *Processor) applyManual(ctx context.Context, ev *domain.Event) error {
	pl := ev.Manual
	if pl == nil {
		return nil
	}
	points := pl.Points
	if ev.Kind == domain.EventManualRemoval {
		points = -points
	}
	if err := p.engine.AwardManual(ctx, pl.UserID, points, ev.Time(), ev.BlockNumber); err != nil {
		return fmt.Errorf("award manual: %w", err)
	}
	var epochNumber uint64
	if epoch, err := p.store.ActiveEpoch(ctx); err == nil {
		epochNumber = epoch.Number
	}
	return p.audit(ctx, ev, pl.UserID, epochNumber, points, pl.Reason)
}

func (p *Processor) applyBlacklist(ctx context.Context, ev *domain.Event) error {
	pl := ev.Blacklist
	if pl == nil {
		return nil
	}
	state, err := p.loadState(ctx, pl.UserID)
	if err != nil {
		return err
	}
	state.Blacklisted = pl.Blacklisted
	if err := p.store.PutUserState(ctx, state); err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	if pl.Blacklisted {
		if err := p.board.RemoveUser(ctx, pl.UserID); err != nil {
			return fmt.Errorf("remove user: %w", err)
		}
	}
	reason := "blacklisted"
	if !pl.Blacklisted {
		reason = "unblacklisted"
	}
	return p.audit(ctx, ev, pl.UserID, 0, 0, reason)
}

// audit writes the idempotent audit mirror of an admin/lifecycle event and
// best-effort forwards it to the analytics sink.
func (p *Processor) audit(ctx context.Context, ev *domain.Event, userID string, epochNumber uint64, points float64, reason string) error {
	rec := &domain.AuditRecord{
		ID:          domain.AuditID(ev),
		Kind:        ev.Kind,
		UserID:      userID,
		EpochNumber: epochNumber,
		Points:      points,
		Reason:      reason,
		BlockNumber: ev.BlockNumber,
		Timestamp:   ev.Time(),
		TxHash:      ev.TxHash,
	}
	if err := p.store.PutAudit(ctx, rec); err != nil {
		return fmt.Errorf("put audit: %w", err)
	}
	if p.history != nil {
		if err := p.history.AppendAudit(ctx, rec); err != nil {
			if p.metrics != nil {
				p.metrics.HistorySinkErrors.Inc()
			}
			p.logger.Printf("history sink audit append failed: %v", err)
		}
	}
	return nil
}

// adjustScaledBalance applies a signed scaled delta, clamping at zero when
// a burn exceeds the tracked balance. Reports false without mutating when
// the event's chain position was already applied to the row.
func (p *Processor) adjustScaledBalance(ctx context.Context, userID, reserveID string, delta *big.Int, debt bool, ev *domain.Event) (bool, error) {
	bal, err := p.store.GetUserReserveBalance(ctx, userID, reserveID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("get balance: %w", err)
		}
		bal = &domain.UserReserveBalance{UserID: userID, ReserveID: reserveID, ScaledDeposit: "0", ScaledBorrow: "0"}
	} else if bal.AppliedAt(ev.BlockNumber, ev.LogIndex) {
		return false, nil
	}

	current := raymath.BigFromString(bal.ScaledDeposit)
	if debt {
		current = raymath.BigFromString(bal.ScaledBorrow)
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	if debt {
		bal.ScaledBorrow = next.String()
	} else {
		bal.ScaledDeposit = next.String()
	}
	bal.LastBlock = ev.BlockNumber
	bal.LastLogIndex = ev.LogIndex
	if err := p.store.PutUserReserveBalance(ctx, bal); err != nil {
		return false, fmt.Errorf("put balance: %w", err)
	}
	return true, nil
}

func (p *Processor) skipStep(reason string) {
	if p.metrics != nil {
		p.metrics.EventsSkipped.WithLabelValues(reason).Inc()
	}
}

func (p *Processor) loadState(ctx context.Context, userID string) (*domain.UserLeaderboardState, error) {
	state, err := p.store.GetUserState(ctx, userID)
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

// lastFlatBalance returns the previously settled flat baseline value, used
// when a chain read fails and the engine must keep existing state.
func (p *Processor) lastFlatBalance(ctx context.Context, userID, sourceID string) float64 {
	baseline, err := p.store.GetUserReservePoints(ctx, userID, sourceID)
	if err != nil {
		return 0
	}
	return baseline.DepositBalance
}
