package domain

import "github.com/shopspring/decimal"

// EventKind discriminates the closed set of inbound event types.
type EventKind string

// Balance-mutation events.
const (
	EventSupply         EventKind = "supply"
	EventWithdraw       EventKind = "withdraw"
	EventBorrow         EventKind = "borrow"
	EventRepay          EventKind = "repay"
	EventScaledTransfer EventKind = "scaled_transfer"
	EventLiquiditySync  EventKind = "liquidity_sync"
	EventLockCreated    EventKind = "lock_created"
	EventLockIncreased  EventKind = "lock_increased"
	EventLockExtended   EventKind = "lock_extended"
	EventLockWithdrawn  EventKind = "lock_withdrawn"
	EventNFTTransfer    EventKind = "nft_transfer"
	EventReserveSync    EventKind = "reserve_sync"
)

// Leaderboard-admin events.
const (
	EventConfigSnapshot EventKind = "config_snapshot"
	EventEpochStart     EventKind = "epoch_start"
	EventEpochEnd       EventKind = "epoch_end"
	EventManualAward    EventKind = "manual_award"
	EventManualRemoval  EventKind = "manual_removal"
	EventBlacklistSet   EventKind = "blacklist_set"
)

// Event is the unified inbound event. Exactly one payload pointer is set,
// matching Kind. Events arrive in non-decreasing (BlockNumber, LogIndex)
// order and that order is final: no reorg handling happens here.
type Event struct {
	Kind           EventKind
	BlockNumber    uint64
	BlockTimestamp int64  // Unix seconds, always present
	Timestamp      int64  // event timestamp, 0 when the log carried none
	LogIndex       uint32
	TxHash         string
	Source         string // emitting contract address

	Balance   *BalancePayload
	Reserve   *Reserve
	Transfer  *TransferPayload
	Liquidity *LiquidityPayload
	Lock      *LockPayload
	NFT       *NFTPayload
	Config    *Config
	Epoch     *EpochPayload
	Manual    *ManualPayload
	Blacklist *BlacklistPayload
}

// Time returns the event timestamp, falling back to the enclosing block's
// timestamp when the log carried none.
func (e *Event) Time() int64 {
	if e.Timestamp > 0 {
		return e.Timestamp
	}
	return e.BlockTimestamp
}

// BalancePayload covers supply, withdraw, borrow and repay events.
type BalancePayload struct {
	UserID       string
	ReserveID    string
	Amount       string // token wei, decimal string
	AmountScaled string // scaled delta, decimal string
}

// TransferPayload covers scaled-balance transfers of interest-bearing or
// debt tokens.
type TransferPayload struct {
	From         string
	To           string
	ReserveID    string
	AmountScaled string
	Debt         bool // debt-token transfer adjusts borrow balances
}

// LiquidityPayload carries the post-event USD value of a user's LP
// position in one pool.
type LiquidityPayload struct {
	UserID   string
	PoolID   string
	ValueUSD decimal.Decimal
}

// LockPayload covers veNFT lock lifecycle events.
type LockPayload struct {
	UserID     string
	TokenID    uint64
	Amount     string // locked amount, token wei, decimal string
	UnlockTime int64
	Permanent  bool
}

// NFTPayload covers partner-collection NFT transfers.
type NFTPayload struct {
	Collection string
	From       string
	To         string
	TokenID    uint64
}

// EpochPayload covers epoch start and end events.
type EpochPayload struct {
	Number             uint64
	ScheduledStartTime int64
	ScheduledEndTime   int64
}

// ManualPayload covers admin award and removal of points.
type ManualPayload struct {
	UserID string
	Points float64
	Reason string
}

// BlacklistPayload toggles a user's blacklist status.
type BlacklistPayload struct {
	UserID      string
	Blacklisted bool
}
