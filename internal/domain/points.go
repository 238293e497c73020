package domain

import "github.com/shopspring/decimal"

// Pseudo-reserve IDs used for baselines that are not lending reserves.
// Voting-power and LP baselines share the UserReservePoints mechanics.
const (
	VotingPowerReserveID = "vp"
	LPReservePrefix      = "lp:" // followed by the pool address
)

// UserReservePoints is the settlement baseline for one (user, reserve)
// pair: the token amounts last settled and when. The next accrual interval
// is measured from here. LastSettledAt never moves backwards.
type UserReservePoints struct {
	UserID         string
	ReserveID      string
	DepositBalance float64 // token units at last settlement
	BorrowBalance  float64 // token units at last settlement
	LastSettledAt  int64   // Unix timestamp in seconds
}

// DailyMark tracks the USD value moved by one action type within the
// current UTC day, and the last day a bonus was awarded for that action.
// Days are epoch days: floor(unixSeconds/86400), no timezone adjustment.
type DailyMark struct {
	USD          decimal.Decimal // high-water mark for Day
	Day          int64           // epoch day the mark belongs to
	LastAwardDay int64           // last epoch day a bonus was awarded, 0 if never
}

// UserEpochStats accumulates a user's points within one epoch.
// Created lazily on the first points event for that (user, epoch);
// never deleted.
type UserEpochStats struct {
	UserID      string
	EpochNumber uint64

	// Raw points per source.
	DepositPoints     float64
	BorrowPoints      float64
	LPPoints          float64
	VotingPowerPoints float64
	BonusPoints       float64
	ManualPoints      float64

	// Multiplier-applied points per source.
	DepositPointsWithMultiplier     float64
	BorrowPointsWithMultiplier      float64
	LPPointsWithMultiplier          float64
	VotingPowerPointsWithMultiplier float64
	BonusPointsWithMultiplier       float64

	// Daily-bonus tracking per action type.
	SupplyMark   DailyMark
	BorrowMark   DailyMark
	RepayMark    DailyMark
	WithdrawMark DailyMark

	// Composite multiplier last applied, basis points.
	LastMultiplierBps int64

	TotalPoints               float64
	TotalPointsWithMultiplier float64
}
