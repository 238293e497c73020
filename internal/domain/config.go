package domain

import "github.com/shopspring/decimal"

// VPTier is a voting-power multiplier tier. Tiers are stored in ascending
// MinVotingPower order; the highest tier whose threshold is met applies.
type VPTier struct {
	MinVotingPower float64 // token units
	MultiplierBps  int64
}

// Config holds the global leaderboard parameters. There is exactly one
// Config row; admin snapshot events replace it wholesale.
type Config struct {
	// Accrual rates, basis points of balance per day.
	DepositRateBps     int64
	BorrowRateBps      int64
	VotingPowerRateBps int64
	LPRateBps          int64

	// Fixed daily bonuses, in points.
	SupplyDailyBonus   float64
	BorrowDailyBonus   float64
	RepayDailyBonus    float64
	WithdrawDailyBonus float64

	// Minimum USD value moved in a UTC day to qualify for a daily bonus.
	MinDailyBonusUSD decimal.Decimal

	// Minimum seconds between interest settlements per (user, reserve).
	CooldownSeconds int64

	// NFT multiplier parameters.
	NFTFirstBonusBps  int64
	NFTDecayRatioBps  int64

	// Voting-power multiplier tiers, ascending by MinVotingPower.
	VPTiers []VPTier

	// Block of the admin snapshot event that produced this config.
	UpdatedAtBlock uint64
}
