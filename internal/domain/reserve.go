package domain

import "github.com/shopspring/decimal"

// Reserve holds the live interest state of one lending-pool reserve.
// Index and rate values are ray-scaled integers in decimal string form so
// that entity copies and storage round-trips are exact.
type Reserve struct {
	ID                  string // asset address, PRIMARY KEY
	Symbol              string
	Decimals            int32
	LiquidityIndex      string // ray
	VariableBorrowIndex string // ray
	LiquidityRate       string // ray, per year
	VariableBorrowRate  string // ray, per year
	LastUpdateTimestamp int64
	PriceUSD            decimal.Decimal
}

// UserReserveBalance tracks a user's scaled token balances on one reserve,
// maintained from mint/burn/transfer events. Multiplying a scaled balance
// by the reserve's live index yields the current token amount. LastBlock
// and LastLogIndex record the chain position of the last mutation applied,
// so a redelivered event never moves the balance twice.
type UserReserveBalance struct {
	UserID        string
	ReserveID     string
	ScaledDeposit string // scaled integer, decimal string
	ScaledBorrow  string // scaled integer, decimal string
	LastBlock     uint64
	LastLogIndex  uint32
}

// AppliedAt reports whether a mutation at the given chain position has
// already been applied to this row.
func (b *UserReserveBalance) AppliedAt(block uint64, logIndex uint32) bool {
	if b.LastBlock == 0 && b.LastLogIndex == 0 {
		return false
	}
	if block != b.LastBlock {
		return block < b.LastBlock
	}
	return logIndex <= b.LastLogIndex
}
