package domain

// Epoch represents a bounded scoring period.
// Corresponds to the epochs table in PostgreSQL.
// At most one epoch has IsActive=true at any time.
type Epoch struct {
	Number             uint64 // PRIMARY KEY
	StartBlock         uint64
	StartTime          int64 // Unix timestamp in seconds
	EndBlock           uint64 // 0 while the epoch is open
	EndTime            int64  // 0 while the epoch is open
	IsActive           bool
	ScheduledStartTime int64
	ScheduledEndTime   int64
}

// Ended reports whether the epoch has been closed.
func (e *Epoch) Ended() bool {
	return e.EndTime > 0
}

// ContainsBlock reports whether block falls inside the epoch's block range.
// An open epoch contains every block at or after its start block.
func (e *Epoch) ContainsBlock(block uint64) bool {
	if block < e.StartBlock {
		return false
	}
	if e.EndBlock > 0 && block > e.EndBlock {
		return false
	}
	return true
}

// EpochIndexSnapshot holds a reserve's interest indices frozen at epoch end.
// Gap settlement across the boundary uses these instead of the live index.
type EpochIndexSnapshot struct {
	EpochNumber         uint64
	ReserveID           string
	LiquidityIndex      string // ray, decimal string
	VariableBorrowIndex string // ray, decimal string
	FrozenAt            int64  // Unix timestamp of the epoch-end event
}
