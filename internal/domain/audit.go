package domain

import "fmt"

// AuditRecord mirrors one processed admin or lifecycle event, keyed
// deterministically by its on-chain position so replays upsert instead of
// duplicating.
type AuditRecord struct {
	ID          string // PRIMARY KEY, TxHash|LogIndex|Kind
	Kind        EventKind
	UserID      string // empty for non-user events
	EpochNumber uint64
	Points      float64 // signed delta for manual events, 0 otherwise
	Reason      string
	BlockNumber uint64
	Timestamp   int64
	TxHash      string
}

// AuditID derives the deterministic audit-record key for an event.
func AuditID(ev *Event) string {
	return fmt.Sprintf("%s|%d|%s", ev.TxHash, ev.LogIndex, ev.Kind)
}

// AccrualRecord is one append-only row of points-accrual history, written
// to the analytics sink for downstream consumption.
type AccrualRecord struct {
	UserID               string
	SourceID             string // reserve, pool or pseudo-reserve ID
	EpochNumber          uint64
	Source               string // deposit | borrow | lp | voting_power | bonus | manual
	RawPoints            float64
	PointsWithMultiplier float64
	MultiplierBps        int64
	Timestamp            int64
	BlockNumber          uint64
}
