package domain

import "strconv"

// Scope identifies one ranking namespace: a specific epoch (its decimal
// number), the all-time scope (epoch 0), or the externally consumed
// global mirror of the currently active epoch.
type Scope string

// Reserved scopes.
const (
	AllTimeScope Scope = "0"
	GlobalScope  Scope = "global"
)

// EpochScope returns the scope for a specific epoch number.
func EpochScope(number uint64) Scope {
	return Scope(strconv.FormatUint(number, 10))
}

// UserLeaderboardState is the per-user denormalized multiplier and
// lifetime-points row, continuously updated across epochs.
type UserLeaderboardState struct {
	UserID string // PRIMARY KEY

	NFTCount         int
	NFTMultiplierBps int64

	VotingPower     float64 // token units, decayed
	VPTierIndex     int     // -1 when no tier matches
	VPMultiplierBps int64

	CombinedMultiplierBps int64 // capped additive composition

	LifetimePoints     float64
	EpochsParticipated int
	LastEpochNumber    uint64

	Blacklisted bool
}

// UserIndex records a user's current score and histogram position within
// one scope. BucketIndex is -1 when the score is zero. The row is deleted
// when the user is removed from the scope entirely.
type UserIndex struct {
	Scope       Scope
	UserID      string
	Points      float64
	BucketIndex int
}

// ScoreBucket is one bin of the approximate histogram: the number of users
// whose score falls in [Lower, Upper). Counts saturate and never go
// negative.
type ScoreBucket struct {
	Scope Scope
	Index int
	Lower float64
	Upper float64
	Count int32
}

// TopKEntry is one row of the exactly-ranked leaderboard head.
type TopKEntry struct {
	UserID string
	Points float64
	Rank   int // 1-based
}

// TopK is the exact top of one scope, sorted by points descending with
// ascending-user-id tie break. Never exceeds the configured capacity.
type TopK struct {
	Scope   Scope
	Entries []TopKEntry
}

// LeaderboardTotals counts users with strictly positive score per scope.
type LeaderboardTotals struct {
	Scope        Scope
	Participants int64
}
