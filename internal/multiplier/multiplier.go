// Package multiplier resolves the NFT-ownership and voting-power
// multipliers applied to raw points, and their capped composition.
package multiplier

import (
	"math/big"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/raymath"
)

// Basis-point bounds.
const (
	BaseBps        int64 = 10000  // 1.0x
	MaxCombinedBps int64 = 100000 // 10.0x cap
)

// MaxLockSeconds is the maximum veNFT lock duration (4 years); voting
// power decays linearly toward the unlock time over this horizon.
const MaxLockSeconds int64 = 4 * 365 * 86400

// NFTBps returns the NFT-ownership multiplier in basis points: 1.0x plus a
// geometrically decaying bonus per active partnership collection.
func NFTBps(activeCount int, firstBonusBps, decayRatioBps int64) int64 {
	m := BaseBps
	bonus := firstBonusBps
	for i := 0; i < activeCount; i++ {
		m += bonus
		bonus = bonus * decayRatioBps / BaseBps
	}
	return m
}

// VotingPowerBps returns the multiplier of the highest tier whose
// threshold the voting power meets or exceeds, and that tier's index.
// Returns (BaseBps, -1) when no tier matches or none are configured.
// Tiers must be in ascending MinVotingPower order.
func VotingPowerBps(votingPower float64, tiers []domain.VPTier) (int64, int) {
	bps := BaseBps
	idx := -1
	for i, tier := range tiers {
		if votingPower >= tier.MinVotingPower {
			bps = tier.MultiplierBps
			idx = i
		}
	}
	return bps, idx
}

// CombinedBps composes the two multipliers additively above the 1.0x
// baseline, capped at MaxCombinedBps. The result is always within
// [BaseBps, MaxCombinedBps].
func CombinedBps(nftBps, vpBps int64) int64 {
	combined := nftBps + vpBps - BaseBps
	if combined < BaseBps {
		combined = BaseBps
	}
	if combined > MaxCombinedBps {
		combined = MaxCombinedBps
	}
	return combined
}

// VotingPower computes a lock's current voting power in token units.
// Permanent locks hold full power; expired locks hold none; otherwise
// power decays linearly with the seconds remaining until unlock.
func VotingPower(lockedWei *big.Int, unlockTime int64, permanent bool, now int64) float64 {
	locked, _ := raymath.ToDecimal(lockedWei, 18).Float64()
	if permanent {
		return locked
	}
	if unlockTime <= now {
		return 0
	}
	remaining := unlockTime - now
	if remaining > MaxLockSeconds {
		remaining = MaxLockSeconds
	}
	return locked * float64(remaining) / float64(MaxLockSeconds)
}
