package multiplier

import (
	"math/big"
	"testing"

	"lending-points-lab/internal/domain"
)

func TestNFTBps_ZeroCollections(t *testing.T) {
	if got := NFTBps(0, 60000, 10000); got != BaseBps {
		t.Errorf("expected base multiplier for zero collections, got %d", got)
	}
}

func TestNFTBps_GeometricDecay(t *testing.T) {
	// firstBonus=2000, decay=50%: 10000 + 2000 + 1000 + 500
	if got := NFTBps(3, 2000, 5000); got != 13500 {
		t.Errorf("expected 13500, got %d", got)
	}
}

func TestNFTBps_FullDecayRatioKeepsBonusFlat(t *testing.T) {
	// decay ratio of 100% adds the same bonus per collection.
	if got := NFTBps(2, 60000, 10000); got != 10000+60000+60000 {
		t.Errorf("expected 130000, got %d", got)
	}
}

func TestVotingPowerBps_TierScan(t *testing.T) {
	tiers := []domain.VPTier{
		{MinVotingPower: 100, MultiplierBps: 11000},
		{MinVotingPower: 1000, MultiplierBps: 15000},
		{MinVotingPower: 10000, MultiplierBps: 20000},
	}

	cases := []struct {
		vp      float64
		wantBps int64
		wantIdx int
	}{
		{0, BaseBps, -1},
		{99.9, BaseBps, -1},
		{100, 11000, 0},
		{999, 11000, 0},
		{1000, 15000, 1},
		{50000, 20000, 2},
	}
	for _, c := range cases {
		bps, idx := VotingPowerBps(c.vp, tiers)
		if bps != c.wantBps || idx != c.wantIdx {
			t.Errorf("vp %f: expected (%d, %d), got (%d, %d)", c.vp, c.wantBps, c.wantIdx, bps, idx)
		}
	}
}

func TestVotingPowerBps_NoTiers(t *testing.T) {
	bps, idx := VotingPowerBps(1e18, nil)
	if bps != BaseBps || idx != -1 {
		t.Errorf("expected (%d, -1) with no tiers, got (%d, %d)", BaseBps, bps, idx)
	}
}

func TestCombinedBps_Cap(t *testing.T) {
	// One NFT partnership with firstBonus=60000 plus base VP tier: the
	// additive composition exceeds the cap and clamps to 10x.
	nft := NFTBps(1, 60000, 10000)
	vp, _ := VotingPowerBps(1000, []domain.VPTier{{MinVotingPower: 0, MultiplierBps: 10000}})

	if nft != 70000 {
		t.Fatalf("expected nft multiplier 70000, got %d", nft)
	}
	if got := CombinedBps(nft+40000, vp); got != MaxCombinedBps {
		t.Errorf("expected cap %d, got %d", MaxCombinedBps, got)
	}
}

func TestCombinedBps_Bounds(t *testing.T) {
	if got := CombinedBps(0, 0); got != BaseBps {
		t.Errorf("expected floor %d, got %d", BaseBps, got)
	}
	if got := CombinedBps(12000, 13000); got != 15000 {
		t.Errorf("expected 15000, got %d", got)
	}
}

func TestVotingPower_Permanent(t *testing.T) {
	locked := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	if got := VotingPower(locked, 0, true, 1000); got != 1000 {
		t.Errorf("expected full power for permanent lock, got %f", got)
	}
}

func TestVotingPower_Expired(t *testing.T) {
	locked := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	if got := VotingPower(locked, 500, false, 1000); got != 0 {
		t.Errorf("expected 0 for expired lock, got %f", got)
	}
}

func TestVotingPower_LinearDecay(t *testing.T) {
	locked := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	now := int64(0)
	halfHorizon := MaxLockSeconds / 2

	got := VotingPower(locked, halfHorizon, false, now)
	if got != 500 {
		t.Errorf("expected 500 at half horizon, got %f", got)
	}

	// Beyond the maximum horizon power clamps at full.
	got = VotingPower(locked, MaxLockSeconds*2, false, now)
	if got != 1000 {
		t.Errorf("expected clamp at 1000, got %f", got)
	}
}
