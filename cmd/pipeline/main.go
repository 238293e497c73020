// Package main runs a deterministic end-to-end exercise of the points and
// leaderboard engines on in-memory storage: a synthetic event stream of
// config, epochs, reserves and user activity is applied in order, then the
// resulting leaderboard is printed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"lending-points-lab/internal/accrual"
	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/ingestion"
	"lending-points-lab/internal/leaderboard"
	"lending-points-lab/internal/processor"
	"lending-points-lab/internal/storage/memory"
)

const (
	rayOne  = "1000000000000000000000000000"
	dayUnix = int64(86400)
)

func main() {
	users := flag.Int("users", 25, "Number of synthetic users")
	days := flag.Int("days", 7, "Days of activity to simulate")
	verbose := flag.Bool("verbose", false, "Log every applied event")
	flag.Parse()

	out := io.Discard
	if *verbose {
		out = os.Stderr
	}
	logger := log.New(out, "[pipeline] ", log.LstdFlags)

	ctx := context.Background()
	store := memory.NewStore()

	board := leaderboard.New(leaderboard.Options{Store: store, Logger: logger})
	engine := accrual.New(accrual.Options{Store: store, Board: board, Logger: logger})
	proc := processor.New(processor.Options{Store: store, Engine: engine, Board: board, Logger: logger})

	events := buildFixtures(*users, *days)
	ingestion.Sort(events)

	replayer := ingestion.NewReplayer(proc, logger)
	if err := replayer.Replay(ctx, events); err != nil {
		log.Fatalf("apply fixtures: %v", err)
	}

	printScope(ctx, board, domain.GlobalScope)
	printScope(ctx, board, domain.AllTimeScope)
}

// buildFixtures produces an ordered stream: config, a reserve, an epoch,
// then daily supply/borrow traffic with staggered sizes so ranks differ.
func buildFixtures(users, days int) []*domain.Event {
	baseTime := int64(1_700_000_000)
	block := uint64(1000)
	var events []*domain.Event

	next := func() (uint64, int64) {
		block++
		return block, baseTime + int64(block-1000)*12
	}

	b, ts := next()
	events = append(events, &domain.Event{
		Kind: domain.EventConfigSnapshot, BlockNumber: b, BlockTimestamp: ts,
		TxHash: fmt.Sprintf("0xcfg%d", b),
		Config: &domain.Config{
			DepositRateBps:   100,
			BorrowRateBps:    200,
			SupplyDailyBonus: 5,
			MinDailyBonusUSD: decimal.NewFromInt(100),
			NFTFirstBonusBps: 5000,
			NFTDecayRatioBps: 5000,
			VPTiers: []domain.VPTier{
				{MinVotingPower: 100, MultiplierBps: 12000},
				{MinVotingPower: 1000, MultiplierBps: 15000},
			},
		},
	})

	b, ts = next()
	events = append(events, &domain.Event{
		Kind: domain.EventReserveSync, BlockNumber: b, BlockTimestamp: ts,
		TxHash: fmt.Sprintf("0xrsv%d", b),
		Reserve: &domain.Reserve{
			ID: "0xusdc", Symbol: "USDC", Decimals: 6,
			LiquidityIndex:      rayOne,
			VariableBorrowIndex: rayOne,
			PriceUSD:            decimal.NewFromInt(1),
		},
	})

	b, ts = next()
	events = append(events, &domain.Event{
		Kind: domain.EventEpochStart, BlockNumber: b, BlockTimestamp: ts,
		TxHash: fmt.Sprintf("0xepo%d", b),
		Epoch:  &domain.EpochPayload{Number: 1, ScheduledStartTime: ts, ScheduledEndTime: ts + int64(days)*dayUnix},
	})

	for day := 0; day < days; day++ {
		for u := 0; u < users; u++ {
			userID := fmt.Sprintf("0xuser%03d", u)
			amount := int64(u+1) * 1_000_000 // (u+1) USDC in 6-decimals
			b, _ = next()
			ts = baseTime + int64(day)*dayUnix + int64(u)*60
			events = append(events, &domain.Event{
				Kind: domain.EventSupply, BlockNumber: b, BlockTimestamp: ts,
				TxHash: fmt.Sprintf("0xsup%d", b),
				Balance: &domain.BalancePayload{
					UserID: userID, ReserveID: "0xusdc",
					Amount:       fmt.Sprintf("%d", amount),
					AmountScaled: fmt.Sprintf("%d", amount),
				},
			})
		}
	}

	b, _ = next()
	events = append(events, &domain.Event{
		Kind: domain.EventEpochEnd, BlockNumber: b,
		BlockTimestamp: baseTime + int64(days)*dayUnix,
		TxHash:         fmt.Sprintf("0xepe%d", b),
		Epoch:          &domain.EpochPayload{Number: 1},
	})
	return events
}

func printScope(ctx context.Context, board *leaderboard.Facade, scope domain.Scope) {
	entries, err := board.TopK(ctx, scope)
	if err != nil {
		log.Fatalf("read topk: %v", err)
	}
	count, err := board.Participants(ctx, scope)
	if err != nil {
		log.Fatalf("read totals: %v", err)
	}

	fmt.Printf("\n=== Scope %s (%d participants) ===\n", scope, count)
	for i, e := range entries {
		if i >= 10 {
			fmt.Printf("  ... %d more\n", len(entries)-i)
			break
		}
		fmt.Printf("%4d. %-12s %12.4f\n", e.Rank, e.UserID, e.Points)
	}
}
