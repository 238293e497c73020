// Package main replays a recorded event file against the entity store.
// With --verify the file is applied twice and the resulting leaderboard
// structures are compared, exercising the idempotence contract.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"reflect"
	"time"

	"lending-points-lab/internal/accrual"
	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/ingestion"
	"lending-points-lab/internal/leaderboard"
	"lending-points-lab/internal/processor"
	"lending-points-lab/internal/storage"
	"lending-points-lab/internal/storage/memory"
	"lending-points-lab/internal/storage/migrations"
	pgstore "lending-points-lab/internal/storage/postgres"
)

func main() {
	eventsFile := flag.String("events", "", "JSON event file to replay (required)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", true, "Use in-memory storage")
	verify := flag.Bool("verify", false, "Replay twice and verify the derived state converges")
	scope := flag.String("scope", string(domain.GlobalScope), "Scope to print after replay")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if *eventsFile == "" {
		logger.Fatal("--events is required")
	}

	ctx := context.Background()

	store, cleanup, err := createStore(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create store: %v", err)
	}
	defer cleanup()

	events, err := ingestion.LoadEvents(*eventsFile)
	if err != nil {
		logger.Fatalf("Failed to load events: %v", err)
	}
	ingestion.Sort(events)

	board := leaderboard.New(leaderboard.Options{Store: store, Logger: logger})
	engine := accrual.New(accrual.Options{Store: store, Board: board, Logger: logger})
	proc := processor.New(processor.Options{Store: store, Engine: engine, Board: board, Logger: logger})
	replayer := ingestion.NewReplayer(proc, logger)

	start := time.Now()
	if err := replayer.Replay(ctx, events); err != nil {
		logger.Fatalf("Replay failed: %v", err)
	}
	logger.Printf("First pass: %d events in %v", len(events), time.Since(start))

	if *verify {
		before, err := snapshot(ctx, store, domain.Scope(*scope))
		if err != nil {
			logger.Fatalf("Snapshot failed: %v", err)
		}
		if err := replayer.Replay(ctx, events); err != nil {
			logger.Fatalf("Second pass failed: %v", err)
		}
		after, err := snapshot(ctx, store, domain.Scope(*scope))
		if err != nil {
			logger.Fatalf("Snapshot failed: %v", err)
		}
		if !reflect.DeepEqual(before, after) {
			logger.Fatalf("Replay diverged:\n first: %+v\n second: %+v", before, after)
		}
		logger.Println("Second pass converged to identical derived state")
	}

	printLeaderboard(ctx, store, domain.Scope(*scope), *outputJSON, logger)
}

func createStore(ctx context.Context, postgresDSN string, useMemory bool) (storage.Store, func(), error) {
	if useMemory || postgresDSN == "" {
		return memory.NewStore(), func() {}, nil
	}
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return pgstore.NewStore(pool), pool.Close, nil
}

// replaySnapshot is the derived state compared across replay passes.
type replaySnapshot struct {
	Entries      []domain.TopKEntry
	Participants int64
}

func snapshot(ctx context.Context, store storage.Store, scope domain.Scope) (*replaySnapshot, error) {
	snap := &replaySnapshot{}
	if topk, err := store.GetTopK(ctx, scope); err == nil {
		snap.Entries = topk.Entries
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if totals, err := store.GetTotals(ctx, scope); err == nil {
		snap.Participants = totals.Participants
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return snap, nil
}

func printLeaderboard(ctx context.Context, store storage.Store, scope domain.Scope, asJSON bool, logger *log.Logger) {
	snap, err := snapshot(ctx, store, scope)
	if err != nil {
		logger.Fatalf("Read leaderboard: %v", err)
	}

	if asJSON {
		json.NewEncoder(os.Stdout).Encode(snap)
		return
	}

	fmt.Printf("Scope %s: %d participants\n", scope, snap.Participants)
	for _, e := range snap.Entries {
		fmt.Printf("%4d. %-44s %12.4f\n", e.Rank, e.UserID, e.Points)
	}
}
