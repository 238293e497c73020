// Package chain provides best-effort chain reads used to backfill
// ownership facts the event stream does not carry directly, plus the live
// websocket event feed. Read failures never abort event processing; the
// caller keeps its previously known state.
package chain

import "context"

// Position describes one LP position read from chain.
type Position struct {
	PoolID   string
	ValueUSD float64
}

// Reader is the chain-read collaborator.
type Reader interface {
	// BalanceOf returns the holder's token balance in a collection.
	BalanceOf(ctx context.Context, collection, holder string) (int64, error)

	// OwnedTokenIDs returns the token IDs the holder owns in a
	// collection, for collections that only expose enumeration.
	OwnedTokenIDs(ctx context.Context, collection, holder string) ([]uint64, error)

	// PositionDetails returns the holder's LP positions in a pool.
	PositionDetails(ctx context.Context, pool, holder string) ([]Position, error)
}
