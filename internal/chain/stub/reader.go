// Package stub provides a deterministic in-memory chain.Reader for tests
// and offline replay.
package stub

import (
	"context"
	"errors"
	"fmt"

	"lending-points-lab/internal/chain"
)

// ErrUnavailable simulates a failed chain read.
var ErrUnavailable = errors.New("chain read unavailable")

// Reader implements chain.Reader from fixed maps.
type Reader struct {
	// Balances maps "collection|holder" to balance.
	Balances map[string]int64
	// TokenIDs maps "collection|holder" to owned token IDs.
	TokenIDs map[string][]uint64
	// Positions maps "pool|holder" to LP positions.
	Positions map[string][]chain.Position
	// Fail makes every read return ErrUnavailable.
	Fail bool
	// FailBalanceOf makes only BalanceOf fail, simulating a collection
	// without a balance query.
	FailBalanceOf bool
}

// NewReader creates an empty stub reader.
func NewReader() *Reader {
	return &Reader{
		Balances:  make(map[string]int64),
		TokenIDs:  make(map[string][]uint64),
		Positions: make(map[string][]chain.Position),
	}
}

// Key builds the lookup key used by the stub maps.
func Key(a, b string) string {
	return fmt.Sprintf("%s|%s", a, b)
}

// BalanceOf returns the stubbed balance.
func (r *Reader) BalanceOf(_ context.Context, collection, holder string) (int64, error) {
	if r.Fail || r.FailBalanceOf {
		return 0, ErrUnavailable
	}
	return r.Balances[Key(collection, holder)], nil
}

// OwnedTokenIDs returns the stubbed token IDs.
func (r *Reader) OwnedTokenIDs(_ context.Context, collection, holder string) ([]uint64, error) {
	if r.Fail {
		return nil, ErrUnavailable
	}
	return r.TokenIDs[Key(collection, holder)], nil
}

// PositionDetails returns the stubbed positions.
func (r *Reader) PositionDetails(_ context.Context, pool, holder string) ([]chain.Position, error) {
	if r.Fail {
		return nil, ErrUnavailable
	}
	return r.Positions[Key(pool, holder)], nil
}
