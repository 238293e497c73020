// Package ingestion drives ordered event streams into the processor and
// provides deterministic replay.
package ingestion

import (
	"errors"
	"fmt"
	"sort"

	"lending-points-lab/internal/domain"
)

// ErrInvalidOrdering reports an event stream that violates the
// non-decreasing (block, log index) contract.
var ErrInvalidOrdering = errors.New("events out of order")

// Compare orders events by (BlockNumber, LogIndex).
func Compare(a, b *domain.Event) int {
	switch {
	case a.BlockNumber < b.BlockNumber:
		return -1
	case a.BlockNumber > b.BlockNumber:
		return 1
	case a.LogIndex < b.LogIndex:
		return -1
	case a.LogIndex > b.LogIndex:
		return 1
	default:
		return 0
	}
}

// Sort sorts events into processing order in place.
func Sort(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return Compare(events[i], events[j]) < 0
	})
}

// Validate checks that the slice is already in processing order.
func Validate(events []*domain.Event) error {
	for i := 1; i < len(events); i++ {
		if Compare(events[i-1], events[i]) > 0 {
			return fmt.Errorf("%w: event %d (block %d, log %d) before event %d (block %d, log %d)",
				ErrInvalidOrdering,
				i-1, events[i-1].BlockNumber, events[i-1].LogIndex,
				i, events[i].BlockNumber, events[i].LogIndex)
		}
	}
	return nil
}
