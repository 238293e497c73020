package ingestion

import (
	"context"
	"fmt"
	"log"

	"lending-points-lab/internal/domain"
)

// Applier applies one event. Implemented by the processor.
type Applier interface {
	Apply(ctx context.Context, ev *domain.Event) error
}

// Source yields an ordered event stream. Implemented by the websocket feed
// client and by fixture loaders.
type Source interface {
	Events() <-chan *domain.Event
}

// Runner drains a source into an applier one event at a time, enforcing
// stream ordering as it goes.
type Runner struct {
	source  Source
	applier Applier
	logger  *log.Logger

	lastBlock uint64
	lastLog   uint32
	seen      bool
}

// NewRunner creates a Runner. Logger is optional.
func NewRunner(source Source, applier Applier, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{source: source, applier: applier, logger: logger}
}

// Run consumes events until the source channel closes or the context is
// cancelled. An out-of-order event or a failed apply stops the run.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.source.Events():
			if !ok {
				return nil
			}
			if err := r.apply(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) apply(ctx context.Context, ev *domain.Event) error {
	if ev == nil {
		return nil
	}
	if r.seen {
		if ev.BlockNumber < r.lastBlock ||
			(ev.BlockNumber == r.lastBlock && ev.LogIndex < r.lastLog) {
			return fmt.Errorf("%w: block %d log %d after block %d log %d",
				ErrInvalidOrdering, ev.BlockNumber, ev.LogIndex, r.lastBlock, r.lastLog)
		}
	}
	if err := r.applier.Apply(ctx, ev); err != nil {
		return fmt.Errorf("apply %s at block %d: %w", ev.Kind, ev.BlockNumber, err)
	}
	r.lastBlock = ev.BlockNumber
	r.lastLog = ev.LogIndex
	r.seen = true
	return nil
}
