package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"lending-points-lab/internal/domain"
)

// Replayer re-applies a recorded event slice. Because every apply is
// deterministic and idempotent, replaying the same slice over existing
// state converges to the same derived state.
type Replayer struct {
	applier Applier
	logger  *log.Logger
}

// NewReplayer creates a Replayer. Logger is optional.
func NewReplayer(applier Applier, logger *log.Logger) *Replayer {
	if logger == nil {
		logger = log.Default()
	}
	return &Replayer{applier: applier, logger: logger}
}

// Replay validates ordering and applies every event in sequence.
func (r *Replayer) Replay(ctx context.Context, events []*domain.Event) error {
	if err := Validate(events); err != nil {
		return err
	}
	for i, ev := range events {
		if err := r.applier.Apply(ctx, ev); err != nil {
			return fmt.Errorf("replay event %d (%s, block %d): %w", i, ev.Kind, ev.BlockNumber, err)
		}
	}
	r.logger.Printf("replayed %d events", len(events))
	return nil
}

// LoadEvents reads a JSON array of events from a file.
func LoadEvents(path string) ([]*domain.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	var events []*domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse events file: %w", err)
	}
	return events, nil
}
