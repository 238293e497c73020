package ingestion

import (
	"context"
	"errors"
	"testing"

	"lending-points-lab/internal/domain"
)

// recordingApplier collects every applied event in order.
type recordingApplier struct {
	applied []*domain.Event
	err     error
}

func (a *recordingApplier) Apply(_ context.Context, ev *domain.Event) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, ev)
	return nil
}

// sliceSource replays a fixed slice over a channel and closes it.
type sliceSource struct {
	ch chan *domain.Event
}

func newSliceSource(events []*domain.Event) *sliceSource {
	ch := make(chan *domain.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &sliceSource{ch: ch}
}

func (s *sliceSource) Events() <-chan *domain.Event {
	return s.ch
}

func ev(block uint64, logIndex uint32) *domain.Event {
	return &domain.Event{Kind: domain.EventSupply, BlockNumber: block, LogIndex: logIndex}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b *domain.Event
		want int
	}{
		{ev(1, 0), ev(2, 0), -1},
		{ev(2, 0), ev(1, 5), 1},
		{ev(1, 1), ev(1, 2), -1},
		{ev(1, 2), ev(1, 1), 1},
		{ev(1, 1), ev(1, 1), 0},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare((%d,%d), (%d,%d)): expected %d, got %d",
				c.a.BlockNumber, c.a.LogIndex, c.b.BlockNumber, c.b.LogIndex, c.want, got)
		}
	}
}

func TestSort(t *testing.T) {
	events := []*domain.Event{ev(3, 0), ev(1, 2), ev(1, 1), ev(2, 0)}
	Sort(events)

	want := []struct {
		block uint64
		log   uint32
	}{{1, 1}, {1, 2}, {2, 0}, {3, 0}}
	for i, w := range want {
		if events[i].BlockNumber != w.block || events[i].LogIndex != w.log {
			t.Errorf("position %d: expected (%d,%d), got (%d,%d)",
				i, w.block, w.log, events[i].BlockNumber, events[i].LogIndex)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]*domain.Event{ev(1, 0), ev(1, 0), ev(2, 3)}); err != nil {
		t.Errorf("expected ordered slice to validate, got %v", err)
	}
	if err := Validate([]*domain.Event{ev(2, 0), ev(1, 0)}); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("expected ErrInvalidOrdering, got %v", err)
	}
	if err := Validate(nil); err != nil {
		t.Errorf("expected empty slice to validate, got %v", err)
	}
}

func TestRunner_DrainsInOrder(t *testing.T) {
	applier := &recordingApplier{}
	events := []*domain.Event{ev(1, 0), ev(1, 1), ev(2, 0)}
	runner := NewRunner(newSliceSource(events), applier, nil)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(applier.applied) != 3 {
		t.Errorf("expected 3 applied events, got %d", len(applier.applied))
	}
}

func TestRunner_RejectsRegression(t *testing.T) {
	applier := &recordingApplier{}
	events := []*domain.Event{ev(5, 2), ev(5, 1)}
	runner := NewRunner(newSliceSource(events), applier, nil)

	if err := runner.Run(context.Background()); !errors.Is(err, ErrInvalidOrdering) {
		t.Fatalf("expected ErrInvalidOrdering, got %v", err)
	}
	if len(applier.applied) != 1 {
		t.Errorf("expected the stream stopped after 1 event, got %d", len(applier.applied))
	}
}

func TestRunner_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An unbuffered, never-closed source: only cancellation can end the run.
	src := &sliceSource{ch: make(chan *domain.Event)}
	runner := NewRunner(src, &recordingApplier{}, nil)
	if err := runner.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReplayer_ValidatesFirst(t *testing.T) {
	applier := &recordingApplier{}
	replayer := NewReplayer(applier, nil)

	err := replayer.Replay(context.Background(), []*domain.Event{ev(2, 0), ev(1, 0)})
	if !errors.Is(err, ErrInvalidOrdering) {
		t.Fatalf("expected ErrInvalidOrdering, got %v", err)
	}
	if len(applier.applied) != 0 {
		t.Errorf("expected nothing applied on invalid input, got %d", len(applier.applied))
	}
}

func TestReplayer_AppliesAll(t *testing.T) {
	applier := &recordingApplier{}
	replayer := NewReplayer(applier, nil)

	events := []*domain.Event{ev(1, 0), ev(2, 0), ev(2, 1)}
	if err := replayer.Replay(context.Background(), events); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(applier.applied) != 3 {
		t.Errorf("expected 3 applied events, got %d", len(applier.applied))
	}
}

func TestReplayer_StopsOnApplyError(t *testing.T) {
	applyErr := errors.New("boom")
	applier := &recordingApplier{err: applyErr}
	replayer := NewReplayer(applier, nil)

	err := replayer.Replay(context.Background(), []*domain.Event{ev(1, 0)})
	if !errors.Is(err, applyErr) {
		t.Errorf("expected wrapped apply error, got %v", err)
	}
}
