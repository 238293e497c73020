package ranking

import (
	"fmt"
	"testing"

	"lending-points-lab/internal/domain"
)

func TestMergeTopK_SortedWithTieBreak(t *testing.T) {
	var entries []domain.TopKEntry
	entries, _ = mergeTopK(entries, "0xbbb", 10)
	entries, _ = mergeTopK(entries, "0xaaa", 10)
	entries, _ = mergeTopK(entries, "0xccc", 20)

	wantOrder := []string{"0xccc", "0xaaa", "0xbbb"}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range wantOrder {
		if entries[i].UserID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, entries[i].UserID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}
}

func TestMergeTopK_UpdateNotDuplicate(t *testing.T) {
	var entries []domain.TopKEntry
	entries, _ = mergeTopK(entries, "0xaaa", 10)
	entries, _ = mergeTopK(entries, "0xbbb", 5)
	entries, _ = mergeTopK(entries, "0xaaa", 3)

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after update, got %d", len(entries))
	}
	if entries[0].UserID != "0xbbb" || entries[1].UserID != "0xaaa" {
		t.Errorf("unexpected order: %s, %s", entries[0].UserID, entries[1].UserID)
	}
	if entries[1].Points != 3 {
		t.Errorf("expected updated points 3, got %f", entries[1].Points)
	}
}

func TestMergeTopK_CapacityAndEviction(t *testing.T) {
	var entries []domain.TopKEntry
	for i := 0; i < TopKCapacity; i++ {
		entries, _ = mergeTopK(entries, fmt.Sprintf("0xuser%03d", i), float64(i+10))
	}
	if len(entries) != TopKCapacity {
		t.Fatalf("expected %d entries, got %d", TopKCapacity, len(entries))
	}

	// A higher score pushes out the current minimum (0xuser000 at 10).
	entries, evicted := mergeTopK(entries, "0xnewcomer", 1000)
	if len(entries) != TopKCapacity {
		t.Fatalf("expected capacity held at %d, got %d", TopKCapacity, len(entries))
	}
	if len(evicted) != 1 || evicted[0] != "0xuser000" {
		t.Errorf("expected eviction of 0xuser000, got %v", evicted)
	}
	if entries[0].UserID != "0xnewcomer" {
		t.Errorf("expected newcomer at head, got %s", entries[0].UserID)
	}

	// A score below the floor evicts the newcomer itself.
	entries, evicted = mergeTopK(entries, "0xtiny", 1)
	if len(evicted) != 1 || evicted[0] != "0xtiny" {
		t.Errorf("expected 0xtiny evicted immediately, got %v", evicted)
	}
	if len(entries) != TopKCapacity {
		t.Errorf("expected capacity held, got %d", len(entries))
	}
}

func TestDropFromTopK(t *testing.T) {
	var entries []domain.TopKEntry
	entries, _ = mergeTopK(entries, "0xaaa", 30)
	entries, _ = mergeTopK(entries, "0xbbb", 20)
	entries, _ = mergeTopK(entries, "0xccc", 10)

	result, removed := dropFromTopK(entries, "0xbbb")
	if !removed {
		t.Fatal("expected removal to be reported")
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result))
	}
	if result[0].UserID != "0xaaa" || result[0].Rank != 1 {
		t.Errorf("expected 0xaaa at rank 1, got %s at %d", result[0].UserID, result[0].Rank)
	}
	if result[1].UserID != "0xccc" || result[1].Rank != 2 {
		t.Errorf("expected 0xccc renumbered to rank 2, got %s at %d", result[1].UserID, result[1].Rank)
	}

	_, removed = dropFromTopK(result, "0xmissing")
	if removed {
		t.Error("expected no removal for absent user")
	}
}
