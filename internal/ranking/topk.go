package ranking

import (
	"sort"

	"lending-points-lab/internal/domain"
)

// TopKCapacity is the exact-ranking head size per scope.
const TopKCapacity = 100

// mergeTopK merges one updated (userID, points) pair into an already
// sorted entry set, re-sorts with the total order (points DESC, userID
// ASC) and truncates to capacity. Returns the new entry set and the user
// IDs that fell out.
func mergeTopK(entries []domain.TopKEntry, userID string, points float64) ([]domain.TopKEntry, []string) {
	merged := make([]domain.TopKEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.UserID == userID {
			continue
		}
		merged = append(merged, e)
	}
	merged = append(merged, domain.TopKEntry{UserID: userID, Points: points})

	sortEntries(merged)

	var evicted []string
	if len(merged) > TopKCapacity {
		for _, e := range merged[TopKCapacity:] {
			evicted = append(evicted, e.UserID)
		}
		merged = merged[:TopKCapacity]
	}
	renumber(merged)
	return merged, evicted
}

// dropFromTopK removes a user from the entry set if present. Reports
// whether the set changed.
func dropFromTopK(entries []domain.TopKEntry, userID string) ([]domain.TopKEntry, bool) {
	result := make([]domain.TopKEntry, 0, len(entries))
	removed := false
	for _, e := range entries {
		if e.UserID == userID {
			removed = true
			continue
		}
		result = append(result, e)
	}
	if removed {
		renumber(result)
	}
	return result, removed
}

// sortEntries applies the total order: points descending, ties broken by
// ascending user ID for determinism.
func sortEntries(entries []domain.TopKEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UserID < entries[j].UserID
	})
}

func renumber(entries []domain.TopKEntry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
