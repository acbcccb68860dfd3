package watch

import (
	"sort"

	"github.com/hellno/maschine-sub000/internal/domain"
)

// MergeLogs combines log entries from the two polling loops into one
// client-visible list. Entries are deduplicated by log id (first
// occurrence wins) and ordered by creation time.
func MergeLogs(lists ...[]domain.DeploymentLog) []domain.DeploymentLog {
	seen := make(map[string]struct{})
	merged := make([]domain.DeploymentLog, 0)
	for _, list := range lists {
		for _, entry := range list {
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			seen[entry.ID] = struct{}{}
			merged = append(merged, entry)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}
