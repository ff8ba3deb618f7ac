package processor

import (
	"sort"

	"fundingflow/models"
)

// Merge folds freshly crawled funding records into the persisted history and
// returns the canonical sequence: unique by FundingTime, ascending. When a
// settlement appears on both sides the history copy wins, so a re-fetched
// overlap can never rewrite what was already persisted. Merging the same
// fresh batch twice yields the same result.
func Merge(history, fresh []models.FundingRecord) []models.FundingRecord {
	merged := make([]models.FundingRecord, 0, len(history)+len(fresh))
	seen := make(map[int64]struct{}, len(history)+len(fresh))

	keep := func(records []models.FundingRecord) {
		for _, r := range records {
			if _, ok := seen[r.FundingTime]; ok {
				continue
			}
			seen[r.FundingTime] = struct{}{}
			merged = append(merged, r)
		}
	}
	keep(history)
	keep(fresh)

	sort.Slice(merged, func(i, j int) bool { return merged[i].FundingTime < merged[j].FundingTime })
	return merged
}
