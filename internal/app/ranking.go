package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// RankResults keeps the best result per account, orders them by score and assigns
// competition ranks: equal scores share a rank and the next lower score is ranked
// one past the number of results ahead of it ([10,10,8,5] ranks as [1,1,3,4]).
// The input slice is not modified.
func RankResults(results []domain.Result) []domain.Result {
	best := make(map[string]int, len(results))
	ranked := make([]domain.Result, 0, len(results))
	for _, r := range results {
		if i, ok := best[r.AccountID]; ok {
			// first write wins ties
			if r.Score > ranked[i].Score {
				ranked[i] = r
			}
			continue
		}
		best[r.AccountID] = len(ranked)
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].SubmittedAt.Equal(ranked[j].SubmittedAt) {
			return ranked[i].SubmittedAt.Before(ranked[j].SubmittedAt)
		}
		return ranked[i].AccountID < ranked[j].AccountID
	})

	rank := 0
	for i := range ranked {
		if i == 0 || ranked[i].Score != ranked[i-1].Score {
			rank = i + 1
		}
		r := rank
		ranked[i].Rank = &r
	}
	return ranked
}

// SortByRank orders stored results for display: rank first, unranked last.
func SortByRank(results []domain.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := results[i].Rank, results[j].Rank
		switch {
		case ri == nil && rj == nil:
			return results[i].AccountID < results[j].AccountID
		case ri == nil:
			return false
		case rj == nil:
			return true
		case *ri != *rj:
			return *ri < *rj
		}
		return results[i].SubmittedAt.Before(results[j].SubmittedAt)
	})
}
