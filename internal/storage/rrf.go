package storage

import (
	"sort"

	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
)

// rrfK is the Reciprocal Rank Fusion constant (Cormack et al. 2009).
const rrfK = 60

// FuseRRF merges vector and keyword rankings via Reciprocal Rank Fusion.
// score(d) = sum of 1/(k + rank_i(d) + 1) over the rankings containing d.
// Hits are identified by ID; properties come from the first list that has them.
func FuseRRF(vector, keyword []result.Result, limit int) []result.Result {
	type scored struct {
		res   result.Result
		score float64
		order int
	}

	merged := make(map[string]*scored)
	add := func(list []result.Result) {
		for rank, r := range list {
			s := 1.0 / float64(rrfK+rank+1)
			if existing, ok := merged[r.ID()]; ok {
				existing.score += s
				continue
			}
			merged[r.ID()] = &scored{res: r, score: s, order: len(merged)}
		}
	}
	add(vector)
	add(keyword)

	all := make([]*scored, 0, len(merged))
	for _, s := range merged {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].order < all[j].order
	})

	if len(all) > limit {
		all = all[:limit]
	}
	results := make([]result.Result, len(all))
	for i, s := range all {
		results[i] = result.NewScored(s.res.ID(), s.res.Properties(), s.score)
	}
	return results
}
