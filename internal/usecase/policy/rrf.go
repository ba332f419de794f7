package policy

import "sort"

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges ranked id lists: score(id) = sum of 1/(k + rank_i(id)).
// Equal fused scores are ordered by id ascending, so the result is deterministic.
func fuseRRF(topK int, rankings ...[]string) []string {
	scores := make(map[string]float64)
	for _, ranking := range rankings {
		for rank, id := range ranking {
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if len(ids) > topK {
		ids = ids[:topK]
	}
	return ids
}
