package engine

import (
	"cmp"
	"slices"
)

// PopularityExplanation is the fixed explanation for items scored by the popularity fallback.
const PopularityExplanation = "popularity-based"

// DefaultTopK is how many played items justify a personalized recommendation.
const DefaultTopK = 3

// Explain picks, for each candidate, the topK source items of the view most similar to it.
// Ties are broken by source id so that explanations are stable across runs.
func Explain(v *View, candidates []string, topK int) map[string][]string {
	out := make(map[string][]string, len(candidates))
	if topK <= 0 || v.NumCols() == 0 {
		return out
	}

	colIDs := v.ColIDs()
	pos := v.rowPositions()

	type neighbor struct {
		id  string
		sim float64
	}

	for _, id := range candidates {
		i, ok := pos[id]
		if !ok {
			continue
		}

		row := v.Row(i)
		neighbors := make([]neighbor, len(row))
		for j, sim := range row {
			neighbors[j] = neighbor{id: colIDs[j], sim: sim}
		}
		slices.SortFunc(neighbors, func(a, b neighbor) int {
			if c := cmp.Compare(b.sim, a.sim); c != 0 {
				return c
			}
			return cmp.Compare(a.id, b.id)
		})

		k := min(topK, len(neighbors))
		because := make([]string, k)
		for n := 0; n < k; n++ {
			because[n] = neighbors[n].id
		}
		out[id] = because
	}
	return out
}
