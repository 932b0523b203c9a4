package engine

// DefaultNeighborCutoff and DefaultMinNeighbors mirror the tuning the model was evaluated with.
const (
	DefaultNeighborCutoff = 0.15
	DefaultMinNeighbors   = 3
)

// CountNeighbors returns, for every target row of the view, how many source columns have a
// similarity of at least cutoff. The count is unweighted.
func CountNeighbors(v *View, cutoff float64) map[string]int {
	counts := make(map[string]int, v.NumRows())
	for i, id := range v.RowIDs() {
		n := 0
		for _, sim := range v.Row(i) {
			if sim >= cutoff {
				n++
			}
		}
		counts[id] = n
	}
	return counts
}

// SelectCandidates returns the target ids, in view row order, whose neighbor count reaches
// minNeighbors. An empty result means no personalized prediction is possible for this request.
func SelectCandidates(v *View, counts map[string]int, minNeighbors int) []string {
	candidates := make([]string, 0, len(counts))
	for _, id := range v.RowIDs() {
		if counts[id] >= minNeighbors {
			candidates = append(candidates, id)
		}
	}
	return candidates
}
