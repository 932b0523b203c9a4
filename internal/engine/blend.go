package engine

// Blend assigns a final score to every item of the universe. Items with a personalized prediction
// keep it. The rest get their popularity z-score when usePopularity is set and the popularity table
// knows them, and are Excluded otherwise.
func Blend(predictions map[string]float64, universe []string, popularity map[string]float64, usePopularity bool) map[string]Score {
	scores := make(map[string]Score, len(universe))
	for _, id := range universe {
		if v, ok := predictions[id]; ok {
			scores[id] = Personalized(v)
			continue
		}
		if !usePopularity {
			scores[id] = Score{}
			continue
		}
		if z, ok := popularity[id]; ok {
			scores[id] = Popularity(Round(z))
			continue
		}
		scores[id] = Score{}
	}
	return scores
}
