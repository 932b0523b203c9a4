package engine

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RawScores computes the signed weighted sum of similarity and intensity for each candidate:
//
//	raw(target) = sum over sources of sim(target, source) * intensity(source)
//
// Similarities can be negative, so the sum is never divided by the sum of weights; such a
// denominator can cancel to zero. Candidates absent from the view are ignored.
func RawScores(v *View, candidates []string, p Profile) map[string]float64 {
	intensities := p.Map()
	weights := make([]float64, v.NumCols())
	for j, id := range v.ColIDs() {
		weights[j] = intensities[id]
	}

	pos := v.rowPositions()
	raw := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		i, ok := pos[id]
		if !ok {
			continue
		}
		if len(weights) == 0 {
			raw[id] = 0
			continue
		}
		raw[id] = floats.Dot(v.Row(i), weights)
	}
	return raw
}

// Predict returns re-standardized, rounded predictions for the candidates so that they share a
// scale with popularity z-scores.
func Predict(v *View, candidates []string, p Profile) map[string]float64 {
	raw := RawScores(v, candidates, p)

	ids := make([]string, 0, len(raw))
	values := make([]float64, 0, len(raw))
	for _, id := range candidates {
		if val, ok := raw[id]; ok {
			ids = append(ids, id)
			values = append(values, val)
		}
	}

	standardized := Standardize(values)
	out := make(map[string]float64, len(ids))
	for i, id := range ids {
		out[id] = Round(standardized[i])
	}
	return out
}

// Standardize rescales values to zero mean and unit population standard deviation. With fewer
// than two values or zero variance the values are only mean-centered, so a lone value becomes 0.
func Standardize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	for i, v := range values {
		if len(values) < 2 || std < zeroVariance {
			out[i] = v - mean
			continue
		}
		out[i] = (v - mean) / std
	}
	return out
}

// ScorePrecision is the number of decimals scores are rounded to before they leave the engine.
const ScorePrecision = 2

// Round rounds to ScorePrecision decimals and folds negative zero into zero.
func Round(v float64) float64 {
	scale := math.Pow(10, ScorePrecision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}
