package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/temcen/goanalog/pkg/models"
)

// DefaultUsageCutoff is the engagement floor in minutes. Shorter sessions are noise, not dislike.
const DefaultUsageCutoff = 10.0

// Intensity is a user's transformed engagement with one source item.
type Intensity struct {
	ItemID string  `json:"item_id"`
	Value  float64 `json:"value"`
}

// Profile is the normalized engagement of one user. It is built once per request and never
// mutated afterwards.
type Profile struct {
	Items []Intensity `json:"items"`

	// Standardized reports whether values were z-scored.
	Standardized bool `json:"standardized"`

	// Degenerate is set when z-scoring was requested but the log values had zero variance.
	// Standardization is skipped in that case and the log values are kept.
	Degenerate bool `json:"degenerate"`
}

// Len returns the number of items in the profile.
func (p Profile) Len() int {
	return len(p.Items)
}

// IDs returns the item ids in profile order.
func (p Profile) IDs() []string {
	ids := make([]string, len(p.Items))
	for i, it := range p.Items {
		ids[i] = it.ItemID
	}
	return ids
}

// Map returns the intensities keyed by item id.
func (p Profile) Map() map[string]float64 {
	m := make(map[string]float64, len(p.Items))
	for _, it := range p.Items {
		m[it.ItemID] = it.Value
	}
	return m
}

// ValidateRecords rejects usage lists the normalizer must never see.
func ValidateRecords(records []models.UsageRecord) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ItemID == "" {
			return fmt.Errorf("%w: record %d has an empty item id", ErrInvalidInput, i)
		}
		if r.Minutes < 0 || math.IsNaN(r.Minutes) || math.IsInf(r.Minutes, 0) {
			return fmt.Errorf("%w: record %s has usage %v", ErrInvalidInput, r.ItemID, r.Minutes)
		}
		if _, dup := seen[r.ItemID]; dup {
			return fmt.Errorf("%w: duplicate item id %s", ErrInvalidInput, r.ItemID)
		}
		seen[r.ItemID] = struct{}{}
	}
	return nil
}

// Normalize drops records below cutoff, log-transforms the remaining usage and, when applyZScore
// is set, standardizes the log values within this profile (population standard deviation).
func Normalize(records []models.UsageRecord, cutoff float64, applyZScore bool) (Profile, error) {
	kept := make([]Intensity, 0, len(records))
	for _, r := range records {
		if r.Minutes < cutoff || r.Minutes <= 0 {
			continue
		}
		kept = append(kept, Intensity{ItemID: r.ItemID, Value: math.Log(r.Minutes)})
	}

	if len(kept) == 0 {
		return Profile{}, fmt.Errorf("%w: 0 of %d records reach %v minutes", ErrInsufficientData, len(records), cutoff)
	}

	profile := Profile{Items: kept}
	if !applyZScore {
		return profile, nil
	}

	values := make([]float64, len(kept))
	for i, it := range kept {
		values[i] = it.Value
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	std := math.Sqrt(variance)
	if std < zeroVariance {
		profile.Degenerate = true
		return profile, nil
	}

	for i := range profile.Items {
		profile.Items[i].Value = (values[i] - mean) / std
	}
	profile.Standardized = true

	return profile, nil
}

// zeroVariance is the standard deviation below which a set of values is treated as constant.
const zeroVariance = 1e-12
