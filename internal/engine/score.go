package engine

import (
	"encoding/json"
	"fmt"
)

// ScoreKind tags where a final score came from.
type ScoreKind int

const (
	// Excluded items carry no score and never reach the output. It is the zero value.
	Excluded ScoreKind = iota
	// PersonalizedScore comes from the user's own neighbors.
	PersonalizedScore
	// PopularityScore is the global popularity z-score used as a fallback.
	PopularityScore
)

func (k ScoreKind) String() string {
	switch k {
	case PersonalizedScore:
		return "personalized"
	case PopularityScore:
		return "popularity"
	default:
		return "excluded"
	}
}

// MarshalJSON encodes the kind as its name.
func (k ScoreKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *ScoreKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "personalized":
		*k = PersonalizedScore
	case "popularity":
		*k = PopularityScore
	case "excluded":
		*k = Excluded
	default:
		return fmt.Errorf("unknown score kind %q", s)
	}
	return nil
}

// Score is a tagged final score. The zero Score is Excluded.
type Score struct {
	Kind  ScoreKind `json:"kind"`
	Value float64   `json:"value"`
}

// Personalized tags a predicted score.
func Personalized(v float64) Score { return Score{Kind: PersonalizedScore, Value: v} }

// Popularity tags a fallback popularity score.
func Popularity(v float64) Score { return Score{Kind: PopularityScore, Value: v} }

// IsExcluded reports whether the item must be dropped from the output.
func (s Score) IsExcluded() bool { return s.Kind == Excluded }
