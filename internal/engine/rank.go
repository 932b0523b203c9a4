package engine

import (
	"cmp"
	"fmt"
	"sort"
)

// SignFilter selects which side of zero survives ranking.
type SignFilter string

const (
	// SignPositive keeps scores strictly above zero (recommend).
	SignPositive SignFilter = "positive"
	// SignNegative keeps scores strictly below zero ("games you'd hate").
	SignNegative SignFilter = "negative"
	// SignNone keeps every non-excluded score.
	SignNone SignFilter = "none"
)

// ParseSignFilter validates a sign filter name. The empty string means SignNone.
func ParseSignFilter(s string) (SignFilter, error) {
	switch SignFilter(s) {
	case SignPositive, SignNegative, SignNone:
		return SignFilter(s), nil
	case "":
		return SignNone, nil
	default:
		return "", fmt.Errorf("%w: unknown sign filter %q", ErrConfiguration, s)
	}
}

func (f SignFilter) keep(v float64) bool {
	switch f {
	case SignPositive:
		return v > 0
	case SignNegative:
		return v < 0
	default:
		return true
	}
}

// RankedItem is one entry of the engine output.
type RankedItem struct {
	// Rank is the dense 1-based position in the final output order.
	Rank int `json:"rank"`
	// ScoreRank is the 1-based position by score among every item that passed the filters.
	ScoreRank int `json:"score_rank"`

	ItemID string `json:"item_id"`
	Score  Score  `json:"score"`

	// Neighbors is how many played items cleared the neighbor cutoff for this item.
	Neighbors int `json:"neighbors"`

	// Because lists the played source items that justify a personalized score.
	Because []string `json:"because,omitempty"`
	// Explanation is set to PopularityExplanation for fallback items.
	Explanation string `json:"explanation,omitempty"`
}

// RankedResult is the ordered engine output. Ownership passes to the caller.
type RankedResult struct {
	Items []RankedItem `json:"items"`

	// Personalized and Fallback count the non-excluded items before sign filtering.
	Personalized int `json:"personalized"`
	Fallback     int `json:"fallback"`

	Stats Stats `json:"stats"`
}

// Stats describes how a result was produced.
type Stats struct {
	ProfileItems int  `json:"profile_items"`
	MatchedItems int  `json:"matched_items"`
	Candidates   int  `json:"candidates"`
	Degenerate   bool `json:"degenerate_profile"`
}

// Comparator orders two items for the final output. It returns a negative number when a sorts
// before b in ascending order. Ties fall back to the item id.
type Comparator func(a, b RankedItem) int

// ByScore orders items by final score value.
func ByScore(a, b RankedItem) int {
	return cmp.Compare(a.Score.Value, b.Score.Value)
}

// RankOptions controls filtering, truncation and output order.
type RankOptions struct {
	Sign  SignFilter
	Limit int

	// Bottom keeps the last Limit items by score instead of the first.
	Bottom bool

	// SortBy orders the kept items. Nil means ByScore.
	SortBy     Comparator
	Descending bool
}

// Rank drops excluded and sign-filtered items, orders the rest by score, truncates to Limit from
// the head (or the tail when Bottom is set), then orders the kept items by SortBy. An empty result
// is a valid answer: the caller decides whether to present it as an error.
func Rank(scores map[string]Score, explanations map[string][]string, opts RankOptions) RankedResult {
	result := RankedResult{Items: []RankedItem{}}

	items := make([]RankedItem, 0, len(scores))
	for id, s := range scores {
		switch s.Kind {
		case PersonalizedScore:
			result.Personalized++
		case PopularityScore:
			result.Fallback++
		default:
			continue
		}
		if !opts.Sign.keep(s.Value) {
			continue
		}

		item := RankedItem{ItemID: id, Score: s}
		if s.Kind == PopularityScore {
			item.Explanation = PopularityExplanation
		} else if because, ok := explanations[id]; ok {
			item.Because = append([]string(nil), because...)
		}
		items = append(items, item)
	}

	sortItems(items, ByScore, true)
	for i := range items {
		items[i].ScoreRank = i + 1
	}

	if opts.Limit > 0 && len(items) > opts.Limit {
		if opts.Bottom {
			items = items[len(items)-opts.Limit:]
		} else {
			items = items[:opts.Limit]
		}
	}

	by := opts.SortBy
	if by == nil {
		by = ByScore
	}
	sortItems(items, by, opts.Descending)
	for i := range items {
		items[i].Rank = i + 1
	}

	result.Items = items
	return result
}

// sortItems orders items by the comparator in the requested direction. Equal keys are always
// ordered by ascending item id, whatever the direction.
func sortItems(items []RankedItem, by Comparator, descending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		c := by(items[i], items[j])
		if descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return items[i].ItemID < items[j].ItemID
	})
}
