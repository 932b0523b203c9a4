package engine

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/pkg/models"
)

// Params are the per-request knobs of the recommendation pipeline.
type Params struct {
	// UsageCutoff is the minimum usage, in minutes, for a record to count.
	UsageCutoff float64 `json:"usage_cutoff" validate:"gte=0"`
	// ZScore standardizes the log usage within the profile.
	ZScore bool `json:"z_score"`

	// MinNeighbors is how many played items must clear NeighborCutoff for a personalized score.
	MinNeighbors int `json:"min_neighbors" validate:"gte=1"`
	// NeighborCutoff is the similarity at or above which a played item is a neighbor.
	NeighborCutoff float64 `json:"neighbor_cutoff" validate:"gte=-1,lte=1"`

	// TopK is the number of played items reported as the reason for a recommendation.
	TopK int `json:"top_k" validate:"gte=1"`

	// UsePopularity fills items without a prediction with their popularity z-score.
	UsePopularity bool `json:"use_popularity"`

	Sign       SignFilter `json:"sign" validate:"oneof=positive negative none"`
	Limit      int        `json:"limit" validate:"gte=1"`
	Bottom     bool       `json:"bottom"`
	Descending bool       `json:"descending"`
	SortBy     Comparator `json:"-"`
}

// DefaultParams returns the settings the public tool ships with.
func DefaultParams() Params {
	return Params{
		UsageCutoff:    DefaultUsageCutoff,
		ZScore:         true,
		MinNeighbors:   DefaultMinNeighbors,
		NeighborCutoff: DefaultNeighborCutoff,
		TopK:           DefaultTopK,
		UsePopularity:  true,
		Sign:           SignNone,
		Limit:          10,
		Descending:     true,
	}
}

// Engine runs the item-based pipeline against one similarity model. It holds only immutable state
// and is safe for concurrent use.
type Engine struct {
	matrix     *Matrix
	popularity map[string]float64
	sameDomain bool
	validate   *validator.Validate
	logger     *logrus.Logger
}

// New creates an engine over matrix. popularity maps target ids to global popularity z-scores and is
// copied. sameDomain removes the user's own items from the candidate rows.
func New(matrix *Matrix, popularity map[string]float64, sameDomain bool, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		matrix:     matrix,
		popularity: maps.Clone(popularity),
		sameDomain: sameDomain,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Matrix returns the similarity model the engine reads.
func (e *Engine) Matrix() *Matrix { return e.matrix }

// SameDomain reports whether source and target items come from the same catalog.
func (e *Engine) SameDomain() bool { return e.sameDomain }

// PopularityOf returns the popularity z-score of a target item.
func (e *Engine) PopularityOf(id string) (float64, bool) {
	z, ok := e.popularity[id]
	return z, ok
}

// Validate rejects parameters before any computation runs.
func (e *Engine) Validate(p Params) error {
	if err := e.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s fails %s=%s", ErrConfiguration, f.Field(), f.Tag(), f.Param())
		}
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if _, cols := e.matrix.Dims(); p.MinNeighbors > cols {
		return fmt.Errorf("%w: min_neighbors %d exceeds the %d source items of the model",
			ErrConfiguration, p.MinNeighbors, cols)
	}
	return nil
}

// Recommend turns raw usage into a ranked, explained list of target items.
//
// It returns ErrConfiguration or ErrInvalidInput before doing any work, ErrNoUsage when no record
// survives the usage cutoff, and a non-nil empty result together with ErrInsufficientCandidates
// when every item was excluded or filtered out.
func (e *Engine) Recommend(records []models.UsageRecord, p Params) (*RankedResult, error) {
	var stats Stats

	if err := e.Validate(p); err != nil {
		return nil, err
	}
	if err := ValidateRecords(records); err != nil {
		return nil, err
	}

	profile, err := Normalize(records, p.UsageCutoff, p.ZScore)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			return nil, fmt.Errorf("%w: %w", ErrNoUsage, err)
		}
		return nil, err
	}
	stats.ProfileItems = profile.Len()
	stats.Degenerate = profile.Degenerate

	view := e.matrix.Columns(profile.IDs())
	if e.sameDomain {
		owned := make([]string, len(records))
		for i, r := range records {
			owned[i] = r.ItemID
		}
		view = view.ExcludeRows(owned)
	}
	stats.MatchedItems = view.NumCols()

	counts := CountNeighbors(view, p.NeighborCutoff)
	candidates := SelectCandidates(view, counts, p.MinNeighbors)
	stats.Candidates = len(candidates)

	var (
		predictions  map[string]float64
		explanations map[string][]string
	)
	if len(candidates) > 0 {
		predictions = Predict(view, candidates, profile)
		explanations = Explain(view, candidates, p.TopK)
	}

	scores := Blend(predictions, view.RowIDs(), e.popularity, p.UsePopularity)
	result := Rank(scores, explanations, RankOptions{
		Sign:       p.Sign,
		Limit:      p.Limit,
		Bottom:     p.Bottom,
		SortBy:     p.SortBy,
		Descending: p.Descending,
	})

	for i := range result.Items {
		result.Items[i].Neighbors = counts[result.Items[i].ItemID]
	}
	result.Stats = stats

	e.logger.WithFields(logrus.Fields{
		"profile_items": stats.ProfileItems,
		"matched_items": stats.MatchedItems,
		"candidates":    stats.Candidates,
		"personalized":  result.Personalized,
		"fallback":      result.Fallback,
		"returned":      len(result.Items),
		"degenerate":    stats.Degenerate,
	}).Debug("Recommendation pipeline completed")

	if len(result.Items) == 0 {
		return &result, ErrInsufficientCandidates
	}
	return &result, nil
}

// SimilarItem is a target item and its similarity to a chosen source item.
type SimilarItem struct {
	ItemID     string  `json:"item_id"`
	Similarity float64 `json:"similarity"`
}

// Similar lists the n target items most similar to one source item, or the least similar when
// reverse is set. In same-domain mode the source item itself is left out.
func (e *Engine) Similar(sourceID string, n int, reverse bool) ([]SimilarItem, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: n must be at least 1, got %d", ErrConfiguration, n)
	}
	if !e.matrix.HasColumn(sourceID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, sourceID)
	}

	view := e.matrix.Columns([]string{sourceID})
	if e.sameDomain {
		view = view.ExcludeRows([]string{sourceID})
	}

	items := make([]SimilarItem, view.NumRows())
	for i, id := range view.RowIDs() {
		items[i] = SimilarItem{ItemID: id, Similarity: view.At(i, 0)}
	}

	slices.SortFunc(items, func(a, b SimilarItem) int {
		c := cmp.Compare(b.Similarity, a.Similarity)
		if reverse {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})

	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}
