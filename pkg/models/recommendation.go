package models

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation modes.
const (
	ModeRecommend = "recommend"
	ModeHate      = "hate"
)

// Sort keys for the final listing.
const (
	SortScore   = "score"
	SortTitle   = "title"
	SortRating  = "rating"
	SortRanking = "ranking"
	SortRelease = "release"
)

type Recommendation struct {
	Rank        int      `json:"rank"`
	ScoreRank   int      `json:"score_rank"`
	ItemID      string   `json:"item_id"`
	Title       string   `json:"title"`
	Score       *float64 `json:"score,omitempty"`
	ScoreKind   string   `json:"score_kind"`
	Because     []string `json:"because,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Release     string   `json:"release,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	RatingText  string   `json:"rating_text,omitempty"`
	Ranking     *int     `json:"ranking,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	URL         string   `json:"url,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
}

// RecommendationOptions are the tunables a caller may override. Pointer fields distinguish an
// explicit false or zero from "use the server default".
type RecommendationOptions struct {
	Limit          int      `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
	MinNeighbors   int      `json:"min_neighbors,omitempty" validate:"omitempty,min=1,max=10"`
	NeighborCutoff *float64 `json:"neighbor_cutoff,omitempty" validate:"omitempty,gte=-1,lte=1"`
	BasedOn        int      `json:"based_on,omitempty" validate:"omitempty,min=1,max=5"`
	UsageCutoff    *float64 `json:"usage_cutoff,omitempty" validate:"omitempty,gte=0"`
	ZScore         *bool    `json:"z_score,omitempty"`
	Popular        *bool    `json:"popular,omitempty"`
	Mode           string   `json:"mode,omitempty" validate:"omitempty,oneof=recommend hate"`
	Sort           string   `json:"sort,omitempty" validate:"omitempty,oneof=score title rating ranking release"`
	Order          string   `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
	Sign           string   `json:"sign,omitempty" validate:"omitempty,oneof=positive negative none"`
	ShowScores     bool     `json:"show_scores,omitempty"`
}

// RecommendationRequest carries usage directly instead of fetching it from Steam.
type RecommendationRequest struct {
	Domain  string                `json:"domain" validate:"required,oneof=bgg steam"`
	Usage   []UsageRecord         `json:"usage" validate:"required,min=1,max=5000,dive"`
	Options RecommendationOptions `json:"options"`
}

type RecommendationResponse struct {
	RequestID       uuid.UUID        `json:"request_id"`
	UserID          string           `json:"user_id,omitempty"`
	Domain          string           `json:"domain"`
	Mode            string           `json:"mode"`
	Recommendations []Recommendation `json:"recommendations"`
	Personalized    int              `json:"personalized"`
	Fallback        int              `json:"fallback"`
	ProfileItems    int              `json:"profile_items"`
	MatchedItems    int              `json:"matched_items"`
	GeneratedAt     time.Time        `json:"generated_at"`
	CacheHit        bool             `json:"cache_hit"`
}
