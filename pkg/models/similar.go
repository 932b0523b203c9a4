package models

type SimilarItem struct {
	ItemID     string   `json:"item_id"`
	Title      string   `json:"title"`
	Similarity float64  `json:"similarity"`
	Release    string   `json:"release,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	RatingText string   `json:"rating_text,omitempty"`
	Ranking    *int     `json:"ranking,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	URL        string   `json:"url,omitempty"`
}

type SimilarResponse struct {
	Domain  string        `json:"domain"`
	Source  ItemSummary   `json:"source"`
	Reverse bool          `json:"reverse"`
	Items   []SimilarItem `json:"items"`
}
