package models

// Catalog domains. Source items always come from the video game catalog.
const (
	DomainBoardGames = "boardgames"
	DomainVideoGames = "videogames"
)

// CatalogItem is the display record of a game. Popularity is the z-score of the item's average
// rating across its catalog and is only set for items that can be recommended.
type CatalogItem struct {
	ID          string   `json:"id" db:"id"`
	Domain      string   `json:"domain" db:"domain"`
	Title       string   `json:"title" db:"title"`
	Release     string   `json:"release,omitempty" db:"release"`
	ReleaseYear int      `json:"release_year,omitempty" db:"release_year"`
	Rating      *float64 `json:"rating,omitempty" db:"rating"`
	RatingText  string   `json:"rating_text,omitempty" db:"rating_text"`
	Ranking     *int     `json:"ranking,omitempty" db:"ranking"`
	Tags        []string `json:"tags,omitempty" db:"tags"`
	URL         string   `json:"url,omitempty" db:"url"`
	Thumbnail   string   `json:"thumbnail,omitempty" db:"thumbnail"`
	Popularity  *float64 `json:"-" db:"popularity_z"`
}

type ItemSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ItemsResponse struct {
	Domain string        `json:"domain"`
	Query  string        `json:"query,omitempty"`
	Items  []ItemSummary `json:"items"`
	Total  int           `json:"total"`
}
