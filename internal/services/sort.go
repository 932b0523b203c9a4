package services

import (
	"cmp"
	"math"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/temcen/goanalog/internal/catalog"
	"github.com/temcen/goanalog/internal/engine"
	"github.com/temcen/goanalog/pkg/models"
)

// comparator returns the engine comparator for a sort key. Score ordering is the engine default.
func comparator(target *catalog.Catalog, key string) engine.Comparator {
	switch key {
	case models.SortTitle:
		return titleComparator(target)
	case models.SortRating:
		return func(a, b engine.RankedItem) int {
			return cmp.Compare(ratingOf(target, a.ItemID), ratingOf(target, b.ItemID))
		}
	case models.SortRanking:
		return func(a, b engine.RankedItem) int {
			return cmp.Compare(rankingOf(target, a.ItemID), rankingOf(target, b.ItemID))
		}
	case models.SortRelease:
		return func(a, b engine.RankedItem) int {
			return cmp.Compare(releaseOf(target, a.ItemID), releaseOf(target, b.ItemID))
		}
	default:
		return nil
	}
}

// descending resolves the sort direction. Score, rating and release read best or newest first by
// default; title and ranking read in natural order.
func descending(key, order string) bool {
	switch order {
	case "asc":
		return false
	case "desc":
		return true
	}
	switch key {
	case "", models.SortScore, models.SortRating, models.SortRelease:
		return true
	default:
		return false
	}
}

// Unrated items sort below every rating.
func ratingOf(c *catalog.Catalog, id string) float64 {
	if it, ok := c.Get(id); ok && it.Rating != nil {
		return *it.Rating
	}
	return math.Inf(-1)
}

// Unranked items sort after every ranking.
func rankingOf(c *catalog.Catalog, id string) int {
	if it, ok := c.Get(id); ok && it.Ranking != nil {
		return *it.Ranking
	}
	return math.MaxInt
}

func releaseOf(c *catalog.Catalog, id string) int {
	if it, ok := c.Get(id); ok {
		return it.ReleaseYear
	}
	return 0
}

// titleComparator orders by display title with language-aware collation, so that accents and case
// do not split otherwise adjacent titles. Collators are not safe for concurrent use: each
// comparator owns one.
func titleComparator(target *catalog.Catalog) engine.Comparator {
	col := collate.New(language.English, collate.IgnoreCase, collate.IgnoreDiacritics)
	return func(a, b engine.RankedItem) int {
		return col.CompareString(target.Title(a.ItemID), target.Title(b.ItemID))
	}
}
