package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/temcen/goanalog/pkg/models"
)

// ErrUnknownDomain is returned by loaders for a domain they have no data for.
var ErrUnknownDomain = errors.New("unknown catalog domain")

// Loader reads every item of one catalog domain.
type Loader interface {
	Load(ctx context.Context, domain string) ([]models.CatalogItem, error)
}

// Catalog is an immutable, indexed view of one domain's items.
type Catalog struct {
	domain string
	items  map[string]models.CatalogItem
	keys   map[string]string
	byName []string
}

// New indexes items. Titles are cleaned and ids must be unique.
func New(domain string, items []models.CatalogItem) (*Catalog, error) {
	c := &Catalog{
		domain: domain,
		items:  make(map[string]models.CatalogItem, len(items)),
		keys:   make(map[string]string, len(items)),
		byName: make([]string, 0, len(items)),
	}

	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("%s catalog item %d has no id", domain, i)
		}
		if _, dup := c.items[it.ID]; dup {
			return nil, fmt.Errorf("%s catalog has duplicate id %s", domain, it.ID)
		}
		it.Domain = domain
		it.Title = cleanTitle(it.Title)
		if it.Title == "" {
			it.Title = it.ID
		}
		c.items[it.ID] = it
		c.keys[it.ID] = searchKey(it.Title)
		c.byName = append(c.byName, it.ID)
	}

	slices.SortFunc(c.byName, c.compareByTitle)
	return c, nil
}

func (c *Catalog) compareByTitle(a, b string) int {
	if r := cmp.Compare(c.keys[a], c.keys[b]); r != 0 {
		return r
	}
	return cmp.Compare(a, b)
}

func (c *Catalog) Domain() string { return c.domain }

func (c *Catalog) Len() int { return len(c.items) }

// Get returns the item with the given id.
func (c *Catalog) Get(id string) (models.CatalogItem, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Title returns the display title of id, or the id itself when the catalog lacks it.
func (c *Catalog) Title(id string) string {
	if it, ok := c.items[id]; ok {
		return it.Title
	}
	return id
}

// Popularity returns the popularity z-score of every item that has one.
func (c *Catalog) Popularity() map[string]float64 {
	out := make(map[string]float64, len(c.items))
	for id, it := range c.items {
		if it.Popularity != nil {
			out[id] = *it.Popularity
		}
	}
	return out
}

// Search finds items whose title contains every word of query, ignoring case and accents.
// Titles starting with the query come first; the rest are alphabetical. An empty query lists
// the catalog alphabetically.
func (c *Catalog) Search(query string, limit int) []models.ItemSummary {
	q := searchKey(query)
	words := strings.Fields(q)

	var prefix, other []string
	for _, id := range c.byName {
		key := c.keys[id]
		if !containsAll(key, words) {
			continue
		}
		if q != "" && strings.HasPrefix(key, q) {
			prefix = append(prefix, id)
		} else {
			other = append(other, id)
		}
	}

	ids := append(prefix, other...)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.ItemSummary, len(ids))
	for i, id := range ids {
		out[i] = models.ItemSummary{ID: id, Title: c.items[id].Title}
	}
	return out
}

func containsAll(key string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(key, w) {
			return false
		}
	}
	return true
}

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	apostropheRegex = regexp.MustCompile(`['’]`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// cleanTitle unescapes HTML entities left by the scrapers and normalizes Unicode and spacing.
func cleanTitle(title string) string {
	cleaned := html.UnescapeString(title)
	cleaned = strings.ReplaceAll(cleaned, "''", "'")
	cleaned = norm.NFC.String(cleaned)
	cleaned = whitespaceRegex.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// searchKey folds case, strips accents and punctuation so that "Pokémon: Red" matches "pokemon red".
func searchKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	folded = apostropheRegex.ReplaceAllString(folded, "")
	folded = punctRegex.ReplaceAllString(folded, " ")
	folded = whitespaceRegex.ReplaceAllString(folded, " ")
	return strings.TrimSpace(folded)
}
