package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/pkg/models"
)

// columnAliases maps normalized header names to catalog fields. The web app exports use
// display names such as "BGG Rating" and "Average Rating Z".
var columnAliases = map[string]string{
	"id":               "id",
	"appid":            "id",
	"title":            "title",
	"name":             "title",
	"release":          "release",
	"release_year":     "release_year",
	"rating":           "rating",
	"bgg_rating":       "rating",
	"steam_rating":     "rating",
	"rating_text":      "rating_text",
	"ranking":          "ranking",
	"bgg_ranking":      "ranking",
	"tags":             "tags",
	"url":              "url",
	"thumbnail":        "thumbnail",
	"popularity_z":     "popularity_z",
	"average_rating_z": "popularity_z",
}

var yearRegex = regexp.MustCompile(`\b(\d{4})\b`)

// CSVLoader reads catalogs from one CSV file per domain.
type CSVLoader struct {
	paths  map[string]string
	logger *logrus.Logger
}

// NewCSVLoader creates a loader. paths maps a domain to its file.
func NewCSVLoader(paths map[string]string, logger *logrus.Logger) *CSVLoader {
	return &CSVLoader{paths: paths, logger: logger}
}

func (l *CSVLoader) Load(ctx context.Context, domain string) ([]models.CatalogItem, error) {
	path, ok := l.paths[domain]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s catalog: %w", domain, err)
	}
	defer f.Close()

	items, err := ParseCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("parse %s catalog %s: %w", domain, path, err)
	}

	l.logger.WithFields(logrus.Fields{
		"domain": domain,
		"path":   path,
		"items":  len(items),
	}).Info("Catalog loaded from CSV")

	return items, nil
}

// ParseCSV reads catalog rows. The header row decides which columns are present; id and title
// are required.
func ParseCSV(ctx context.Context, r io.Reader) ([]models.CatalogItem, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if field, ok := columnAliases[key]; ok {
			if _, seen := cols[field]; !seen {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["id"]; !ok {
		return nil, errors.New("missing id column")
	}
	if _, ok := cols["title"]; !ok {
		return nil, errors.New("missing title column")
	}

	var items []models.CatalogItem
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		item, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseRow(row []string, cols map[string]int) (models.CatalogItem, error) {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	item := models.CatalogItem{
		ID:         get("id"),
		Title:      get("title"),
		Release:    get("release"),
		RatingText: get("rating_text"),
		URL:        get("url"),
		Thumbnail:  get("thumbnail"),
		Tags:       splitTags(get("tags")),
	}

	if y := get("release_year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return item, fmt.Errorf("release_year %q: %w", y, err)
		}
		item.ReleaseYear = year
	} else if m := yearRegex.FindAllString(item.Release, -1); len(m) > 0 {
		item.ReleaseYear, _ = strconv.Atoi(m[len(m)-1])
	}

	if r := get("rating"); r != "" {
		if v, err := strconv.ParseFloat(r, 64); err == nil {
			item.Rating = &v
		} else if item.RatingText == "" {
			item.RatingText = r
		}
	}

	if r := get("ranking"); r != "" {
		if v, err := strconv.Atoi(r); err == nil {
			item.Ranking = &v
		}
	}

	if z := get("popularity_z"); z != "" {
		v, err := strconv.ParseFloat(z, 64)
		if err != nil {
			return item, fmt.Errorf("popularity_z %q: %w", z, err)
		}
		item.Popularity = &v
	}

	return item, nil
}

// splitTags accepts "a|b|c" and the "a, b, c" lists of the scraped exports.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	sep := ","
	if strings.Contains(s, "|") {
		sep = "|"
	}
	var tags []string
	for _, t := range strings.Split(s, sep) {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
