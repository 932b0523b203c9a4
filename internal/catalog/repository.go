package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS catalog_items (
    domain        TEXT NOT NULL,
    id            TEXT NOT NULL,
    title         TEXT NOT NULL,
    release       TEXT,
    release_year  INTEGER,
    rating        DOUBLE PRECISION,
    rating_text   TEXT,
    ranking       INTEGER,
    tags          TEXT[],
    url           TEXT,
    thumbnail     TEXT,
    popularity_z  DOUBLE PRECISION,
    PRIMARY KEY (domain, id)
)`

const selectItems = `
SELECT id, title, COALESCE(release, ''), COALESCE(release_year, 0), rating,
       COALESCE(rating_text, ''), ranking, COALESCE(tags, '{}'), COALESCE(url, ''),
       COALESCE(thumbnail, ''), popularity_z
FROM catalog_items
WHERE domain = $1
ORDER BY id`

const upsertItem = `
INSERT INTO catalog_items (domain, id, title, release, release_year, rating, rating_text, ranking, tags, url, thumbnail, popularity_z)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (domain, id) DO UPDATE SET
    title = EXCLUDED.title, release = EXCLUDED.release, release_year = EXCLUDED.release_year,
    rating = EXCLUDED.rating, rating_text = EXCLUDED.rating_text, ranking = EXCLUDED.ranking,
    tags = EXCLUDED.tags, url = EXCLUDED.url, thumbnail = EXCLUDED.thumbnail,
    popularity_z = EXCLUDED.popularity_z`

// Repository reads and writes catalogs in PostgreSQL.
type Repository struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewRepository(db DatabaseQuerier, logger *logrus.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Migrate creates the catalog table when it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, domain string) ([]models.CatalogItem, error) {
	if domain != models.DomainBoardGames && domain != models.DomainVideoGames {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}

	rows, err := r.db.Query(ctx, selectItems, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s catalog: %w", domain, err)
	}
	defer rows.Close()

	var items []models.CatalogItem
	for rows.Next() {
		var it models.CatalogItem
		if err := rows.Scan(
			&it.ID, &it.Title, &it.Release, &it.ReleaseYear, &it.Rating,
			&it.RatingText, &it.Ranking, &it.Tags, &it.URL,
			&it.Thumbnail, &it.Popularity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan %s catalog row: %w", domain, err)
		}
		it.Domain = domain
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s catalog: %w", domain, err)
	}

	r.logger.WithFields(logrus.Fields{
		"domain": domain,
		"items":  len(items),
	}).Info("Catalog loaded from PostgreSQL")

	return items, nil
}

// Upsert writes items into domain, replacing rows with the same id. It returns the number of
// rows written.
func (r *Repository) Upsert(ctx context.Context, domain string, items []models.CatalogItem) (int, error) {
	written := 0
	for _, it := range items {
		var release, ratingText, url, thumbnail *string
		if it.Release != "" {
			release = &it.Release
		}
		if it.RatingText != "" {
			ratingText = &it.RatingText
		}
		if it.URL != "" {
			url = &it.URL
		}
		if it.Thumbnail != "" {
			thumbnail = &it.Thumbnail
		}
		var year *int
		if it.ReleaseYear != 0 {
			year = &it.ReleaseYear
		}

		if _, err := r.db.Exec(ctx, upsertItem,
			domain, it.ID, it.Title, release, year, it.Rating, ratingText, it.Ranking,
			it.Tags, url, thumbnail, it.Popularity,
		); err != nil {
			return written, fmt.Errorf("failed to upsert %s item %s: %w", domain, it.ID, err)
		}
		written++
	}
	return written, nil
}
