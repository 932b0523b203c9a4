package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/config"
	"github.com/temcen/goanalog/internal/database"
	"github.com/temcen/goanalog/internal/messaging"
	"github.com/temcen/goanalog/internal/usage"
)

type Services struct {
	Recommendations *RecommendationService
	Health          *HealthService
	Metrics         *Metrics
	Cache           *ResultCache
}

// breakerReporter is implemented by usage sources guarded by a circuit breaker.
type breakerReporter interface {
	BreakerState() string
}

func New(
	cfg *config.Config,
	logger *logrus.Logger,
	db *database.Database,
	registry ModelRegistry,
	source usage.Source,
	publisher messaging.Publisher,
	metrics *Metrics,
) *Services {
	cache := NewResultCache(nil, logger)
	if db != nil && db.Redis != nil {
		cache = NewResultCache(db.Redis, logger)
	}

	recommendations := NewRecommendationService(registry, source, cache, publisher, metrics, cfg, logger)

	health := NewHealthService(logger, metrics)
	health.AddCheck("models", true, recommendations.ModelsLoaded)

	if db != nil && db.PG != nil {
		health.AddCheck("postgresql", cfg.Catalog.Source == "postgres", func(ctx context.Context) error {
			if metrics != nil {
				stats := db.PG.Stat()
				metrics.SetDatabaseConnections(stats.AcquiredConns(), stats.IdleConns(), stats.TotalConns(), stats.MaxConns())
			}
			return db.PG.Ping(ctx)
		})
	}
	if db != nil && db.Redis != nil {
		health.AddCheck("redis", false, func(ctx context.Context) error {
			return db.Redis.Ping(ctx).Err()
		})
	}
	if br, ok := source.(breakerReporter); ok {
		health.AddCheck("steam", false, func(context.Context) error {
			if state := br.BreakerState(); state == "open" {
				return fmt.Errorf("circuit breaker is %s", state)
			}
			return nil
		})
	}

	return &Services{
		Recommendations: recommendations,
		Health:          health,
		Metrics:         metrics,
		Cache:           cache,
	}
}
