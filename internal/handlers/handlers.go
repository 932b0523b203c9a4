package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Catalog        *CatalogHandler
	Admin          *AdminHandler
	Metrics        *MetricsHandler
}

func New(logger *logrus.Logger, services *services.Services, gatherer prometheus.Gatherer) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Recommendation: NewRecommendationHandler(services.Recommendations, logger),
		Catalog:        NewCatalogHandler(services.Recommendations, logger),
		Admin:          NewAdminHandler(services.Recommendations, logger),
		Metrics:        NewMetricsHandler(logger, gatherer),
	}
}
