package services

import (
	"context"

	"github.com/temcen/goanalog/pkg/models"
)

// RecommendationServiceInterface is the surface the HTTP handlers and the CLI depend on.
type RecommendationServiceInterface interface {
	RecommendForUser(ctx context.Context, userID, domain string, opts models.RecommendationOptions) (*models.RecommendationResponse, error)
	RecommendFromUsage(ctx context.Context, req models.RecommendationRequest) (*models.RecommendationResponse, error)
	Similar(ctx context.Context, domain, itemID string, n int, reverse bool) (*models.SimilarResponse, error)
	SearchItems(domain, query string, limit int) (*models.ItemsResponse, error)
	Reload(ctx context.Context) (*ReloadResult, error)
}

// HealthCheckerInterface reports aggregated component health.
type HealthCheckerInterface interface {
	CheckHealth(ctx context.Context) *HealthStatus
}

var (
	_ RecommendationServiceInterface = (*RecommendationService)(nil)
	_ HealthCheckerInterface         = (*HealthService)(nil)
)
