package usage

import (
	"context"

	"github.com/temcen/goanalog/pkg/models"
)

// Source fetches a user's engagement with source-domain items. An empty slice with a nil error
// means the user exists and has no recorded usage.
type Source interface {
	FetchUsage(ctx context.Context, userID string) ([]models.UsageRecord, error)
}

// Observer receives upstream call outcomes. services.Metrics implements it.
type Observer interface {
	ObserveUpstream(source, outcome string, seconds float64)
	SetBreakerState(name string, state float64)
}
