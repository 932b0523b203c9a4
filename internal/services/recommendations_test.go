package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/goanalog/internal/catalog"
	"github.com/temcen/goanalog/internal/config"
	"github.com/temcen/goanalog/internal/dataset"
	"github.com/temcen/goanalog/internal/engine"
	"github.com/temcen/goanalog/internal/messaging"
	"github.com/temcen/goanalog/internal/usage"
	"github.com/temcen/goanalog/pkg/models"
)

type MockUsageSource struct {
	mock.Mock
}

func (m *MockUsageSource) FetchUsage(ctx context.Context, userID string) ([]models.UsageRecord, error) {
	args := m.Called(ctx, userID)
	records, _ := args.Get(0).([]models.UsageRecord)
	return records, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.RecommendationEvent
}

func (p *recordingPublisher) PublishRecommendation(_ context.Context, event messaging.RecommendationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type staticRegistry struct {
	models *dataset.Models
	err    error
	next   *dataset.Models
}

func (r *staticRegistry) Current() (*dataset.Models, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.models, nil
}

func (r *staticRegistry) Reload(context.Context) (*dataset.Models, error) {
	if r.next == nil {
		return nil, errors.New("matrix file missing")
	}
	r.models, r.next = r.next, nil
	return r.models, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func ptr[T any](v T) *T { return &v }

// testModels builds a bgg pair over four board games and three video games.
//
// With the usage of steamUsage, t1 and t2 get personalized scores of -1 and 1, t3 falls back
// to its popularity of 0.5 and t4 to -2.
func testModels(t *testing.T) *dataset.Models {
	t.Helper()

	matrix, err := engine.NewMatrix(
		[]string{"t1", "t2", "t3", "t4"},
		[]string{"s1", "s2", "s3"},
		[]float64{
			0.9, 0.8, 0.2,
			0.3, 0.2, 0.9,
			-0.5, -0.4, -0.6,
			0.1, 0.0, 0.05,
		},
	)
	require.NoError(t, err)

	boardGames, err := catalog.New(models.DomainBoardGames, []models.CatalogItem{
		{ID: "t1", Title: "Azul", Rating: ptr(7.8), Ranking: ptr(70), ReleaseYear: 2017, Popularity: ptr(0.1)},
		{ID: "t2", Title: "Brass: Birmingham", Rating: ptr(8.6), Ranking: ptr(1), ReleaseYear: 2018},
		{ID: "t3", Title: "CATAN", Rating: ptr(7.0), Ranking: ptr(500), ReleaseYear: 1995, Popularity: ptr(0.5)},
		{ID: "t4", Title: "Dominion", ReleaseYear: 2008, Popularity: ptr(-2.0)},
	})
	require.NoError(t, err)

	videoGames, err := catalog.New(models.DomainVideoGames, []models.CatalogItem{
		{ID: "s1", Title: "Celeste"},
		{ID: "s2", Title: "Hades"},
		{ID: "s3", Title: "Portal"},
	})
	require.NoError(t, err)

	return dataset.NewModels(&dataset.Model{
		Name:   "bgg",
		Engine: engine.New(matrix, boardGames.Popularity(), false, testLogger()),
		Source: videoGames,
		Target: boardGames,
	})
}

var steamUsage = []models.UsageRecord{
	{ItemID: "s1", Minutes: 600},
	{ItemID: "s2", Minutes: 60},
	{ItemID: "s3", Minutes: 6000},
}

func testConfig() *config.Config {
	return &config.Config{
		Steam: config.SteamConfig{Timeout: time.Second},
		Recommendation: config.RecommendationConfig{
			DefaultDomain:  "bgg",
			UsageCutoff:    10,
			ZScore:         true,
			MinNeighbors:   2,
			NeighborCutoff: 0.15,
			BasedOn:        2,
			PopularGames:   true,
			Limit:          10,
			MaxLimit:       50,
		},
	}
}

type fixture struct {
	service   *RecommendationService
	source    *MockUsageSource
	publisher *recordingPublisher
	metrics   *Metrics
	registry  *staticRegistry
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		source:    new(MockUsageSource),
		publisher: &recordingPublisher{},
		metrics:   NewMetrics(prometheus.NewRegistry(), testLogger()),
		registry:  &staticRegistry{models: testModels(t)},
	}
	f.service = NewRecommendationService(f.registry, f.source, nil, f.publisher, f.metrics, testConfig(), testLogger())
	return f
}

func itemIDs(recs []models.Recommendation) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ItemID
	}
	return ids
}

func TestRecommendationService_RecommendForUser(t *testing.T) {
	f := newFixture(t)
	f.source.On("FetchUsage", mock.Anything, "76561197960287930").Return(steamUsage, nil).Once()

	resp, err := f.service.RecommendForUser(context.Background(), "76561197960287930", "", models.RecommendationOptions{})
	require.NoError(t, err)

	assert.Equal(t, "bgg", resp.Domain)
	assert.Equal(t, models.ModeRecommend, resp.Mode)
	assert.Equal(t, "76561197960287930", resp.UserID)
	assert.Equal(t, []string{"t2", "t3", "t1", "t4"}, itemIDs(resp.Recommendations))
	assert.Equal(t, 2, resp.Personalized)
	assert.Equal(t, 2, resp.Fallback)
	assert.Equal(t, 3, resp.ProfileItems)
	assert.Equal(t, 3, resp.MatchedItems)
	assert.False(t, resp.CacheHit)

	top := resp.Recommendations[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 1, top.ScoreRank)
	assert.Equal(t, "Brass: Birmingham", top.Title)
	assert.Equal(t, "personalized", top.ScoreKind)
	assert.Equal(t, []string{"Portal", "Celeste"}, top.Because)
	assert.Nil(t, top.Score, "scores are hidden unless requested")
	assert.Equal(t, ptr(8.6), top.Rating)

	fallback := resp.Recommendations[1]
	assert.Equal(t, "popularity", fallback.ScoreKind)
	assert.Equal(t, engine.PopularityExplanation, fallback.Explanation)
	assert.Empty(t, fallback.Because)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, resp.RequestID, event.RequestID)
	assert.Equal(t, []string{"t2", "t3", "t1", "t4"}, event.ItemIDs)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.recommendations.WithLabelValues("bgg", "recommend", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.recommendedItems.WithLabelValues("bgg", "personalized")))
	f.source.AssertExpectations(t)
}

func TestRecommendationService_Options(t *testing.T) {
	tests := []struct {
		name   string
		opts   models.RecommendationOptions
		want   []string
		scores []float64
	}{
		{
			name:   "show scores",
			opts:   models.RecommendationOptions{ShowScores: true},
			want:   []string{"t2", "t3", "t1", "t4"},
			scores: []float64{1, 0.5, -1, -2},
		},
		{
			name: "hate mode keeps the tail",
			opts: models.RecommendationOptions{Mode: models.ModeHate, Limit: 2},
			want: []string{"t1", "t4"},
		},
		{
			name: "hate mode ascending",
			opts: models.RecommendationOptions{Mode: models.ModeHate, Limit: 2, Order: "asc"},
			want: []string{"t4", "t1"},
		},
		{
			name: "sort by title",
			opts: models.RecommendationOptions{Sort: models.SortTitle},
			want: []string{"t1", "t2", "t3", "t4"},
		},
		{
			name: "sort by ranking puts unranked last",
			opts: models.RecommendationOptions{Sort: models.SortRanking},
			want: []string{"t2", "t1", "t3", "t4"},
		},
		{
			name: "sort by rating",
			opts: models.RecommendationOptions{Sort: models.SortRating},
			want: []string{"t2", "t1", "t3", "t4"},
		},
		{
			name: "sort by release defaults to newest first",
			opts: models.RecommendationOptions{Sort: models.SortRelease},
			want: []string{"t2", "t1", "t4", "t3"},
		},
		{
			name: "sort by release ascending",
			opts: models.RecommendationOptions{Sort: models.SortRelease, Order: "asc"},
			want: []string{"t3", "t4", "t1", "t2"},
		},
		{
			name: "sign keeps positive scores",
			opts: models.RecommendationOptions{Sign: "positive"},
			want: []string{"t2", "t3"},
		},
		{
			name: "sign keeps negative scores",
			opts: models.RecommendationOptions{Sign: "negative"},
			want: []string{"t1", "t4"},
		},
		{
			name: "hate mode with negative sign",
			opts: models.RecommendationOptions{Mode: models.ModeHate, Sign: "negative", Limit: 1},
			want: []string{"t4"},
		},
		{
			name: "without popularity fallback",
			opts: models.RecommendationOptions{Popular: ptr(false)},
			want: []string{"t2", "t1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			resp, err := f.service.RecommendFromUsage(context.Background(), models.RecommendationRequest{
				Domain:  "bgg",
				Usage:   steamUsage,
				Options: tt.opts,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(resp.Recommendations))

			for i, want := range tt.scores {
				require.NotNil(t, resp.Recommendations[i].Score)
				assert.InDelta(t, want, *resp.Recommendations[i].Score, 1e-9)
			}
			f.source.AssertNotCalled(t, "FetchUsage", mock.Anything, mock.Anything)
		})
	}
}

func TestRecommendationService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		domain  string
		opts    models.RecommendationOptions
		usage   []models.UsageRecord
		fetch   error
		wantErr error
		code    string
	}{
		{name: "private profile", fetch: usage.ErrAccessDenied, wantErr: usage.ErrAccessDenied, code: "PROFILE_PRIVATE"},
		{name: "unknown user", fetch: usage.ErrNotFound, wantErr: usage.ErrNotFound, code: "USER_NOT_FOUND"},
		{name: "steam down", fetch: usage.ErrUpstreamUnavailable, wantErr: usage.ErrUpstreamUnavailable, code: "UPSTREAM_UNAVAILABLE"},
		{name: "empty library", usage: []models.UsageRecord{}, wantErr: engine.ErrNoUsage, code: "NO_USAGE"},
		{
			name:    "only short sessions",
			usage:   []models.UsageRecord{{ItemID: "s1", Minutes: 5}},
			wantErr: engine.ErrNoUsage,
			code:    "NO_USAGE",
		},
		{name: "unknown domain", domain: "psn", wantErr: dataset.ErrUnknownDomain, code: "UNKNOWN_DOMAIN"},
		{
			name:    "min neighbors above model width",
			opts:    models.RecommendationOptions{MinNeighbors: 5},
			wantErr: engine.ErrConfiguration,
			code:    "INVALID_PARAMETERS",
		},
		{
			name:    "limit out of range",
			opts:    models.RecommendationOptions{Limit: 500},
			wantErr: engine.ErrConfiguration,
			code:    "INVALID_PARAMETERS",
		},
		{
			name:    "unknown mode",
			opts:    models.RecommendationOptions{Mode: "love"},
			wantErr: engine.ErrConfiguration,
			code:    "INVALID_PARAMETERS",
		},
		{
			name:    "unknown sign",
			opts:    models.RecommendationOptions{Sign: "sideways"},
			wantErr: engine.ErrConfiguration,
			code:    "INVALID_PARAMETERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.fetch != nil {
				f.source.On("FetchUsage", mock.Anything, "42").Return(nil, tt.fetch)
			} else {
				f.source.On("FetchUsage", mock.Anything, "42").Return(tt.usage, nil)
			}

			resp, err := f.service.RecommendForUser(context.Background(), "42", tt.domain, tt.opts)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.code, ErrorCode(err))
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestRecommendationService_RecommendFromUsage_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.RecommendFromUsage(context.Background(), models.RecommendationRequest{
		Domain: "bgg",
		Usage:  []models.UsageRecord{{ItemID: "s1", Minutes: 100}, {ItemID: "s1", Minutes: 20}},
	})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = f.service.RecommendFromUsage(context.Background(), models.RecommendationRequest{
		Domain: "bgg",
		Usage:  []models.UsageRecord{{ItemID: "s1", Minutes: -3}},
	})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = f.service.RecommendFromUsage(context.Background(), models.RecommendationRequest{
		Domain: "bgg",
		Usage:  []models.UsageRecord{{ItemID: "s1", Minutes: 100}},
		Options: models.RecommendationOptions{
			MinNeighbors: 3,
			Popular:      ptr(false),
		},
	})
	assert.ErrorIs(t, err, engine.ErrInsufficientCandidates)
	assert.Equal(t, "NO_RECOMMENDATIONS", ErrorCode(err))
}

func TestRecommendationService_ModelsNotLoaded(t *testing.T) {
	f := newFixture(t)
	f.registry.err = dataset.ErrNotLoaded

	_, err := f.service.RecommendFromUsage(context.Background(), models.RecommendationRequest{
		Domain: "bgg",
		Usage:  steamUsage,
	})
	assert.ErrorIs(t, err, dataset.ErrNotLoaded)
	assert.Equal(t, "MODELS_NOT_LOADED", ErrorCode(err))
	assert.ErrorIs(t, f.service.ModelsLoaded(context.Background()), dataset.ErrNotLoaded)
}

func TestRecommendationService_Similar(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.Similar(context.Background(), "bgg", "s3", 2, false)
	require.NoError(t, err)
	assert.Equal(t, models.ItemSummary{ID: "s3", Title: "Portal"}, resp.Source)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "t2", resp.Items[0].ItemID)
	assert.Equal(t, "Brass: Birmingham", resp.Items[0].Title)
	assert.InDelta(t, 0.9, resp.Items[0].Similarity, 1e-9)
	assert.Equal(t, "t1", resp.Items[1].ItemID)

	resp, err = f.service.Similar(context.Background(), "", "s3", 1, true)
	require.NoError(t, err)
	assert.True(t, resp.Reverse)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "t3", resp.Items[0].ItemID)

	_, err = f.service.Similar(context.Background(), "bgg", "s9", 5, false)
	assert.ErrorIs(t, err, engine.ErrUnknownItem)
	assert.Equal(t, "UNKNOWN_ITEM", ErrorCode(err))

	_, err = f.service.Similar(context.Background(), "bgg", "s3", 0, false)
	assert.ErrorIs(t, err, engine.ErrConfiguration)
}

func TestRecommendationService_SearchItems(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.SearchItems(models.DomainBoardGames, "cat", 5)
	require.NoError(t, err)
	assert.Equal(t, []models.ItemSummary{{ID: "t3", Title: "CATAN"}}, resp.Items)
	assert.Equal(t, 1, resp.Total)

	resp, err = f.service.SearchItems(models.DomainVideoGames, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []models.ItemSummary{{ID: "s1", Title: "Celeste"}, {ID: "s2", Title: "Hades"}}, resp.Items)

	_, err = f.service.SearchItems("psn", "", 5)
	assert.ErrorIs(t, err, catalog.ErrUnknownDomain)

	_, err = f.service.SearchItems(models.DomainBoardGames, "", 0)
	assert.ErrorIs(t, err, engine.ErrConfiguration)
}

func TestRecommendationService_Reload(t *testing.T) {
	f := newFixture(t)
	previous := f.registry.models

	_, err := f.service.Reload(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.modelReloads.WithLabelValues("error")))

	f.registry.next = testModels(t)
	result, err := f.service.Reload(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, previous.Version, result.Version)
	assert.Equal(t, []string{"bgg"}, result.Pairs)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.modelReloads.WithLabelValues("success")))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{usage.ErrInvalidUserID, "INVALID_INPUT"},
		{engine.ErrInvalidInput, "INVALID_INPUT"},
		{catalog.ErrUnknownDomain, "UNKNOWN_DOMAIN"},
		{context.DeadlineExceeded, "UPSTREAM_UNAVAILABLE"},
		{errors.New("boom"), "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
		})
	}
}
