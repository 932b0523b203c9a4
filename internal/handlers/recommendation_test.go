package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/goanalog/internal/dataset"
	"github.com/temcen/goanalog/internal/engine"
	"github.com/temcen/goanalog/internal/services"
	"github.com/temcen/goanalog/internal/usage"
	"github.com/temcen/goanalog/pkg/models"
)

// MockRecommendationService is a mock implementation
type MockRecommendationService struct {
	mock.Mock
}

func (m *MockRecommendationService) RecommendForUser(ctx context.Context, userID, domain string, opts models.RecommendationOptions) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, userID, domain, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendationResponse), args.Error(1)
}

func (m *MockRecommendationService) RecommendFromUsage(ctx context.Context, req models.RecommendationRequest) (*models.RecommendationResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendationResponse), args.Error(1)
}

func (m *MockRecommendationService) Similar(ctx context.Context, domain, itemID string, n int, reverse bool) (*models.SimilarResponse, error) {
	args := m.Called(ctx, domain, itemID, n, reverse)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SimilarResponse), args.Error(1)
}

func (m *MockRecommendationService) SearchItems(domain, query string, limit int) (*models.ItemsResponse, error) {
	args := m.Called(domain, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItemsResponse), args.Error(1)
}

func (m *MockRecommendationService) Reload(ctx context.Context) (*services.ReloadResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReloadResult), args.Error(1)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func sampleResponse(cacheHit bool) *models.RecommendationResponse {
	score := 1.0
	return &models.RecommendationResponse{
		RequestID: uuid.New(),
		UserID:    "76561197960287930",
		Domain:    "bgg",
		Mode:      models.ModeRecommend,
		Recommendations: []models.Recommendation{
			{Rank: 1, ScoreRank: 1, ItemID: "174430", Title: "Gloomhaven", Score: &score, ScoreKind: "personalized", Because: []string{"Portal 2"}},
			{Rank: 2, ScoreRank: 2, ItemID: "13", Title: "CATAN", ScoreKind: "popularity"},
		},
		Personalized: 1,
		Fallback:     1,
		GeneratedAt:  time.Now(),
		CacheHit:     cacheHit,
	}
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func TestRecommendationHandler_Get(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const steamID = "76561197960287930"

	tests := []struct {
		name        string
		query       string
		domain      string
		opts        models.RecommendationOptions
		cacheHit    bool
		wantCache   string
		wantRecs    int
		wantCalled  bool
		wantStatus  int
		wantErrCode string
	}{
		{
			name:       "Default parameters",
			wantCalled: true,
			wantStatus: http.StatusOK,
			wantCache:  "MISS",
			wantRecs:   2,
		},
		{
			name:   "All overrides",
			query:  "?domain=steam&limit=5&min_neighbors=2&neighbor_cutoff=0.3&based_on=1&usage_cutoff=30&z_score=false&popular=false&mode=hate&sort=title&order=desc&sign=negative&show_scores=true",
			domain: "steam",
			opts: models.RecommendationOptions{
				Limit:          5,
				MinNeighbors:   2,
				NeighborCutoff: ptr(0.3),
				BasedOn:        1,
				UsageCutoff:    ptr(30.0),
				ZScore:         ptr(false),
				Popular:        ptr(false),
				Mode:           "hate",
				Sort:           "title",
				Order:          "desc",
				Sign:           "negative",
				ShowScores:     true,
			},
			cacheHit:   true,
			wantCalled: true,
			wantStatus: http.StatusOK,
			wantCache:  "HIT",
			wantRecs:   2,
		},
		{
			name:        "Malformed limit",
			query:       "?limit=ten",
			wantStatus:  http.StatusBadRequest,
			wantErrCode: "INVALID_PARAMETERS",
		},
		{
			name:        "Malformed cutoff",
			query:       "?neighbor_cutoff=high",
			wantStatus:  http.StatusBadRequest,
			wantErrCode: "INVALID_PARAMETERS",
		},
		{
			name:        "Malformed flag",
			query:       "?popular=maybe",
			wantStatus:  http.StatusBadRequest,
			wantErrCode: "INVALID_PARAMETERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockRecommendationService)
			if tt.wantCalled {
				svc.On("RecommendForUser", mock.Anything, steamID, tt.domain, tt.opts).
					Return(sampleResponse(tt.cacheHit), nil).Once()
			}
			handler := NewRecommendationHandler(svc, testLogger())

			router := gin.New()
			router.GET("/api/v1/recommendations/:userId", handler.Get)

			req, _ := http.NewRequest("GET", "/api/v1/recommendations/"+steamID+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var resp models.RecommendationResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Len(t, resp.Recommendations, tt.wantRecs)
				assert.Equal(t, tt.wantCache, w.Header().Get("X-Cache"))
			} else {
				var body errorBody
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantErrCode, body.Error.Code)
			}

			svc.AssertExpectations(t)
			if !tt.wantCalled {
				svc.AssertNotCalled(t, "RecommendForUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestRecommendationHandler_GetErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantRetryable bool
	}{
		{"Invalid Steam id", fmt.Errorf("%w: bad id", usage.ErrInvalidUserID), http.StatusBadRequest, "INVALID_INPUT", false},
		{"Invalid parameters", fmt.Errorf("%w: limit", engine.ErrConfiguration), http.StatusBadRequest, "INVALID_PARAMETERS", false},
		{"Unknown domain", fmt.Errorf("%w: psn", dataset.ErrUnknownDomain), http.StatusBadRequest, "UNKNOWN_DOMAIN", false},
		{"Unknown user", fmt.Errorf("%w: 1", usage.ErrNotFound), http.StatusNotFound, "USER_NOT_FOUND", false},
		{"Private profile", fmt.Errorf("%w: 1", usage.ErrAccessDenied), http.StatusForbidden, "PROFILE_PRIVATE", false},
		{"No usage", engine.ErrNoUsage, http.StatusUnprocessableEntity, "NO_USAGE", false},
		{"Too little overlap", engine.ErrInsufficientCandidates, http.StatusUnprocessableEntity, "NO_RECOMMENDATIONS", false},
		{"Steam down", fmt.Errorf("%w: timeout", usage.ErrUpstreamUnavailable), http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", true},
		{"Deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", true},
		{"Models missing", dataset.ErrNotLoaded, http.StatusServiceUnavailable, "MODELS_NOT_LOADED", true},
		{"Unexpected", fmt.Errorf("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockRecommendationService)
			svc.On("RecommendForUser", mock.Anything, "76561197960287930", "", mock.Anything).Return(nil, tt.err)
			handler := NewRecommendationHandler(svc, testLogger())

			router := gin.New()
			router.GET("/api/v1/recommendations/:userId", handler.Get)

			req, _ := http.NewRequest("GET", "/api/v1/recommendations/76561197960287930", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
			assert.Equal(t, tt.wantRetryable, body.Error.Retryable)
		})
	}
}

func TestRecommendationHandler_ErrorMessagesHideInternals(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := new(MockRecommendationService)
	svc.On("RecommendForUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: GET https://api.steampowered.com/?key=secret", usage.ErrUpstreamUnavailable))
	handler := NewRecommendationHandler(svc, testLogger())

	router := gin.New()
	router.GET("/api/v1/recommendations/:userId", handler.Get)

	req, _ := http.NewRequest("GET", "/api/v1/recommendations/76561197960287930", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestRecommendationHandler_Post(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Valid usage", func(t *testing.T) {
		svc := new(MockRecommendationService)
		svc.On("RecommendFromUsage", mock.Anything, mock.MatchedBy(func(req models.RecommendationRequest) bool {
			return req.Domain == "bgg" && len(req.Usage) == 2 && req.Usage[0].ItemID == "620" && req.Options.Limit == 3
		})).Return(sampleResponse(false), nil)
		handler := NewRecommendationHandler(svc, testLogger())

		router := gin.New()
		router.POST("/api/v1/recommendations", handler.Post)

		body := map[string]interface{}{
			"domain": "bgg",
			"usage": []map[string]interface{}{
				{"item_id": "620", "minutes": 1200},
				{"item_id": "400", "minutes": 300},
			},
			"options": map[string]interface{}{"limit": 3},
		}
		payload, _ := json.Marshal(body)

		req, _ := http.NewRequest("POST", "/api/v1/recommendations", bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
		svc.AssertExpectations(t)
	})

	t.Run("Malformed body", func(t *testing.T) {
		svc := new(MockRecommendationService)
		handler := NewRecommendationHandler(svc, testLogger())

		router := gin.New()
		router.POST("/api/v1/recommendations", handler.Post)

		req, _ := http.NewRequest("POST", "/api/v1/recommendations", bytes.NewBufferString(`{"usage": "lots"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body errorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "INVALID_INPUT", body.Error.Code)
		svc.AssertNotCalled(t, "RecommendFromUsage", mock.Anything, mock.Anything)
	})

	t.Run("Service rejects usage", func(t *testing.T) {
		svc := new(MockRecommendationService)
		svc.On("RecommendFromUsage", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: negative minutes", engine.ErrInvalidInput))
		handler := NewRecommendationHandler(svc, testLogger())

		router := gin.New()
		router.POST("/api/v1/recommendations", handler.Post)

		req, _ := http.NewRequest("POST", "/api/v1/recommendations",
			bytes.NewBufferString(`{"domain":"bgg","usage":[{"item_id":"620","minutes":-5}]}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body errorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "INVALID_INPUT", body.Error.Code)
		assert.Contains(t, body.Error.Message, "negative minutes")
	})
}

func ptr[T any](v T) *T {
	return &v
}
