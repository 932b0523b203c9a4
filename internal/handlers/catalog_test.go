package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/goanalog/internal/catalog"
	"github.com/temcen/goanalog/internal/engine"
	"github.com/temcen/goanalog/internal/services"
	"github.com/temcen/goanalog/pkg/models"
)

func TestCatalogHandler_Similar(t *testing.T) {
	gin.SetMode(gin.TestMode)

	similar := &models.SimilarResponse{
		Domain: "bgg",
		Source: models.ItemSummary{ID: "620", Title: "Portal 2"},
		Items: []models.SimilarItem{
			{ItemID: "174430", Title: "Gloomhaven", Similarity: 0.42},
		},
	}

	tests := []struct {
		name        string
		query       string
		setup       func(*MockRecommendationService)
		wantStatus  int
		wantErrCode string
	}{
		{
			name: "Defaults",
			setup: func(m *MockRecommendationService) {
				m.On("Similar", mock.Anything, "", "620", 10, false).Return(similar, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:  "Reverse with count",
			query: "?domain=bgg&n=3&reverse=true",
			setup: func(m *MockRecommendationService) {
				m.On("Similar", mock.Anything, "bgg", "620", 3, true).Return(similar, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:        "Malformed count",
			query:       "?n=many",
			setup:       func(*MockRecommendationService) {},
			wantStatus:  http.StatusBadRequest,
			wantErrCode: "INVALID_PARAMETERS",
		},
		{
			name:  "Out of range count",
			query: "?n=0",
			setup: func(m *MockRecommendationService) {
				m.On("Similar", mock.Anything, "", "620", 0, false).
					Return(nil, fmt.Errorf("%w: n must be between 1 and 50, got 0", engine.ErrConfiguration))
			},
			wantStatus:  http.StatusBadRequest,
			wantErrCode: "INVALID_PARAMETERS",
		},
		{
			name: "Unknown item",
			setup: func(m *MockRecommendationService) {
				m.On("Similar", mock.Anything, "", "620", 10, false).
					Return(nil, fmt.Errorf("%w: 620", engine.ErrUnknownItem))
			},
			wantStatus:  http.StatusNotFound,
			wantErrCode: "UNKNOWN_ITEM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockRecommendationService)
			tt.setup(svc)
			handler := NewCatalogHandler(svc, testLogger())

			router := gin.New()
			router.GET("/api/v1/similar/:itemId", handler.Similar)

			req, _ := http.NewRequest("GET", "/api/v1/similar/620"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var resp models.SimilarResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "Portal 2", resp.Source.Title)
				assert.Len(t, resp.Items, 1)
			} else {
				var body errorBody
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantErrCode, body.Error.Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestCatalogHandler_Items(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Defaults to board games", func(t *testing.T) {
		svc := new(MockRecommendationService)
		svc.On("SearchItems", models.DomainBoardGames, "", 20).Return(&models.ItemsResponse{
			Domain: models.DomainBoardGames,
			Items:  []models.ItemSummary{{ID: "13", Title: "CATAN"}},
			Total:  1,
		}, nil)
		handler := NewCatalogHandler(svc, testLogger())

		router := gin.New()
		router.GET("/api/v1/items", handler.Items)

		req, _ := http.NewRequest("GET", "/api/v1/items", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp models.ItemsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
		svc.AssertExpectations(t)
	})

	t.Run("Query and limit", func(t *testing.T) {
		svc := new(MockRecommendationService)
		svc.On("SearchItems", models.DomainVideoGames, "portal", 5).Return(&models.ItemsResponse{
			Domain: models.DomainVideoGames,
			Query:  "portal",
			Items:  []models.ItemSummary{{ID: "400", Title: "Portal"}, {ID: "620", Title: "Portal 2"}},
			Total:  2,
		}, nil)
		handler := NewCatalogHandler(svc, testLogger())

		router := gin.New()
		router.GET("/api/v1/items", handler.Items)

		req, _ := http.NewRequest("GET", "/api/v1/items?domain=videogames&q=portal&limit=5", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Unknown domain", func(t *testing.T) {
		svc := new(MockRecommendationService)
		svc.On("SearchItems", "psn", "", 20).Return(nil, fmt.Errorf("%w: psn", catalog.ErrUnknownDomain))
		handler := NewCatalogHandler(svc, testLogger())

		router := gin.New()
		router.GET("/api/v1/items", handler.Items)

		req, _ := http.NewRequest("GET", "/api/v1/items?domain=psn", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body errorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "UNKNOWN_DOMAIN", body.Error.Code)
	})
}

func TestAdminHandler_Reload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Success", func(t *testing.T) {
		svc := new(MockRecommendationService)
		svc.On("Reload", mock.Anything).Return(&services.ReloadResult{
			Version:  "3f0c6f1e-0000-4000-8000-000000000000",
			LoadedAt: time.Now(),
			Pairs:    []string{"bgg", "steam"},
		}, nil)
		handler := NewAdminHandler(svc, testLogger())

		router := gin.New()
		router.POST("/api/v1/admin/reload", handler.Reload)

		req, _ := http.NewRequest("POST", "/api/v1/admin/reload", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Result services.ReloadResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []string{"bgg", "steam"}, resp.Result.Pairs)
	})

	t.Run("Failure", func(t *testing.T) {
		svc := new(MockRecommendationService)
		svc.On("Reload", mock.Anything).Return(nil, fmt.Errorf("open matrix: no such file"))
		handler := NewAdminHandler(svc, testLogger())

		router := gin.New()
		router.POST("/api/v1/admin/reload", handler.Reload)

		req, _ := http.NewRequest("POST", "/api/v1/admin/reload", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "no such file")
	})
}

type stubHealth struct {
	status string
}

func (s stubHealth) CheckHealth(context.Context) *services.HealthStatus {
	return &services.HealthStatus{Status: s.status, Timestamp: time.Now(), Services: map[string]string{}}
}

func TestHealthHandler_Check(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		status string
		want   int
	}{
		{"healthy", http.StatusOK},
		{"degraded", http.StatusOK},
		{"unhealthy", http.StatusServiceUnavailable},
		{"bogus", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			handler := NewHealthHandler(testLogger(), stubHealth{status: tt.status})

			router := gin.New()
			router.GET("/health", handler.Check)

			req, _ := http.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), tt.status)
		})
	}
}

func TestMetricsHandler_Serve(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "goanalog_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	handler := NewMetricsHandler(testLogger(), reg)

	router := gin.New()
	router.GET("/metrics", handler.Serve)

	req, _ := http.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goanalog_test_total 3")
}

func TestHandlers_New(t *testing.T) {
	svcs := &services.Services{
		Recommendations: &services.RecommendationService{},
		Health:          services.NewHealthService(testLogger(), nil),
	}

	h := New(testLogger(), svcs, prometheus.NewRegistry())
	assert.NotNil(t, h.Recommendation)
	assert.NotNil(t, h.Catalog)
	assert.NotNil(t, h.Admin)
	assert.NotNil(t, h.Health)
	assert.NotNil(t, h.Metrics)
}
