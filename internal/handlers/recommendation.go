package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/services"
	"github.com/temcen/goanalog/pkg/models"
)

type RecommendationHandler struct {
	service services.RecommendationServiceInterface
	logger  *logrus.Logger
}

func NewRecommendationHandler(
	service services.RecommendationServiceInterface,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		service: service,
		logger:  logger,
	}
}

// Get recommends for a Steam user: GET /api/v1/recommendations/:userId
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID := c.Param("userId")

	opts, err := parseOptions(c)
	if err != nil {
		badRequest(c, "INVALID_PARAMETERS", err.Error())
		return
	}

	resp, err := h.service.RecommendForUser(c.Request.Context(), userID, c.Query("domain"), opts)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	setCacheHeader(c, resp.CacheHit)
	c.JSON(http.StatusOK, resp)
}

// Post recommends from usage supplied in the body: POST /api/v1/recommendations
func (h *RecommendationHandler) Post(c *gin.Context) {
	var req models.RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_INPUT", "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.RecommendFromUsage(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	setCacheHeader(c, resp.CacheHit)
	c.JSON(http.StatusOK, resp)
}

// parseOptions reads recommendation overrides from the query string. Absent parameters keep the
// server defaults; malformed ones are rejected rather than ignored.
func parseOptions(c *gin.Context) (models.RecommendationOptions, error) {
	var opts models.RecommendationOptions
	var err error

	if opts.Limit, err = queryInt(c, "limit"); err != nil {
		return opts, err
	}
	if opts.MinNeighbors, err = queryInt(c, "min_neighbors"); err != nil {
		return opts, err
	}
	if opts.BasedOn, err = queryInt(c, "based_on"); err != nil {
		return opts, err
	}
	if opts.NeighborCutoff, err = queryFloat(c, "neighbor_cutoff"); err != nil {
		return opts, err
	}
	if opts.UsageCutoff, err = queryFloat(c, "usage_cutoff"); err != nil {
		return opts, err
	}
	if opts.ZScore, err = queryBool(c, "z_score"); err != nil {
		return opts, err
	}
	if opts.Popular, err = queryBool(c, "popular"); err != nil {
		return opts, err
	}

	showScores, err := queryBool(c, "show_scores")
	if err != nil {
		return opts, err
	}
	opts.ShowScores = showScores != nil && *showScores

	opts.Mode = c.Query("mode")
	opts.Sort = c.Query("sort")
	opts.Order = c.Query("order")
	opts.Sign = c.Query("sign")
	return opts, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

func queryFloat(c *gin.Context, key string) (*float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number, got %q", key, raw)
	}
	return &v, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false, got %q", key, raw)
	}
	return &v, nil
}

func setCacheHeader(c *gin.Context, hit bool) {
	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
}
