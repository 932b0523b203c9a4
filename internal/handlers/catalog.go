package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/services"
	"github.com/temcen/goanalog/pkg/models"
)

const (
	defaultSimilarCount = 10
	defaultSearchLimit  = 20
)

// CatalogHandler serves item lookups that do not depend on a user's usage.
type CatalogHandler struct {
	service services.RecommendationServiceInterface
	logger  *logrus.Logger
}

func NewCatalogHandler(service services.RecommendationServiceInterface, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		logger:  logger,
	}
}

// Similar lists the target items closest to one source item: GET /api/v1/similar/:itemId
func (h *CatalogHandler) Similar(c *gin.Context) {
	n, err := queryInt(c, "n")
	if err != nil {
		badRequest(c, "INVALID_PARAMETERS", err.Error())
		return
	}
	if _, set := c.GetQuery("n"); !set {
		n = defaultSimilarCount
	}

	reverse, err := queryBool(c, "reverse")
	if err != nil {
		badRequest(c, "INVALID_PARAMETERS", err.Error())
		return
	}

	resp, err := h.service.Similar(c.Request.Context(), c.Query("domain"), c.Param("itemId"), n, reverse != nil && *reverse)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Items searches a catalog by title: GET /api/v1/items?domain=boardgames&q=catan
func (h *CatalogHandler) Items(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "INVALID_PARAMETERS", err.Error())
		return
	}
	if _, set := c.GetQuery("limit"); !set {
		limit = defaultSearchLimit
	}

	domain := c.DefaultQuery("domain", models.DomainBoardGames)
	resp, err := h.service.SearchItems(domain, c.Query("q"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
