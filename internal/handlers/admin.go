package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/services"
)

// AdminHandler handles operational requests
type AdminHandler struct {
	service services.RecommendationServiceInterface
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service services.RecommendationServiceInterface, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger,
	}
}

// Reload rebuilds the similarity models and catalogs from their sources. The previous models keep
// serving if the rebuild fails.
func (h *AdminHandler) Reload(c *gin.Context) {
	result, err := h.service.Reload(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"version": result.Version,
		"pairs":   result.Pairs,
	}).Info("Models reloaded via admin API")

	c.JSON(http.StatusOK, gin.H{
		"message": "Models reloaded",
		"result":  result,
	})
}
