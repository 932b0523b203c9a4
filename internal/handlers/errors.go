package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/middleware"
	"github.com/temcen/goanalog/internal/services"
)

var errorStatus = map[string]int{
	"INVALID_INPUT":        http.StatusBadRequest,
	"INVALID_PARAMETERS":   http.StatusBadRequest,
	"UNKNOWN_DOMAIN":       http.StatusBadRequest,
	"UNKNOWN_ITEM":         http.StatusNotFound,
	"USER_NOT_FOUND":       http.StatusNotFound,
	"PROFILE_PRIVATE":      http.StatusForbidden,
	"NO_USAGE":             http.StatusUnprocessableEntity,
	"NO_RECOMMENDATIONS":   http.StatusUnprocessableEntity,
	"UPSTREAM_UNAVAILABLE": http.StatusServiceUnavailable,
	"MODELS_NOT_LOADED":    http.StatusServiceUnavailable,
}

// Messages shown instead of the wrapped error text, which may name internal files or URLs.
var errorMessages = map[string]string{
	"USER_NOT_FOUND":       "No Steam account exists for this id",
	"PROFILE_PRIVATE":      "The Steam profile's game details are private",
	"NO_USAGE":             "No games with enough playtime were found",
	"NO_RECOMMENDATIONS":   "Not enough overlap with the catalog to make recommendations",
	"UPSTREAM_UNAVAILABLE": "The usage source is temporarily unavailable",
	"MODELS_NOT_LOADED":    "Similarity models are not loaded yet",
	"INTERNAL_ERROR":       "Internal server error",
}

// respondError writes the error envelope for a service error.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	code := services.ErrorCode(err)
	status, ok := errorStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message, ok := errorMessages[code]
	if !ok {
		message = err.Error()
	}

	entry := logger.WithFields(logrus.Fields{
		"request_id": c.GetString(middleware.RequestIDKey),
		"code":       code,
		"path":       c.Request.URL.Path,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	body := gin.H{
		"code":    code,
		"message": message,
	}
	if status == http.StatusServiceUnavailable {
		body["retryable"] = true
	}
	c.JSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
