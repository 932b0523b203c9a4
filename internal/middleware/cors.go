package middleware

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/temcen/goanalog/internal/config"
)

func CORS(cfg *config.Config) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  cfg.Security.CORS.AllowedMethods,
		AllowHeaders:  cfg.Security.CORS.AllowedHeaders,
		ExposeHeaders: []string{RequestIDHeader, "X-Cache"},
	}

	// The API is public and carries no credentials.
	if len(cfg.Security.CORS.AllowedOrigins) == 0 || slices.Contains(cfg.Security.CORS.AllowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = cfg.Security.CORS.AllowedOrigins
	}

	return cors.New(config)
}
