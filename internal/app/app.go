package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/catalog"
	"github.com/temcen/goanalog/internal/config"
	"github.com/temcen/goanalog/internal/database"
	"github.com/temcen/goanalog/internal/dataset"
	"github.com/temcen/goanalog/internal/handlers"
	"github.com/temcen/goanalog/internal/messaging"
	"github.com/temcen/goanalog/internal/middleware"
	"github.com/temcen/goanalog/internal/services"
	"github.com/temcen/goanalog/internal/usage"
	"github.com/temcen/goanalog/internal/validation"
	"github.com/temcen/goanalog/pkg/models"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	publisher messaging.Publisher
	services  *services.Services
	handlers  *handlers.Handlers
	validator *validation.SchemaValidator
	router    *gin.Engine
}

// New connects the optional stores, loads the similarity models and builds the router. A failed
// initial model load is logged and left to the admin reload endpoint; the health check reports
// the service unhealthy until then.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: SetupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(ctx, cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	metrics := services.NewMetrics(prometheus.DefaultRegisterer, app.logger)

	registry, err := NewRegistry(cfg, db, app.logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	source := usage.NewSteamClient(&cfg.Steam, metrics, app.logger)
	app.publisher = messaging.NewPublisher(cfg.Kafka, app.logger)

	// Initialize services
	app.services = services.New(cfg, app.logger, db, registry, source, app.publisher, metrics)

	if _, err := app.services.Recommendations.Reload(ctx); err != nil {
		app.logger.WithError(err).Error("Initial model load failed, serving without models")
	}

	app.validator = validation.NewSchemaValidator()
	if err := app.validator.LoadSchemas(); err != nil {
		_ = app.Shutdown(ctx)
		return nil, fmt.Errorf("failed to load request schemas: %w", err)
	}

	// Initialize handlers
	app.handlers = handlers.New(app.logger, app.services, prometheus.DefaultGatherer)

	// Setup router
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Logger() *logrus.Logger {
	return a.logger
}

// Server returns an http.Server for the router using the configured port and request timeout.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              ":" + a.config.Server.Port,
		Handler:           a.router,
		ReadHeaderTimeout: a.config.Server.RequestTimeout,
		WriteTimeout:      a.config.Server.RequestTimeout,
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing event publisher")
			errs = append(errs, err)
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SetupLogger builds the process logger from the logging config.
func SetupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// NewRegistry creates a model registry whose catalogs come from CSV files or, with
// catalog.source postgres, from the catalog_items table. The registry starts empty.
func NewRegistry(cfg *config.Config, db *database.Database, logger *logrus.Logger) (*dataset.Registry, error) {
	loader, err := CatalogLoader(cfg, db, logger)
	if err != nil {
		return nil, err
	}
	return dataset.NewRegistry(dataset.NewBuilder(cfg.Datasets, loader, logger), logger), nil
}

func CatalogLoader(cfg *config.Config, db *database.Database, logger *logrus.Logger) (catalog.Loader, error) {
	switch cfg.Catalog.Source {
	case "postgres":
		if db == nil || db.PG == nil {
			return nil, fmt.Errorf("catalog source postgres needs a database connection")
		}
		return catalog.NewRepository(db.PG, logger), nil
	default:
		return catalog.NewCSVLoader(map[string]string{
			models.DomainBoardGames: cfg.Catalog.BoardGamesCSV,
			models.DomainVideoGames: cfg.Catalog.VideoGamesCSV,
		}, logger), nil
	}
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	if a.config.Monitoring.Enabled {
		router.Use(middleware.Metrics(a.services.Metrics))
	}
	router.Use(middleware.CompressionMiddleware())

	// Health check endpoints
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/health/live", a.handlers.Health.Live)

	// Prometheus metrics endpoint
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, a.handlers.Metrics.Serve)
	}

	responseCache := middleware.CacheMiddleware(a.redis(), &middleware.CacheConfig{
		DefaultTTL: a.config.Caching.ResponseTTL,
		MaxSize:    1 << 20,
		KeyPrefix:  "goanalog:http",
	}, a.logger)
	validate := middleware.NewValidationMiddleware(a.validator)

	api := router.Group("/api/v1")
	{
		// Recommendation routes
		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/:userId", a.handlers.Recommendation.Get)
			recommendations.POST("", validate.ValidateRecommendationRequest(), a.handlers.Recommendation.Post)
		}

		// Catalog routes
		api.GET("/similar/:itemId", a.handlers.Catalog.Similar)
		api.GET("/items", responseCache, a.handlers.Catalog.Items)

		admin := api.Group("/admin")
		{
			admin.POST("/reload", a.handlers.Admin.Reload)
		}
	}

	a.router = router
}

// redis returns the response cache client, or an untyped nil when caching is off.
func (a *App) redis() redis.Cmdable {
	if !a.config.Caching.Enabled || a.db.Redis == nil {
		return nil
	}
	return a.db.Redis
}
