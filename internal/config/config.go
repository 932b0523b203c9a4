package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Steam          SteamConfig          `mapstructure:"steam"`
	Datasets       DatasetsConfig       `mapstructure:"datasets"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Caching        CachingConfig        `mapstructure:"caching"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	Mode            string        `mapstructure:"mode" validate:"oneof=development production test"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections" validate:"gte=1"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// KafkaConfig enables event publishing when at least one broker is set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		Recommendations string `mapstructure:"recommendations"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type SteamConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=1"`
	CacheSize         int           `mapstructure:"cache_size" validate:"gte=0"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	Breaker           BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"gt=0,lte=1"`
}

// DomainPairConfig describes one similarity model: source items are the columns, target items
// the rows.
type DomainPairConfig struct {
	MatrixPath   string `mapstructure:"matrix_path" validate:"required"`
	SourceDomain string `mapstructure:"source_domain" validate:"required"`
	TargetDomain string `mapstructure:"target_domain" validate:"required"`
}

// SameDomain reports whether recommendations come from the catalog the usage was measured in.
func (p DomainPairConfig) SameDomain() bool {
	return p.SourceDomain == p.TargetDomain
}

type DatasetsConfig struct {
	BGG   DomainPairConfig `mapstructure:"bgg"`
	Steam DomainPairConfig `mapstructure:"steam"`
}

// Pairs returns the configured domain pairs by name.
func (d DatasetsConfig) Pairs() map[string]DomainPairConfig {
	return map[string]DomainPairConfig{
		"bgg":   d.BGG,
		"steam": d.Steam,
	}
}

type CatalogConfig struct {
	Source        string `mapstructure:"source" validate:"oneof=csv postgres"`
	BoardGamesCSV string `mapstructure:"boardgames_csv"`
	VideoGamesCSV string `mapstructure:"videogames_csv"`
}

// RecommendationConfig holds the engine defaults applied when a request does not override them.
type RecommendationConfig struct {
	DefaultDomain  string  `mapstructure:"default_domain" validate:"oneof=bgg steam"`
	UsageCutoff    float64 `mapstructure:"usage_cutoff" validate:"gte=0"`
	ZScore         bool    `mapstructure:"z_score"`
	MinNeighbors   int     `mapstructure:"min_neighbors" validate:"gte=1"`
	NeighborCutoff float64 `mapstructure:"neighbor_cutoff" validate:"gte=-1,lte=1"`
	BasedOn        int     `mapstructure:"based_on" validate:"gte=1"`
	PopularGames   bool    `mapstructure:"popular_games"`
	Limit          int     `mapstructure:"limit" validate:"gte=1"`
	MaxLimit       int     `mapstructure:"max_limit" validate:"gtefield=Limit"`
}

type CachingConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
	SimilarTTL         time.Duration `mapstructure:"similar_ttl"`
	ResponseTTL        time.Duration `mapstructure:"response_ttl"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// Load reads configuration from path, or from config/app.yaml when path is empty. The file is
// optional; environment variables such as STEAM_API_KEY override it.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks value ranges and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Catalog.Source == "csv" && (c.Catalog.BoardGamesCSV == "" || c.Catalog.VideoGamesCSV == "") {
		return fmt.Errorf("invalid configuration: catalog.source csv needs boardgames_csv and videogames_csv")
	}
	if c.Catalog.Source == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("invalid configuration: catalog.source postgres needs database.url")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topics.recommendations", "goanalog.recommendations")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Steam defaults
	v.SetDefault("steam.base_url", "https://api.steampowered.com")
	v.SetDefault("steam.api_key", "")
	v.SetDefault("steam.timeout", "10s")
	v.SetDefault("steam.requests_per_second", 5.0)
	v.SetDefault("steam.burst", 10)
	v.SetDefault("steam.cache_size", 1024)
	v.SetDefault("steam.cache_ttl", "10m")
	v.SetDefault("steam.breaker.max_requests", 3)
	v.SetDefault("steam.breaker.interval", "1m")
	v.SetDefault("steam.breaker.timeout", "30s")
	v.SetDefault("steam.breaker.min_requests", 10)
	v.SetDefault("steam.breaker.failure_ratio", 0.6)

	// Dataset defaults
	v.SetDefault("datasets.bgg.matrix_path", "./web_app_dataset/ism_bgg.csv.bz2")
	v.SetDefault("datasets.bgg.source_domain", "videogames")
	v.SetDefault("datasets.bgg.target_domain", "boardgames")
	v.SetDefault("datasets.steam.matrix_path", "./web_app_dataset/ism_steam.csv.bz2")
	v.SetDefault("datasets.steam.source_domain", "videogames")
	v.SetDefault("datasets.steam.target_domain", "videogames")

	// Catalog defaults
	v.SetDefault("catalog.source", "csv")
	v.SetDefault("catalog.boardgames_csv", "./web_app_dataset/bg_info_for_app.csv")
	v.SetDefault("catalog.videogames_csv", "./web_app_dataset/vg_info_for_app.csv")

	// Recommendation defaults
	v.SetDefault("recommendation.default_domain", "bgg")
	v.SetDefault("recommendation.usage_cutoff", 10.0)
	v.SetDefault("recommendation.z_score", true)
	v.SetDefault("recommendation.min_neighbors", 3)
	v.SetDefault("recommendation.neighbor_cutoff", 0.15)
	v.SetDefault("recommendation.based_on", 3)
	v.SetDefault("recommendation.popular_games", true)
	v.SetDefault("recommendation.limit", 10)
	v.SetDefault("recommendation.max_limit", 50)

	// Caching defaults
	v.SetDefault("caching.enabled", true)
	v.SetDefault("caching.recommendations_ttl", "15m")
	v.SetDefault("caching.similar_ttl", "1h")
	v.SetDefault("caching.response_ttl", "5m")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}
