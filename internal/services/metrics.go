package services

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Metrics owns every Prometheus collector of the service. It implements usage.Observer.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	recommendations     *prometheus.CounterVec
	recommendedItems    *prometheus.CounterVec
	recommendationTime  *prometheus.HistogramVec
	upstreamRequests    *prometheus.CounterVec
	upstreamDuration    *prometheus.HistogramVec
	breakerState        *prometheus.GaugeVec
	cacheRequests       *prometheus.CounterVec
	modelReloads        *prometheus.CounterVec
	modelLoadedAt       prometheus.Gauge
	healthCheckStatus   *prometheus.GaugeVec
	lastHealthCheck     *prometheus.GaugeVec
	dbConnectionMetrics *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A collector that is already
// registered is reused, so several Metrics may share prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, logger *logrus.Logger) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goanalog_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goanalog_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goanalog_recommendations_total",
			Help: "Recommendation requests by domain, mode and outcome",
		}, []string{"domain", "mode", "outcome"}),
		recommendedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goanalog_recommended_items_total",
			Help: "Scored target items by score kind",
		}, []string{"domain", "kind"}),
		recommendationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goanalog_recommendation_duration_seconds",
			Help:    "Time spent in the recommendation pipeline, usage fetch included",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"domain"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goanalog_upstream_requests_total",
			Help: "Usage source calls by outcome",
		}, []string{"source", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goanalog_upstream_request_duration_seconds",
			Help:    "Usage source call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goanalog_circuit_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		}, []string{"name"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goanalog_cache_requests_total",
			Help: "Result cache lookups by result",
		}, []string{"cache", "result"}),
		modelReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goanalog_model_reloads_total",
			Help: "Model reloads by outcome",
		}, []string{"outcome"}),
		modelLoadedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goanalog_models_loaded_timestamp_seconds",
			Help: "Unix time of the active model snapshot",
		}),
		healthCheckStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goanalog_health_check_status",
			Help: "Health check status (1 = healthy, 0 = unhealthy)",
		}, []string{"service"}),
		lastHealthCheck: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goanalog_health_check_timestamp",
			Help: "Timestamp of last health check",
		}, []string{"service"}),
		dbConnectionMetrics: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goanalog_database_connections",
			Help: "PostgreSQL connection pool state",
		}, []string{"state"}),
	}

	m.httpRequests = register(reg, m.httpRequests, logger)
	m.httpDuration = register(reg, m.httpDuration, logger)
	m.recommendations = register(reg, m.recommendations, logger)
	m.recommendedItems = register(reg, m.recommendedItems, logger)
	m.recommendationTime = register(reg, m.recommendationTime, logger)
	m.upstreamRequests = register(reg, m.upstreamRequests, logger)
	m.upstreamDuration = register(reg, m.upstreamDuration, logger)
	m.breakerState = register(reg, m.breakerState, logger)
	m.cacheRequests = register(reg, m.cacheRequests, logger)
	m.modelReloads = register(reg, m.modelReloads, logger)
	m.modelLoadedAt = register(reg, m.modelLoadedAt, logger)
	m.healthCheckStatus = register(reg, m.healthCheckStatus, logger)
	m.lastHealthCheck = register(reg, m.lastHealthCheck, logger)
	m.dbConnectionMetrics = register(reg, m.dbConnectionMetrics, logger)

	return m
}

// register ignores AlreadyRegisteredError and hands back the existing collector in that case.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, logger *logrus.Logger) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("Failed to register metric")
	}
	return c
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveRecommendation records one pipeline run. outcome is "ok" or an error code.
func (m *Metrics) ObserveRecommendation(domain, mode, outcome string, elapsed time.Duration, personalized, fallback int) {
	m.recommendations.WithLabelValues(domain, mode, outcome).Inc()
	m.recommendationTime.WithLabelValues(domain).Observe(elapsed.Seconds())
	if personalized > 0 {
		m.recommendedItems.WithLabelValues(domain, "personalized").Add(float64(personalized))
	}
	if fallback > 0 {
		m.recommendedItems.WithLabelValues(domain, "popularity").Add(float64(fallback))
	}
}

func (m *Metrics) ObserveUpstream(source, outcome string, seconds float64) {
	m.upstreamRequests.WithLabelValues(source, outcome).Inc()
	if seconds > 0 {
		m.upstreamDuration.WithLabelValues(source).Observe(seconds)
	}
}

func (m *Metrics) SetBreakerState(name string, state float64) {
	m.breakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) ObserveReload(loadedAt time.Time, err error) {
	if err != nil {
		m.modelReloads.WithLabelValues("error").Inc()
		return
	}
	m.modelReloads.WithLabelValues("success").Inc()
	m.modelLoadedAt.Set(float64(loadedAt.Unix()))
}

// UpdateHealthMetrics updates health check metrics
func (m *Metrics) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		m.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		m.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	m.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}

// SetDatabaseConnections records a snapshot of the PostgreSQL pool.
func (m *Metrics) SetDatabaseConnections(acquired, idle, total, maxConns int32) {
	m.dbConnectionMetrics.WithLabelValues("acquired_conns").Set(float64(acquired))
	m.dbConnectionMetrics.WithLabelValues("idle_conns").Set(float64(idle))
	m.dbConnectionMetrics.WithLabelValues("total_conns").Set(float64(total))
	m.dbConnectionMetrics.WithLabelValues("max_conns").Set(float64(maxConns))
}
