package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type HealthService struct {
	logger  *logrus.Logger
	metrics *Metrics
	timeout time.Duration

	mu     sync.RWMutex
	checks []healthCheck
}

type healthCheck struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
	Latency     time.Duration     `json:"latency,omitempty"`
	Details     map[string]any    `json:"details,omitempty"`
}

// NewHealthService creates a health service. metrics may be nil.
func NewHealthService(logger *logrus.Logger, metrics *Metrics) *HealthService {
	return &HealthService{
		logger:  logger,
		metrics: metrics,
		timeout: 5 * time.Second,
	}
}

// AddCheck registers a dependency probe. A failing critical check makes the service unhealthy; a
// failing non-critical one only degrades it.
func (s *HealthService) AddCheck(name string, critical bool, check func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, healthCheck{name: name, critical: critical, check: check})
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start.UTC(),
		Services:  make(map[string]string),
	}

	s.mu.RLock()
	checks := append([]healthCheck(nil), s.checks...)
	s.mu.RUnlock()

	allCriticalHealthy := true
	for _, hc := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := hc.check(checkCtx)
		cancel()

		if err != nil {
			status.Services[hc.name] = "unhealthy"
			if hc.critical {
				status.Critical = append(status.Critical, hc.name)
				allCriticalHealthy = false
				s.logger.WithError(err).Errorf("Critical service %s is unhealthy", hc.name)
			} else {
				status.NonCritical = append(status.NonCritical, hc.name)
				s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", hc.name)
			}
		} else {
			status.Services[hc.name] = "healthy"
		}

		if s.metrics != nil {
			s.metrics.UpdateHealthMetrics(hc.name, err == nil)
		}
	}
	sort.Strings(status.Critical)
	sort.Strings(status.NonCritical)

	// Overall status
	if allCriticalHealthy {
		if len(status.NonCritical) == 0 {
			status.Status = "healthy"
		} else {
			status.Status = "degraded"
		}
	} else {
		status.Status = "unhealthy"
	}

	status.Latency = time.Since(start)
	return status
}
