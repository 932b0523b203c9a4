package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsHandler exposes the Prometheus registry
type MetricsHandler struct {
	handler gin.HandlerFunc
}

// NewMetricsHandler serves gatherer in the Prometheus text format. Exposition errors are logged
// and the remaining metrics are still served.
func NewMetricsHandler(logger *logrus.Logger, gatherer prometheus.Gatherer) *MetricsHandler {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      logger,
		ErrorHandling: promhttp.ContinueOnError,
	})
	return &MetricsHandler{handler: gin.WrapH(h)}
}

func (h *MetricsHandler) Serve(c *gin.Context) {
	h.handler(c)
}
