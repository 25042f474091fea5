// Package metrics registra los collectors Prometheus del servicio.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests cuenta requests por método, ruta y status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dify",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observa la latencia por ruta.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dify",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Logins cuenta resoluciones de identidad por proveedor y resultado.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dify",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Identity resolutions by provider and outcome.",
	}, []string{"provider", "outcome"})

	// TenantsProvisioned cuenta workspaces auto-creados.
	TenantsProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dify",
		Subsystem: "auth",
		Name:      "tenants_provisioned_total",
		Help:      "Workspaces auto-provisioned during login.",
	})

	// APIKeyValidations cuenta validaciones de api keys por resultado.
	APIKeyValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dify",
		Subsystem: "service_api",
		Name:      "api_key_validations_total",
		Help:      "Service API key validations by outcome.",
	}, []string{"outcome"})
)

// Handler expone el endpoint /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
