package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	PoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenant_pool_connections",
			Help: "Current pooled tenant connections by state",
		},
		[]string{"state"},
	)
	PoolDials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_pool_dials_total",
			Help: "Total tenant datasource dial attempts by result",
		},
		[]string{"result"},
	)
	PoolEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_pool_evictions_total",
			Help: "Total idle tenant connections evicted by the sweep",
		},
	)
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total authentication failures by reason",
		},
		[]string{"reason"},
	)
	TenantsProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenants_provisioned_total",
			Help: "Total number of tenants provisioned by status",
		},
		[]string{"status"},
	)
	ProvisioningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tenant_provisioning_duration_seconds",
			Help:    "Duration of tenant provisioning in seconds",
			Buckets: prometheus.LinearBuckets(0, 1, 10), // 0 to 10 seconds
		},
	)
)

func InitMetrics() {
	collectors := map[string]prometheus.Collector{
		"PoolConnections":      PoolConnections,
		"PoolDials":            PoolDials,
		"PoolEvictions":        PoolEvictions,
		"AuthFailures":         AuthFailures,
		"TenantsProvisioned":   TenantsProvisioned,
		"ProvisioningDuration": ProvisioningDuration,
	}
	for name, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
}

// SetPoolGauges publishes the current pool composition.
func SetPoolGauges(total, active, idle int) {
	PoolConnections.WithLabelValues("total").Set(float64(total))
	PoolConnections.WithLabelValues("active").Set(float64(active))
	PoolConnections.WithLabelValues("idle").Set(float64(idle))
}
