package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAcquisitions tracks successful distributed lock acquisitions.
	LockAcquisitions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coreops_lock_acquisitions_total",
		Help: "Total number of successful lock acquisitions",
	})
	// LockContention tracks acquisition attempts that found the lock held.
	LockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coreops_lock_contention_total",
		Help: "Total number of lock acquisition attempts that hit contention",
	})
	// LockForcedReleases tracks administrative lock overrides.
	LockForcedReleases = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coreops_lock_forced_releases_total",
		Help: "Total number of administratively forced lock releases",
	})
	// TrackedResources reports the number of live resource records.
	TrackedResources = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coreops_tracked_resources",
		Help: "Current number of registered resource records",
	})
	// TrackedBytes reports the declared size of live resource records.
	TrackedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coreops_tracked_bytes",
		Help: "Declared bytes held by registered resource records",
	})
	// SweptResources tracks records reclaimed by expiry sweeps.
	SweptResources = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coreops_swept_resources_total",
		Help: "Total number of resource records reclaimed by expiry sweeps",
	})
	// PoolActive reports connections currently admitted by the pool gate.
	PoolActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coreops_pool_active_connections",
		Help: "Connections currently held out of the bounded pool",
	})
	// HealthScore reports the last computed aggregate health score.
	HealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coreops_health_score",
		Help: "Last aggregate health score in [0,100]",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers coreops metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		LockAcquisitions, LockContention, LockForcedReleases,
		TrackedResources, TrackedBytes, SweptResources,
		PoolActive, HealthScore,
	)
}
