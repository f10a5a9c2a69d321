package health

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/coreops/coreops/lock"
	"github.com/coreops/coreops/pool"
	"github.com/coreops/coreops/tracker"
)

// QueueWorker holds the task-id sets reported for one job-queue worker.
type QueueWorker struct {
	Active    []string
	Reserved  []string
	Scheduled []string
	Revoked   []string
}

// QueueStatus is the read-only view of the external job queue.
type QueueStatus struct {
	// QueueLengths maps queue name to current length.
	QueueLengths map[string]int
	// Workers maps worker name to its task-id sets.
	Workers map[string]QueueWorker

	Total     int
	Completed int
	Failed    int
	Active    int
	// SuccessRate is a derived percentage over completed tasks.
	SuccessRate float64
}

// StoreStatus is the read-only view of the external cache/store.
type StoreStatus struct {
	Reachable bool
	Latency   time.Duration
	Keys      int64
}

// DiskStats carries already-sampled disk point values.
type DiskStats struct {
	TotalBytes uint64
	UsedBytes  uint64
	FreeBytes  uint64
	Percent    float64
}

// NetStats carries already-sampled network counters.
type NetStats struct {
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
}

// SystemStats is the OS-telemetry view. Values are point samples; smoothing
// is the provider's concern, not this package's.
type SystemStats struct {
	CPUPercent        float64
	ProcessMemPercent float64
	Disk              DiskStats
	Net               NetStats
}

// QueueStatusProvider exposes job-queue status. Implementations live with
// the host service.
type QueueStatusProvider interface {
	QueueStatus(ctx context.Context) (*QueueStatus, error)
}

// StoreStatusProvider exposes external store status. An unreachable store is
// reported as Reachable=false, not as an error.
type StoreStatusProvider interface {
	StoreStatus(ctx context.Context) (*StoreStatus, error)
}

// TelemetryProvider exposes OS telemetry samples.
type TelemetryProvider interface {
	SystemStats(ctx context.Context) (*SystemStats, error)
}

// LockStatusProvider is the coordinator's maintenance view.
type LockStatusProvider interface {
	Status(ctx context.Context) *lock.Status
}

// ResourceStatsProvider is the tracker's stats view.
type ResourceStatsProvider interface {
	Stats() tracker.Stats
}

// PoolStatusProvider is the admission gate's counter view.
type PoolStatusProvider interface {
	Status() pool.Status
}

// PressureProvider reports whether memory pressure is currently detected.
type PressureProvider interface {
	Pressure() bool
}

// RedisStore probes a Redis client for the external store boundary.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore returns a StoreStatusProvider over client. The client is
// typically shared with the lock coordinator.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// StoreStatus implements StoreStatusProvider. Connectivity loss degrades to
// Reachable=false; it never surfaces as an error.
func (r *RedisStore) StoreStatus(ctx context.Context) (*StoreStatus, error) {
	start := time.Now()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &StoreStatus{}, nil
	}
	st := &StoreStatus{Reachable: true, Latency: time.Since(start)}
	if n, err := r.client.DBSize(ctx).Result(); err == nil {
		st.Keys = n
	}
	return st, nil
}
