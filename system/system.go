// Package system wires the control plane together. One System is built from
// a Config at process start and passed by reference to every consumer; it
// replaces implicit first-use singletons with an explicit Init/Shutdown
// lifecycle. It also carries the administrative surface an external API
// layer consumes: on-demand health snapshots, the immediate optimization
// pass, selective cache clearing and alert listing.
package system

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"

	redis "github.com/redis/go-redis/v9"

	"github.com/coreops/coreops/cache"
	"github.com/coreops/coreops/health"
	"github.com/coreops/coreops/lock"
	"github.com/coreops/coreops/memory"
	"github.com/coreops/coreops/pool"
	"github.com/coreops/coreops/tracker"
)

// ErrNoStore is returned when neither a client nor connection options are
// configured for the shared store.
var ErrNoStore = errors.New("coreops: no store client or options configured")

// defaultPoolSize bounds backend connections when the host does not choose.
const defaultPoolSize = 10

// Config assembles a System. Client takes precedence over Redis when both
// are set; Queue and Telemetry are the host service's external providers and
// may be nil.
type Config struct {
	// Client is an existing store client the system should use. The system
	// takes ownership and closes it on Shutdown.
	Client redis.UniversalClient
	// Redis is dialed when Client is nil.
	Redis *redis.Options

	PoolSize int

	LockOptions   []lock.Option
	MemoryOptions []memory.Option
	CacheOptions  []cache.Option
	HealthOptions []health.AggregatorOption

	Queue     health.QueueStatusProvider
	Telemetry health.TelemetryProvider
}

// System holds every long-lived component of the control plane.
type System struct {
	Locks     *lock.Coordinator
	Resources *tracker.Tracker
	Pool      *pool.Pool
	Memory    *memory.Manager
	Caches    *cache.Store
	Health    *health.Aggregator
}

// OptimizeResult reports what one optimization pass did. Step failures are
// recorded, not fatal: the remaining steps still run.
type OptimizeResult struct {
	SweptResources int
	RemovedLocks   int
	ClearedCaches  int
	Errors         []string
}

// New constructs a System from cfg. Nothing touches the network until Init.
func New(cfg Config) (*System, error) {
	client := cfg.Client
	if client == nil {
		if cfg.Redis == nil {
			return nil, ErrNoStore
		}
		client = redis.NewClient(cfg.Redis)
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	p, err := pool.New(size)
	if err != nil {
		return nil, err
	}

	coord := lock.NewCoordinator(client, cfg.LockOptions...)
	resources := tracker.New()
	mm := memory.NewManager(resources, cfg.MemoryOptions...)
	caches := cache.NewStore(cfg.CacheOptions...)
	agg := health.New(coord, resources, p, mm, cfg.Queue,
		health.NewRedisStore(client), cfg.Telemetry, cfg.HealthOptions...)

	return &System{
		Locks:     coord,
		Resources: resources,
		Pool:      p,
		Memory:    mm,
		Caches:    caches,
		Health:    agg,
	}, nil
}

// Init verifies store connectivity and starts the background loops. Store
// unreachability is the only fatal initialization error; everything after
// Init degrades instead of failing.
func (s *System) Init(ctx context.Context) error {
	if err := s.Locks.Initialize(ctx); err != nil {
		return err
	}
	s.Memory.Start()
	return nil
}

// Shutdown stops background work, waits for it, and releases every held
// resource. It is safe to call after a failed Init.
func (s *System) Shutdown(ctx context.Context) error {
	s.Memory.Stop()
	s.Resources.Close()
	s.Caches.Close()
	return s.Locks.Close()
}

// Snapshot collects an on-demand health report.
func (s *System) Snapshot(ctx context.Context) *health.Report {
	return s.Health.Report(ctx)
}

// Alerts lists the alerts derived from a fresh snapshot.
func (s *System) Alerts(ctx context.Context) []health.Alert {
	return health.Alerts(s.Health.Collect(ctx))
}

// ClearCache empties one named cache category, reporting whether it
// existed.
func (s *System) ClearCache(name string) bool {
	return s.Caches.Clear(name)
}

// Optimize runs an immediate optimization pass: forced reclamation, an
// expired-resource sweep, an expired-lock sweep and a full cache clear.
func (s *System) Optimize(ctx context.Context) OptimizeResult {
	var res OptimizeResult

	runtime.GC()
	debug.FreeOSMemory()

	res.SweptResources = s.Memory.SweepNow()

	removed, err := s.Locks.CleanupExpired(ctx)
	res.RemovedLocks = removed
	if err != nil {
		res.Errors = append(res.Errors, "lock cleanup: "+err.Error())
	}

	res.ClearedCaches = s.Caches.ClearAll()
	return res
}
