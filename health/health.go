package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/coreops/coreops/lock"
	"github.com/coreops/coreops/pool"
	"github.com/coreops/coreops/tracker"
)

var tracer = otel.Tracer("github.com/coreops/coreops/health")

// Snapshot is the ephemeral merged status of all monitored subsystems.
// Never persisted; recomputed on each collection. A nil section means the
// subsystem did not answer; the matching entry in Errors says why.
type Snapshot struct {
	Timestamp time.Time

	Locks     *lock.Status
	Resources *tracker.Stats
	Pool      *pool.Status
	Queue     *QueueStatus
	Store     *StoreStatus
	System    *SystemStats

	MemoryPressure bool

	// Errors maps subsystem name to its collection failure.
	Errors map[string]string
}

// Report bundles a snapshot with its derived score and alerts.
type Report struct {
	Snapshot *Snapshot
	Score    int
	Alerts   []Alert
}

// Aggregator fans out to every registered subsystem and reduces the results.
// Nil collaborators are simply skipped; their sections stay absent.
type Aggregator struct {
	locks     LockStatusProvider
	resources ResourceStatsProvider
	pool      PoolStatusProvider
	pressure  PressureProvider
	queue     QueueStatusProvider
	store     StoreStatusProvider
	telemetry TelemetryProvider

	traceEnabled bool
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithTracing enables OpenTelemetry spans around collections.
func WithTracing() AggregatorOption {
	return func(a *Aggregator) { a.traceEnabled = true }
}

// New returns an Aggregator over the given subsystems. Any of them may be
// nil.
func New(locks LockStatusProvider, resources ResourceStatsProvider, p PoolStatusProvider,
	pressure PressureProvider, queue QueueStatusProvider, store StoreStatusProvider,
	telemetry TelemetryProvider, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		locks:     locks,
		resources: resources,
		pool:      p,
		pressure:  pressure,
		queue:     queue,
		store:     store,
		telemetry: telemetry,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Collect issues independent, concurrently-executing status requests and
// merges the results. A failure (error or panic) in one subsystem records
// an error marker and leaves its section absent; it never cancels or fails
// the others. Collect itself always returns a snapshot.
func (a *Aggregator) Collect(ctx context.Context) *Snapshot {
	var span trace.Span
	if a.traceEnabled {
		ctx, span = tracer.Start(ctx, "Health.Collect")
		defer span.End()
	}

	s := &Snapshot{Timestamp: time.Now(), Errors: make(map[string]string)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					mu.Lock()
					s.Errors[name] = fmt.Sprintf("panic: %v", p)
					mu.Unlock()
				}
			}()
			if err := fn(ctx); err != nil {
				mu.Lock()
				s.Errors[name] = err.Error()
				mu.Unlock()
			}
		}()
	}

	if a.locks != nil {
		run("locks", func(ctx context.Context) error {
			st := a.locks.Status(ctx)
			mu.Lock()
			s.Locks = st
			mu.Unlock()
			return nil
		})
	}
	if a.resources != nil {
		run("resources", func(context.Context) error {
			st := a.resources.Stats()
			mu.Lock()
			s.Resources = &st
			mu.Unlock()
			return nil
		})
	}
	if a.pool != nil {
		run("pool", func(context.Context) error {
			st := a.pool.Status()
			mu.Lock()
			s.Pool = &st
			mu.Unlock()
			return nil
		})
	}
	if a.pressure != nil {
		run("memory", func(context.Context) error {
			p := a.pressure.Pressure()
			mu.Lock()
			s.MemoryPressure = p
			mu.Unlock()
			return nil
		})
	}
	if a.queue != nil {
		run("queue", func(ctx context.Context) error {
			st, err := a.queue.QueueStatus(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			s.Queue = st
			mu.Unlock()
			return nil
		})
	}
	if a.store != nil {
		run("store", func(ctx context.Context) error {
			st, err := a.store.StoreStatus(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			s.Store = st
			mu.Unlock()
			return nil
		})
	}
	if a.telemetry != nil {
		run("system", func(ctx context.Context) error {
			st, err := a.telemetry.SystemStats(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			s.System = st
			mu.Unlock()
			return nil
		})
	}

	wg.Wait()
	if a.traceEnabled {
		span.SetAttributes(attribute.Int("coreops.health.failed_subsystems", len(s.Errors)))
	}
	return s
}

// Report collects a snapshot and derives its score and alerts in one call.
func (a *Aggregator) Report(ctx context.Context) *Report {
	s := a.Collect(ctx)
	return &Report{Snapshot: s, Score: Score(s), Alerts: Alerts(s)}
}
