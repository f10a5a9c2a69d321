// Package memory runs the process-wide background coordination loops: a
// cleanup loop that sweeps expired resource records (tightening its
// threshold under memory pressure) and a reclamation loop that forces
// collection and watches the short-term heap trend. The manager only ever
// observes and warns; it never takes fatal action against the process.
package memory

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Sweeper reclaims records whose last access exceeds maxAge and reports how
// many it removed. *tracker.Tracker satisfies it.
type Sweeper interface {
	SweepExpired(maxAge time.Duration) int
}

// Trend classifies the short-term heap direction.
type Trend int

const (
	TrendStable Trend = iota
	TrendRising
	TrendFalling
)

// String returns a stable name for the trend.
func (t Trend) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	default:
		return "stable"
	}
}

// Options configures a Manager.
type Options struct {
	// CleanupInterval is the period of the expiry sweep loop.
	CleanupInterval time.Duration
	// ReclaimInterval is the period of the reclamation loop.
	ReclaimInterval time.Duration
	// MaxAge is the default sweep threshold; it is halved while memory
	// pressure is detected.
	MaxAge time.Duration
	// PressureBytes is the heap-alloc level above which pressure is
	// detected.
	PressureBytes uint64
	// TrendWindow is the number of heap samples the trend looks across.
	TrendWindow int
	// TrendThresholdPct is the percent change above which a rise is
	// reported.
	TrendThresholdPct float64
	// Cooldown is the pause after a failed loop iteration.
	Cooldown time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithCleanupInterval sets the sweep loop period.
func WithCleanupInterval(d time.Duration) Option { return func(o *Options) { o.CleanupInterval = d } }

// WithReclaimInterval sets the reclamation loop period.
func WithReclaimInterval(d time.Duration) Option { return func(o *Options) { o.ReclaimInterval = d } }

// WithMaxAge sets the default sweep threshold.
func WithMaxAge(d time.Duration) Option { return func(o *Options) { o.MaxAge = d } }

// WithPressureBytes sets the heap level that counts as memory pressure.
func WithPressureBytes(n uint64) Option { return func(o *Options) { o.PressureBytes = n } }

// WithTrendWindow sets the number of samples the trend classification uses.
func WithTrendWindow(n int) Option { return func(o *Options) { o.TrendWindow = n } }

// WithTrendThreshold sets the percent change that counts as a sustained
// rise or fall.
func WithTrendThreshold(pct float64) Option { return func(o *Options) { o.TrendThresholdPct = pct } }

// WithCooldown sets the pause after a failed iteration.
func WithCooldown(d time.Duration) Option { return func(o *Options) { o.Cooldown = d } }

func defaultOptions() Options {
	return Options{
		CleanupInterval:   time.Minute,
		ReclaimInterval:   30 * time.Second,
		MaxAge:            30 * time.Minute,
		PressureBytes:     512 << 20,
		TrendWindow:       5,
		TrendThresholdPct: 10,
		Cooldown:          5 * time.Second,
	}
}

// Manager owns the two periodic loops. Construct one per process and pass it
// by reference to whoever needs the pressure or trend signal.
type Manager struct {
	sweeper Sweeper
	opts    Options

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	pressure atomic.Bool
	trend    atomic.Int32

	sampleMu sync.Mutex
	samples  []uint64
}

// NewManager returns a Manager sweeping through sweeper. Nothing runs until
// Start.
func NewManager(sweeper Sweeper, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{sweeper: sweeper, opts: o}
}

// Start launches both loops. Calling Start on a running manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.started = true
	m.wg.Add(2)
	go m.loop(ctx, m.opts.CleanupInterval, m.cleanupIteration)
	go m.loop(ctx, m.opts.ReclaimInterval, m.reclaimIteration)
}

// Stop cancels both loops and waits for them to finish. No background
// activity remains once it returns. Calling Stop on a stopped manager is a
// no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()
	cancel()
	m.wg.Wait()
}

// Pressure reports whether the last heap sample exceeded the pressure
// threshold.
func (m *Manager) Pressure() bool { return m.pressure.Load() }

// Trend returns the last classified heap trend.
func (m *Manager) Trend() Trend { return Trend(m.trend.Load()) }

// loop runs iteration on every tick. Iteration failures are contained:
// logged, followed by a cooldown, and the loop keeps going. Transient
// failures must not disable ongoing monitoring.
func (m *Manager) loop(ctx context.Context, interval time.Duration, iteration func()) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok := m.runIteration(iteration); !ok {
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.opts.Cooldown):
				}
			}
		}
	}
}

func (m *Manager) runIteration(iteration func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("coreops: memory loop iteration failed", "panic", p)
			ok = false
		}
	}()
	iteration()
	return true
}

// cleanupIteration refreshes the pressure flag and sweeps expired records,
// halving the threshold while under pressure.
func (m *Manager) cleanupIteration() {
	m.SweepNow()
}

// SweepNow runs one pressure-aware sweep immediately and returns the number
// of records reclaimed. The administrative optimization pass uses it outside
// the loop schedule.
func (m *Manager) SweepNow() int {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.pressure.Store(m.opts.PressureBytes > 0 && ms.HeapAlloc >= m.opts.PressureBytes)

	maxAge := m.opts.MaxAge
	if m.pressure.Load() {
		maxAge /= 2
	}
	n := m.sweeper.SweepExpired(maxAge)
	if n > 0 {
		slog.Info("coreops: swept expired resources", "count", n, "max_age", maxAge)
	}
	return n
}

// reclaimIteration requests a collection, samples the heap and classifies
// the short-term trend. A sustained rise is surfaced as a warning only;
// the manager never takes fatal action.
func (m *Manager) reclaimIteration() {
	runtime.GC()
	debug.FreeOSMemory()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.sampleMu.Lock()
	m.samples = append(m.samples, ms.HeapAlloc)
	if len(m.samples) > m.opts.TrendWindow {
		m.samples = m.samples[len(m.samples)-m.opts.TrendWindow:]
	}
	window := append([]uint64(nil), m.samples...)
	m.sampleMu.Unlock()

	t := classifyTrend(window, m.opts.TrendThresholdPct)
	m.trend.Store(int32(t))
	if t == TrendRising {
		slog.Warn("coreops: heap trending up after collection",
			"heap_bytes", ms.HeapAlloc, "window", len(window))
	}
}

// classifyTrend compares the first and last samples of the window and maps
// the percent change against threshold. Fewer than two samples is stable.
func classifyTrend(samples []uint64, thresholdPct float64) Trend {
	if len(samples) < 2 || samples[0] == 0 {
		return TrendStable
	}
	first := float64(samples[0])
	last := float64(samples[len(samples)-1])
	change := (last - first) / first * 100
	switch {
	case change > thresholdPct:
		return TrendRising
	case change < -thresholdPct:
		return TrendFalling
	default:
		return TrendStable
	}
}
