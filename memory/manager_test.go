package memory

import (
	"sync"
	"testing"
	"time"
)

type recordingSweeper struct {
	mu      sync.Mutex
	maxAges []time.Duration
	ret     int
	panics  int
}

func (r *recordingSweeper) SweepExpired(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panics > 0 {
		r.panics--
		panic("sweep blew up")
	}
	r.maxAges = append(r.maxAges, maxAge)
	return r.ret
}

func (r *recordingSweeper) calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.maxAges...)
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		name    string
		samples []uint64
		want    Trend
	}{
		{"empty", nil, TrendStable},
		{"single", []uint64{100}, TrendStable},
		{"flat", []uint64{100, 101, 100}, TrendStable},
		{"rising", []uint64{100, 150, 200}, TrendRising},
		{"falling", []uint64{200, 150, 80}, TrendFalling},
		{"within threshold", []uint64{100, 109}, TrendStable},
		{"zero first sample", []uint64{0, 100}, TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyTrend(tc.samples, 10); got != tc.want {
				t.Fatalf("classifyTrend(%v) = %v, want %v", tc.samples, got, tc.want)
			}
		})
	}
}

func TestTrendString(t *testing.T) {
	if TrendRising.String() != "rising" || TrendFalling.String() != "falling" || TrendStable.String() != "stable" {
		t.Fatal("trend names changed")
	}
}

func TestSweepNowTightensUnderPressure(t *testing.T) {
	sw := &recordingSweeper{ret: 3}

	// A 1-byte threshold means the heap is always over it.
	m := NewManager(sw, WithMaxAge(time.Hour), WithPressureBytes(1))
	if n := m.SweepNow(); n != 3 {
		t.Fatalf("sweep count = %d, want 3", n)
	}
	if !m.Pressure() {
		t.Fatal("pressure not detected with 1-byte threshold")
	}
	calls := sw.calls()
	if len(calls) != 1 || calls[0] != 30*time.Minute {
		t.Fatalf("sweep max age under pressure: %v, want 30m", calls)
	}

	// An absurdly high threshold means pressure never fires.
	relaxed := NewManager(sw, WithMaxAge(time.Hour), WithPressureBytes(1<<62))
	relaxed.SweepNow()
	if relaxed.Pressure() {
		t.Fatal("pressure detected below threshold")
	}
	calls = sw.calls()
	if calls[len(calls)-1] != time.Hour {
		t.Fatalf("sweep max age without pressure: %v, want 1h", calls[len(calls)-1])
	}
}

func TestStartStopLifecycle(t *testing.T) {
	sw := &recordingSweeper{}
	m := NewManager(sw,
		WithCleanupInterval(10*time.Millisecond),
		WithReclaimInterval(10*time.Millisecond),
		WithMaxAge(time.Minute),
		WithPressureBytes(1<<62),
		WithCooldown(time.Millisecond))

	m.Start()
	m.Start() // idempotent

	deadline := time.Now().Add(time.Second)
	for len(sw.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("cleanup loop never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	m.Stop() // idempotent

	// No background activity after Stop returns.
	before := len(sw.calls())
	time.Sleep(50 * time.Millisecond)
	if after := len(sw.calls()); after != before {
		t.Fatalf("sweeps continued after stop: %d -> %d", before, after)
	}

	if m.Trend() != TrendStable && m.Trend() != TrendFalling && m.Trend() != TrendRising {
		t.Fatalf("unclassified trend: %v", m.Trend())
	}
}

func TestLoopSurvivesIterationFailure(t *testing.T) {
	sw := &recordingSweeper{panics: 1}
	m := NewManager(sw,
		WithCleanupInterval(5*time.Millisecond),
		WithPressureBytes(1<<62),
		WithCooldown(time.Millisecond))
	m.Start()
	defer m.Stop()

	// The first iteration panics; later ones must still sweep.
	deadline := time.Now().Add(time.Second)
	for len(sw.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("loop did not continue after a failed iteration")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReclaimLoopClassifiesTrend(t *testing.T) {
	sw := &recordingSweeper{}
	m := NewManager(sw,
		WithCleanupInterval(time.Hour),
		WithReclaimInterval(5*time.Millisecond),
		WithTrendWindow(3),
		WithTrendThreshold(10))
	m.Start()
	defer m.Stop()

	// Heap samples of an idle test process settle quickly; we only assert
	// that the loop produces a classification at all.
	deadline := time.Now().Add(time.Second)
	for {
		m.sampleMu.Lock()
		n := len(m.samples)
		m.sampleMu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reclaim loop never sampled the heap")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
