package tracker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/coreops/coreops/metrics"
)

// Type classifies a tracked resource.
type Type int

const (
	TypeMemory Type = iota
	TypeFile
	TypeDBConnection
	TypeNetConnection
	TypeCacheEntry
	TypeTempFile
)

// String returns a stable name for the type.
func (t Type) String() string {
	switch t {
	case TypeMemory:
		return "memory"
	case TypeFile:
		return "file"
	case TypeDBConnection:
		return "db_connection"
	case TypeNetConnection:
		return "net_connection"
	case TypeCacheEntry:
		return "cache_entry"
	case TypeTempFile:
		return "temp_file"
	default:
		return "unknown"
	}
}

// ErrDuplicateID is returned when registering an id that is already live.
var ErrDuplicateID = errors.New("coreops: resource id already registered")

// ErrClosed is returned when registering on a closed tracker.
var ErrClosed = errors.New("coreops: tracker closed")

// Record is the authoritative bookkeeping entry for one resource. The
// tracker owns it from registration to unregistration.
type Record struct {
	ID         string
	Type       Type
	CreatedAt  time.Time
	LastAccess time.Time
	Size       int64
	Metadata   map[string]string

	cleanup func() error
}

// TypeStats aggregates live records of one type.
type TypeStats struct {
	Count int
	Bytes int64
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Count     int
	Bytes     int64
	ByType    map[Type]TypeStats
	OldestAge time.Duration
	NewestAge time.Duration
}

// disposalBuffer bounds the queue of pending disposal signals.
const disposalBuffer = 256

// Tracker is the resource registry. A single mutex serializes every
// mutation: registration, sweeps and disposal-driven reclamation can all
// race concurrently.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	closed  bool

	disposals chan string
	done      chan struct{}
	wg        sync.WaitGroup
}

// New returns a Tracker and starts its disposal worker.
func New() *Tracker {
	t := &Tracker{
		records:   make(map[string]*Record),
		disposals: make(chan string, disposalBuffer),
		done:      make(chan struct{}),
	}
	t.wg.Add(1)
	go t.disposalLoop()
	return t
}

// Register adds a record for id. An empty id gets a generated one; the
// assigned id is returned. cleanup, if non-nil, runs at most once, when the
// record is unregistered. Registering a live id returns ErrDuplicateID.
func (t *Tracker) Register(id string, typ Type, size int64, meta map[string]string, cleanup func() error) (string, error) {
	if id == "" {
		generated, err := uuid.GenerateUUID()
		if err != nil {
			return "", err
		}
		id = generated
	}
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrClosed
	}
	if _, exists := t.records[id]; exists {
		return "", ErrDuplicateID
	}
	t.records[id] = &Record{
		ID:         id,
		Type:       typ,
		CreatedAt:  now,
		LastAccess: now,
		Size:       size,
		Metadata:   meta,
		cleanup:    cleanup,
	}
	metrics.TrackedResources.Inc()
	metrics.TrackedBytes.Add(float64(size))
	return id, nil
}

// Touch refreshes the last-access time for id. It reports whether the
// record exists.
func (t *Tracker) Touch(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[id]
	if !ok {
		return false
	}
	r.LastAccess = time.Now()
	return true
}

// Unregister removes the record for id and runs its cleanup action. It is
// idempotent: only the call that actually removes the record runs cleanup,
// so the action executes at most once. A failing cleanup is logged and
// swallowed; bookkeeping must not become a source of cascading failure.
func (t *Tracker) Unregister(id string) bool {
	t.mu.Lock()
	r, ok := t.records[id]
	if ok {
		delete(t.records, id)
		metrics.TrackedResources.Dec()
		metrics.TrackedBytes.Sub(float64(r.Size))
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	t.runCleanup(r)
	return true
}

func (t *Tracker) runCleanup(r *Record) {
	if r.cleanup == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("coreops: resource cleanup panicked", "id", r.ID, "panic", p)
		}
	}()
	if err := r.cleanup(); err != nil {
		slog.Warn("coreops: resource cleanup failed", "id", r.ID, "error", err)
	}
}

// MarkDisposed signals that the underlying object for id was discarded by
// its owner without an explicit Unregister. The record is reclaimed
// asynchronously by the disposal worker; when the queue is full the
// reclamation happens synchronously so the signal is never lost.
func (t *Tracker) MarkDisposed(id string) {
	select {
	case t.disposals <- id:
	default:
		t.Unregister(id)
	}
}

func (t *Tracker) disposalLoop() {
	defer t.wg.Done()
	for {
		select {
		case id := <-t.disposals:
			t.Unregister(id)
		case <-t.done:
			return
		}
	}
}

// Stats returns counts and byte totals grouped by type plus the age of the
// oldest and newest live records.
func (t *Tracker) Stats() Stats {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Stats{ByType: make(map[Type]TypeStats)}
	var oldest, newest time.Time
	for _, r := range t.records {
		st.Count++
		st.Bytes += r.Size
		ts := st.ByType[r.Type]
		ts.Count++
		ts.Bytes += r.Size
		st.ByType[r.Type] = ts
		if oldest.IsZero() || r.CreatedAt.Before(oldest) {
			oldest = r.CreatedAt
		}
		if newest.IsZero() || r.CreatedAt.After(newest) {
			newest = r.CreatedAt
		}
	}
	if !oldest.IsZero() {
		st.OldestAge = now.Sub(oldest)
		st.NewestAge = now.Sub(newest)
	}
	return st
}

// SweepExpired unregisters every record whose last access is at least
// maxAge old and returns the number reclaimed. Cleanup actions run outside
// the registry lock.
func (t *Tracker) SweepExpired(maxAge time.Duration) int {
	now := time.Now()
	t.mu.Lock()
	var expired []*Record
	for id, r := range t.records {
		if now.Sub(r.LastAccess) >= maxAge {
			delete(t.records, id)
			metrics.TrackedResources.Dec()
			metrics.TrackedBytes.Sub(float64(r.Size))
			expired = append(expired, r)
		}
	}
	t.mu.Unlock()
	for _, r := range expired {
		t.runCleanup(r)
	}
	if n := len(expired); n > 0 {
		metrics.SweptResources.Add(float64(n))
	}
	return len(expired)
}

// Close stops the disposal worker and waits for it to finish. Records still
// registered stay registered; Close is about background activity, not about
// forcing reclamation.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	close(t.done)
	t.wg.Wait()
}
