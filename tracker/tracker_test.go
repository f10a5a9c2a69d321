package tracker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterAndSweepRunsCleanupOnce(t *testing.T) {
	tr := New()
	defer tr.Close()

	var cleanups atomic.Int32
	id, err := tr.Register("res-1", TypeFile, 128, nil, func() error {
		cleanups.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id != "res-1" {
		t.Fatalf("register returned id %q", id)
	}

	if n := tr.SweepExpired(0); n != 1 {
		t.Fatalf("sweep removed %d records, want 1", n)
	}
	if got := cleanups.Load(); got != 1 {
		t.Fatalf("cleanup ran %d times, want 1", got)
	}

	// The record is gone; nothing left to clean.
	if tr.Unregister("res-1") {
		t.Fatal("unregister after sweep reported a removal")
	}
	if got := cleanups.Load(); got != 1 {
		t.Fatalf("cleanup re-ran, total %d", got)
	}
}

func TestRegisterDuplicateAndGeneratedIDs(t *testing.T) {
	tr := New()
	defer tr.Close()

	if _, err := tr.Register("dup", TypeMemory, 0, nil, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := tr.Register("dup", TypeMemory, 0, nil, nil); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	id, err := tr.Register("", TypeCacheEntry, 0, nil, nil)
	if err != nil {
		t.Fatalf("register with generated id: %v", err)
	}
	if id == "" {
		t.Fatal("no id generated")
	}
	if !tr.Touch(id) {
		t.Fatal("generated id not registered")
	}
}

func TestTouchKeepsRecordAlive(t *testing.T) {
	tr := New()
	defer tr.Close()

	if _, err := tr.Register("res", TypeNetConnection, 0, nil, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if !tr.Touch("res") {
		t.Fatal("touch of live record failed")
	}
	if n := tr.SweepExpired(15 * time.Millisecond); n != 0 {
		t.Fatalf("sweep reclaimed a freshly touched record, count %d", n)
	}
	if tr.Touch("ghost") {
		t.Fatal("touch of unknown id succeeded")
	}
}

func TestUnregisterSwallowsCleanupFailure(t *testing.T) {
	tr := New()
	defer tr.Close()

	if _, err := tr.Register("bad", TypeTempFile, 0, nil, func() error {
		return errors.New("unlink failed")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !tr.Unregister("bad") {
		t.Fatal("unregister did not remove the record")
	}

	if _, err := tr.Register("worse", TypeTempFile, 0, nil, func() error {
		panic("cleanup panic")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !tr.Unregister("worse") {
		t.Fatal("unregister did not survive a panicking cleanup")
	}
	if tr.Stats().Count != 0 {
		t.Fatal("failed cleanups pinned their records")
	}
}

func TestMarkDisposedReclaimsAsynchronously(t *testing.T) {
	tr := New()
	defer tr.Close()

	done := make(chan struct{})
	if _, err := tr.Register("owned", TypeDBConnection, 0, nil, func() error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tr.MarkDisposed("owned")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disposal worker never reclaimed the record")
	}
}

func TestStatsGroupsByType(t *testing.T) {
	tr := New()
	defer tr.Close()

	if _, err := tr.Register("f1", TypeFile, 100, nil, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := tr.Register("f2", TypeFile, 50, map[string]string{"path": "/tmp/x"}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := tr.Register("m1", TypeMemory, 1024, nil, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := tr.Stats()
	if st.Count != 3 || st.Bytes != 1174 {
		t.Fatalf("stats totals: %+v", st)
	}
	if ts := st.ByType[TypeFile]; ts.Count != 2 || ts.Bytes != 150 {
		t.Fatalf("file stats: %+v", ts)
	}
	if ts := st.ByType[TypeMemory]; ts.Count != 1 || ts.Bytes != 1024 {
		t.Fatalf("memory stats: %+v", ts)
	}
	if st.OldestAge < st.NewestAge {
		t.Fatalf("oldest age %v younger than newest %v", st.OldestAge, st.NewestAge)
	}
}

func TestConcurrentMutationIsSerialized(t *testing.T) {
	tr := New()
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id, err := tr.Register("", TypeCacheEntry, 1, nil, nil)
				if err != nil {
					t.Errorf("register: %v", err)
					return
				}
				tr.Touch(id)
				if j%2 == 0 {
					tr.Unregister(id)
				} else {
					tr.MarkDisposed(id)
				}
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for tr.Stats().Count > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("disposal backlog never drained, %d records left", tr.Stats().Count)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegisterAfterClose(t *testing.T) {
	tr := New()
	tr.Close()
	tr.Close() // idempotent

	if _, err := tr.Register("late", TypeMemory, 0, nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
