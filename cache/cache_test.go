package cache

import (
	"testing"
	"time"
)

func TestCategorySetGetDel(t *testing.T) {
	s := NewStore()
	defer s.Close()

	sessions := s.Category("sessions")
	if sessions.Name() != "sessions" {
		t.Fatalf("category name %q", sessions.Name())
	}
	sessions.Set("user:1", "alice", 1, 0)
	v, ok := sessions.Get("user:1")
	if !ok || v.(string) != "alice" {
		t.Fatalf("get after set: %v %v", v, ok)
	}

	sessions.Del("user:1")
	if _, ok := sessions.Get("user:1"); ok {
		t.Fatal("value survived delete")
	}
}

func TestCategoryIsReusedOnSecondLookup(t *testing.T) {
	s := NewStore()
	defer s.Close()

	a := s.Category("queries")
	a.Set("q", 42, 1, 0)
	b := s.Category("queries")
	if v, ok := b.Get("q"); !ok || v.(int) != 42 {
		t.Fatalf("second lookup returned a different category: %v %v", v, ok)
	}
}

func TestClearTargetsOneCategory(t *testing.T) {
	s := NewStore()
	defer s.Close()

	s.Category("sessions").Set("k", "v", 1, 0)
	s.Category("queries").Set("k", "v", 1, 0)

	if !s.Clear("sessions") {
		t.Fatal("clear of existing category reported false")
	}
	if _, ok := s.Category("sessions").Get("k"); ok {
		t.Fatal("cleared category still holds values")
	}
	if _, ok := s.Category("queries").Get("k"); !ok {
		t.Fatal("clear emptied an unrelated category")
	}

	if s.Clear("unknown") {
		t.Fatal("clear of unknown category reported true")
	}
}

func TestClearAllAndNames(t *testing.T) {
	s := NewStore()
	defer s.Close()

	s.Category("b").Set("k", "v", 1, 0)
	s.Category("a").Set("k", "v", 1, 0)

	names := s.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names: %v", names)
	}
	if n := s.ClearAll(); n != 2 {
		t.Fatalf("cleared %d categories, want 2", n)
	}
	if _, ok := s.Category("a").Get("k"); ok {
		t.Fatal("value survived ClearAll")
	}
}

func TestSetWithTTLExpires(t *testing.T) {
	s := NewStore()
	defer s.Close()

	c := s.Category("ephemeral")
	c.Set("k", "v", 1, 20*time.Millisecond)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("value missing before TTL")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("value survived its TTL")
	}
}
