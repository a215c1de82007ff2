package ttlcache

import (
	"testing"
	"time"
)

func TestStore_SetGet(t *testing.T) {
	s := New[string, int](func(int) time.Duration { return time.Minute }, time.Hour)
	defer s.Stop()

	s.Set("a", 1)
	v, ok := s.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := New[string, int](func(int) time.Duration { return time.Minute }, time.Hour)
	defer s.Stop()

	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) = ok, want not found")
	}
}

func TestStore_VariableTTL(t *testing.T) {
	ttlFor := func(ok bool) time.Duration {
		if ok {
			return time.Hour
		}
		return time.Millisecond
	}
	s := New[string, bool](ttlFor, time.Hour)
	defer s.Stop()

	s.Set("healthy", true)
	s.Set("failed", false)

	time.Sleep(10 * time.Millisecond)

	if _, ok := s.Get("healthy"); !ok {
		t.Error("healthy entry expired too early")
	}
	if _, ok := s.Get("failed"); ok {
		t.Error("failed entry with short TTL should have expired")
	}
}

func TestStore_Delete(t *testing.T) {
	s := New[string, int](func(int) time.Duration { return time.Minute }, time.Hour)
	defer s.Stop()

	s.Set("a", 1)
	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Error("Get(a) after Delete should not be found")
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := New[string, int](func(int) time.Duration { return time.Minute }, time.Hour)
	defer s.Stop()

	s.Set("a", 1)
	s.Set("b", 2)

	snap := s.Snapshot()
	if len(snap) != 2 || snap["a"] != 1 || snap["b"] != 2 {
		t.Errorf("Snapshot() = %v, want map[a:1 b:2]", snap)
	}
}

func TestStore_CleanupLoop(t *testing.T) {
	s := New[string, int](func(int) time.Duration { return time.Millisecond }, 5*time.Millisecond)
	defer s.Stop()

	s.Set("a", 1)
	time.Sleep(50 * time.Millisecond)

	// Keys() skips expired entries on its own, so inspect the backing map
	// to see whether the cleanup loop actually pruned them.
	s.mu.Lock()
	remaining := len(s.data)
	s.mu.Unlock()
	if remaining != 0 {
		t.Errorf("len(data) after cleanup = %d, want 0", remaining)
	}
}

func TestStore_StopIdempotent(t *testing.T) {
	s := New[string, int](func(int) time.Duration { return time.Minute }, time.Hour)
	s.Stop()
	s.Stop()
}
