package store

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStore_GetPut(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "taskstate:billing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected absent key")
	}

	if err := s.Put(ctx, "taskstate:billing", "Started"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, found, err := s.Get(ctx, "taskstate:billing")
	if err != nil || !found {
		t.Fatalf("Expected key present, found=%v err=%v", found, err)
	}
	if value != "Started" {
		t.Errorf("Expected Started, got %q", value)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "k", "v1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "k", "v2"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, _, _ := s.Get(ctx, "k")
	if value != "v2" {
		t.Errorf("Expected v2, got %q", value)
	}
}

func TestMemoryStore_ListByPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entries := map[string]string{
		"taskstate:billing": "Started",
		"taskstate:cleanup": "Stopped",
		"deployment:version": "v42",
	}
	for k, v := range entries {
		if err := s.Put(ctx, k, v); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := s.List(ctx, "taskstate:")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got["taskstate:billing"] != "Started" || got["taskstate:cleanup"] != "Stopped" {
		t.Errorf("Unexpected listing: %v", got)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Put(ctx, "shared", "value")
				_, _, _ = s.Get(ctx, "shared")
				_, _ = s.List(ctx, "sh")
			}
		}()
	}
	wg.Wait()

	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("cassandra", ""); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open("memory", "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Expected *MemoryStore, got %T", s)
	}
}
