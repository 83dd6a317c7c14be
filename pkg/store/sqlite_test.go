package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_GetPut(t *testing.T) {
	s := newTestSQLiteStore(t)
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

func TestSQLiteStore_PutUpserts(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "deployment:version", "v1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "deployment:version", "v2"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, _, _ := s.Get(ctx, "deployment:version")
	if value != "v2" {
		t.Errorf("Expected v2, got %q", value)
	}
}

func TestSQLiteStore_ListByPrefix(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for k, v := range map[string]string{
		"taskstate:billing":  "Started",
		"taskstate:cleanup":  "Stopped",
		"deployment:version": "v42",
	} {
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
	if got["taskstate:billing"] != "Started" {
		t.Errorf("Unexpected listing: %v", got)
	}
}

func TestSQLiteStore_HealthCheck(t *testing.T) {
	s := newTestSQLiteStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestSQLiteStore_OpenBadPath(t *testing.T) {
	if _, err := NewSQLiteStore("/nonexistent-dir/sub/test.db"); err == nil {
		t.Error("Expected error for unwritable path")
	}
}
