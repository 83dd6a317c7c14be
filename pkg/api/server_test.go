package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/models"
	"github.com/ben-moore/lokad-cloud/pkg/store"
	"github.com/ben-moore/lokad-cloud/pkg/task"
)

func testLogger() *logging.Logger {
	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)
	return log
}

func testStatus() NodeStatus {
	return NodeStatus{
		Identity:    models.HostIdentity{WorkerName: "worker-1", CellName: "default"},
		ActiveRunID: "run-123",
		UptimeSec:   42,
	}
}

func newTestServer(st store.Store) *Server {
	return NewServer(":0", st, testStatus, testLogger())
}

func TestHealth_OK(t *testing.T) {
	s := newTestServer(store.NewMemoryStore())

	rec := httptest.NewRecorder()
	s.Health(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", body["status"])
	}
}

type unhealthyStore struct {
	store.Store
}

func (unhealthyStore) HealthCheck(ctx context.Context) error {
	return store.ErrUnavailable
}

func TestHealth_Degraded(t *testing.T) {
	s := newTestServer(unhealthyStore{Store: store.NewMemoryStore()})

	rec := httptest.NewRecorder()
	s.Health(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(store.NewMemoryStore())

	rec := httptest.NewRecorder()
	s.Status(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got NodeStatus
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Identity.WorkerName != "worker-1" || got.ActiveRunID != "run-123" {
		t.Errorf("Unexpected status payload: %+v", got)
	}
}

func TestListTasks(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	if err := st.Put(ctx, task.StateKey("billing"), "Started"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put(ctx, task.StateKey("cleanup"), "Stopped"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put(ctx, "deployment:version", "v1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	s := newTestServer(st)
	rec := httptest.NewRecorder()
	s.ListTasks(rec, httptest.NewRequest("GET", "/tasks", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 task entries, got %d: %v", len(got), got)
	}
	if got["billing"] != "Started" || got["cleanup"] != "Stopped" {
		t.Errorf("Unexpected task states: %v", got)
	}
}
