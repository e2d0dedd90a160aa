package jobapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/arke-institute/kgextractor/internal/extract"
	"github.com/arke-institute/kgextractor/internal/jobstore"
)

type stubOrchestrator struct {
	result extract.JobResult
	err    error
	delay  time.Duration
}

func (s *stubOrchestrator) Run(ctx context.Context, req extract.JobRequest) (extract.JobResult, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.result, s.err
}

func testServer(t *testing.T, orchestrator Orchestrator) (*Server, *jobstore.Store) {
	t.Helper()
	store, err := jobstore.Open(jobstore.Config{DSN: filepath.Join(t.TempDir(), "jobs.db") + "?_journal_mode=WAL"})
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(orchestrator, store), store
}

func waitForStatus(t *testing.T, store *jobstore.Store, jobID string, want jobstore.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := store.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job record: %v", err)
		}
		if rec != nil && rec.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s within the deadline", jobID, want)
}

func TestHandleSubmitAndGet(t *testing.T) {
	orchestrator := &stubOrchestrator{result: extract.JobResult{NewEntityIDs: []string{"e-1", "e-2"}}}
	server, store := testServer(t, orchestrator)

	body, _ := json.Marshal(extract.JobRequest{JobID: "job-1", TargetEntity: "chunk-1", JobCollection: "moby-dick"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 Accepted, got %d: %s", w.Code, w.Body.String())
	}

	waitForStatus(t, store, "job-1", jobstore.StatusDone)

	getReq := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	getW := httptest.NewRecorder()
	server.ServeHTTP(getW, getReq)

	if getW.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", getW.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(getW.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != string(jobstore.StatusDone) {
		t.Errorf("expected status done, got %v", payload["status"])
	}
}

func TestHandleSubmitRejectsMissingTarget(t *testing.T) {
	server, _ := testServer(t, &stubOrchestrator{})

	body, _ := json.Marshal(extract.JobRequest{JobID: "job-2"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 Bad Request, got %d", w.Code)
	}
}

func TestHandleGetUnknownJob(t *testing.T) {
	server, _ := testServer(t, &stubOrchestrator{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 Not Found, got %d", w.Code)
	}
}

func TestHandleJobFailureRecordsError(t *testing.T) {
	orchestrator := &stubOrchestrator{err: extract.ErrMissingTargetEntity}
	server, store := testServer(t, orchestrator)

	body, _ := json.Marshal(extract.JobRequest{JobID: "job-3", TargetEntity: "chunk-1"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	waitForStatus(t, store, "job-3", jobstore.StatusError)
}

func TestHandleHealthz(t *testing.T) {
	server, _ := testServer(t, &stubOrchestrator{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
}
