package apiserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/jobs"
	"github.com/llmcouncil/macrotrader/internal/pipeline"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

func newTestServer(t *testing.T) (*Server, *jobs.Manager) {
	t.Helper()
	logger := zap.NewNop()
	mgr := jobs.New(logger, time.Hour, func(weekID council.WeekId) *pipeline.Pipeline {
		return pipeline.New(logger, nil)
	})
	mgr.Start()
	t.Cleanup(func() { mgr.Stop() })
	return New(logger, ":0", mgr), mgr
}

func firstWednesday() string {
	d := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Wednesday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

func TestHandleCreateAndGetJob(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"week_id": firstWednesday()})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	id := created["job_id"]
	if id == "" {
		t.Fatal("expected a job_id in response")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	getRec := httptest.NewRecorder()
	srv.router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRec.Code)
	}
}

func TestHandleCreateJobRejectsNonWednesday(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"week_id": "2026-01-01"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-Wednesday week_id, got %d", rec.Code)
	}
}

func TestHandleGetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlePoolStats(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/pool/stats", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode pool stats: %v", err)
	}
	if _, ok := stats["tasks_submitted"]; !ok {
		t.Fatal("expected tasks_submitted in pool stats response")
	}
}

func TestHandleCancelJob(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"week_id": firstWednesday()})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	var created map[string]string
	json.Unmarshal(rec.Body.Bytes(), &created)

	cancelReq := httptest.NewRequest(http.MethodPost, "/jobs/"+created["job_id"]+"/cancel", nil)
	cancelRec := httptest.NewRecorder()
	srv.router.ServeHTTP(cancelRec, cancelReq)
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", cancelRec.Code)
	}
}
