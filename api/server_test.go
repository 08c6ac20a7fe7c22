package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"evtxlink/config"
	"evtxlink/evtx"
)

func testRouter() http.Handler {
	stats := evtx.NewStats()
	cfg := config.DefaultConfig()
	cfg.Namespace = "testhost"
	cfg.Inputs = []string{"a.evtx"}
	router, _, _ := NewRouter(stats, cfg)
	return router
}

func TestHandleStats(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var snap evtx.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.RecordsParsed != 0 {
		t.Errorf("RecordsParsed = %d, want 0 for a fresh Stats", snap.RecordsParsed)
	}
}

func TestHandleConfig(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ConfigResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Namespace != "testhost" {
		t.Errorf("Namespace = %q, want %q", resp.Namespace, "testhost")
	}
	if len(resp.Inputs) != 1 || resp.Inputs[0] != "a.evtx" {
		t.Errorf("Inputs = %v, want [a.evtx]", resp.Inputs)
	}
}

func TestHandleSSEConnects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		testRouter().ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleSSE did not return after request context cancellation")
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
