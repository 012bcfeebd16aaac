package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/KafClaw/taskclaw/internal/agent"
	"github.com/KafClaw/taskclaw/internal/executor"
	"github.com/KafClaw/taskclaw/internal/timeline"
)

type fakeProcessor struct {
	mu   sync.Mutex
	reqs []agent.Request
	res  executor.Result
}

func (f *fakeProcessor) Process(_ context.Context, req agent.Request) executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.res
}

func newTestServer(t *testing.T, token string, withTimeline bool) (*httptest.Server, *fakeProcessor, *timeline.TimelineService) {
	t.Helper()
	proc := &fakeProcessor{res: executor.Result{
		Success:          true,
		Message:          "Project 'Website Revamp' created successfully",
		Actions:          []string{"Create Project"},
		CreatedProjectID: "p1",
		CreatedTaskIDs:   []string{},
	}}
	var tl *timeline.TimelineService
	if withTimeline {
		var err error
		tl, err = timeline.NewTimelineService(filepath.Join(t.TempDir(), "timeline.db"))
		if err != nil {
			t.Fatalf("open timeline: %v", err)
		}
		t.Cleanup(func() { tl.Close() })
	}
	srv := NewServer(Options{AuthToken: token, Processor: proc, Timeline: tl})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, proc, tl
}

func postCommand(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url+"/api/v1/commands", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t, "secret", false)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 without token, got %d", resp.StatusCode)
	}
}

func TestCreateCommand(t *testing.T) {
	ts, proc, _ := newTestServer(t, "", false)
	resp := postCommand(t, ts.URL, "", map[string]any{"text": "  Create a project called Website Revamp ", "dryRun": true, "sender": "alice"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success || got.CreatedProjectID != "p1" || got.TraceID == "" {
		t.Errorf("unexpected response %+v", got)
	}
	if resp.Header.Get("X-Trace-Id") != got.TraceID {
		t.Errorf("trace header mismatch: %q vs %q", resp.Header.Get("X-Trace-Id"), got.TraceID)
	}
	if len(proc.reqs) != 1 {
		t.Fatalf("expected 1 processed request, got %d", len(proc.reqs))
	}
	req := proc.reqs[0]
	if req.Text != "Create a project called Website Revamp" || !req.DryRun || req.Sender != "alice" || req.Channel != "api" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestCreateCommandValidation(t *testing.T) {
	ts, proc, _ := newTestServer(t, "", false)
	resp := postCommand(t, ts.URL, "", map[string]any{"text": "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/commands", bytes.NewReader([]byte("{not json")))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", resp2.StatusCode)
	}
	if len(proc.reqs) != 0 {
		t.Fatal("invalid requests must not reach the pipeline")
	}
}

func TestAuthToken(t *testing.T) {
	ts, proc, _ := newTestServer(t, "secret", false)
	resp := postCommand(t, ts.URL, "wrong", map[string]any{"text": "Delete the Foo project"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = postCommand(t, ts.URL, "secret", map[string]any{"text": "Delete the Foo project"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(proc.reqs) != 1 {
		t.Fatalf("expected 1 processed request, got %d", len(proc.reqs))
	}
}

func TestHistoryEndpoints(t *testing.T) {
	ts, _, tl := newTestServer(t, "", true)
	for _, rec := range []*timeline.CommandRecord{
		{TraceID: "t1", Channel: "api", Input: "Create a project called A", Success: true},
		{TraceID: "t2", Channel: "slack", Input: "Delete the B project", Success: false, Message: "Project not found"},
	} {
		if err := tl.LogCommand(rec); err != nil {
			t.Fatalf("log command: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/v1/commands?failed=true")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var records []timeline.CommandRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(records) != 1 || records[0].TraceID != "t2" {
		t.Fatalf("unexpected records %+v", records)
	}

	resp, err = http.Get(ts.URL + "/api/v1/commands/t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var rec timeline.CommandRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if rec.Input != "Create a project called A" {
		t.Errorf("unexpected record %+v", rec)
	}

	resp, err = http.Get(ts.URL + "/api/v1/commands/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var stats timeline.CommandStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if stats.Total != 2 || stats.Succeeded != 1 || stats.Failed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHistoryWithoutTimeline(t *testing.T) {
	ts, _, _ := newTestServer(t, "", false)
	resp, err := http.Get(ts.URL + "/api/v1/commands")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestInvalidLimit(t *testing.T) {
	ts, _, _ := newTestServer(t, "", true)
	resp, err := http.Get(ts.URL + "/api/v1/commands?limit=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
