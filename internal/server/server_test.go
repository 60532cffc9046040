package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sumveil/sumveil/internal/anonymize"
	"github.com/sumveil/sumveil/internal/config"
	"github.com/sumveil/sumveil/internal/job"
	"github.com/sumveil/sumveil/internal/provider"
	"github.com/sumveil/sumveil/internal/store"
)

func newTestServer(t *testing.T, prov provider.Provider) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	st := store.NewMemory(time.Minute)
	d := job.NewDispatcher(st, prov, anonymize.New(nil), job.Options{
		Workers:        2,
		Timeout:        5 * time.Second,
		ScoringEnabled: true,
	})
	t.Cleanup(d.Close)
	return New(cfg, d, st)
}

func postSummary(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestSubmitAndPoll(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("The summary.\n\nKeywords: summary"))

	w := postSummary(t, srv, "/v1/summaries", `{"query": "summarize the summary text"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var accepted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.JobID == "" || accepted.Status != store.StatusPending {
		t.Fatalf("accepted = %+v", accepted)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/v1/summaries/"+accepted.JobID, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("poll status = %d", w.Code)
		}

		var polled struct {
			Status     string   `json:"status"`
			Content    string   `json:"content"`
			Keywords   []string `json:"keywords"`
			Similarity *float64 `json:"similarity"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &polled); err != nil {
			t.Fatalf("decode poll: %v", err)
		}
		if polled.Status == store.StatusSucceeded {
			if polled.Content != "The summary.\n\nKeywords: summary" {
				t.Fatalf("content = %q", polled.Content)
			}
			if len(polled.Keywords) != 1 || polled.Similarity == nil {
				t.Fatalf("polled = %+v", polled)
			}
			break
		}
		if polled.Status == store.StatusFailed {
			t.Fatalf("job failed: %s", w.Body.String())
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished, last status %q", polled.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSyncQuery(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("Sync result.\n\nKeywords: result"))

	w := postSummary(t, srv, "/v1/summaries?sync=true", `{"query": "give me the result"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != store.StatusSucceeded || resp.Content != "Sync result.\n\nKeywords: result" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.JobID == "" {
		t.Fatalf("missing job id")
	}
}

func TestAPIKeyFromBodyAndHeader(t *testing.T) {
	fake := provider.NewFake("Sync result.\n\nKeywords: result")
	srv := newTestServer(t, fake)

	w := postSummary(t, srv, "/v1/summaries?sync=true", `{"api_key": "sk-from-body", "query": "give me the result"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if fake.LastRequest == nil || fake.LastRequest.APIKey != "sk-from-body" {
		t.Fatalf("provider request = %+v", fake.LastRequest)
	}

	// The Authorization header wins when both are present.
	req := httptest.NewRequest(http.MethodPost, "/v1/summaries?sync=true",
		strings.NewReader(`{"api_key": "sk-from-body", "query": "give me the result"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sk-from-header")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if fake.LastRequest.APIKey != "sk-from-header" {
		t.Fatalf("api key = %q, want header value", fake.LastRequest.APIKey)
	}
}

func TestSyncUpstreamErrorMapsToBadGateway(t *testing.T) {
	srv := newTestServer(t, &provider.FakeProvider{
		Error: &provider.UpstreamError{Status: http.StatusUnauthorized, Message: "invalid key"},
	})

	w := postSummary(t, srv, "/v1/summaries?sync=1", `{"query": "q"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	// Upstream detail must not leak through.
	if strings.Contains(w.Body.String(), "invalid key") {
		t.Fatalf("leaked upstream detail: %s", w.Body.String())
	}
}

func TestInvalidBody(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("x"))

	for _, body := range []string{"not json", `{"query": ""}`, `{"query": "   "}`} {
		w := postSummary(t, srv, "/v1/summaries", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, w.Code)
		}
	}
}

func TestBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("x"))
	srv.cfg.Server.MaxRequestBodyBytes = 64

	big := `{"query": "` + strings.Repeat("a", 256) + `"}`
	w := postSummary(t, srv, "/v1/summaries", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUnknownJobID(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("x"))

	req := httptest.NewRequest(http.MethodGet, "/v1/summaries/not-a-job", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("x"))

	req := httptest.NewRequest(http.MethodGet, "/v1/summaries", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestFailedJobReportsReason(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("no trailer here"))

	w := postSummary(t, srv, "/v1/summaries", `{"query": "q"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	var accepted struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/v1/summaries/"+accepted.JobID, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		var polled struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &polled); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if polled.Status == store.StatusFailed {
			if polled.Error != job.ReasonMalformedReply {
				t.Fatalf("error = %q", polled.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed, status %q", polled.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamEndpoint(t *testing.T) {
	srv := newTestServer(t, &provider.FakeProvider{
		Chunks: []string{"Streamed ", "summary.", "\n\nKeywords: summary"},
	})

	w := postSummary(t, srv, "/v1/summaries/stream", `{"query": "stream it"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var content bytes.Buffer
	sawDone := false
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			sawDone = true
			break
		}
		var delta struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			t.Fatalf("decode delta: %v", err)
		}
		content.WriteString(delta.Delta)
	}
	if !sawDone {
		t.Fatalf("missing [DONE]")
	}
	if !strings.HasPrefix(content.String(), "Streamed summary.") {
		t.Fatalf("streamed = %q", content.String())
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t, provider.NewFake("x"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/version", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "sumveil") {
		t.Fatalf("version = %d %s", w.Code, w.Body.String())
	}
}

func TestParseBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer sk-abc", "sk-abc", true},
		{"bearer sk-abc", "sk-abc", true},
		{"Bearer ", "", false},
		{"Basic dXNlcg==", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		token, ok := parseBearerToken(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("header %q: got (%q, %v)", tc.header, token, ok)
		}
	}
}
