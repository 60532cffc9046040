package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sumveil/sumveil/internal/job"
	"github.com/sumveil/sumveil/internal/store"
)

type summaryRequest struct {
	Query string `json:"query"`
	// APIKey optionally carries the submitter's upstream key; the
	// Authorization bearer header works too and wins when both are set.
	APIKey string `json:"api_key,omitempty"`
}

type summaryAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type summaryResponse struct {
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"`
	Content    string     `json:"content,omitempty"`
	Keywords   []string   `json:"keywords,omitempty"`
	Similarity *float64   `json:"similarity,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// handleSummaries accepts a new summarization request. The default is
// asynchronous: 202 plus a job id to poll. With ?sync=true the pipeline
// runs inline and the full result is returned.
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}

	req, apiKey, ok := s.decodeSummaryRequest(w, r)
	if !ok {
		return
	}

	if parseBoolQuery(r.URL.Query().Get("sync")) {
		s.runSync(w, r, apiKey, req.Query)
		return
	}

	id, err := s.dispatcher.Submit(r.Context(), apiKey, req.Query)
	if errors.Is(err, job.ErrQueueFull) {
		writeJSONError(w, http.StatusServiceUnavailable, "summarization queue is full, retry later", "overloaded_error")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to accept request", "internal_error")
		return
	}

	writeJSON(w, http.StatusAccepted, summaryAccepted{JobID: id, Status: store.StatusPending})
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request, apiKey, query string) {
	id, res, err := s.dispatcher.Run(r.Context(), apiKey, query)
	if err != nil {
		status, msg, typ := classifyPipelineError(err)
		writeJSONError(w, status, msg, typ)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		JobID:      id,
		Status:     store.StatusSucceeded,
		Content:    res.Content,
		Keywords:   res.Keywords,
		Similarity: res.Similarity,
	})
}

// handleSummaryStatus serves GET /v1/summaries/{id}.
func (s *Server) handleSummaryStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}

	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/summaries/"))
	if id == "" || strings.Contains(id, "/") {
		writeJSONError(w, http.StatusNotFound, "unknown job id", "not_found_error")
		return
	}

	j, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "unknown job id", "not_found_error")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load job", "internal_error")
		return
	}

	resp := summaryResponse{JobID: j.ID, Status: j.Status, CreatedAt: &j.CreatedAt}
	if j.Result != nil {
		resp.Content = j.Result.Content
		resp.Keywords = j.Result.Keywords
		resp.Similarity = j.Result.Similarity
		if j.Status == store.StatusFailed && j.Result.Error != "" {
			writeJSON(w, http.StatusOK, struct {
				summaryResponse
				Error string `json:"error"`
			}{resp, j.Result.Error})
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeSummaryRequest reads the body with the configured size cap and
// pulls the optional per-request upstream key from the Authorization
// header.
func (s *Server) decodeSummaryRequest(w http.ResponseWriter, r *http.Request) (*summaryRequest, string, bool) {
	maxBytes := s.cfg.Server.MaxRequestBodyBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isRequestTooLarge(err) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request_error")
			return nil, "", false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request_error")
		return nil, "", false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query must not be empty", "invalid_request_error")
		return nil, "", false
	}

	apiKey, ok := parseBearerToken(r.Header.Get("Authorization"))
	if !ok {
		apiKey = strings.TrimSpace(req.APIKey)
	}
	return &req, apiKey, true
}

// classifyPipelineError maps pipeline failures onto HTTP statuses for the
// synchronous path. Upstream details stay out of client-facing messages.
func classifyPipelineError(err error) (int, string, string) {
	switch job.FailureReason(err) {
	case job.ReasonTimeout:
		return http.StatusGatewayTimeout, "upstream timed out", "timeout_error"
	case job.ReasonMalformedReply:
		return http.StatusBadGateway, "upstream reply was malformed", "upstream_error"
	case job.ReasonInternal:
		return http.StatusInternalServerError, "summarization failed", "internal_error"
	default:
		return http.StatusBadGateway, "upstream request failed", "upstream_error"
	}
}
