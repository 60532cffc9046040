package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sumveil/sumveil/internal/job"
	"github.com/sumveil/sumveil/internal/redact"
)

type streamDelta struct {
	Delta string `json:"delta"`
}

// handleSummaryStream runs the pipeline in streaming mode and relays
// de-anonymized deltas as SSE events, terminated by "data: [DONE]".
func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}

	req, apiKey, ok := s.decodeSummaryRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported", "internal_error")
		return
	}
	setSSEHeaders(w)

	err := s.dispatcher.StreamTo(r.Context(), apiKey, req.Query, func(delta string) error {
		payload, err := json.Marshal(streamDelta{Delta: delta})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; surface the failure as a terminal event.
		redact.Logf("stream: %v", err)
		if errors.Is(err, context.Canceled) {
			return
		}
		reason := job.FailureReason(err)
		fmt.Fprintf(w, "data: {\"error\":%q}\n\n", reason)
		flusher.Flush()
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
