// Package mockupstream is a lightweight OpenAI-compatible server for local
// development. Its canned reply echoes placeholder tokens it finds in the
// prompt and always ends with a "Keywords:" paragraph, so the full pipeline
// can run without a real key.
package mockupstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort    = 18080
	defaultDelayMS = 50
)

// Start launches the mock server. If addr is empty, it listens on
// 127.0.0.1:MOCK_UPSTREAM_PORT (default 18080). It returns a shutdown
// function and the base URL.
func Start(addr string) (func(context.Context) error, string, error) {
	if strings.TrimSpace(addr) == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_UPSTREAM_PORT"))
		if port == "" {
			port = fmt.Sprintf("%d", defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := defaultDelayMS
	if val := strings.TrimSpace(os.Getenv("MOCK_DELAY_MS")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			delay = parsed
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("mock upstream request method=%s path=%s", r.Method, r.URL.Path)

		p := r.URL.Path
		if len(p) > 1 {
			p = strings.TrimSuffix(p, "/")
		}

		if r.Method == http.MethodPost && (p == "/v1/chat/completions" || p == "/chat/completions") {
			handleChatCompletion(w, r, delay)
			return
		}
		if r.Method == http.MethodGet && (p == "/v1/models" || p == "/models") {
			writeModels(w)
			return
		}
		writeNotFoundJSON(w)
	})

	srv := &http.Server{
		Handler: mux,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("mock upstream server error: %v", err)
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	log.Printf("mock upstream listening on %s (delay_ms=%d)", baseURL, delay)
	return srv.Shutdown, baseURL, nil
}

var piiTokenRe = regexp.MustCompile(`PII_\d+`)

// cannedReply builds a summary that mentions every placeholder seen in the
// prompt, followed by the keyword trailer the pipeline expects.
func cannedReply(prompt string) string {
	tokens := piiTokenRe.FindAllString(prompt, -1)
	seen := make(map[string]bool, len(tokens))
	uniq := tokens[:0]
	for _, tok := range tokens {
		if !seen[tok] {
			seen[tok] = true
			uniq = append(uniq, tok)
		}
	}

	var b strings.Builder
	b.WriteString("Summary: The provided text describes a mock summary")
	if len(uniq) > 0 {
		b.WriteString(" involving " + strings.Join(uniq, " and "))
	}
	b.WriteString(".\n\nKeywords: mock, summary, text")
	return b.String()
}

func handleChatCompletion(w http.ResponseWriter, r *http.Request, delayMS int) {
	if delayMS > 0 {
		time.Sleep(time.Duration(delayMS) * time.Millisecond)
	}

	var req struct {
		Stream   bool `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = json.Unmarshal(body, &req)

	var prompt string
	for _, m := range req.Messages {
		if m.Role == "user" {
			prompt = m.Content
		}
	}
	reply := cannedReply(prompt)

	if req.Stream {
		writeChatCompletionStream(w, reply)
		return
	}

	resp := map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "mock-llm",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": reply,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     5,
			"completion_tokens": 5,
			"total_tokens":      10,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeChatCompletionStream emits the reply as SSE deltas, deliberately
// splitting mid-token so clients must handle fragmented placeholders.
func writeChatCompletionStream(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	const chunkSize = 7
	for start := 0; start < len(reply); start += chunkSize {
		end := start + chunkSize
		if end > len(reply) {
			end = len(reply)
		}
		event := map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]string{"content": reply[start:end]}},
			},
		}
		data, _ := json.Marshal(event)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeModels(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"id":       "mock-llm",
				"object":   "model",
				"owned_by": "mock",
			},
		},
	})
}

func writeNotFoundJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "Not found",
			"type":    "invalid_request_error",
		},
	})
}
