package mockupstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	t.Setenv("MOCK_DELAY_MS", "0")
	shutdown, baseURL, err := Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	})
	return baseURL
}

func TestChatCompletionEchoesPlaceholders(t *testing.T) {
	baseURL := startTestServer(t)

	body := `{"model":"mock-llm","messages":[{"role":"user","content":"summarize PII_0 and PII_1 and PII_0"}]}`
	resp, err := http.Post(baseURL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parsed.Choices) != 1 {
		t.Fatalf("choices = %+v", parsed.Choices)
	}

	content := parsed.Choices[0].Message.Content
	if !strings.Contains(content, "PII_0") || !strings.Contains(content, "PII_1") {
		t.Fatalf("content = %q", content)
	}
	if strings.Count(content, "PII_0") != 1 {
		t.Fatalf("duplicate tokens not collapsed: %q", content)
	}
	if !strings.Contains(content, "\n\nKeywords: ") {
		t.Fatalf("missing keyword trailer: %q", content)
	}
}

func TestChatCompletionStreaming(t *testing.T) {
	baseURL := startTestServer(t)

	body := `{"model":"mock-llm","stream":true,"messages":[{"role":"user","content":"summarize PII_0"}]}`
	resp, err := http.Post(baseURL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var content bytes.Buffer
	sawDone := false
	sc := bufio.NewScanner(resp.Body)
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
		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if len(event.Choices) > 0 {
			content.WriteString(event.Choices[0].Delta.Content)
		}
	}
	if !sawDone {
		t.Fatalf("missing [DONE] marker")
	}
	if !strings.Contains(content.String(), "PII_0") || !strings.Contains(content.String(), "Keywords: ") {
		t.Fatalf("streamed content = %q", content.String())
	}
}

func TestModelsEndpoint(t *testing.T) {
	baseURL := startTestServer(t)

	resp, err := http.Get(baseURL + "/v1/models")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestUnknownPathReturnsJSONError(t *testing.T) {
	baseURL := startTestServer(t)

	resp, err := http.Get(baseURL + "/v1/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
