package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAIProvider implements Provider for the OpenAI Chat Completions API.
type openAIProvider struct {
	baseURL          string
	apiKey           string
	model            string
	temperature      float64
	client           *http.Client
	maxResponseBytes int64
}

// NewOpenAI creates a new OpenAI provider. apiKey is the fallback key used
// when a request does not carry its own.
func NewOpenAI(baseURL, apiKey, model string, temperature float64, timeout time.Duration, maxResponseBytes int64) Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = 4 * 1024 * 1024
	}

	return &openAIProvider{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		model:            model,
		temperature:      temperature,
		maxResponseBytes: maxResponseBytes,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	TopP        float64             `json:"top_p"`
	Stream      bool                `json:"stream,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIChatUsage    `json:"usage"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (p *openAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp, err := p.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, p.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if int64(len(respBody)) > p.maxResponseBytes {
		return nil, fmt.Errorf("openai response exceeded limit (%d bytes)", p.maxResponseBytes)
	}

	var oaiResp openAIChatResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("openai response had no choices")
	}

	return &Response{
		Content: oaiResp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

func (p *openAIProvider) CompleteStream(ctx context.Context, req *Request) (Stream, error) {
	resp, err := p.send(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &openAIStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(io.LimitReader(resp.Body, p.maxResponseBytes)),
	}, nil
}

// send builds and issues the chat completions request and handles error
// statuses. On success the caller owns resp.Body.
func (p *openAIProvider) send(ctx context.Context, req *Request, stream bool) (*http.Response, error) {
	oaiReq := openAIChatRequest{
		Model:       p.model,
		Temperature: p.temperature,
		TopP:        1,
		Stream:      stream,
		Messages: []openAIChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
	}
	if req.Model != "" {
		oaiReq.Model = req.Model
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/chat/completions", p.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai request: %w", err)
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = p.apiKey
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Transport failures are upstream failures too; the wrapped error
		// keeps context.DeadlineExceeded reachable for timeout classification.
		return nil, &UpstreamError{Err: fmt.Errorf("call openai: %w", err)}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		limited := io.LimitReader(resp.Body, p.maxResponseBytes+1)
		respBody, err := io.ReadAll(limited)
		if err != nil {
			return nil, &UpstreamError{Status: resp.StatusCode, Err: err}
		}
		var errBody openAIErrorResponse
		if err := json.Unmarshal(respBody, &errBody); err != nil || errBody.Error.Message == "" {
			return nil, &UpstreamError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Message: errBody.Error.Message}
	}

	return resp, nil
}

// openAIStream parses the SSE body of a streaming chat completion.
type openAIStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *openAIStream) Recv() (*Chunk, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			s.done = true
			return nil, io.EOF
		}

		var delta openAIStreamResponse
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			return nil, fmt.Errorf("decode openai stream event: %w", err)
		}
		if len(delta.Choices) == 0 {
			continue
		}
		if delta.Choices[0].FinishReason != "" && delta.Choices[0].Delta.Content == "" {
			continue
		}
		return &Chunk{Delta: delta.Choices[0].Delta.Content}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read openai stream: %w", err)
	}
	s.done = true
	return nil, io.EOF
}

func (s *openAIStream) Close() error {
	s.done = true
	return s.body.Close()
}
