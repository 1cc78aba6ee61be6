package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sovereign-vm/sovereign/internal/vmerrors"
)

// ClientConfig configures OllamaClient.
type ClientConfig struct {
	BaseURL            string
	DefaultModel       string
	Temperature        float64
	MaxRetries         int
	RetryDelay         time.Duration
	ConnectionPoolSize int
}

// DefaultClientConfig mirrors the original's OllamaConfig defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:            "http://localhost:11434",
		DefaultModel:       "llama3.2",
		Temperature:        0.7,
		MaxRetries:         3,
		RetryDelay:         time.Second,
		ConnectionPoolSize: 10,
	}
}

// ChatMessage is one entry of the Ollama chat protocol's messages
// array (spec.md §4.5).
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []ChatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  chatOptions     `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	EvalCount int `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Response is the parsed result of a successful chat call.
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	RequestID  string
}

// OllamaClient is the async LLM client (spec.md §4.5). Every public
// method is safe for concurrent use; requests carry a correlation id
// for log tracing.
type OllamaClient struct {
	cfg    ClientConfig
	client *http.Client
}

// NewOllamaClient builds a client whose underlying *http.Transport
// pools up to cfg.ConnectionPoolSize idle connections per host.
func NewOllamaClient(cfg ClientConfig) *OllamaClient {
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.ConnectionPoolSize,
	}
	return &OllamaClient{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
	}
}

// Chat issues one chat completion request, retrying up to
// cfg.MaxRetries times with exponential backoff after any failed
// attempt. ctx's deadline bounds the whole call including retries.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []ChatMessage) (Response, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	reqID := uuid.New().String()
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: c.cfg.Temperature},
	})
	if err != nil {
		return Response{}, vmerrors.Wrap(vmerrors.KindLLMMalformed, "encoding chat request", err)
	}

	var lastErr error
	delay := c.cfg.RetryDelay
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, vmerrors.Wrap(vmerrors.KindLLMTimeout, "chat request cancelled during backoff", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := c.doChat(ctx, body, reqID)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Response{}, vmerrors.Wrap(vmerrors.KindLLMTimeout, "chat request timed out", ctx.Err())
		}
	}
	return Response{}, vmerrors.Wrap(vmerrors.KindLLMUnavailable, "chat request exhausted retries", lastErr)
}

func (c *OllamaClient) doChat(ctx context.Context, body []byte, reqID string) (Response, error) {
	url := c.cfg.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	resp, err := c.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Response{}, fmt.Errorf("ollama chat returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, vmerrors.Wrap(vmerrors.KindLLMMalformed, "decoding chat response", err)
	}
	return Response{
		Content:    parsed.Message.Content,
		Model:      parsed.Model,
		TokensUsed: parsed.EvalCount,
		RequestID:  reqID,
	}, nil
}

// ListModels calls GET /api/tags for model discovery.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, vmerrors.Wrap(vmerrors.KindLLMUnavailable, "listing models", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags returned status %d", resp.StatusCode)
	}
	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, vmerrors.Wrap(vmerrors.KindLLMMalformed, "decoding tags response", err)
	}
	names := make([]string, len(parsed.Models))
	for i, m := range parsed.Models {
		names[i] = m.Name
	}
	return names, nil
}

// HealthCheck reports whether the endpoint is reachable, used by the
// model registry's fallback probing (SPEC_FULL.md §3.2). It does not
// verify that a specific model is loaded; that would require a full
// generation round-trip, which SPEC_FULL.md §3.2 excludes from the
// probe.
func (c *OllamaClient) HealthCheck(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	return err == nil
}
