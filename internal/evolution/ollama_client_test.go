package evolution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OllamaClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := DefaultClientConfig()
	cfg.BaseURL = srv.URL
	cfg.MaxRetries = 0
	cfg.RetryDelay = time.Millisecond
	return NewOllamaClient(cfg), srv
}

func TestOllamaClientChatSuccess(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "llama3.2" {
			t.Errorf("model = %q, want llama3.2", req.Model)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Model:     "llama3.2",
			Message:   struct{ Content string `json:"content"` }{Content: "PUSH #1\nHALT\n"},
			EvalCount: 12,
		})
	})
	defer srv.Close()

	resp, err := client.Chat(context.Background(), "llama3.2", []ChatMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "PUSH #1\nHALT\n" {
		t.Fatalf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 12 {
		t.Fatalf("TokensUsed = %d, want 12", resp.TokensUsed)
	}
	if resp.RequestID == "" {
		t.Fatal("expected a non-empty correlation id")
	}
}

func TestOllamaClientChatRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Message: struct{ Content string `json:"content"` }{Content: "ok"}})
	})
	defer srv.Close()
	client.cfg.MaxRetries = 2
	client.cfg.RetryDelay = time.Millisecond

	resp, err := client.Chat(context.Background(), "llama3.2", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("Content = %q, want ok", resp.Content)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestOllamaClientChatExhaustsRetries(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()
	client.cfg.MaxRetries = 1
	client.cfg.RetryDelay = time.Millisecond

	_, err := client.Chat(context.Background(), "llama3.2", nil)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
}

func TestOllamaClientListModels(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tagsResponse{Models: []struct {
			Name string `json:"name"`
		}{{Name: "llama3.2"}, {Name: "mistral"}}})
	})
	defer srv.Close()

	names, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(names) != 2 || names[0] != "llama3.2" || names[1] != "mistral" {
		t.Fatalf("names = %v", names)
	}
}

func TestOllamaClientHealthCheck(t *testing.T) {
	up, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tagsResponse{})
	})
	defer srv.Close()
	if !up.HealthCheck(context.Background()) {
		t.Fatal("expected HealthCheck to report up")
	}

	down := NewOllamaClient(ClientConfig{BaseURL: "http://127.0.0.1:1", MaxRetries: 0})
	if down.HealthCheck(context.Background()) {
		t.Fatal("expected HealthCheck to report down for an unreachable endpoint")
	}
}

func TestOllamaClientChatMalformedResponse(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	defer srv.Close()
	client.cfg.MaxRetries = 0

	_, err := client.Chat(context.Background(), "llama3.2", nil)
	if err == nil {
		t.Fatal("expected a decode error for a malformed response body")
	}
}
