package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var payload struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Input != "how many users?" {
			t.Fatalf("unexpected input %q", payload.Input)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	embedding, err := client.Embed(context.Background(), "how many users?")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(embedding) != 2 {
		t.Fatalf("unexpected embedding %v", embedding)
	}
}

func TestOpenAIClientGenerateSQLReadonlyPrompt(t *testing.T) {
	var capturedSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedSystem = payload.Messages[0].Content
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "SELECT count(*) FROM users"}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	sql, err := client.GenerateSQL(context.Background(), "how many users?", true)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if sql != "SELECT count(*) FROM users" {
		t.Fatalf("unexpected sql %q", sql)
	}
	if !strings.Contains(capturedSystem, "read-only") {
		t.Fatalf("readonly system prompt not used: %q", capturedSystem)
	}
}

func TestOpenAIClientSchemaInPrompt(t *testing.T) {
	var capturedUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		capturedUser = payload.Messages[1].Content
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "SELECT 1"}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Schema: "users(id, name)"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GenerateSQL(context.Background(), "anything", false); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(capturedUser, "users(id, name)") {
		t.Fatalf("schema missing from prompt: %q", capturedUser)
	}
}

func TestOpenAIClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.GenerateSQL(context.Background(), "q", true); err == nil {
		t.Fatalf("expected error for 429 response")
	}
	if _, err := client.Embed(context.Background(), "q"); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ExplainSQL(context.Background(), "SELECT 1"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestNewOpenAIClientValidation(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected error for missing base URL")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
