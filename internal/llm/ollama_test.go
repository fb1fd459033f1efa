package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOllamaDefaults(t *testing.T) {
	t.Setenv("OLLAMA_URL", "")
	t.Setenv("OLLAMA_MODEL", "")

	p := NewOllama(OllamaConfig{})
	if p.baseURL != DefaultBaseURL || p.model != DefaultModel {
		t.Errorf("unexpected defaults: %s / %s", p.baseURL, p.model)
	}
	if p.Name() != "ollama/"+DefaultModel {
		t.Errorf("unexpected name %q", p.Name())
	}
}

func TestNewOllamaEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_URL", "http://elsewhere:1234/")
	t.Setenv("OLLAMA_MODEL", "mistral")

	p := NewOllama(OllamaConfig{})
	if p.baseURL != "http://elsewhere:1234" {
		t.Errorf("expected env URL with trailing slash trimmed, got %q", p.baseURL)
	}
	if p.Model() != "mistral" {
		t.Errorf("expected env model, got %q", p.Model())
	}
}

func TestAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL})
	if !p.Available(context.Background()) {
		t.Error("expected available")
	}

	srv.Close()
	if p.Available(context.Background()) {
		t.Error("expected unavailable after server shutdown")
	}
}

func TestComplete(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "  the answer \n", Done: true})
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "llama3.2"})
	answer, err := p.Complete(context.Background(), "the prompt", CompletionOpts{
		Temperature: 0.7,
		MaxTokens:   256,
		ContextSize: 2048,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("expected trimmed answer, got %q", answer)
	}

	if got.Stream {
		t.Error("expected non-streaming request")
	}
	if got.Model != "llama3.2" || got.Prompt != "the prompt" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Options == nil || got.Options.NumPredict != 256 || got.Options.NumCtx != 2048 {
		t.Errorf("options not forwarded: %+v", got.Options)
	}
}

func TestCompleteOmitsOptionsWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Options != nil {
			t.Errorf("expected no options block, got %+v", req.Options)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL})
	if _, err := p.Complete(context.Background(), "p", CompletionOpts{}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Error: "model not found"})
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), "p", CompletionOpts{})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected API error surfaced, got %v", err)
	}
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL})
	if _, err := p.Complete(context.Background(), "p", CompletionOpts{}); err == nil {
		t.Fatal("expected error on 500")
	}
}
