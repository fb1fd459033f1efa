package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Default Ollama configuration.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"

	// healthTimeout bounds the availability probe so a hung service
	// cannot stall the caller.
	healthTimeout = 2 * time.Second
)

// OllamaConfig holds configuration for the Ollama provider.
type OllamaConfig struct {
	BaseURL string // default http://localhost:11434, or OLLAMA_URL env
	Model   string // default llama3.2, or OLLAMA_MODEL env
}

// OllamaProvider implements Provider against a local Ollama instance.
type OllamaProvider struct {
	client  http.Client
	baseURL string
	model   string
}

// Ollama /api/generate request/response types.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllama creates an Ollama provider. Environment variables OLLAMA_URL
// and OLLAMA_MODEL override empty config fields.
func NewOllama(cfg OllamaConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_URL")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

func (o *OllamaProvider) Name() string {
	return "ollama/" + o.model
}

func (o *OllamaProvider) Model() string {
	return o.model
}

// Available probes /api/tags, the cheapest endpoint Ollama exposes.
func (o *OllamaProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Complete sends a non-streaming generate request. The caller bounds the
// call with a context deadline; a hung service must not hang the request.
func (o *OllamaProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	req := generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	}
	if opts.Temperature > 0 || opts.MaxTokens > 0 || opts.ContextSize > 0 {
		req.Options = &generateOptions{
			Temperature: opts.Temperature,
			NumCtx:      opts.ContextSize,
			NumPredict:  opts.MaxTokens,
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if genResp.Error != "" {
		return "", fmt.Errorf("ollama API error: %s", genResp.Error)
	}

	return strings.TrimSpace(genResp.Response), nil
}
