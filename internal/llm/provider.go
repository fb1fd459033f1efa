// Package llm provides the local language-model client for Chronicle.
// Used by keyword extraction and answer synthesis in the ask pipeline.
// Zero external dependencies — uses net/http directly.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the model service is unreachable or
// reports unhealthy. Callers treat it as a retryable condition, distinct
// from a failed generation.
var ErrUnavailable = errors.New("llm service unavailable")

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the generated text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Available reports whether the service is reachable, using a
	// lightweight health check distinct from the generation call.
	Available(ctx context.Context) bool
	// Name returns a human-readable provider/model name (e.g. "ollama/llama3.2").
	Name() string
	// Model returns the configured model identifier.
	Model() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // Max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	ContextSize int     // Context window size in tokens (0 = provider default)
}
