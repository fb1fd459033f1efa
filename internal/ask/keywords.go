package ask

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/llm"
)

const (
	// keywordTimeout bounds the stage-1 extraction call. Keyword
	// extraction is a latency optimization, not a hard dependency, so
	// the budget is tight.
	keywordTimeout = 5 * time.Second

	// keywordMaxTokens keeps the model's keyword output short.
	keywordMaxTokens = 48

	// maxFallbackKeywords caps the locally derived keyword count.
	maxFallbackKeywords = 5
)

// genericQuery is searched when a question yields no usable keywords.
const genericQuery = "meeting OR call OR event"

const keywordPrompt = `Extract the most useful search keywords from this question about a personal timeline of events.
Reply with ONLY the keywords separated by spaces, no punctuation, no explanation.

Question: `

// stopWords are question scaffolding that makes poor search terms.
var stopWords = map[string]bool{
	"what": true, "when": true, "where": true, "who": true, "why": true,
	"how": true, "did": true, "i": true, "have": true, "about": true,
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "my": true, "me": true, "from": true,
	"to": true, "in": true, "on": true, "at": true, "for": true,
	"with": true,
}

// ExtractKeywords converts a natural-language question into an index
// query string. It asks the model for keywords and sanitizes the reply;
// model output is untrusted query input exactly like a human's. If the
// model is unavailable, times out, or returns nothing usable, the locally
// cleaned question is used instead. Never returns an error.
func (e *Engine) ExtractKeywords(ctx context.Context, question string) string {
	if e.provider != nil && e.provider.Available(ctx) {
		kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
		defer cancel()

		reply, err := e.provider.Complete(kwCtx, keywordPrompt+question, llm.CompletionOpts{
			Temperature: 0.1,
			MaxTokens:   keywordMaxTokens,
		})
		if err == nil {
			if keywords := index.StripSyntax(reply); keywords != "" {
				return keywords
			}
		} else {
			e.logger.Debug("keyword extraction fell back to local cleaning", zap.Error(err))
		}
	}
	return fallbackKeywords(question)
}

// fallbackKeywords derives a search query from the question without any
// model: lowercase, strip query syntax, drop stop words and short tokens,
// OR-join the first few survivors.
func fallbackKeywords(question string) string {
	cleaned := index.StripSyntax(strings.ToLower(question))

	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		if stopWords[word] || len(word) <= 2 {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxFallbackKeywords {
			break
		}
	}

	if len(keywords) == 0 {
		return genericQuery
	}
	return strings.Join(keywords, " OR ")
}
