// Package ask implements the conversational query pipeline: a question is
// distilled into search keywords, the keywords are run through the
// full-text index, and the ranked hits are synthesized into an answer
// grounded strictly in the retrieved snippets.
package ask

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/llm"
	"github.com/chronicle-app/chronicle/internal/search"
)

const (
	// answerTimeout bounds the stage-2 generation call.
	answerTimeout = 60 * time.Second

	// searchLimit is how many hits stage 1's keywords retrieve.
	searchLimit = 10

	// maxContextEvents caps how many hits reach the prompt.
	maxContextEvents = 5

	// maxSnippetChars truncates each context line's snippet. Context is
	// built exclusively from snippets, never full bodies: prompt size
	// stays roughly constant no matter how verbose the records are,
	// which keeps generation latency predictable.
	maxSnippetChars = 150

	// maxHistoryTurns is how many prior turns reach the prompt.
	maxHistoryTurns = 3

	// Generation sampling parameters.
	answerTemperature = 0.7
	answerContextSize = 2048
	answerMaxTokens   = 256
)

// groundingRules is the system instruction enforcing answer grounding.
// This is a textual policy, not a verifiable guarantee: there is no
// runtime check that the model complied.
const groundingRules = `You help users query their Chronicle timeline events.

CRITICAL RULES:
- ONLY use information from the events provided below
- NEVER make up or invent event names, dates, or details
- If the events don't contain the answer, say "I don't see any events about that in this timeline"
- Always cite the actual event title when referencing information
- Be concise and factual`

// Turn is one prior question/answer pair, supplied by the caller as
// sliding-window context. Not persisted.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Request is a conversational query.
type Request struct {
	Question string `json:"question"`
	Timeline string `json:"timeline,omitempty"`
	History  []Turn `json:"conversation_history,omitempty"`
}

// Source identifies an event the answer appears to reference. Attribution
// is a case-insensitive title-substring heuristic, advisory only: shared
// wording can falsely attribute and paraphrase can miss.
type Source struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	HasAudio bool   `json:"has_audio"`
}

// Response is the pipeline's result. Error marks degraded generation
// ("trouble connecting"), not a failed request.
type Response struct {
	Answer             string   `json:"answer"`
	Sources            []Source `json:"sources"`
	Model              string   `json:"model"`
	ContextUsed        int      `json:"context_used"`
	SearchResultsCount int      `json:"search_results_count"`
	Error              bool     `json:"error"`
}

// Searcher is the retrieval dependency (satisfied by search.Service).
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// TimelineLister reports the timelines present in the primary store
// (satisfied by store.Store).
type TimelineLister interface {
	Timelines(ctx context.Context) ([]string, error)
}

// Engine runs the two-stage ask pipeline.
type Engine struct {
	searcher  Searcher
	timelines TimelineLister
	provider  llm.Provider
	logger    *zap.Logger
}

// NewEngine creates an ask engine. All dependencies are injected; the
// engine holds no hidden shared state.
func NewEngine(searcher Searcher, timelines TimelineLister, provider llm.Provider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{searcher: searcher, timelines: timelines, provider: provider, logger: logger}
}

var snippetMarkers = strings.NewReplacer(index.HighlightOpen, "", index.HighlightClose, "")

// Ask answers a natural-language question about the timeline.
//
// Degraded conditions (no timeline chosen, no hits, generation failure)
// return a deterministic, informative text response rather than an error;
// errors are reserved for malformed input and an unreachable model
// service (llm.ErrUnavailable, retryable).
func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	// Underspecified requests short-circuit before any model call: an
	// expensive generation over the wrong timeline helps nobody.
	if req.Timeline == "" {
		timelines, err := e.timelines.Timelines(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing timelines: %w", err)
		}
		if len(timelines) > 1 {
			return &Response{
				Answer: fmt.Sprintf(
					"I need to know which timeline to search. You have these timelines: %s. Please select a timeline first, then ask your question.",
					strings.Join(timelines, ", ")),
				Sources: []Source{},
				Model:   e.modelName(),
			}, nil
		}
	}

	if e.provider == nil || !e.provider.Available(ctx) {
		return nil, llm.ErrUnavailable
	}

	keywords := e.ExtractKeywords(ctx, req.Question)
	e.logger.Info("ask pipeline",
		zap.String("keywords", keywords),
		zap.String("timeline", req.Timeline))

	results, err := e.searcher.Search(ctx, keywords, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", keywords, err)
	}
	resultCount := len(results)
	results = filterByTimeline(results, req.Timeline)

	if len(results) == 0 {
		return &Response{
			Answer: fmt.Sprintf(
				"I searched for '%s' but didn't find any matching events in your timeline. Try rephrasing your question or adding more detail.",
				keywords),
			Sources:            []Source{},
			Model:              e.modelName(),
			SearchResultsCount: resultCount,
		}, nil
	}

	if len(results) > maxContextEvents {
		results = results[:maxContextEvents]
	}

	prompt := buildPrompt(req.Question, buildContext(results), req.History)

	genCtx, cancel := context.WithTimeout(ctx, answerTimeout)
	defer cancel()
	answer, err := e.provider.Complete(genCtx, prompt, llm.CompletionOpts{
		Temperature: answerTemperature,
		ContextSize: answerContextSize,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil {
		e.logger.Error("answer generation failed", zap.Error(err))
		return &Response{
			Answer:             "I'm having trouble connecting to the AI service. Please try again.",
			Sources:            []Source{},
			Model:              e.modelName(),
			SearchResultsCount: resultCount,
			Error:              true,
		}, nil
	}

	return &Response{
		Answer:             answer,
		Sources:            attributeSources(answer, results),
		Model:              e.modelName(),
		ContextUsed:        len(results),
		SearchResultsCount: resultCount,
	}, nil
}

func (e *Engine) modelName() string {
	if e.provider == nil {
		return ""
	}
	return e.provider.Model()
}

func filterByTimeline(results []search.Result, timeline string) []search.Result {
	if timeline == "" {
		return results
	}
	filtered := results[:0:0]
	for _, r := range results {
		if r.Event.Timeline == timeline {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// buildContext formats the retrieved hits for the prompt, one line per
// event built from its pre-truncated snippet.
func buildContext(results []search.Result) string {
	var b strings.Builder
	b.WriteString("Relevant events:\n")
	for i, r := range results {
		snippet := truncateRunes(snippetMarkers.Replace(r.BodySnippet), maxSnippetChars)
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, r.Event.Title, r.Event.Date.Format("2006-01-02"))
		if snippet != "" {
			b.WriteString(" - ")
			b.WriteString(snippet)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// truncateRunes caps s at max bytes without splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func buildPrompt(question, context string, history []Turn) string {
	var b strings.Builder
	b.WriteString(groundingRules)
	b.WriteString("\n\n")

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "User: %s\n", turn.Question)
			fmt.Fprintf(&b, "Assistant: %s\n", turn.Answer)
		}
		b.WriteString("\n")
	}

	b.WriteString("EVENTS IN THIS TIMELINE:\n")
	b.WriteString(context)
	fmt.Fprintf(&b, "\nUser's question: %s", question)
	b.WriteString("\n\nAnswer (only use information from the events above):")
	return b.String()
}

// attributeSources reports which context events the answer appears to
// reference, by case-insensitive title-substring match.
func attributeSources(answer string, results []search.Result) []Source {
	lower := strings.ToLower(answer)
	sources := []Source{}
	for _, r := range results {
		title := strings.ToLower(r.Event.Title)
		if title == "" || !strings.Contains(lower, title) {
			continue
		}
		sources = append(sources, Source{
			ID:       r.Event.ID,
			Title:    r.Event.Title,
			Date:     r.Event.Date.Format("2006-01-02"),
			HasAudio: r.Event.AudioFile != "",
		})
	}
	return sources
}
