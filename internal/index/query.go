package index

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrQuerySyntax marks a query the FTS engine rejected as malformed even
// after sanitization (e.g. unbalanced quotes). Surfaced to callers as a
// client error, never silently converted to an empty result set.
var ErrQuerySyntax = errors.New("malformed search query")

// QueryError wraps an FTS syntax failure with the offending query.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuerySyntax }

// ftsSyntaxChars are characters with syntactic meaning to the FTS5 query
// parser. Stripped from untrusted machine-generated query text.
var ftsSyntaxChars = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize rewrites naive multi-word input as an OR-join so FTS5 does not
// treat bare words as column filters or implicit phrases. Quoted queries,
// queries that already carry a whole-word AND/OR/NOT operator
// (case-sensitive), and single-token queries pass through unmodified,
// preserving phrase search, explicit boolean syntax, and trailing-wildcard
// prefix search.
func Sanitize(query string) string {
	if strings.Contains(query, `"`) {
		return query
	}
	tokens := strings.Fields(query)
	if len(tokens) <= 1 {
		return query
	}
	for _, tok := range tokens {
		if tok == "AND" || tok == "OR" || tok == "NOT" {
			return query
		}
	}
	return strings.Join(tokens, " OR ")
}

// StripSyntax removes quotes and every other FTS5-significant punctuation
// character and collapses whitespace. Applied to LLM keyword output and to
// the local keyword fallback: machine-generated text is untrusted query
// input exactly like human input.
func StripSyntax(s string) string {
	s = ftsSyntaxChars.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Query executes a sanitized match against the index, returning up to
// limit hits ordered by rank ascending (best match first). Matched terms
// in snippets are wrapped in the highlight markers and long fields are
// truncated around the match.
func (ix *Index) Query(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	sanitized := Sanitize(query)

	rows, err := ix.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT entry_id,
		        title,
		        snippet(event_fts, 1, '%s', '%s', '%s', %d),
		        snippet(event_fts, 2, '%s', '%s', '%s', %d),
		        rank
		 FROM event_fts
		 WHERE event_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		HighlightOpen, HighlightClose, snippetEllipsis, titleSnippetTokens,
		HighlightOpen, HighlightClose, snippetEllipsis, bodySnippetTokens),
		sanitized, limit,
	)
	if err != nil {
		if isSyntaxError(err) {
			return nil, &QueryError{Query: sanitized, Err: err}
		}
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.EntryID, &h.Title, &h.TitleSnippet, &h.BodySnippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("scanning fts result: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		if isSyntaxError(err) {
			return nil, &QueryError{Query: sanitized, Err: err}
		}
		return nil, err
	}
	return hits, nil
}

// isSyntaxError distinguishes FTS5 query-parse failures from storage
// failures. SQLite reports the former as plain SQL errors, so string
// matching on the known messages is the only classification available.
func isSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "unterminated string") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "malformed MATCH")
}
