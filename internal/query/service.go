// Package query implements the read path: it validates search input,
// runs ranked queries against the search index, and shapes results with
// contextual snippets.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/index"
)

// Cache configuration constants.
const (
	// DefaultCacheSize is the number of distinct query results kept hot.
	DefaultCacheSize = 256

	// DefaultCacheTTL bounds how stale a cached result may be relative
	// to newly indexed documents.
	DefaultCacheTTL = 30 * time.Second

	// DefaultMaxResults caps the result set per query.
	DefaultMaxResults = 10

	// DefaultSnippetRadius is the number of bytes of context kept on
	// each side of the first matched term.
	DefaultSnippetRadius = 120
)

// Config tunes the query service.
type Config struct {
	MaxResults    int
	SnippetRadius int
	CacheSize     int
	CacheTTL      time.Duration
}

// Result is one search hit as presented to callers.
type Result struct {
	DocumentID string  `json:"documentId"`
	Score      float64 `json:"score"`
	Title      string  `json:"title"`
	Filename   string  `json:"filename"`
	Snippet    string  `json:"snippet"`
}

// Service answers search queries. It never blocks the write path: a
// degraded index turns into an unavailability error, not a hang.
type Service struct {
	idx    index.SearchIndex
	cfg    Config
	cache  *expirable.LRU[string, []Result]
	logger *slog.Logger
}

// NewService creates a query service over idx.
func NewService(idx index.SearchIndex, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.SnippetRadius <= 0 {
		cfg.SnippetRadius = DefaultSnippetRadius
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		idx:    idx,
		cfg:    cfg,
		cache:  expirable.NewLRU[string, []Result](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: logger,
	}
}

// Search validates and executes a query. Blank input is rejected before
// the index is touched. No matches is a successful empty result.
func (s *Service) Search(ctx context.Context, query string) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, errors.NewQueryError(errors.QueryInvalidInput, "query must not be empty", nil)
	}

	cacheKey := strings.ToLower(trimmed)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}

	started := time.Now()
	matches, err := s.idx.Query(ctx, trimmed, s.cfg.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewQueryError(errors.QueryUnavailable, "search canceled", ctx.Err())
		}
		return nil, errors.NewQueryError(errors.QueryUnavailable, "search index unavailable", err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			DocumentID: m.DocumentID,
			Score:      m.Score,
			Title:      m.Title,
			Filename:   m.Filename,
			Snippet:    buildSnippet(m.Content, m.MatchedTerms, s.cfg.SnippetRadius),
		})
	}

	s.logger.Debug("search_executed",
		slog.String("query", trimmed),
		slog.Int("results", len(results)),
		slog.Duration("took", time.Since(started)))

	s.cache.Add(cacheKey, results)
	return results, nil
}

// Count reports the number of indexed documents, for health reporting.
func (s *Service) Count() (uint64, error) {
	count, err := s.idx.DocCount()
	if err != nil {
		return 0, errors.NewQueryError(errors.QueryUnavailable, "search index unavailable", err)
	}
	return count, nil
}

// buildSnippet returns a window of content around the first occurrence
// of any matched term, with ellipses marking truncation. When no term is
// found in the stored content (a title-only hit), it falls back to the
// head of the document.
func buildSnippet(content string, terms []string, radius int) string {
	if content == "" {
		return ""
	}

	pos := -1
	termLen := 0
	lower := strings.ToLower(content)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if i := strings.Index(lower, strings.ToLower(term)); i >= 0 && (pos == -1 || i < pos) {
			pos = i
			termLen = len(term)
		}
	}
	if pos == -1 {
		pos = 0
	}

	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + termLen + radius
	if end > len(content) {
		end = len(content)
	}

	// Snap to rune boundaries so truncation never splits a character.
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	snippet := strings.TrimSpace(content[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(content) {
		snippet = snippet + "…"
	}
	return snippet
}

var _ fmt.Stringer = Result{}

// String renders a result for the CLI search command.
func (r Result) String() string {
	title := r.Title
	if title == "" {
		title = r.Filename
	}
	return fmt.Sprintf("%.3f  %s\n      %s", r.Score, title, r.Snippet)
}
