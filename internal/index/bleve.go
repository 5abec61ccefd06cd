package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
)

// titleBoost makes a term hit in the title outrank the same hit in the
// body.
const titleBoost = 2.0

// BleveIndex wraps Bleve v2 as the document search index.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
	logger *slog.Logger
}

var _ SearchIndex = (*BleveIndex)(nil)

// validateIndexIntegrity checks a Bleve index directory before opening.
// Returns nil if the index is absent or looks healthy.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex opens or creates the index at path. An empty path
// creates an in-memory index for testing. A corrupted on-disk index is
// cleared and recreated; the pipeline's upsert semantics make reindexing
// from the intermediate store safe.
func NewBleveIndex(path string, logger *slog.Logger) (*BleveIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}

	indexMapping := createIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), mkErr)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			logger.Warn("search_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("search index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			logger.Info("search_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, documents will reindex on redelivery"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			logger.Warn("search_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("search index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{index: idx, path: path, logger: logger}, nil
}

// createIndexMapping builds the document mapping: analyzed title and
// content, a keyword filename, and a date field. Fields are stored so
// query-time snippet construction does not need the artifact store.
func createIndexMapping() *mapping.IndexMappingImpl {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	textField.IncludeTermVectors = true

	filenameField := bleve.NewTextFieldMapping()
	filenameField.Analyzer = keyword.Name
	filenameField.Store = true

	dateField := bleve.NewDateTimeFieldMapping()
	dateField.Store = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("filename", filenameField)
	docMapping.AddFieldMappingsAt("uploadDate", dateField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Upsert indexes entry under its document ID, replacing any previous
// version of the document.
func (b *BleveIndex) Upsert(ctx context.Context, entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}
	if entry.DocumentID == "" {
		return fmt.Errorf("entry has empty document ID")
	}

	if err := b.index.Index(entry.DocumentID, entry); err != nil {
		return fmt.Errorf("failed to index document %s: %w", entry.DocumentID, err)
	}
	return nil
}

// Query runs a relevance-ranked match query over content and title.
func (b *BleveIndex) Query(ctx context.Context, queryStr string, limit int) ([]Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []Match{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	contentQuery := bleve.NewMatchQuery(queryStr)
	contentQuery.SetField("content")

	titleQuery := bleve.NewMatchQuery(queryStr)
	titleQuery.SetField("title")
	titleQuery.SetBoost(titleBoost)

	searchRequest := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(contentQuery, titleQuery))
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true
	searchRequest.Fields = []string{"title", "content", "filename"}

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]Match, 0, len(result.Hits))
	for _, hit := range result.Hits {
		matches = append(matches, Match{
			DocumentID:   hit.ID,
			Score:        hit.Score,
			Title:        stringField(hit, "title"),
			Filename:     stringField(hit, "filename"),
			Content:      stringField(hit, "content"),
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return matches, nil
}

// DocCount reports the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	return b.index.DocCount()
}

// Close closes the underlying index. Safe to call more than once.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

func stringField(hit *search.DocumentMatch, name string) string {
	if v, ok := hit.Fields[name].(string); ok {
		return v
	}
	return ""
}

// extractMatchedTerms collects the analyzed terms that matched, across
// the content and title fields.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" && field != "title" {
			continue
		}
		for term := range locations {
			terms[term] = struct{}{}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}
