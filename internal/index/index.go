// Package index maintains the full-text search index over extracted
// document text and implements the indexing stage that feeds it.
package index

import (
	"context"
	"time"
)

// Entry is a searchable document. DocumentID is derived from the storage
// key, so re-indexing the same source replaces the previous entry.
type Entry struct {
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"uploadDate"`
}

// Match is a single search hit with enough stored detail for the query
// layer to build a snippet.
type Match struct {
	DocumentID   string
	Score        float64
	Title        string
	Filename     string
	Content      string
	MatchedTerms []string
}

// SearchIndex is the contract between the indexing stage and the query
// layer. Upsert is last-write-wins per document ID.
type SearchIndex interface {
	Upsert(ctx context.Context, entry Entry) error
	Query(ctx context.Context, query string, limit int) ([]Match, error)
	DocCount() (uint64, error)
	Close() error
}
