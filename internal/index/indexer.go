package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/docpipe/docpipe/internal/blob"
	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/event"
)

// Config locates the indexing stage's input.
type Config struct {
	IntermediateBucket string
	IntermediatePrefix string
}

// Indexer is the indexing stage handler: it reads an extracted-text
// artifact and upserts it into the search index.
type Indexer struct {
	store  blob.Store
	idx    SearchIndex
	cfg    Config
	logger *slog.Logger
}

// NewIndexer creates the indexing stage.
func NewIndexer(store blob.Store, idx SearchIndex, cfg Config, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: store, idx: idx, cfg: cfg, logger: logger}
}

// Handle implements the stage contract. The upsert keys on the source
// document's ID, so redelivery and re-extraction converge to a single
// index entry per document.
func (ix *Indexer) Handle(ctx context.Context, ev event.ProcessingEvent) error {
	payload, err := ix.store.Get(ctx, ix.cfg.IntermediateBucket, ev.Ref.StorageKey)
	if err != nil {
		return errors.Transient(errors.ErrCodeStorageRead,
			fmt.Sprintf("read artifact %s", ev.Ref.StorageKey), err)
	}

	var artifact event.ExtractedText
	if err := json.Unmarshal(payload, &artifact); err != nil {
		// A malformed artifact will not parse differently on retry.
		return errors.Permanent(errors.ErrCodeArtifactDecode,
			fmt.Sprintf("decode artifact %s", ev.Ref.StorageKey), err)
	}
	if artifact.Source.StorageKey == "" {
		return errors.Permanent(errors.ErrCodeArtifactDecode,
			fmt.Sprintf("artifact %s has no source reference", ev.Ref.StorageKey), nil)
	}

	entry := Entry{
		DocumentID: event.DocumentID(artifact.Source.StorageKey),
		Title:      artifact.Title,
		Content:    artifact.Text,
		Filename:   artifact.Filename(),
		UploadDate: artifact.ExtractedAt,
	}

	if err := ix.idx.Upsert(ctx, entry); err != nil {
		return errors.Transient(errors.ErrCodeIndexUnavailable,
			fmt.Sprintf("upsert document %s", entry.DocumentID), err)
	}

	ix.logger.Info("indexed",
		slog.String("document_id", entry.DocumentID),
		slog.String("source", artifact.Source.StorageKey),
		slog.Int("chars", artifact.CharCount))
	return nil
}
