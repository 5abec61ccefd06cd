// Package extract implements the extraction stage: it turns a raw PDF
// into a normalized-text artifact in the intermediate store.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docpipe/docpipe/internal/blob"
	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/event"
)

// ParseFunc extracts per-page text from a raw document. A page that fails
// to parse contributes a warning and an empty page entry; only a document
// that cannot be opened at all returns an error.
type ParseFunc func(data []byte) (pages []string, warnings []string, err error)

// Notifier emits the storage-created notification for a new artifact.
// In production this duty belongs to the object store itself; in local
// mode the pipeline's event channel plays that part.
type Notifier interface {
	Emit(ctx context.Context, n event.Notification) error
}

// Config locates the extraction stage's buckets.
type Config struct {
	RawBucket          string
	IntermediateBucket string
	IntermediatePrefix string
}

// Extractor is the extraction stage handler.
type Extractor struct {
	store  blob.Store
	cfg    Config
	notify Notifier
	logger *slog.Logger

	// Parse is the document parser. Injectable for testing.
	Parse ParseFunc
}

// New creates the extraction stage. notify may be nil when the object
// store emits its own notifications.
func New(store blob.Store, cfg Config, notify Notifier, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{store: store, cfg: cfg, notify: notify, logger: logger, Parse: parsePDF}
}

// Handle implements the stage contract. It must be safe to invoke more
// than once for the same input: the artifact key is deterministic and the
// write overwrites.
func (e *Extractor) Handle(ctx context.Context, ev event.ProcessingEvent) error {
	data, err := e.store.Get(ctx, e.cfg.RawBucket, ev.Ref.StorageKey)
	if err != nil {
		return errors.Transient(errors.ErrCodeStorageRead,
			fmt.Sprintf("read raw object %s", ev.Ref.StorageKey), err)
	}

	pages, pageWarnings, err := e.Parse(data)
	if err != nil {
		return errors.Permanent(errors.ErrCodeDocumentCorrupt,
			fmt.Sprintf("unreadable document %s", ev.Ref.StorageKey), err)
	}

	text, serr := joinPages(pages)
	if serr != nil {
		return serr
	}

	artifact := event.ExtractedText{
		Source: event.DocumentRef{
			StorageKey:  ev.Ref.StorageKey,
			Version:     ev.Ref.Version,
			ContentHash: event.HashBytes(data),
		},
		Title:       deriveTitle(text, ev.Ref.StorageKey),
		Text:        text,
		CharCount:   len(text),
		ExtractedAt: time.Now().UTC(),
		Warnings:    pageWarnings,
	}

	payload, err := json.Marshal(artifact)
	if err != nil {
		return errors.Permanent(errors.ErrCodeInternal, "encode artifact", err)
	}

	artifactKey := event.ArtifactKey(e.cfg.IntermediatePrefix, ev.Ref.StorageKey)
	if err := e.store.Put(ctx, e.cfg.IntermediateBucket, artifactKey, payload, "application/json"); err != nil {
		return errors.Transient(errors.ErrCodeStorageWrite,
			fmt.Sprintf("write artifact %s", artifactKey), err)
	}

	e.logger.Info("extracted",
		slog.String("key", ev.Ref.StorageKey),
		slog.Int("chars", artifact.CharCount),
		slog.Int("warnings", len(pageWarnings)))

	if e.notify != nil {
		n := event.Notification{
			Bucket:    e.cfg.IntermediateBucket,
			Key:       artifactKey,
			EventTime: time.Now().UTC(),
			Version:   event.HashBytes(payload),
		}
		if err := e.notify.Emit(ctx, n); err != nil {
			// The artifact write is idempotent; a retry re-puts and re-emits.
			return errors.Transient(errors.ErrCodeStorageWrite, "emit artifact notification", err)
		}
	}
	return nil
}

// joinPages concatenates successfully extracted pages. Zero recoverable
// text is a recognized, reported failure mode, not a crash.
func joinPages(pages []string) (string, *errors.StageError) {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "", errors.Permanent(errors.ErrCodeNoExtractableText, "no extractable text", nil)
	}
	return strings.Join(parts, "\n\n"), nil
}

// deriveTitle uses the first non-blank line, falling back to the filename.
func deriveTitle(text, storageKey string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	parts := strings.Split(storageKey, "/")
	return parts[len(parts)-1]
}
