package extract

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/blob"
	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/event"
)

// recordingNotifier collects emitted notifications.
type recordingNotifier struct {
	emitted []event.Notification
}

func (r *recordingNotifier) Emit(_ context.Context, n event.Notification) error {
	r.emitted = append(r.emitted, n)
	return nil
}

func testConfig() Config {
	return Config{
		RawBucket:          "raw",
		IntermediateBucket: "intermediate",
		IntermediatePrefix: "extracted/",
	}
}

func testExtractEvent(key string) event.ProcessingEvent {
	return event.ProcessingEvent{
		Ref:        event.DocumentRef{StorageKey: key, Version: "v1"},
		Stage:      event.StageExtract,
		ReceivedAt: time.Now(),
	}
}

func fakeParser(pages []string, warnings []string, err error) ParseFunc {
	return func(data []byte) ([]string, []string, error) {
		return pages, warnings, err
	}
}

func newTestExtractor(t *testing.T) (*Extractor, blob.Store, *recordingNotifier) {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	return New(store, testConfig(), notifier, nil), store, notifier
}

func TestHandle_WritesArtifactAndNotifies(t *testing.T) {
	ex, store, notifier := newTestExtractor(t)
	ex.Parse = fakeParser([]string{"Annual Report", "second page text"}, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw", "uploads/report.pdf", []byte("%PDF..."), "application/pdf"))

	err := ex.Handle(ctx, testExtractEvent("uploads/report.pdf"))
	require.NoError(t, err)

	payload, err := store.Get(ctx, "intermediate", "extracted/uploads/report.pdf.json")
	require.NoError(t, err)

	var artifact event.ExtractedText
	require.NoError(t, json.Unmarshal(payload, &artifact))
	assert.Equal(t, "uploads/report.pdf", artifact.Source.StorageKey)
	assert.Equal(t, "v1", artifact.Source.Version)
	assert.Equal(t, "Annual Report", artifact.Title)
	assert.Contains(t, artifact.Text, "second page text")
	assert.Equal(t, len(artifact.Text), artifact.CharCount)
	assert.Empty(t, artifact.Warnings)

	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, "intermediate", notifier.emitted[0].Bucket)
	assert.Equal(t, "extracted/uploads/report.pdf.json", notifier.emitted[0].Key)
	assert.NotEmpty(t, notifier.emitted[0].Version)
}

func TestHandle_PartialPagesBecomeWarnings(t *testing.T) {
	ex, store, _ := newTestExtractor(t)
	ex.Parse = fakeParser([]string{"good page", ""}, []string{"page 2: damaged stream"}, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw", "uploads/partial.pdf", []byte("%PDF..."), "application/pdf"))
	require.NoError(t, ex.Handle(ctx, testExtractEvent("uploads/partial.pdf")))

	payload, err := store.Get(ctx, "intermediate", "extracted/uploads/partial.pdf.json")
	require.NoError(t, err)

	var artifact event.ExtractedText
	require.NoError(t, json.Unmarshal(payload, &artifact))
	assert.Equal(t, []string{"page 2: damaged stream"}, artifact.Warnings)
	assert.Equal(t, "good page", artifact.Text)
}

func TestHandle_NoExtractableTextIsPermanent(t *testing.T) {
	// A scanned/image-only document is a recognized failure, not a crash.
	ex, store, notifier := newTestExtractor(t)
	ex.Parse = fakeParser([]string{"", "  "}, []string{"page 1: image only"}, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw", "uploads/scan.pdf", []byte("%PDF..."), "application/pdf"))

	err := ex.Handle(ctx, testExtractEvent("uploads/scan.pdf"))

	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err))
	assert.Equal(t, errors.ErrCodeNoExtractableText, errors.GetCode(err))
	assert.Contains(t, err.Error(), "no extractable text")
	assert.Empty(t, notifier.emitted)
}

func TestHandle_CorruptDocumentIsPermanent(t *testing.T) {
	ex, store, _ := newTestExtractor(t)
	ex.Parse = fakeParser(nil, nil, stderrors.New("bad xref table"))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw", "uploads/corrupt.pdf", []byte("not a pdf"), "application/pdf"))

	err := ex.Handle(ctx, testExtractEvent("uploads/corrupt.pdf"))

	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err))
	assert.Equal(t, errors.ErrCodeDocumentCorrupt, errors.GetCode(err))
}

func TestHandle_MissingObjectIsTransient(t *testing.T) {
	// Storage I/O failures retry; the object may not be visible yet.
	ex, _, _ := newTestExtractor(t)

	err := ex.Handle(context.Background(), testExtractEvent("uploads/ghost.pdf"))

	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, errors.ErrCodeStorageRead, errors.GetCode(err))
}

func TestParsePDF_GarbageInputFails(t *testing.T) {
	_, _, err := parsePDF([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Annual Report", deriveTitle("\n\nAnnual Report\nbody", "uploads/x.pdf"))
	assert.Equal(t, "x.pdf", deriveTitle("   \n\t\n", "uploads/x.pdf"))
}
