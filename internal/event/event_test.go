package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentID_Deterministic(t *testing.T) {
	a := DocumentID("uploads/report.pdf")
	b := DocumentID("uploads/report.pdf")
	c := DocumentID("uploads/other.pdf")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification([]byte(`{"bucket":"raw","key":"uploads/a.pdf","objectVersion":"v1"}`))
	require.NoError(t, err)
	assert.Equal(t, "raw", n.Bucket)
	assert.Equal(t, "uploads/a.pdf", n.Key)
	assert.Equal(t, "v1", n.Version)
}

func TestDecodeNotification_Invalid(t *testing.T) {
	_, err := DecodeNotification([]byte(`{`))
	assert.Error(t, err)

	_, err = DecodeNotification([]byte(`{"bucket":"raw"}`))
	assert.Error(t, err)
}

func TestArtifactKey_RoundTrip(t *testing.T) {
	key := ArtifactKey("extracted/", "uploads/report.pdf")
	assert.Equal(t, "extracted/uploads/report.pdf.json", key)

	src, ok := SourceKeyFromArtifact("extracted/", key)
	require.True(t, ok)
	assert.Equal(t, "uploads/report.pdf", src)
}

func TestSourceKeyFromArtifact_Rejects(t *testing.T) {
	_, ok := SourceKeyFromArtifact("extracted/", "uploads/report.pdf")
	assert.False(t, ok)

	_, ok = SourceKeyFromArtifact("extracted/", "extracted/report.pdf")
	assert.False(t, ok)

	_, ok = SourceKeyFromArtifact("extracted/", "extracted/.json")
	assert.False(t, ok)
}

func TestArtifactFilename(t *testing.T) {
	a := ExtractedText{Source: DocumentRef{StorageKey: "uploads/2024/report.pdf"}}
	assert.Equal(t, "report.pdf", a.Filename())
}
