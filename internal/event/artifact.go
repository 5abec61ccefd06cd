package event

import (
	"path"
	"strings"
	"time"
)

// ExtractedText is the intermediate artifact the extraction stage persists
// and the indexing stage consumes. It is JSON-encoded in the intermediate
// store under a key derived deterministically from the source key.
type ExtractedText struct {
	Source      DocumentRef `json:"source"`
	Title       string      `json:"title"`
	Text        string      `json:"text"`
	CharCount   int         `json:"char_count"`
	ExtractedAt time.Time   `json:"extracted_at"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Filename returns the base name of the source object.
func (a ExtractedText) Filename() string {
	return path.Base(a.Source.StorageKey)
}

// ArtifactKey derives the intermediate-store key for a source key.
// Deterministic so that re-extraction overwrites rather than accumulates.
func ArtifactKey(prefix, storageKey string) string {
	return prefix + storageKey + ".json"
}

// SourceKeyFromArtifact inverts ArtifactKey. Returns false when key does
// not look like an artifact key.
func SourceKeyFromArtifact(prefix, key string) (string, bool) {
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, ".json") {
		return "", false
	}
	src := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
	if src == "" {
		return "", false
	}
	return src, true
}
