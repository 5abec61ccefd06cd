// Package event defines the pipeline's event and identity types: storage
// notifications as delivered by the transport, the processing events the
// router consumes, and the deterministic key derivations that make
// re-processing converge.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Stage is one pipeline step with its own idempotency key and retry policy.
type Stage string

const (
	// StageExtract converts a raw document into normalized text.
	StageExtract Stage = "extract"
	// StageIndex writes normalized text into the search index.
	StageIndex Stage = "index"
)

// DocumentRef identifies a source object. Immutable once observed;
// Version changes on overwrite.
type DocumentRef struct {
	StorageKey  string `json:"storage_key"`
	Version     string `json:"version"`
	ContentHash string `json:"content_hash,omitempty"`
}

// ProcessingEvent is one unit of work for the router. The transport is
// at-least-once: the same logical event may be delivered more than once.
type ProcessingEvent struct {
	Ref             DocumentRef `json:"ref"`
	Stage           Stage       `json:"stage"`
	ReceivedAt      time.Time   `json:"received_at"`
	DeliveryAttempt int         `json:"delivery_attempt"`
}

// Notification is the storage-created payload consumed from the event
// source. Delivery may be duplicated or, across different objects,
// reordered.
type Notification struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	EventTime time.Time `json:"eventTime"`
	Version   string    `json:"objectVersion,omitempty"`
}

// DecodeNotification parses a JSON-encoded storage notification.
func DecodeNotification(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Key == "" {
		return Notification{}, fmt.Errorf("decode notification: missing object key")
	}
	return n, nil
}

// DocumentID derives the index document id from a storage key.
// The same source always maps to the same index document, which makes
// index writes upserts rather than appends.
func DocumentID(storageKey string) string {
	sum := sha256.Sum256([]byte(storageKey))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the hex-encoded sha256 of data, used as a content hash
// and as a version token for stores that do not supply one.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
