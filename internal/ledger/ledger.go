// Package ledger implements the idempotency ledger, the pipeline's sole
// synchronization point. For a fixed key at most one caller wins TryBegin;
// everyone else observes the in-flight or completed state and must not
// re-execute side effects.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/docpipe/docpipe/internal/event"
)

// Status is the durable state of one unit of work.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Key identifies a unique unit of work: one stage execution for one
// version of one object.
type Key struct {
	StorageKey string
	Version    string
	Stage      event.Stage
}

// KeyFor builds the ledger key for an event.
func KeyFor(ev event.ProcessingEvent) Key {
	return Key{StorageKey: ev.Ref.StorageKey, Version: ev.Ref.Version, Stage: ev.Stage}
}

// String renders the key as a single stable token.
// The unit separator cannot appear in object keys or version tokens.
func (k Key) String() string {
	return strings.Join([]string{k.StorageKey, k.Version, string(k.Stage)}, "\x1f")
}

// Outcome is the result of a TryBegin call.
type Outcome int

const (
	// Began means the caller won the key and owns this execution.
	Began Outcome = iota
	// BeganRetry means the caller re-acquired a previously failed key.
	BeganRetry
	// AlreadyInProgress means another worker holds the key.
	AlreadyInProgress
	// AlreadyCompleted means the work finished earlier; redelivery is a no-op.
	AlreadyCompleted
	// FailedExhausted means the key failed and has no attempts remaining.
	FailedExhausted
)

// String returns a readable name for logging.
func (o Outcome) String() string {
	switch o {
	case Began:
		return "began"
	case BeganRetry:
		return "began_retry"
	case AlreadyInProgress:
		return "already_in_progress"
	case AlreadyCompleted:
		return "already_completed"
	case FailedExhausted:
		return "failed_exhausted"
	default:
		return "unknown"
	}
}

// Begin is the result of TryBegin: the outcome plus the acquisition count
// recorded for the key so far.
type Begin struct {
	Outcome  Outcome
	Attempts int
}

// Record is the durable ledger entry. Entries are never deleted in-process;
// retention is an external concern.
type Record struct {
	Key         Key
	Status      Status
	Attempts    int
	LastUpdated time.Time
}

// Ledger is the durable key→status store. TryBegin must be atomic with
// respect to concurrent callers on the same key.
type Ledger interface {
	// TryBegin attempts to acquire the key for execution. Exactly one of
	// any set of concurrent callers receives Began (or BeganRetry).
	TryBegin(ctx context.Context, key Key) (Begin, error)

	// Complete marks the key's work as done.
	Complete(ctx context.Context, key Key) error

	// Fail marks the key's work as failed; a later delivery may re-acquire
	// it while attempts remain.
	Fail(ctx context.Context, key Key) error

	// Get returns the record for a key, or nil when absent.
	Get(ctx context.Context, key Key) (*Record, error)

	Close() error
}

// Options tune acquisition behavior shared by implementations.
type Options struct {
	// MaxAttempts bounds how many times a key may be acquired
	// (first delivery included). Zero means DefaultMaxAttempts.
	MaxAttempts int

	// Lease is how long an in_progress entry is honored before it is
	// considered orphaned by a crashed worker and may be re-acquired.
	// Zero means DefaultLease.
	Lease time.Duration
}

const (
	// DefaultMaxAttempts bounds cross-delivery acquisitions per key.
	DefaultMaxAttempts = 5
	// DefaultLease is the orphaned-lock takeover horizon.
	DefaultLease = 15 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Lease <= 0 {
		o.Lease = DefaultLease
	}
	return o
}
