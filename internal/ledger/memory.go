package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger is an in-memory Ledger for tests and single-process runs.
// Same transition semantics as the SQLite ledger, guarded by one mutex.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*Record
	opts    Options

	// now is injectable for lease-expiry tests.
	now func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger(opts Options) *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]*Record),
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// TryBegin implements Ledger.
func (m *MemoryLedger) TryBegin(ctx context.Context, key Key) (Begin, error) {
	if err := ctx.Err(); err != nil {
		return Begin{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.entries[key.String()]
	if !ok {
		m.entries[key.String()] = &Record{Key: key, Status: StatusInProgress, Attempts: 1, LastUpdated: now}
		return Begin{Outcome: Began, Attempts: 1}, nil
	}

	switch rec.Status {
	case StatusCompleted:
		return Begin{Outcome: AlreadyCompleted, Attempts: rec.Attempts}, nil

	case StatusInProgress:
		if now.Sub(rec.LastUpdated) <= m.opts.Lease {
			return Begin{Outcome: AlreadyInProgress, Attempts: rec.Attempts}, nil
		}
		// Orphaned lock from a crashed worker; take it over.
		rec.Attempts++
		rec.LastUpdated = now
		return Begin{Outcome: BeganRetry, Attempts: rec.Attempts}, nil

	case StatusFailed:
		if rec.Attempts >= m.opts.MaxAttempts {
			return Begin{Outcome: FailedExhausted, Attempts: rec.Attempts}, nil
		}
		rec.Status = StatusInProgress
		rec.Attempts++
		rec.LastUpdated = now
		return Begin{Outcome: BeganRetry, Attempts: rec.Attempts}, nil

	default:
		return Begin{}, fmt.Errorf("ledger: unknown status %q for key %q", rec.Status, key.String())
	}
}

// Complete implements Ledger.
func (m *MemoryLedger) Complete(ctx context.Context, key Key) error {
	return m.transition(ctx, key, StatusCompleted)
}

// Fail implements Ledger.
func (m *MemoryLedger) Fail(ctx context.Context, key Key) error {
	return m.transition(ctx, key, StatusFailed)
}

func (m *MemoryLedger) transition(ctx context.Context, key Key, to Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.entries[key.String()]
	if !ok {
		return fmt.Errorf("ledger: no entry for key %q", key.String())
	}
	if rec.Status != StatusInProgress {
		return fmt.Errorf("ledger: key %q is %s, not in_progress", key.String(), rec.Status)
	}
	rec.Status = to
	rec.LastUpdated = m.now()
	return nil
}

// Get implements Ledger.
func (m *MemoryLedger) Get(ctx context.Context, key Key) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.entries[key.String()]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Close implements Ledger.
func (m *MemoryLedger) Close() error { return nil }

// Verify interface implementation at compile time
var _ Ledger = (*MemoryLedger)(nil)
