package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteLedger is the durable Ledger. TryBegin runs inside an immediate
// transaction, so concurrent callers on the same key serialize on the
// database and exactly one observes each transition.
type SQLiteLedger struct {
	db   *sql.DB
	opts Options

	// now is injectable for lease-expiry tests.
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS idempotency (
    k           TEXT PRIMARY KEY,
    storage_key TEXT NOT NULL,
    version     TEXT NOT NULL,
    stage       TEXT NOT NULL,
    status      TEXT NOT NULL,
    attempts    INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
`

// NewSQLiteLedger opens (or creates) the ledger database at path.
// An empty path creates an in-memory database for testing.
func NewSQLiteLedger(path string, opts Options) (*SQLiteLedger, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	// Single connection: the ledger is small and this keeps the immediate
	// transactions from contending over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure ledger database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &SQLiteLedger{db: db, opts: opts.withDefaults(), now: time.Now}, nil
}

// TryBegin implements Ledger.
func (l *SQLiteLedger) TryBegin(ctx context.Context, key Key) (Begin, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Begin{}, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := l.now().UnixNano()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency (k, storage_key, version, stage, status, attempts, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)
		 ON CONFLICT(k) DO NOTHING`,
		key.String(), key.StorageKey, key.Version, string(key.Stage), string(StatusInProgress), now)
	if err != nil {
		return Begin{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		if err := tx.Commit(); err != nil {
			return Begin{}, fmt.Errorf("commit ledger entry: %w", err)
		}
		return Begin{Outcome: Began, Attempts: 1}, nil
	}

	var status string
	var attempts int
	var updatedAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT status, attempts, updated_at FROM idempotency WHERE k = ?`,
		key.String()).Scan(&status, &attempts, &updatedAt)
	if err != nil {
		return Begin{}, fmt.Errorf("read ledger entry: %w", err)
	}

	begin := Begin{Attempts: attempts}
	switch Status(status) {
	case StatusCompleted:
		begin.Outcome = AlreadyCompleted

	case StatusInProgress:
		if l.now().Sub(time.Unix(0, updatedAt)) <= l.opts.Lease {
			begin.Outcome = AlreadyInProgress
			break
		}
		// Orphaned lock from a crashed worker; take it over.
		if err := l.reacquire(ctx, tx, key, status, attempts, now); err != nil {
			return Begin{}, err
		}
		begin.Outcome = BeganRetry
		begin.Attempts = attempts + 1

	case StatusFailed:
		if attempts >= l.opts.MaxAttempts {
			begin.Outcome = FailedExhausted
			break
		}
		if err := l.reacquire(ctx, tx, key, status, attempts, now); err != nil {
			return Begin{}, err
		}
		begin.Outcome = BeganRetry
		begin.Attempts = attempts + 1

	default:
		return Begin{}, fmt.Errorf("ledger: unknown status %q for key %q", status, key.String())
	}

	if err := tx.Commit(); err != nil {
		return Begin{}, fmt.Errorf("commit ledger transition: %w", err)
	}
	return begin, nil
}

// reacquire flips a stale or failed entry back to in_progress. The WHERE
// guards keep it a compare-and-set even outside the transaction.
func (l *SQLiteLedger) reacquire(ctx context.Context, tx *sql.Tx, key Key, fromStatus string, fromAttempts int, now int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE idempotency
		 SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE k = ? AND status = ? AND attempts = ?`,
		string(StatusInProgress), now, key.String(), fromStatus, fromAttempts)
	if err != nil {
		return fmt.Errorf("reacquire ledger entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("ledger: lost reacquire race for key %q", key.String())
	}
	return nil
}

// Complete implements Ledger.
func (l *SQLiteLedger) Complete(ctx context.Context, key Key) error {
	return l.transition(ctx, key, StatusCompleted)
}

// Fail implements Ledger.
func (l *SQLiteLedger) Fail(ctx context.Context, key Key) error {
	return l.transition(ctx, key, StatusFailed)
}

func (l *SQLiteLedger) transition(ctx context.Context, key Key, to Status) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE idempotency SET status = ?, updated_at = ?
		 WHERE k = ? AND status = ?`,
		string(to), l.now().UnixNano(), key.String(), string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("ledger: key %q is not in_progress", key.String())
	}
	return nil
}

// Get implements Ledger.
func (l *SQLiteLedger) Get(ctx context.Context, key Key) (*Record, error) {
	var status string
	var attempts int
	var updatedAt int64
	err := l.db.QueryRowContext(ctx,
		`SELECT status, attempts, updated_at FROM idempotency WHERE k = ?`,
		key.String()).Scan(&status, &attempts, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger entry: %w", err)
	}
	return &Record{
		Key:         key,
		Status:      Status(status),
		Attempts:    attempts,
		LastUpdated: time.Unix(0, updatedAt),
	}, nil
}

// Close implements Ledger.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Verify interface implementation at compile time
var _ Ledger = (*SQLiteLedger)(nil)
