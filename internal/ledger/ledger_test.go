package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/internal/event"
)

func testKey() Key {
	return Key{StorageKey: "uploads/report.pdf", Version: "v1", Stage: event.StageExtract}
}

// ledgers returns both implementations so every test runs against each.
func ledgers(t *testing.T, opts Options) map[string]Ledger {
	t.Helper()

	sqlitePath := filepath.Join(t.TempDir(), "ledger.db")
	sq, err := NewSQLiteLedger(sqlitePath, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Ledger{
		"memory": NewMemoryLedger(opts),
		"sqlite": sq,
	}
}

func setNow(l Ledger, now func() time.Time) {
	switch v := l.(type) {
	case *MemoryLedger:
		v.now = now
	case *SQLiteLedger:
		v.now = now
	}
}

func TestTryBegin_FirstCallerWins(t *testing.T) {
	for name, l := range ledgers(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			begin, err := l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			assert.Equal(t, Began, begin.Outcome)
			assert.Equal(t, 1, begin.Attempts)

			// Redelivery while in flight.
			begin, err = l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			assert.Equal(t, AlreadyInProgress, begin.Outcome)
		})
	}
}

func TestTryBegin_CompletedIsTerminal(t *testing.T) {
	for name, l := range ledgers(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			require.NoError(t, l.Complete(ctx, testKey()))

			begin, err := l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			assert.Equal(t, AlreadyCompleted, begin.Outcome)

			rec, err := l.Get(ctx, testKey())
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, StatusCompleted, rec.Status)
			assert.Equal(t, 1, rec.Attempts)
		})
	}
}

func TestTryBegin_FailedReacquiresUntilExhausted(t *testing.T) {
	for name, l := range ledgers(t, Options{MaxAttempts: 3}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			begin, err := l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			require.Equal(t, Began, begin.Outcome)

			for want := 2; want <= 3; want++ {
				require.NoError(t, l.Fail(ctx, testKey()))

				begin, err = l.TryBegin(ctx, testKey())
				require.NoError(t, err)
				assert.Equal(t, BeganRetry, begin.Outcome)
				assert.Equal(t, want, begin.Attempts)
			}

			require.NoError(t, l.Fail(ctx, testKey()))
			begin, err = l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			assert.Equal(t, FailedExhausted, begin.Outcome)
			assert.Equal(t, 3, begin.Attempts)
		})
	}
}

func TestTryBegin_StaleLeaseIsTakenOver(t *testing.T) {
	for name, l := range ledgers(t, Options{Lease: time.Minute}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := l.TryBegin(ctx, testKey())
			require.NoError(t, err)

			// A worker crashed; the lease expires.
			setNow(l, func() time.Time { return time.Now().Add(2 * time.Minute) })

			begin, err := l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			assert.Equal(t, BeganRetry, begin.Outcome)
			assert.Equal(t, 2, begin.Attempts)
		})
	}
}

func TestTransition_RequiresInProgress(t *testing.T) {
	for name, l := range ledgers(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			assert.Error(t, l.Complete(ctx, testKey()))

			_, err := l.TryBegin(ctx, testKey())
			require.NoError(t, err)
			require.NoError(t, l.Complete(ctx, testKey()))

			// Already completed; a second transition must not succeed.
			assert.Error(t, l.Complete(ctx, testKey()))
			assert.Error(t, l.Fail(ctx, testKey()))
		})
	}
}

func TestGet_AbsentKeyIsNil(t *testing.T) {
	for name, l := range ledgers(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			rec, err := l.Get(context.Background(), testKey())
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestTryBegin_ConcurrentRedelivery(t *testing.T) {
	// Two simultaneous deliveries race on TryBegin; exactly one proceeds.
	for name, l := range ledgers(t, Options{}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const racers = 16

			var wg sync.WaitGroup
			outcomes := make([]Outcome, racers)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					begin, err := l.TryBegin(ctx, testKey())
					assert.NoError(t, err)
					outcomes[i] = begin.Outcome
				}(i)
			}
			wg.Wait()

			began := 0
			for _, o := range outcomes {
				switch o {
				case Began, BeganRetry:
					began++
				case AlreadyInProgress, AlreadyCompleted:
				default:
					t.Fatalf("unexpected outcome %v", o)
				}
			}
			assert.Equal(t, 1, began)
		})
	}
}
