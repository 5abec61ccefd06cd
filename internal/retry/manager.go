package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/event"
	"github.com/docpipe/docpipe/internal/ledger"
)

// Policy configures bounded retry for stage execution.
type Policy struct {
	// MaxAttempts is the total number of attempts per execution
	// (first attempt included).
	MaxAttempts int

	// Backoff shapes the delay between attempts.
	Backoff errors.BackoffConfig

	// Timeout bounds each attempt. Zero disables the per-attempt timeout.
	Timeout time.Duration
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     errors.DefaultBackoffConfig(),
		Timeout:     2 * time.Minute,
	}
}

// Manager executes stage handlers under the retry/dead-letter policy and
// owns the ledger's Complete/Fail transitions. Attempts for a given key
// are serialized; the ledger guarantees no concurrent execution.
type Manager struct {
	policy Policy
	ledger ledger.Ledger
	sink   Sink
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(policy Policy, led ledger.Ledger, sink Sink, logger *slog.Logger) *Manager {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{policy: policy, ledger: led, sink: sink, logger: logger}
}

// Execute runs fn for the event's ledger key. The caller must already hold
// the key (TryBegin returned Began or BeganRetry). On success the key is
// marked completed. Transient failures retry with backoff up to the
// attempt cap; permanent failures and exhaustion mark the key failed and
// publish exactly one dead-letter record.
func (m *Manager) Execute(ctx context.Context, ev event.ProcessingEvent, fn func(context.Context) error) error {
	key := ledger.KeyFor(ev)
	attempts := make([]Attempt, 0, m.policy.MaxAttempts)
	var lastErr error

	for n := 1; n <= m.policy.MaxAttempts; n++ {
		if n > 1 {
			// Re-check before re-executing: another delivery may have
			// completed the work while this one was backing off.
			rec, err := m.ledger.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("re-check ledger for %s: %w", key.String(), err)
			}
			if rec != nil && rec.Status == ledger.StatusCompleted {
				m.logger.Info("stage_completed_elsewhere",
					slog.String("stage", string(ev.Stage)),
					slog.String("key", ev.Ref.StorageKey))
				return nil
			}
		}

		err := m.runAttempt(ctx, fn)
		if err == nil {
			if cerr := m.ledger.Complete(ctx, key); cerr != nil {
				return fmt.Errorf("mark %s completed: %w", key.String(), cerr)
			}
			return nil
		}

		class := errors.ClassOf(err)
		attempts = append(attempts, Attempt{Number: n, At: time.Now(), Error: err.Error(), Class: class})
		lastErr = err

		m.logger.Warn("stage_attempt_failed",
			slog.String("stage", string(ev.Stage)),
			slog.String("key", ev.Ref.StorageKey),
			slog.Int("attempt", n),
			slog.String("class", string(class)),
			slog.String("error", err.Error()))

		if class == errors.ClassPermanent {
			break
		}
		if n < m.policy.MaxAttempts {
			if serr := errors.Sleep(ctx, m.policy.Backoff.DelayFor(n)); serr != nil {
				// Shutdown mid-backoff: leave the entry in_progress; the
				// lease expiry makes it reconcilable by redelivery.
				return serr
			}
		}
	}

	if ferr := m.ledger.Fail(ctx, key); ferr != nil {
		m.logger.Error("ledger_fail_transition",
			slog.String("key", key.String()),
			slog.String("error", ferr.Error()))
	}

	dl := DeadLetter{
		ID:        uuid.NewString(),
		Event:     ev,
		LastError: lastErr.Error(),
		Attempts:  attempts,
		CreatedAt: time.Now(),
	}
	if m.sink != nil {
		if perr := m.sink.Publish(ctx, dl); perr != nil {
			m.logger.Error("dead_letter_publish",
				slog.String("key", key.String()),
				slog.String("error", perr.Error()))
		}
	}

	return fmt.Errorf("stage %s terminal after %d attempt(s): %w", ev.Stage, len(attempts), lastErr)
}

// runAttempt invokes fn under the per-attempt timeout, mapping a deadline
// hit to the transient stage-timeout error.
func (m *Manager) runAttempt(ctx context.Context, fn func(context.Context) error) error {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if m.policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, m.policy.Timeout)
		defer cancel()
	}

	err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return errors.Transient(errors.ErrCodeStageTimeout, "stage attempt timed out", err)
	}
	return err
}
