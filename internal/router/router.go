// Package router turns storage notifications into stage executions. It
// decides which stage a key belongs to, wins or declines the work
// through the idempotency ledger, and dispatches the winner under the
// retry policy.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docpipe/docpipe/internal/event"
	"github.com/docpipe/docpipe/internal/ledger"
	"github.com/docpipe/docpipe/internal/retry"
)

// Outcome describes how the router disposed of a notification.
type Outcome int

const (
	// Dispatched means this delivery won the key and the stage ran.
	Dispatched Outcome = iota

	// AlreadyProcessed means a previous delivery completed the work.
	AlreadyProcessed

	// InFlight means another delivery holds the key within its lease.
	InFlight

	// Skipped means the key matches no stage and was ignored.
	Skipped

	// Exhausted means the key failed too many deliveries and is frozen
	// until operator intervention.
	Exhausted
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case AlreadyProcessed:
		return "already_processed"
	case InFlight:
		return "in_flight"
	case Skipped:
		return "skipped"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// StageHandler executes one stage for one event.
type StageHandler interface {
	Handle(ctx context.Context, ev event.ProcessingEvent) error
}

// RouteConfig defines how storage keys map to stages.
type RouteConfig struct {
	// RawSuffix selects raw documents for the extraction stage.
	RawSuffix string

	// IntermediatePrefix and ArtifactSuffix together select extracted
	// artifacts for the indexing stage.
	IntermediatePrefix string
	ArtifactSuffix     string
}

// DefaultRouteConfig matches the pipeline's artifact layout.
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		RawSuffix:          ".pdf",
		IntermediatePrefix: "extracted/",
		ArtifactSuffix:     ".json",
	}
}

// Router routes notifications to stage handlers.
type Router struct {
	cfg      RouteConfig
	led      ledger.Ledger
	mgr      *retry.Manager
	handlers map[event.Stage]StageHandler
	logger   *slog.Logger
}

// New creates a Router. handlers maps each stage to its executor.
func New(cfg RouteConfig, led ledger.Ledger, mgr *retry.Manager, handlers map[event.Stage]StageHandler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{cfg: cfg, led: led, mgr: mgr, handlers: handlers, logger: logger}
}

// Route disposes of one notification. Redelivering the same notification
// is always safe: at most one delivery executes the stage, the rest
// observe AlreadyProcessed, InFlight, or Exhausted. A non-nil error is
// only returned alongside Dispatched (the stage ran and failed
// terminally) or for ledger faults.
func (r *Router) Route(ctx context.Context, n event.Notification) (Outcome, error) {
	stage, ok := r.stageFor(n.Key)
	if !ok {
		r.logger.Debug("notification_skipped", slog.String("key", n.Key))
		return Skipped, nil
	}

	handler, ok := r.handlers[stage]
	if !ok {
		return Skipped, fmt.Errorf("no handler registered for stage %s", stage)
	}

	ev := event.ProcessingEvent{
		Ref: event.DocumentRef{
			StorageKey: n.Key,
			Version:    n.Version,
		},
		Stage:      stage,
		ReceivedAt: time.Now().UTC(),
	}

	begin, err := r.led.TryBegin(ctx, ledger.KeyFor(ev))
	if err != nil {
		return Skipped, fmt.Errorf("ledger begin for %s: %w", n.Key, err)
	}

	switch begin.Outcome {
	case ledger.AlreadyCompleted:
		r.logger.Debug("duplicate_delivery",
			slog.String("stage", string(stage)),
			slog.String("key", n.Key))
		return AlreadyProcessed, nil
	case ledger.AlreadyInProgress:
		return InFlight, nil
	case ledger.FailedExhausted:
		r.logger.Warn("delivery_for_exhausted_key",
			slog.String("stage", string(stage)),
			slog.String("key", n.Key),
			slog.Int("attempts", begin.Attempts))
		return Exhausted, nil
	case ledger.Began, ledger.BeganRetry:
		ev.DeliveryAttempt = begin.Attempts
	default:
		return Skipped, fmt.Errorf("unexpected ledger outcome %s for %s", begin.Outcome, n.Key)
	}

	r.logger.Info("stage_dispatch",
		slog.String("stage", string(stage)),
		slog.String("key", n.Key),
		slog.Int("delivery", ev.DeliveryAttempt))

	return Dispatched, r.mgr.Execute(ctx, ev, func(ctx context.Context) error {
		return handler.Handle(ctx, ev)
	})
}

// stageFor classifies a storage key. Artifact keys are checked first so
// an artifact named like a raw document still routes to indexing.
func (r *Router) stageFor(key string) (event.Stage, bool) {
	if strings.HasPrefix(key, r.cfg.IntermediatePrefix) && strings.HasSuffix(key, r.cfg.ArtifactSuffix) {
		return event.StageIndex, true
	}
	if strings.HasSuffix(strings.ToLower(key), r.cfg.RawSuffix) {
		return event.StageExtract, true
	}
	return "", false
}
