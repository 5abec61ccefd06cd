// Package pipeline runs the event loop: a bounded worker pool that
// drains storage notifications through the router. It also serves as the
// local-mode notification transport, standing in for the bus a hosted
// object store would provide.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/docpipe/docpipe/internal/event"
	"github.com/docpipe/docpipe/internal/router"
)

// DefaultWorkers is the default worker pool size.
const DefaultWorkers = 4

// Config tunes the pipeline.
type Config struct {
	// Workers is the number of concurrent router workers.
	Workers int

	// QueueSize bounds the notification buffer. Emit blocks when full,
	// applying backpressure to producers.
	QueueSize int
}

// Pipeline owns the notification queue and the worker pool.
type Pipeline struct {
	router *router.Router
	cfg    Config
	queue  chan event.Notification
	logger *slog.Logger
}

// New creates a Pipeline over r.
func New(r *router.Router, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		router: r,
		cfg:    cfg,
		queue:  make(chan event.Notification, cfg.QueueSize),
		logger: logger,
	}
}

// Emit enqueues a notification for routing. It blocks when the queue is
// full and fails only when ctx is canceled. Emit satisfies the
// extraction stage's Notifier, closing the loop from artifact writes
// back into the pipeline.
func (p *Pipeline) Emit(ctx context.Context, n event.Notification) error {
	select {
	case p.queue <- n:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("emit %s: %w", n.Key, ctx.Err())
	}
}

// Run processes notifications until ctx is canceled. Stage failures are
// terminal per event, not per pipeline: they are logged and dead-lettered
// downstream while the workers keep draining.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return p.work(ctx, worker)
		})
	}

	p.logger.Info("pipeline_started", slog.Int("workers", p.cfg.Workers))
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (p *Pipeline) work(ctx context.Context, worker int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-p.queue:
			outcome, err := p.router.Route(ctx, n)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error("route_failed",
					slog.Int("worker", worker),
					slog.String("key", n.Key),
					slog.String("outcome", outcome.String()),
					slog.String("error", err.Error()))
				continue
			}
			p.logger.Debug("routed",
				slog.Int("worker", worker),
				slog.String("key", n.Key),
				slog.String("outcome", outcome.String()))
		}
	}
}

// Depth reports the current queue backlog, for health reporting.
func (p *Pipeline) Depth() int {
	return len(p.queue)
}
