// Package retry wraps stage execution with bounded retry and dead-letter
// escalation. It is the single place that decides retry-vs-escalate, based
// solely on error classification.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docpipe/docpipe/internal/errors"
	"github.com/docpipe/docpipe/internal/event"
)

// Attempt records one stage execution attempt for the dead-letter trail.
type Attempt struct {
	Number int          `json:"number"`
	At     time.Time    `json:"at"`
	Error  string       `json:"error"`
	Class  errors.Class `json:"class"`
}

// DeadLetter is a terminal-failure record routed for operator or automated
// follow-up instead of silent loss. Permanent failures and retry
// exhaustion both land here; the distinction lives in the attempt history.
type DeadLetter struct {
	ID        string                `json:"id"`
	Event     event.ProcessingEvent `json:"event"`
	LastError string                `json:"last_error"`
	Attempts  []Attempt             `json:"attempts"`
	CreatedAt time.Time             `json:"created_at"`
}

// Sink receives dead-letter records.
type Sink interface {
	Publish(ctx context.Context, dl DeadLetter) error
}

// ChannelSink exposes dead letters on a channel for external consumers.
type ChannelSink struct {
	ch chan DeadLetter
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan DeadLetter, buffer)}
}

// C returns the receive side of the dead-letter channel.
func (s *ChannelSink) C() <-chan DeadLetter { return s.ch }

// Publish implements Sink. It blocks until the record is accepted or the
// context is cancelled; dead letters are reported, never dropped.
func (s *ChannelSink) Publish(ctx context.Context, dl DeadLetter) error {
	select {
	case s.ch <- dl:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FileSink appends dead letters as JSON lines for operator inspection.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a JSONL sink at path.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dead-letter directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Publish implements Sink.
func (s *FileSink) Publish(ctx context.Context, dl DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open dead-letter file: %w", err)
	}
	defer func() { _ = f.Close() }()

	line, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write dead letter: %w", err)
	}
	return nil
}

// MultiSink fans a dead letter out to several sinks.
type MultiSink []Sink

// Publish implements Sink. All sinks receive the record; the first error
// is returned after the fan-out finishes.
func (s MultiSink) Publish(ctx context.Context, dl DeadLetter) error {
	var firstErr error
	for _, sink := range s {
		if err := sink.Publish(ctx, dl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
