package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/counsel/internal/logging"
)

// Degradation stages, used as log field and metric label.
const (
	StageExpansion      = "expansion"
	StageSources        = "sources"
	StageRetrieval      = "retrieval"
	StageTemplates      = "templates"
	StageDocuments      = "documents"
	StageHistory        = "history"
	StageCitationVerify = "citation_verify"
)

type FallbackOptions struct {
	Stage   string
	Timeout time.Duration
	Logger  logging.Logger
}

// WithFallback runs fn under its own deadline and returns fallback if fn fails
// or the deadline passes. Every degradation is logged once and counted.
func WithFallback[T any](ctx context.Context, opts FallbackOptions, fallback T, fn func(ctx context.Context) (T, error)) T {
	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(callCtx)
		done <- outcome{value: value, err: err}
	}()

	var err error
	select {
	case out := <-done:
		if out.err == nil {
			return out.value
		}
		err = out.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	degradedTotal.WithLabelValues(opts.Stage).Inc()
	if opts.Logger != nil {
		opts.Logger.WithError(err).WithField("stage", opts.Stage).Warn("degraded: continuing without result")
	}
	return fallback
}
