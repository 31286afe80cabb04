// Package jobs runs background maintenance on a fixed interval.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/cloo-solutions/counsel/internal/logging"
)

// Task is one unit of periodic work. An error is logged and the next tick
// runs again.
type Task interface {
	RunOnce(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) RunOnce(ctx context.Context) error { return f(ctx) }

type Worker struct {
	name     string
	task     Task
	interval time.Duration
	logger   logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(name string, task Task, interval time.Duration, logger logging.Logger) *Worker {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Worker{name: name, task: task, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start blocks until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer close(w.done)
	defer cancel()

	log := w.logger.WithField("worker", w.name)
	log.WithField("interval", w.interval.String()).Info("worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopped")
			return
		case <-ticker.C:
			if err := w.task.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("task failed")
			}
		}
	}
}

// Stop cancels a running worker and waits for the current run to return.
// It is safe to call more than once.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-w.done
}
