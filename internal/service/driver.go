package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	defaultLLMRetryBase = 500 * time.Millisecond
	defaultLLMRetryMax  = 4 * time.Second
)

// LLMClient opens streaming completions against the model provider.
type LLMClient interface {
	OpenStream(ctx context.Context, req domain.CompletionRequest) (domain.EventStream, error)
}

type DriverConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		MaxRetries: 2,
		BaseDelay:  defaultLLMRetryBase,
		MaxDelay:   defaultLLMRetryMax,
	}
}

// Driver opens one completion round. Transient failures while opening the
// stream are retried; once events flow, failures surface to the caller.
type Driver struct {
	client LLMClient
	retry  retrypolicy.RetryPolicy[domain.EventStream]
	logger logging.Logger
}

func NewDriver(client LLMClient, cfg DriverConfig, logger logging.Logger) *Driver {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultLLMRetryBase
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	retry := retrypolicy.NewBuilder[domain.EventStream]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ domain.EventStream, err error) bool {
			var upstream *domain.UpstreamError
			return errors.As(err, &upstream) && upstream.Retryable()
		}).
		OnRetry(func(e failsafe.ExecutionEvent[domain.EventStream]) {
			logger.WithError(e.LastError()).WithField("attempt", e.Attempts()).Warn("retrying model stream")
		}).
		ReturnLastFailure().
		Build()

	return &Driver{client: client, retry: retry, logger: logger}
}

// Stream opens a streaming completion for req.
func (d *Driver) Stream(ctx context.Context, req domain.CompletionRequest) (domain.EventStream, error) {
	start := time.Now()
	stream, err := failsafe.With(d.retry).WithContext(ctx).Get(func() (domain.EventStream, error) {
		return d.client.OpenStream(ctx, req)
	})
	if err != nil {
		llmCallsTotal.WithLabelValues(req.Model, "error").Inc()
		llmDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
		return nil, err
	}
	return &meteredStream{EventStream: stream, model: req.Model, start: start}, nil
}

// meteredStream records call metrics once the round ends.
type meteredStream struct {
	domain.EventStream
	model string
	start time.Time
	once  sync.Once
}

func (s *meteredStream) Next() (domain.StreamEvent, error) {
	event, err := s.EventStream.Next()
	switch {
	case err == nil:
		if _, final := event.(domain.FinalMessageEvent); final {
			s.record("success")
		}
	case errors.Is(err, io.EOF):
		s.record("success")
	default:
		s.record("error")
	}
	return event, err
}

func (s *meteredStream) Close() error {
	s.record("closed")
	return s.EventStream.Close()
}

func (s *meteredStream) record(status string) {
	s.once.Do(func() {
		llmCallsTotal.WithLabelValues(s.model, status).Inc()
		llmDuration.WithLabelValues(s.model).Observe(time.Since(s.start).Seconds())
	})
}
