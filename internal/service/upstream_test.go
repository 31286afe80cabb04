package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/counsel/internal/domain"
)

func TestClassifyUpstreamError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.UpstreamKind
	}{
		{"overloaded", &domain.UpstreamError{Kind: domain.UpstreamOverloaded, StatusCode: 529}, domain.UpstreamOverloaded},
		{"wrapped billing", fmt.Errorf("round 2: %w", &domain.UpstreamError{Kind: domain.UpstreamBilling}), domain.UpstreamBilling},
		{"deadline", fmt.Errorf("stream: %w", context.DeadlineExceeded), domain.UpstreamTimeout},
		{"plain", errors.New("boom"), domain.UpstreamUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, msg := ClassifyUpstreamError(tt.err)
			assert.Equal(t, tt.want, kind)
			assert.NotEmpty(t, msg)
			assert.NotContains(t, msg, "boom")
		})
	}
}
