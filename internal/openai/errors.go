package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/cloo-solutions/counsel/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// classifyError wraps provider errors in a domain.UpstreamError so callers can
// decide on retries and user-facing messages without knowing go-openai types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.UpstreamError{
			Kind:       kindForStatus(apiErr.HTTPStatusCode, apiErr.Type, codeString(apiErr.Code)),
			StatusCode: apiErr.HTTPStatusCode,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.UpstreamError{
			Kind:       kindForStatus(reqErr.HTTPStatusCode, "", ""),
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.UpstreamError{Kind: domain.UpstreamTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.UpstreamError{Kind: domain.UpstreamTimeout, Err: err}
	}

	return &domain.UpstreamError{Kind: domain.UpstreamUnknown, Err: err}
}

func kindForStatus(status int, errType, code string) domain.UpstreamKind {
	if code == "insufficient_quota" || errType == "insufficient_quota" || status == http.StatusPaymentRequired {
		return domain.UpstreamBilling
	}
	switch {
	case status == http.StatusTooManyRequests:
		return domain.UpstreamRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.UpstreamAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.UpstreamTimeout
	case status >= http.StatusInternalServerError:
		return domain.UpstreamOverloaded
	case status >= http.StatusBadRequest:
		return domain.UpstreamBadRequest
	}
	if strings.Contains(errType, "overloaded") || strings.Contains(errType, "server_error") {
		return domain.UpstreamOverloaded
	}
	return domain.UpstreamUnknown
}

func codeString(code any) string {
	if s, ok := code.(string); ok {
		return s
	}
	return ""
}
