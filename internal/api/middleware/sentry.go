package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// Sentry opens a transaction per request, continuing an incoming trace when
// the caller sent one. Panics are reported and re-raised. 5xx responses are
// captured as messages. Without an initialized client it only passes through.
func Sentry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		tx := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, transactionOptions(r)...)
		defer tx.Finish()

		r, slot := withIdentitySlot(r.WithContext(sentry.SetHubOnContext(tx.Context(), hub)))
		scope := hub.Scope()
		scope.SetContext("request", sentry.Context{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       r.URL.RawQuery,
			"remote_addr": r.RemoteAddr,
		})
		if id := GetRequestID(r.Context()); id != "" {
			scope.SetTag("request_id", id)
			tx.SetTag("request_id", id)
		}
		if ua := r.UserAgent(); ua != "" {
			scope.SetTag("user_agent", ua)
		}

		defer func() {
			if p := recover(); p != nil {
				tx.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), p)
				panic(p)
			}
		}()

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		tx.Status = spanStatus(status)
		tx.SetData("http.response.status_code", status)

		// The identity is only known once auth ran further down the chain.
		if id := slot.identity; !id.IsZero() {
			scope.SetTag("org_id", id.OrgID)
			scope.SetUser(sentry.User{ID: id.UserID})
			tx.SetTag("org_id", id.OrgID)
		}
		if status >= http.StatusInternalServerError {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)))
		}
	})
}

func transactionOptions(r *http.Request) []sentry.SpanOption {
	opts := []sentry.SpanOption{
		sentry.WithOpName("http.server"),
		sentry.WithTransactionSource(sentry.SourceURL),
	}
	if trace := r.Header.Get("sentry-trace"); trace != "" {
		opts = append(opts, sentry.ContinueFromHeaders(trace, r.Header.Get("baggage")))
	}
	return opts
}

var spanStatusByCode = map[int]sentry.SpanStatus{
	http.StatusBadRequest:          sentry.SpanStatusInvalidArgument,
	http.StatusUnauthorized:        sentry.SpanStatusUnauthenticated,
	http.StatusForbidden:           sentry.SpanStatusPermissionDenied,
	http.StatusNotFound:            sentry.SpanStatusNotFound,
	http.StatusConflict:            sentry.SpanStatusAlreadyExists,
	http.StatusTooManyRequests:     sentry.SpanStatusResourceExhausted,
	499:                            sentry.SpanStatusCanceled,
	http.StatusNotImplemented:      sentry.SpanStatusUnimplemented,
	http.StatusBadGateway:          sentry.SpanStatusUnavailable,
	http.StatusServiceUnavailable:  sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:      sentry.SpanStatusDeadlineExceeded,
	http.StatusInternalServerError: sentry.SpanStatusInternalError,
}

func spanStatus(code int) sentry.SpanStatus {
	if s, ok := spanStatusByCode[code]; ok {
		return s
	}
	switch code / 100 {
	case 2, 3:
		return sentry.SpanStatusOK
	case 4:
		return sentry.SpanStatusInvalidArgument
	case 5:
		return sentry.SpanStatusInternalError
	}
	return sentry.SpanStatusUnknown
}
