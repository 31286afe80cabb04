// Package api holds the JSON envelope shared by every HTTP handler.
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/service"
)

// SuccessResponse is the {"data": ...} envelope of every 2xx body.
type SuccessResponse struct {
	Data any `json:"data"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func Success(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessResponse{Data: data})
}

func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

var statusByCode = map[string]int{
	domain.ErrCodeValidation:       http.StatusBadRequest,
	domain.ErrCodeInvalidOperation: http.StatusBadRequest,
	domain.ErrCodeNotFound:         http.StatusNotFound,
	domain.ErrCodeAlreadyExists:    http.StatusConflict,
	domain.ErrCodeUnauthorized:     http.StatusUnauthorized,
	domain.ErrCodeForbidden:        http.StatusForbidden,
	domain.ErrCodeRateLimited:      http.StatusTooManyRequests,
	domain.ErrCodeUpstream:         http.StatusBadGateway,
}

// DomainErrorToHTTP picks the status for err. Anything that is not a
// domain error, or carries an unmapped code, is a 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[domainErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes err as an error envelope. 500s never echo the cause.
func HandleError(w http.ResponseWriter, err error) {
	var rateErr *service.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rateErr)))
	}

	status := DomainErrorToHTTP(err)
	if status == http.StatusInternalServerError {
		writeJSON(w, status, ErrorResponse{Error: "internal server error", Code: domain.ErrCodeInternalError})
		return
	}

	body := ErrorResponse{Error: err.Error()}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		body = ErrorResponse{Error: domainErr.Message, Code: domainErr.Code}
	}
	writeJSON(w, status, body)
}

func retryAfterSeconds(err *service.RateLimitError) int {
	return max(1, int(math.Ceil(err.RetryAfter.Seconds())))
}
