package domain

import (
	"fmt"
	"strings"
)

// DomainError carries a stable Code the HTTP layer maps to a status and a
// Message safe to show to the caller. Err is the optional internal cause.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := "[" + e.Code + "] " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches by code and message so a sentinel still compares equal after
// being rebuilt with a cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code && e.Message == t.Message
}

func NewDomainError(code, message string) *DomainError {
	return NewDomainErrorWithCause(code, message, nil)
}

func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// MaxMessageChars bounds the length of an inbound chat message.
const MaxMessageChars = 50000

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrMessageEmpty         = NewDomainError(ErrCodeValidation, "message must not be empty")
	ErrMessageTooLong       = NewDomainError(ErrCodeValidation, fmt.Sprintf("message exceeds %d characters", MaxMessageChars))
	ErrInvalidRole          = NewDomainError(ErrCodeValidation, "invalid message role")
	ErrInvalidCursor        = NewDomainError(ErrCodeValidation, "invalid cursor")
)

var (
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrOrganizationNotFound = NewDomainError(ErrCodeNotFound, "organization not found")
	ErrProjectNotFound      = NewDomainError(ErrCodeNotFound, "project not found")
	ErrAPIKeyNotFound       = NewDomainError(ErrCodeNotFound, "api key not found")
	ErrSourceNotFound       = NewDomainError(ErrCodeNotFound, "knowledge source not found")
)

var (
	ErrOrganizationAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "organization already exists")
	ErrProjectAlreadyExists      = NewDomainError(ErrCodeAlreadyExists, "project already exists")
	ErrAPIKeyAlreadyExists       = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrUnauthorized  = NewDomainError(ErrCodeUnauthorized, "authentication required")
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrForbidden     = NewDomainError(ErrCodeForbidden, "access denied")
)

var ErrRateLimited = NewDomainError(ErrCodeRateLimited, "Too many requests. Please try again in an hour.")

// required pairs a field name with its value for checkRequired.
type required struct {
	name  string
	value string
}

// checkRequired reports the first empty field as a validation error wrapping
// ErrMissingRequiredField.
func checkRequired(entity string, fields ...required) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewDomainErrorWithCause(ErrCodeValidation, fmt.Sprintf("%s %s is required", entity, f.name), ErrMissingRequiredField)
		}
	}
	return nil
}

func nilEntity(entity string) error {
	return NewDomainError(ErrCodeValidation, entity+" cannot be nil")
}
