// Package apperr defines the closed error taxonomy of §7: every caller-
// facing failure in the system is one of these codes, each pinned to an
// HTTP status and a recovery hint surfaced in documentation, not code.
package apperr

import "fmt"

// Code is the taxonomy discriminator.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeIdempotencyConflict Code = "IDEMPOTENCY_CONFLICT"
	CodeDuplicateQueue     Code = "DUPLICATE_QUEUE"
	CodeSuppressedEmail    Code = "SUPPRESSED_EMAIL"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeQueuePaused        Code = "QUEUE_PAUSED"
	CodeQueueNotFound      Code = "QUEUE_NOT_FOUND"
	CodeInvalidSMTPConfig  Code = "INVALID_SMTP_CONFIG"
	CodeLimitExceeded      Code = "LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// httpStatus maps each code to the status the handler layer should write.
var httpStatus = map[Code]int{
	CodeValidation:          400,
	CodeUnauthorized:        401,
	CodeForbidden:           403,
	CodeNotFound:            404,
	CodeIdempotencyConflict: 409,
	CodeDuplicateQueue:      409,
	CodeSuppressedEmail:     422,
	CodeRateLimitExceeded:   429,
	CodeQueuePaused:         503,
	CodeQueueNotFound:       404,
	CodeInvalidSMTPConfig:   400,
	CodeLimitExceeded:       403,
	CodeInternal:            500,
}

// FieldError is one `path + message` pair reported by validation (§4.1).
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error is the application-level error every service/handler deals in.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the status code this error maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

// New builds an Error with no details.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches details (e.g. a []FieldError or an entity id) to a
// new Error.
func WithDetails(code Code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Validation builds a VALIDATION_ERROR carrying field errors.
func Validation(fields ...FieldError) *Error {
	return WithDetails(CodeValidation, "validation failed", fields)
}

// NotFound builds a NOT_FOUND for the named entity.
func NotFound(entity string) *Error {
	return New(CodeNotFound, entity+" not found")
}
