package apperror

import "errors"

// Kind is a stable, machine readable error category exposed to API clients.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "scheduling_conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindInternal          Kind = "internal"
)

// AppError is a custom error type that includes an HTTP status code and an optional internal error code.
type AppError struct {
	Code    int    // HTTP Status Code (e.g., 400, 404)
	Kind    Kind   // Error category (e.g., "validation")
	Message string // User-facing error message
	Details any    // Structured payload rendered next to the message, if any
	Err     error  // The underlying error, if any (not exposed to user)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with a status code and message.
func New(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// WithDetails creates a new AppError carrying a structured details payload.
func WithDetails(code int, kind Kind, message string, details any) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(err error, code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the Kind of the first AppError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
