package lnhunt

import (
	"errors"
	"fmt"
)

// Error represents a hunt-specific error with a machine-readable code
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeConfiguration    = "configuration_error"
	ErrCodeProvider         = "provider_error"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeValidation       = "validation_error"
	ErrCodeQuestionNotFound = "question_not_found"
	ErrCodeInvalidState     = "invalid_state"
)

// NewError creates a new hunt error
func NewError(code, message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func hasCode(err error, code string) bool {
	var he *Error
	return errors.As(err, &he) && he.Code == code
}

// IsConfiguration reports whether err is a fatal configuration error.
func IsConfiguration(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsProvider reports whether err is a recoverable payment-provider failure.
func IsProvider(err error) bool { return hasCode(err, ErrCodeProvider) }

// IsRateLimited reports whether err signals a rate-limit rejection.
func IsRateLimited(err error) bool { return hasCode(err, ErrCodeRateLimited) }

// IsValidation reports whether err is a locally recoverable input error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsQuestionNotFound reports whether err refers to an unknown question id.
func IsQuestionNotFound(err error) bool { return hasCode(err, ErrCodeQuestionNotFound) }

// IsInvalidState reports whether err was caused by an operation that is not
// legal in the session's current state.
func IsInvalidState(err error) bool { return hasCode(err, ErrCodeInvalidState) }
