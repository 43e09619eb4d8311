package vad

import "errors"

// ErrorCode classifies failures surfaced by the VAD engine.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	// ErrCodeInvalidTokenLength means the caller handed over a token whose
	// length differs from the configured token size. Nothing was mutated.
	ErrCodeInvalidTokenLength
	// ErrCodeInvalidConfiguration is returned at construction time only.
	ErrCodeInvalidConfiguration
	// ErrCodeScorerFailure wraps an error returned by the Scorer.
	ErrCodeScorerFailure
	// ErrCodeStreamFailed is returned by a Feeder after a scorer failure.
	ErrCodeStreamFailed
)

// String returns the string representation of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidTokenLength:
		return "InvalidTokenLength"
	case ErrCodeInvalidConfiguration:
		return "InvalidConfiguration"
	case ErrCodeScorerFailure:
		return "ScorerFailure"
	case ErrCodeStreamFailed:
		return "StreamFailed"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by this package.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err, or any error it wraps, is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var vErr *Error
	if errors.As(err, &vErr) {
		return vErr.Code == code
	}
	return false
}
