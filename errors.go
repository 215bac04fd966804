package holograph

import (
	"errors"
	"fmt"
)

// Sentinel errors - Decoding
var (
	ErrUnknownSelector = errors.New("holograph: unknown function selector")
	ErrTruncatedInput  = errors.New("holograph: input shorter than call layout")
	ErrMalformedInput  = errors.New("holograph: input does not match call layout")
)

// Sentinel errors - Signatures
var (
	ErrSignatureRejected  = errors.New("holograph: signature rejected by signer")
	ErrSigningFailed      = errors.New("holograph: signing failed")
	ErrInvalidSignature   = errors.New("holograph: invalid signature")
	ErrVerificationFailed = errors.New("holograph: recovered signer does not match")
)

// Sentinel errors - Configuration
var (
	ErrMissingBaoAddr   = errors.New("holograph: BaoAddr is required")
	ErrMissingBaoToken  = errors.New("holograph: BaoToken is required")
	ErrMissingStorePath = errors.New("holograph: StorePath is required")
	ErrMissingKeyName   = errors.New("holograph: KeyName is required")
)

// Sentinel errors - Keys
var (
	ErrKeyNotFound    = errors.New("holograph: key not found")
	ErrKeyExists      = errors.New("holograph: key already exists")
	ErrStorePersist   = errors.New("holograph: failed to persist")
	ErrStoreCorrupted = errors.New("holograph: store corrupted")
)

// Sentinel errors - OpenBao
var (
	ErrBaoConnection  = errors.New("holograph: failed to connect to OpenBao")
	ErrBaoAuth        = errors.New("holograph: authentication failed")
	ErrBaoSealed      = errors.New("holograph: OpenBao is sealed")
	ErrBaoUnavailable = errors.New("holograph: OpenBao is unavailable")
)

// DecodeError records which call shape and step failed while decoding input.
type DecodeError struct {
	Shape CallShape
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Shape == "" {
		return fmt.Sprintf("decode: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("decode %s: %s: %v", e.Shape, e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(shape CallShape, op string, err error) error {
	return &DecodeError{Shape: shape, Op: op, Err: err}
}

// BaoError represents an OpenBao API error.
type BaoError struct {
	StatusCode int
	Errors     []string
	RequestID  string
}

// Error implements the error interface.
func (e *BaoError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("OpenBao error (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("OpenBao error (HTTP %d): %s", e.StatusCode, e.Errors[0])
}

// Is maps HTTP status codes onto sentinel errors. A 403 on a sign request is
// a policy refusal, so it matches both ErrBaoAuth and ErrSignatureRejected.
func (e *BaoError) Is(target error) bool {
	switch e.StatusCode {
	case 403:
		return errors.Is(target, ErrBaoAuth) || errors.Is(target, ErrSignatureRejected)
	case 404:
		return errors.Is(target, ErrKeyNotFound)
	case 503:
		return errors.Is(target, ErrBaoSealed)
	default:
		return false
	}
}

// NewBaoError creates a new BaoError with the given parameters.
func NewBaoError(statusCode int, errs []string, requestID string) *BaoError {
	return &BaoError{
		StatusCode: statusCode,
		Errors:     errs,
		RequestID:  requestID,
	}
}

// KeyError wraps an error with key context.
type KeyError struct {
	KeyName string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	return fmt.Sprintf("%s key %q: %v", e.Op, e.KeyName, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *KeyError) Unwrap() error {
	return e.Err
}

// WrapKeyError wraps an error with key operation context.
// Returns nil if the provided error is nil.
func WrapKeyError(op, keyName string, err error) error {
	if err == nil {
		return nil
	}
	return &KeyError{
		KeyName: keyName,
		Op:      op,
		Err:     err,
	}
}

// ValidationError reports a malformed input field. It is returned before any
// encoding happens.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError with the given field and message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
