package jsonrpc

import (
	"encoding/json"
	"errors"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/audit"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Application-specific error codes (from -32000 to -32099)
const (
	ErrCodeValidation     = -32001
	ErrCodeUnknownCall    = -32002
	ErrCodeTruncatedInput = -32003
	ErrCodeMalformedInput = -32004
	ErrCodeInvalidSig     = -32005
	ErrCodeNotFound       = -32006
	ErrCodeNoArchive      = -32007
)

// NewError creates an error with a code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates an error carrying extra data.
func NewErrorWithData(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

func ErrParseError(message string) *Error {
	return NewError(ErrCodeParse, message)
}

func ErrInvalidRequest(message string) *Error {
	return NewError(ErrCodeInvalidRequest, message)
}

func ErrMethodNotFound(method string) *Error {
	return NewErrorWithData(ErrCodeMethodNotFound, "method not found", method)
}

func ErrInvalidParams(message string) *Error {
	return NewError(ErrCodeInvalidParams, message)
}

func ErrInternal(message string) *Error {
	return NewError(ErrCodeInternal, message)
}

// validationData is attached to ErrCodeValidation errors.
type validationData struct {
	Field string `json:"field"`
}

// FromError maps library errors to application error codes. Anything
// unrecognised becomes an internal error.
func FromError(err error) *Error {
	var ve *holograph.ValidationError

	switch {
	case errors.As(err, &ve):
		return NewErrorWithData(ErrCodeValidation, ve.Message, validationData{Field: ve.Field})
	case errors.Is(err, holograph.ErrUnknownSelector):
		return NewError(ErrCodeUnknownCall, err.Error())
	case errors.Is(err, holograph.ErrTruncatedInput):
		return decodeFailure(ErrCodeTruncatedInput, err)
	case errors.Is(err, holograph.ErrMalformedInput):
		return decodeFailure(ErrCodeMalformedInput, err)
	case errors.Is(err, holograph.ErrInvalidSignature):
		return NewError(ErrCodeInvalidSig, err.Error())
	case errors.Is(err, audit.ErrReportNotFound):
		return NewError(ErrCodeNotFound, err.Error())
	case errors.Is(err, audit.ErrNoArchive):
		return NewError(ErrCodeNoArchive, err.Error())
	default:
		return ErrInternal(err.Error())
	}
}

func decodeFailure(code int, err error) *Error {
	var de *holograph.DecodeError
	if errors.As(err, &de) && de.Shape != "" {
		return NewErrorWithData(code, err.Error(), map[string]string{"shape": string(de.Shape)})
	}
	return NewError(code, err.Error())
}
