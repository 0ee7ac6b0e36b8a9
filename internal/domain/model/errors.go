package model

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies gateway failures; each kind maps to an HTTP status.
type ErrorKind string

const (
	KindBadRequest         ErrorKind = "bad_request"
	KindNotFound           ErrorKind = "not_found"
	KindPreconditionFailed ErrorKind = "precondition_failed"
	KindOriginUnavailable  ErrorKind = "origin_unavailable"
	KindTransformFailed    ErrorKind = "upstream_transform_failed"
	KindInternal           ErrorKind = "internal"
)

// GatewayError is the typed error surfaced to clients. It never carries stack
// information; handlers render it as {"error":{kind,message,requestId}}.
type GatewayError struct {
	Kind      ErrorKind
	Message   string
	Status    int
	Retryable bool
	// Code is the upstream numeric error code, when one exists.
	Code int
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status to send to the client.
func (e *GatewayError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPreconditionFailed:
		return http.StatusRequestEntityTooLarge
	case KindOriginUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest builds a 400 gateway error.
func BadRequest(format string, args ...any) *GatewayError {
	return &GatewayError{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a 404 gateway error.
func NotFound(format string, args ...any) *GatewayError {
	return &GatewayError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// OriginUnavailable builds a 502 gateway error wrapping the last source failure.
func OriginUnavailable(err error) *GatewayError {
	return &GatewayError{Kind: KindOriginUnavailable, Message: "all sources failed", Err: err}
}

// TransformError reports a failure from the upstream transformation endpoint.
type TransformError struct {
	// Code is the numeric error code from the provider header.
	Code      int
	Status    int
	Retryable bool
	Message   string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("upstream transform error %d: %s", e.Code, e.Message)
}

// Gateway converts the transform error into a client-facing GatewayError.
func (e *TransformError) Gateway() *GatewayError {
	return &GatewayError{
		Kind:      KindTransformFailed,
		Message:   e.Message,
		Status:    e.Status,
		Retryable: e.Retryable,
		Code:      e.Code,
		Err:       e,
	}
}
