package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classify failures across packages. Match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")

	// ErrConversionUnavailable marks a tenant whose market graph could not be
	// resolved. Callers pass content through unmodified.
	ErrConversionUnavailable = errors.New("link conversion unavailable")
)

// APIError is the error surfaced to REST and MCP callers. Field names the
// offending input for validation failures.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AsAPIError finds the APIError in err's chain. Anything else becomes an
// internal error so details never leak to callers; ok reports which case hit.
func AsAPIError(err error) (apiErr *APIError, ok bool) {
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return NewInternalError(err), false
}

// NewNotFoundError reports a missing tenant, config or shop.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError reports bad input in field.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Field:      field,
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError reports a missing or rejected Admin API credential.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError reports a failed call to service. err stays in the chain
// behind ErrUpstreamError.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    service + " request failed",
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewUnavailableError reports a market graph that cannot be resolved into a
// locale mapping. cause names the missing piece.
func NewUnavailableError(cause error) *APIError {
	return &APIError{
		Code:       "CONVERSION_UNAVAILABLE",
		Message:    cause.Error(),
		StatusCode: http.StatusUnprocessableEntity,
		Err:        fmt.Errorf("%w: %w", ErrConversionUnavailable, cause),
	}
}

// NewInternalError hides err behind a generic message.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRateLimitError reports throttling by service.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    service + " rate limit exceeded, please retry later",
		StatusCode: http.StatusTooManyRequests,
		Err:        ErrRateLimited,
	}
}
