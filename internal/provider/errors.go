package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailoverReason categorizes why a request to a provider failed, driving
// both retry and multi-provider failover decisions.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether retrying the same provider may succeed.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether a different provider should be tried.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case FailoverBilling, FailoverAuth, FailoverModelUnavailable:
		return true
	default:
		return false
	}
}

// Error is a structured error from an LLM provider, carrying enough context
// for retry logic, failover decisions, and operator-facing diagnostics.
type Error struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause as a provider Error, classifying its reason from the
// error text when no status/code is known yet.
func NewError(providerName, model string, cause error) *Error {
	e := &Error{Provider: providerName, Model: model, Cause: cause, Reason: FailoverUnknown}
	if cause != nil {
		e.Message = cause.Error()
		e.Reason = ClassifyError(cause)
	}
	return e
}

func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	e.Reason = classifyStatusCode(status)
	return e
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	if r := classifyErrorCode(code); r != FailoverUnknown {
		e.Reason = r
	}
	return e
}

func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// ClassifyError inspects an error's text for known failure patterns.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"), strings.Contains(s, "etimedout"):
		return FailoverTimeout
	case strings.Contains(s, "rate limit"), strings.Contains(s, "rate_limit"), strings.Contains(s, "too many requests"), strings.Contains(s, "429"):
		return FailoverRateLimit
	case strings.Contains(s, "unauthorized"), strings.Contains(s, "invalid api key"), strings.Contains(s, "authentication"), strings.Contains(s, "401"), strings.Contains(s, "403"):
		return FailoverAuth
	case strings.Contains(s, "billing"), strings.Contains(s, "payment"), strings.Contains(s, "quota"), strings.Contains(s, "insufficient"), strings.Contains(s, "402"):
		return FailoverBilling
	case strings.Contains(s, "content_filter"), strings.Contains(s, "content policy"), strings.Contains(s, "safety"), strings.Contains(s, "blocked"):
		return FailoverContentFilter
	case strings.Contains(s, "model not found"), strings.Contains(s, "does not exist"), strings.Contains(s, "unavailable"):
		return FailoverModelUnavailable
	case strings.Contains(s, "internal server"), strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "504"):
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status == http.StatusNotFound:
		return FailoverModelUnavailable
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return FailoverRateLimit
	case "authentication_error", "invalid_api_key":
		return FailoverAuth
	case "billing_error", "insufficient_quota":
		return FailoverBilling
	case "model_not_found", "model_not_available":
		return FailoverModelUnavailable
	case "content_policy_violation", "content_filter":
		return FailoverContentFilter
	case "server_error", "internal_error":
		return FailoverServerError
	case "invalid_request_error":
		return FailoverInvalidRequest
	default:
		return FailoverUnknown
	}
}

// AsError extracts a provider *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err should trigger a same-provider retry.
func IsRetryable(err error) bool {
	if pe, ok := AsError(err); ok {
		return pe.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}

// ShouldFailover reports whether err should trigger trying another provider.
func ShouldFailover(err error) bool {
	if pe, ok := AsError(err); ok {
		return pe.Reason.ShouldFailover()
	}
	return ClassifyError(err).ShouldFailover()
}
