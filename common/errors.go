package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies every failure produced at the HTTP boundary.
// Downstream code switches on the kind instead of sniffing status codes
// or error shapes.
type ErrorKind string

const (
	// KindUnauthorized is an HTTP 401. It forces a whole-cache clear and a
	// session-expired signal.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindValidation is any other 4xx: the request itself was wrong and
	// retrying without user correction cannot succeed.
	KindValidation ErrorKind = "validation"
	// KindTransport means no HTTP response was received at all (timeout,
	// connection refused, DNS failure, aborted request). Status is 0.
	KindTransport ErrorKind = "transport"
	// KindServer is a 5xx: the server answered but is degraded.
	KindServer ErrorKind = "server"
)

// SessionExpiredMessage is shown when a 401 arrives without a usable
// server-provided detail.
const SessionExpiredMessage = "Sesión expirada. Inicie sesión nuevamente."

// NetworkErrorMessage is the generic message for transport-level failures.
const NetworkErrorMessage = "Error de red. Verifique su conexión."

// APIError is the single error type produced by the API client.
type APIError struct {
	Kind    ErrorKind
	Status  int // 0 when no response was received
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewTransportError wraps a failure where no response arrived.
func NewTransportError(cause error) *APIError {
	msg := NetworkErrorMessage
	if cause != nil {
		msg = fmt.Sprintf("%s (%v)", NetworkErrorMessage, cause)
	}
	return &APIError{Kind: KindTransport, Status: 0, Message: msg}
}

// ErrorFromResponse builds an APIError for a non-2xx response. The message
// is taken from a JSON "detail" field when the body carries one, otherwise
// the raw body text, otherwise a generic "Error <status>" string.
func ErrorFromResponse(status int, body []byte) *APIError {
	msg := extractDetail(body)

	switch {
	case status == http.StatusUnauthorized:
		if msg == "" {
			msg = SessionExpiredMessage
		}
		return &APIError{Kind: KindUnauthorized, Status: status, Message: msg}
	case status >= 500:
		if msg == "" {
			msg = fmt.Sprintf("Error %d", status)
		}
		return &APIError{Kind: KindServer, Status: status, Message: msg}
	default:
		if msg == "" {
			msg = fmt.Sprintf("Error %d", status)
		}
		return &APIError{Kind: KindValidation, Status: status, Message: msg}
	}
}

func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var shaped struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil && shaped.Detail != "" {
		return shaped.Detail
	}
	return strings.TrimSpace(string(body))
}

// IsRetryable reports whether err may succeed if attempted again later.
// Only transport-level failures qualify: a structured 4xx/5xx answer is a
// confirmed verdict from the server and is surfaced, never queued.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == KindTransport
	}
	return false
}

// IsUnauthorized reports whether err is a 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized
}
