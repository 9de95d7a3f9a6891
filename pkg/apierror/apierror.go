package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit"
	KindConfiguration  Kind = "configuration"
	KindIntegration    Kind = "integration"
	KindInternal       Kind = "internal"
)

// Error is a response-ready failure. Message is what the caller sees; Err is
// the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Envelope is the body of every error response.
type Envelope struct {
	Error string `json:"error"`
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Status: StatusFromKind(kind), Message: message, Err: cause}
}

func InvalidRequest(message string) *Error { return New(KindInvalidRequest, message, nil) }

func Unauthorized(message string) *Error { return New(KindAuthentication, message, nil) }

func NotFound(message string) *Error { return New(KindNotFound, message, nil) }

func Configuration(message string, cause error) *Error {
	return New(KindConfiguration, message, cause)
}

func Integration(message string, cause error) *Error {
	return New(KindIntegration, message, cause)
}

func Internal(message string, cause error) *Error { return New(KindInternal, message, cause) }

// FromError maps an arbitrary error onto a response. Unknown errors are
// reported as internal without leaking their text.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		out := *apiErr
		if out.Status == 0 {
			out.Status = StatusFromKind(out.Kind)
		}
		return &out
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindIntegration, Status: http.StatusGatewayTimeout, Message: "request timeout", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindInternal, Status: http.StatusRequestTimeout, Message: "request cancelled", Err: err}
	}

	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

func StatusFromKind(k Kind) int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Write sends err as a JSON envelope.
func Write(w http.ResponseWriter, err error) {
	e := FromError(err)
	if e == nil {
		e = Internal("internal error", nil)
	}
	WriteJSON(w, e.Status, Envelope{Error: e.Message})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
