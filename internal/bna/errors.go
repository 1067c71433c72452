package bna

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	KindConnectivity      ErrorKind = "connectivity"
	KindAuth              ErrorKind = "auth"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindRemoteAPI         ErrorKind = "remote_api"
	KindConflict          ErrorKind = "conflict"
)

var (
	ErrConnectivity      = errors.New("payment api unreachable")
	ErrAuth              = errors.New("payment api rejected credentials")
	ErrMalformedResponse = errors.New("payment api returned malformed response")
	ErrRemoteAPI         = errors.New("payment api error")
	ErrConflict          = errors.New("payment api conflict")
)

// Error is returned by every Client operation that fails.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Body       []byte
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("bna %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bna %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	out := []error{kindSentinel(e.Kind)}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case KindConnectivity:
		return ErrConnectivity
	case KindAuth:
		return ErrAuth
	case KindMalformedResponse:
		return ErrMalformedResponse
	case KindConflict:
		return ErrConflict
	default:
		return ErrRemoteAPI
	}
}

// IsConflict reports whether err is the remote "customer already exists" answer.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func newConnectivityError(err error) *Error {
	return &Error{Kind: KindConnectivity, Message: err.Error(), cause: err}
}

func newMalformedError(status int, body []byte, err error) *Error {
	return &Error{Kind: KindMalformedResponse, StatusCode: status, Message: "response is not valid JSON", Body: body, cause: err}
}

// errorFromResponse converts a >=400 response into a typed error.
func errorFromResponse(status int, body []byte) *Error {
	msg := extractMessage(body)
	if msg == "" {
		msg = cannedMessage(status)
	}
	kind := KindRemoteAPI
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusConflict:
		kind = KindConflict
	}
	return &Error{Kind: kind, StatusCode: status, Message: msg, Body: append([]byte(nil), body...)}
}

func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "errorMessage", "detail"} {
		switch v := payload[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func cannedMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad request: the payment api rejected the request payload"
	case http.StatusUnauthorized:
		return "unauthorized: check the access key and secret key"
	case http.StatusForbidden:
		return "forbidden: credentials lack permission for this operation"
	case http.StatusNotFound:
		return "not found: the requested resource does not exist"
	case http.StatusConflict:
		return "conflict: customer already exists"
	case http.StatusInternalServerError:
		return "payment api internal error"
	default:
		if text := http.StatusText(status); text != "" {
			return strings.ToLower(text)
		}
		return "unexpected payment api response"
	}
}
