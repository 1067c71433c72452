package response

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

type problemDetails struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, "application/json", status, envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

// Error writes the envelope, or RFC 7807 problem details when the caller
// asks for application/problem+json.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	m := buildMeta(r)
	if prefersProblemJSON(r) {
		write(w, "application/problem+json", status, problemDetails{
			Type:      problemType(code),
			Title:     problemTitle(code, status),
			Status:    status,
			Detail:    message,
			Instance:  r.URL.Path,
			Code:      code,
			RequestID: m.RequestID,
		})
		return
	}
	write(w, "application/json", status, envelope{
		Error: &apiError{Code: code, Message: message, Details: details},
		Meta:  m,
	})
}

func write(w http.ResponseWriter, contentType string, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

// Ack answers machine callers such as the payment processor. They only read
// the status code, so the body stays flat and never uses problem+json.
func Ack(w http.ResponseWriter, status int, message, eventID string) {
	outcome := "success"
	if status >= http.StatusBadRequest {
		outcome = "error"
	}
	write(w, "application/json", status, ack{Status: outcome, Message: message, EventID: eventID})
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}

func prefersProblemJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mediaType != "application/problem+json" {
			continue
		}
		q, ok := params["q"]
		if !ok {
			return true
		}
		if weight, err := strconv.ParseFloat(q, 64); err == nil && weight > 0 {
			return true
		}
	}
	return false
}

func problemType(code string) string {
	normalized := strings.ToLower(strings.TrimSpace(code))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	if normalized == "" {
		normalized = "unknown"
	}
	return "urn:problem:bna-payment-gateway:" + normalized
}

func problemTitle(code string, status int) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "BAD_REQUEST":
		return "Bad Request"
	case "UNAUTHORIZED":
		return "Unauthorized"
	case "FORBIDDEN":
		return "Forbidden"
	case "NOT_FOUND":
		return "Not Found"
	case "INTERNAL":
		return "Internal Server Error"
	case "RATE_LIMITED":
		return "Too Many Requests"
	case "DEPENDENCY_UNREADY":
		return "Service Unavailable"
	case "PAYMENT_UNAVAILABLE":
		return "Payment Service Unavailable"
	case "CUSTOMER_CONFLICT":
		return "Customer Already Registered"
	default:
		if text := http.StatusText(status); text != "" {
			return text
		}
		return "Error"
	}
}
