package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSubscriptionExpired marks a push endpoint that answered 410 Gone.
var ErrSubscriptionExpired = errors.New("subscription expired")

// ConfigurationError reports missing or invalid settings. It is fatal for the
// run that hits it and is surfaced as a 500.
type ConfigurationError struct {
	Key string
	Msg string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Msg)
}

// NotFoundError reports a missing station or reading. Never retried.
type NotFoundError struct {
	Resource string // "station" or "reading"
	Key      string
}

func (e *NotFoundError) Error() string {
	switch e.Resource {
	case "reading":
		return fmt.Sprintf("no water level data found for %s", e.Key)
	default:
		return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
	}
}

// TransportError reports that a downstream service could not be reached or
// answered with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: downstream returned HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// DefaultErrorMessage is returned to clients for errors that are not known to be safe.
const DefaultErrorMessage = "An error occurred while processing your request"

// safeErrorPhrases may be echoed to clients; anything else is replaced.
var safeErrorPhrases = []string{
	"network error",
	"request timeout",
	"timeout",
	"invalid request",
	"authentication failed",
	"unauthorized",
	"not found",
	"bad request",
	"service unavailable",
	"too many requests",
}

// SanitizeError maps err to a client-safe message. Typed domain errors carry
// messages written for clients and pass through unchanged; other errors are
// reduced to the first whitelisted phrase they contain, or DefaultErrorMessage.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	var (
		nf  *NotFoundError
		cfg *ConfigurationError
		tr  *TransportError
	)
	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &cfg):
		return "service is not configured"
	case errors.As(err, &tr):
		if tr.StatusCode != 0 {
			return fmt.Sprintf("dispatch service unavailable (HTTP %d)", tr.StatusCode)
		}
		return "dispatch service unavailable"
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range safeErrorPhrases {
		if strings.Contains(msg, phrase) {
			return phrase
		}
	}
	return DefaultErrorMessage
}
