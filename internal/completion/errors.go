package completion

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies backend failures.
type Kind string

const (
	KindUnavailable Kind = "backend_unavailable"
	KindStatus      Kind = "backend_error"
	KindProtocol    Kind = "backend_protocol_error"
	KindNoResponse  Kind = "no_response"
	KindUnknown     Kind = "unknown"
)

// Error is returned by clients for every backend failure.
type Error struct {
	Provider   string
	Kind       Kind
	Status     int
	StatusText string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the failure class of err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Describe renders err as a reply the user can read in place of an answer.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if !errors.As(err, &ce) {
		return "Error: " + err.Error()
	}
	switch ce.Kind {
	case KindUnavailable:
		return "Error connecting to the completion backend. Please check your internet connection and firewall settings. If the issue persists, verify that the API URL is correct."
	case KindStatus:
		body := strings.TrimSpace(ce.Body)
		if body == "" {
			body = "{}"
		}
		return fmt.Sprintf("Error from the completion backend: Status %d - %s. %s", ce.Status, ce.StatusText, body)
	case KindNoResponse:
		return "No response received from the completion backend. Please check your API URL and internet connection."
	default:
		if ce.Err != nil {
			return "Error: " + ce.Err.Error()
		}
		return "Error: Unknown error occurred"
	}
}
