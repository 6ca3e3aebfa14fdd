package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is wrapped by a TransportError when a response body is
// present but is not well-formed JSON.
var ErrMalformedResponse = errors.New("malformed JSON response")

// ConfigurationError reports an invalid API URL, client ID, or endpoint
// table. It is returned before any request is attempted.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MissingArgumentError reports an endpoint placeholder that no argument
// filled. URL is the partially resolved URL, placeholders included.
type MissingArgumentError struct {
	Verb    string
	URL     string
	Missing []string
}

func (e *MissingArgumentError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("missing argument for %s %s", e.Verb, e.URL)
	}
	return fmt.Sprintf("missing argument %s for %s %s", strings.Join(e.Missing, ", "), e.Verb, e.URL)
}

// InvalidUsageError reports a call that can never succeed, such as a file
// payload on GET or an unsupported verb.
type InvalidUsageError struct {
	Verb   string
	Reason string
}

func (e *InvalidUsageError) Error() string {
	if e.Verb == "" {
		return "invalid usage: " + e.Reason
	}
	return fmt.Sprintf("invalid usage of %s: %s", e.Verb, e.Reason)
}

// UnknownResourceError reports a lookup of a name the registry does not hold.
type UnknownResourceError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownResourceError) Error() string {
	msg := fmt.Sprintf("unknown resource %q", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// HTTPError is returned alongside the Response when the backend answered with
// a status of 400 or above. Data holds the decoded body, if any.
type HTTPError struct {
	Method    string
	URL       string
	Status    int
	Data      any
	Body      []byte
	RequestID string
}

func (e *HTTPError) Error() string {
	summary := summarizeErrorBody(e.Body)
	if summary == "" {
		summary = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s failed (status %d): %s", e.Method, e.URL, e.Status, summary)
}

// TransportError reports a request that produced no usable response: the
// connection failed, the body could not be read, or it was not valid JSON.
// Status is 0 unless a response status line was received.
type TransportError struct {
	Method string
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: transport error (status %d): %v", e.Method, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: transport error: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if the error is a configuration error.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// IsMissingArgument checks if the error is a missing argument error.
func IsMissingArgument(err error) bool {
	var e *MissingArgumentError
	return errors.As(err, &e)
}

// IsInvalidUsage checks if the error is an invalid usage error.
func IsInvalidUsage(err error) bool {
	var e *InvalidUsageError
	return errors.As(err, &e)
}

// IsUnknownResource checks if the error is an unknown resource error.
func IsUnknownResource(err error) bool {
	var e *UnknownResourceError
	return errors.As(err, &e)
}

// IsTransportError checks if the error means no response was received.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsUsageError reports whether err is one of the programmer errors returned
// before any network activity.
func IsUsageError(err error) bool {
	return IsConfigurationError(err) || IsMissingArgument(err) || IsInvalidUsage(err) || IsUnknownResource(err)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Status
	}
	return 0
}

// IsAuthError checks if the backend rejected the credentials.
func IsAuthError(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized && !IsTransportError(err)
}

// IsForbiddenError checks if the backend refused access to the resource.
func IsForbiddenError(err error) bool {
	return StatusOf(err) == http.StatusForbidden && !IsTransportError(err)
}

// IsNotFoundError checks if the backend reported the resource missing.
func IsNotFoundError(err error) bool {
	return StatusOf(err) == http.StatusNotFound && !IsTransportError(err)
}

// IsServerError checks if the backend failed with a 5xx status.
func IsServerError(err error) bool {
	return StatusOf(err) >= 500 && !IsTransportError(err)
}

// summarizeErrorBody pulls a human-readable message out of an error body
// without decoding the whole document. Non-JSON bodies are not echoed.
func summarizeErrorBody(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error_description", "error", "message", "errors.0"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
	}
	if v := gjson.GetBytes(body, "error.message"); v.Exists() {
		return v.String()
	}
	return ""
}

func requestIDFromHeader(header http.Header) string {
	if header == nil {
		return ""
	}
	return header.Get("X-Request-Id")
}
