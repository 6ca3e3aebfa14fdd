package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/config"
)

// errorPayload is the structured error written to stderr in json/yaml mode.
type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status,omitempty"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func structuredError(err error) errorPayload {
	p := errorPayload{Code: errorCode(err), Message: err.Error()}
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		p.Status = httpErr.Status
		p.Data = httpErr.Data
		p.RequestID = httpErr.RequestID
	}
	var transportErr *api.TransportError
	if errors.As(err, &transportErr) {
		p.Status = transportErr.Status
	}
	return p
}

func errorCode(err error) string {
	switch {
	case api.IsConfigurationError(err):
		return "configuration"
	case api.IsMissingArgument(err):
		return "missing_argument"
	case api.IsInvalidUsage(err):
		return "invalid_usage"
	case api.IsUnknownResource(err):
		return "unknown_resource"
	case errors.Is(err, config.ErrNotConfigured):
		return "not_configured"
	case api.IsTransportError(err):
		return "transport"
	case api.IsAuthError(err):
		return "unauthorized"
	case api.IsForbiddenError(err):
		return "forbidden"
	case api.IsNotFoundError(err):
		return "not_found"
	case api.StatusOf(err) == 429:
		return "rate_limited"
	case api.IsServerError(err):
		return "server_error"
	case api.StatusOf(err) >= 400:
		return "bad_request"
	default:
		return "error"
	}
}

// HandleError processes an error and returns a user-friendly message with suggestions
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder
	var (
		missing   *api.MissingArgumentError
		unknown   *api.UnknownResourceError
		cfgErr    *api.ConfigurationError
		httpErr   *api.HTTPError
		transport *api.TransportError
	)

	switch {
	case errors.As(err, &missing):
		fmt.Fprintf(&msg, "Error: %s\n\n", missing.Error())
		msg.WriteString("Suggestions:\n")
		for _, key := range missing.Missing {
			fmt.Fprintf(&msg, "  - Pass %s=<value>\n", key)
		}
		msg.WriteString("  - Run: le resources to see each path's placeholders\n")

	case errors.As(err, &unknown):
		fmt.Fprintf(&msg, "Error: %s\n\n", unknown.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: le resources\n")

	case errors.As(err, &cfgErr):
		fmt.Fprintf(&msg, "Error: %s\n\n", cfgErr.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check --api-url and --client-id (or LIFEENGINE_API_URL / LIFEENGINE_CLIENT_ID)\n")
		msg.WriteString("  - Run: le auth status\n")

	case errors.Is(err, config.ErrNotConfigured):
		fmt.Fprintf(&msg, "Error: %s\n\n", err.Error())
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: le auth login --api-url URL --client-id ID\n")
		msg.WriteString("  - Or set LIFEENGINE_API_URL and LIFEENGINE_CLIENT_ID\n")

	case errors.As(err, &httpErr):
		fmt.Fprintf(&msg, "API error: %s\n\n", httpErr.Error())
		msg.WriteString(suggestionsForStatusCode(httpErr.Status))
		if httpErr.RequestID != "" {
			fmt.Fprintf(&msg, "\nRequest ID: %s\n", httpErr.RequestID)
		}

	case errors.As(err, &transport):
		fmt.Fprintf(&msg, "Request failed: %s\n\n", transport.Error())
		msg.WriteString("Suggestions:\n")
		if errors.Is(err, api.ErrMalformedResponse) {
			msg.WriteString("  - The server did not answer with JSON\n")
			msg.WriteString("  - Verify the API URL: le auth status\n")
		} else {
			msg.WriteString("  - Check your network connection\n")
			msg.WriteString("  - Verify the API URL: le auth status\n")
			msg.WriteString("  - Use --timeout to allow slower responses\n")
		}

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err.Error())
	}

	return msg.String()
}

func suggestionsForStatusCode(code int) string {
	var s strings.Builder
	s.WriteString("Suggestions:\n")

	switch code {
	case 400, 422:
		s.WriteString("  - Check your key=value arguments\n")
		s.WriteString("  - Use --debug to see the full request\n")
	case 401:
		s.WriteString("  - Your access token may be missing or expired\n")
		s.WriteString("  - Run: le auth login\n")
	case 403:
		s.WriteString("  - The token lacks permission for this action\n")
		s.WriteString("  - Log in again with a wider --scope\n")
	case 404:
		s.WriteString("  - The resource doesn't exist\n")
		s.WriteString("  - Check the DLId is correct\n")
	case 429:
		s.WriteString("  - Too many requests\n")
		s.WriteString("  - Wait and retry in a few seconds\n")
	case 500, 502, 503, 504:
		s.WriteString("  - Server error - not your fault\n")
		s.WriteString("  - Wait and retry\n")
	default:
		s.WriteString("  - Use --debug for more details\n")
	}
	return s.String()
}
