// Package validation checks the connection settings the API client is
// constructed with.
//
// The client only talks to a single configured backend, so the rules are
// narrow: the API URL must be an absolute http(s) URL with a host, the client
// ID must be non-blank, and OAuth redirect URIs must either be https or point
// at a loopback listener.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateAPIURL validates the backend base URL. It checks that the URL:
//   - is not empty
//   - uses the http or https scheme
//   - contains a hostname
//   - carries no query string or fragment (paths are appended to it)
func ValidateAPIURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: only http and https are allowed, got %q", parsedURL.Scheme)
	}

	if parsedURL.Hostname() == "" {
		return fmt.Errorf("URL must contain a hostname")
	}

	if parsedURL.RawQuery != "" || parsedURL.Fragment != "" {
		return fmt.Errorf("URL must not contain a query string or fragment")
	}

	return nil
}

// ValidateClientID validates an OAuth client identifier.
func ValidateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("client ID cannot be empty")
	}
	if strings.ContainsAny(clientID, " \t\r\n") {
		return fmt.Errorf("client ID must not contain whitespace")
	}
	return nil
}

// ValidateRedirectURI validates an OAuth redirect URI. Plain http is only
// accepted for loopback hosts, where the callback listener runs.
func ValidateRedirectURI(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("redirect URI cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	if parsedURL.Fragment != "" {
		return fmt.Errorf("redirect URI must not contain a fragment")
	}

	switch parsedURL.Scheme {
	case "https":
		if parsedURL.Hostname() == "" {
			return fmt.Errorf("redirect URI must contain a hostname")
		}
		return nil
	case "http":
		if !IsLoopback(parsedURL.Hostname()) {
			return fmt.Errorf("http redirect URIs are only allowed for loopback hosts, got %q", parsedURL.Hostname())
		}
		return nil
	default:
		return fmt.Errorf("invalid redirect URI scheme %q", parsedURL.Scheme)
	}
}

// IsLoopback reports whether hostname names the local machine.
func IsLoopback(hostname string) bool {
	lowercase := strings.ToLower(hostname)
	if lowercase == "localhost" || strings.HasSuffix(lowercase, ".localhost") {
		return true
	}
	if ip := net.ParseIP(lowercase); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
