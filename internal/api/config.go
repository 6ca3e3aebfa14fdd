package api

import (
	"strings"

	"github.com/digitalliving/life-engine-cli/internal/validation"
)

// Config holds the backend the client talks to and the OAuth client it
// authenticates as.
type Config struct {
	APIURL   string
	ClientID string
}

// Validate checks both fields and returns a *ConfigurationError naming the
// first bad one.
func (c Config) Validate() error {
	if err := validation.ValidateAPIURL(c.APIURL); err != nil {
		return &ConfigurationError{Field: "api url", Err: err}
	}
	if err := validation.ValidateClientID(c.ClientID); err != nil {
		return &ConfigurationError{Field: "client id", Err: err}
	}
	return nil
}

// normalized trims surrounding whitespace and any trailing slash so endpoint
// paths can be joined with a single separator.
func (c Config) normalized() Config {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	c.ClientID = strings.TrimSpace(c.ClientID)
	return c
}
