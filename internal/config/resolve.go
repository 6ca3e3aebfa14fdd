package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"

	"github.com/digitalliving/life-engine-cli/internal/auth"
)

// DefaultScope is requested when neither a flag, the environment nor the
// profile names one.
const DefaultScope = "read write"

// EnvConfig holds the environment overrides.
type EnvConfig struct {
	APIURL   string `env:"LIFEENGINE_API_URL"`
	ClientID string `env:"LIFEENGINE_CLIENT_ID"`
	Token    string `env:"LIFEENGINE_TOKEN"`
	Profile  string `env:"LIFEENGINE_PROFILE"`
	Scope    string `env:"LIFEENGINE_SCOPE"`
}

// LoadEnv parses the LIFEENGINE_* variables.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.APIURL = strings.TrimSpace(cfg.APIURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.Profile = strings.TrimSpace(cfg.Profile)
	cfg.Scope = strings.TrimSpace(cfg.Scope)
	return cfg, nil
}

// Overrides are command-line values; non-empty fields win over everything.
type Overrides struct {
	Profile  string
	APIURL   string
	ClientID string
	Scope    string
}

// Source says where the connection details came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceProfile Source = "profile"
	SourceFlags   Source = "flags"
)

// Resolved is the effective client configuration.
type Resolved struct {
	Profile      string
	Source       Source
	APIURL       string
	ClientID     string
	Scope        string
	Token        string
	TokenExpired bool
	ExpiresAt    time.Time
}

// Resolve layers the stored profile, the environment and the overrides.
// When LIFEENGINE_API_URL is set the keychain is not consulted.
func Resolve(over Overrides, now time.Time) (Resolved, error) {
	envCfg, err := LoadEnv()
	if err != nil {
		return Resolved{}, err
	}

	var res Resolved
	res.Profile = firstNonEmpty(over.Profile, envCfg.Profile)

	if envCfg.APIURL != "" {
		res.Source = SourceEnv
		res.APIURL = envCfg.APIURL
	} else {
		if res.Profile == "" {
			current, err := CurrentProfile()
			if err != nil {
				return Resolved{}, err
			}
			res.Profile = current
		}
		profile, err := LoadProfile(res.Profile)
		switch {
		case err == nil:
			res.Source = SourceProfile
			res.APIURL = profile.APIURL
			res.ClientID = profile.ClientID
			res.Scope = profile.Scope
			res.ExpiresAt = profile.ExpiresAt
			if profile.TokenValid(now) {
				res.Token = profile.Token
			} else if profile.Token != "" {
				res.TokenExpired = true
			}
		case errors.Is(err, ErrNotConfigured):
			res.Source = SourceFlags
		default:
			return Resolved{}, err
		}
	}

	res.ClientID = firstNonEmpty(envCfg.ClientID, res.ClientID)
	res.Scope = firstNonEmpty(envCfg.Scope, res.Scope)
	if envCfg.Token != "" {
		res.Token = envCfg.Token
		res.TokenExpired = false
	}

	res.APIURL = firstNonEmpty(strings.TrimSpace(over.APIURL), res.APIURL)
	res.ClientID = firstNonEmpty(strings.TrimSpace(over.ClientID), res.ClientID)
	res.Scope = firstNonEmpty(strings.TrimSpace(over.Scope), res.Scope, DefaultScope)
	res.APIURL = strings.TrimSuffix(res.APIURL, "/")

	if res.APIURL == "" {
		return Resolved{}, ErrNotConfigured
	}
	return res, nil
}

// PersistToken keeps the named profile in step with the token held by
// state. Events that leave the token unchanged are ignored.
func PersistToken(name string, state *auth.State) *auth.Subscription {
	return state.AddListener(func(bool) {
		token := state.Token()
		stored, err := LoadProfile(name)
		if err != nil {
			slog.Warn("failed to load profile for token update", "profile", name, "error", err)
			return
		}
		if stored.Token == token {
			return
		}
		var tok *oauth2.Token
		if token != "" {
			tok = &oauth2.Token{AccessToken: token}
		}
		if err := SaveToken(name, tok); err != nil {
			slog.Warn("failed to persist token", "profile", name, "error", err)
		}
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
