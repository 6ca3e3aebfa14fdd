package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

const (
	defaultProfile    = "default"
	profilePrefix     = "profile:"
	profileIndexKey   = "profiles_index"
	currentProfileKey = "current_profile"
)

// ErrNotConfigured is returned when no profile is stored.
var ErrNotConfigured = errors.New("life engine not configured - run 'le auth login' first")

// Profile holds the Life Engine connection details and the last issued token.
type Profile struct {
	APIURL    string    `json:"api_url"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope,omitempty"`
	Token     string    `json:"token,omitempty"`
	TokenType string    `json:"token_type,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// TokenValid reports whether the stored token is present and not expired.
// A zero ExpiresAt means the provider did not say.
func (p Profile) TokenValid(now time.Time) bool {
	if strings.TrimSpace(p.Token) == "" {
		return false
	}
	return p.ExpiresAt.IsZero() || now.Before(p.ExpiresAt)
}

func profileName(name string) string {
	if name == "" {
		return defaultProfile
	}
	return name
}

func profileKey(name string) string {
	return profilePrefix + profileName(name)
}

// normalizeProfiles trims names and drops blanks and repeats, keeping order.
func normalizeProfiles(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// profileStore is one opened keyring.
type profileStore struct {
	ring keyring.Keyring
}

func openStore() (*profileStore, error) {
	ring, err := openKeyring(keyringConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &profileStore{ring: ring}, nil
}

func (s *profileStore) get(name string) (Profile, error) {
	item, err := s.ring.Get(profileKey(name))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return Profile{}, ErrNotConfigured
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(item.Data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to unmarshal profile %s: %w", profileName(name), err)
	}
	return p, nil
}

func (s *profileStore) put(name string, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	err = s.ring.Set(keyring.Item{
		Key:   profileKey(name),
		Label: serviceName + " " + profileName(name),
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *profileStore) names() ([]string, error) {
	item, err := s.ring.Get(profileIndexKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile index: %w", err)
	}
	var names []string
	if err := json.Unmarshal(item.Data, &names); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile index: %w", err)
	}
	return names, nil
}

func (s *profileStore) setNames(names []string) error {
	data, err := json.Marshal(normalizeProfiles(names))
	if err != nil {
		return fmt.Errorf("failed to marshal profile index: %w", err)
	}
	return s.ring.Set(keyring.Item{Key: profileIndexKey, Data: data})
}

func (s *profileStore) current() (string, error) {
	item, err := s.ring.Get(currentProfileKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return defaultProfile, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current profile: %w", err)
	}
	return string(item.Data), nil
}

func (s *profileStore) setCurrent(name string) error {
	return s.ring.Set(keyring.Item{Key: currentProfileKey, Data: []byte(profileName(name))})
}

// SaveProfile stores a profile, adds it to the index and makes it current.
func SaveProfile(name string, profile Profile) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	name = profileName(name)
	profile.APIURL = strings.TrimSuffix(strings.TrimSpace(profile.APIURL), "/")
	if err := s.put(name, profile); err != nil {
		return err
	}
	names, err := s.names()
	if err != nil {
		return err
	}
	if err := s.setNames(append(names, name)); err != nil {
		return err
	}
	return s.setCurrent(name)
}

// LoadProfile returns the named profile, or ErrNotConfigured.
func LoadProfile(name string) (Profile, error) {
	s, err := openStore()
	if err != nil {
		return Profile{}, err
	}
	return s.get(name)
}

// SaveToken updates the token fields of a stored profile without touching
// the current-profile pointer. A nil or empty token clears them.
func SaveToken(name string, tok *oauth2.Token) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	p, err := s.get(name)
	if err != nil {
		return err
	}
	p.Token, p.TokenType, p.ExpiresAt = "", "", time.Time{}
	if tok != nil && strings.TrimSpace(tok.AccessToken) != "" {
		p.Token, p.TokenType, p.ExpiresAt = tok.AccessToken, tok.TokenType, tok.Expiry
	}
	return s.put(name, p)
}

// DeleteProfile removes a stored profile. When it was current, the first
// remaining profile becomes current.
func DeleteProfile(name string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	name = profileName(name)
	if err := s.ring.Remove(profileKey(name)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove profile: %w", err)
	}

	names, err := s.names()
	if err != nil {
		return err
	}
	remaining := slices.DeleteFunc(names, func(n string) bool { return n == name })
	if err := s.setNames(remaining); err != nil {
		return err
	}

	if current, err := s.current(); err == nil && current == name {
		next := defaultProfile
		if len(remaining) > 0 {
			next = remaining[0]
		}
		_ = s.setCurrent(next)
	}
	return nil
}

// ListProfiles returns the stored profile names in the order they were added.
func ListProfiles() ([]string, error) {
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	return s.names()
}

// CurrentProfile returns the active profile name.
func CurrentProfile() (string, error) {
	s, err := openStore()
	if err != nil {
		return "", err
	}
	return s.current()
}

// SetCurrentProfile sets the active profile name.
func SetCurrentProfile(name string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	return s.setCurrent(name)
}
