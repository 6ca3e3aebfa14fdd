package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/auth"
	"github.com/digitalliving/life-engine-cli/internal/config"
)

// now is replaced in tests.
var now = time.Now

type clientFactory struct {
	timeout   time.Duration
	userAgent string
	scope     string
}

func newClientFactory() *clientFactory {
	return &clientFactory{
		timeout:   flags.Timeout,
		userAgent: fmt.Sprintf("life-engine-cli/%s", version),
	}
}

func (f *clientFactory) overrides() config.Overrides {
	return config.Overrides{
		Profile:  flags.Profile,
		APIURL:   flags.APIURL,
		ClientID: flags.ClientID,
		Scope:    f.scope,
	}
}

func (f *clientFactory) resolve() (config.Resolved, error) {
	return config.Resolve(f.overrides(), now())
}

// session is a client plus the configuration it was built from.
type session struct {
	resolved config.Resolved
	client   *api.Client
}

// profileName is where token changes are written back.
func (s *session) profileName() string {
	if s.resolved.Profile == "" {
		return "default"
	}
	return s.resolved.Profile
}

func (f *clientFactory) open() (*session, error) {
	res, err := f.resolve()
	if err != nil {
		return nil, err
	}
	return f.newSession(res)
}

// newSession builds the client. Sessions backed by a stored profile keep
// the keychain in step with the client's auth state.
func (f *clientFactory) newSession(res config.Resolved) (*session, error) {
	state := auth.NewState()
	state.SetToken(res.Token)

	client, err := api.New(
		api.Config{APIURL: res.APIURL, ClientID: res.ClientID},
		api.WithAuthState(state),
		api.WithUserAgent(f.userAgent),
	)
	if err != nil {
		return nil, err
	}
	if f.timeout > 0 {
		client.HTTP.Timeout = f.timeout
	}

	s := &session{resolved: res, client: client}
	if res.Source == config.SourceProfile {
		config.PersistToken(s.profileName(), state)
	}
	return s, nil
}

// saveConnection stores the connection details of s under its profile,
// keeping any token already stored there.
func saveConnection(s *session) error {
	name := s.profileName()
	p, err := config.LoadProfile(name)
	if err != nil && !errors.Is(err, config.ErrNotConfigured) {
		return err
	}
	cfg := s.client.Config()
	p.APIURL = cfg.APIURL
	p.ClientID = cfg.ClientID
	p.Scope = s.resolved.Scope
	return config.SaveProfile(name, p)
}
