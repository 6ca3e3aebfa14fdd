package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/digitalliving/life-engine-cli/internal/debug"
	"github.com/digitalliving/life-engine-cli/internal/validation"
)

// DefaultFlowTTL bounds how long a pending authorization stays redeemable.
const DefaultFlowTTL = 10 * time.Minute

// Phase is the state of an ImplicitFlow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingRedirect
	PhaseResolved
	PhaseIgnored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingRedirect:
		return "awaiting-redirect"
	case PhaseResolved:
		return "resolved"
	case PhaseIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	ErrNoState     = errors.New("redirect carries no state parameter")
	ErrUnknownFlow = errors.New("no pending authorization for state")
	ErrFlowExpired = errors.New("pending authorization expired")
	ErrNoNavigator = errors.New("no navigator configured")
)

// ProviderError is an error=... redirect from the authorization server.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}

// ParseError reports a return URL that could not be parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed redirect URL: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

//go:generate mockgen -source=oauth.go -destination=mock_navigator_test.go -package=auth

// Navigator sends the user agent to an authorization URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// FlowConfig describes the authorization server and the client requesting
// access.
type FlowConfig struct {
	AuthorizeURL string
	ClientID     string
	Scope        string
	TTL          time.Duration
}

// FlowRecord is a pending authorization, keyed by its state nonce.
type FlowRecord struct {
	State       string    `json:"state"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scope       string    `json:"scope,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the record is older than ttl at now.
func (r FlowRecord) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(r.CreatedAt) > ttl
}

// ReturnResult is the outcome of CheckReturn. Reason explains an Ignored
// return or a parse failure and is never meant to be surfaced as an error.
// Flow is set whenever the return's state consumed a pending record, even if
// the return was then ignored.
type ReturnResult struct {
	Phase  Phase
	Token  *oauth2.Token
	Flow   *FlowRecord
	Reason error
}

// Completed reports whether the URL was an authorization return, whether or
// not it was accepted.
func (r ReturnResult) Completed() bool {
	return r.Phase == PhaseResolved || r.Phase == PhaseIgnored
}

// Matched reports whether the return answered an authorization this flow
// started.
func (r ReturnResult) Matched() bool {
	return r.Flow != nil
}

// ImplicitFlow drives the OAuth2 implicit grant: Authenticate sends the user
// agent to the authorization server and CheckReturn inspects the URL it was
// redirected back to.
//
// Each Authenticate call stores its own record keyed by a fresh state nonce,
// so concurrent flows do not overwrite each other. A return is accepted only
// when its state matches a pending, unexpired record, which is consumed.
// Phase reflects the most recent transition of any flow.
type ImplicitFlow struct {
	cfg   FlowConfig
	state *State
	store FlowStore
	nav   Navigator

	mu    sync.Mutex
	phase Phase

	now      func() time.Time
	newNonce func() (string, error)
}

// NewImplicitFlow returns a driver that stores tokens in state. A nil store
// keeps pending flows in memory; a nil nav only prevents Authenticate.
func NewImplicitFlow(cfg FlowConfig, state *State, store FlowStore, nav Navigator) (*ImplicitFlow, error) {
	if err := validation.ValidateAPIURL(cfg.AuthorizeURL); err != nil {
		return nil, fmt.Errorf("invalid authorize URL: %w", err)
	}
	if err := validation.ValidateClientID(cfg.ClientID); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.New("auth state is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultFlowTTL
	}
	if store == nil {
		store = NewMemoryFlowStore()
	}
	return &ImplicitFlow{
		cfg:      cfg,
		state:    state,
		store:    store,
		nav:      nav,
		now:      time.Now,
		newNonce: generateNonce,
	}, nil
}

// Phase returns the current phase.
func (f *ImplicitFlow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *ImplicitFlow) setPhase(p Phase) {
	f.mu.Lock()
	f.phase = p
	f.mu.Unlock()
}

// AuthorizationURL builds the implicit-grant authorization request for
// redirectURI and nonce.
func (f *ImplicitFlow) AuthorizationURL(redirectURI, nonce string) string {
	cfg := oauth2.Config{
		ClientID:    f.cfg.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: f.cfg.AuthorizeURL},
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(f.cfg.Scope),
	}
	return cfg.AuthCodeURL(nonce, oauth2.SetAuthURLParam("response_type", "token"))
}

// Authenticate starts a flow that returns to redirectURI: it records the
// pending authorization, moves to AwaitingRedirect and hands the
// authorization URL to the navigator. If navigation fails the record is
// discarded and the phase returns to Idle.
func (f *ImplicitFlow) Authenticate(ctx context.Context, redirectURI string) (FlowRecord, error) {
	if f.nav == nil {
		return FlowRecord{}, ErrNoNavigator
	}
	if err := validation.ValidateRedirectURI(redirectURI); err != nil {
		return FlowRecord{}, fmt.Errorf("invalid redirect URI: %w", err)
	}
	nonce, err := f.newNonce()
	if err != nil {
		return FlowRecord{}, err
	}

	rec := FlowRecord{
		State:       nonce,
		ClientID:    f.cfg.ClientID,
		RedirectURI: redirectURI,
		Scope:       f.cfg.Scope,
		CreatedAt:   f.now(),
	}
	if err := f.store.Save(rec); err != nil {
		return FlowRecord{}, fmt.Errorf("failed to save pending authorization: %w", err)
	}
	f.setPhase(PhaseAwaitingRedirect)

	authURL := f.AuthorizationURL(redirectURI, nonce)
	if debug.IsEnabled(ctx) {
		slog.Debug("starting implicit grant", "redirect_uri", redirectURI, "scope", f.cfg.Scope)
	}
	if err := f.nav.Navigate(ctx, authURL); err != nil {
		_, _ = f.store.Take(nonce)
		f.setPhase(PhaseIdle)
		return FlowRecord{}, fmt.Errorf("failed to open authorization page: %w", err)
	}
	return rec, nil
}

// CheckReturn inspects a URL the user agent landed on. It never fails: a URL
// without an access_token is not an authorization return and changes
// nothing, while error returns, unknown or expired state and malformed URLs
// are logged and reported through ReturnResult.Reason. An accepted return
// stores the token in the auth state and moves to Resolved.
func (f *ImplicitFlow) CheckReturn(ctx context.Context, rawURL string) ReturnResult {
	params, err := parseRedirect(rawURL)
	if err != nil {
		slog.Warn("ignoring malformed redirect URL", "error", err)
		return ReturnResult{Phase: f.Phase(), Reason: &ParseError{URL: rawURL, Err: err}}
	}

	if code := strings.TrimSpace(params.Get("error")); code != "" {
		perr := &ProviderError{Code: code, Description: params.Get("error_description")}
		slog.Warn("authorization server returned an error", "error", code, "description", perr.Description)
		res := f.ignore(perr)
		if nonce := params.Get("state"); nonce != "" {
			if rec, err := f.store.Take(nonce); err == nil {
				res.Flow = &rec
			}
		}
		return res
	}

	accessToken := strings.TrimSpace(params.Get("access_token"))
	if accessToken == "" {
		return ReturnResult{Phase: f.Phase()}
	}

	nonce := params.Get("state")
	if nonce == "" {
		slog.Warn("ignoring token redirect without state")
		return f.ignore(ErrNoState)
	}
	rec, err := f.store.Take(nonce)
	if err != nil {
		slog.Warn("ignoring token redirect", "error", err)
		return f.ignore(err)
	}
	if rec.Expired(f.now(), f.cfg.TTL) {
		slog.Warn("ignoring token redirect for expired authorization", "created_at", rec.CreatedAt)
		res := f.ignore(ErrFlowExpired)
		res.Flow = &rec
		return res
	}

	tok := tokenFromParams(accessToken, params, f.now())
	f.state.SetToken(tok.AccessToken)
	f.setPhase(PhaseResolved)
	if debug.IsEnabled(ctx) {
		slog.Debug("implicit grant resolved", "token_type", tok.TokenType, "expiry", tok.Expiry)
	}
	return ReturnResult{Phase: PhaseResolved, Token: tok, Flow: &rec}
}

func (f *ImplicitFlow) ignore(reason error) ReturnResult {
	f.setPhase(PhaseIgnored)
	return ReturnResult{Phase: PhaseIgnored, Reason: reason}
}

// parseRedirect merges the query and fragment parameters of rawURL.
// Fragment values win, since that is where implicit grants put the token.
// The two components are parsed independently: a malformed component is
// dropped when the other one carries the grant, and is an error otherwise.
func parseRedirect(rawURL string) (url.Values, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	query, qerr := url.ParseQuery(u.RawQuery)
	frag, ferr := url.ParseQuery(u.EscapedFragment())

	switch {
	case ferr != nil && (qerr != nil || carriesGrant(frag) || !carriesGrant(query)):
		return nil, fmt.Errorf("fragment: %w", ferr)
	case ferr != nil:
		return query, nil
	case qerr != nil && !carriesGrant(frag):
		return nil, fmt.Errorf("query: %w", qerr)
	case qerr != nil:
		return frag, nil
	}
	for k, v := range frag {
		query[k] = v
	}
	return query, nil
}

func carriesGrant(params url.Values) bool {
	return params.Has("access_token") || params.Has("error")
}

func tokenFromParams(accessToken string, params url.Values, now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   params.Get("token_type"),
	}
	if secs, err := strconv.ParseInt(params.Get("expires_in"), 10, 64); err == nil && secs > 0 {
		tok.Expiry = now.Add(time.Duration(secs) * time.Second)
	}
	extra := map[string]any{}
	if scope := params.Get("scope"); scope != "" {
		extra["scope"] = scope
	}
	if len(extra) > 0 {
		tok = tok.WithExtra(extra)
	}
	return tok
}

func generateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
