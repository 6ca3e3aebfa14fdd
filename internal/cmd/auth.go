package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/auth"
	"github.com/digitalliving/life-engine-cli/internal/config"
	"github.com/digitalliving/life-engine-cli/internal/iocontext"
)

// newNavigator picks how login sends the user to the authorization page.
// Tests replace it.
var newNavigator = func(cmd *cobra.Command) auth.Navigator {
	return &auth.BrowserNavigator{Out: iocontext.GetIO(cmd.Context()).ErrOut}
}

// newAuthCmd returns the auth command with subcommands
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"au"},
		Short:   "Manage authentication",
		Long:    "Sign in with the OAuth implicit grant and manage the tokens stored in your OS keychain.",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthReturnCmd())
	cmd.AddCommand(newAuthTokenCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthRefreshCmd())
	cmd.AddCommand(newAuthProfilesCmd())
	cmd.AddCommand(newAuthSwitchCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		noBrowser   bool
		redirectURI string
		scope       string
		wait        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Long: strings.TrimSpace(`
Sign in with the OAuth implicit grant.

By default a loopback listener is started as the redirect URI and the
authorization page is opened in your browser. The token is stored in the
keychain under the selected profile together with --api-url and --client-id.

With --no-browser the authorization URL is only printed. After signing in,
pass the URL the browser landed on to 'le auth return'.
`),
		Example: strings.TrimSpace(`
  le auth login --api-url https://api.lifeengine.example --client-id cli
  le auth login --profile work --scope "read"
  le auth login --no-browser --redirect-uri https://app.lifeengine.example/oauth
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if wait <= 0 {
				return fmt.Errorf("--wait must be positive")
			}
			if noBrowser && strings.TrimSpace(redirectURI) == "" {
				return fmt.Errorf("--no-browser requires --redirect-uri")
			}

			f := newClientFactory()
			f.scope = scope
			s, err := f.open()
			if err != nil {
				return err
			}
			if err := saveConnection(s); err != nil {
				return fmt.Errorf("failed to save profile: %w", err)
			}

			if noBrowser {
				return startManualLogin(cmd, s, redirectURI)
			}

			flow, err := s.client.ImplicitFlow(s.resolved.Scope, auth.NewMemoryFlowStore(), newNavigator(cmd))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			statusf(cmd, "Waiting for sign-in (Ctrl+C to cancel)...\n")
			result, err := auth.NewCallbackServer(flow).Login(ctx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("sign-in timed out after %s", wait)
				}
				return err
			}
			return finishLogin(cmd, s, result)
		}),
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL and finish with 'le auth return'")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "Redirect URI registered for the client (with --no-browser)")
	cmd.Flags().StringVar(&scope, "scope", "", "Space-separated scopes to request (default \""+config.DefaultScope+"\")")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Minute, "How long to wait for the browser to return")
	flagAlias(cmd.Flags(), "no-browser", "nbr")
	flagAlias(cmd.Flags(), "redirect-uri", "ru")

	return cmd
}

// startManualLogin records a pending flow in the on-disk store so a later
// 'le auth return' can complete it.
func startManualLogin(cmd *cobra.Command, s *session, redirectURI string) error {
	store, err := auth.OpenBoltFlowStore(config.FlowStorePath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if _, err := store.Prune(now(), auth.DefaultFlowTTL); err != nil {
		return err
	}

	errOut := iocontext.GetIO(cmd.Context()).ErrOut
	flow, err := s.client.ImplicitFlow(s.resolved.Scope, store, &auth.PrintNavigator{Out: errOut})
	if err != nil {
		return err
	}
	rec, err := flow.Authenticate(cmd.Context(), redirectURI)
	if err != nil {
		return err
	}

	if isStructuredCmd(cmd) {
		return printOutput(cmd, map[string]any{
			"state":        rec.State,
			"redirect_uri": rec.RedirectURI,
			"profile":      s.profileName(),
			"expires_at":   rec.CreatedAt.Add(auth.DefaultFlowTTL),
		})
	}
	_, _ = fmt.Fprintln(errOut)
	_, _ = fmt.Fprintf(errOut, "After signing in, run within %s:\n", auth.DefaultFlowTTL)
	_, _ = fmt.Fprintln(errOut, "  le auth return '<url the browser landed on>'")
	return nil
}

func newAuthReturnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <redirect-url>",
		Short: "Finish a --no-browser sign-in",
		Long: strings.TrimSpace(`
Complete a sign-in started with 'le auth login --no-browser'.

Pass the full URL the browser was redirected to. The token in its fragment
is accepted only if its state matches a pending sign-in that has not expired.
`),
		Example: strings.TrimSpace(`
  le auth return 'https://app.lifeengine.example/oauth#access_token=...&state=...'
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			s, err := newClientFactory().open()
			if err != nil {
				return err
			}

			store, err := auth.OpenBoltFlowStore(config.FlowStorePath())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			flow, err := s.client.ImplicitFlow(s.resolved.Scope, store, nil)
			if err != nil {
				return err
			}
			result := flow.CheckReturn(cmd.Context(), args[0])
			if !result.Completed() {
				if result.Reason != nil {
					return &api.InvalidUsageError{Reason: result.Reason.Error()}
				}
				return &api.InvalidUsageError{Reason: "URL carries no access token"}
			}
			return finishLogin(cmd, s, result)
		}),
	}
}

// finishLogin stores an accepted token or reports why the return was
// ignored.
func finishLogin(cmd *cobra.Command, s *session, result auth.ReturnResult) error {
	if result.Phase != auth.PhaseResolved {
		if result.Reason != nil {
			return fmt.Errorf("sign-in was not accepted: %w", result.Reason)
		}
		return fmt.Errorf("sign-in was not accepted")
	}

	name := s.profileName()
	if err := config.SaveToken(name, result.Token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	if isStructuredCmd(cmd) {
		payload := map[string]any{
			"authenticated": true,
			"profile":       name,
			"api_url":       s.resolved.APIURL,
		}
		if !result.Token.Expiry.IsZero() {
			payload["expires_at"] = result.Token.Expiry
		}
		return printOutput(cmd, payload)
	}
	out := iocontext.GetIO(cmd.Context()).Out
	_, _ = fmt.Fprintln(out, "Signed in successfully!")
	_, _ = fmt.Fprintf(out, "  API URL: %s\n", s.resolved.APIURL)
	_, _ = fmt.Fprintf(out, "  Profile: %s\n", name)
	if !result.Token.Expiry.IsZero() {
		_, _ = fmt.Fprintf(out, "  Expires: %s\n", result.Token.Expiry.Format(time.RFC3339))
	}
	return nil
}

func newAuthTokenCmd() *cobra.Command {
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "token <token>",
		Short: "Store an access token obtained elsewhere",
		Example: strings.TrimSpace(`
  le auth token "$TOKEN" --api-url https://api.lifeengine.example --client-id cli
  le auth token "$TOKEN" --expires-in 1h
`),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return &api.InvalidUsageError{Reason: "token must not be empty"}
			}
			if expiresIn < 0 {
				return fmt.Errorf("--expires-in must not be negative")
			}

			s, err := newClientFactory().open()
			if err != nil {
				return err
			}
			if err := saveConnection(s); err != nil {
				return fmt.Errorf("failed to save profile: %w", err)
			}

			tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
			if expiresIn > 0 {
				tok.Expiry = now().Add(expiresIn)
			}
			name := s.profileName()
			if err := config.SaveToken(name, tok); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			s.client.Auth().SetToken(token)

			statusf(cmd, "Token saved to profile %s\n", name)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Token lifetime (default: no expiry)")
	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active configuration",
		Long:  "Display where the API URL, client ID and token come from. The token is masked.",
		Example: strings.TrimSpace(`
  le auth status
  le auth status --verify -o json
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			f := newClientFactory()
			res, err := f.resolve()
			if err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					if isStructuredCmd(cmd) {
						return printOutput(cmd, map[string]any{
							"authenticated": false,
							"message":       "Not configured. Run 'le auth login' first.",
						})
					}
					out := iocontext.GetIO(cmd.Context()).Out
					_, _ = fmt.Fprintln(out, "Not configured.")
					_, _ = fmt.Fprintln(out, "Run 'le auth login --api-url URL --client-id ID' to sign in.")
					return nil
				}
				return err
			}

			payload := map[string]any{
				"authenticated": res.Token != "",
				"source":        string(res.Source),
				"api_url":       res.APIURL,
				"client_id":     res.ClientID,
				"scope":         res.Scope,
			}
			if res.Profile != "" {
				payload["profile"] = res.Profile
			}
			if res.Token != "" {
				payload["token"] = maskToken(res.Token)
			}
			if !res.ExpiresAt.IsZero() {
				payload["expires_at"] = res.ExpiresAt
			}
			if res.TokenExpired {
				payload["expired"] = true
			}

			if verify {
				s, err := f.newSession(res)
				if err != nil {
					return err
				}
				me, err := s.client.Resource("me")
				if err != nil {
					return err
				}
				resp, err := me.Get(cmd.Context(), api.NewArgs())
				if err != nil {
					return err
				}
				payload["verified"] = true
				payload["me"] = resp.Data
			}

			if isStructuredCmd(cmd) {
				return printOutput(cmd, payload)
			}

			out := iocontext.GetIO(cmd.Context()).Out
			switch {
			case res.Token != "":
				_, _ = fmt.Fprintln(out, "Authenticated")
			case res.TokenExpired:
				_, _ = fmt.Fprintln(out, "Token expired")
			default:
				_, _ = fmt.Fprintln(out, "Not authenticated")
			}
			_, _ = fmt.Fprintf(out, "  API URL: %s\n", res.APIURL)
			_, _ = fmt.Fprintf(out, "  Client ID: %s\n", res.ClientID)
			_, _ = fmt.Fprintf(out, "  Scope: %s\n", res.Scope)
			if res.Token != "" {
				_, _ = fmt.Fprintf(out, "  Token: %s\n", maskToken(res.Token))
			}
			if !res.ExpiresAt.IsZero() {
				_, _ = fmt.Fprintf(out, "  Expires: %s\n", res.ExpiresAt.Format(time.RFC3339))
			}
			if res.Profile != "" {
				_, _ = fmt.Fprintf(out, "  Profile: %s\n", res.Profile)
			}
			_, _ = fmt.Fprintf(out, "  Source: %s\n", res.Source)
			if verify {
				_, _ = fmt.Fprintln(out, "  Verified: yes")
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Call the me endpoint to check the token")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var forget bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored token",
		Long:  "Clear the token of the selected profile. With --forget the whole profile is removed from the keychain.",
		Example: strings.TrimSpace(`
  le auth logout
  le auth logout --profile work --forget
`),
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			name := flags.Profile
			if name == "" {
				current, err := config.CurrentProfile()
				if err != nil {
					return err
				}
				name = current
			}

			if forget {
				if err := config.DeleteProfile(name); err != nil {
					return err
				}
				statusf(cmd, "Removed profile %s\n", name)
				return nil
			}

			state := auth.NewState()
			stored, err := config.LoadProfile(name)
			switch {
			case errors.Is(err, config.ErrNotConfigured):
				statusf(cmd, "Nothing stored for profile %s\n", name)
				return nil
			case err != nil:
				return err
			}
			state.SetToken(stored.Token)
			config.PersistToken(name, state)
			state.Clear()

			statusf(cmd, "Signed out of profile %s\n", name)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&forget, "forget", false, "Also remove the API URL and client ID")
	return cmd
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-announce the current auth state",
		Long:  "Notify auth state listeners without changing the token, then print what they observed.",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			s, err := newClientFactory().open()
			if err != nil {
				return err
			}

			var observed []bool
			state := s.client.Auth()
			sub := state.AddListener(func(authenticated bool) {
				observed = append(observed, authenticated)
			})
			defer state.RemoveListener(sub)
			state.Refresh()

			if len(observed) == 0 {
				return fmt.Errorf("refresh emitted no event")
			}
			authenticated := observed[len(observed)-1]
			if isStructuredCmd(cmd) {
				return printOutput(cmd, map[string]any{
					"profile":       s.profileName(),
					"authenticated": authenticated,
				})
			}
			_, _ = fmt.Fprintf(iocontext.GetIO(cmd.Context()).Out, "authenticated: %t\n", authenticated)
			return nil
		}),
	}
}

func newAuthProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"ls"},
		Short:   "List stored profiles",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			names, err := config.ListProfiles()
			if err != nil {
				return err
			}
			current, err := config.CurrentProfile()
			if err != nil {
				return err
			}

			rows := make([]map[string]any, 0, len(names))
			for _, name := range names {
				row := map[string]any{"name": name, "current": name == current}
				if p, err := config.LoadProfile(name); err == nil {
					row["api_url"] = p.APIURL
					row["authenticated"] = p.TokenValid(now())
				}
				rows = append(rows, row)
			}
			if len(rows) == 0 && !isStructuredCmd(cmd) {
				_, _ = fmt.Fprintln(iocontext.GetIO(cmd.Context()).ErrOut, "No profiles stored.")
				return nil
			}
			return printOutput(cmd, rows)
		}),
	}
}

func newAuthSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <profile>",
		Short: "Make a stored profile current",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if _, err := config.LoadProfile(name); err != nil {
				if errors.Is(err, config.ErrNotConfigured) {
					return fmt.Errorf("profile %q not found", name)
				}
				return err
			}
			if err := config.SetCurrentProfile(name); err != nil {
				return err
			}
			statusf(cmd, "Switched to profile %s\n", name)
			return nil
		}),
	}
}

// maskToken keeps the first and last four characters of long tokens.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
