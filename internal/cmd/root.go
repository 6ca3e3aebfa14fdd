package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/debug"
	"github.com/digitalliving/life-engine-cli/internal/iocontext"
	"github.com/digitalliving/life-engine-cli/internal/outfmt"
)

// rootFlags holds global CLI flags
type rootFlags struct {
	Output    string
	Debug     bool
	LogFormat string
	JQ        string
	Compact   bool
	Quiet     bool
	Timeout   time.Duration
	EnvFile   string
	Profile   string
	APIURL    string
	ClientID  string
}

// flags holds the global command flags. It is reset at the start of every
// Execute() call; tests rely on that for clean state.
var flags = rootFlags{
	Output:  defaultOutput(),
	Timeout: api.DefaultTimeout,
}

func defaultOutput() string {
	if value := strings.TrimSpace(os.Getenv("LE_OUTPUT")); value != "" {
		return value
	}
	return "text"
}

// loadEnvFile loads a .env file. Variables already set in the environment
// are not overwritten, so explicit exports win.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load --env-file %q: %w", path, err)
	}
	return nil
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	flags = rootFlags{
		Output:    defaultOutput(),
		LogFormat: "text",
		Timeout:   api.DefaultTimeout,
	}

	root := &cobra.Command{
		Use:                "le",
		Short:              "CLI for the Life Engine API",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true, // enhanceUnknownError provides did-you-mean
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if err := loadEnvFile(flags.EnvFile); err != nil {
				return err
			}

			if flags.JQ != "" && flags.Output == "text" {
				if flagOrAliasChanged(cmd, "output") {
					return fmt.Errorf("--jq requires --output json or yaml")
				}
				flags.Output = "json"
			}

			mode, err := outfmt.Parse(flags.Output)
			if err != nil {
				return err
			}
			ctx = outfmt.WithOptions(ctx, outfmt.Options{Mode: mode, Query: flags.JQ, Compact: flags.Compact})

			switch flags.LogFormat {
			case "text", "json":
			default:
				return fmt.Errorf("invalid --log-format %q: must be text or json", flags.LogFormat)
			}
			if flags.Timeout < 0 {
				return fmt.Errorf("--timeout must be >= 0")
			}

			ioStreams := iocontext.GetIO(ctx)
			ctx = iocontext.WithIO(ctx, ioStreams)
			cmd.SetOut(ioStreams.Out)
			cmd.SetErr(ioStreams.ErrOut)

			debug.SetupLogger(ioStreams.ErrOut, flags.Debug, flags.LogFormat)
			ctx = debug.WithDebug(ctx, flags.Debug)

			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetContext(ctx)
	root.SetArgs(args)
	streams := iocontext.GetIO(ctx)
	root.SetOut(streams.Out)
	root.SetErr(streams.ErrOut)
	root.SetIn(streams.In)
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.Output, "output", "o", flags.Output, "Output format: text|json|yaml (env LE_OUTPUT)")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "Log format: text|json")
	pf.StringVar(&flags.JQ, "jq", "", "jq expression to filter structured output")
	pf.BoolVar(&flags.Compact, "compact-json", false, "Compact JSON output (no indentation)")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress progress and status lines")
	pf.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "HTTP request timeout (e.g., 30s, 2m)")
	pf.StringVar(&flags.EnvFile, "env-file", "", "Load LIFEENGINE_* and LE_* values from a .env file")
	pf.StringVarP(&flags.Profile, "profile", "p", "", "Stored profile to use (env LIFEENGINE_PROFILE)")
	pf.StringVar(&flags.APIURL, "api-url", "", "Life Engine API URL (env LIFEENGINE_API_URL)")
	pf.StringVar(&flags.ClientID, "client-id", "", "OAuth client ID (env LIFEENGINE_CLIENT_ID)")

	flagAlias(pf, "output", "out")
	flagAlias(pf, "compact-json", "cj")
	flagAlias(pf, "debug", "dbg")
	flagAlias(pf, "timeout", "to")
	flagAlias(pf, "env-file", "env")
	flagAlias(pf, "jq", "query")

	root.AddCommand(newAuthCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newUploadCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newResourcesCmd())
	root.AddCommand(newVersionCmd())

	targetCmd, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			_, _ = fmt.Fprintln(streams.ErrOut, enhanceUnknownError(err, root, targetCmd))
		}
		return err
	}
	return nil
}

// enhanceUnknownError adds "did you mean?" suggestions to unknown command/flag errors.
// targetCmd is the command Cobra resolved before the error (may be root itself).
func enhanceUnknownError(err error, root *cobra.Command, targetCmd *cobra.Command) string {
	msg := err.Error()

	if strings.Contains(msg, "unknown command") {
		if unknown := extractQuoted(msg); unknown != "" {
			parent := root
			if targetCmd != nil {
				parent = targetCmd
			}
			var names []string
			for _, c := range parent.Commands() {
				if c.IsAvailableCommand() {
					names = append(names, c.Name())
					names = append(names, c.Aliases...)
				}
			}
			if s := api.Suggest(unknown, names, 1); len(s) > 0 {
				return fmt.Sprintf("%s\n\nDid you mean %q?", msg, s[0])
			}
		}
	}

	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown shorthand flag") {
		if unknown := extractFlag(msg); unknown != "" {
			var flagNames []string
			seen := map[string]bool{}
			add := func(fs *pflag.FlagSet) {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Hidden || seen[f.Name] {
						return
					}
					seen[f.Name] = true
					flagNames = append(flagNames, f.Name)
				})
			}
			helpCmd := "le --help"
			if targetCmd != nil {
				add(targetCmd.Flags())
				add(targetCmd.InheritedFlags())
				helpCmd = targetCmd.CommandPath() + " --help"
			} else {
				add(root.PersistentFlags())
			}
			if s := api.Suggest(strings.TrimLeft(unknown, "-"), flagNames, 1); len(s) > 0 {
				return fmt.Sprintf("%s\n\nDid you mean \"--%s\"?\nRun %q to see supported flags.", msg, s[0], helpCmd)
			}
			return fmt.Sprintf("%s\n\nRun %q to see supported flags.", msg, helpCmd)
		}
	}

	return msg
}

// extractQuoted extracts the first double-quoted substring from s.
func extractQuoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}

// extractFlag extracts a flag name (e.g., "--foo") from an error message.
func extractFlag(s string) string {
	idx := strings.Index(s, "--")
	if idx < 0 {
		// shorthand errors look like "unknown shorthand flag: 'a' in -a"
		idx = strings.LastIndex(s, " -")
		if idx < 0 {
			return ""
		}
		rest := strings.TrimSpace(s[idx+1:])
		if end := strings.IndexByte(rest, ' '); end >= 0 {
			rest = rest[:end]
		}
		rest = strings.TrimRight(rest, ".,;:!?\"'")
		if strings.HasPrefix(rest, "-") && len(rest) > 1 {
			return rest
		}
		return ""
	}
	rest := s[idx:]
	end := strings.IndexByte(rest, ' ')
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimRight(rest[:end], ".,;:!?\"'")
}
