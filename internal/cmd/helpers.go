package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/iocontext"
	"github.com/digitalliving/life-engine-cli/internal/outfmt"
)

// envelope is how every response is printed.
type envelope struct {
	Status    int            `json:"status"`
	Data      any            `json:"data"`
	RateLimit map[string]any `json:"rate_limit,omitempty"`
}

func newEnvelope(resp *api.Response) envelope {
	if resp == nil {
		return envelope{}
	}
	return envelope{Status: resp.Status, Data: resp.Data, RateLimit: resp.RateLimit.Meta()}
}

// printResponse writes a response in the selected output mode. Text mode
// prints only the data; structured modes print the whole envelope.
func printResponse(cmd *cobra.Command, resp *api.Response) error {
	if isStructuredCmd(cmd) {
		return printOutput(cmd, newEnvelope(resp))
	}
	if resp == nil {
		return nil
	}
	return printOutput(cmd, resp.Data)
}

func isStructuredCmd(cmd *cobra.Command) bool {
	return outfmt.IsStructured(cmd.Context())
}

func printOutput(cmd *cobra.Command, v any) error {
	ioStreams := iocontext.GetIO(cmd.Context())
	return outfmt.NewFormatter(cmd.Context(), ioStreams.Out, ioStreams.ErrOut).Output(v)
}

// statusf prints a status line to stderr unless --quiet is set.
func statusf(cmd *cobra.Command, format string, args ...any) {
	if flags.Quiet {
		return
	}
	_, _ = fmt.Fprintf(iocontext.GetIO(cmd.Context()).ErrOut, format, args...)
}

// parseKeyValues turns key=value words into ordered call arguments. A
// repeated key keeps its first position and takes the last value.
func parseKeyValues(words []string) (*api.Args, error) {
	args := api.NewArgs()
	for _, w := range words {
		key, value, ok := strings.Cut(w, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &api.InvalidUsageError{Reason: fmt.Sprintf("argument %q must be key=value", w)}
		}
		args.Set(key, value)
	}
	return args, nil
}

// aliasBridgeValue wraps a pflag.Value so that Set() on the alias also
// marks the canonical flag as Changed.
type aliasBridgeValue struct {
	pflag.Value
	canonical *pflag.Flag
}

func (v *aliasBridgeValue) Set(s string) error {
	if err := v.Value.Set(s); err != nil {
		return err
	}
	v.canonical.Changed = true
	return nil
}

// flagAlias registers a hidden alias for an existing flag. Both share one
// Value; the alias is annotated so flagOrAliasChanged can detect it.
func flagAlias(fs *pflag.FlagSet, name, alias string) {
	f := fs.Lookup(name)
	if f == nil {
		panic(fmt.Sprintf("flagAlias: flag %q not found", name))
	}
	a := *f
	a.Name = alias
	a.Shorthand = ""
	a.Usage = ""
	a.Hidden = true
	a.Value = &aliasBridgeValue{Value: f.Value, canonical: f}
	a.Annotations = map[string][]string{"alias-of": {name}}
	fs.AddFlag(&a)
}

// flagOrAliasChanged returns true if the named flag or any of its
// hidden aliases was explicitly set by the user.
func flagOrAliasChanged(cmd *cobra.Command, name string) bool {
	if cmd.Flags().Changed(name) || cmd.InheritedFlags().Changed(name) {
		return true
	}
	aliasChanged := func(fs *pflag.FlagSet) bool {
		found := false
		fs.VisitAll(func(f *pflag.Flag) {
			if found {
				return
			}
			if ann, ok := f.Annotations["alias-of"]; ok && len(ann) > 0 && ann[0] == name && fs.Changed(f.Name) {
				found = true
			}
		})
		return found
	}
	return aliasChanged(cmd.Flags()) || aliasChanged(cmd.InheritedFlags())
}

// errAlreadyHandled is a sentinel error indicating the error was already printed to stderr.
// Commands using RunE return this to signal Cobra that an error occurred (for exit code)
// without Cobra printing it again (since SilenceErrors is true on root command).
var errAlreadyHandled = errors.New("error already handled")

type handledError struct {
	err      error
	exitCode int
}

func (e *handledError) Error() string {
	return e.err.Error()
}

func (e *handledError) Unwrap() []error {
	return []error{errAlreadyHandled, e.err}
}

func (e *handledError) ExitCode() int {
	return e.exitCode
}

// RunE wraps a command function with enhanced error handling
func RunE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err == nil {
			return nil
		}
		errOut := iocontext.GetIO(cmd.Context()).ErrOut
		if outfmt.IsStructured(cmd.Context()) {
			_ = outfmt.WriteJSON(errOut, structuredError(err))
		} else {
			_, _ = fmt.Fprint(errOut, HandleError(err))
		}
		return &handledError{err: err, exitCode: ExitCode(err)}
	}
}
