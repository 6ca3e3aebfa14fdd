package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/iocontext"
)

func newCallCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "call <resource> <verb> [key=value ...]",
		Short: "Call a catalogue resource",
		Long: strings.TrimSpace(`
Dispatch one call against a catalogue resource.

Path placeholders such as {DLId} are filled from the key=value arguments of
the same name. Every argument is also sent: as the query string for GET, as
a form body otherwise.
`),
		Example: strings.TrimSpace(`
  le call me get
  le call calendar get DLId=42
  le call calendar post title="Dentist" start=2026-11-02T09:00
  le call messages delete DLId=7 --dry-run
`),
		Args: cobra.MinimumNArgs(2),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			kv, err := parseKeyValues(args[2:])
			if err != nil {
				return err
			}
			verb, err := api.NormalizeVerb(args[1])
			if err != nil {
				return err
			}

			s, err := newClientFactory().open()
			if err != nil {
				return err
			}
			res, err := s.client.Resource(args[0])
			if err != nil {
				return err
			}

			if dryRun {
				target, err := res.URL(verb, kv)
				if err != nil {
					return err
				}
				return printDryRun(cmd, verb, target, kv)
			}

			resp, err := res.Call(cmd.Context(), verb, kv)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		}),
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the resolved request without sending it")
	flagAlias(cmd.Flags(), "dry-run", "dr")
	return cmd
}

func printDryRun(cmd *cobra.Command, verb, target string, kv *api.Args) error {
	encoded := api.EncodeArgs(kv)
	if verb == "GET" && encoded != "" {
		target += "?" + encoded
		encoded = ""
	}
	if isStructuredCmd(cmd) {
		return printOutput(cmd, map[string]any{
			"method": verb,
			"url":    target,
			"body":   encoded,
		})
	}
	out := iocontext.GetIO(cmd.Context()).Out
	_, _ = fmt.Fprintf(out, "%s %s\n", verb, target)
	if encoded != "" {
		_, _ = fmt.Fprintln(out, encoded)
	}
	return nil
}
