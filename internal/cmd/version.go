package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/digitalliving/life-engine-cli/internal/iocontext"
)

// version is set at build time via ldflags
var version = "dev"

// versionInfo is the parsed build version.
type versionInfo struct {
	Version    string `json:"version"`
	Release    bool   `json:"release"`
	Prerelease string `json:"prerelease,omitempty"`
	Build      string `json:"build,omitempty"`
}

func parseVersion(v string) versionInfo {
	info := versionInfo{Version: v}
	sv := v
	if !strings.HasPrefix(sv, "v") {
		sv = "v" + sv
	}
	if !semver.IsValid(sv) {
		return info
	}
	info.Version = strings.TrimPrefix(semver.Canonical(sv), "v")
	info.Prerelease = strings.TrimPrefix(semver.Prerelease(sv), "-")
	info.Build = strings.TrimPrefix(semver.Build(sv), "+")
	info.Release = info.Prerelease == ""
	return info
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Print version information",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			info := parseVersion(version)
			if isStructuredCmd(cmd) {
				return printOutput(cmd, info)
			}
			out := iocontext.GetIO(cmd.Context()).Out
			_, _ = fmt.Fprintf(out, "life-engine-cli version %s\n", version)
			if !info.Release {
				_, _ = fmt.Fprintln(out, "development build")
			}
			return nil
		}),
	}
}
