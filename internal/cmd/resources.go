package cmd

import (
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitalliving/life-engine-cli/internal/api"
)

// resourceInfo describes one catalogue entry.
type resourceInfo struct {
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	Overrides    map[string]string `json:"overrides,omitempty"`
	Placeholders []string          `json:"placeholders,omitempty"`
}

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "resources [name]",
		Aliases: []string{"res"},
		Short:   "List the endpoint catalogue",
		Long: strings.TrimSpace(`
List the resources 'le call' understands, with their default path, the
verbs that use a different path, and the placeholders each path needs.
`),
		Example: strings.TrimSpace(`
  le resources
  le resources taskComments -o json
`),
		Args: cobra.MaximumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			reg := api.DefaultRegistry()

			if len(args) == 1 {
				ep, err := reg.Lookup(args[0])
				if err != nil {
					return err
				}
				return printOutput(cmd, describeEndpoint(ep))
			}

			infos := make([]resourceInfo, 0, len(reg.Names()))
			for _, name := range reg.Names() {
				ep, err := reg.Lookup(name)
				if err != nil {
					return err
				}
				infos = append(infos, describeEndpoint(ep))
			}
			if isStructuredCmd(cmd) {
				return printOutput(cmd, infos)
			}

			rows := make([]map[string]any, 0, len(infos))
			for _, info := range infos {
				var overrides []string
				for _, verb := range sortedVerbs(info.Overrides) {
					overrides = append(overrides, verb+" "+info.Overrides[verb])
				}
				rows = append(rows, map[string]any{
					"name":         info.Name,
					"path":         info.Path,
					"overrides":    strings.Join(overrides, ", "),
					"placeholders": strings.Join(info.Placeholders, ", "),
				})
			}
			return printOutput(cmd, rows)
		}),
	}
}

func describeEndpoint(ep *api.Endpoint) resourceInfo {
	info := resourceInfo{
		Name: ep.Name(),
		Path: ep.Template(http.MethodGet).String(),
	}
	seen := map[string]bool{}
	addPlaceholders := func(t api.Template) {
		for _, p := range t.Placeholders() {
			if !seen[p] {
				seen[p] = true
				info.Placeholders = append(info.Placeholders, p)
			}
		}
	}
	addPlaceholders(ep.Template(http.MethodGet))
	for _, verb := range ep.Overrides() {
		if info.Overrides == nil {
			info.Overrides = map[string]string{}
		}
		t := ep.Template(verb)
		info.Overrides[verb] = t.String()
		addPlaceholders(t)
	}
	return info
}

// sortedVerbs orders override verbs as GET, POST, PUT, DELETE.
func sortedVerbs(overrides map[string]string) []string {
	var out []string
	for _, verb := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		if _, ok := overrides[verb]; ok {
			out = append(out, verb)
		}
	}
	return out
}
