package outfmt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Formatter handles output formatting for commands.
type Formatter struct {
	ctx       context.Context
	out       io.Writer
	errOut    io.Writer
	tabWriter *tabwriter.Writer
}

// NewFormatter creates a new Formatter
func NewFormatter(ctx context.Context, out, errOut io.Writer) *Formatter {
	return &Formatter{
		ctx:       ctx,
		out:       out,
		errOut:    errOut,
		tabWriter: tabwriter.NewWriter(out, 0, 4, 2, ' ', 0),
	}
}

// Output writes data in the context's mode. The jq query applies to
// every mode.
func (f *Formatter) Output(data any) error {
	opts := FromContext(f.ctx)
	filtered, err := opts.Apply(data)
	if err != nil {
		return err
	}
	switch opts.Mode {
	case JSON:
		return writeJSON(f.out, filtered, opts.Compact)
	case YAML:
		return WriteYAML(f.out, filtered)
	default:
		return f.Text(filtered)
	}
}

// Text renders decoded JSON for people: objects as key/value rows, lists
// of objects as a table and scalars on their own line.
func (f *Formatter) Text(data any) error {
	plain, err := toPlain(data)
	if err != nil {
		return err
	}

	switch v := plain.(type) {
	case nil:
		f.Empty("(no content)")
		return nil
	case map[string]any:
		f.StartTable([]string{"KEY", "VALUE"})
		for _, k := range sortedKeys(v) {
			f.Row(k, cell(v[k]))
		}
		return f.EndTable()
	case []any:
		if len(v) == 0 {
			f.Empty("(no results)")
			return nil
		}
		columns := objectColumns(v)
		if columns == nil {
			for _, item := range v {
				_, _ = fmt.Fprintln(f.out, cell(item))
			}
			return nil
		}
		headers := make([]string, len(columns))
		for i, c := range columns {
			headers[i] = strings.ToUpper(c)
		}
		f.StartTable(headers)
		for _, item := range v {
			obj := item.(map[string]any)
			row := make([]string, len(columns))
			for i, c := range columns {
				row[i] = cell(obj[c])
			}
			f.Row(row...)
		}
		return f.EndTable()
	default:
		_, err := fmt.Fprintln(f.out, cell(v))
		return err
	}
}

// StartTable writes table headers. Returns true if in text mode.
func (f *Formatter) StartTable(headers []string) bool {
	if IsStructured(f.ctx) {
		return false
	}
	f.Row(headers...)
	return true
}

// Row writes a single row to the table.
func (f *Formatter) Row(columns ...string) {
	_, _ = fmt.Fprintln(f.tabWriter, strings.Join(columns, "\t"))
}

// EndTable flushes the table output.
func (f *Formatter) EndTable() error {
	return f.tabWriter.Flush()
}

// Empty writes a message to stderr indicating no results.
func (f *Formatter) Empty(message string) {
	_, _ = fmt.Fprintln(f.errOut, message)
}

// objectColumns returns the sorted union of keys when every item is an
// object, nil otherwise.
func objectColumns(items []any) []string {
	seen := map[string]struct{}{}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		for k := range obj {
			seen[k] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return strings.NewReplacer("\t", " ", "\n", " ").Replace(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
