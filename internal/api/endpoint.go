package api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Verbs accepted by the executor.
var verbs = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// NormalizeVerb upper-cases verb and checks it is one of GET, POST, PUT or
// DELETE.
func NormalizeVerb(verb string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(verb))
	for _, allowed := range verbs {
		if v == allowed {
			return v, nil
		}
	}
	return "", &InvalidUsageError{Verb: verb, Reason: "unsupported verb, expected one of GET, POST, PUT, DELETE"}
}

type segment struct {
	text        string
	placeholder bool
}

// Template is an endpoint path parsed into literal text and {name}
// placeholders.
type Template struct {
	raw      string
	segments []segment
}

// ParseTemplate parses path. Placeholders are delimited by braces and must
// have a non-empty name without nested braces.
func ParseTemplate(path string) (Template, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return Template{}, fmt.Errorf("empty path")
	}

	t := Template{raw: path}
	rest := path
	for rest != "" {
		open := strings.IndexAny(rest, "{}")
		if open < 0 {
			t.segments = append(t.segments, segment{text: rest})
			break
		}
		if rest[open] == '}' {
			return Template{}, fmt.Errorf("unbalanced '}' in %q", path)
		}
		if open > 0 {
			t.segments = append(t.segments, segment{text: rest[:open]})
		}
		rest = rest[open+1:]
		end := strings.IndexAny(rest, "{}")
		if end < 0 || rest[end] == '{' {
			return Template{}, fmt.Errorf("unterminated placeholder in %q", path)
		}
		name := rest[:end]
		if strings.TrimSpace(name) == "" {
			return Template{}, fmt.Errorf("empty placeholder in %q", path)
		}
		t.segments = append(t.segments, segment{text: name, placeholder: true})
		rest = rest[end+1:]
	}
	return t, nil
}

// String returns the template as written.
func (t Template) String() string {
	return t.raw
}

// Placeholders returns the placeholder names in order of first appearance.
func (t Template) Placeholders() []string {
	var names []string
	seen := map[string]bool{}
	for _, s := range t.segments {
		if s.placeholder && !seen[s.text] {
			seen[s.text] = true
			names = append(names, s.text)
		}
	}
	return names
}

// expand substitutes args into the template. raw carries the unescaped
// values, escaped the path-escaped ones; missing lists unfilled placeholders,
// which are left in both outputs as {name}.
func (t Template) expand(args *Args) (raw, escaped string, missing []string) {
	var rb, eb strings.Builder
	for _, s := range t.segments {
		if !s.placeholder {
			rb.WriteString(s.text)
			eb.WriteString(s.text)
			continue
		}
		v, ok := args.Get(s.text)
		if !ok {
			missing = appendUnique(missing, s.text)
			rb.WriteString("{" + s.text + "}")
			eb.WriteString("{" + s.text + "}")
			continue
		}
		rb.WriteString(v)
		eb.WriteString(url.PathEscape(v))
	}
	return rb.String(), eb.String(), missing
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// EndpointSpec is the static description of one catalogue entry.
type EndpointSpec struct {
	Name      string
	Path      string
	Overrides map[string]string
}

// Endpoint is a parsed catalogue entry: a default template plus per-verb
// overrides. It is immutable once built.
type Endpoint struct {
	name      string
	path      Template
	overrides map[string]Template
}

// NewEndpoint parses spec into an Endpoint. Bad templates and unsupported
// override verbs are reported as *ConfigurationError.
func NewEndpoint(spec EndpointSpec) (*Endpoint, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, &ConfigurationError{Field: "endpoint", Reason: "name is required"}
	}
	path, err := ParseTemplate(spec.Path)
	if err != nil {
		return nil, &ConfigurationError{Field: "endpoint " + name, Err: err}
	}
	ep := &Endpoint{name: name, path: path, overrides: map[string]Template{}}
	for verb, p := range spec.Overrides {
		v, err := NormalizeVerb(verb)
		if err != nil {
			return nil, &ConfigurationError{Field: "endpoint " + name, Reason: fmt.Sprintf("override for %q", verb), Err: err}
		}
		tmpl, err := ParseTemplate(p)
		if err != nil {
			return nil, &ConfigurationError{Field: "endpoint " + name, Reason: "override for " + v, Err: err}
		}
		ep.overrides[v] = tmpl
	}
	return ep, nil
}

// Name returns the logical resource name.
func (e *Endpoint) Name() string {
	return e.name
}

// Template returns the template used for verb: its override if one exists,
// else the default path.
func (e *Endpoint) Template(verb string) Template {
	if t, ok := e.overrides[strings.ToUpper(verb)]; ok {
		return t
	}
	return e.path
}

// Overrides returns the verbs that have their own path, sorted.
func (e *Endpoint) Overrides() []string {
	out := make([]string, 0, len(e.overrides))
	for v := range e.overrides {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Resolve builds the absolute URL for verb against baseURL. Every
// placeholder of the selected template must be present in args; otherwise a
// *MissingArgumentError names the verb, the partially resolved URL and the
// absent keys. Keys with no matching placeholder are ignored here.
func (e *Endpoint) Resolve(baseURL, verb string, args *Args) (string, error) {
	verb = strings.ToUpper(verb)
	base := strings.TrimRight(baseURL, "/")
	raw, escaped, missing := e.Template(verb).expand(args)
	if len(missing) > 0 {
		return "", &MissingArgumentError{Verb: verb, URL: base + "/" + raw, Missing: missing}
	}
	// A substituted value may itself carry a brace; such a URL is treated as
	// unresolved too.
	if strings.Contains(raw, "{") {
		return "", &MissingArgumentError{Verb: verb, URL: base + "/" + raw}
	}
	return base + "/" + escaped, nil
}
