package api

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// maxSuggestions caps the did-you-mean list of an UnknownResourceError.
const maxSuggestions = 3

// Registry is the fixed catalogue of endpoints a client dispatches to. It is
// built once and never mutated, so it is safe to share.
type Registry struct {
	endpoints map[string]*Endpoint
	names     []string
}

// NewRegistry parses specs into a registry. Duplicate names and malformed
// paths are reported as *ConfigurationError.
func NewRegistry(specs []EndpointSpec) (*Registry, error) {
	r := &Registry{endpoints: make(map[string]*Endpoint, len(specs))}
	for _, spec := range specs {
		ep, err := NewEndpoint(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := r.endpoints[ep.Name()]; dup {
			return nil, &ConfigurationError{Field: "endpoint " + ep.Name(), Reason: "duplicate name"}
		}
		r.endpoints[ep.Name()] = ep
		r.names = append(r.names, ep.Name())
	}
	sort.Strings(r.names)
	return r, nil
}

// MustRegistry is NewRegistry for static tables; it panics on error.
func MustRegistry(specs []EndpointSpec) *Registry {
	r, err := NewRegistry(specs)
	if err != nil {
		panic(err)
	}
	return r
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Lookup returns the named endpoint. Exact names win, then a unique
// case-insensitive match. Anything else is an *UnknownResourceError with
// suggestions.
func (r *Registry) Lookup(name string) (*Endpoint, error) {
	name = strings.TrimSpace(name)
	if ep, ok := r.endpoints[name]; ok {
		return ep, nil
	}
	var folded *Endpoint
	for _, n := range r.names {
		if strings.EqualFold(n, name) {
			if folded != nil {
				folded = nil
				break
			}
			folded = r.endpoints[n]
		}
	}
	if folded != nil {
		return folded, nil
	}
	return nil, &UnknownResourceError{Name: name, Suggestions: r.suggest(name)}
}

type lowerNames []string

func (s lowerNames) String(i int) string { return strings.ToLower(s[i]) }
func (s lowerNames) Len() int            { return len(s) }

func (r *Registry) suggest(name string) []string {
	return Suggest(name, r.names, maxSuggestions)
}

// Suggest ranks candidates against an unknown name: fuzzy subsequence
// matches first, then candidates within a small edit distance. At most
// limit names are returned; case is ignored.
func Suggest(name string, candidates []string, limit int) []string {
	query := strings.ToLower(name)
	if query == "" || limit <= 0 {
		return nil
	}

	var out []string
	for _, m := range fuzzy.FindFrom(query, lowerNames(candidates)) {
		out = append(out, candidates[m.Index])
		if len(out) == limit {
			return out
		}
	}

	type candidate struct {
		name string
		dist int
	}
	var near []candidate
	for _, n := range candidates {
		if containsString(out, n) {
			continue
		}
		if d := levenshtein(query, strings.ToLower(n)); d <= 3 {
			near = append(near, candidate{name: n, dist: d})
		}
	}
	sort.SliceStable(near, func(i, j int) bool { return near[i].dist < near[j].dist })
	for _, c := range near {
		if len(out) == limit {
			break
		}
		out = append(out, c.name)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	row := make([]int, lb+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= la; i++ {
		prev := i - 1
		row[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			val := min(row[j]+1, row[j-1]+1, prev+cost)
			prev = row[j]
			row[j] = val
		}
	}
	return row[lb]
}
