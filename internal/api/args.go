package api

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Arg is one key/value pair of a call's arguments.
type Arg struct {
	Key   string
	Value string
}

// Args is the ordered argument set of a single call. Values fill endpoint
// placeholders and are also encoded into the query string or body, in
// insertion order. The zero value is empty and ready to use; a nil *Args
// behaves as empty for reads.
type Args struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewArgs builds an Args from alternating key, value pairs. A trailing key
// without a value is set to the empty string.
func NewArgs(kv ...any) *Args {
	a := &Args{}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		var value any = ""
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		a.Set(key, value)
	}
	return a
}

// Set stores value under key, string-coerced. An existing key keeps its
// position and has its value replaced.
func (a *Args) Set(key string, value any) *Args {
	if a.m == nil {
		a.m = orderedmap.New[string, string]()
	}
	a.m.Set(key, stringify(value))
	return a
}

// Get returns the value stored under key.
func (a *Args) Get(key string) (string, bool) {
	if a == nil || a.m == nil {
		return "", false
	}
	return a.m.Get(key)
}

// Has reports whether key is present.
func (a *Args) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Delete removes key, preserving the order of the rest.
func (a *Args) Delete(key string) {
	if a == nil || a.m == nil {
		return
	}
	a.m.Delete(key)
}

// Len returns the number of pairs.
func (a *Args) Len() int {
	if a == nil || a.m == nil {
		return 0
	}
	return a.m.Len()
}

// Pairs returns a copy of the pairs in insertion order.
func (a *Args) Pairs() []Arg {
	if a.Len() == 0 {
		return nil
	}
	out := make([]Arg, 0, a.m.Len())
	for p := a.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, Arg{Key: p.Key, Value: p.Value})
	}
	return out
}

// Keys returns the keys in insertion order.
func (a *Args) Keys() []string {
	if a.Len() == 0 {
		return nil
	}
	keys := make([]string, 0, a.m.Len())
	for p := a.m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Clone returns an independent copy.
func (a *Args) Clone() *Args {
	c := &Args{}
	for _, p := range a.Pairs() {
		c.Set(p.Key, p.Value)
	}
	return c
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
