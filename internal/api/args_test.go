package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArgs_SetKeepsPosition(t *testing.T) {
	a := NewArgs("a", 1, "b", 2, "c", 3)
	a.Set("b", "two")

	assert.Equal(t, []string{"a", "b", "c"}, a.Keys())
	v, ok := a.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestArgs_Coercion(t *testing.T) {
	a := NewArgs("int", 42, "bool", false, "nil", nil, "dur", 2*time.Second)

	get := func(k string) string {
		v, _ := a.Get(k)
		return v
	}
	assert.Equal(t, "42", get("int"))
	assert.Equal(t, "false", get("bool"))
	assert.Equal(t, "", get("nil"))
	assert.Equal(t, "2s", get("dur"))
}

func TestArgs_OddPairs(t *testing.T) {
	a := NewArgs("a", 1, "dangling")
	assert.True(t, a.Has("dangling"))
	assert.Equal(t, 2, a.Len())
}

func TestArgs_DeleteAndClone(t *testing.T) {
	a := NewArgs("a", 1, "b", 2, "c", 3)
	c := a.Clone()

	a.Delete("b")
	a.Delete("missing")
	assert.Equal(t, []string{"a", "c"}, a.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())
}

func TestArgs_NilSafe(t *testing.T) {
	var a *Args
	assert.Equal(t, 0, a.Len())
	assert.False(t, a.Has("x"))
	assert.Nil(t, a.Pairs())
	assert.Nil(t, a.Keys())
	a.Delete("x")
	assert.Equal(t, 0, a.Clone().Len())
}

func TestArgs_ZeroValue(t *testing.T) {
	var a Args
	assert.Equal(t, 0, a.Len())
	a.Set("x", 1).Set("y", 2).Set("x", 3)
	assert.Equal(t, []Arg{{Key: "x", Value: "3"}, {Key: "y", Value: "2"}}, a.Pairs())
}

func TestArgs_DeleteThenReinsertAppends(t *testing.T) {
	a := NewArgs("a", 1, "b", 2, "c", 3)
	a.Delete("a")
	a.Set("a", "again")
	assert.Equal(t, []string{"b", "c", "a"}, a.Keys())
	assert.Equal(t, "b=2&c=3&a=again", EncodeArgs(a))
}
