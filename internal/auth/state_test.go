package auth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_SetToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"non-empty", "abc", true},
		{"empty", "", false},
		{"whitespace is a value", "  \t", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.SetToken(tt.token)
			assert.Equal(t, tt.want, s.Authenticated())
			if tt.want {
				assert.Equal(t, tt.token, s.Token())
			} else {
				assert.Empty(t, s.Token())
			}
		})
	}
}

func TestState_ClearAfterSet(t *testing.T) {
	s := NewState()
	s.SetToken("abc")
	require.True(t, s.Authenticated())

	s.Clear()
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Token())
}

func TestState_ListenersReceiveNewValue(t *testing.T) {
	s := NewState()
	var got []bool
	s.AddListener(func(authenticated bool) { got = append(got, authenticated) })

	s.SetToken("abc")
	s.SetToken("")
	s.SetToken("def")
	s.Clear()

	assert.Equal(t, []bool{true, false, true, false}, got)
}

func TestState_RegistrationOrder(t *testing.T) {
	s := NewState()
	var order []int
	for i := 1; i <= 3; i++ {
		s.AddListener(func(bool) { order = append(order, i) })
	}

	s.SetToken("abc")
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestState_DuplicateListeners(t *testing.T) {
	s := NewState()
	calls := 0
	fn := func(bool) { calls++ }
	first := s.AddListener(fn)
	s.AddListener(fn)

	s.Refresh()
	assert.Equal(t, 2, calls)

	s.RemoveListener(first)
	s.Refresh()
	assert.Equal(t, 3, calls)
}

func TestState_RemoveUnknownIsNoop(t *testing.T) {
	s := NewState()
	sub := s.AddListener(func(bool) {})
	other := NewState().AddListener(func(bool) {})

	s.RemoveListener(other)
	s.RemoveListener(nil)
	assert.Equal(t, 1, s.ListenerCount())

	s.RemoveListener(sub)
	s.RemoveListener(sub)
	assert.Equal(t, 0, s.ListenerCount())
}

func TestState_RemoveSelfDuringDispatch(t *testing.T) {
	s := NewState()
	var order []string

	s.AddListener(func(bool) { order = append(order, "a") })
	var self *Subscription
	self = s.AddListener(func(bool) {
		order = append(order, "b")
		s.RemoveListener(self)
	})
	s.AddListener(func(bool) { order = append(order, "c") })

	s.SetToken("abc")
	assert.Equal(t, []string{"a", "b", "c"}, order)

	order = nil
	s.SetToken("def")
	assert.Equal(t, []string{"a", "c"}, order)
}

func TestState_RemoveLaterListenerDuringDispatch(t *testing.T) {
	s := NewState()
	var order []string
	var later *Subscription

	s.AddListener(func(bool) {
		order = append(order, "a")
		s.RemoveListener(later)
	})
	later = s.AddListener(func(bool) { order = append(order, "b") })

	// The snapshot taken for this change still includes b.
	s.Refresh()
	assert.Equal(t, []string{"a", "b"}, order)

	order = nil
	s.Refresh()
	assert.Equal(t, []string{"a"}, order)
}

func TestState_AddDuringDispatch(t *testing.T) {
	s := NewState()
	added := 0
	s.AddListener(func(bool) {
		s.AddListener(func(bool) { added++ })
	})

	s.Refresh()
	assert.Equal(t, 0, added)
	assert.Equal(t, 2, s.ListenerCount())

	s.Refresh()
	assert.Equal(t, 1, added)
}

func TestState_RefreshAlwaysEmits(t *testing.T) {
	s := NewState()
	s.SetToken("abc")

	var got []bool
	s.AddListener(func(authenticated bool) { got = append(got, authenticated) })

	s.Refresh()
	s.Refresh()
	assert.Equal(t, []bool{true, true}, got)
	assert.Equal(t, "abc", s.Token())
}

func TestState_NilListenerIgnored(t *testing.T) {
	s := NewState()
	assert.Nil(t, s.AddListener(nil))
	assert.Equal(t, 0, s.ListenerCount())
	s.SetToken("abc")
}

func TestState_ConcurrentMutation(t *testing.T) {
	s := NewState()
	var mu sync.Mutex
	calls := 0
	s.AddListener(func(bool) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.SetToken("abc")
			} else {
				s.Clear()
			}
			_ = s.Authenticated()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, calls)
	assert.Equal(t, s.Token() != "", s.Authenticated())
}
