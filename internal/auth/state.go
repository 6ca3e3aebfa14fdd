package auth

import "sync"

// Listener is notified with the authenticated flag after every auth change.
type Listener func(authenticated bool)

// Subscription is the handle returned by AddListener. Removal is by handle
// identity, so registering the same func twice yields two subscriptions.
type Subscription struct {
	fn Listener
}

// State holds the current bearer token and the derived authenticated flag.
//
// One State is owned by each client and shared by every resource it exposes;
// requests read the token at call time so a change applies to the very next
// request. Listeners run synchronously, in registration order, on the
// goroutine that made the change, and all of them have returned before the
// mutating call does. Dispatch iterates a snapshot, so a listener may add or
// remove listeners (including itself) while being notified.
type State struct {
	mu            sync.Mutex
	token         string
	authenticated bool
	subs          []*Subscription
}

// NewState returns an unauthenticated State with no listeners.
func NewState() *State {
	return &State{}
}

// Token returns the current bearer token, or "" when none is set.
func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Authenticated reports whether a non-empty token is held.
func (s *State) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// SetToken replaces the token and notifies listeners. An empty token is
// stored as absent and leaves the state unauthenticated. Callers that read
// tokens from user input trim them first.
func (s *State) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.authenticated = token != ""
	authenticated := s.authenticated
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	dispatch(snapshot, authenticated)
}

// Clear drops the token and notifies listeners.
func (s *State) Clear() {
	s.SetToken("")
}

// Refresh notifies listeners without touching the token.
//
// It is an intentional no-op mutation: callers use it after an external
// refresh mechanism finishes so that consumers re-check derived state. It
// must always emit, even though nothing changed.
func (s *State) Refresh() {
	s.mu.Lock()
	authenticated := s.authenticated
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	dispatch(snapshot, authenticated)
}

// AddListener registers fn and returns the handle used to remove it.
// A nil fn is ignored and yields a nil handle.
func (s *State) AddListener(fn Listener) *Subscription {
	if fn == nil {
		return nil
	}
	sub := &Subscription{fn: fn}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return sub
}

// RemoveListener unregisters sub. Unknown, nil, or already removed handles
// are ignored.
func (s *State) RemoveListener(sub *Subscription) {
	if sub == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.subs {
		if existing == sub {
			// Copy instead of splicing in place so snapshots held by an
			// in-flight dispatch keep their view.
			next := make([]*Subscription, 0, len(s.subs)-1)
			next = append(next, s.subs[:i]...)
			next = append(next, s.subs[i+1:]...)
			s.subs = next
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (s *State) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *State) snapshotLocked() []*Subscription {
	if len(s.subs) == 0 {
		return nil
	}
	snapshot := make([]*Subscription, len(s.subs))
	copy(snapshot, s.subs)
	return snapshot
}

func dispatch(subs []*Subscription, authenticated bool) {
	for _, sub := range subs {
		sub.fn(authenticated)
	}
}
