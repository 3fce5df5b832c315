// Package session mirrors the identity provider's current session into
// process-wide state. The Tracker is the single writer; every other
// component reads snapshots and treats them as immutable.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Session is the authenticated principal plus the opaque credential
// handle the provider issued for it.
type Session struct {
	// Principal is the user's identity as known to the provider.
	Principal string
	// AccessToken is the opaque credential handle for API calls.
	AccessToken string
}

// Credentials carries what the provider needs to open a session.
type Credentials struct {
	Provider string // OAuth provider name, e.g. "google"
	Email    string
	Password string
}

// Provider is the external identity service. SignIn and SignOut are
// fire-and-forget from the caller's perspective: the resulting state
// arrives on the Changes channel, not in the call's return value.
type Provider interface {
	SignIn(ctx context.Context, creds Credentials) error
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Session, error)
	// Changes pushes the new session (nil on logout) after every
	// provider-side transition: login, logout, token refresh.
	Changes() <-chan *Session
}

// Tracker subscribes to a Provider and exposes the current session to the
// rest of the process. At most one active subscription per Tracker;
// Close tears it down exactly once and guarantees no change callback
// fires after it returns.
type Tracker struct {
	provider Provider

	mu        sync.Mutex
	current   *Session
	listeners map[int]func(*Session)
	nextID    int

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	started   bool
}

// NewTracker creates a Tracker over the given provider.
func NewTracker(p Provider) *Tracker {
	return &Tracker{
		provider:  p,
		listeners: make(map[int]func(*Session)),
		done:      make(chan struct{}),
	}
}

// Start fetches the initial session and subscribes to provider change
// events. Call once per Tracker, paired with Close.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	sess, err := t.provider.GetSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Initial session fetch failed; starting signed out")
	} else if sess != nil {
		log.Debug().Str("principal", sess.Principal).Msg("Restored existing session")
	}
	t.mu.Lock()
	t.current = sess
	t.mu.Unlock()

	t.wg.Add(1)
	go t.watch()
	return nil
}

// watch consumes provider change events until Close.
func (t *Tracker) watch() {
	defer t.wg.Done()
	changes := t.provider.Changes()
	for {
		select {
		case <-t.done:
			return
		case sess, ok := <-changes:
			if !ok {
				return
			}
			t.apply(sess)
		}
	}
}

// apply records the new session and notifies listeners.
func (t *Tracker) apply(sess *Session) {
	t.mu.Lock()
	t.current = sess
	fns := make([]func(*Session), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	if sess == nil {
		log.Info().Msg("Session cleared")
	} else {
		log.Info().Str("principal", sess.Principal).Msg("Session updated")
	}
	for _, fn := range fns {
		fn(sess)
	}
}

// Current returns a snapshot of the active session, if any.
func (t *Tracker) Current() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Session{}, false
	}
	return *t.current, true
}

// IsAuthenticated reports whether a session is active.
func (t *Tracker) IsAuthenticated() bool {
	_, ok := t.Current()
	return ok
}

// OnChange registers a listener invoked with the new session on every
// provider-pushed transition. The returned function unsubscribes; calling
// it more than once is harmless.
func (t *Tracker) OnChange(fn func(*Session)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// SignIn delegates to the provider. The resulting session arrives via the
// change listeners, not this call's return value.
func (t *Tracker) SignIn(ctx context.Context, creds Credentials) error {
	return t.provider.SignIn(ctx, creds)
}

// SignOut delegates to the provider; state arrives via change listeners.
func (t *Tracker) SignOut(ctx context.Context) error {
	return t.provider.SignOut(ctx)
}

// Close unsubscribes from the provider exactly once. No listener is
// invoked after Close returns.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
		t.mu.Lock()
		t.listeners = make(map[int]func(*Session))
		t.mu.Unlock()
	})
}
