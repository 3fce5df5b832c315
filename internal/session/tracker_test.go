package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeProvider drives the tracker from tests via a buffered change channel.
type fakeProvider struct {
	mu      sync.Mutex
	initial *Session
	changes chan *Session
}

func newFakeProvider(initial *Session) *fakeProvider {
	return &fakeProvider{initial: initial, changes: make(chan *Session, 8)}
}

func (p *fakeProvider) SignIn(ctx context.Context, creds Credentials) error {
	p.changes <- &Session{Principal: "u1", AccessToken: "tok"}
	return nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.changes <- nil
	return nil
}

func (p *fakeProvider) GetSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initial, nil
}

func (p *fakeProvider) Changes() <-chan *Session { return p.changes }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartRestoresExistingSession(t *testing.T) {
	tracker := NewTracker(newFakeProvider(&Session{Principal: "u1", AccessToken: "tok"}))
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tracker.Close()

	sess, ok := tracker.Current()
	if !ok || sess.Principal != "u1" {
		t.Errorf("expected restored session for u1, got %+v ok=%v", sess, ok)
	}
	if !tracker.IsAuthenticated() {
		t.Error("expected IsAuthenticated to be true")
	}
}

func TestChangeEventUpdatesCurrentAndNotifies(t *testing.T) {
	provider := newFakeProvider(nil)
	tracker := NewTracker(provider)
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tracker.Close()

	var mu sync.Mutex
	var seen []*Session
	tracker.OnChange(func(s *Session) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if err := tracker.SignIn(context.Background(), Credentials{Email: "me@example.com"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	waitFor(t, tracker.IsAuthenticated)

	if err := tracker.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	waitFor(t, func() bool { return !tracker.IsAuthenticated() })

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 change notifications, got %d", len(seen))
	}
	if seen[0] == nil || seen[0].Principal != "u1" {
		t.Errorf("first notification must carry the new session, got %+v", seen[0])
	}
	if seen[1] != nil {
		t.Errorf("logout must notify with a nil session, got %+v", seen[1])
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	provider := newFakeProvider(nil)
	tracker := NewTracker(provider)
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tracker.Close()

	var mu sync.Mutex
	calls := 0
	unsubscribe := tracker.OnChange(func(*Session) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	unsubscribe()
	unsubscribe() // second call is harmless

	provider.changes <- &Session{Principal: "u1"}
	waitFor(t, tracker.IsAuthenticated)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("unsubscribed listener must not fire, got %d calls", calls)
	}
}

func TestNoCallbackAfterClose(t *testing.T) {
	provider := newFakeProvider(nil)
	tracker := NewTracker(provider)
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var mu sync.Mutex
	calls := 0
	tracker.OnChange(func(*Session) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	tracker.Close()
	tracker.Close() // teardown is exactly-once; a second close is a no-op

	// Events arriving after teardown must not reach the listener.
	provider.changes <- &Session{Principal: "u1"}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("no callback may fire after Close, got %d calls", calls)
	}
}
