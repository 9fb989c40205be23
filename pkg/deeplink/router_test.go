package deeplink

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu       sync.Mutex
	notices  []string
	warnings []string
}

func (n *recordingNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, msg)
}

func (n *recordingNotifier) Warn(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, msg)
}

func (n *recordingNotifier) counts() (notices, warnings int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices), len(n.warnings)
}

func TestAuthCallbackDelivered(t *testing.T) {
	r := NewRouter(NewInbox(), nil, nil)
	waiter := NewTokenWaiter()
	r.RegisterPath("auth/dropbox", func(params map[string]string) {
		waiter.Deliver(params["access_token"])
	})

	r.Handle("sourcectl://auth/dropbox/#token_type=bearer&access_token=XYZ")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	token, err := waiter.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if token != "XYZ" {
		t.Errorf("token = %q, want XYZ", token)
	}
}

func TestCallbackFragmentParsing(t *testing.T) {
	r := NewRouter(NewInbox(), nil, nil)

	var got map[string]string
	r.RegisterPath("auth/test", func(params map[string]string) { got = params })

	// Last write wins on duplicate keys; a pair without '=' maps to ""
	r.Handle("sourcectl://auth/test#a=1&a=2&flag&b=x=y")

	if got == nil {
		t.Fatal("handler not invoked")
	}
	if got["a"] != "2" {
		t.Errorf(`params["a"] = %q, want 2`, got["a"])
	}
	if v, ok := got["flag"]; !ok || v != "" {
		t.Errorf(`params["flag"] = %q, %v, want "" present`, v, ok)
	}
	if got["b"] != "x=y" {
		t.Errorf(`params["b"] = %q, want x=y`, got["b"])
	}
}

func TestUnknownCallbackPathIgnored(t *testing.T) {
	notify := &recordingNotifier{}
	r := NewRouter(NewInbox(), notify, nil)

	r.Handle("sourcectl://auth/unknown-provider/#access_token=XYZ")

	// Unknown paths are dropped silently
	notices, warnings := notify.counts()
	if notices != 0 || warnings != 0 {
		t.Errorf("got %d notices / %d warnings, want none", notices, warnings)
	}
}

func TestEnrollmentURIStoredOnce(t *testing.T) {
	notify := &recordingNotifier{}
	inbox := NewInbox()
	r := NewRouter(inbox, notify, nil)

	uri := "otpauth://totp/Example:alice?secret=JBSWY3DPEHPK3PXP"
	r.Handle(uri)
	if inbox.Len() != 1 {
		t.Fatalf("inbox has %d items, want 1", inbox.Len())
	}
	if notices, _ := notify.counts(); notices != 1 {
		t.Errorf("got %d success notices, want 1", notices)
	}

	// Re-delivery of the identical URI changes nothing
	r.Handle(uri)
	if inbox.Len() != 1 {
		t.Errorf("inbox has %d items after re-delivery, want 1", inbox.Len())
	}
	if notices, _ := notify.counts(); notices != 1 {
		t.Errorf("got %d success notices after re-delivery, want 1", notices)
	}
}

func TestUnknownSchemeWarns(t *testing.T) {
	notify := &recordingNotifier{}
	inbox := NewInbox()
	r := NewRouter(inbox, notify, nil)

	r.Handle("https://example.com/whatever")
	r.Handle("not a uri")

	if _, warnings := notify.counts(); warnings != 2 {
		t.Errorf("got %d warnings, want 2", warnings)
	}
	if inbox.Len() != 0 {
		t.Errorf("inbox has %d items, want 0", inbox.Len())
	}
}

func TestInitialURIProcessedExactlyOnce(t *testing.T) {
	inbox := NewInbox()
	r := NewRouter(inbox, nil, nil)

	uri := "otpauth://totp/Example:alice?secret=JBSWY3DPEHPK3PXP"
	r.HandleInitial(uri)
	if inbox.Len() != 1 {
		t.Fatalf("inbox has %d items after initial URI, want 1", inbox.Len())
	}

	// The same URI immediately re-delivered as a live event is a duplicate
	r.Handle(uri)
	if inbox.Len() != 1 {
		t.Errorf("inbox has %d items after live re-delivery, want 1", inbox.Len())
	}

	// HandleInitial runs at most once per process
	r.HandleInitial("otpauth://totp/Other:bob?secret=GEZDGNBV")
	if inbox.Len() != 1 {
		t.Errorf("inbox has %d items after second initial call, want 1", inbox.Len())
	}

	// A genuinely new live URI still goes through
	r.Handle("otpauth://totp/Other:bob?secret=GEZDGNBV")
	if inbox.Len() != 2 {
		t.Errorf("inbox has %d items, want 2", inbox.Len())
	}
}

func TestHandleInitialEmpty(t *testing.T) {
	inbox := NewInbox()
	r := NewRouter(inbox, nil, nil)

	r.HandleInitial("")

	// An empty initial URI consumes the initial slot without dispatching
	r.Handle("otpauth://totp/Example:alice?secret=JBSWY3DPEHPK3PXP")
	if inbox.Len() != 1 {
		t.Errorf("inbox has %d items, want 1", inbox.Len())
	}
}

func TestTokenWaiterFirstDeliveryWins(t *testing.T) {
	w := NewTokenWaiter()
	w.Deliver("first")
	w.Deliver("second")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	token, err := w.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if token != "first" {
		t.Errorf("token = %q, want first", token)
	}
}
