package deeplink

import (
	"context"
	"strings"
	"sync"

	"github.com/forest6511/sourcectl/pkg/audit"
	"github.com/forest6511/sourcectl/pkg/otp"
)

// CallbackScheme is the application-internal scheme used for auth redirects,
// e.g. sourcectl://auth/dropbox/#access_token=...
const CallbackScheme = "sourcectl"

// Notifier surfaces user-visible router outcomes.
type Notifier interface {
	Notify(msg string)
	Warn(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}
func (nopNotifier) Warn(string)   {}

// Handler receives the fragment parameters of a recognized callback path.
type Handler func(params map[string]string)

// Router classifies incoming URIs by scheme and dispatches them. Callback
// URIs go to a handler registered for their normalized path; enrollment URIs
// go to the inbox; anything else draws a warning and mutates nothing.
//
// A URI delivered both as the process's initial URI and again as a live event
// is processed once: Handle drops a URI identical to the most recently
// processed one.
type Router struct {
	mu       sync.Mutex
	handlers map[string]Handler
	inbox    *Inbox
	notify   Notifier
	audit    *audit.Logger

	lastProcessed string
	initialDone   bool
}

// NewRouter creates a router feeding the given inbox. Notifier and audit
// logger may be nil.
func NewRouter(inbox *Inbox, notify Notifier, auditLog *audit.Logger) *Router {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Router{
		handlers: make(map[string]Handler),
		inbox:    inbox,
		notify:   notify,
		audit:    auditLog,
	}
}

// RegisterPath registers a handler for a normalized callback path such as
// "auth/dropbox". Registering the same path again replaces the handler.
func (r *Router) RegisterPath(path string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[normalizePath(path)] = fn
}

// HandleInitial processes the single URI the process may have been launched
// with, before live delivery starts. It runs at most once per router; later
// calls and empty URIs are ignored.
func (r *Router) HandleInitial(uri string) {
	r.mu.Lock()
	if r.initialDone {
		r.mu.Unlock()
		return
	}
	r.initialDone = true
	r.mu.Unlock()

	if uri == "" {
		return
	}
	r.dispatch(uri)
}

// Handle processes one live-delivered URI. A URI identical to the most
// recently processed one is treated as a re-delivery and dropped.
func (r *Router) Handle(uri string) {
	r.mu.Lock()
	if uri == r.lastProcessed {
		r.mu.Unlock()
		r.auditEvent(audit.OpDeepLinkDuplicate, uri)
		return
	}
	r.mu.Unlock()

	r.dispatch(uri)
}

func (r *Router) dispatch(uri string) {
	r.mu.Lock()
	r.lastProcessed = uri
	r.mu.Unlock()

	scheme, rest, ok := splitScheme(uri)
	if !ok {
		r.notify.Warn("link not recognized: " + uri)
		r.auditEvent(audit.OpDeepLinkRejected, uri)
		return
	}

	switch scheme {
	case CallbackScheme:
		r.dispatchCallback(rest)
		r.auditEvent(audit.OpDeepLinkReceived, uri)
	case otp.Scheme:
		if _, stored := r.inbox.Store(uri); stored {
			r.notify.Notify("one-time code received, choose an entry to attach it to")
			r.auditEvent(audit.OpDeepLinkReceived, uri)
		} else {
			r.auditEvent(audit.OpDeepLinkDuplicate, uri)
		}
	default:
		r.notify.Warn("link scheme not recognized: " + scheme)
		r.auditEvent(audit.OpDeepLinkRejected, uri)
	}
}

// dispatchCallback splits the scheme remainder into a path and fragment,
// parses the fragment into key/value pairs and invokes the handler registered
// for the normalized path. Unrecognized paths are dropped without a
// user-visible error.
func (r *Router) dispatchCallback(rest string) {
	path := rest
	fragment := ""
	if idx := strings.Index(rest, "#"); idx >= 0 {
		path = rest[:idx]
		fragment = rest[idx+1:]
	}

	r.mu.Lock()
	fn, ok := r.handlers[normalizePath(path)]
	r.mu.Unlock()
	if !ok {
		return
	}
	fn(parseFragment(fragment))
}

// parseFragment splits a fragment of the form k1=v1&k2=v2 into a map. On a
// duplicate key the last value wins. Pairs without '=' map to the empty
// string. No percent-decoding is performed.
func parseFragment(fragment string) map[string]string {
	params := make(map[string]string)
	if fragment == "" {
		return params
	}
	for _, pair := range strings.Split(fragment, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		params[key] = value
	}
	return params
}

func normalizePath(path string) string {
	return strings.Trim(path, "/")
}

// splitScheme peels a URI scheme off a "scheme://rest" string.
func splitScheme(uri string) (scheme, rest string, ok bool) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found || scheme == "" {
		return "", "", false
	}
	return strings.ToLower(scheme), rest, true
}

func (r *Router) auditEvent(op, uri string) {
	if r.audit == nil {
		return
	}
	_ = r.audit.LogSuccess(op, audit.SourceCLI, uri)
}

// TokenWaiter is a single-slot rendezvous for an auth callback token. The
// first delivery wins; later deliveries are dropped.
type TokenWaiter struct {
	once sync.Once
	ch   chan string
}

// NewTokenWaiter creates an empty waiter.
func NewTokenWaiter() *TokenWaiter {
	return &TokenWaiter{ch: make(chan string, 1)}
}

// Deliver hands the token to the waiter. Only the first call has any effect.
func (w *TokenWaiter) Deliver(token string) {
	w.once.Do(func() { w.ch <- token })
}

// Wait blocks until a token is delivered or the context is done.
func (w *TokenWaiter) Wait(ctx context.Context) (string, error) {
	select {
	case token := <-w.ch:
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
