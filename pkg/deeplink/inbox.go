// Package deeplink routes URIs delivered to the running process from the
// outside (OS-level redirect or inter-app handoff) to either a registered
// callback handler or the pending enrollment inbox.
package deeplink

import (
	"sync"

	"github.com/google/uuid"
)

// PendingCode is one buffered enrollment URI awaiting a target entry.
type PendingCode struct {
	ID  string
	URI string
}

// Inbox buffers one-time-code enrollment URIs received before the user has
// chosen a target entry. Storage is idempotent per exact URI and each item is
// claimed at most once. Nothing is persisted; unclaimed items vanish with the
// process.
type Inbox struct {
	mu    sync.Mutex
	byURI map[string]string // exact URI -> pending ID
	items map[string]string // pending ID -> URI
	order []string
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		byURI: make(map[string]string),
		items: make(map[string]string),
	}
}

// Store buffers an enrollment URI and returns its pending ID. Re-delivery of
// an identical URI returns the existing ID with stored=false instead of
// creating a second item.
func (i *Inbox) Store(uri string) (pendingID string, stored bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if id, ok := i.byURI[uri]; ok {
		return id, false
	}

	id := uuid.NewString()
	i.byURI[uri] = id
	i.items[id] = uri
	i.order = append(i.order, id)
	return id, true
}

// Claim removes and returns the URI for pendingID. The second result is false
// when the ID is unknown or was already claimed.
func (i *Inbox) Claim(pendingID string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	uri, ok := i.items[pendingID]
	if !ok {
		return "", false
	}
	delete(i.items, pendingID)
	delete(i.byURI, uri)
	for n, id := range i.order {
		if id == pendingID {
			i.order = append(i.order[:n], i.order[n+1:]...)
			break
		}
	}
	return uri, true
}

// List returns the unclaimed items in arrival order.
func (i *Inbox) List() []PendingCode {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]PendingCode, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, PendingCode{ID: id, URI: i.items[id]})
	}
	return out
}

// Len returns the number of unclaimed items.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}
