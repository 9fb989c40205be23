package sources

import (
	"fmt"
	"sync"

	"github.com/forest6511/sourcectl/pkg/otp"
	"github.com/forest6511/sourcectl/pkg/vault"
)

// CodeEntry is one one-time-code descriptor extracted from an unlocked
// source's content tree.
type CodeEntry struct {
	SourceID    string
	EntryID     string
	PropertyKey string
	EntryTitle  string
	CodeURI     string
}

// CodeCache is the process-wide store of one-time-code descriptors, keyed by
// source ID. A source's slot is replaced wholesale on every recompute and
// cleared when the source locks or is removed.
type CodeCache struct {
	mu      sync.RWMutex
	entries map[string][]CodeEntry
}

// NewCodeCache creates an empty cache.
func NewCodeCache() *CodeCache {
	return &CodeCache{entries: make(map[string][]CodeEntry)}
}

// Replace swaps the slot for sourceID with the given sequence. An empty
// sequence still claims the slot: the source is known and has no codes.
func (c *CodeCache) Replace(sourceID string, entries []CodeEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sourceID] = entries
}

// Clear removes the slot for sourceID.
func (c *CodeCache) Clear(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sourceID)
}

// CodesFor returns the slot for sourceID. The second result reports whether
// the source has a slot at all.
func (c *CodeCache) CodesFor(sourceID string) ([]CodeEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.entries[sourceID]
	if !ok {
		return nil, false
	}
	out := make([]CodeEntry, len(entries))
	copy(out, entries)
	return out, true
}

// All returns a copy of every slot.
func (c *CodeCache) All() map[string][]CodeEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]CodeEntry, len(c.entries))
	for id, entries := range c.entries {
		cp := make([]CodeEntry, len(entries))
		copy(cp, entries)
		out[id] = cp
	}
	return out
}

// scanCodes walks an unlocked source's content tree and extracts a CodeEntry
// for every property of kind one-time-code whose value parses as an
// enrollment URI. A malformed property fails only its own entry; scanning
// continues with the remaining entries and the per-entry errors are returned
// alongside the good results.
func scanCodes(sourceID string, root *vault.Group) ([]CodeEntry, []error) {
	entries := []CodeEntry{}
	var errs []error

	for _, e := range root.AllEntries() {
		for _, p := range e.Properties {
			if p.Kind != vault.KindOneTimeCode {
				continue
			}
			if _, err := otp.Parse(p.Value); err != nil {
				errs = append(errs, fmt.Errorf("%w: entry %q property %q: %v",
					ErrMalformedContent, e.ID, p.Key, err))
				continue
			}
			entries = append(entries, CodeEntry{
				SourceID:    sourceID,
				EntryID:     e.ID,
				PropertyKey: p.Key,
				EntryTitle:  e.Title,
				CodeURI:     p.Value,
			})
		}
	}

	return entries, errs
}
