// Package search builds a process-wide search index over the entries of
// currently unlocked sources. The index is rebuilt wholesale; it never
// updates incrementally.
package search

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/sourcectl/pkg/vault"
)

// SourceContent is one unlocked source handed to the builder: its identity
// plus the decrypted content tree.
type SourceContent struct {
	SourceID   string
	SourceName string
	Root       *vault.Group
}

// Builder rebuilds a search index from the full list of unlocked sources.
// Implementations must treat each call as a complete replacement.
type Builder interface {
	RebuildIndex(unlocked []SourceContent)
}

// Result is a single search hit.
type Result struct {
	SourceID   string
	SourceName string
	EntryID    string
	EntryTitle string
}

// Index is an in-memory Builder implementation with substring lookup over
// case-folded, NFKC-normalized entry titles and non-sensitive property
// values.
type Index struct {
	mu    sync.RWMutex
	items []indexItem
}

type indexItem struct {
	result Result
	terms  string // normalized searchable text
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

// RebuildIndex replaces the index contents with the given sources.
func (ix *Index) RebuildIndex(unlocked []SourceContent) {
	var items []indexItem
	for _, src := range unlocked {
		if src.Root == nil {
			continue
		}
		for _, entry := range src.Root.AllEntries() {
			items = append(items, indexItem{
				result: Result{
					SourceID:   src.SourceID,
					SourceName: src.SourceName,
					EntryID:    entry.ID,
					EntryTitle: entry.Title,
				},
				terms: searchableText(entry),
			})
		}
	}

	ix.mu.Lock()
	ix.items = items
	ix.mu.Unlock()
}

// Lookup returns all entries whose searchable text contains the query.
// Results are ordered by source name, then entry title.
func (ix *Index) Lookup(query string) []Result {
	needle := normalize(query)
	if needle == "" {
		return nil
	}

	ix.mu.RLock()
	var results []Result
	for _, item := range ix.items {
		if strings.Contains(item.terms, needle) {
			results = append(results, item.result)
		}
	}
	ix.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].SourceName != results[j].SourceName {
			return results[i].SourceName < results[j].SourceName
		}
		return results[i].EntryTitle < results[j].EntryTitle
	})
	return results
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

var folder = cases.Fold()

func normalize(s string) string {
	return folder.String(norm.NFKC.String(s))
}

// searchableText concatenates the entry title with property values that are
// safe to index. Password and one-time-code values never enter the index.
func searchableText(entry *vault.Entry) string {
	var b strings.Builder
	b.WriteString(normalize(entry.Title))
	for _, p := range entry.Properties {
		if p.Kind == vault.KindPassword || p.Kind == vault.KindOneTimeCode {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(normalize(p.Value))
	}
	return b.String()
}
