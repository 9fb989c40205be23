package vault

import (
	"github.com/google/uuid"
)

// PropertyKind classifies what an entry property holds. The archive does not
// interpret values itself; consumers dispatch on the kind.
type PropertyKind string

// Well-known property kinds.
const (
	KindText        PropertyKind = "text"
	KindPassword    PropertyKind = "password"
	KindURL         PropertyKind = "url"
	KindOneTimeCode PropertyKind = "otp"
)

// Property is a single named value on an entry.
type Property struct {
	Key   string       `json:"key"`
	Value string       `json:"value"`
	Kind  PropertyKind `json:"kind"`
}

// Entry is a credential record inside a group.
type Entry struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Properties []Property `json:"properties,omitempty"`
}

// Group is a node in the decrypted content tree. The root group has an empty
// title and holds the whole archive.
type Group struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Groups  []*Group `json:"groups,omitempty"`
	Entries []*Entry `json:"entries,omitempty"`
}

// NewGroup creates a group with a fresh ID.
func NewGroup(title string) *Group {
	return &Group{
		ID:    uuid.NewString(),
		Title: title,
	}
}

// NewEntry creates an entry with a fresh ID.
func NewEntry(title string) *Entry {
	return &Entry{
		ID:    uuid.NewString(),
		Title: title,
	}
}

// SetProperty sets or replaces a property by key.
func (e *Entry) SetProperty(key, value string, kind PropertyKind) {
	for i := range e.Properties {
		if e.Properties[i].Key == key {
			e.Properties[i].Value = value
			e.Properties[i].Kind = kind
			return
		}
	}
	e.Properties = append(e.Properties, Property{Key: key, Value: value, Kind: kind})
}

// Property returns the property with the given key, or nil.
func (e *Entry) Property(key string) *Property {
	for i := range e.Properties {
		if e.Properties[i].Key == key {
			return &e.Properties[i]
		}
	}
	return nil
}

// AddGroup appends a subgroup.
func (g *Group) AddGroup(child *Group) {
	g.Groups = append(g.Groups, child)
}

// AddEntry appends an entry to the group.
func (g *Group) AddEntry(e *Entry) {
	g.Entries = append(g.Entries, e)
}

// AllEntries returns every entry in the subtree, depth first. Entry order is
// stable: a group's own entries come before those of its subgroups.
func (g *Group) AllEntries() []*Entry {
	var entries []*Entry
	entries = append(entries, g.Entries...)
	for _, child := range g.Groups {
		entries = append(entries, child.AllEntries()...)
	}
	return entries
}

// FindEntry searches the subtree for an entry by ID.
func (g *Group) FindEntry(id string) *Entry {
	for _, e := range g.Entries {
		if e.ID == id {
			return e
		}
	}
	for _, child := range g.Groups {
		if e := child.FindEntry(id); e != nil {
			return e
		}
	}
	return nil
}

// FindEntryByTitle searches the subtree for the first entry with the given
// title, in AllEntries order.
func (g *Group) FindEntryByTitle(title string) *Entry {
	for _, e := range g.AllEntries() {
		if e.Title == title {
			return e
		}
	}
	return nil
}

// FindGroup searches the subtree for a group by ID, including the receiver.
func (g *Group) FindGroup(id string) *Group {
	if g.ID == id {
		return g
	}
	for _, child := range g.Groups {
		if found := child.FindGroup(id); found != nil {
			return found
		}
	}
	return nil
}

// RemoveEntry removes an entry by ID anywhere in the subtree. Returns true
// if an entry was removed.
func (g *Group) RemoveEntry(id string) bool {
	for i, e := range g.Entries {
		if e.ID == id {
			g.Entries = append(g.Entries[:i], g.Entries[i+1:]...)
			return true
		}
	}
	for _, child := range g.Groups {
		if child.RemoveEntry(id) {
			return true
		}
	}
	return false
}
