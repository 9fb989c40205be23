// Package sources coordinates multiple independently lockable vault sources
// and keeps the derived caches (one-time-code cache, search index) consistent
// with the unlocked/locked state and content of each source.
package sources

import (
	"encoding/json"
	"fmt"

	"github.com/forest6511/sourcectl/pkg/vault"
)

// Status is a source's lifecycle state.
type Status int

const (
	StatusLocked Status = iota
	StatusUnlocked
	StatusPending
	StatusErrored
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusLocked:
		return "locked"
	case StatusUnlocked:
		return "unlocked"
	case StatusPending:
		return "pending"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Archive is the engine handle the registry drives. *vault.Archive satisfies
// it; tests substitute fakes.
type Archive interface {
	Exists() bool
	Init(masterPassword string) error
	Unlock(masterPassword string) error
	Lock()
	IsLocked() bool
	Content() *vault.Group
	Save() error
	Reload() error
	TestMasterPassword(masterPassword string) (bool, error)
	OnUnlocked(fn func())
	OnUpdated(fn func())
	DBPath() string
}

// ArchiveFactory materializes an engine handle from a source's backend type
// and persisted credentials blob.
type ArchiveFactory func(sourceType string, credentials []byte) (Archive, error)

// Credentials is the blob format used by the default factory: it locates a
// local archive directory. Remote backends would carry their own shape; the
// registry never looks inside the blob.
type Credentials struct {
	Path string `json:"path"`
}

// EncodeCredentials marshals credentials for persistence.
func EncodeCredentials(c Credentials) ([]byte, error) {
	blob, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("sources: failed to encode credentials: %w", err)
	}
	return blob, nil
}

// DefaultFactory opens file-backed archives from a Credentials blob.
func DefaultFactory(sourceType string, credentials []byte) (Archive, error) {
	var c Credentials
	if err := json.Unmarshal(credentials, &c); err != nil {
		return nil, fmt.Errorf("sources: failed to decode credentials: %w", err)
	}
	if c.Path == "" {
		return nil, fmt.Errorf("sources: credentials missing archive path")
	}
	return vault.New(c.Path), nil
}

// Descriptor describes a source to add.
type Descriptor struct {
	Name        string
	Type        string // backend-type tag, e.g. "file"
	Credentials []byte // opaque blob interpreted by the archive factory

	// InitialiseRemote marks an "add new" operation: the backing store is
	// initialized on first unlock instead of being expected to exist.
	InitialiseRemote bool
}

// Source is one registered vault source. All fields are guarded by the
// registry mutex; snapshots are handed out instead of the struct itself.
type Source struct {
	id          string
	name        string
	sourceType  string
	credentials []byte
	status      Status
	initRemote  bool

	archive Archive

	// transitioning is set while an unlock or lock is in flight so a source
	// never processes two transitions concurrently.
	transitioning bool
}

// Snapshot is a point-in-time view of a source. Content is non-nil only
// while the source is Unlocked.
type Snapshot struct {
	ID      string
	Name    string
	Type    string
	Status  Status
	Content *vault.Group

	// NeedsInit reports that the backing store will be created on the next
	// unlock.
	NeedsInit bool
}

func (s *Source) snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		Name:      s.name,
		Type:      s.sourceType,
		Status:    s.status,
		NeedsInit: s.initRemote,
	}
	if s.status == StatusUnlocked && s.archive != nil {
		snap.Content = s.archive.Content()
	}
	return snap
}
