package sources

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/forest6511/sourcectl/internal/storage"
	"github.com/forest6511/sourcectl/pkg/audit"
	"github.com/forest6511/sourcectl/pkg/search"
	"github.com/forest6511/sourcectl/pkg/vault"
)

// MetadataStore persists source metadata between runs. *storage.Store
// satisfies it.
type MetadataStore interface {
	Save(rec storage.Record) error
	List() ([]storage.Record, error)
	Delete(id string) error
	Rename(id, name string) error
}

// Options configures a Registry. Store is required; everything else has a
// working default.
type Options struct {
	Store   MetadataStore
	Factory ArchiveFactory // default: DefaultFactory
	Search  search.Builder // default: index rebuilds are dropped
	Notify  Notifier       // default: stderr
	Audit   *audit.Logger  // optional
}

// Registry holds the ordered collection of known sources, their watch state
// and the derived one-time-code cache. All mutating operations are
// serialized by a single mutex held only across the synchronous portion of
// each mutation; unlock, save, reload and index rebuilds run outside it.
type Registry struct {
	mu      sync.Mutex
	store   MetadataStore
	factory ArchiveFactory
	search  search.Builder
	notify  Notifier
	audit   *audit.Logger

	sources map[string]*Source
	order   []string

	// watched is the set of source IDs that already have their archive
	// callbacks attached. Attach runs at most once per ID; removal evicts
	// the ID so a reused ID would be treated as fresh.
	watched map[string]struct{}

	codes *CodeCache
}

type noopBuilder struct{}

func (noopBuilder) RebuildIndex([]search.SourceContent) {}

// NewRegistry creates an empty registry. Call Rehydrate to load persisted
// sources.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("sources: metadata store is required")
	}
	if opts.Factory == nil {
		opts.Factory = DefaultFactory
	}
	if opts.Search == nil {
		opts.Search = noopBuilder{}
	}
	if opts.Notify == nil {
		opts.Notify = StderrNotifier{}
	}

	return &Registry{
		store:   opts.Store,
		factory: opts.Factory,
		search:  opts.Search,
		notify:  opts.Notify,
		audit:   opts.Audit,
		sources: make(map[string]*Source),
		watched: make(map[string]struct{}),
		codes:   NewCodeCache(),
	}, nil
}

// Codes returns the registry's one-time-code cache.
func (r *Registry) Codes() *CodeCache {
	return r.codes
}

// AddSource registers a new source and returns its generated ID. Duplicate
// display names are permitted. The source is constructed in Pending status
// and settles at Locked once its metadata is persisted and its watcher is
// attached; InitialiseRemote defers creation of the backing store to the
// first unlock.
func (r *Registry) AddSource(desc Descriptor) (string, error) {
	if desc.Name == "" {
		return "", fmt.Errorf("sources: source name must not be empty")
	}

	archive, err := r.factory(desc.Type, desc.Credentials)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	src := &Source{
		id:          id,
		name:        desc.Name,
		sourceType:  desc.Type,
		credentials: desc.Credentials,
		status:      StatusPending,
		initRemote:  desc.InitialiseRemote,
		archive:     archive,
	}

	r.mu.Lock()
	r.sources[id] = src
	r.order = append(r.order, id)
	position := len(r.order) - 1
	r.attachWatcher(src)
	r.mu.Unlock()

	// Persist outside the lock; on failure the source is backed out.
	err = r.store.Save(storage.Record{
		ID:          id,
		Name:        desc.Name,
		Type:        desc.Type,
		Credentials: desc.Credentials,
		Position:    position,
		InitRemote:  desc.InitialiseRemote,
	})
	if err != nil {
		r.mu.Lock()
		r.removeLocked(id)
		r.mu.Unlock()
		return "", err
	}

	r.mu.Lock()
	src.status = StatusLocked
	r.mu.Unlock()

	r.auditSuccess(audit.OpSourceAdd, id)
	r.rebuildSearch()

	return id, nil
}

// RemoveSource removes a source, evicts its watch state and purges its
// code-cache slot. The remaining unlocked sources are re-indexed.
func (r *Registry) RemoveSource(id string) error {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	archive := src.archive
	wasUnlocked := src.status == StatusUnlocked
	r.removeLocked(id)
	r.mu.Unlock()

	if wasUnlocked && archive != nil {
		archive.Lock()
	}
	r.codes.Clear(id)

	if err := r.store.Delete(id); err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		r.notify.Warn(fmt.Sprintf("failed to delete source metadata: %v", err))
	}

	r.auditSuccess(audit.OpSourceRemove, id)
	r.rebuildSearch()

	return nil
}

// positionLocked returns a source's index in registry order. Caller holds
// the mutex.
func (r *Registry) positionLocked(id string) int {
	for i, oid := range r.order {
		if oid == id {
			return i
		}
	}
	return 0
}

// removeLocked removes a source from the in-memory collection. Caller holds
// the mutex.
func (r *Registry) removeLocked(id string) {
	delete(r.sources, id)
	delete(r.watched, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Rehydrate loads persisted source metadata. Every loaded source begins
// Locked. Calling it twice does not duplicate entries.
func (r *Registry) Rehydrate() error {
	records, err := r.store.List()
	if err != nil {
		return err
	}

	r.mu.Lock()
	added := 0
	for _, rec := range records {
		if _, exists := r.sources[rec.ID]; exists {
			continue
		}
		archive, err := r.factory(rec.Type, rec.Credentials)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		src := &Source{
			id:          rec.ID,
			name:        rec.Name,
			sourceType:  rec.Type,
			credentials: rec.Credentials,
			status:      StatusLocked,
			initRemote:  rec.InitRemote,
			archive:     archive,
		}
		r.sources[rec.ID] = src
		r.order = append(r.order, rec.ID)
		r.attachWatcher(src)
		added++
	}
	r.mu.Unlock()

	if added > 0 {
		r.auditSuccess(audit.OpSourceRehydrate, "")
		r.rebuildSearch()
	}

	return nil
}

// SourceForID returns a snapshot of the source, or ErrNotFound.
func (r *Registry) SourceForID(id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return src.snapshot(), nil
}

// Sources returns snapshots of all sources in registry order.
func (r *Registry) Sources() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		snaps = append(snaps, r.sources[id].snapshot())
	}
	return snaps
}

// Unlock unlocks a source with the given master password. The source is
// Pending for the duration of the attempt and excluded from cache
// recomputation; on failure it returns to Locked and the authentication
// error is surfaced to the caller.
func (r *Registry) Unlock(id, masterPassword string) error {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if src.status != StatusLocked || src.transitioning {
		status := src.status
		r.mu.Unlock()
		return fmt.Errorf("%w: source is %s", ErrInvalidState, status)
	}
	src.status = StatusPending
	src.transitioning = true
	archive := src.archive
	initRemote := src.initRemote
	r.mu.Unlock()

	// Suspension point: everything below may block on the engine.
	var err error
	if initRemote && !archive.Exists() {
		err = archive.Init(masterPassword)
	}
	if err == nil {
		err = archive.Unlock(masterPassword)
	}

	r.mu.Lock()
	src, ok = r.sources[id]
	if !ok {
		// Removed while the unlock was in flight. Release whatever the
		// engine acquired and walk away without touching caches.
		r.mu.Unlock()
		if err == nil {
			archive.Lock()
		}
		return ErrNotFound
	}
	src.transitioning = false

	if err != nil {
		src.status = StatusLocked
		r.mu.Unlock()
		if errors.Is(err, vault.ErrInvalidPassword) {
			r.auditError(audit.OpSourceUnlockFailed, id, "AUTH_FAILED", "invalid master password")
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		r.auditError(audit.OpSourceUnlockFailed, id, "REMOTE_UNAVAILABLE", err.Error())
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	src.status = StatusUnlocked
	initConsumed := src.initRemote
	src.initRemote = false
	var rec storage.Record
	if initConsumed {
		rec = storage.Record{
			ID:          src.id,
			Name:        src.name,
			Type:        src.sourceType,
			Credentials: src.credentials,
			Position:    r.positionLocked(id),
		}
	}
	r.mu.Unlock()

	// The backing store now exists; clear the persisted mark so the next
	// process does not try to initialize it again.
	if initConsumed {
		if err := r.store.Save(rec); err != nil {
			r.notify.Warn(fmt.Sprintf("failed to update source metadata: %v", err))
		}
	}

	r.auditSuccess(audit.OpSourceUnlock, id)
	r.onSourceChanged(id)
	r.rebuildSearch()

	return nil
}

// Lock transitions an unlocked source back to Locked, releasing its content
// and invalidating its derived caches.
func (r *Registry) Lock(id string) error {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if src.status != StatusUnlocked || src.transitioning {
		status := src.status
		r.mu.Unlock()
		return fmt.Errorf("%w: source is %s", ErrInvalidState, status)
	}
	src.transitioning = true
	archive := src.archive
	r.mu.Unlock()

	archive.Lock()

	r.mu.Lock()
	if src, ok := r.sources[id]; ok {
		src.transitioning = false
		src.status = StatusLocked
	}
	r.mu.Unlock()

	r.auditSuccess(audit.OpSourceLock, id)
	r.onSourceChanged(id)
	r.rebuildSearch()

	return nil
}

// Rename changes a source's display name. No cache side effects.
func (r *Registry) Rename(id, newName string) error {
	if newName == "" {
		return fmt.Errorf("sources: source name must not be empty")
	}

	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	src.name = newName
	r.mu.Unlock()

	if err := r.store.Rename(id, newName); err != nil {
		return err
	}
	r.auditSuccess(audit.OpSourceRename, id)
	return nil
}

// VerifyPassword reports whether the password unlocks the source without
// changing its state. No cache side effects.
func (r *Registry) VerifyPassword(id, masterPassword string) (bool, error) {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return false, ErrNotFound
	}
	archive := src.archive
	r.mu.Unlock()

	return archive.TestMasterPassword(masterPassword)
}

// EditContent runs fn against the content tree of an unlocked source and
// saves the result. The save fires the source's updated event, which flows
// through the normal derived-cache recompute.
func (r *Registry) EditContent(id string, fn func(root *vault.Group) error) error {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if src.status != StatusUnlocked {
		status := src.status
		r.mu.Unlock()
		return fmt.Errorf("%w: source is %s", ErrInvalidState, status)
	}
	archive := src.archive
	r.mu.Unlock()

	root := archive.Content()
	if root == nil {
		return fmt.Errorf("%w: content not available", ErrInvalidState)
	}
	if err := fn(root); err != nil {
		return err
	}
	return archive.Save()
}

// NotifyExternalUpdate reloads a source whose backing file changed
// underneath us. A reload failure is surfaced as a non-fatal notification;
// the source keeps its status and the last good in-memory state.
func (r *Registry) NotifyExternalUpdate(id string) {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok || src.status != StatusUnlocked || src.transitioning {
		r.mu.Unlock()
		return
	}
	name := src.name
	archive := src.archive
	r.mu.Unlock()

	if err := archive.Reload(); err != nil {
		r.notify.Warn(fmt.Sprintf("auto-update failed for source %q: %v", name, err))
		r.auditError(audit.OpCacheRecomputeFailed, id, "AUTO_UPDATE_FAILED", err.Error())
	}
	// On success the archive fires its updated event, which drives the
	// recompute through the attached watcher.
}

// ArchiveDir returns the directory holding a source's archive files, for
// callers that watch the backing store for external updates.
func (r *Registry) ArchiveDir(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return "", ErrNotFound
	}
	if src.archive == nil || src.archive.DBPath() == "" {
		return "", fmt.Errorf("%w: source has no local archive", ErrInvalidState)
	}
	return filepath.Dir(src.archive.DBPath()), nil
}

// UnlockedContent returns the content of every unlocked source, in registry
// order. Used by the search rebuild and the watcher wiring.
func (r *Registry) UnlockedContent() []search.SourceContent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlockedContentLocked()
}

func (r *Registry) unlockedContentLocked() []search.SourceContent {
	var unlocked []search.SourceContent
	for _, id := range r.order {
		src := r.sources[id]
		if src.status != StatusUnlocked || src.archive == nil {
			continue
		}
		unlocked = append(unlocked, search.SourceContent{
			SourceID:   src.id,
			SourceName: src.name,
			Root:       src.archive.Content(),
		})
	}
	return unlocked
}

func (r *Registry) auditSuccess(op, subjectID string) {
	if r.audit == nil {
		return
	}
	_ = r.audit.LogSuccess(op, audit.SourceCLI, subjectID)
}

func (r *Registry) auditError(op, subjectID, code, msg string) {
	if r.audit == nil {
		return
	}
	_ = r.audit.LogError(op, audit.SourceCLI, subjectID, code, msg)
}
