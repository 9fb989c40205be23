package sources

// attachWatcher subscribes the derived-cache recompute to a source's
// unlocked and updated events, exactly once per source ID. The archive's
// own event registry has no duplicate guard, so the watched set here is the
// only thing standing between a re-run of the attach pass and doubled
// callback invocations. Caller holds the registry mutex; subscription is
// synchronous, so the pass completes before the source's first unlock can
// be initiated.
func (r *Registry) attachWatcher(src *Source) {
	if _, ok := r.watched[src.id]; ok {
		return
	}
	if src.archive == nil {
		return
	}

	id := src.id
	src.archive.OnUnlocked(func() {
		r.onSourceChanged(id)
	})
	src.archive.OnUpdated(func() {
		r.onSourceChanged(id)
		r.rebuildSearch()
	})

	r.watched[src.id] = struct{}{}
}

// WatchedCount returns the number of sources with an attached watcher.
func (r *Registry) WatchedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watched)
}
