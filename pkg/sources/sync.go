package sources

import (
	"log"

	"github.com/forest6511/sourcectl/pkg/audit"
)

// onSourceChanged recomputes the one-time-code cache slot for one source
// based on its current status:
//
//	Unlocked          scan the content tree and replace the slot wholesale
//	Locked            clear the slot
//	Pending, Errored  no mutation; caches never reflect a mid-transition source
//
// A scan failure on a single entry skips only that entry; the failure is
// logged and recorded as an audit event, and the remaining entries still
// land in the cache. If the content tree is missing entirely the old slot
// is retained (best effort).
func (r *Registry) onSourceChanged(id string) {
	r.mu.Lock()
	src, ok := r.sources[id]
	if !ok {
		// Removed before the callback ran; nothing to recompute.
		r.mu.Unlock()
		return
	}
	status := src.status
	var snap Snapshot
	if status == StatusUnlocked {
		snap = src.snapshot()
	}
	r.mu.Unlock()

	switch status {
	case StatusUnlocked:
		if snap.Content == nil {
			log.Printf("sources: content missing for unlocked source %s, keeping previous codes", id)
			r.auditError(audit.OpCacheRecomputeFailed, id, "CONTENT_MISSING", "content tree unavailable")
			return
		}
		entries, errs := scanCodes(id, snap.Content)
		for _, err := range errs {
			log.Printf("sources: %v", err)
			r.auditError(audit.OpCacheRecomputeFailed, id, "MALFORMED_CONTENT", err.Error())
		}
		r.codes.Replace(id, entries)

	case StatusLocked:
		r.codes.Clear(id)

	case StatusPending, StatusErrored:
		// No cache mutation while a source is mid-transition.
	}
}

// rebuildSearch hands the full list of currently unlocked sources to the
// search builder. This is deliberately a full rebuild: cost is proportional
// to the unlocked-source count, expected small, and it avoids incremental
// index bugs.
func (r *Registry) rebuildSearch() {
	unlocked := r.UnlockedContent()
	r.search.RebuildIndex(unlocked)
}
