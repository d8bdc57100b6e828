package statushook

import (
	"slices"
	"sync"

	"github.com/pboyd/statushook/native"
)

// StatusFunc is a status handler. It runs for the agent the handler was
// installed on; ctx is the host's per-call context word.
//
// A StatusFunc registered as an override is handed to the host as a raw code
// address, so it must be a top-level function or a closure that captures
// nothing.
type StatusFunc func(agent native.Agent, ctx uint64) Value

type statusKey struct {
	kind   int32
	script int32
}

type handlerEntry struct {
	key      statusKey
	override StatusFunc
	handle   native.Handle

	// original is 0 until the shim sees the host install a handler for key.
	original native.Handle
}

// EntryInfo describes a registered override.
type EntryInfo struct {
	Owner      string
	StatusKind int32
	SubScript  int32
	Override   native.Handle
	Original   native.Handle

	// Captured is false while the original is still the stub.
	Captured bool

	// Shadowed is true when an earlier entry of the same owner has the same
	// key. Shadowed entries are never used.
	Shadowed bool
}

// HandlerRegistry holds the overrides of every owner in registration order.
type HandlerRegistry struct {
	mu     sync.Mutex
	owners map[string][]*handlerEntry
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{owners: map[string][]*handlerEntry{}}
}

// Register appends an override for (owner, kind, script). Duplicates are kept;
// shadowed reports that an earlier entry already claims the key, which makes
// this one unreachable.
func (r *HandlerRegistry) Register(owner string, kind, script int32, fn StatusFunc) (shadowed bool) {
	e := &handlerEntry{
		key:      statusKey{kind: kind, script: script},
		override: fn,
		handle:   native.HandleOf(fn),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	shadowed = r.find(owner, e.key) != nil
	r.owners[owner] = append(r.owners[owner], e)
	return shadowed
}

// find returns the first entry of owner matching key. r.mu must be held.
func (r *HandlerRegistry) find(owner string, key statusKey) *handlerEntry {
	for _, e := range r.owners[owner] {
		if e.key == key {
			return e
		}
	}
	return nil
}

// capture records original as the displaced handler of the first entry
// matching (owner, key) and returns the override to install in its place.
// ok is false when owner has no matching entry.
func (r *HandlerRegistry) capture(owner string, key statusKey, original native.Handle) (override native.Handle, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.find(owner, key)
	if e == nil {
		return 0, false
	}
	e.original = original
	return e.handle, true
}

// original returns the captured original of the first entry matching
// (owner, key). known is false when owner has no entries at all.
func (r *HandlerRegistry) original(owner string, key statusKey) (h native.Handle, known, matched bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known = r.owners[owner]; !known {
		return 0, false, false
	}
	e := r.find(owner, key)
	if e == nil {
		return 0, true, false
	}
	return e.original, true, true
}

// Len returns the number of entries registered for owner, shadowed ones
// included.
func (r *HandlerRegistry) Len(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.owners[owner])
}

// Owners returns the owners with at least one entry, sorted.
func (r *HandlerRegistry) Owners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := make([]string, 0, len(r.owners))
	for owner := range r.owners {
		owners = append(owners, owner)
	}
	slices.Sort(owners)
	return owners
}

// Entries returns a snapshot of owner's entries in registration order.
func (r *HandlerRegistry) Entries(owner string) []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.owners[owner]
	out := make([]EntryInfo, len(entries))
	seen := map[statusKey]bool{}
	for i, e := range entries {
		out[i] = EntryInfo{
			Owner:      owner,
			StatusKind: e.key.kind,
			SubScript:  e.key.script,
			Override:   e.handle,
			Original:   e.original,
			Captured:   e.original != 0,
			Shadowed:   seen[e.key],
		}
		seen[e.key] = true
	}
	return out
}
