package statushook

import (
	"fmt"
	"sync"
)

// DefaultFallbackSpan is the range length assumed for a module whose size the
// host does not report.
//
// It is deliberately large: every address a module can own must fall inside
// its range, at the cost of claiming addresses of modules loaded shortly
// after it. See ModuleRegistry.Overlaps.
const DefaultFallbackSpan = 0xfffffff

// ModuleInfo is what the host reports when it loads a module.
type ModuleInfo struct {
	Name string
	Base uintptr
	// Size of the module's image, or 0 if the host cannot tell.
	Size uintptr
}

// ModuleRange is the address range owned by a loaded module. Both bounds are
// exclusive when classifying addresses.
type ModuleRange struct {
	Name  string
	Start uintptr
	End   uintptr

	// Exact is false when End was derived from the fallback span.
	Exact bool
}

// contains uses exclusive bounds on both ends.
func (r ModuleRange) contains(addr uintptr) bool {
	return addr > r.Start && addr < r.End
}

func (r ModuleRange) overlaps(o ModuleRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r ModuleRange) String() string {
	return fmt.Sprintf("%s: 0x%x - 0x%x", r.Name, r.Start, r.End)
}

// ModuleRegistry maps module names to the address ranges they occupy.
// Ranges are never removed.
type ModuleRegistry struct {
	mu     sync.Mutex
	ranges []ModuleRange // insertion order
	byName map[string]int
	span   uintptr
}

// NewModuleRegistry returns an empty registry. fallbackSpan is used for
// modules recorded without a size; 0 selects DefaultFallbackSpan.
func NewModuleRegistry(fallbackSpan uintptr) *ModuleRegistry {
	if fallbackSpan == 0 {
		fallbackSpan = DefaultFallbackSpan
	}
	return &ModuleRegistry{
		byName: map[string]int{},
		span:   fallbackSpan,
	}
}

// Record inserts the range of a module, or replaces the bounds of an already
// known one. A size of 0 means unknown. updated reports whether name was
// already present.
func (r *ModuleRegistry) Record(name string, base, size uintptr) (rng ModuleRange, updated bool) {
	rng = ModuleRange{Name: name, Start: base, End: base + size, Exact: true}
	if size == 0 {
		rng.End = base + r.span
		rng.Exact = false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byName[name]; ok {
		r.ranges[i] = rng
		return rng, true
	}

	r.byName[name] = len(r.ranges)
	r.ranges = append(r.ranges, rng)
	return rng, false
}

// Lookup returns the owner of addr: the first recorded range that strictly
// contains it. Ranges are assumed not to overlap, so no further ranges are
// checked.
func (r *ModuleRegistry) Lookup(addr uintptr) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rng := range r.ranges {
		if rng.contains(addr) {
			return rng.Name, true
		}
	}
	return "", false
}

// Get returns the range recorded for name.
func (r *ModuleRegistry) Get(name string) (ModuleRange, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		return ModuleRange{}, false
	}
	return r.ranges[i], true
}

// Overlaps returns the names of other modules whose ranges intersect the
// range of name. Lookup gives such addresses to whichever module was
// recorded first.
func (r *ModuleRegistry) Overlaps(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byName[name]
	if !ok {
		return nil
	}

	var names []string
	for j, rng := range r.ranges {
		if j != i && rng.overlaps(r.ranges[i]) {
			names = append(names, rng.Name)
		}
	}
	return names
}

// Ranges returns a copy of all recorded ranges in insertion order.
func (r *ModuleRegistry) Ranges() []ModuleRange {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ModuleRange, len(r.ranges))
	copy(out, r.ranges)
	return out
}
