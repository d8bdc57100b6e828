package host

import (
	"fmt"
	"sync"

	"github.com/pboyd/statushook"
	"github.com/pboyd/statushook/internal/redefine"
)

// Module is a loadable unit of code.
type Module struct {
	Name string

	// Funcs spans the module's text: its range runs from the lowest entry to
	// the end of the highest function. A module without Funcs reports a zero
	// base.
	Funcs []any

	// Init installs the module's status handlers on a fighter.
	Init func(f *Fighter)

	// HideSize makes the loader report an unknown size, like hosts that
	// only know a module's base.
	HideSize bool
}

// Info computes what the loader reports for m.
func (m Module) Info() (statushook.ModuleInfo, error) {
	info := statushook.ModuleInfo{Name: m.Name}
	if len(m.Funcs) == 0 {
		return info, nil
	}

	var lo, hi uintptr
	for i, fn := range m.Funcs {
		start, end, err := redefine.Bounds(fn)
		if err != nil {
			return info, fmt.Errorf("module %s: func %d: %w", m.Name, i, err)
		}
		if lo == 0 || start < lo {
			lo = start
		}
		if end > hi {
			hi = end
		}
	}

	// There is no image header in front of the first function, so the base
	// is reported one byte early. Range bounds are exclusive.
	info.Base = lo - 1
	if !m.HideSize {
		info.Size = hi - info.Base
	}
	return info, nil
}

// Loader loads modules and tells observers about it.
type Loader struct {
	mu        sync.Mutex
	observers []func(statushook.ModuleInfo)
	loaded    map[string]statushook.ModuleInfo
}

// NewLoader returns a loader with no observers.
func NewLoader() *Loader {
	return &Loader{loaded: map[string]statushook.ModuleInfo{}}
}

// Observe registers fn to be called for every load, reloads included.
func (l *Loader) Observe(fn func(statushook.ModuleInfo)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.observers = append(l.observers, fn)
}

// Load loads m and notifies observers. Observers run without the loader's
// lock held, so they may load further modules.
func (l *Loader) Load(m Module) (statushook.ModuleInfo, error) {
	info, err := m.Info()
	if err != nil {
		return info, err
	}

	l.mu.Lock()
	l.loaded[m.Name] = info
	observers := make([]func(statushook.ModuleInfo), len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(info)
	}
	return info, nil
}

// Loaded returns what was last reported for name.
func (l *Loader) Loaded(name string) (statushook.ModuleInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.loaded[name]
	return info, ok
}
