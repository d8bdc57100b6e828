// Package host is a small stand-in for the process statushook is loaded
// into. Fighters carry a status table, modules fill it through the native
// entry point SetStatusFunc, and a Loader reports every module it loads.
package host

import (
	"sync/atomic"

	"github.com/pboyd/statushook"
	"github.com/pboyd/statushook/native"
)

// Table dimensions. Handlers installed outside them are dropped.
const (
	MaxStatusKinds = 64
	MaxSubScripts  = 4
)

// Fighter is an agent: the object status handlers run for.
type Fighter struct {
	Name  string
	table [MaxStatusKinds * MaxSubScripts]uintptr
}

// NewFighter returns a fighter with an empty status table.
func NewFighter(name string) *Fighter {
	return &Fighter{Name: name}
}

// Agent returns the handle modules pass to SetStatusFunc.
func (f *Fighter) Agent() native.Agent {
	return native.AgentOf(f)
}

// SetStatusFunc installs fn as the handler for (statusKind, subScript) on the
// fighter behind agent. Modules call it while they initialize.
//
// Once statushook is installed this function only runs as a relocated copy.
// It must stay a nosplit leaf: no calls, no allocation, no blocking.
//
//go:noinline
//go:nosplit
func SetStatusFunc(agent native.Agent, statusKind, subScript *statushook.Value, fn native.Handle) {
	f := native.AgentPtr[Fighter](agent)
	if f == nil || statusKind == nil || subScript == nil {
		return
	}

	k, s := statusKind.Int(), subScript.Int()
	if k < 0 || k >= MaxStatusKinds || s < 0 || s >= MaxSubScripts {
		return
	}

	atomic.StoreUintptr(&f.table[k*MaxSubScripts+s], uintptr(fn))
}

// Set is how module code calls the entry point.
func Set(f *Fighter, statusKind, subScript int32, fn statushook.StatusFunc) {
	k, s := statushook.NewInt(statusKind), statushook.NewInt(subScript)
	SetStatusFunc(f.Agent(), &k, &s, native.HandleOf(fn))
}

// Handler returns the handler installed for (statusKind, subScript), or 0.
func (f *Fighter) Handler(statusKind, subScript int32) native.Handle {
	if statusKind < 0 || statusKind >= MaxStatusKinds || subScript < 0 || subScript >= MaxSubScripts {
		return 0
	}
	return native.Handle(atomic.LoadUintptr(&f.table[int(statusKind)*MaxSubScripts+int(subScript)]))
}

// RunStatus calls the installed handler. ok is false when none is installed.
func (f *Fighter) RunStatus(statusKind, subScript int32, ctx uint64) (result statushook.Value, ok bool) {
	h := f.Handler(statusKind, subScript)
	if h == 0 {
		return statushook.Value{}, false
	}
	return native.FuncOf[statushook.StatusFunc](h)(f.Agent(), ctx), true
}
