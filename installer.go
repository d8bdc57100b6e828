package statushook

import (
	"errors"
	"fmt"

	"github.com/pboyd/statushook/internal/redefine"
	"github.com/pboyd/statushook/native"
)

// SetStatusFunc is the signature of the host's native entry point that
// installs a status handler on an agent.
type SetStatusFunc func(agent native.Agent, statusKind, subScript *Value, fn native.Handle)

// ErrNoInstaller is returned when the shim has to be installed but the Hook
// was built without an Installer.
var ErrNoInstaller = errors.New("statushook: no installer configured")

// Installer puts the shim in front of the host's entry point.
//
// Install makes shim run whenever the host calls its entry point and returns
// a func that runs the implementation shim displaced. It is called at most
// once per Hook.
type Installer interface {
	Install(shim SetStatusFunc) (forward SetStatusFunc, err error)
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(shim SetStatusFunc) (SetStatusFunc, error)

func (f InstallerFunc) Install(shim SetStatusFunc) (SetStatusFunc, error) {
	return f(shim)
}

// PatchInstaller installs the shim by rewriting the entry of Target in place.
// Target must not be inlined at its call sites and, since its original code
// runs from a relocated copy afterwards, must be small, non-blocking and
// //go:nosplit.
type PatchInstaller struct {
	Target SetStatusFunc
}

func (p PatchInstaller) Install(shim SetStatusFunc) (SetStatusFunc, error) {
	if p.Target == nil {
		return nil, errors.New("patch installer: no target")
	}
	if err := redefine.Func(p.Target, shim); err != nil {
		return nil, fmt.Errorf("patch installer: %w", err)
	}
	return redefine.Original(p.Target), nil
}
