package statushook

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pboyd/statushook/internal/logging"
	"github.com/pboyd/statushook/native"
)

// Hook owns both registries and the shim. Build one with New when the
// process starts and keep it for the life of the process.
type Hook struct {
	cfg       Config
	log       zerolog.Logger
	verbose   atomic.Bool
	installer Installer

	modules  *ModuleRegistry
	handlers *HandlerRegistry

	installOnce sync.Once
	installed   chan struct{} // closed once an install attempt finished
	installErr  error
	forward     atomic.Pointer[SetStatusFunc]

	substituted atomic.Uint64
	passedOn    atomic.Uint64
}

// Stats counts what the shim did with the calls it saw.
type Stats struct {
	// Substituted calls had an override installed in place of the handler.
	Substituted uint64
	// Passthrough calls were forwarded unchanged.
	Passthrough uint64
}

// New returns a Hook configured by cfg that installs its shim with installer.
// installer may be nil if the sentinel module is never going to load.
func New(cfg Config, installer Installer) *Hook {
	h := &Hook{
		cfg:       cfg,
		log:       logging.NewWithComponent(cfg.Log, "status_hook"),
		installer: installer,
		modules:   NewModuleRegistry(uintptr(cfg.FallbackSpan)),
		handlers:  NewHandlerRegistry(),
		installed: make(chan struct{}),
	}
	h.verbose.Store(cfg.Verbose)
	return h
}

// SetVerbose turns informational log lines on or off. Errors and warnings are
// always logged.
func (h *Hook) SetVerbose(on bool) {
	h.verbose.Store(on)
}

// debugln returns an informational event, or nil when verbose output is off.
// Methods on a nil event do nothing.
func (h *Hook) debugln() *zerolog.Event {
	if !h.verbose.Load() {
		return nil
	}
	return h.log.Info()
}

// Modules returns the module range registry.
func (h *Hook) Modules() *ModuleRegistry {
	return h.modules
}

// Handlers returns the handler registry.
func (h *Hook) Handlers() *HandlerRegistry {
	return h.handlers
}

// Stats returns the shim counters.
func (h *Hook) Stats() Stats {
	return Stats{
		Substituted: h.substituted.Load(),
		Passthrough: h.passedOn.Load(),
	}
}

// Installed reports whether the shim is in place. It returns the installer's
// error if installation was attempted and failed.
func (h *Hook) Installed() (bool, error) {
	select {
	case <-h.installed:
		return h.installErr == nil, h.installErr
	default:
		return false, nil
	}
}

// OnModuleLoad is the host's module-load callback. It is called for every
// load and reload, the sentinel module included.
func (h *Hook) OnModuleLoad(m ModuleInfo) {
	if m.Name == h.cfg.SentinelModule {
		h.debugln().Str("module", m.Name).Str("base", hexAddr(m.Base)).Msg("sentinel module loaded")
		h.installOnce.Do(h.install)
		return
	}

	rng, updated := h.modules.Record(m.Name, m.Base, m.Size)
	h.debugln().
		Str("module", rng.Name).
		Str("start", hexAddr(rng.Start)).
		Str("end", hexAddr(rng.End)).
		Bool("exact", rng.Exact).
		Bool("updated", updated).
		Msg("module range recorded")

	if others := h.modules.Overlaps(m.Name); len(others) > 0 {
		h.log.Warn().
			Str("module", m.Name).
			Strs("overlaps", others).
			Bool("exact", rng.Exact).
			Msg("module range overlaps other modules; addresses go to the earliest recorded owner")
	}
}

func (h *Hook) install() {
	defer close(h.installed)

	if h.installer == nil {
		h.installErr = ErrNoInstaller
		h.log.Error().Err(h.installErr).Msg("unable to install status hook")
		return
	}

	forward, err := h.installer.Install(h.intercept)
	if err == nil && forward == nil {
		err = errors.New("installer returned no forward function")
	}
	if err != nil {
		h.installErr = err
		h.log.Error().Err(err).Msg("unable to install status hook")
		return
	}

	h.forward.Store(&forward)
	h.debugln().Msg("installed status hook")
}

// ReplaceStatusFunc registers fn as the override of the status handler that
// owner installs for (statusKind, subScript).
//
// Registering the same key twice keeps both entries, but only the first is
// ever used. A warning is logged for the second.
func (h *Hook) ReplaceStatusFunc(owner string, statusKind, subScript int32, fn StatusFunc) {
	if fn == nil {
		h.log.Error().Str("owner", owner).Int32("status_kind", statusKind).Int32("sub_script", subScript).
			Msg("ignoring nil status func")
		return
	}

	if h.handlers.Register(owner, statusKind, subScript, fn) {
		h.log.Warn().Str("owner", owner).Int32("status_kind", statusKind).Int32("sub_script", subScript).
			Msg("status func already registered for this key; the new one will never run")
	}
	h.debugln().Str("owner", owner).Int32("status_kind", statusKind).Int32("sub_script", subScript).
		Msg("added status func")
}

// CallOriginal runs the handler that the override registered for
// (owner, statusKind, subScript) displaced. It is meant to be called from
// inside that override.
//
// An unknown owner logs an error and returns NewInt(0). A known owner without
// an entry for the key returns NewInt(0) without logging. If the host has
// not installed the displaced handler yet, the stub runs: it logs an error
// and returns NewInt(0).
func (h *Hook) CallOriginal(owner string, statusKind, subScript int32, agent native.Agent, ctx uint64) Value {
	original, known, matched := h.handlers.original(owner, statusKey{kind: statusKind, script: subScript})
	switch {
	case !known:
		h.log.Error().Str("owner", owner).Msg("could not find original function")
		return NewInt(0)
	case !matched:
		return NewInt(0)
	case original == 0:
		return h.originalNotSet(agent, ctx)
	}

	return native.FuncOf[StatusFunc](original)(agent, ctx)
}

// originalNotSet stands in for an original the shim has not captured yet.
func (h *Hook) originalNotSet(native.Agent, uint64) Value {
	h.log.Error().Msg("original func was not set")
	return NewInt(0)
}

func hexAddr(addr uintptr) string {
	return fmt.Sprintf("0x%x", addr)
}
