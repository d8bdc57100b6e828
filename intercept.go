package statushook

import (
	"github.com/pboyd/statushook/native"
)

// intercept runs in place of the host's entry point. It decides which handler
// the host really installs and always forwards exactly once.
//
// No lock is held while forwarding: the host may call back into the Hook
// from there.
func (h *Hook) intercept(agent native.Agent, statusKind, subScript *Value, fn native.Handle) {
	fn = h.substitute(statusKind, subScript, fn)

	forward := h.forward.Load()
	if forward == nil {
		// The installer activated the shim before handing back the forward
		// func. Wait for it to finish.
		<-h.installed
		forward = h.forward.Load()
	}
	if forward == nil {
		h.log.Error().Str("handler", fn.String()).Msg("no forward function; status func dropped")
		return
	}

	(*forward)(agent, statusKind, subScript, fn)
}

// substitute returns the handler the host should install instead of fn. It
// captures fn as the original when an override claims it.
func (h *Hook) substitute(statusKind, subScript *Value, fn native.Handle) native.Handle {
	owner, ok := h.modules.Lookup(fn.Addr())
	if !ok {
		h.passedOn.Add(1)
		return fn
	}

	key := statusKey{kind: int32Of(statusKind), script: int32Of(subScript)}
	override, ok := h.handlers.capture(owner, key, fn)
	if !ok {
		h.passedOn.Add(1)
		return fn
	}

	h.substituted.Add(1)
	h.debugln().
		Str("owner", owner).
		Int32("status_kind", key.kind).
		Int32("sub_script", key.script).
		Str("original", fn.String()).
		Msg("replacing status func")
	return override
}
