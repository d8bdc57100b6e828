// Package statushook lets code loaded into a host process override the status
// handlers that other modules install, while keeping the displaced handlers
// callable.
//
// The host exposes one entry point, SetStatusFunc, that modules call to
// install a handler for a (status kind, sub-script) pair on an agent. A Hook
// intercepts that entry point. When the handler being installed lies inside
// the address range of a module that has an override registered for the same
// key, the override is installed instead and the handler is remembered as the
// original:
//
//	h := statushook.New(cfg, statushook.PatchInstaller{Target: host.SetStatusFunc})
//	loader.Observe(h.OnModuleLoad)
//
//	h.ReplaceStatusFunc("mario", statusAttack, 0, attack)
//
//	func attack(agent native.Agent, ctx uint64) statushook.Value {
//		// ...
//		return h.CallOriginal("mario", statusAttack, 0, agent, ctx)
//	}
//
// Limitations:
//   - Module ranges come from the host. When it cannot report a size, a
//     large fixed span is assumed, which can claim addresses of modules
//     loaded right after. Overlaps are logged as warnings.
//   - Registering a key twice for one owner keeps both entries but only the
//     first is ever used.
//   - Overrides are handed to the host as raw code addresses. They must not
//     capture variables.
package statushook
