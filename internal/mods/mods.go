// Package mods is a status mod. It replaces a few of mario's and luigi's
// status handlers and wraps their originals.
package mods

import (
	"sync/atomic"

	"github.com/pboyd/statushook"
	"github.com/pboyd/statushook/internal/host/fighters/luigi"
	"github.com/pboyd/statushook/internal/host/fighters/mario"
	"github.com/pboyd/statushook/native"
)

// Status handlers are plain functions, so they reach the Hook through a
// package variable.
var hook atomic.Pointer[statushook.Hook]

// Register registers the mod's overrides with h. It must be called before the
// fighter modules load.
func Register(h *statushook.Hook) {
	hook.Store(h)

	h.ReplaceStatusFunc(mario.Name, mario.StatusWait, mario.ScriptMain, marioWait)
	h.ReplaceStatusFunc(mario.Name, mario.StatusAttack, mario.ScriptMain, marioAttack)
	h.ReplaceStatusFunc(luigi.Name, luigi.StatusJump, 0, luigiJump)
}

func marioWait(native.Agent, uint64) statushook.Value {
	return statushook.NewInt(1)
}

// marioAttack hits twice as hard.
func marioAttack(agent native.Agent, ctx uint64) statushook.Value {
	orig := hook.Load().CallOriginal(mario.Name, mario.StatusAttack, mario.ScriptMain, agent, ctx)
	return statushook.NewInt(orig.Int() * 2)
}

func luigiJump(agent native.Agent, ctx uint64) statushook.Value {
	orig := hook.Load().CallOriginal(luigi.Name, luigi.StatusJump, 0, agent, ctx)
	return statushook.NewInt(orig.Int() + 1000)
}
