// Package mario is a fighter module. Loading it installs mario's status
// handlers through the host entry point.
package mario

import (
	"github.com/pboyd/statushook"
	"github.com/pboyd/statushook/internal/host"
	"github.com/pboyd/statushook/native"
)

// Name is the module name the host reports.
const Name = "mario"

// Status kinds.
const (
	StatusWait int32 = iota
	StatusWalk
	StatusAttack
	StatusSpecialN
)

// Sub-scripts of a status.
const (
	ScriptMain int32 = iota
	ScriptEnd
)

//go:noinline
func statusWait(native.Agent, uint64) statushook.Value {
	return statushook.NewInt(100)
}

//go:noinline
func statusWalk(_ native.Agent, ctx uint64) statushook.Value {
	return statushook.NewInt(200 + ctx)
}

//go:noinline
func statusAttack(_ native.Agent, ctx uint64) statushook.Value {
	return statushook.NewInt(300 + ctx)
}

//go:noinline
func statusAttackEnd(native.Agent, uint64) statushook.Value {
	return statushook.NewBool(true)
}

//go:noinline
func statusSpecialN(_ native.Agent, ctx uint64) statushook.Value {
	return statushook.NewNum(float64(ctx) * 1.5)
}

// Module describes the module to the host loader.
func Module() host.Module {
	return host.Module{
		Name:  Name,
		Funcs: []any{statusWait, statusWalk, statusAttack, statusAttackEnd, statusSpecialN},
		Init:  Init,
	}
}

// Init installs mario's status handlers on f.
func Init(f *host.Fighter) {
	host.Set(f, StatusWait, ScriptMain, statusWait)
	host.Set(f, StatusWalk, ScriptMain, statusWalk)
	host.Set(f, StatusAttack, ScriptMain, statusAttack)
	host.Set(f, StatusAttack, ScriptEnd, statusAttackEnd)
	host.Set(f, StatusSpecialN, ScriptMain, statusSpecialN)
}
