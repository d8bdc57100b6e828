// Package luigi is a fighter module. Its loader entry reports no size, so
// statushook has to guess the extent of its code.
package luigi

import (
	"github.com/pboyd/statushook"
	"github.com/pboyd/statushook/internal/host"
	"github.com/pboyd/statushook/native"
)

const Name = "luigi"

const (
	StatusWait int32 = iota
	StatusJump
	StatusSpecialS
)

//go:noinline
func statusWait(native.Agent, uint64) statushook.Value {
	return statushook.NewInt(110)
}

//go:noinline
func statusJump(_ native.Agent, ctx uint64) statushook.Value {
	return statushook.NewInt(220 + 2*ctx)
}

//go:noinline
func statusSpecialS(_ native.Agent, ctx uint64) statushook.Value {
	// Misfire on every seventh frame.
	return statushook.NewBool(ctx%7 == 0)
}

func Module() host.Module {
	return host.Module{
		Name:     Name,
		Funcs:    []any{statusWait, statusJump, statusSpecialS},
		Init:     Init,
		HideSize: true,
	}
}

func Init(f *host.Fighter) {
	host.Set(f, StatusWait, 0, statusWait)
	host.Set(f, StatusJump, 0, statusJump)
	host.Set(f, StatusSpecialS, 0, statusSpecialS)
}
