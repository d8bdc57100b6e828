// Package native is where statushook turns Go functions into raw code
// addresses and back. Nothing else in the module converts between pointers
// and integers.
//
// A Handle is the entry address of a machine-code function, the same thing a
// C function pointer holds. Go func values are one level removed: they point
// at a funcval whose first word is the entry address. HandleOf strips that
// level and FuncOf adds it back.
//
// Limitations:
//   - FuncOf builds a funcval without a closure context, so a Handle taken from
//     a closure that captures variables cannot be called safely. Use top-level
//     functions (or closures that capture nothing) as status handlers.
//   - The caller is trusted to pick the right func type. Nothing checks that
//     the code at a Handle matches the signature it is called with.
package native

import (
	"fmt"
	"reflect"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Handle is the entry address of a function.
type Handle uintptr

// Agent is an opaque pointer to the host object a status handler runs for.
type Agent unsafe.Pointer

type funcval struct {
	fn uintptr
	// Closure variables would follow. A Handle never carries any.
}

// HandleOf returns the entry address of fn, or 0 if fn is not a non-nil func.
func HandleOf[F any](fn F) Handle {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return Handle(v.Pointer())
}

// HandleAt wraps a raw address. It exists for hosts that report addresses as
// plain integers.
func HandleAt[T constraints.Integer](addr T) Handle {
	return Handle(uintptr(addr))
}

// FuncOf returns a func of type F that calls the code at h. The zero value of F
// is returned when h is 0 or F is not a func type.
func FuncOf[F any](h Handle) F {
	var zero F
	if h == 0 || reflect.TypeFor[F]().Kind() != reflect.Func {
		return zero
	}

	fv := &funcval{fn: uintptr(h)}
	return *(*F)(unsafe.Pointer(&fv))
}

// Addr returns h as an integer address.
func (h Handle) Addr() uintptr {
	return uintptr(h)
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uintptr(h))
}

// AgentOf wraps p as an Agent.
func AgentOf[T any](p *T) Agent {
	return Agent(unsafe.Pointer(p))
}

// AgentPtr unwraps an Agent created by AgentOf. T must be the type AgentOf was
// called with.
func AgentPtr[T any](a Agent) *T {
	return (*T)(a)
}
