//go:build amd64 && (unix || windows)

package redefine

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/modern-go/reflect2"
)

// patch is the bookkeeping for one redefined function.
type patch struct {
	// code is the live text of the target, starting at its entry.
	code []byte

	// saved holds the bytes code had before the first patch.
	saved []byte

	// clone is the relocated copy of the original.
	clone *clonedFunc

	// replacement keeps the replacement's funcval reachable. The jump in
	// code refers to it by address only.
	replacement any
}

var (
	mu        sync.RWMutex
	redefined = map[uintptr]*patch{}
)

// Func redefines fn with newFn. An error will be returned if fn or newFn are
// not functions or if their signatures do not match.
//
// newFn may be a closure or a method value. fn must be a plain function or
// method expression; if fn has been inlined at a call site, that call site is
// not affected:
//
//	//go:noinline
//	func myfunc() {
//		...
//	}
//
// Redefining an already redefined function replaces the replacement. Original
// still returns the very first version.
func Func(fn, newFn any) error {
	fnv := reflect.ValueOf(fn)
	newFnv := reflect.ValueOf(newFn)
	if err := checkFuncs(fnv, newFnv); err != nil {
		return err
	}

	code, err := funcSlice(fnv)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	entry := fnv.Pointer()
	p, ok := redefined[entry]
	if !ok {
		clone, err := cloneCode(code)
		if err != nil {
			return fmt.Errorf("unable to copy original: %w", err)
		}
		p = &patch{
			code:  code,
			saved: bytes.Clone(code),
			clone: clone,
		}
	}

	err = writeCode(code, func() error {
		return insertJump(code, uintptr(reflect2.PtrOf(newFn)))
	})
	if err != nil {
		if !ok {
			p.clone.Free()
		}
		return err
	}

	p.replacement = newFn
	redefined[entry] = p
	return nil
}

// Restore undoes Func. Funcs previously returned by Original for fn must not
// be called afterwards.
func Restore(fn any) error {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}

	mu.Lock()
	defer mu.Unlock()

	entry := fnv.Pointer()
	p, ok := redefined[entry]
	if !ok {
		return fmt.Errorf("function at 0x%x is not redefined", entry)
	}

	err := writeCode(p.code, func() error {
		copy(p.code, p.saved)
		return nil
	})
	if err != nil {
		return err
	}

	p.clone.Free()
	delete(redefined, entry)
	return nil
}

// Original returns a function with the behavior fn had before it was first
// redefined. If fn has not been redefined, fn itself is returned. The zero
// value of T is returned when fn is not a function.
//
// The result runs a relocated copy of the original machine code. See the
// package documentation for what that copy can and cannot do.
func Original[T any](fn T) T {
	var zero T

	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func || fnv.IsNil() {
		return zero
	}

	mu.RLock()
	defer mu.RUnlock()

	p, ok := redefined[fnv.Pointer()]
	if !ok {
		return fn
	}

	// A func value is a pointer to a word holding the entry address.
	fv := &p.clone.entry
	return *(*T)(unsafe.Pointer(&fv))
}

// Disassemble returns the current machine code of fn in a readable form. After
// Func it shows the jump to the replacement.
func Disassemble(fn any) (string, error) {
	code, err := funcSlice(reflect.ValueOf(fn))
	if err != nil {
		return "", err
	}
	return disassemble(code)
}

func writeCode(code []byte, write func() error) error {
	err := mprotect(code, mprotectRWX)
	if err != nil {
		return err
	}
	defer mprotect(code, mprotectRX)

	return write()
}
