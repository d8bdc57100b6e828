//go:build !amd64 || !(unix || windows)

package redefine

import "reflect"

// Func reports ErrUnsupported on this platform.
func Func(fn, newFn any) error {
	if err := checkFuncs(reflect.ValueOf(fn), reflect.ValueOf(newFn)); err != nil {
		return err
	}
	return ErrUnsupported
}

// Restore reports ErrUnsupported on this platform.
func Restore(fn any) error {
	return ErrUnsupported
}

// Original returns fn, since nothing can have been redefined.
func Original[T any](fn T) T {
	return fn
}

// Disassemble reports ErrUnsupported on this platform.
func Disassemble(fn any) (string, error) {
	return "", ErrUnsupported
}
