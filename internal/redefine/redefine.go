package redefine

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"
)

// ErrUnsupported is returned by Func, Restore and Original's callers on
// platforms where code cannot be patched.
var ErrUnsupported = errors.New("redefine: code patching is not supported on this platform")

// Bounds returns the text range [start, end) occupied by fn. The end is the
// entry of the next function in the module, so it includes alignment padding.
func Bounds(fn any) (start, end uintptr, err error) {
	code, err := funcSlice(reflect.ValueOf(fn))
	if err != nil {
		return 0, 0, err
	}

	start = uintptr(unsafe.Pointer(unsafe.SliceData(code)))
	return start, start + uintptr(len(code)), nil
}

func checkFuncs(fnv, newFnv reflect.Value) error {
	if fnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}
	if newFnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", newFnv.Kind())
	}
	if fnv.IsNil() || newFnv.IsNil() {
		return errors.New("nil function")
	}
	if err := diffFuncs(fnv, newFnv).err(); err != nil {
		return fmt.Errorf("function signatures do not match: %w", err)
	}
	return nil
}

// funcSlice returns the machine code of fn, up to the entry of the function
// that follows it.
func funcSlice(fn reflect.Value) ([]byte, error) {
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("not a function, kind: %v", fn.Kind())
	}
	if fn.IsNil() {
		return nil, errors.New("nil function")
	}

	entry := fn.Pointer()

	info := findfunc(entry)
	if info._func == nil || info.datap == nil {
		return nil, fmt.Errorf("no function metadata for 0x%x", entry)
	}

	funcOffset := uint32(entry - info.datap.text)
	length := uint32(info.datap.etext - entry)

	// ftab is sorted, but not every entry is a function start we can trust,
	// so take the smallest positive distance.
	for _, ft := range info.datap.ftab {
		if ft.entryoff <= funcOffset {
			continue
		}
		if d := ft.entryoff - funcOffset; d < length {
			length = d
		}
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(entry)), int(length)), nil
}
