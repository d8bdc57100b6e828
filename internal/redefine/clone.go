//go:build amd64 && (unix || windows)

package redefine

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

// clonedFunc is a relocated copy of a function's machine code that survives
// the original being overwritten.
type clonedFunc struct {
	// code is allocated from cloneAllocator.
	code []byte

	// entry points at code[0]. &entry is usable as a func value.
	entry *byte
}

// cloneCode copies original into the executable arena, fixing up relative
// addresses on the way.
func cloneCode(original []byte) (*clonedFunc, error) {
	if err := cloneAllocator.BeginMutate(); err != nil {
		return nil, err
	}
	defer cloneAllocator.EndMutate()

	// Room for call trampolines when the arena is out of rel32 range.
	buf, err := cloneAllocator.Allocate(2*len(original) + 64)
	if err != nil {
		return nil, err
	}

	code, err := relocateFunc(original, buf[:0:len(buf)])
	if err != nil {
		cloneAllocator.Free(buf)
		return nil, err
	}
	if len(code) == 0 || unsafe.SliceData(code) != unsafe.SliceData(buf) {
		cloneAllocator.Free(buf)
		return nil, errors.New("relocated code does not fit the allocation")
	}

	return &clonedFunc{
		code:  buf,
		entry: unsafe.SliceData(buf),
	}, nil
}

// Free releases the memory of the copy. Calling the copy afterwards faults.
func (cf *clonedFunc) Free() {
	if cf == nil || cf.code == nil {
		return
	}

	cloneAllocator.BeginMutate()
	defer cloneAllocator.EndMutate()

	cloneAllocator.Free(cf.code)
	cf.code = nil
	cf.entry = nil
}

// contains reports whether addr lies inside memory handed out by a.
func (a *allocator) contains(addr uintptr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.regions {
		if addr >= r[0] && addr < r[1] {
			return true
		}
	}
	return false
}

type allocator struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool

	// regions lists [start, end) of live allocations.
	regions [][2]uintptr
}

func (a *allocator) init(startSize int) error {
	var err error
	a.initOnce.Do(func() {
		be := malloc.MmapBackend(mprotectRWX, map32bit)
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(uint64(startSize), malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize arena")
			return
		}
		a.mutable = true
	})
	return err
}

func (a *allocator) BeginMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// BeginMutate can be called before the arena exists.
	if a.mprotect == nil || a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

func (a *allocator) EndMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable || a.mprotect == nil {
		return nil
	}

	err := a.mprotect(mprotectRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

func (a *allocator) Allocate(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.init(size); err != nil {
		return nil, fmt.Errorf("error initializing allocator: %w", err)
	}
	if !a.mutable {
		return nil, errors.New("allocate called in immutable state")
	}

	buf, err := malloc.MallocSlice[byte](a.Arena, size)
	if err != nil {
		return nil, err
	}

	start := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	a.regions = append(a.regions, [2]uintptr{start, start + uintptr(len(buf))})
	return buf, nil
}

func (a *allocator) Free(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		return
	}

	start := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	for i, r := range a.regions {
		if r[0] == start {
			a.regions = append(a.regions[:i], a.regions[i+1:]...)
			break
		}
	}

	malloc.FreeSlice(a.Arena, buf)
}

var cloneAllocator = &allocator{}
