package redefine

import _ "unsafe"

// funcInfo mirrors runtime.funcInfo.
type funcInfo struct {
	*_func
	datap *moduledata
}

// _func is the head of runtime._func. Only its presence is checked.
type _func struct {
	entryOff uint32 // start pc, as offset from moduledata.text
	nameOff  int32  // function name, as index into moduledata.funcnametab
}

// moduledata mirrors the leading fields of runtime.moduledata, up to the text
// bounds. The linker writes it; any change in cmd/link/internal/ld/symtab.go
// must be matched here.
type moduledata struct {
	pcHeader     *pcHeader
	funcnametab  []byte
	cutab        []uint32
	filetab      []byte
	pctab        []byte
	pclntable    []byte
	ftab         []functab
	findfunctab  uintptr
	minpc, maxpc uintptr

	text, etext uintptr

	// Struct continues, omitting unused fields.
}

type pcHeader struct {
	magic uint32 // 0xFFFFFFF1
}

type functab struct {
	entryoff uint32 // relative to runtime.text
	funcoff  uint32
}

//go:linkname findfunc runtime.findfunc
func findfunc(pc uintptr) funcInfo
