package redefine

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
)

const (
	opcodeCALLabs = 0xff // CALL abs32
	opcodeCALLrel = 0xe8 // CALL rel32
	opcodeINT3    = 0xcc
	opcodeJMP     = 0xe9 // JMP rel32
	opcodeLEA     = 0x8d

	opcodeMOV_imm_rm  = 0xc7 // MOV imm, r/m
	opcodeMOV_r_rm    = 0x8b // MOV r, r/m
	opcodeMOV_imm64_r = 0xb8 // MOV imm64, r64 (+register)

	regModeDirect   = 3
	regModeIndirect = 0
	registerDX      = 2
	registerBP      = 5
)

// closureJumpSize is the length of the sequence written by insertJump.
const closureJumpSize = 12

// insertJump overwrites the start of buf with:
//
//	MOVQ $funcval, DX
//	JMP  (DX)
//
// DX is the closure context register in ABIInternal, so the replacement sees
// its own captured variables. funcval must stay reachable for as long as the
// jump is in place.
func insertJump(buf []byte, funcval uintptr) error {
	if len(buf) < closureJumpSize {
		return errors.New("buffer too small for jump instruction")
	}

	i := 0
	buf[i] = byte(x86asm.PrefixREX) | byte(x86asm.PrefixREXW)
	i++
	buf[i] = opcodeMOV_imm64_r + registerDX
	i++
	binary.LittleEndian.PutUint64(buf[i:], uint64(funcval))
	i += 8

	// JMP r/m64 is FF /4
	buf[i] = opcodeCALLabs
	i++
	buf[i] = regModeIndirect<<6 | 4<<3 | registerDX
	i++

	// Pad the rest of the buffer with INT3 to match what the compiler does.
	for ; i < len(buf); i++ {
		buf[i] = opcodeINT3
	}

	return nil
}

// relocateFunc copies machine instructions from src into dest translating
// relative instructions as it goes. cap(dest) must be at least len(src);
// trampolines for far calls are appended after the copied code.
//
// The data underlying the slices is assumed to be the same address the code
// would execute from.
func relocateFunc(src, dest []byte) ([]byte, error) {
	srcBase := uintptr(unsafe.Pointer(unsafe.SliceData(src)))
	destBase := uintptr(unsafe.Pointer(unsafe.SliceData(dest)))

	// Trim INT3 opcodes from the end of src
	padStart := len(src) - 1
	for ; padStart > 0 && src[padStart] == opcodeINT3; padStart-- {
	}
	src = src[:padStart+1]

	dest = dest[:len(src)]

	for i := 0; i < len(src); {
		instruction, err := x86asm.Decode(src[i:], 64)
		if err != nil {
			return nil, fmt.Errorf("decode error at offset %d: %w", i, err)
		}

		srcAddr := srcBase + uintptr(i) + uintptr(instruction.Len)
		destAddr := destBase + uintptr(i) + uintptr(instruction.Len)

		switch op := instruction.Opcode >> 24; {
		case op == opcodeCALLrel || op == opcodeJMP && instruction.Len == 5:
			rel, ok := instruction.Args[0].(x86asm.Rel)
			if !ok {
				return nil, fmt.Errorf("decode error at offset %d: unknown argument", i)
			}

			absDest := srcAddr + uintptr(rel)
			if op == opcodeJMP && absDest >= srcBase && absDest < srcBase+uintptr(len(src)) {
				// Jumps within the function keep their offsets.
				copy(dest[i:], src[i:i+instruction.Len])
				break
			}

			newRelAddr := int64(absDest) - int64(destAddr)
			if newRelAddr >= math.MinInt32 && newRelAddr <= math.MaxInt32 {
				dest[i] = byte(op)
				binary.LittleEndian.PutUint32(dest[i+1:], uint32(newRelAddr))
				break
			}

			if op == opcodeJMP {
				return nil, fmt.Errorf("offset %d: jump target out of range", i)
			}

			// The new address is too far to call directly
			jumpBack := int32(i + instruction.Len - len(dest))
			ccBuf, err := trampoline(absDest, jumpBack)
			if err != nil {
				return nil, fmt.Errorf("unable to generate call code: %w", err)
			}
			jumpTo := int32(len(dest) - (i + instruction.Len))

			dest = append(dest, ccBuf...)

			dest[i] = opcodeJMP
			binary.LittleEndian.PutUint32(dest[i+1:], uint32(jumpTo))
		case op == opcodeLEA || op == opcodeMOV_r_rm:
			mem, ok := instruction.Args[1].(x86asm.Mem)
			if !ok || mem.Base != x86asm.RIP {
				copy(dest[i:], src[i:i+instruction.Len])
				break
			}

			copy(dest[i:], src[i:i+instruction.Len-4])

			newDisp := (int64(srcAddr) + mem.Disp) - int64(destAddr)
			if newDisp < math.MinInt32 || newDisp > math.MaxInt32 {
				return nil, fmt.Errorf("decode error at offset %d: unable to translate instruction relative address", i)
			}

			binary.LittleEndian.PutUint32(dest[i+instruction.Len-4:], uint32(newDisp))
		default:
			copy(dest[i:], src[i:i+instruction.Len])
		}

		i += instruction.Len
	}

	// Pad to 16-bytes
	for len(dest)&0xf != 0 {
		dest = append(dest, opcodeINT3)
	}

	return dest, nil
}

// trampoline returns the x86-64 machine code equivalent of:
//
//	MOVQ <callDest>, BP
//	CALL BP
//	JMP <jumpBack+offset>
//
// jumpBack should be relative to the beginning of the block and will be
// adjusted for its final address.
func trampoline(callDest uintptr, jumpBack int32) ([]byte, error) {
	if callDest > math.MaxUint32 {
		return nil, errors.New("64-bit call is not implemented")
	}

	buf := make([]byte, 14)
	i := 0

	// MOVQ <callDest> BP
	buf[i] = byte(x86asm.PrefixREX) | byte(x86asm.PrefixREXW)
	i++
	buf[i] = opcodeMOV_imm_rm
	i++
	buf[i] = regModeDirect<<6 | registerBP
	i++

	binary.LittleEndian.PutUint32(buf[i:], uint32(callDest))
	i += 4

	// CALL BP
	buf[i] = opcodeCALLabs
	i++
	buf[i] = regModeDirect<<6 | 2<<3 | registerBP
	i++

	// JMP <jumpBack>
	buf[i] = opcodeJMP
	i++
	binary.LittleEndian.PutUint32(buf[i:], uint32(jumpBack-int32(i)-4))
	i += 4

	return buf, nil
}

func disassemble(code []byte) (string, error) {
	var buf bytes.Buffer

	baseAddr := uintptr(unsafe.Pointer(unsafe.SliceData(code)))

	for i := 0; i < len(code); {
		instruction, err := x86asm.Decode(code[i:], 64)
		if err != nil {
			return "", fmt.Errorf("decode error at offset %d: %w", i, err)
		}
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", baseAddr+uintptr(i), hex.EncodeToString(code[i:i+instruction.Len]), instruction.String())

		i += instruction.Len
	}

	return buf.String(), nil
}
