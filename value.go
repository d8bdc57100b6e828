package statushook

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindNum
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindNum:
		return "num"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the host's tagged scalar. Status kinds and sub-script ids arrive as
// Values and status handlers return one.
//
// Value is a plain two-word struct so the host can read it without calling
// into the runtime.
type Value struct {
	kind Kind
	raw  uint64
}

// NewInt returns an integer Value.
func NewInt[T constraints.Integer](v T) Value {
	return Value{kind: KindInt, raw: uint64(int64(v))}
}

// NewBool returns a boolean Value.
func NewBool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.raw = 1
	}
	return v
}

// NewNum returns a floating point Value.
func NewNum(f float64) Value {
	return Value{kind: KindNum, raw: math.Float64bits(f)}
}

// Kind returns the tag of v.
func (v Value) Kind() Kind {
	return v.kind
}

// Int returns v as an integer. Numbers are truncated, booleans are 0 or 1 and
// void is 0.
func (v Value) Int() int64 {
	if v.kind == KindNum {
		return int64(math.Float64frombits(v.raw))
	}
	return int64(v.raw)
}

// Int32 is Int truncated to 32 bits, the width of status kinds and sub-script
// ids.
func (v Value) Int32() int32 {
	return int32(v.Int())
}

// Bool reports whether v is non-zero.
func (v Value) Bool() bool {
	if v.kind == KindNum {
		return math.Float64frombits(v.raw) != 0
	}
	return v.raw != 0
}

// Num returns v as a float64.
func (v Value) Num() float64 {
	if v.kind == KindNum {
		return math.Float64frombits(v.raw)
	}
	return float64(int64(v.raw))
}

func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindBool:
		return fmt.Sprint(v.Bool())
	case KindNum:
		return fmt.Sprint(v.Num())
	default:
		return fmt.Sprint(v.Int())
	}
}

// int32Of decodes a Value pointer handed over by the host. A nil pointer
// reads as void.
func int32Of(v *Value) int32 {
	if v == nil {
		return 0
	}
	return v.Int32()
}
