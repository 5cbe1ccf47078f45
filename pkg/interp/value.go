// Package interp is the bytecode interpreter: a call stack of Frames
// executing a Method's decoded InstructionList, method resolution and
// invocation through a ClassLoader, and the guest (Java) exception unwind
// protocol. It is grounded on the teacher's pkg/vm/{vm,frame,exception,
// object}.go, generalized from byte-offset PC stepping over raw
// classfile.MethodInfo to index-based PC stepping over
// classfile.InstructionList (§4.2/§4.6), and from an int-only Value to the
// full six-type tagged union SPEC_FULL.md §3 names.
package interp

import (
	"math"

	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/gc"
)

// Value is classloader.Value under another name: it is physically defined
// in pkg/classloader because classloader.Method.Native's signature needs
// it, and pkg/classloader cannot import pkg/interp without a cycle (see
// DESIGN.md). Every interp-side helper below operates on this alias.
type Value = classloader.Value

const (
	TagInt    = classloader.TagInt
	TagChar   = classloader.TagChar
	TagLong   = classloader.TagLong
	TagFloat  = classloader.TagFloat
	TagDouble = classloader.TagDouble
	TagRef    = classloader.TagRef
)

func IntValue(v int32) Value    { return Value{Tag: TagInt, Num: uint64(uint32(v))} }
func CharValue(v uint16) Value  { return Value{Tag: TagChar, Num: uint64(v)} }
func LongValue(v int64) Value   { return Value{Tag: TagLong, Num: uint64(v)} }
func FloatValue(v float32) Value {
	return Value{Tag: TagFloat, Num: uint64(math.Float32bits(v))}
}
func DoubleValue(v float64) Value { return Value{Tag: TagDouble, Num: math.Float64bits(v)} }
func RefValue(h gc.Handle) Value  { return Value{Tag: TagRef, Ref: h} }
func NullValue() Value            { return Value{Tag: TagRef, Ref: gc.NilHandle} }

func AsInt(v Value) int32     { return int32(uint32(v.Num)) }
func AsChar(v Value) uint16   { return uint16(v.Num) }
func AsLong(v Value) int64    { return int64(v.Num) }
func AsFloat(v Value) float32 { return math.Float32frombits(uint32(v.Num)) }
func AsDouble(v Value) float64 { return math.Float64frombits(v.Num) }

func BoolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}
