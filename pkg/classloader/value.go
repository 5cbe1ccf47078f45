package classloader

import "github.com/arfarlow/tinyjvm/pkg/gc"

// ValueTag discriminates the 64-bit payload a Value carries.
type ValueTag uint8

const (
	TagInt ValueTag = iota
	TagChar
	TagLong
	TagFloat
	TagDouble
	TagRef
)

// Value is the tagged union the interpreter's operand stack and local
// variables hold. It is defined here, rather than in pkg/interp, so that
// Method.Native can reference it without pkg/interp importing back into
// pkg/classloader (Method belongs to the loader; pkg/interp re-exports this
// type as `interp.Value` via a type alias — see DESIGN.md).
type Value struct {
	Tag ValueTag
	Num uint64    // reinterpreted per Tag for Int/Char/Long/Float/Double
	Ref gc.Handle // valid only when Tag == TagRef
}
