package interp

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/gc"
)

// Frame is one method invocation's execution state: operand stack, locals,
// the method and declaring class it's executing, and PC as an instruction
// *index*. Branch targets stay byte offsets and are mapped to an index
// through InstructionList.IndexByOffset when a branch is taken (§4.2/§4.6).
type Frame struct {
	Locals       []Value
	Stack        []Value
	sp           int
	Method       *classloader.Method
	Class        gc.Handle
	Instructions classfile.InstructionList
	PC           int
}

func NewFrame(method *classloader.Method, class gc.Handle) *Frame {
	return &Frame{
		Locals:       make([]Value, method.MaxLocals),
		Stack:        make([]Value, method.MaxStack),
		Method:       method,
		Class:        class,
		Instructions: method.Instructions,
	}
}

func (f *Frame) Push(v Value) {
	if f.sp >= len(f.Stack) {
		panic(fmt.Sprintf("operand stack overflow: sp=%d max=%d", f.sp, len(f.Stack)))
	}
	f.Stack[f.sp] = v
	f.sp++
}

func (f *Frame) Pop() Value {
	if f.sp <= 0 {
		panic("operand stack underflow")
	}
	f.sp--
	return f.Stack[f.sp]
}

func (f *Frame) ClearStack() { f.sp = 0 }

// Roots returns every live gc.Handle this frame currently holds, for
// pushing onto a gc.ThreadState before a safepoint.
func (f *Frame) Roots() []gc.Handle {
	var roots []gc.Handle
	if !f.Class.IsNil() {
		roots = append(roots, f.Class)
	}
	for i := 0; i < f.sp; i++ {
		if f.Stack[i].Tag == TagRef && !f.Stack[i].Ref.IsNil() {
			roots = append(roots, f.Stack[i].Ref)
		}
	}
	for _, l := range f.Locals {
		if l.Tag == TagRef && !l.Ref.IsNil() {
			roots = append(roots, l.Ref)
		}
	}
	return roots
}
