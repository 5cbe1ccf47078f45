package classloader

import (
	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/gc"
)

// ElementKind tags what an Array's elements are: either a primitive
// descriptor code (the classfile.Arr* constants) or 0 for a reference, in
// which case ElemClass names the component class.
type ElementKind struct {
	Primitive byte // one of classfile.ArrBoolean..ArrLong, or 0 for reference
	ElemClass gc.Handle
}

func (k ElementKind) IsReference() bool { return k.Primitive == 0 }

// FieldDecl is one field declaration surviving from the class file, kept
// for reflection-ish lookups (FindField by name+descriptor) independent of
// per-instance storage.
type FieldDecl struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
}

// MethodKey and FieldKey identify a method or field by name+descriptor
// within a single class's method/field tables.
type MethodKey struct {
	Name       string
	Descriptor string
}

type FieldKey struct {
	Name       string
	Descriptor string
}

// RTPoolEntry is the run-time constant pool's tagged union: a constant-pool
// entry starts RTUnresolved and is rewritten in place as resolution runs
// (pool entries never have their index identity change, only what they
// rewrite to).
type RTEntryKind uint8

const (
	RTUnresolved RTEntryKind = iota
	RTClass
	RTField
	RTMethod
	RTString
)

type RTPoolEntry struct {
	Kind RTEntryKind

	Raw classfile.ConstantPoolEntry // valid while Kind == RTUnresolved

	ClassHandle gc.Handle // RTClass

	FieldClass      gc.Handle // RTField
	FieldName       string
	FieldDescriptor string

	MethodClass      gc.Handle // RTMethod
	MethodName       string
	MethodDescriptor string
	IsInterface      bool

	StringHandle gc.Handle // RTString; NilHandle until the interpreter interns it at first ldc
	StringValue  string    // RTString: the decoded constant text
}

// RuntimeConstantPool mirrors classfile.ClassFile's constant pool 1:1 by
// index, each slot progressively resolved by Loader.LoadClass.
type RuntimeConstantPool struct {
	Entries []RTPoolEntry
}

func (p *RuntimeConstantPool) At(index uint16) (*RTPoolEntry, bool) {
	if int(index) <= 0 || int(index) >= len(p.Entries) {
		return nil, false
	}
	return &p.Entries[index], true
}

// NativeFunc is a built-in method implementation, bypassing bytecode
// interpretation entirely (the handful of intrinsics a hosted-from-scratch
// JVM needs: Object.<init>, System.arraycopy, and similar).
type NativeFunc func(args []Value) (Value, bool, error)

// Method is either a native stub or a decoded bytecode body.
type Method struct {
	AccessFlags uint16
	Name        string
	Descriptor  string

	Native NativeFunc

	Code         *classfile.CodeAttribute
	MaxStack     uint16
	MaxLocals    uint16
	Instructions classfile.InstructionList
	Handlers     []classfile.ExceptionHandler
}

func (m *Method) IsNative() bool { return m.Native != nil }
func (m *Method) IsStatic() bool { return m.AccessFlags&classfile.AccStatic != 0 }

// Class is a loaded, linked class: its field/method tables keyed for O(1)
// lookup, static storage, and the run-time constant pool the interpreter
// resolves against lazily. Classes are themselves GC payloads — a Class
// lives behind a gc.Handle like any other heap object, so classes can
// reference each other (superclass, field/method-ref targets) only through
// handles, never raw pointers, keeping the class graph inside the
// collector's trace.
type Class struct {
	Name        string
	Super       gc.Handle // NilHandle for java/lang/Object
	Interfaces  []gc.Handle
	AccessFlags uint16

	Fields  []FieldDecl
	Methods map[MethodKey]*Method

	StaticValues map[FieldKey]Value

	Pool *RuntimeConstantPool

	// IsArrayClass is set for synthesized array classes; ArrayElem is then
	// the kind of element the class describes arrays of.
	IsArrayClass bool
	ArrayElem    ElementKind

	clinitRan bool
}

// FindField returns the first field declared by this class (not its
// supers) matching name+descriptor.
func (c *Class) FindField(name, descriptor string) *FieldDecl {
	for i := range c.Fields {
		if c.Fields[i].Name == name && c.Fields[i].Descriptor == descriptor {
			return &c.Fields[i]
		}
	}
	return nil
}

// Instance is a plain Java object: a handle to its Class plus named field
// storage. Field storage is a map rather than an index-addressed slice
// because every Class in a hierarchy may declare fields of the same name,
// and a from-scratch interpreter resolves field access structurally rather
// than by a precomputed layout (a deliberate simplification over the
// original's [MODULE] framing, see DESIGN.md).
type Instance struct {
	Class  gc.Handle
	Fields map[string]Value
}

// Array is a Java array object: homogeneous elements of ElemKind.
type Array struct {
	ElemKind ElementKind
	Elements []Value
}

func (a *Array) Length() int { return len(a.Elements) }
