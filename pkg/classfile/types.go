// Package classfile decodes the Java class-file wire format (JVMS8 ch.4)
// into structural records: constants, fields, methods, attributes, and a
// typed instruction list with code-index/byte-offset maps. It treats
// constant-pool indices as opaque integers — referential validity is
// pkg/verify's job, not this package's.
package classfile

// Access flags (JVMS8 §4.1, §4.5, §4.6 — the subset this VM inspects).
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// ClassFile is the fully decoded structural record of one .class file.
type ClassFile struct {
	MinorVersion     uint16
	MajorVersion     uint16
	ConstantPool     []ConstantPoolEntry // 1-indexed; ConstantPool[0] is nil
	AccessFlags      uint16
	ThisClass        uint16
	SuperClass       uint16
	Interfaces       []uint16
	Fields           []FieldInfo
	Methods          []MethodInfo
	Attributes       []AttributeInfo
	BootstrapMethods []BootstrapMethod
}

// ClassName resolves ThisClass through the constant pool.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// SuperClassName resolves SuperClass, or "" when SuperClass == 0
// (java/lang/Object itself, per JVMS8 §4.1).
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := GetClassName(cf.ConstantPool, cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// FindMethod looks up a method declared directly on this class file by
// name and descriptor; it does not walk superclasses.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField looks up a field declared directly on this class file.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name && cf.Fields[i].Descriptor == descriptor {
			return &cf.Fields[i]
		}
	}
	return nil
}

// MethodInfo is a single method_info structure.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
	Code        *CodeAttribute
}

// FieldInfo is a single field_info structure.
type FieldInfo struct {
	AccessFlags   uint16
	Name          string
	Descriptor    string
	Attributes    []AttributeInfo
	ConstantValue ConstantPoolEntry // set if a ConstantValue attribute is present
}

// AttributeInfo is a generically-decoded attribute: name + opaque payload.
// Callers that need a specific attribute re-parse Data using the functions
// in attributes.go.
type AttributeInfo struct {
	Name string
	Data []byte
}

// CodeAttribute is the decoded form of the "Code" attribute.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte // raw bytecode, kept for offset bookkeeping
	Instructions      InstructionList
	ExceptionHandlers []ExceptionHandler
	Attributes        []AttributeInfo
}

// ExceptionHandler is one entry of a Code attribute's exception table
// (JVMS8 §4.7.3). CatchType == 0 means "catch any exception".
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// BootstrapMethod is one entry of the BootstrapMethods attribute, used by
// invokedynamic (decoded for structural completeness; resolution is out of
// scope — see pkg/interp).
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}
