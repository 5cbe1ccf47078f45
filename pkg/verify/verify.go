// Package verify runs the constant-pool verification pass described in
// JVMS8 §4.8's index-validity rules: every cross-reference inside the pool
// must point at an entry of the expected kind, and every name/descriptor
// string embedded in the pool must be syntactically well-formed. It never
// inspects bytecode; that is pkg/interp's and the (absent) code verifier's
// job.
package verify

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/descriptor"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// VerifyConstantPool runs Pass 1 (index-kind checks) then Pass 2
// (descriptor/name syntax checks) over pool, returning the first failure.
func VerifyConstantPool(pool []classfile.ConstantPoolEntry, bootstrapMethods []classfile.BootstrapMethod) error {
	if err := verifyIndexKinds(pool, bootstrapMethods); err != nil {
		return err
	}
	return verifySyntax(pool)
}

func poolErr(index int, kind jvmerr.PoolErrorKind, info string) error {
	return &jvmerr.PoolError{Index: index, Kind: kind, Info: info}
}

func utf8At(pool []classfile.ConstantPoolEntry, index int, kind jvmerr.PoolErrorKind) (string, error) {
	if index <= 0 || index >= len(pool) || pool[index] == nil {
		return "", poolErr(index, jvmerr.BadConstantPoolIndexRef, "index out of range")
	}
	u, ok := pool[index].(*classfile.ConstantUtf8)
	if !ok {
		return "", poolErr(index, kind, fmt.Sprintf("tag %d is not Utf8", pool[index].Tag()))
	}
	return u.Value, nil
}

func classAt(pool []classfile.ConstantPoolEntry, index int) (*classfile.ConstantClass, error) {
	if index <= 0 || index >= len(pool) || pool[index] == nil {
		return nil, poolErr(index, jvmerr.BadConstantPoolIndexRef, "index out of range")
	}
	c, ok := pool[index].(*classfile.ConstantClass)
	if !ok {
		return nil, poolErr(index, jvmerr.FieldrefClassIndexNotClass, fmt.Sprintf("tag %d is not Class", pool[index].Tag()))
	}
	return c, nil
}

func natAt(pool []classfile.ConstantPoolEntry, index int) (*classfile.ConstantNameAndType, error) {
	if index <= 0 || index >= len(pool) || pool[index] == nil {
		return nil, poolErr(index, jvmerr.BadConstantPoolIndexRef, "index out of range")
	}
	nat, ok := pool[index].(*classfile.ConstantNameAndType)
	if !ok {
		return nil, poolErr(index, jvmerr.NameAndTypeIndexNotUTF8, fmt.Sprintf("tag %d is not NameAndType", pool[index].Tag()))
	}
	return nat, nil
}

func verifyIndexKinds(pool []classfile.ConstantPoolEntry, bootstrapMethods []classfile.BootstrapMethod) error {
	for i, entry := range pool {
		if entry == nil {
			continue
		}
		switch e := entry.(type) {
		case *classfile.ConstantClass:
			if _, err := utf8At(pool, int(e.NameIndex), jvmerr.ClassNameIndexNotUTF8); err != nil {
				return err
			}

		case *classfile.ConstantString:
			if _, err := utf8At(pool, int(e.StringIndex), jvmerr.ClassNameIndexNotUTF8); err != nil {
				return err
			}

		case *classfile.ConstantFieldref:
			if _, err := classAt(pool, int(e.ClassIndex)); err != nil {
				return err
			}
			if _, err := natAt(pool, int(e.NameAndTypeIndex)); err != nil {
				return err
			}

		case *classfile.ConstantMethodref:
			if _, err := classAt(pool, int(e.ClassIndex)); err != nil {
				return err
			}
			nat, err := natAt(pool, int(e.NameAndTypeIndex))
			if err != nil {
				return err
			}
			if err := checkMethodrefInitRule(pool, i, nat); err != nil {
				return err
			}

		case *classfile.ConstantInterfaceMethodref:
			if _, err := classAt(pool, int(e.ClassIndex)); err != nil {
				return err
			}
			nat, err := natAt(pool, int(e.NameAndTypeIndex))
			if err != nil {
				return err
			}
			if err := checkMethodrefInitRule(pool, i, nat); err != nil {
				return err
			}

		case *classfile.ConstantNameAndType:
			if _, err := utf8At(pool, int(e.NameIndex), jvmerr.NameAndTypeIndexNotUTF8); err != nil {
				return err
			}
			if _, err := utf8At(pool, int(e.DescriptorIndex), jvmerr.NameAndTypeIndexNotUTF8); err != nil {
				return err
			}

		case *classfile.ConstantMethodHandle:
			if err := checkMethodHandle(pool, i, e); err != nil {
				return err
			}

		case *classfile.ConstantMethodType:
			if _, err := utf8At(pool, int(e.DescriptorIndex), jvmerr.BadMethodDescriptorSyntax); err != nil {
				return err
			}

		case *classfile.ConstantDynamic:
			if _, err := natAt(pool, int(e.NameAndTypeIndex)); err != nil {
				return err
			}
			if int(e.BootstrapMethodAttrIndex) >= len(bootstrapMethods) {
				return poolErr(i, jvmerr.InvokeDynamicBadBootstrapIndex, fmt.Sprintf("bootstrap index %d out of range (%d methods)", e.BootstrapMethodAttrIndex, len(bootstrapMethods)))
			}
		}
	}
	return nil
}

// checkMethodrefInitRule enforces: a Methodref/InterfaceMethodref must never
// name <clinit> (never a legal invocation target), and one named <init>
// must return void.
func checkMethodrefInitRule(pool []classfile.ConstantPoolEntry, index int, nat *classfile.ConstantNameAndType) error {
	name, err := utf8At(pool, int(nat.NameIndex), jvmerr.NameAndTypeIndexNotUTF8)
	if err != nil {
		return err
	}
	if name == "<clinit>" {
		return poolErr(index, jvmerr.InvokeMustNotNameInit, "reference to <clinit> is never a legal invocation target")
	}
	if name == "<init>" {
		desc, err := utf8At(pool, int(nat.DescriptorIndex), jvmerr.NameAndTypeIndexNotUTF8)
		if err != nil {
			return err
		}
		md, err := descriptor.ParseMethodDescriptor(desc)
		if err != nil {
			return poolErr(index, jvmerr.BadMethodDescriptorSyntax, err.Error())
		}
		if !md.IsVoid() {
			return poolErr(index, jvmerr.MethodRefInitReturnNotVoid, fmt.Sprintf("descriptor %q", desc))
		}
	}
	return nil
}

func checkMethodHandle(pool []classfile.ConstantPoolEntry, index int, mh *classfile.ConstantMethodHandle) error {
	switch mh.ReferenceKind {
	case classfile.RefGetField, classfile.RefGetStatic, classfile.RefPutField, classfile.RefPutStatic:
		if _, ok := pool[mh.ReferenceIndex].(*classfile.ConstantFieldref); !ok {
			return poolErr(index, jvmerr.MethodHandleBadReferenceKind, "field-access kind must reference a Fieldref")
		}
	case classfile.RefInvokeVirtual:
		if _, ok := pool[mh.ReferenceIndex].(*classfile.ConstantMethodref); !ok {
			return poolErr(index, jvmerr.MethodHandleBadReferenceKind, "REF_invokeVirtual must reference a Methodref")
		}
	case classfile.RefInvokeStatic, classfile.RefInvokeSpecial:
		switch pool[mh.ReferenceIndex].(type) {
		case *classfile.ConstantMethodref, *classfile.ConstantInterfaceMethodref:
		default:
			return poolErr(index, jvmerr.MethodHandleBadReferenceKind, "REF_invokeStatic/REF_invokeSpecial must reference a Methodref or InterfaceMethodref")
		}
	case classfile.RefNewInvokeSpecial:
		mref, ok := pool[mh.ReferenceIndex].(*classfile.ConstantMethodref)
		if !ok {
			return poolErr(index, jvmerr.MethodHandleBadReferenceKind, "REF_newInvokeSpecial must reference a Methodref")
		}
		nat, err := natAt(pool, int(mref.NameAndTypeIndex))
		if err != nil {
			return err
		}
		name, err := utf8At(pool, int(nat.NameIndex), jvmerr.NameAndTypeIndexNotUTF8)
		if err != nil {
			return err
		}
		if name != "<init>" {
			return poolErr(index, jvmerr.NewInvokeSpecialNotInit, fmt.Sprintf("got method name %q", name))
		}
	case classfile.RefInvokeInterface:
		if _, ok := pool[mh.ReferenceIndex].(*classfile.ConstantInterfaceMethodref); !ok {
			return poolErr(index, jvmerr.MethodHandleBadReferenceKind, "REF_invokeInterface must reference an InterfaceMethodref")
		}
	default:
		return poolErr(index, jvmerr.MethodHandleBadReferenceKind, fmt.Sprintf("unknown reference_kind %d", mh.ReferenceKind))
	}
	return nil
}

func verifySyntax(pool []classfile.ConstantPoolEntry) error {
	for i, entry := range pool {
		if entry == nil {
			continue
		}
		switch e := entry.(type) {
		case *classfile.ConstantClass:
			name, err := utf8At(pool, int(e.NameIndex), jvmerr.ClassNameIndexNotUTF8)
			if err != nil {
				return err
			}
			if len(name) > 0 && name[0] == '[' {
				if _, err := descriptor.ParseFieldTypeFull(name); err != nil {
					return poolErr(i, jvmerr.BadClassNameSyntax, err.Error())
				}
			} else if _, err := descriptor.ParseClassName(name); err != nil {
				return poolErr(i, jvmerr.BadClassNameSyntax, err.Error())
			}

		case *classfile.ConstantNameAndType:
			name, err := utf8At(pool, int(e.NameIndex), jvmerr.NameAndTypeIndexNotUTF8)
			if err != nil {
				return err
			}
			if name != "<init>" && name != "<clinit>" && !descriptor.IsUnqualifiedName(name) {
				return poolErr(i, jvmerr.BadUnqualifiedNameSyntax, fmt.Sprintf("name %q", name))
			}

		case *classfile.ConstantMethodref, *classfile.ConstantInterfaceMethodref:
			if err := checkRefDescriptorSyntax(pool, i, e, true); err != nil {
				return err
			}

		case *classfile.ConstantFieldref:
			if err := checkRefDescriptorSyntax(pool, i, e, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkRefDescriptorSyntax(pool []classfile.ConstantPoolEntry, index int, entry classfile.ConstantPoolEntry, isMethod bool) error {
	var natIndex uint16
	switch e := entry.(type) {
	case *classfile.ConstantFieldref:
		natIndex = e.NameAndTypeIndex
	case *classfile.ConstantMethodref:
		natIndex = e.NameAndTypeIndex
	case *classfile.ConstantInterfaceMethodref:
		natIndex = e.NameAndTypeIndex
	}
	nat, err := natAt(pool, int(natIndex))
	if err != nil {
		return err
	}
	desc, err := utf8At(pool, int(nat.DescriptorIndex), jvmerr.NameAndTypeIndexNotUTF8)
	if err != nil {
		return err
	}
	if isMethod {
		if _, err := descriptor.ParseMethodDescriptor(desc); err != nil {
			return poolErr(index, jvmerr.BadMethodDescriptorSyntax, err.Error())
		}
	} else {
		if _, err := descriptor.ParseFieldTypeFull(desc); err != nil {
			return poolErr(index, jvmerr.BadFieldDescriptorSyntax, err.Error())
		}
	}
	return nil
}
