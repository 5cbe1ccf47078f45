package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// Constant pool tags (JVMS8 Table 4.4-A).
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

// ConstantPoolEntry is implemented by every constant-pool record.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct{ Value string }

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct{ Value int32 }

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct{ Value float32 }

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct{ Value int64 }

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct{ Value float64 }

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

type ConstantClass struct{ NameIndex uint16 }

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct{ StringIndex uint16 }

func (c *ConstantString) Tag() uint8 { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

// ReferenceKind enumerates MethodHandle reference_kind values (JVMS8 Table 4.4.8-A).
type ReferenceKind uint8

const (
	RefGetField ReferenceKind = iota + 1
	RefGetStatic
	RefPutField
	RefPutStatic
	RefInvokeVirtual
	RefInvokeStatic
	RefInvokeSpecial
	RefNewInvokeSpecial
	RefInvokeInterface
)

type ConstantMethodHandle struct {
	ReferenceKind  ReferenceKind
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

type ConstantMethodType struct{ DescriptorIndex uint16 }

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

// ConstantDynamic backs both Dynamic (17) and InvokeDynamic (18): both share
// the same on-disk shape (bootstrap method attr index + name-and-type).
type ConstantDynamic struct {
	tag                      uint8
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() uint8 { return c.tag }

// parseConstantPool reads constant_pool_count-1 entries. The returned slice
// is 1-indexed: index 0 is nil. Long and Double each occupy two indices
// (JVMS8 §4.4.5), matching the wire format's historical quirk.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, jvmerr.ErrIO)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, jvmerr.ErrIO)
			}
			raw := make([]byte, length)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, jvmerr.ErrIO)
			}
			s, err := decodeModifiedUTF8(raw)
			if err != nil {
				return nil, fmt.Errorf("decoding Utf8 at index %d: %w", i, err)
			}
			pool[i] = &ConstantUtf8{Value: s}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Integer at index %d: %w", i, jvmerr.ErrIO)
			}
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Float at index %d: %w", i, jvmerr.ErrIO)
			}
			pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var val int64
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Long at index %d: %w", i, jvmerr.ErrIO)
			}
			pool[i] = &ConstantLong{Value: val}
			i++ // occupies two indices

		case TagDouble:
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Double at index %d: %w", i, jvmerr.ErrIO)
			}
			pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++ // occupies two indices

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Class at index %d: %w", i, jvmerr.ErrIO)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, fmt.Errorf("reading String at index %d: %w", i, jvmerr.ErrIO)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref:
			classIndex, natIndex, err := readTwoU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading Fieldref at index %d: %w", i, err)
			}
			pool[i] = &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagMethodref:
			classIndex, natIndex, err := readTwoU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading Methodref at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagInterfaceMethodref:
			classIndex, natIndex, err := readTwoU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading InterfaceMethodref at index %d: %w", i, err)
			}
			pool[i] = &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagNameAndType:
			nameIndex, descIndex, err := readTwoU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading NameAndType at index %d: %w", i, err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var kind uint8
			if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference_kind at index %d: %w", i, jvmerr.ErrIO)
			}
			var refIndex uint16
			if err := binary.Read(r, binary.BigEndian, &refIndex); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference_index at index %d: %w", i, jvmerr.ErrIO)
			}
			if kind < uint8(RefGetField) || kind > uint8(RefInvokeInterface) {
				return nil, fmt.Errorf("%w: reference_kind %d at index %d", jvmerr.ErrUnknownReferenceKind, kind, i)
			}
			pool[i] = &ConstantMethodHandle{ReferenceKind: ReferenceKind(kind), ReferenceIndex: refIndex}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading MethodType at index %d: %w", i, jvmerr.ErrIO)
			}
			pool[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			bsmIndex, natIndex, err := readTwoU16(r)
			if err != nil {
				return nil, fmt.Errorf("reading Dynamic/InvokeDynamic at index %d: %w", i, err)
			}
			pool[i] = &ConstantDynamic{tag: tag, BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}

		default:
			return nil, fmt.Errorf("%w: tag %d at index %d", jvmerr.ErrUnknownConstantPoolTag, tag, i)
		}
	}

	return pool, nil
}

func readTwoU16(r io.Reader) (uint16, uint16, error) {
	var a, b uint16
	if err := binary.Read(r, binary.BigEndian, &a); err != nil {
		return 0, 0, jvmerr.ErrIO
	}
	if err := binary.Read(r, binary.BigEndian, &b); err != nil {
		return 0, 0, jvmerr.ErrIO
	}
	return a, b, nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("%w: index %d", jvmerr.ErrExpectedString, index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("%w: index %d (tag=%d)", jvmerr.ErrExpectedString, index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// MethodRefInfo holds a resolved method (or interface-method) reference.
type MethodRefInfo struct {
	ClassName  string
	MethodName string
	Descriptor string
}

// ResolveMethodref resolves a CONSTANT_Methodref entry.
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	mref, ok := pool[index].(*ConstantMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not Methodref", index)
	}
	return resolveRef(pool, mref.ClassIndex, mref.NameAndTypeIndex)
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	mref, ok := pool[index].(*ConstantInterfaceMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not InterfaceMethodref", index)
	}
	return resolveRef(pool, mref.ClassIndex, mref.NameAndTypeIndex)
}

func resolveRef(pool []ConstantPoolEntry, classIndex, natIndex uint16) (*MethodRefInfo, error) {
	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving ref class: %w", err)
	}
	if int(natIndex) >= len(pool) || pool[natIndex] == nil {
		return nil, fmt.Errorf("invalid NameAndType index %d", natIndex)
	}
	nat, ok := pool[natIndex].(*ConstantNameAndType)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not NameAndType", natIndex)
	}
	name, err := GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving name: %w", err)
	}
	descriptor, err := GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving descriptor: %w", err)
	}
	return &MethodRefInfo{ClassName: className, MethodName: name, Descriptor: descriptor}, nil
}

// FieldRefInfo holds a resolved field reference.
type FieldRefInfo struct {
	ClassName  string
	FieldName  string
	Descriptor string
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*FieldRefInfo, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	fref, ok := pool[index].(*ConstantFieldref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not Fieldref", index)
	}
	ref, err := resolveRef(pool, fref.ClassIndex, fref.NameAndTypeIndex)
	if err != nil {
		return nil, err
	}
	return &FieldRefInfo{ClassName: ref.ClassName, FieldName: ref.MethodName, Descriptor: ref.Descriptor}, nil
}

// decodeModifiedUTF8 decodes the class file's Modified UTF-8 (JVMS8 §4.4.7):
// identical to UTF-8 except the NUL byte is encoded as two bytes and
// supplementary characters use the CESU-8 surrogate-pair encoding. Plain
// ASCII/BMP text (the overwhelming majority of class-file strings) decodes
// identically to standard UTF-8, so we only special-case the two points of
// divergence.
func decodeModifiedUTF8(raw []byte) (string, error) {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); {
		b0 := raw[i]
		switch {
		case b0 == 0xC0 && i+1 < len(raw) && raw[i+1] == 0x80:
			out = append(out, 0)
			i += 2
		case b0 < 0x80:
			out = append(out, b0)
			i++
		case b0&0xE0 == 0xC0 && i+1 < len(raw):
			out = append(out, b0, raw[i+1])
			i += 2
		case b0 == 0xED && i+5 < len(raw) && raw[i+1]&0xF0 == 0xA0 && raw[i+3] == 0xED && raw[i+4]&0xF0 == 0xB0:
			// CESU-8 surrogate pair: two 3-byte halves of one supplementary character.
			hi := rune(raw[i+1]&0x0F)<<6 | rune(raw[i+2]&0x3F)
			lo := rune(raw[i+4]&0x0F)<<6 | rune(raw[i+5]&0x3F)
			out = append(out, string(0x10000+(hi<<10|lo))...)
			i += 6
		case b0&0xF0 == 0xE0 && i+2 < len(raw):
			out = append(out, b0, raw[i+1], raw[i+2])
			i += 3
		default:
			return "", fmt.Errorf("%w: malformed byte 0x%02X at offset %d", jvmerr.ErrInvalidUTF8, b0, i)
		}
	}
	return string(out), nil
}
