package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE): %w", magic, jvmerr.ErrBadMagicNumber)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	attrs, err := parseAttributeInfosWithCount(r, cf.ConstantPool)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}
	cf.Attributes = attrs
	for _, attr := range attrs {
		if attr.Name == "BootstrapMethods" {
			cf.BootstrapMethods, err = parseBootstrapMethods(attr.Data)
			if err != nil {
				return nil, fmt.Errorf("parsing BootstrapMethods: %w", err)
			}
		}
	}

	return cf, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading field %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading field %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading field %d descriptor index: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d descriptor: %w", i, err)
		}

		attrs, err := parseAttributeInfosWithCount(r, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d attributes: %w", i, err)
		}

		field := FieldInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}
		for _, attr := range attrs {
			if attr.Name == "ConstantValue" && len(attr.Data) == 2 {
				idx := binary.BigEndian.Uint16(attr.Data)
				if int(idx) < len(pool) {
					field.ConstantValue = pool[idx]
				}
			}
		}

		fields[i] = field
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading method %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading method %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading method %d descriptor index: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d descriptor: %w", i, err)
		}

		attrs, err := parseAttributeInfosWithCount(r, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d attributes: %w", i, err)
		}

		m := MethodInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}

		for _, attr := range attrs {
			if attr.Name == "Code" {
				code, err := parseCodeAttribute(attr.Data, pool)
				if err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s: %w", name, err)
				}
				m.Code = code
				break
			}
		}

		methods[i] = m
	}
	return methods, nil
}

// parseAttributeInfosWithCount reads the 2-byte attribute count that
// precedes every attribute table, then the table itself.
func parseAttributeInfosWithCount(r io.Reader, pool []ConstantPoolEntry) ([]AttributeInfo, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("reading attribute count: %w", err)
	}
	return parseAttributeInfos(r, pool, count)
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}

		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	instructions, err := DecodeInstructions(code)
	if err != nil {
		return nil, fmt.Errorf("decoding instructions: %w", err)
	}

	offset := 8 + int(codeLength)
	var handlers []ExceptionHandler
	if offset+2 <= len(data) {
		exTableLen := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		handlers = make([]ExceptionHandler, exTableLen)
		for i := uint16(0); i < exTableLen; i++ {
			if offset+8 > len(data) {
				return nil, fmt.Errorf("exception table truncated at entry %d", i)
			}
			handlers[i] = ExceptionHandler{
				StartPC:   binary.BigEndian.Uint16(data[offset : offset+2]),
				EndPC:     binary.BigEndian.Uint16(data[offset+2 : offset+4]),
				HandlerPC: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
				CatchType: binary.BigEndian.Uint16(data[offset+6 : offset+8]),
			}
			offset += 8
		}
	}

	var attrs []AttributeInfo
	if offset+2 <= len(data) {
		attrCount := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		attrs, err = parseAttributeInfos(bytes.NewReader(data[offset:]), pool, attrCount)
		if err != nil {
			return nil, fmt.Errorf("parsing Code attributes: %w", err)
		}
	}

	return &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		Instructions:      instructions,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}, nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("BootstrapMethods data too short")
	}
	numMethods := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	methods := make([]BootstrapMethod, numMethods)
	for i := uint16(0); i < numMethods; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("BootstrapMethods truncated at method %d", i)
		}
		methodRef := binary.BigEndian.Uint16(data[offset : offset+2])
		numArgs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		args := make([]uint16, numArgs)
		for j := uint16(0); j < numArgs; j++ {
			if offset+2 > len(data) {
				return nil, fmt.Errorf("BootstrapMethods truncated at arg %d of method %d", j, i)
			}
			args[j] = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return methods, nil
}
