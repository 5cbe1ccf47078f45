package classfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimalClass assembles a hand-rolled .class file for a class named
// className with a single method "run" of descriptor "()I" whose body is
// exactly code. The constant pool holds: [1]=Utf8(className), [2]=Class(1),
// [3]=Utf8("java/lang/Object"), [4]=Class(3), [5]=Utf8("run"),
// [6]=Utf8("()I"), [7]=Utf8("Code").
func buildMinimalClass(t *testing.T, className string, code []byte, maxStack, maxLocals uint16) []byte {
	t.Helper()
	var b bytes.Buffer

	binary.Write(&b, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&b, binary.BigEndian, uint16(0))  // minor
	binary.Write(&b, binary.BigEndian, uint16(52)) // major (Java 8)

	binary.Write(&b, binary.BigEndian, uint16(8)) // constant_pool_count = 7 entries + 1
	writeUtf8 := func(s string) {
		b.WriteByte(TagUtf8)
		binary.Write(&b, binary.BigEndian, uint16(len(s)))
		b.WriteString(s)
	}
	writeClass := func(nameIdx uint16) {
		b.WriteByte(TagClass)
		binary.Write(&b, binary.BigEndian, nameIdx)
	}
	writeUtf8(className)       // 1
	writeClass(1)              // 2
	writeUtf8("java/lang/Object") // 3
	writeClass(3)               // 4
	writeUtf8("run")            // 5
	writeUtf8("()I")            // 6
	writeUtf8("Code")           // 7

	binary.Write(&b, binary.BigEndian, uint16(AccPublic|AccSuper)) // access_flags
	binary.Write(&b, binary.BigEndian, uint16(2))                  // this_class
	binary.Write(&b, binary.BigEndian, uint16(4))                  // super_class
	binary.Write(&b, binary.BigEndian, uint16(0))                  // interfaces_count

	binary.Write(&b, binary.BigEndian, uint16(0)) // fields_count

	binary.Write(&b, binary.BigEndian, uint16(1))                  // methods_count
	binary.Write(&b, binary.BigEndian, uint16(AccPublic|AccStatic)) // method access flags
	binary.Write(&b, binary.BigEndian, uint16(5))                  // name_index -> "run"
	binary.Write(&b, binary.BigEndian, uint16(6))                  // descriptor_index -> "()I"
	binary.Write(&b, binary.BigEndian, uint16(1))                  // attributes_count

	var codeAttr bytes.Buffer
	binary.Write(&codeAttr, binary.BigEndian, maxStack)
	binary.Write(&codeAttr, binary.BigEndian, maxLocals)
	binary.Write(&codeAttr, binary.BigEndian, uint32(len(code)))
	codeAttr.Write(code)
	binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(&codeAttr, binary.BigEndian, uint16(0)) // attributes_count

	binary.Write(&b, binary.BigEndian, uint16(7)) // attribute_name_index -> "Code"
	binary.Write(&b, binary.BigEndian, uint32(codeAttr.Len()))
	b.Write(codeAttr.Bytes())

	binary.Write(&b, binary.BigEndian, uint16(0)) // class attributes_count

	return b.Bytes()
}

func TestParseMinimalClassFile(t *testing.T) {
	code := []byte{OpIconst5, OpIreturn}
	raw := buildMinimalClass(t, "Run", code, 1, 0)

	cf, err := Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, uint16(52), cf.MajorVersion)

	name, err := cf.ClassName()
	require.NoError(t, err)
	assert.Equal(t, "Run", name)
	assert.Equal(t, "java/lang/Object", cf.SuperClassName())

	m := cf.FindMethod("run", "()I")
	require.NotNil(t, m)
	require.NotNil(t, m.Code)
	assert.Equal(t, code, m.Code.Code)
	assert.Equal(t, 2, m.Code.Instructions.Len())
}

func TestParseInvalidMagic(t *testing.T) {
	f, err := os.CreateTemp("", "invalid*.class")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	f.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	f.Close()

	r, err := os.Open(f.Name())
	require.NoError(t, err)
	defer r.Close()

	_, err = Parse(r)
	assert.Error(t, err)
}

func TestParseTruncatedConstantPool(t *testing.T) {
	raw := []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 52, 0, 3, TagUtf8, 0, 5, 'H', 'i'}
	_, err := Parse(bytes.NewReader(raw))
	assert.Error(t, err)
}
