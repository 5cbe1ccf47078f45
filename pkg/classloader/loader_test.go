package classloader

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/gc"
)

// buildClassBytes hand-assembles a minimal .class file: className extends
// superName (super_class = 0 when superName == ""), with one static field
// named fieldName of descriptor "I" when fieldName != "".
func buildClassBytes(t *testing.T, className, superName, fieldName string) []byte {
	t.Helper()
	var b bytes.Buffer

	binary.Write(&b, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&b, binary.BigEndian, uint16(0))
	binary.Write(&b, binary.BigEndian, uint16(52))

	var pool bytes.Buffer
	count := uint16(1)
	writeUtf8 := func(s string) uint16 {
		pool.WriteByte(classfile.TagUtf8)
		binary.Write(&pool, binary.BigEndian, uint16(len(s)))
		pool.WriteString(s)
		i := count
		count++
		return i
	}
	writeClass := func(nameIdx uint16) uint16 {
		pool.WriteByte(classfile.TagClass)
		binary.Write(&pool, binary.BigEndian, nameIdx)
		i := count
		count++
		return i
	}
	nameIdx := writeUtf8(className)
	thisIdx := writeClass(nameIdx)

	var superIdx uint16
	if superName != "" {
		superNameIdx := writeUtf8(superName)
		superIdx = writeClass(superNameIdx)
	}

	var fieldNameIdx, fieldDescIdx uint16
	if fieldName != "" {
		fieldNameIdx = writeUtf8(fieldName)
		fieldDescIdx = writeUtf8("I")
	}

	binary.Write(&b, binary.BigEndian, count)
	b.Write(pool.Bytes())

	binary.Write(&b, binary.BigEndian, uint16(classfile.AccPublic|classfile.AccSuper))
	binary.Write(&b, binary.BigEndian, thisIdx)
	binary.Write(&b, binary.BigEndian, superIdx)
	binary.Write(&b, binary.BigEndian, uint16(0)) // interfaces_count

	if fieldName != "" {
		binary.Write(&b, binary.BigEndian, uint16(1)) // fields_count
		binary.Write(&b, binary.BigEndian, uint16(classfile.AccStatic))
		binary.Write(&b, binary.BigEndian, fieldNameIdx)
		binary.Write(&b, binary.BigEndian, fieldDescIdx)
		binary.Write(&b, binary.BigEndian, uint16(0)) // attributes_count
	} else {
		binary.Write(&b, binary.BigEndian, uint16(0))
	}

	binary.Write(&b, binary.BigEndian, uint16(0)) // methods_count
	binary.Write(&b, binary.BigEndian, uint16(0)) // class attributes_count

	return b.Bytes()
}

func writeClassFile(t *testing.T, classpath, name string, data []byte) {
	t.Helper()
	path := filepath.Join(classpath, filepath.FromSlash(name)+".class")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	writeClassFile(t, dir, "java/lang/Object", buildClassBytes(t, "java/lang/Object", "", ""))
	heap := gc.NewHeap(1, 1<<20)
	return NewLoader(dir, heap), dir
}

func TestLoadClassResolvesSuperclass(t *testing.T) {
	loader, dir := newTestLoader(t)
	writeClassFile(t, dir, "App", buildClassBytes(t, "App", "java/lang/Object", "x"))

	handle, err := loader.LoadClass("App")
	require.NoError(t, err)
	assert.False(t, handle.IsNil())

	hdr, err := loader.heap.Load(handle)
	require.NoError(t, err)
	class := hdr.Payload.(*Class)
	assert.Equal(t, "App", class.Name)
	assert.False(t, class.Super.IsNil())
	require.NotNil(t, class.FindField("x", "I"))
}

func TestLoadClassCachesSecondLookup(t *testing.T) {
	loader, dir := newTestLoader(t)
	writeClassFile(t, dir, "App", buildClassBytes(t, "App", "java/lang/Object", ""))

	h1, err := loader.LoadClass("App")
	require.NoError(t, err)
	h2, err := loader.LoadClass("App")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestLoadClassNotFound(t *testing.T) {
	loader, _ := newTestLoader(t)
	_, err := loader.LoadClass("DoesNotExist")
	assert.Error(t, err)
}

func TestLoadArrayClassOfPrimitive(t *testing.T) {
	loader, _ := newTestLoader(t)
	handle, err := loader.LoadClass("[I")
	require.NoError(t, err)

	hdr, err := loader.heap.Load(handle)
	require.NoError(t, err)
	class := hdr.Payload.(*Class)
	assert.True(t, class.IsArrayClass)
	assert.Equal(t, byte(classfile.ArrInt), class.ArrayElem.Primitive)
	assert.False(t, class.Super.IsNil())
}

func TestLoadArrayClassOfReference(t *testing.T) {
	loader, dir := newTestLoader(t)
	writeClassFile(t, dir, "App", buildClassBytes(t, "App", "java/lang/Object", ""))

	handle, err := loader.LoadClass("[LApp;")
	require.NoError(t, err)

	hdr, err := loader.heap.Load(handle)
	require.NoError(t, err)
	class := hdr.Payload.(*Class)
	assert.True(t, class.ArrayElem.IsReference())
	assert.False(t, class.ArrayElem.ElemClass.IsNil())
}

func TestFindMethodSupersWalksChain(t *testing.T) {
	loader, dir := newTestLoader(t)
	writeClassFile(t, dir, "App", buildClassBytes(t, "App", "java/lang/Object", ""))

	objHandle, err := loader.LoadClass("java/lang/Object")
	require.NoError(t, err)
	objHdr, err := loader.heap.Load(objHandle)
	require.NoError(t, err)
	objHdr.Payload.(*Class).Methods[MethodKey{Name: "toString", Descriptor: "()Ljava/lang/String;"}] = &Method{
		Name: "toString", Descriptor: "()Ljava/lang/String;",
	}

	appHandle, err := loader.LoadClass("App")
	require.NoError(t, err)

	m, declaring, err := loader.FindMethodSupers(appHandle, "toString", "()Ljava/lang/String;")
	require.NoError(t, err)
	assert.Equal(t, objHandle, declaring)
	assert.Equal(t, "toString", m.Name)
}
