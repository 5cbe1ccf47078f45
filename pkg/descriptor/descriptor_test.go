package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldTypePrimitives(t *testing.T) {
	cases := map[string]Kind{
		"B": KindByte, "C": KindChar, "D": KindDouble, "F": KindFloat,
		"I": KindInt, "J": KindLong, "S": KindShort, "Z": KindBoolean,
	}
	for s, k := range cases {
		ft, err := ParseFieldTypeFull(s)
		require.NoError(t, err)
		assert.Equal(t, k, ft.Kind)
		assert.Equal(t, s, ft.String())
	}
}

func TestParseFieldTypeObjectAndArray(t *testing.T) {
	ft, err := ParseFieldTypeFull("Ljava/lang/Thread;")
	require.NoError(t, err)
	assert.Equal(t, KindObject, ft.Kind)
	assert.Equal(t, "java/lang/Thread", ft.ClassName)
	assert.Equal(t, "Ljava/lang/Thread;", ft.String())

	arr, err := ParseFieldTypeFull("[[I")
	require.NoError(t, err)
	assert.Equal(t, KindArray, arr.Kind)
	assert.Equal(t, KindArray, arr.Elem.Kind)
	assert.Equal(t, KindInt, arr.Elem.Elem.Kind)
	assert.Equal(t, "[[I", arr.String())
}

func TestFieldTypeRoundTrip(t *testing.T) {
	inputs := []string{"I", "J", "D", "Ljava/lang/Object;", "[Ljava/lang/String;", "[[[B"}
	for _, in := range inputs {
		ft, err := ParseFieldTypeFull(in)
		require.NoError(t, err)
		ft2, err := ParseFieldTypeFull(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, ft2)
	}
}

func TestParseFieldTypeSyntaxErrors(t *testing.T) {
	for _, in := range []string{"", "Q", "Ljava/lang/Thread", "L;"} {
		_, err := ParseFieldTypeFull(in)
		assert.Error(t, err)
		var se *SyntaxError
		assert.ErrorAs(t, err, &se)
	}
}

func TestParseMethodDescriptorVoid(t *testing.T) {
	md, err := ParseMethodDescriptor("()V")
	require.NoError(t, err)
	assert.Len(t, md.Params, 0)
	assert.True(t, md.IsVoid())
	assert.Equal(t, "()V", md.String())
}

func TestParseMethodDescriptorComplex(t *testing.T) {
	md, err := ParseMethodDescriptor("(IDLjava/lang/Thread;)Ljava/lang/Object;")
	require.NoError(t, err)
	require.Len(t, md.Params, 3)
	assert.Equal(t, KindInt, md.Params[0].Kind)
	assert.Equal(t, KindDouble, md.Params[1].Kind)
	assert.Equal(t, KindObject, md.Params[2].Kind)
	assert.Equal(t, "java/lang/Thread", md.Params[2].ClassName)
	require.NotNil(t, md.Return)
	assert.Equal(t, KindObject, md.Return.Kind)
	assert.Equal(t, "java/lang/Object", md.Return.ClassName)
}

func TestParseClassNameInnerClass(t *testing.T) {
	name, err := ParseClassName("java/util/Map$Entry")
	require.NoError(t, err)
	assert.Equal(t, "java/util/Map$Entry", name)

	_, err = ParseClassName("")
	assert.Error(t, err)
	_, err = ParseClassName("java//Foo")
	assert.Error(t, err)
}

func TestIsUnqualifiedName(t *testing.T) {
	assert.True(t, IsUnqualifiedName("main"))
	assert.True(t, IsUnqualifiedName("<init>"))
	assert.False(t, IsUnqualifiedName(""))
	assert.False(t, IsUnqualifiedName("a.b"))
	assert.False(t, IsUnqualifiedName("a/b"))
	assert.False(t, IsUnqualifiedName("a;b"))
	assert.False(t, IsUnqualifiedName("a[b"))
}
