package interp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/gc"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// testLoader is a minimal ClassLoader backed by a name->handle map, built
// directly from hand-assembled Class values rather than parsed .class
// files: pkg/interp's own dispatch logic is under test here, not
// pkg/classloader's decode pipeline (already covered by
// classloader/loader_test.go).
type testLoader struct {
	heap    *gc.Heap
	classes map[string]gc.Handle
}

func newTestLoader(heap *gc.Heap) *testLoader {
	return &testLoader{heap: heap, classes: make(map[string]gc.Handle)}
}

func (l *testLoader) register(t *testing.T, class *classloader.Class) gc.Handle {
	t.Helper()
	if class.Methods == nil {
		class.Methods = make(map[classloader.MethodKey]*classloader.Method)
	}
	if class.StaticValues == nil {
		class.StaticValues = make(map[classloader.FieldKey]classloader.Value)
	}
	if class.Pool == nil {
		class.Pool = &classloader.RuntimeConstantPool{}
	}
	h, err := l.heap.Allocate(0, 0, classloader.ClassVTable(), class)
	require.NoError(t, err)
	l.classes[class.Name] = h
	return h
}

func (l *testLoader) LoadClass(name string) (gc.Handle, error) {
	if h, ok := l.classes[name]; ok {
		return h, nil
	}
	return gc.NilHandle, fmt.Errorf("%w: %s", jvmerr.ErrClassNotFound, name)
}

func (l *testLoader) classAt(h gc.Handle) *classloader.Class {
	hdr, err := l.heap.Load(h)
	if err != nil {
		return nil
	}
	return hdr.Payload.(*classloader.Class)
}

func (l *testLoader) FindMethod(class gc.Handle, name, desc string) (*classloader.Method, gc.Handle, error) {
	c := l.classAt(class)
	if c == nil {
		return nil, gc.NilHandle, fmt.Errorf("%w: %s", jvmerr.ErrClassNotFound, name)
	}
	if m, ok := c.Methods[classloader.MethodKey{Name: name, Descriptor: desc}]; ok {
		return m, class, nil
	}
	return nil, gc.NilHandle, fmt.Errorf("%w: %s%s", jvmerr.ErrMethodNotFound, name, desc)
}

func (l *testLoader) FindMethodSupers(class gc.Handle, name, desc string) (*classloader.Method, gc.Handle, error) {
	cur := class
	for !cur.IsNil() {
		c := l.classAt(cur)
		if c == nil {
			break
		}
		if m, ok := c.Methods[classloader.MethodKey{Name: name, Descriptor: desc}]; ok {
			return m, cur, nil
		}
		cur = c.Super
	}
	return nil, gc.NilHandle, fmt.Errorf("%w: %s%s", jvmerr.ErrMethodNotFound, name, desc)
}

// decode is a test-only shorthand for classfile.DecodeInstructions that
// fails the test on a malformed hand-assembled byte sequence.
func decode(t *testing.T, code []byte) classfile.InstructionList {
	t.Helper()
	list, err := classfile.DecodeInstructions(code)
	require.NoError(t, err)
	return list
}

func method(name, desc string, maxStack, maxLocals uint16, code []byte, t *testing.T) *classloader.Method {
	return &classloader.Method{
		Name: name, Descriptor: desc,
		Code:         &classfile.CodeAttribute{MaxStack: maxStack, MaxLocals: maxLocals, Code: code},
		MaxStack:     maxStack,
		MaxLocals:    maxLocals,
		Instructions: decode(t, code),
	}
}

func newVM(t *testing.T) (*Interp, *testLoader) {
	heap := gc.NewHeap(1, 1<<20)
	loader := newTestLoader(heap)
	vm := New(heap, loader)
	return vm, loader
}

func TestArithmeticAddAndReturn(t *testing.T) {
	vm, loader := newVM(t)
	// iconst_2, iconst_3, iadd, ireturn
	code := []byte{0x05, 0x06, 0x60, 0xAC}
	cls := &classloader.Class{Name: "Arith"}
	h := loader.register(t, cls)
	m := method("add5", "()I", 4, 0, code, t)

	v, err := vm.NewThread().Invoke(m, h, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(5), AsInt(v))
}

func TestBranchLoopSumsZeroToFour(t *testing.T) {
	vm, loader := newVM(t)
	// locals: 0=i, 1=sum. Loop while i<5: sum += i; i++.
	code := []byte{
		0x03,       // 0: iconst_0
		0x3B,       // 1: istore_0 (i=0)
		0x03,       // 2: iconst_0
		0x3C,       // 3: istore_1 (sum=0)
		0x1A,       // 4: iload_0
		0x08,       // 5: iconst_5
		0xA2, 0x00, 0x0D, // 6: if_icmpge +13 -> offset 19
		0x1B,       // 9: iload_1
		0x1A,       // 10: iload_0
		0x60,       // 11: iadd
		0x3C,       // 12: istore_1
		0x84, 0x00, 0x01, // 13: iinc 0, 1
		0xA7, 0xFF, 0xF4, // 16: goto -12 -> offset 4
		0x1B, // 19: iload_1
		0xAC, // 20: ireturn
	}
	cls := &classloader.Class{Name: "Loop"}
	h := loader.register(t, cls)
	m := method("sum", "()I", 4, 2, code, t)

	v, err := vm.NewThread().Invoke(m, h, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0+1+2+3+4), AsInt(v))
}

func TestInvokestaticDispatch(t *testing.T) {
	vm, loader := newVM(t)

	calcCode := []byte{0x1A, 0x1B, 0x60, 0xAC} // iload_0, iload_1, iadd, ireturn
	calc := &classloader.Class{Name: "Calc"}
	calcHandle := loader.register(t, calc)
	calc.Methods[classloader.MethodKey{Name: "add", Descriptor: "(II)I"}] = method("add", "(II)I", 2, 2, calcCode, t)

	appCode := []byte{0x05, 0x06, 0xB8, 0x00, 0x01, 0xAC} // iconst_2, iconst_3, invokestatic #1, ireturn
	app := &classloader.Class{Name: "App", Pool: &classloader.RuntimeConstantPool{
		Entries: []classloader.RTPoolEntry{
			{}, // index 0 unused
			{Kind: classloader.RTMethod, MethodClass: calcHandle, MethodName: "add", MethodDescriptor: "(II)I"},
		},
	}}
	appHandle := loader.register(t, app)
	appMethod := method("main", "()I", 2, 0, appCode, t)

	v, err := vm.NewThread().Invoke(appMethod, appHandle, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(5), AsInt(v))
}

// TestNewStringExposesBufCharArray covers §8 testable property 5: the
// reference NewString returns must carry a real `buf:[C]` field a getfield
// can read, not just the side-channel string table.
func TestNewStringExposesBufCharArray(t *testing.T) {
	vm, loader := newVM(t)
	loader.register(t, &classloader.Class{Name: "java/lang/String"})

	h, err := vm.NewString("hi")
	require.NoError(t, err)

	hdr, err := vm.Heap.Load(h)
	require.NoError(t, err)
	inst, ok := hdr.Payload.(*classloader.Instance)
	require.True(t, ok)

	bufVal, ok := inst.Fields["buf"]
	require.True(t, ok, "String instance has no buf field")
	require.Equal(t, TagRef, bufVal.Tag)

	arrHdr, err := vm.Heap.Load(bufVal.Ref)
	require.NoError(t, err)
	arr, ok := arrHdr.Payload.(*classloader.Array)
	require.True(t, ok)
	assert.Equal(t, byte(classfile.ArrChar), arr.ElemKind.Primitive)
	require.Len(t, arr.Elements, 2)
	assert.Equal(t, uint16('h'), AsChar(arr.Elements[0]))
	assert.Equal(t, uint16('i'), AsChar(arr.Elements[1]))

	s, ok := vm.StringValue(h)
	require.True(t, ok)
	assert.Equal(t, "hi", s)
}

func TestGetstaticPutstaticRoundTrip(t *testing.T) {
	vm, loader := newVM(t)

	counter := &classloader.Class{Name: "Counter"}
	counterHandle := loader.register(t, counter)
	counter.StaticValues[classloader.FieldKey{Name: "count", Descriptor: "I"}] = IntValue(41)
	counter.Pool = &classloader.RuntimeConstantPool{
		Entries: []classloader.RTPoolEntry{
			{},
			{Kind: classloader.RTField, FieldClass: counterHandle, FieldName: "count", FieldDescriptor: "I"},
		},
	}

	// getstatic #1, iconst_1, iadd, dup, putstatic #1, ireturn
	code := []byte{0xB2, 0x00, 0x01, 0x04, 0x60, 0x59, 0xB3, 0x00, 0x01, 0xAC}
	bump := method("bump", "()I", 3, 0, code, t)

	v, err := vm.NewThread().Invoke(bump, counterHandle, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(42), AsInt(v))

	v, err = vm.NewThread().Invoke(bump, counterHandle, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(43), AsInt(v))
}

func TestDivideByZeroThrowsArithmeticException(t *testing.T) {
	vm, loader := newVM(t)

	loader.register(t, &classloader.Class{Name: "java/lang/String"})
	loader.register(t, &classloader.Class{Name: "java/lang/ArithmeticException", Fields: []classloader.FieldDecl{
		{Name: "message", Descriptor: "Ljava/lang/String;"},
	}})

	// iconst_1, iconst_0, idiv, ireturn
	code := []byte{0x04, 0x03, 0x6C, 0xAC}
	cls := &classloader.Class{Name: "Div"}
	h := loader.register(t, cls)
	m := method("boom", "()I", 2, 0, code, t)

	_, err := vm.NewThread().Invoke(m, h, nil)
	require.Error(t, err)
	javaExc, ok := err.(*JavaException)
	require.True(t, ok, "expected a *JavaException, got %T: %v", err, err)
	assert.False(t, javaExc.Object.IsNil())
}

// TestGCDuringNestedInvocationKeepsCallerRootsAlive reproduces the scenario
// where method A stores a freshly-allocated object only in a local variable
// and calls method B; B's own first instruction publishes a root set before
// it allocates enough to exhaust the arena and force a mid-call collection.
// If syncRoots only ever published the innermost frame, that collection
// would see none of A's roots and reclaim A's object out from under it.
func TestGCDuringNestedInvocationKeepsCallerRootsAlive(t *testing.T) {
	heap := gc.NewHeap(1, 24) // 3 classes + 1 Holder instance = 4 bytes used, 20 free
	loader := newTestLoader(heap)
	vm := New(heap, loader)

	holder := &classloader.Class{Name: "Holder", Fields: []classloader.FieldDecl{
		{Name: "tag", Descriptor: "I"},
	}}
	holderHandle := loader.register(t, holder)

	runner := &classloader.Class{Name: "Runner"}
	runnerHandle := loader.register(t, runner)
	// nop, iconst_2, newarray T_INT, pop (x2), return.
	// The nop at pc=0 triggers syncRoots before either allocation. The first
	// 16-byte array fits in the 20 free bytes and is immediately garbage
	// (popped, never stored); the second needs 16 more but only 4 remain,
	// forcing a mid-call collection that must reclaim the first array's
	// garbage without touching the caller's still-live Holder instance.
	burnCode := []byte{0x00, 0x05, 0xBC, 0x0A, 0x57, 0x05, 0xBC, 0x0A, 0x57, 0xB1}
	runner.Methods[classloader.MethodKey{Name: "burn", Descriptor: "()V"}] = method("burn", "()V", 1, 0, burnCode, t)

	pool := &classloader.RuntimeConstantPool{Entries: []classloader.RTPoolEntry{
		{},
		{Kind: classloader.RTClass, ClassHandle: holderHandle},
		{Kind: classloader.RTField, FieldName: "tag", FieldDescriptor: "I"},
		{Kind: classloader.RTMethod, MethodClass: runnerHandle, MethodName: "burn", MethodDescriptor: "()V"},
	}}
	app := &classloader.Class{Name: "App", Pool: pool}
	appHandle := loader.register(t, app)

	// new #1, astore_0, aload_0, bipush 7, putfield #2, invokestatic #3,
	// aload_0, getfield #2, ireturn.
	code := []byte{
		0xBB, 0x00, 0x01,
		0x4B,
		0x2A,
		0x10, 0x07,
		0xB5, 0x00, 0x02,
		0xB8, 0x00, 0x03,
		0x2A,
		0xB4, 0x00, 0x02,
		0xAC,
	}
	m := method("run", "()I", 2, 1, code, t)

	v, err := vm.NewThread().Invoke(m, appHandle, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(7), AsInt(v))
}

func TestCaughtExceptionUnwindsToHandler(t *testing.T) {
	vm, loader := newVM(t)
	loader.register(t, &classloader.Class{Name: "java/lang/String"})
	excClass := loader.register(t, &classloader.Class{Name: "java/lang/ArithmeticException"})

	pool := &classloader.RuntimeConstantPool{Entries: []classloader.RTPoolEntry{
		{},
		{Kind: classloader.RTClass, ClassHandle: excClass},
	}}
	cls := &classloader.Class{Name: "Catch", Pool: pool}
	h := loader.register(t, cls)

	// Guarded region: iconst_1, iconst_0, idiv, pop, iconst_1, ireturn
	// (the pop/iconst_1/ireturn are unreached -- idiv always throws here).
	guarded := []byte{0x04, 0x03, 0x6C, 0x57, 0x04, 0xAC}
	// Handler: bipush 99, ireturn.
	handler := []byte{0x10, 99, 0xAC}
	full := append(append([]byte{}, guarded...), handler...)

	m := &classloader.Method{
		Name: "div", Descriptor: "()I",
		Code:         &classfile.CodeAttribute{MaxStack: 2, MaxLocals: 0, Code: full},
		MaxStack:     2,
		Instructions: decode(t, full),
		Handlers: []classfile.ExceptionHandler{
			{StartPC: 0, EndPC: 3, HandlerPC: uint16(len(guarded)), CatchType: 1},
		},
	}

	v, err := vm.NewThread().Invoke(m, h, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(99), AsInt(v))
}
