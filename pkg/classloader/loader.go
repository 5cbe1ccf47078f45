// Package classloader reads class files off a classpath root, verifies and
// links them, and materializes them as GC-resident Class objects. It is
// grounded on the teacher's pkg/vm/classloader.go cache+delegation idiom,
// generalized from *classfile.ClassFile-by-name caching to the full
// decode→verify→link→materialize→clinit pipeline spec.md describes.
package classloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/descriptor"
	"github.com/arfarlow/tinyjvm/pkg/gc"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
	"github.com/arfarlow/tinyjvm/pkg/verify"
)

// ClinitRunner executes a loaded class's <clinit>, if it has one. The
// loader takes this as an injected callback rather than importing
// pkg/interp directly: pkg/interp.ClassLoader already depends on this
// package's Method/ElementKind types (§6), so the reverse import would
// cycle. A function value breaks the cycle the same way an interface
// would, without requiring pkg/interp's Thread/Invoker machinery to exist
// yet when a caller only wants to load classes.
type ClinitRunner func(method *Method, class gc.Handle) error

// Loader is the class loader and linker: cache lookup, classpath reads,
// decode+verify, recursive super/interface loading, GC materialization,
// and constant-pool resolution.
type Loader struct {
	mu        sync.Mutex
	classpath string
	heap      *gc.Heap
	cache     map[string]gc.Handle
	clinit    ClinitRunner
}

// NewLoader creates a Loader reading class files from classpath (a
// directory containing name-mangled .class files, e.g. classpath/java/lang/
// Object.class for "java/lang/Object") and materializing classes on heap.
func NewLoader(classpath string, heap *gc.Heap) *Loader {
	return &Loader{
		classpath: classpath,
		heap:      heap,
		cache:     make(map[string]gc.Handle),
	}
}

// SetClinitRunner wires the interpreter's class-initializer execution in
// after construction, once pkg/interp has a Thread able to run it.
func (l *Loader) SetClinitRunner(fn ClinitRunner) { l.clinit = fn }

// LoadClass resolves name (internal form, e.g. "java/lang/String" or
// "[Ljava/lang/String;") to a materialized, linked Class, loading and
// linking it (and its supertypes) if this is the first reference.
func (l *Loader) LoadClass(name string) (gc.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(name)
}

func (l *Loader) loadLocked(name string) (gc.Handle, error) {
	if h, ok := l.cache[name]; ok {
		return h, nil
	}
	if name != "" && name[0] == '[' {
		return l.loadArrayClassLocked(name)
	}
	return l.loadClassFileLocked(name)
}

func (l *Loader) loadArrayClassLocked(name string) (gc.Handle, error) {
	ft, err := descriptor.ParseFieldTypeFull(name)
	if err != nil {
		return gc.NilHandle, fmt.Errorf("classloader: %s: %w: %v", name, jvmerr.ErrMalformedClass, err)
	}
	if ft.Kind != descriptor.KindArray {
		return gc.NilHandle, fmt.Errorf("classloader: %s: %w", name, jvmerr.ErrMalformedClass)
	}

	super, err := l.loadLocked("java/lang/Object")
	if err != nil {
		return gc.NilHandle, err
	}

	elem := ft.Elem
	var kind ElementKind
	if elem.IsPrimitive() {
		kind = ElementKind{Primitive: primitiveArrayCode(elem.Kind)}
	} else {
		var elemHandle gc.Handle
		if elem.Kind == descriptor.KindArray {
			elemHandle, err = l.loadLocked(elem.String())
		} else {
			elemHandle, err = l.loadLocked(elem.ClassName)
		}
		if err != nil {
			return gc.NilHandle, err
		}
		kind = ElementKind{ElemClass: elemHandle}
	}

	class := &Class{
		Name:         name,
		Super:        super,
		AccessFlags:  classfile.AccPublic | classfile.AccFinal,
		Methods:      make(map[MethodKey]*Method),
		StaticValues: make(map[FieldKey]Value),
		Pool:         &RuntimeConstantPool{},
		IsArrayClass: true,
		ArrayElem:    kind,
	}

	handle, err := l.heap.Allocate(0, 0, classVTable(), class)
	if err != nil {
		return gc.NilHandle, err
	}
	l.cache[name] = handle
	return handle, nil
}

func primitiveArrayCode(k descriptor.Kind) byte {
	switch k {
	case descriptor.KindBoolean:
		return classfile.ArrBoolean
	case descriptor.KindChar:
		return classfile.ArrChar
	case descriptor.KindFloat:
		return classfile.ArrFloat
	case descriptor.KindDouble:
		return classfile.ArrDouble
	case descriptor.KindByte:
		return classfile.ArrByte
	case descriptor.KindShort:
		return classfile.ArrShort
	case descriptor.KindInt:
		return classfile.ArrInt
	case descriptor.KindLong:
		return classfile.ArrLong
	default:
		return 0
	}
}

func (l *Loader) loadClassFileLocked(name string) (gc.Handle, error) {
	path := filepath.Join(l.classpath, filepath.FromSlash(name)+".class")
	if _, err := os.Stat(path); err != nil {
		return gc.NilHandle, fmt.Errorf("classloader: %s: %w", name, jvmerr.ErrClassNotFound)
	}
	cf, err := classfile.ParseFile(path)
	if err != nil {
		return gc.NilHandle, fmt.Errorf("classloader: %s: %w: %v", name, jvmerr.ErrMalformedClass, err)
	}
	if err := verify.VerifyConstantPool(cf.ConstantPool, cf.BootstrapMethods); err != nil {
		return gc.NilHandle, fmt.Errorf("classloader: %s: %w", name, err)
	}

	// Reserve the cache slot before recursing into super/interfaces so a
	// cyclic class graph (illegal but must not hang the loader) resolves
	// to the partially-built class instead of recursing forever (§9).
	class := &Class{
		Name:         name,
		AccessFlags:  cf.AccessFlags,
		Methods:      make(map[MethodKey]*Method),
		StaticValues: make(map[FieldKey]Value),
	}
	for _, f := range cf.Fields {
		class.Fields = append(class.Fields, FieldDecl{
			AccessFlags: f.AccessFlags,
			Name:        f.Name,
			Descriptor:  f.Descriptor,
		})
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		method := &Method{
			AccessFlags: m.AccessFlags,
			Name:        m.Name,
			Descriptor:  m.Descriptor,
		}
		if m.Code != nil {
			method.Code = m.Code
			method.MaxStack = m.Code.MaxStack
			method.MaxLocals = m.Code.MaxLocals
			method.Instructions = m.Code.Instructions
			method.Handlers = m.Code.ExceptionHandlers
		}
		class.Methods[MethodKey{Name: m.Name, Descriptor: m.Descriptor}] = method
	}

	handle, err := l.heap.Allocate(0, 0, classVTable(), class)
	if err != nil {
		return gc.NilHandle, err
	}
	l.cache[name] = handle

	superName := cf.SuperClassName()
	if superName != "" {
		superHandle, err := l.loadLocked(superName)
		if err != nil {
			delete(l.cache, name)
			return gc.NilHandle, fmt.Errorf("classloader: %s: super %s: %w", name, superName, err)
		}
		superClass := l.classAt(superHandle)
		if superClass.AccessFlags&classfile.AccFinal != 0 {
			delete(l.cache, name)
			return gc.NilHandle, fmt.Errorf("classloader: %s: %w", name, jvmerr.ErrFinalSuperclass)
		}
		for s := superHandle; s != gc.NilHandle; s = l.classAt(s).Super {
			if s == handle {
				delete(l.cache, name)
				return gc.NilHandle, fmt.Errorf("classloader: %s: %w", name, jvmerr.ErrCircularSuperclass)
			}
		}
		class.Super = superHandle
	}

	for _, idx := range cf.Interfaces {
		ifaceName, err := classfile.GetClassName(cf.ConstantPool, idx)
		if err != nil {
			delete(l.cache, name)
			return gc.NilHandle, fmt.Errorf("classloader: %s: %w", name, jvmerr.ErrMalformedClass)
		}
		ifaceHandle, err := l.loadLocked(ifaceName)
		if err != nil {
			delete(l.cache, name)
			return gc.NilHandle, fmt.Errorf("classloader: %s: interface %s: %w", name, ifaceName, err)
		}
		class.Interfaces = append(class.Interfaces, ifaceHandle)
	}

	pool, err := l.buildRuntimeConstantPool(cf.ConstantPool)
	if err != nil {
		delete(l.cache, name)
		return gc.NilHandle, fmt.Errorf("classloader: %s: %w", name, err)
	}
	class.Pool = pool

	for _, f := range cf.Fields {
		if f.AccessFlags&classfile.AccStatic == 0 {
			continue
		}
		key := FieldKey{Name: f.Name, Descriptor: f.Descriptor}
		class.StaticValues[key] = zeroValueFor(f.Descriptor)
	}

	if clinit := class.Methods[MethodKey{Name: "<clinit>", Descriptor: "()V"}]; clinit != nil && l.clinit != nil {
		if err := l.clinit(clinit, handle); err != nil {
			return gc.NilHandle, fmt.Errorf("classloader: %s: <clinit>: %w", name, err)
		}
	}
	class.clinitRan = true

	return handle, nil
}

func (l *Loader) classAt(h gc.Handle) *Class {
	hdr, err := l.heap.Load(h)
	if err != nil {
		return nil
	}
	return hdr.Payload.(*Class)
}

// buildRuntimeConstantPool seeds every slot as RTUnresolved, then resolves
// Class/Fieldref/Methodref/String entries eagerly (name/descriptor targets
// are kept symbolic, not eagerly bound to a Method/FieldDecl, since the
// declaring class may not be this class — resolution at use-site still
// walks FindMethodSupers).
func (l *Loader) buildRuntimeConstantPool(pool []classfile.ConstantPoolEntry) (*RuntimeConstantPool, error) {
	out := &RuntimeConstantPool{Entries: make([]RTPoolEntry, len(pool))}
	for i, entry := range pool {
		if entry == nil {
			continue
		}
		out.Entries[i] = RTPoolEntry{Kind: RTUnresolved, Raw: entry}
	}
	for i, entry := range pool {
		if entry == nil {
			continue
		}
		switch e := entry.(type) {
		case *classfile.ConstantClass:
			cn, err := classfile.GetClassName(pool, uint16(i))
			if err != nil {
				return nil, err
			}
			h, err := l.loadLocked(cn)
			if err != nil {
				return nil, err
			}
			out.Entries[i] = RTPoolEntry{Kind: RTClass, ClassHandle: h}
		case *classfile.ConstantFieldref:
			_ = e
			info, err := classfile.ResolveFieldref(pool, uint16(i))
			if err != nil {
				return nil, err
			}
			h, err := l.loadLocked(info.ClassName)
			if err != nil {
				return nil, err
			}
			out.Entries[i] = RTPoolEntry{
				Kind: RTField, FieldClass: h,
				FieldName: info.FieldName, FieldDescriptor: info.Descriptor,
			}
		case *classfile.ConstantMethodref:
			_ = e
			info, err := classfile.ResolveMethodref(pool, uint16(i))
			if err != nil {
				return nil, err
			}
			h, err := l.loadLocked(info.ClassName)
			if err != nil {
				return nil, err
			}
			out.Entries[i] = RTPoolEntry{
				Kind: RTMethod, MethodClass: h,
				MethodName: info.MethodName, MethodDescriptor: info.Descriptor,
			}
		case *classfile.ConstantInterfaceMethodref:
			_ = e
			info, err := classfile.ResolveInterfaceMethodref(pool, uint16(i))
			if err != nil {
				return nil, err
			}
			h, err := l.loadLocked(info.ClassName)
			if err != nil {
				return nil, err
			}
			out.Entries[i] = RTPoolEntry{
				Kind: RTMethod, MethodClass: h, IsInterface: true,
				MethodName: info.MethodName, MethodDescriptor: info.Descriptor,
			}
		case *classfile.ConstantString:
			s, err := classfile.GetUtf8(pool, e.StringIndex)
			if err != nil {
				return nil, err
			}
			out.Entries[i] = RTPoolEntry{Kind: RTString, StringValue: s}
		}
	}
	return out, nil
}

func zeroValueFor(descriptor string) Value {
	if len(descriptor) == 0 {
		return Value{Tag: TagInt}
	}
	switch descriptor[0] {
	case 'J':
		return Value{Tag: TagLong}
	case 'F':
		return Value{Tag: TagFloat}
	case 'D':
		return Value{Tag: TagDouble}
	case 'C':
		return Value{Tag: TagChar}
	case 'L', '[':
		return Value{Tag: TagRef, Ref: gc.NilHandle}
	default:
		return Value{Tag: TagInt}
	}
}

// FindMethod looks up name+descriptor declared directly on class (no
// superclass search).
func (l *Loader) FindMethod(class gc.Handle, name, desc string) (*Method, gc.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.classAt(class)
	if c == nil {
		return nil, gc.NilHandle, jvmerr.ErrClassNotFound
	}
	if m, ok := c.Methods[MethodKey{Name: name, Descriptor: desc}]; ok {
		return m, class, nil
	}
	return nil, gc.NilHandle, fmt.Errorf("classloader: %s.%s%s: %w", c.Name, name, desc, jvmerr.ErrMethodNotFound)
}

// FindMethodSupers walks class and its superclass chain, returning the
// first declaring class with a matching method (virtual/interface
// dispatch's resolution rule).
func (l *Loader) FindMethodSupers(class gc.Handle, name, desc string) (*Method, gc.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := class
	for !cur.IsNil() {
		c := l.classAt(cur)
		if c == nil {
			break
		}
		if m, ok := c.Methods[MethodKey{Name: name, Descriptor: desc}]; ok {
			return m, cur, nil
		}
		cur = c.Super
	}
	return nil, gc.NilHandle, fmt.Errorf("classloader: %s%s: %w", name, desc, jvmerr.ErrMethodNotFound)
}
