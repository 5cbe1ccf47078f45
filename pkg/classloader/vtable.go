package classloader

import "github.com/arfarlow/tinyjvm/pkg/gc"

// ClassVTable, InstanceVTable and ArrayVTable let pkg/interp (and tests)
// allocate Class/Instance/Array payloads directly via gc.Heap.Allocate with
// the right trace function, without duplicating the object-graph edges
// classloader already knows how to walk.
func ClassVTable() *gc.VTable    { return classVTable() }
func InstanceVTable() *gc.VTable { return instanceVTable() }
func ArrayVTable() *gc.VTable    { return arrayVTable() }

// These VTables teach the collector how to trace the object-graph edges
// specific to each classloader payload type; Finalize/Drop are left nil
// since none of these three payload kinds own non-GC resources.

func classVTable() *gc.VTable {
	return &gc.VTable{
		Trace: func(h *gc.Header, visit func(gc.Handle)) {
			c := h.Payload.(*Class)
			if !c.Super.IsNil() {
				visit(c.Super)
			}
			for _, iface := range c.Interfaces {
				visit(iface)
			}
			if c.IsArrayClass && c.ArrayElem.IsReference() && !c.ArrayElem.ElemClass.IsNil() {
				visit(c.ArrayElem.ElemClass)
			}
			for _, v := range c.StaticValues {
				if v.Tag == TagRef && !v.Ref.IsNil() {
					visit(v.Ref)
				}
			}
			if c.Pool != nil {
				for _, e := range c.Pool.Entries {
					switch e.Kind {
					case RTClass:
						if !e.ClassHandle.IsNil() {
							visit(e.ClassHandle)
						}
					case RTField:
						if !e.FieldClass.IsNil() {
							visit(e.FieldClass)
						}
					case RTMethod:
						if !e.MethodClass.IsNil() {
							visit(e.MethodClass)
						}
					case RTString:
						if !e.StringHandle.IsNil() {
							visit(e.StringHandle)
						}
					}
				}
			}
		},
	}
}

func instanceVTable() *gc.VTable {
	return &gc.VTable{
		Trace: func(h *gc.Header, visit func(gc.Handle)) {
			inst := h.Payload.(*Instance)
			if !inst.Class.IsNil() {
				visit(inst.Class)
			}
			for _, v := range inst.Fields {
				if v.Tag == TagRef && !v.Ref.IsNil() {
					visit(v.Ref)
				}
			}
		},
	}
}

func arrayVTable() *gc.VTable {
	return &gc.VTable{
		Trace: func(h *gc.Header, visit func(gc.Handle)) {
			arr := h.Payload.(*Array)
			if arr.ElemKind.IsReference() && !arr.ElemKind.ElemClass.IsNil() {
				visit(arr.ElemKind.ElemClass)
			}
			for _, v := range arr.Elements {
				if v.Tag == TagRef && !v.Ref.IsNil() {
					visit(v.Ref)
				}
			}
		},
	}
}
