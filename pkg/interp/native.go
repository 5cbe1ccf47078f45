package interp

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classloader"
)

// dispatchNative implements the handful of JDK intrinsics a from-scratch
// interpreter needs to get past class-library bootstrap without a real
// java/lang tree: registerNatives/initIDs no-ops, Object plumbing, and
// System.out-style printing. Grounded on the teacher's
// vm.go:executeNativeMethod key-string switch, trimmed to what this
// repository's Class/Instance/Array model can actually back (no Unsafe,
// no reflection, no Class-mirror objects).
func (t *Thread) dispatchNative(className, methodName, descriptor string, args []Value) (Value, error) {
	key := className + "." + methodName + ":" + descriptor

	switch key {
	case "java/lang/Object.<init>:()V",
		"java/lang/Object.registerNatives:()V",
		"java/lang/System.registerNatives:()V",
		"java/lang/Class.registerNatives:()V",
		"java/lang/Thread.registerNatives:()V":
		return Value{}, nil

	case "java/lang/Object.hashCode:()I":
		return IntValue(int32(args[0].Ref)), nil

	case "java/io/PrintStream.println:(Ljava/lang/String;)V":
		s, _ := t.vm.StringValue(args[1].Ref)
		fmt.Fprintln(t.vm.Stdout, s)
		return Value{}, nil

	case "java/io/PrintStream.println:(I)V":
		fmt.Fprintln(t.vm.Stdout, AsInt(args[1]))
		return Value{}, nil

	case "java/io/PrintStream.println:(J)V":
		fmt.Fprintln(t.vm.Stdout, AsLong(args[1]))
		return Value{}, nil

	case "java/io/PrintStream.print:(Ljava/lang/String;)V":
		s, _ := t.vm.StringValue(args[1].Ref)
		fmt.Fprint(t.vm.Stdout, s)
		return Value{}, nil

	case "java/lang/String.intern:()Ljava/lang/String;":
		return args[0], nil

	case "java/lang/Thread.currentThread:()Ljava/lang/Thread;":
		h, err := t.vm.BlankInstance(args[0].Ref) // best-effort: no Thread class tree wired
		return RefValue(h), err

	case "java/lang/Thread.setPriority:(I)V":
		return Value{}, nil

	case "java/lang/System.arraycopy:(Ljava/lang/Object;ILjava/lang/Object;II)V":
		return Value{}, t.nativeArraycopy(args)

	case "java/lang/System.nanoTime:()J", "java/lang/System.currentTimeMillis:()J":
		return LongValue(0), nil
	}

	if methodName == "registerNatives" && descriptor == "()V" {
		return Value{}, nil
	}
	if methodName == "initIDs" && descriptor == "()V" {
		return Value{}, nil
	}

	return Value{}, fmt.Errorf("interp: native method not implemented: %s", key)
}

func (t *Thread) nativeArraycopy(args []Value) error {
	// args[0..4]: src, srcPos, dest, destPos, length (System.arraycopy is
	// itself static, so there is no receiver slot ahead of these).
	srcH, srcPos, destH, destPos, length := args[0].Ref, AsInt(args[1]), args[2].Ref, AsInt(args[3]), AsInt(args[4])
	srcHdr, err := t.vm.Heap.Load(srcH)
	if err != nil {
		return err
	}
	destHdr, err := t.vm.Heap.Load(destH)
	if err != nil {
		return err
	}
	src, ok := srcHdr.Payload.(*classloader.Array)
	if !ok {
		return fmt.Errorf("interp: arraycopy: source is not an array")
	}
	dest, ok := destHdr.Payload.(*classloader.Array)
	if !ok {
		return fmt.Errorf("interp: arraycopy: destination is not an array")
	}
	copy(dest.Elements[destPos:destPos+length], src.Elements[srcPos:srcPos+length])
	return nil
}
