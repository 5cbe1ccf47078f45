package interp

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/gc"
)

// JavaException is a guest (Java) exception in flight: distinct from the
// host jvmerr domain (§7). It carries the thrown object's handle so the
// unwind protocol can match it against exception-table CatchTypes by
// walking the object's runtime class hierarchy.
type JavaException struct {
	Object gc.Handle
}

func (e *JavaException) Error() string {
	return fmt.Sprintf("JavaException: object=%v", e.Object)
}

func NewJavaException(obj gc.Handle) *JavaException {
	return &JavaException{Object: obj}
}
