package classfile

import "encoding/binary"

// ParseExceptionsAttribute re-parses an "Exceptions" attribute's payload
// into the checked-exception class indices it declares (JVMS8 §4.7.5).
// Returns nil if data is malformed rather than erroring: the Exceptions
// attribute is advisory (checked exceptions are a javac-time concept, not
// enforced by the verifier or interpreter), so a truncated one is ignored
// rather than failing the whole class load.
func ParseExceptionsAttribute(data []byte) []uint16 {
	if len(data) < 2 {
		return nil
	}
	count := binary.BigEndian.Uint16(data[0:2])
	if len(data) < 2+int(count)*2 {
		return nil
	}
	indices := make([]uint16, count)
	for i := range indices {
		indices[i] = binary.BigEndian.Uint16(data[2+i*2 : 4+i*2])
	}
	return indices
}

// FindAttribute returns the first attribute with the given name, or nil.
func FindAttribute(attrs []AttributeInfo, name string) *AttributeInfo {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}
