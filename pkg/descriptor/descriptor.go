// Package descriptor recognizes and decomposes the class-file format's
// descriptor grammar: field types, method descriptors, class names, and
// unqualified names (JVMS8 §4.3). It is a pure recognizer — it has no
// knowledge of constant pools or class files; callers (pkg/verify,
// pkg/classloader) surface its SyntaxError as a class-format error.
package descriptor

import (
	"strconv"
	"strings"
)

// SyntaxError reports where a descriptor failed to parse.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return "descriptor: " + e.Msg + " at position " + strconv.Itoa(e.Pos) + " in " + e.Input
}

// Kind classifies a FieldType.
type Kind int

const (
	KindByte Kind = iota
	KindChar
	KindDouble
	KindFloat
	KindInt
	KindLong
	KindShort
	KindBoolean
	KindObject
	KindArray
)

// FieldType is a parsed field descriptor: a primitive, an object type, or
// an array of (recursively) another FieldType.
type FieldType struct {
	Kind      Kind
	ClassName string     // set when Kind == KindObject
	Elem      *FieldType // set when Kind == KindArray
}

// String renders the FieldType back to its class-file descriptor form; it
// is the left inverse of ParseFieldType (§8 round-trip law).
func (f FieldType) String() string {
	switch f.Kind {
	case KindByte:
		return "B"
	case KindChar:
		return "C"
	case KindDouble:
		return "D"
	case KindFloat:
		return "F"
	case KindInt:
		return "I"
	case KindLong:
		return "J"
	case KindShort:
		return "S"
	case KindBoolean:
		return "Z"
	case KindObject:
		return "L" + f.ClassName + ";"
	case KindArray:
		return "[" + f.Elem.String()
	default:
		return "?"
	}
}

// IsPrimitive reports whether the type is one of the eight JVM primitives.
func (f FieldType) IsPrimitive() bool {
	return f.Kind != KindObject && f.Kind != KindArray
}

var primitiveKinds = map[byte]Kind{
	'B': KindByte,
	'C': KindChar,
	'D': KindDouble,
	'F': KindFloat,
	'I': KindInt,
	'J': KindLong,
	'S': KindShort,
	'Z': KindBoolean,
}

// ParseFieldType parses a single field type starting at s[0] and returns it
// along with the number of bytes consumed.
func ParseFieldType(s string) (FieldType, int, error) {
	if len(s) == 0 {
		return FieldType{}, 0, &SyntaxError{Input: s, Pos: 0, Msg: "empty field type"}
	}
	switch s[0] {
	case '[':
		elem, n, err := ParseFieldType(s[1:])
		if err != nil {
			if se, ok := err.(*SyntaxError); ok {
				se.Pos += 1
			}
			return FieldType{}, 0, err
		}
		return FieldType{Kind: KindArray, Elem: &elem}, n + 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return FieldType{}, 0, &SyntaxError{Input: s, Pos: len(s), Msg: "unterminated object type, expected ';'"}
		}
		name := s[1:end]
		if name == "" {
			return FieldType{}, 0, &SyntaxError{Input: s, Pos: 1, Msg: "empty class name"}
		}
		if _, err := ParseClassName(name); err != nil {
			return FieldType{}, 0, err
		}
		return FieldType{Kind: KindObject, ClassName: name}, end + 1, nil
	default:
		if k, ok := primitiveKinds[s[0]]; ok {
			return FieldType{Kind: k}, 1, nil
		}
		return FieldType{}, 0, &SyntaxError{Input: s, Pos: 0, Msg: "unrecognized field type character '" + string(s[0]) + "'"}
	}
}

// ParseFieldTypeFull parses s as exactly one field type with no trailing
// characters — the form used for field descriptors and array element types.
func ParseFieldTypeFull(s string) (FieldType, error) {
	ft, n, err := ParseFieldType(s)
	if err != nil {
		return FieldType{}, err
	}
	if n != len(s) {
		return FieldType{}, &SyntaxError{Input: s, Pos: n, Msg: "trailing characters after field type"}
	}
	return ft, nil
}

// MethodDescriptor is a parsed method descriptor: an ordered parameter list
// and a return type (Return == nil means void).
type MethodDescriptor struct {
	Params []FieldType
	Return *FieldType
}

// ParseMethodDescriptor parses "(paramtypes)returntype".
func ParseMethodDescriptor(s string) (MethodDescriptor, error) {
	if len(s) == 0 || s[0] != '(' {
		return MethodDescriptor{}, &SyntaxError{Input: s, Pos: 0, Msg: "method descriptor must start with '('"}
	}
	i := 1
	var params []FieldType
	for i < len(s) && s[i] != ')' {
		ft, n, err := ParseFieldType(s[i:])
		if err != nil {
			if se, ok := err.(*SyntaxError); ok {
				se.Pos += i
			}
			return MethodDescriptor{}, err
		}
		params = append(params, ft)
		i += n
	}
	if i >= len(s) {
		return MethodDescriptor{}, &SyntaxError{Input: s, Pos: i, Msg: "unterminated parameter list, expected ')'"}
	}
	i++ // skip ')'
	if i < len(s) && s[i] == 'V' {
		if i+1 != len(s) {
			return MethodDescriptor{}, &SyntaxError{Input: s, Pos: i + 1, Msg: "trailing characters after void return"}
		}
		return MethodDescriptor{Params: params, Return: nil}, nil
	}
	ret, err := ParseFieldTypeFull(s[i:])
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			se.Pos += i
		}
		return MethodDescriptor{}, err
	}
	return MethodDescriptor{Params: params, Return: &ret}, nil
}

// String renders a MethodDescriptor back to its class-file form.
func (m MethodDescriptor) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range m.Params {
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if m.Return == nil {
		b.WriteByte('V')
	} else {
		b.WriteString(m.Return.String())
	}
	return b.String()
}

// IsVoid reports whether the descriptor has a void return type.
func (m MethodDescriptor) IsVoid() bool { return m.Return == nil }

// ParseClassName validates a class-file internal class name: a
// slash-separated sequence of package segments and a simple name, with an
// optional '$'-delimited inner-class suffix.
func ParseClassName(s string) (string, error) {
	if s == "" {
		return "", &SyntaxError{Input: s, Pos: 0, Msg: "empty class name"}
	}
	for i, seg := range strings.Split(s, "/") {
		if seg == "" {
			return "", &SyntaxError{Input: s, Pos: i, Msg: "empty package/name segment"}
		}
		for _, inner := range strings.Split(seg, "$") {
			if inner == "" {
				return "", &SyntaxError{Input: s, Pos: i, Msg: "empty inner-class segment"}
			}
			if err := checkUnqualified(s, inner); err != nil {
				return "", err
			}
		}
	}
	return s, nil
}

// IsUnqualifiedName reports whether s is a valid unqualified name: non-empty
// and free of '.', ';', '[', '/'.
func IsUnqualifiedName(s string) bool {
	return checkUnqualified(s, s) == nil
}

func checkUnqualified(whole, s string) error {
	if s == "" {
		return &SyntaxError{Input: whole, Pos: 0, Msg: "empty unqualified name"}
	}
	for _, r := range s {
		switch r {
		case '.', ';', '[', '/':
			return &SyntaxError{Input: whole, Pos: 0, Msg: "illegal character in unqualified name"}
		}
	}
	return nil
}
