package cms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ScalarKind enumerates the wire types a CMS value may take.
type ScalarKind int

const (
	// ScalarNull is the JSON null value, used to clear a cell.
	ScalarNull ScalarKind = iota
	// ScalarString is a JSON string.
	ScalarString
	// ScalarNumber is a JSON number. The original text is preserved.
	ScalarNumber
	// ScalarBool is a JSON boolean.
	ScalarBool
)

func (k ScalarKind) String() string {
	switch k {
	case ScalarNull:
		return "null"
	case ScalarString:
		return "string"
	case ScalarNumber:
		return "number"
	case ScalarBool:
		return "bool"
	default:
		return "ScalarKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Scalar is the value of one (attribute, variant, language) cell. The CMS
// accepts strings, numbers, booleans and null; the server decides whether the
// kind matches the attribute definition.
//
// The zero Scalar is null.
type Scalar struct {
	kind ScalarKind
	str  string
	num  json.Number
	b    bool
}

// Null returns the null scalar.
func Null() Scalar { return Scalar{} }

// String returns a string scalar.
func String(s string) Scalar { return Scalar{kind: ScalarString, str: s} }

// Bool returns a boolean scalar.
func Bool(b bool) Scalar { return Scalar{kind: ScalarBool, b: b} }

// Number returns a numeric scalar. Integral values render without a fraction.
func Number(f float64) Scalar {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Scalar{kind: ScalarNumber, num: json.Number(strconv.FormatInt(int64(f), 10))}
	}
	return Scalar{kind: ScalarNumber, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Int returns a numeric scalar for an integer.
func Int(v int64) Scalar {
	return Scalar{kind: ScalarNumber, num: json.Number(strconv.FormatInt(v, 10))}
}

// NumberText returns a numeric scalar from its JSON text, keeping precision
// for identifiers larger than float64 can hold exactly.
func NumberText(n json.Number) (Scalar, error) {
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return Scalar{}, fmt.Errorf("cms: invalid number %q", string(n))
	}
	return Scalar{kind: ScalarNumber, num: n}, nil
}

// ScalarFromAny converts an untyped decoded JSON value into a Scalar. Objects
// and arrays are rejected.
func ScalarFromAny(v any) (Scalar, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Scalar:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		return NumberText(x)
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	default:
		return Scalar{}, fmt.Errorf("cms: value must be a string, number, boolean or null, got %T", v)
	}
}

// Kind reports the scalar kind.
func (s Scalar) Kind() ScalarKind { return s.kind }

// IsNull reports whether s is null.
func (s Scalar) IsNull() bool { return s.kind == ScalarNull }

// StringValue returns the string and whether s is a string.
func (s Scalar) StringValue() (string, bool) { return s.str, s.kind == ScalarString }

// BoolValue returns the boolean and whether s is a boolean.
func (s Scalar) BoolValue() (bool, bool) { return s.b, s.kind == ScalarBool }

// NumberValue returns the number as float64 and whether s is a number.
func (s Scalar) NumberValue() (float64, bool) {
	if s.kind != ScalarNumber {
		return 0, false
	}
	f, err := s.num.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// Any returns the scalar as a plain Go value (nil, string, json.Number, bool).
func (s Scalar) Any() any {
	switch s.kind {
	case ScalarString:
		return s.str
	case ScalarNumber:
		return s.num
	case ScalarBool:
		return s.b
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case ScalarNull:
		return []byte("null"), nil
	case ScalarString:
		return json.Marshal(s.str)
	case ScalarNumber:
		return []byte(s.num), nil
	case ScalarBool:
		return strconv.AppendBool(nil, s.b), nil
	default:
		return nil, fmt.Errorf("cms: unknown scalar kind %d", s.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := ScalarFromAny(raw)
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// Value is one cell of an object's property matrix. Several entries with the
// same attribute and distinct SortReverse keys form an ordered multi-value
// list; the caller owns the order.
type Value struct {
	Attribute   int    `json:"attribute"`
	Variant     int    `json:"variant"`
	Language    int    `json:"language"`
	Value       Scalar `json:"value"`
	SortReverse *int   `json:"sortReverse,omitempty"`
	UnitRef     *int   `json:"unitRef,omitempty"`
}

// ObjectMeta identifies and types an object. TypeRef is mandatory on create.
type ObjectMeta struct {
	ID              *int64  `json:"id,omitempty"`
	GUID            string  `json:"guid,omitempty"`
	APIIdentifier   *string `json:"apiIdentifier,omitempty"`
	TypeRef         int     `json:"typeRef"`
	LastTransaction *int64  `json:"lastTransaction,omitempty"`
	Deleted         *bool   `json:"deleted,omitempty"`
}

// Object is an object with a full or partial value set. On update, multi-value
// entries missing from Values are deleted by the server.
type Object struct {
	Meta   ObjectMeta `json:"meta"`
	Values []Value    `json:"values,omitempty"`
}

// JobParameter is a named job parameter.
type JobParameter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// JobInputFile references a committed job-input upload.
type JobInputFile struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// Job states as reported by the jobs endpoints.
const (
	JobStateNew              = 0
	JobStateRunning          = 1
	JobStateSucceeded        = 2
	JobStateError            = 3
	JobStateKillRequested    = 4
	JobStateRestartRequested = 5
)

// Well-known identifiers that show up in tool descriptions and tests.
const (
	// DraftBranch is the sentinel for the default unpublished branch.
	DraftBranch = "draft"
	// AttributeName is the display-name attribute.
	AttributeName = 1000
	// LanguageEN and LanguageDE are the built-in content languages.
	LanguageEN = 201
	LanguageDE = 202
	// AttributeFileIdentifier and AttributeFileExtension together form the
	// name passed to GetFile.
	AttributeFileIdentifier = 11000
	AttributeFileExtension  = 11005
)
