package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindDate
	KindJSON
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DateLayout is used for dates without a time-of-day component.
const DateLayout = "2006-01-02"

// Value is a decoded attribute value.
// The zero Value is Null.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	t    time.Time
	doc  any
}

// Null returns the unset value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string. The empty string is a value, not Null.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Date wraps a point in time.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// JSON wraps a structural document as produced by encoding/json.
// A nil document is Null.
func JSON(doc any) Value {
	if doc == nil {
		return Null()
	}
	return Value{kind: KindJSON, doc: doc}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is unset.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)  { return v.s, v.kind == KindString }
func (v Value) AsDate() (time.Time, bool) { return v.t, v.kind == KindDate }
func (v Value) AsJSON() (any, bool)       { return v.doc, v.kind == KindJSON }

// Interface returns the underlying Go value (nil for Null).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindDate:
		return v.t
	case KindJSON:
		return v.doc
	default:
		return nil
	}
}

// Text returns the string form used for substring and list membership tests.
// Null is the empty string, true is "1" and false is "".
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "1"
		}
		return ""
	case KindNumber:
		return FormatNumber(v.n)
	case KindString:
		return v.s
	case KindDate:
		return FormatDate(v.t)
	case KindJSON:
		data, err := json.Marshal(v.doc)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindNull {
		return "<null>"
	}
	return v.Text()
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindDate:
		return v.t.Equal(o.t)
	case KindJSON:
		return reflect.DeepEqual(v.doc, o.doc)
	default:
		return false
	}
}

// IsEmpty reports whether v counts as absent for exists/notExists:
// Null, the empty string, or an empty JSON array/object.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == ""
	case KindJSON:
		switch d := v.doc.(type) {
		case []any:
			return len(d) == 0
		case map[string]any:
			return len(d) == 0
		}
	}
	return false
}

// MarshalJSON renders the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindDate:
		return json.Marshal(FormatDate(v.t))
	default:
		return json.Marshal(v.Interface())
	}
}

// FormatNumber renders n without exponent or trailing zeros.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatDate renders t as an ISO-8601 date when it is UTC midnight,
// otherwise as an RFC 3339 datetime.
func FormatDate(t time.Time) string {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(DateLayout)
	}
	return t.Format(time.RFC3339Nano)
}

// ValueOf converts a native Go value returned by an entity accessor.
// Unsupported types degrade to their fmt string form.
func ValueOf(x any) Value {
	switch v := x.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case bool:
		return Bool(v)
	case string:
		return String(v)
	case *string:
		if v == nil {
			return Null()
		}
		return String(*v)
	case int:
		return Number(float64(v))
	case int8:
		return Number(float64(v))
	case int16:
		return Number(float64(v))
	case int32:
		return Number(float64(v))
	case int64:
		return Number(float64(v))
	case uint:
		return Number(float64(v))
	case uint8:
		return Number(float64(v))
	case uint16:
		return Number(float64(v))
	case uint32:
		return Number(float64(v))
	case uint64:
		return Number(float64(v))
	case float32:
		return Number(float64(v))
	case float64:
		return Number(v)
	case time.Time:
		return Date(v)
	case *time.Time:
		if v == nil {
			return Null()
		}
		return Date(*v)
	case []string:
		doc := make([]any, len(v))
		for i, s := range v {
			doc[i] = s
		}
		return JSON(doc)
	case []any, map[string]any:
		return JSON(v)
	case fmt.Stringer:
		return String(v.String())
	default:
		return String(fmt.Sprintf("%v", v))
	}
}
