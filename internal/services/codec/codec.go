// Package codec converts attribute values between their persisted text form
// and typed entities.Value.
//
// Decoding never fails: malformed input degrades to Null so that partially
// written or legacy rows cannot break a read path. Callers that need valid
// data check validation rules before persisting.
package codec

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/divingclub/clubattrs/internal/entities"
)

const (
	rawTrue  = "1"
	rawFalse = "0"
)

// dateLayouts are tried in order when decoding a date.
// Layouts without a zone are read as UTC.
var dateLayouts = []string{
	entities.DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Encode converts v to its stored text for valueType. Null encodes to nil.
// Values of another kind are coerced on a best-effort basis; text that cannot
// be coerced is stored verbatim and will decode to Null later.
func Encode(valueType entities.ValueType, v entities.Value) *string {
	if v.IsNull() {
		return nil
	}

	var raw string
	switch valueType {
	case entities.ValueTypeBoolean:
		raw = rawFalse
		if truthy(v) {
			raw = rawTrue
		}
	case entities.ValueTypeNumber:
		raw = encodeNumber(v)
	case entities.ValueTypeDate:
		raw = encodeDate(v)
	case entities.ValueTypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		raw = string(data)
	default:
		raw = v.Text()
	}
	return &raw
}

// Decode converts stored text to a typed value. A nil raw value is Null.
func Decode(valueType entities.ValueType, raw *string) entities.Value {
	v, _ := DecodeChecked(valueType, raw)
	return v
}

// DecodeChecked is Decode that also reports whether a non-nil raw value
// had to be degraded to Null.
func DecodeChecked(valueType entities.ValueType, raw *string) (entities.Value, bool) {
	if raw == nil {
		return entities.Null(), true
	}
	s := *raw

	switch valueType {
	case entities.ValueTypeBoolean:
		return entities.Bool(IsTruthy(s)), true
	case entities.ValueTypeNumber:
		n, ok := ParseNumber(s)
		if !ok {
			return entities.Null(), false
		}
		return entities.Number(n), true
	case entities.ValueTypeDate:
		t, ok := ParseDate(s)
		if !ok {
			return entities.Null(), false
		}
		return entities.Date(t), true
	case entities.ValueTypeJSON:
		var doc any
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return entities.Null(), false
		}
		return entities.JSON(doc), true
	default:
		return entities.String(s), true
	}
}

// IsTruthy reports whether s is "1", "true" or "yes", ignoring case and
// surrounding spaces.
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// decimalPattern admits plain decimals with an optional exponent. Go-only
// forms such as hex floats and digit separators are excluded.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber parses a locale-independent decimal. NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// ParseDate parses an ISO-8601 date or datetime.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truthy(v entities.Value) bool {
	switch v.Kind() {
	case entities.KindBool:
		b, _ := v.AsBool()
		return b
	case entities.KindNumber:
		n, _ := v.AsNumber()
		return n != 0
	case entities.KindString:
		s, _ := v.AsString()
		return IsTruthy(s)
	default:
		return !v.IsEmpty()
	}
}

func encodeNumber(v entities.Value) string {
	switch v.Kind() {
	case entities.KindNumber:
		n, _ := v.AsNumber()
		return strconv.FormatFloat(n, 'f', -1, 64)
	case entities.KindBool:
		if b, _ := v.AsBool(); b {
			return rawTrue
		}
		return rawFalse
	case entities.KindString:
		s, _ := v.AsString()
		if n, ok := ParseNumber(s); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return s
	default:
		return v.Text()
	}
}

func encodeDate(v entities.Value) string {
	switch v.Kind() {
	case entities.KindDate:
		t, _ := v.AsDate()
		return entities.FormatDate(t)
	case entities.KindString:
		s, _ := v.AsString()
		if t, ok := ParseDate(s); ok {
			return entities.FormatDate(t)
		}
		return s
	default:
		return v.Text()
	}
}
