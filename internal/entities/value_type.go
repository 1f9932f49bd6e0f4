package entities

// ValueType is the declared type of an attribute slot.
// It decides how the raw text stored in attribute_values is decoded.
type ValueType string

const (
	ValueTypeText     ValueType = "text"
	ValueTypeTextarea ValueType = "textarea"
	ValueTypeNumber   ValueType = "number"
	ValueTypeBoolean  ValueType = "boolean"
	ValueTypeDate     ValueType = "date"
	ValueTypeJSON     ValueType = "json"
	ValueTypeSelect   ValueType = "select"
	ValueTypeFile     ValueType = "file"
)

// ValueTypes lists every supported value type in display order.
var ValueTypes = []ValueType{
	ValueTypeText,
	ValueTypeTextarea,
	ValueTypeNumber,
	ValueTypeBoolean,
	ValueTypeDate,
	ValueTypeJSON,
	ValueTypeSelect,
	ValueTypeFile,
}

// IsValid reports whether t is one of the supported value types.
func (t ValueType) IsValid() bool {
	for _, v := range ValueTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsTextual reports whether values of this type are stored and returned verbatim.
func (t ValueType) IsTextual() bool {
	switch t {
	case ValueTypeText, ValueTypeTextarea, ValueTypeSelect, ValueTypeFile:
		return true
	default:
		return false
	}
}
