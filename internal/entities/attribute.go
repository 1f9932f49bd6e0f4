package entities

import (
	"fmt"
	"time"
)

// AttributeValue is one stored EAV row.
// Example: User:42.niveau_plongee = niveau2
// RawValue nil means the attribute is unset, which is distinct from "".
type AttributeValue struct {
	ID           int64
	OwnerKind    string    // Owning entity kind (e.g., "User")
	OwnerID      int64     // Owning entity id
	AttributeKey string    // Attribute key
	RawValue     *string   // Stored text, decoded on read
	ValueType    ValueType // Copied from the definition at write time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// String returns a representation of the row.
// Format: owner_kind:owner_id.key = raw
func (a *AttributeValue) String() string {
	raw := "<null>"
	if a.RawValue != nil {
		raw = fmt.Sprintf("%q", *a.RawValue)
	}
	return fmt.Sprintf("%s:%d.%s = %s", a.OwnerKind, a.OwnerID, a.AttributeKey, raw)
}

// Validate checks that the row identifies an owner and an attribute.
func (a *AttributeValue) Validate() error {
	if a.OwnerKind == "" {
		return fmt.Errorf("owner kind is required")
	}
	if a.OwnerID <= 0 {
		return fmt.Errorf("owner ID must be positive")
	}
	if a.AttributeKey == "" {
		return fmt.Errorf("attribute key is required")
	}
	if !a.ValueType.IsValid() {
		return fmt.Errorf("unknown value type %q", a.ValueType)
	}
	return nil
}
