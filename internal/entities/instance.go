package entities

// Instance is a concrete entity a condition can be evaluated against.
type Instance interface {
	EntityKind() string
	EntityID() int64
}

// PropertySource is implemented by instances that expose native properties by name.
type PropertySource interface {
	Property(name string) (any, bool)
}

// Record is an instance described by a property snapshot, used when the
// caller does not hold a typed entity (e.g., HTTP eligibility requests).
type Record struct {
	Kind       string
	ID         int64
	Properties map[string]any
}

func (r *Record) EntityKind() string { return r.Kind }
func (r *Record) EntityID() int64    { return r.ID }

// Property implements PropertySource.
func (r *Record) Property(name string) (any, bool) {
	if r.Properties == nil {
		return nil, false
	}
	v, ok := r.Properties[name]
	return v, ok
}
