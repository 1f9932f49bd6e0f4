package eligibility

import (
	"sync"
	"time"

	"github.com/divingclub/clubattrs/internal/entities"
)

// Accessor reads one native property of an instance. ok is false when the
// instance is not of the expected concrete type.
type Accessor func(inst entities.Instance) (value any, ok bool)

// AccessorSet is the native property table of one entity kind. The maps
// are keyed by condition attribute name and probed in resolution order:
// Getters ("email" for GetEmail), Is ("active" for IsActive),
// Has ("licence" for HasLicence), then Methods (exact capability names
// such as "canRegisterToEvents").
type AccessorSet struct {
	Getters map[string]Accessor
	Is      map[string]Accessor
	Has     map[string]Accessor
	Methods map[string]Accessor
}

func (s *AccessorSet) lookup(name string) (Accessor, bool) {
	for _, table := range []map[string]Accessor{s.Getters, s.Is, s.Has, s.Methods} {
		if fn, ok := table[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

// Resolvers maps entity kinds to their accessor tables. It is populated at
// startup and read concurrently afterwards.
type Resolvers struct {
	mu    sync.RWMutex
	kinds map[string]*AccessorSet
}

// NewResolvers creates an empty table.
func NewResolvers() *Resolvers {
	return &Resolvers{kinds: make(map[string]*AccessorSet)}
}

// Register installs the accessor table of kind, replacing any previous one.
func (r *Resolvers) Register(kind string, set *AccessorSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = set
}

// Resolve returns the native value of name on inst. Registered accessors
// come first; instances exposing a property snapshot are consulted next.
// ok is false when no native source knows the name.
func (r *Resolvers) Resolve(inst entities.Instance, name string) (entities.Value, bool) {
	if isNilInstance(inst) {
		return entities.Null(), false
	}
	r.mu.RLock()
	set := r.kinds[inst.EntityKind()]
	r.mu.RUnlock()

	if set != nil {
		if fn, found := set.lookup(name); found {
			if v, ok := fn(inst); ok {
				return entities.ValueOf(v), true
			}
		}
	}

	if src, ok := inst.(entities.PropertySource); ok {
		if v, found := src.Property(name); found {
			return entities.ValueOf(v), true
		}
	}
	return entities.Null(), false
}

// DefaultResolvers registers the club entity kinds. now supplies the
// reference time for date-dependent predicates.
func DefaultResolvers(now func() time.Time) *Resolvers {
	if now == nil {
		now = time.Now
	}
	r := NewResolvers()
	r.Register(entities.KindUser, userAccessors(now))
	r.Register(entities.KindEvent, eventAccessors())
	return r
}

func user(fn func(u *entities.User) any) Accessor {
	return func(inst entities.Instance) (any, bool) {
		u, ok := inst.(*entities.User)
		if !ok || u == nil {
			return nil, false
		}
		return fn(u), true
	}
}

func event(fn func(e *entities.Event) any) Accessor {
	return func(inst entities.Instance) (any, bool) {
		e, ok := inst.(*entities.Event)
		if !ok || e == nil {
			return nil, false
		}
		return fn(e), true
	}
}

func userAccessors(now func() time.Time) *AccessorSet {
	return &AccessorSet{
		Getters: map[string]Accessor{
			"id":                    user(func(u *entities.User) any { return u.ID }),
			"email":                 user(func(u *entities.User) any { return u.Email }),
			"firstName":             user(func(u *entities.User) any { return u.FirstName }),
			"lastName":              user(func(u *entities.User) any { return u.LastName }),
			"roles":                 user(func(u *entities.User) any { return u.Roles }),
			"licenceNumber":         user(func(u *entities.User) any { return u.LicenceNumber }),
			"medicalCertificateEnd": user(func(u *entities.User) any { return u.MedicalCertificateEnd }),
			"createdAt":             user(func(u *entities.User) any { return u.CreatedAt }),
		},
		Is: map[string]Accessor{
			"active": user(func(u *entities.User) any { return u.Active }),
		},
		Has: map[string]Accessor{
			"licence":                 user(func(u *entities.User) any { return u.HasLicence() }),
			"validMedicalCertificate": user(func(u *entities.User) any { return u.HasValidMedicalCertificate(now()) }),
		},
		Methods: map[string]Accessor{
			"canRegisterToEvents": user(func(u *entities.User) any { return u.CanRegisterToEvents(now()) }),
		},
	}
}

func eventAccessors() *AccessorSet {
	return &AccessorSet{
		Getters: map[string]Accessor{
			"id":             event(func(e *entities.Event) any { return e.ID }),
			"title":          event(func(e *entities.Event) any { return e.Title }),
			"startsAt":       event(func(e *entities.Event) any { return e.StartsAt }),
			"capacity":       event(func(e *entities.Event) any { return e.Capacity }),
			"registered":     event(func(e *entities.Event) any { return e.Registered }),
			"location":       event(func(e *entities.Event) any { return e.Location }),
			"minimumLevel":   event(func(e *entities.Event) any { return e.MinimumLevel }),
			"remainingSeats": event(func(e *entities.Event) any { return e.RemainingSeats() }),
		},
		Is: map[string]Accessor{
			"full":      event(func(e *entities.Event) any { return e.IsFull() }),
			"published": event(func(e *entities.Event) any { return e.Published }),
		},
	}
}
