package entities

import "time"

// Entity kinds of the diving club.
const (
	KindUser    = "User"
	KindEvent   = "Event"
	KindService = "Service"
	KindGallery = "Gallery"
)

// User is a club member.
type User struct {
	ID                    int64
	Email                 string
	FirstName             string
	LastName              string
	Active                bool
	Roles                 []string
	LicenceNumber         string
	MedicalCertificateEnd *time.Time
	CreatedAt             time.Time
}

func (u *User) EntityKind() string { return KindUser }
func (u *User) EntityID() int64    { return u.ID }

// HasRole reports whether the member holds role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasLicence reports whether a licence number is on file.
func (u *User) HasLicence() bool {
	return u.LicenceNumber != ""
}

// HasValidMedicalCertificate reports whether the certificate covers at.
func (u *User) HasValidMedicalCertificate(at time.Time) bool {
	return u.MedicalCertificateEnd != nil && !u.MedicalCertificateEnd.Before(at)
}

// CanRegisterToEvents reports whether the member may sign up for club events at all.
func (u *User) CanRegisterToEvents(at time.Time) bool {
	return u.Active && u.HasLicence() && u.HasValidMedicalCertificate(at)
}

// Event is a club outing or training session members register to.
type Event struct {
	ID           int64
	Title        string
	StartsAt     time.Time
	Capacity     int
	Registered   int
	Published    bool
	Location     string
	MinimumLevel string
}

func (e *Event) EntityKind() string { return KindEvent }
func (e *Event) EntityID() int64    { return e.ID }

// IsFull reports whether every seat is taken. Capacity 0 means unlimited.
func (e *Event) IsFull() bool {
	return e.Capacity > 0 && e.Registered >= e.Capacity
}

// RemainingSeats returns the free seats, or -1 for unlimited events.
func (e *Event) RemainingSeats() int {
	if e.Capacity == 0 {
		return -1
	}
	if e.Registered >= e.Capacity {
		return 0
	}
	return e.Capacity - e.Registered
}
