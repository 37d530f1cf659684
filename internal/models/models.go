package models

import (
	"time"

	"rental-booking/internal/overlap"
)

// RequestStatus reservation request lifecycle state
type RequestStatus string

const (
	StatusWait     RequestStatus = "WAIT"
	StatusApproved RequestStatus = "APPROVED"
	StatusDenied   RequestStatus = "DENIED"
)

// Valid reports whether s is one of the three known states
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusWait, StatusApproved, StatusDenied:
		return true
	}
	return false
}

// Terminal reports whether s is a decided state
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Unit rental listing (hosting/unit)
type Unit struct {
	ID          string
	Version     string
	Title       string
	Description string
	Address     string
	UnitType    string
	Price       int64 // minor currency units per night
	Image       string
	Attachments []string

	Booked               bool
	BookedBy             *string
	BookedUntil          *time.Time
	PendingRequestsCount int

	CreatedBy string // host
	CreatedAt time.Time
	EditedAt  time.Time
}

// Request reservation request (hosting/request), parented by a Unit
type Request struct {
	ID        string
	Version   string
	UnitID    string
	Message   string
	CheckIn   time.Time
	CheckOut  time.Time
	Status    RequestStatus
	CreatedBy string // requester
	CreatedAt time.Time
	EditedAt  time.Time
}

// Range the requested stay
func (r *Request) Range() overlap.Range {
	return overlap.Range{CheckIn: r.CheckIn, CheckOut: r.CheckOut}
}

// RequestUpdate fields a caller asks to change on an existing request.
// Nil means "not part of this edit".
type RequestUpdate struct {
	Status  *RequestStatus
	Message *string
}

// User the fields of a user account this service reads or maintains
type User struct {
	ID                   string
	Username             string
	Email                string
	AppLanguage          string
	ENotifications       bool // subscribed to e-mail notifications
	EValidated           bool // e-mail address confirmed
	PendingRequestsCount int  // requests awaiting this user's decision as host
}
