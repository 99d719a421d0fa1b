package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a parking session.
type SessionStatus string

// Session statuses.
const (
	StatusRunning        SessionStatus = "RUNNING"
	StatusPaymentPending SessionStatus = "PAYMENT_PENDING"
	StatusCompleted      SessionStatus = "COMPLETED"
	StatusForceCompleted SessionStatus = "FORCE_COMPLETED"
	StatusCanceled       SessionStatus = "CANCELED"
	StatusRunaway        SessionStatus = "RUNAWAY"
	StatusGhostExit      SessionStatus = "GHOST_EXIT"
)

// OpenStatuses lists the non-terminal statuses a vehicle can be parked under.
var OpenStatuses = []SessionStatus{StatusRunning, StatusPaymentPending}

var transitions = map[SessionStatus][]SessionStatus{
	StatusRunning:        {StatusPaymentPending, StatusCompleted, StatusForceCompleted, StatusCanceled, StatusRunaway},
	StatusPaymentPending: {StatusRunning, StatusCompleted, StatusForceCompleted, StatusRunaway},
}

// Terminal reports whether no further transition is possible from s.
// GHOST_EXIT records are standalone audit rows and are treated as terminal.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusForceCompleted, StatusCanceled, StatusRunaway, StatusGhostExit:
		return true
	}
	return false
}

// Open reports whether a vehicle is still considered inside the facility.
func (s SessionStatus) Open() bool {
	return s == StatusRunning || s == StatusPaymentPending
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusRunning, StatusPaymentPending, StatusCompleted, StatusForceCompleted,
		StatusCanceled, StatusRunaway, StatusGhostExit:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from one status to another.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when from → to is not allowed.
func CheckTransition(from, to SessionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// VehicleClass drives member exemption and reporting.
type VehicleClass string

// Vehicle classes.
const (
	VehicleNormal   VehicleClass = "NORMAL"
	VehicleMember   VehicleClass = "MEMBER"
	VehicleCompact  VehicleClass = "COMPACT"
	VehicleElectric VehicleClass = "ELECTRIC"
)

// ParseVehicleClass maps a raw value to a VehicleClass. Empty input yields NORMAL.
func ParseVehicleClass(raw string) (VehicleClass, error) {
	switch c := VehicleClass(strings.ToUpper(strings.TrimSpace(raw))); c {
	case "":
		return VehicleNormal, nil
	case VehicleNormal, VehicleMember, VehicleCompact, VehicleElectric:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown vehicle class %q", ErrValidation, raw)
}

// Session represents a single stay of a vehicle at a site.
type Session struct {
	ID            int64         `db:"id" json:"id"`
	SiteID        int64         `db:"site_id" json:"site_id"`
	Plate         string        `db:"plate" json:"plate"`
	VehicleClass  VehicleClass  `db:"vehicle_class" json:"vehicle_class"`
	EntryTime     time.Time     `db:"entry_time" json:"entry_time"`
	EntryLaneID   int64         `db:"entry_lane_id" json:"entry_lane_id"`
	EntryImageRef string        `db:"entry_image_ref" json:"entry_image_ref,omitempty"`
	ExitTime      *time.Time    `db:"exit_time" json:"exit_time,omitempty"`
	ExitLaneID    *int64        `db:"exit_lane_id" json:"exit_lane_id,omitempty"`
	ExitImageRef  string        `db:"exit_image_ref" json:"exit_image_ref,omitempty"`
	Status        SessionStatus `db:"status" json:"status"`
	TotalFee      int64         `db:"total_fee" json:"total_fee"`
	DiscountFee   int64         `db:"discount_fee" json:"discount_fee"`
	PaidFee       int64         `db:"paid_fee" json:"paid_fee"`
	// RequestedFee is the amount currently requested from the exit terminal.
	RequestedFee int64 `db:"requested_fee" json:"requested_fee"`
	// PaidAt is when the session last became fully settled.
	PaidAt    *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	Note      string     `db:"note" json:"note,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// RemainingDue is what is still owed against the currently recorded fees.
func (s *Session) RemainingDue() int64 {
	due := s.TotalFee - s.DiscountFee - s.PaidFee
	if due < 0 {
		return 0
	}
	return due
}

// StampExit records exit lane, time and image.
func (s *Session) StampExit(laneID int64, at time.Time, imageRef string) {
	lane := laneID
	exit := at
	s.ExitLaneID = &lane
	s.ExitTime = &exit
	if imageRef != "" {
		s.ExitImageRef = imageRef
	}
}

// ClearExit drops tentative exit fields, used when a pending payment is reverted.
func (s *Session) ClearExit() {
	s.ExitLaneID = nil
	s.ExitTime = nil
	s.ExitImageRef = ""
}

// ReconcileForClose enforces paid ≤ total − discount before the session turns terminal. The
// discount shrinks first; money received beyond the recomputed total raises the total to paid.
func (s *Session) ReconcileForClose() {
	s.CoverPaid()
	s.RequestedFee = 0
}

// CoverPaid adjusts discount and total so that paid ≤ total − discount.
func (s *Session) CoverPaid() {
	if s.DiscountFee > s.TotalFee {
		s.DiscountFee = s.TotalFee
	}
	if s.PaidFee > s.TotalFee-s.DiscountFee {
		s.DiscountFee = max(0, s.TotalFee-s.PaidFee)
	}
	if s.PaidFee > s.TotalFee {
		s.TotalFee = s.PaidFee
	}
}

// AppendNote adds a line to the free-form note.
func (s *Session) AppendNote(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if s.Note == "" {
		s.Note = line
		return
	}
	s.Note = s.Note + "\n" + line
}
