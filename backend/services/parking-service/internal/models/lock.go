package models

import "time"

// LockState is the observable state of a resource lock.
type LockState string

// Lock states.
const (
	LockFree    LockState = "FREE"
	LockHeld    LockState = "HELD"
	LockUnknown LockState = "UNKNOWN"
)

// LockInfo describes the current holder of a resource key.
type LockInfo struct {
	Key       string        `json:"key"`
	State     LockState     `json:"state"`
	OwnerID   string        `json:"owner_id,omitempty"`
	OwnerName string        `json:"owner_name,omitempty"`
	LockedAt  time.Time     `json:"locked_at,omitempty"`
	ExpiresIn time.Duration `json:"expires_in,omitempty"`
}
