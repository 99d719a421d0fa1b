package models

import (
	"fmt"
	"strings"
)

// OperationMode controls whether a site bills at all.
type OperationMode string

// Operation modes.
const (
	ModeNormal OperationMode = "NORMAL"
	ModeFree   OperationMode = "FREE"
)

// ParseOperationMode converts a stored value into an OperationMode. Empty means NORMAL.
func ParseOperationMode(raw string) (OperationMode, error) {
	switch m := OperationMode(strings.ToUpper(strings.TrimSpace(raw))); m {
	case "":
		return ModeNormal, nil
	case ModeNormal, ModeFree:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown operation mode %q", ErrValidation, raw)
}

// BlacklistBehavior decides what happens when a listed plate arrives.
type BlacklistBehavior string

// Blacklist behaviors.
const (
	BlacklistBlock BlacklistBehavior = "BLOCK"
	BlacklistWarn  BlacklistBehavior = "WARN"
)

// ParseBlacklistBehavior converts a stored value. Empty means BLOCK.
func ParseBlacklistBehavior(raw string) (BlacklistBehavior, error) {
	switch b := BlacklistBehavior(strings.ToUpper(strings.TrimSpace(raw))); b {
	case "":
		return BlacklistBlock, nil
	case BlacklistBlock, BlacklistWarn:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown blacklist behavior %q", ErrValidation, raw)
}

// UnrecognizedBehavior decides what happens when an entry camera reports no readable plate.
type UnrecognizedBehavior string

// Unrecognized-plate behaviors.
const (
	// UnrecognizedHold keeps the gate closed and alerts the operator.
	UnrecognizedHold UnrecognizedBehavior = "HOLD"
	// UnrecognizedAdmit opens the gate and creates a session under a placeholder plate
	// that the operator corrects later.
	UnrecognizedAdmit UnrecognizedBehavior = "ADMIT"
)

// ParseUnrecognizedBehavior converts a stored value. Empty means HOLD.
func ParseUnrecognizedBehavior(raw string) (UnrecognizedBehavior, error) {
	switch b := UnrecognizedBehavior(strings.ToUpper(strings.TrimSpace(raw))); b {
	case "":
		return UnrecognizedHold, nil
	case UnrecognizedHold, UnrecognizedAdmit:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown unrecognized behavior %q", ErrValidation, raw)
}

// FeePolicy is the per-site pricing configuration.
type FeePolicy struct {
	BaseTimeMinutes  int64 `db:"base_time_minutes" json:"base_time_minutes" yaml:"baseTimeMinutes"`
	BaseFee          int64 `db:"base_fee" json:"base_fee" yaml:"baseFee"`
	UnitTimeMinutes  int64 `db:"unit_time_minutes" json:"unit_time_minutes" yaml:"unitTimeMinutes"`
	UnitFee          int64 `db:"unit_fee" json:"unit_fee" yaml:"unitFee"`
	GraceTimeMinutes int64 `db:"grace_time_minutes" json:"grace_time_minutes" yaml:"graceTimeMinutes"`
	DailyMaxFee      int64 `db:"daily_max_fee" json:"daily_max_fee" yaml:"dailyMaxFee"`
}

// SiteConfig is the policy snapshot the orchestrator works with. Behavior strings are already
// parsed into closed enumerations.
type SiteConfig struct {
	SiteID                    int64
	Name                      string
	OperationMode             OperationMode
	BlacklistBehavior         BlacklistBehavior
	UnrecognizedBehavior      UnrecognizedBehavior
	ReEntryLimitMinutes       int64
	PreSettlementGraceMinutes int64
	// Capacity of zero means unlimited.
	Capacity int
	Fee      FeePolicy
}

// Free reports whether the site currently lets every vehicle through without billing.
func (c SiteConfig) Free() bool {
	return c.OperationMode == ModeFree
}

// LaneDirection tells whether a lane serves entries or exits.
type LaneDirection string

// Lane directions.
const (
	LaneIn  LaneDirection = "IN"
	LaneOut LaneDirection = "OUT"
)

// Lane is a physical gate with its controller.
type Lane struct {
	ID        int64         `db:"id" json:"id"`
	SiteID    int64         `db:"site_id" json:"site_id"`
	Name      string        `db:"name" json:"name"`
	Direction LaneDirection `db:"direction" json:"direction"`
	// Vendor selects the device adapter from the registry.
	Vendor   string `db:"vendor" json:"vendor"`
	Endpoint string `db:"endpoint" json:"endpoint"`
}

// BlacklistEntry describes why a plate is listed.
type BlacklistEntry struct {
	SiteID int64  `db:"site_id" json:"site_id"`
	Plate  string `db:"plate" json:"plate"`
	Reason string `db:"reason" json:"reason"`
}
