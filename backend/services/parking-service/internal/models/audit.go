package models

import "time"

// AuditKind groups audit entries by origin.
type AuditKind string

// Audit kinds.
const (
	AuditInbound     AuditKind = "INBOUND"
	AuditOutbound    AuditKind = "OUTBOUND"
	AuditOperator    AuditKind = "OPERATOR"
	AuditDeviceEvent AuditKind = "DEVICE_EVENT"
	AuditAlert       AuditKind = "ALERT"
)

// Actor identifies who triggered an action.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SystemActor is used for automatic lane events and cleanup jobs.
var SystemActor = Actor{ID: "system", Name: "system"}

// AuditEntry is an append-only record of a state-changing action.
type AuditEntry struct {
	ID        int64          `db:"id" json:"id"`
	Kind      AuditKind      `db:"kind" json:"kind"`
	SiteID    int64          `db:"site_id" json:"site_id"`
	SessionID *int64         `db:"session_id" json:"session_id,omitempty"`
	LaneID    *int64         `db:"lane_id" json:"lane_id,omitempty"`
	Plate     string         `db:"plate" json:"plate,omitempty"`
	Actor     string         `db:"actor" json:"actor"`
	Action    string         `db:"action" json:"action"`
	Reason    string         `db:"reason" json:"reason,omitempty"`
	Payload   map[string]any `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
