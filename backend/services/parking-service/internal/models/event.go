package models

import "time"

// Direction of a lane event pushed to dashboards.
type Direction string

// Directions.
const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Event is the realtime notification published on every inbound/outbound transition.
type Event struct {
	Direction   Direction     `json:"direction"`
	SiteID      int64         `json:"site_id"`
	LaneID      int64         `json:"lane_id"`
	SessionID   int64         `json:"session_id,omitempty"`
	Plate       string        `json:"plate"`
	Status      SessionStatus `json:"status"`
	TotalFee    int64         `json:"total_fee"`
	DiscountFee int64         `json:"discount_fee"`
	PaidFee     int64         `json:"paid_fee"`
	ImageRef    string        `json:"image_ref,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// EventFromSession fills an event from the session's current state.
func EventFromSession(dir Direction, laneID int64, s *Session, imageRef string, at time.Time) Event {
	return Event{
		Direction:   dir,
		SiteID:      s.SiteID,
		LaneID:      laneID,
		SessionID:   s.ID,
		Plate:       s.Plate,
		Status:      s.Status,
		TotalFee:    s.TotalFee,
		DiscountFee: s.DiscountFee,
		PaidFee:     s.PaidFee,
		ImageRef:    imageRef,
		Timestamp:   at,
	}
}
