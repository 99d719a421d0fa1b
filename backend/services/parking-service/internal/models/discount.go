package models

import (
	"fmt"
	"strings"
	"time"
)

// DiscountKind selects how a discount reduces the fee.
type DiscountKind string

// Discount kinds.
const (
	DiscountAmount  DiscountKind = "AMOUNT"
	DiscountPercent DiscountKind = "PERCENT"
	DiscountMinutes DiscountKind = "MINUTES"
	DiscountFree    DiscountKind = "FREE"
)

// ParseDiscountKind validates a raw discount kind.
func ParseDiscountKind(raw string) (DiscountKind, error) {
	switch k := DiscountKind(strings.ToUpper(strings.TrimSpace(raw))); k {
	case DiscountAmount, DiscountPercent, DiscountMinutes, DiscountFree:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown discount kind %q", ErrValidation, raw)
}

// Discount is registered against a session by an operator or a validation partner.
type Discount struct {
	ID        int64        `db:"id" json:"id"`
	SessionID int64        `db:"session_id" json:"session_id"`
	Kind      DiscountKind `db:"kind" json:"kind"`
	Value     int64        `db:"value" json:"value"`
	Reason    string       `db:"reason" json:"reason,omitempty"`
	CreatedBy string       `db:"created_by" json:"created_by"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Validate checks value bounds for the kind.
func (d Discount) Validate() error {
	switch d.Kind {
	case DiscountFree:
		return nil
	case DiscountPercent:
		if d.Value <= 0 || d.Value > 100 {
			return fmt.Errorf("%w: percent discount must be within 1..100", ErrValidation)
		}
	case DiscountAmount, DiscountMinutes:
		if d.Value <= 0 {
			return fmt.Errorf("%w: %s discount must be positive", ErrValidation, strings.ToLower(string(d.Kind)))
		}
	default:
		return fmt.Errorf("%w: unknown discount kind %q", ErrValidation, d.Kind)
	}
	return nil
}
