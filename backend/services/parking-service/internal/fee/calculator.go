// Package fee computes parking fees from entry/exit timestamps and a site's pricing policy.
// Everything here is pure: callers pass the clock reading in.
package fee

import (
	"time"

	"autopark/backend/services/parking-service/internal/models"
)

const minutesPerDay = 1440

// Result is the outcome of a fee calculation.
type Result struct {
	TotalFee        int64 `json:"total_fee"`
	DiscountAmount  int64 `json:"discount_amount"`
	FinalFee        int64 `json:"final_fee"`
	DurationMinutes int64 `json:"duration_minutes"`
	IsGracePeriod   bool  `json:"is_grace_period"`
	// Exempt is set for members; it is not a grace period.
	Exempt bool `json:"exempt"`
}

// Calculate returns the fee owed for a stay from entry to exit.
func Calculate(entry, exit time.Time, class models.VehicleClass, policy models.FeePolicy) Result {
	elapsed := exit.Sub(entry)
	if elapsed < 0 {
		elapsed = 0
	}
	res := Result{DurationMinutes: int64(elapsed / time.Minute)}

	if class == models.VehicleMember {
		res.Exempt = true
		return res
	}
	if res.DurationMinutes <= policy.GraceTimeMinutes {
		res.IsGracePeriod = true
		return res
	}

	days := res.DurationMinutes / minutesPerDay
	remainder := res.DurationMinutes % minutesPerDay

	var dayCost int64
	if days > 0 {
		if policy.DailyMaxFee > 0 {
			dayCost = days * policy.DailyMaxFee
		} else {
			dayCost = days * tiered(minutesPerDay, policy)
		}
	}

	remainderCost := tiered(remainder, policy)
	if policy.DailyMaxFee > 0 && remainderCost > policy.DailyMaxFee {
		remainderCost = policy.DailyMaxFee
	}

	res.TotalFee = dayCost + remainderCost
	res.FinalFee = res.TotalFee
	return res
}

// tiered charges the base block first and then whole units for whatever is left.
// A partial unit bills as a full unit.
func tiered(minutes int64, policy models.FeePolicy) int64 {
	if minutes <= 0 {
		return 0
	}
	var cost int64
	if policy.BaseTimeMinutes > 0 {
		cost += policy.BaseFee
		minutes -= policy.BaseTimeMinutes
	}
	if minutes > 0 && policy.UnitTimeMinutes > 0 {
		units := (minutes + policy.UnitTimeMinutes - 1) / policy.UnitTimeMinutes
		cost += units * policy.UnitFee
	}
	return cost
}
