package fee

import (
	"time"

	"autopark/backend/services/parking-service/internal/models"
)

// ApplyDiscounts reduces res by the registered discounts. The discount never exceeds the total.
func ApplyDiscounts(res Result, discounts []models.Discount, entry, exit time.Time, class models.VehicleClass, policy models.FeePolicy) Result {
	res.DiscountAmount = 0
	res.FinalFee = res.TotalFee
	if res.TotalFee == 0 || len(discounts) == 0 {
		return res
	}

	var amount, percent, minutes int64
	for _, d := range discounts {
		switch d.Kind {
		case models.DiscountFree:
			res.DiscountAmount = res.TotalFee
			res.FinalFee = 0
			return res
		case models.DiscountAmount:
			amount += d.Value
		case models.DiscountPercent:
			percent += d.Value
		case models.DiscountMinutes:
			minutes += d.Value
		}
	}

	var discount int64
	if minutes > 0 {
		shortenedExit := exit.Add(-time.Duration(minutes) * time.Minute)
		if shortenedExit.Before(entry) {
			shortenedExit = entry
		}
		shortened := Calculate(entry, shortenedExit, class, policy)
		discount += res.TotalFee - shortened.TotalFee
	}
	discount += amount
	if percent > 100 {
		percent = 100
	}
	if percent > 0 {
		discount += res.TotalFee * percent / 100
	}

	if discount < 0 {
		discount = 0
	}
	if discount > res.TotalFee {
		discount = res.TotalFee
	}
	res.DiscountAmount = discount
	res.FinalFee = res.TotalFee - discount
	return res
}

// Settlement is the fee position of a session at a point in time.
type Settlement struct {
	Result
	Remaining int64 `json:"remaining"`
	// WithinSettlementGrace is set when a prior full settlement still covers the stay.
	WithinSettlementGrace bool `json:"within_settlement_grace"`
}

// Settle computes what a session owes at now: the discounted fee minus what was already paid,
// floored at zero. A session that became fully settled within graceMinutes of now owes nothing.
func Settle(s *models.Session, now time.Time, policy models.FeePolicy, discounts []models.Discount, graceMinutes int64) Settlement {
	res := Calculate(s.EntryTime, now, s.VehicleClass, policy)
	res = ApplyDiscounts(res, discounts, s.EntryTime, now, s.VehicleClass, policy)

	out := Settlement{Result: res}
	if res.Exempt {
		return out
	}
	if s.PaidAt != nil && graceMinutes > 0 && now.Sub(*s.PaidAt) <= time.Duration(graceMinutes)*time.Minute {
		out.WithinSettlementGrace = true
		return out
	}
	if remaining := res.FinalFee - s.PaidFee; remaining > 0 {
		out.Remaining = remaining
	}
	return out
}
