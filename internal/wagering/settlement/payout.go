package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/friendsbet/internal/wagering/domain"
)

// Distribute splits pot across winners in proportion to amount × lockedOdds.
// Each payout is floor(weight × pot / totalWeight), computed exactly, so the sum
// never exceeds pot. The truncated remainder is not redistributed.
func Distribute(pot int64, winners []domain.Bet) ([]domain.Payout, int64) {
	if len(winners) == 0 || pot <= 0 {
		payouts := make([]domain.Payout, 0, len(winners))
		for _, b := range winners {
			payouts = append(payouts, domain.Payout{BetID: b.ID, UserID: b.UserID})
		}
		return payouts, 0
	}

	weights := make([]decimal.Decimal, len(winners))
	total := decimal.Zero
	for i, b := range winners {
		weights[i] = decimal.NewFromInt(b.Amount).Mul(b.LockedOdds)
		total = total.Add(weights[i])
	}

	potDec := decimal.NewFromInt(pot)
	payouts := make([]domain.Payout, 0, len(winners))
	var paid int64
	for i, b := range winners {
		q, _ := weights[i].Mul(potDec).QuoRem(total, 0)
		amount := q.IntPart()
		paid += amount
		payouts = append(payouts, domain.Payout{BetID: b.ID, UserID: b.UserID, Amount: amount})
	}
	return payouts, paid
}
