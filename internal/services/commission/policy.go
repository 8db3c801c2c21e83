package commission

import "github.com/magabrotheeeer/referral-network/internal/models"

// Политика начислений фиксирована.
const (
	// Threshold: комиссия начисляется только за транзакции строго больше порога.
	Threshold    = 1000.0
	DirectRate   = 0.05
	IndirectRate = 0.01
)

// Qualifies сообщает, даёт ли транзакция на сумму amount право на комиссию.
func Qualifies(amount float64) bool {
	return amount > Threshold
}

// Rate возвращает ставку для уровня tier.
func Rate(tier models.Tier) float64 {
	switch tier {
	case models.TierDirect:
		return DirectRate
	case models.TierIndirect:
		return IndirectRate
	default:
		return 0
	}
}

// Payout возвращает размер комиссии уровня tier за транзакцию на сумму amount.
func Payout(amount float64, tier models.Tier) float64 {
	if !Qualifies(amount) {
		return 0
	}
	return amount * Rate(tier)
}
