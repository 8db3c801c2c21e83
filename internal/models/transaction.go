package models

import "time"

// Transaction описывает неизменяемую транзакцию пользователя.
type Transaction struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Amount    float64   `json:"amount" bson:"amount"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Tier — уровень реферера относительно автора транзакции.
type Tier int

const (
	// TierDirect — прямой реферер (родитель).
	TierDirect Tier = 1
	// TierIndirect — реферер реферера (дед).
	TierIndirect Tier = 2
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierIndirect:
		return "indirect"
	default:
		return "unknown"
	}
}

// PayoutStatus описывает исход начисления комиссии на одном уровне.
type PayoutStatus string

const (
	PayoutCredited PayoutStatus = "credited"
	PayoutSkipped  PayoutStatus = "skipped"
	PayoutFailed   PayoutStatus = "failed"
)

// Payout описывает результат начисления комиссии одному получателю.
// BeneficiaryID пуст, если получателя на этом уровне нет.
type Payout struct {
	Tier          Tier         `json:"tier"`
	BeneficiaryID string       `json:"beneficiary_id,omitempty"`
	Amount        float64      `json:"amount"`
	Status        PayoutStatus `json:"status"`
}

// Receipt — итог записи транзакции: сама транзакция и исходы начислений по уровням.
type Receipt struct {
	Transaction Transaction `json:"transaction"`
	Payouts     []Payout    `json:"payouts"`
}

// Failed возвращает начисления, которые не удалось применить.
func (r *Receipt) Failed() []Payout {
	var failed []Payout
	for _, p := range r.Payouts {
		if p.Status == PayoutFailed {
			failed = append(failed, p)
		}
	}
	return failed
}
