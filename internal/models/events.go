package models

import "time"

// Ключи маршрутизации событий в обменнике.
const (
	EventUserRegistered     = "user.registered"
	EventCommissionCredited = "commission.credited"
)

// UserRegistered публикуется после успешной регистрации.
type UserRegistered struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	ReferredBy *string   `json:"referred_by,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CommissionCredited публикуется после каждого успешного начисления.
type CommissionCredited struct {
	TransactionID string    `json:"transaction_id"`
	BeneficiaryID string    `json:"beneficiary_id"`
	Tier          Tier      `json:"tier"`
	Amount        float64   `json:"amount"`
	OccurredAt    time.Time `json:"occurred_at"`
}
