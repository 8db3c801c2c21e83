package models

import "time"

// Виды уведомлений.
const (
	NotificationReferralJoined     = "referral_joined"
	NotificationCommissionReceived = "commission_received"
)

// Notification сообщает пользователю о событии в его части дерева.
type Notification struct {
	RecipientID string    `json:"recipient_id"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
	OccurredAt  time.Time `json:"occurred_at"`
}
