// Package models содержит доменные структуры реферальной сети:
// пользователя (узел дерева), транзакцию, результаты начисления комиссий
// и представления «семьи» узла для чтения.
package models

import "time"

// User представляет зарегистрированного пользователя и одновременно узел реферального дерева.
//
// ReferredBy хранит только идентификатор родителя, Referrals содержит упорядоченный
// по времени регистрации список идентификаторов прямых рефералов.
type User struct {
	ID               string    `json:"id" bson:"_id"`
	Username         string    `json:"username" bson:"username"`
	PasswordHash     string    `json:"-" bson:"password_hash"`
	ReferralCode     string    `json:"referral_code" bson:"referral_code"`
	ReferredBy       *string   `json:"referred_by,omitempty" bson:"referred_by,omitempty"`
	Referrals        []string  `json:"referrals" bson:"referrals"`
	DirectEarnings   float64   `json:"direct_earnings" bson:"direct_earnings"`
	IndirectEarnings float64   `json:"indirect_earnings" bson:"indirect_earnings"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}

// IsRoot сообщает, что у пользователя нет реферера.
func (u *User) IsRoot() bool {
	return u.ReferredBy == nil
}

// Node возвращает публичное представление пользователя (имя и реферальный код).
func (u *User) Node() NodeView {
	return NodeView{
		Username:     u.Username,
		ReferralCode: u.ReferralCode,
	}
}
