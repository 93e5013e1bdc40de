package models

import "time"

// VerificationCode - одноразовый код подтверждения телефона. Одна строка на номер.
type VerificationCode struct {
	Phone     string    `db:"phone" json:"phone"`
	Code      string    `db:"code" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Valid проверяет срок действия кода на момент now.
func (c *VerificationCode) Valid(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
