package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment - запись в таблице pagamentos. Суммы хранятся в сентаво (BRL).
type Payment struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	DriverID              uuid.UUID  `db:"driver_id" json:"driver_id"`
	UserID                *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Amount                int64      `db:"amount" json:"amount"`
	TipAmount             int64      `db:"tip_amount" json:"tip_amount"`
	TotalAmount           int64      `db:"total_amount" json:"total_amount"`
	ApplicationFeeAmount  int64      `db:"application_fee_amount" json:"application_fee_amount"`
	Currency              string     `db:"currency" json:"currency"`
	PaymentMethod         *string    `db:"payment_method" json:"payment_method,omitempty"`
	Status                string     `db:"status" json:"status"`
	StripePaymentIntentID string     `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id"`
	StripeChargeID        *string    `db:"stripe_charge_id" json:"stripe_charge_id,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// ConnectBalance - баланс подключённого аккаунта водителя в сентаво.
type ConnectBalance struct {
	Available int64  `json:"available"`
	Pending   int64  `json:"pending"`
	Currency  string `json:"currency"`
}

// ConnectTransaction - строка выписки водителя: перевод или комиссия.
type ConnectTransaction struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Fee         int64     `json:"fee"`
	Net         int64     `json:"net"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
