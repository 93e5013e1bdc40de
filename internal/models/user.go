package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthUser описывает учётную запись провайдера идентификации.
type AuthUser struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        *string    `db:"email" json:"email,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	PasswordHash *string    `db:"password_hash" json:"-"`
	Provider     string     `db:"provider" json:"provider"`
	LastSignInAt *time.Time `db:"last_sign_in_at" json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Profile хранит прикладные атрибуты пользователя. ID совпадает с AuthUser.ID.
type Profile struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Nome                string    `db:"nome" json:"nome"`
	Email               *string   `db:"email" json:"email,omitempty"`
	Celular             *string   `db:"celular" json:"celular,omitempty"`
	CPF                 *string   `db:"cpf" json:"cpf,omitempty"`
	Tipo                string    `db:"tipo" json:"tipo"`
	AvatarURL           *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	SelfieURL           *string   `db:"selfie_url" json:"selfie_url,omitempty"`
	StripeAccountID     *string   `db:"stripe_account_id" json:"stripe_account_id,omitempty"`
	StripeAccountStatus *string   `db:"stripe_account_status" json:"stripe_account_status,omitempty"`
	StripeCustomerID    *string   `db:"stripe_customer_id" json:"-"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// IsDriver сообщает, является ли профиль водителем.
func (p *Profile) IsDriver() bool {
	return p.Tipo == TipoMotorista
}

// HasConnectedAccount сообщает, подключён ли к профилю аккаунт Stripe.
func (p *Profile) HasConnectedAccount() bool {
	return p.StripeAccountID != nil && *p.StripeAccountID != ""
}

// PublicDriverInfo - поля водителя, видимые на публичной странице оплаты.
type PublicDriverInfo struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Nome      string    `db:"nome" json:"nome"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	Celular   string    `db:"celular" json:"celular"`
}

// Session представляет выданную сессию. ID совпадает с jti токена.
type Session struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	UserAgent *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
