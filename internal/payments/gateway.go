// Package payments описывает операции платёжного провайдера и реализует их поверх Stripe Connect.
package payments

import (
	"errors"
	"time"
)

// ErrNotFound - провайдер не знает запрошенный объект (аккаунт удалён, неверный id).
var ErrNotFound = errors.New("payments: resource not found")

// ErrInvalidSignature - подпись вебхука не прошла проверку.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// Валюта всех платежей платформы.
const CurrencyBRL = "brl"

// Типы событий вебхука, которые обрабатывает сервис.
const (
	EventAccountUpdated         = "account.updated"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// Статусы PaymentIntent у провайдера.
const (
	IntentStatusSucceeded             = "succeeded"
	IntentStatusCanceled              = "canceled"
	IntentStatusProcessing            = "processing"
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
)

// Account - подключённый аккаунт водителя.
type Account struct {
	ID               string
	Email            string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	DisabledReason   string
}

// CreateAccountParams - данные для нового Express-аккаунта.
type CreateAccountParams struct {
	Email    string
	Phone    string
	DriverID string
}

// CustomerParams - данные клиента (пассажира) у провайдера.
type CustomerParams struct {
	Name    string
	Email   string
	Phone   string
	Profile string
}

// CreateIntentParams - параметры PaymentIntent с переводом водителю.
type CreateIntentParams struct {
	AmountCents        int64
	FeeCents           int64
	DestinationAccount string
	CustomerID         string
	ReceiptEmail       string
	Description        string
	Metadata           map[string]string
	IdempotencyKey     string
}

// Intent - PaymentIntent в объёме, нужном сервису.
type Intent struct {
	ID                 string
	ClientSecret       string
	Status             string
	AmountCents        int64
	FeeCents           int64
	DestinationAccount string
	LatestChargeID     string
	PaymentMethodType  string
	Metadata           map[string]string
	LastError          string
}

// Charge - проведённое списание.
type Charge struct {
	ID                 string
	PaymentIntentID    string
	AmountCents        int64
	FeeCents           int64
	Currency           string
	DestinationAccount string
	Status             string
	Description        string
	BillingName        string
	ReceiptEmail       string
	PaymentMethodType  string
	CardBrand          string
	CardLast4          string
	Created            time.Time
}

// Balance - баланс подключённого аккаунта в сентаво.
type Balance struct {
	Available int64
	Pending   int64
	Currency  string
}

// Transaction - строка выписки подключённого аккаунта.
type Transaction struct {
	ID          string
	Type        string
	AmountCents int64
	FeeCents    int64
	NetCents    int64
	Currency    string
	Status      string
	Description string
	Created     time.Time
}

// Event - проверенное событие вебхука. Заполнено поле, соответствующее Type.
type Event struct {
	ID      string
	Type    string
	Account *Account
	Intent  *Intent
}
