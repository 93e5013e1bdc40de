package models

// Тип пользователя (profiles.tipo). После создания профиля не меняется.
const (
	TipoCliente   = "cliente"
	TipoMotorista = "motorista"
)

// Способ входа, которым была создана учётная запись.
const (
	ProviderEmail  = "email"
	ProviderPhone  = "phone"
	ProviderGoogle = "google"
)

// Кэшированный статус подключённого аккаунта Stripe.
const (
	AccountStatusPending    = "pending"
	AccountStatusVerified   = "verified"
	AccountStatusRestricted = "restricted"
)

// Статусы платежа (pagamentos.status).
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// ValidTipo проверяет тип пользователя.
func ValidTipo(tipo string) bool {
	return tipo == TipoCliente || tipo == TipoMotorista
}
