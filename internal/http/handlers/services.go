package handlers

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/service"
)

// Хэндлеры зависят от узких интерфейсов, реализуемых сервисами из internal/service.

// AuthAPI - вход, регистрация и сессии.
type AuthAPI interface {
	VerifyCode(ctx context.Context, phone, countryCode, code string, meta service.SessionMeta) (*service.AuthResult, error)
	CompleteRegistration(ctx context.Context, in service.RegistrationInput, meta service.SessionMeta) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string, meta service.SessionMeta) (*service.AuthResult, error)
	GoogleAuthURL() (string, string, error)
	SignInWithGoogle(ctx context.Context, code string, meta service.SessionMeta) (*service.AuthResult, error)
	Session(ctx context.Context, userID uuid.UUID) (*models.AuthUser, *models.Profile, error)
	Logout(ctx context.Context, userID, sessionID uuid.UUID) error
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error
}

// CodeSender отправляет одноразовые коды по SMS.
type CodeSender interface {
	Send(ctx context.Context, phone, countryCode string) (string, error)
}

// ProfileAPI - профиль текущего пользователя и публичные данные водителя.
type ProfileAPI interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, in service.ProfileUpdateInput) (*models.Profile, error)
	UploadAvatar(ctx context.Context, userID uuid.UUID, r io.Reader) (string, error)
	UploadSelfie(ctx context.Context, userID uuid.UUID, r io.Reader) (string, error)
	PublicDriverInfo(ctx context.Context, phone string) (*models.PublicDriverInfo, error)
}

// PaymentAPI - создание и отслеживание платежей.
type PaymentAPI interface {
	CreateIntent(ctx context.Context, in service.CreateIntentInput) (*service.IntentResult, error)
	UpdateIntent(ctx context.Context, intentID string, amountCents, tipCents int64) (*service.IntentResult, error)
	CheckStatus(ctx context.Context, intentID string) (*service.PaymentStatus, error)
	DriverHistory(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]models.Payment, error)
	ClientHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error)
}

// ConnectAPI - подключённый аккаунт водителя.
type ConnectAPI interface {
	EnsureConnectedAccount(ctx context.Context, driverID uuid.UUID) (*service.ConnectLink, error)
	RefreshStatus(ctx context.Context, driverID uuid.UUID) (*service.AccountStatus, error)
	Balance(ctx context.Context, driverID uuid.UUID) (*models.ConnectBalance, error)
	Transactions(ctx context.Context, driverID uuid.UUID, limit int) ([]models.ConnectTransaction, error)
}

// ReceiptAPI - PDF-квитанции.
type ReceiptAPI interface {
	ClientReceipt(ctx context.Context, chargeID string) ([]byte, error)
	DriverReceipt(ctx context.Context, driverID uuid.UUID, chargeID string) ([]byte, error)
}

// WebhookAPI - обработка подписанных событий Stripe.
type WebhookAPI interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}
