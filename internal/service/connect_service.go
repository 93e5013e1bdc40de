package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/repository"
)

// ConnectGateway - операции Stripe Connect, нужные для подключения водителей.
type ConnectGateway interface {
	CreateAccount(ctx context.Context, p payments.CreateAccountParams) (*payments.Account, error)
	GetAccount(ctx context.Context, accountID string) (*payments.Account, error)
	OnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	LoginLink(ctx context.Context, accountID string) (string, error)
	Balance(ctx context.Context, accountID string) (*payments.Balance, error)
	Transactions(ctx context.Context, accountID string, limit int) ([]payments.Transaction, error)
}

// ConnectService подключает водителей к Stripe и следит за статусом их аккаунтов.
type ConnectService struct {
	profiles ProfileRepository
	gateway  ConnectGateway
	appURL   string
}

// ConnectLink - результат запроса на подключение.
type ConnectLink struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Created   bool   `json:"created"`
	Onboarded bool   `json:"onboarded"`
}

// AccountStatus - состояние подключённого аккаунта водителя.
type AccountStatus struct {
	AccountID        string `json:"account_id"`
	Status           string `json:"status"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	DisabledReason   string `json:"disabled_reason,omitempty"`
}

// NewConnectService создаёт сервис. appURL - адрес фронтенда для возврата из анкеты Stripe.
func NewConnectService(profiles ProfileRepository, gateway ConnectGateway, appURL string) *ConnectService {
	return &ConnectService{profiles: profiles, gateway: gateway, appURL: appURL}
}

// ClassifyAccount переводит состояние аккаунта Stripe в кэшируемый статус.
func ClassifyAccount(acct *payments.Account) string {
	switch {
	case acct.ChargesEnabled && acct.PayoutsEnabled:
		return models.AccountStatusVerified
	case acct.DisabledReason != "":
		return models.AccountStatusRestricted
	default:
		return models.AccountStatusPending
	}
}

// EnsureConnectedAccount создаёт аккаунт водителю без аккаунта и возвращает ссылку на анкету.
// Если аккаунт уже есть, второй не создаётся: возвращается ссылка на кабинет или новая ссылка на анкету.
func (s *ConnectService) EnsureConnectedAccount(ctx context.Context, driverID uuid.UUID) (*ConnectLink, error) {
	profile, err := s.driver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	log := logger.Log.WithField("driver_id", driverID)

	if !profile.HasConnectedAccount() {
		params := payments.CreateAccountParams{DriverID: driverID.String()}
		if profile.Email != nil {
			params.Email = *profile.Email
		}
		if profile.Celular != nil {
			params.Phone = *profile.Celular
		}

		acct, err := s.gateway.CreateAccount(ctx, params)
		if err != nil {
			log.WithError(err).Error("connect service: не удалось создать аккаунт")
			return nil, apperror.ErrPaymentProvider.WithCause(err)
		}
		if err := s.profiles.SetStripeAccount(ctx, driverID, acct.ID, models.AccountStatusPending); err != nil {
			return nil, fmt.Errorf("connect service: %w", err)
		}

		link, err := s.gateway.OnboardingLink(ctx, acct.ID, s.refreshURL(), s.returnURL())
		if err != nil {
			return nil, apperror.ErrPaymentProvider.WithCause(err)
		}

		log.WithField("account_id", acct.ID).Info("connect service: аккаунт создан")
		return &ConnectLink{AccountID: acct.ID, URL: link, Status: models.AccountStatusPending, Created: true}, nil
	}

	accountID := *profile.StripeAccountID
	acct, err := s.account(ctx, profile)
	if err != nil {
		return nil, err
	}
	status := s.cacheStatus(ctx, profile, acct)

	var link string
	if acct.DetailsSubmitted {
		link, err = s.gateway.LoginLink(ctx, accountID)
	} else {
		link, err = s.gateway.OnboardingLink(ctx, accountID, s.refreshURL(), s.returnURL())
	}
	if err != nil {
		return nil, apperror.ErrPaymentProvider.WithCause(err)
	}

	return &ConnectLink{AccountID: accountID, URL: link, Status: status, Onboarded: acct.DetailsSubmitted}, nil
}

// RefreshStatus запрашивает состояние аккаунта у Stripe и кэширует его в профиле.
func (s *ConnectService) RefreshStatus(ctx context.Context, driverID uuid.UUID) (*AccountStatus, error) {
	profile, err := s.driver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !profile.HasConnectedAccount() {
		return nil, apperror.ErrNoConnectedAccount
	}

	acct, err := s.account(ctx, profile)
	if err != nil {
		return nil, err
	}

	return &AccountStatus{
		AccountID:        acct.ID,
		Status:           s.cacheStatus(ctx, profile, acct),
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		DisabledReason:   acct.DisabledReason,
	}, nil
}

// Balance возвращает баланс подключённого аккаунта.
func (s *ConnectService) Balance(ctx context.Context, driverID uuid.UUID) (*models.ConnectBalance, error) {
	accountID, err := s.accountID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	b, err := s.gateway.Balance(ctx, accountID)
	if err != nil {
		return nil, s.gatewayErr(ctx, driverID, err)
	}
	return &models.ConnectBalance{Available: b.Available, Pending: b.Pending, Currency: b.Currency}, nil
}

// Transactions возвращает выписку водителя, новые операции первыми.
func (s *ConnectService) Transactions(ctx context.Context, driverID uuid.UUID, limit int) ([]models.ConnectTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	accountID, err := s.accountID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	txs, err := s.gateway.Transactions(ctx, accountID, limit)
	if err != nil {
		return nil, s.gatewayErr(ctx, driverID, err)
	}

	result := make([]models.ConnectTransaction, 0, len(txs))
	for _, tx := range txs {
		result = append(result, models.ConnectTransaction{
			ID:          tx.ID,
			Type:        tx.Type,
			Amount:      tx.AmountCents,
			Fee:         tx.FeeCents,
			Net:         tx.NetCents,
			Currency:    tx.Currency,
			Status:      tx.Status,
			Description: tx.Description,
			CreatedAt:   tx.Created,
		})
	}
	return result, nil
}

// SyncAccount отражает событие account.updated в профиле водителя.
func (s *ConnectService) SyncAccount(ctx context.Context, acct *payments.Account) error {
	profile, err := s.profiles.GetByStripeAccountID(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			logger.Log.WithField("account_id", acct.ID).Warn("connect service: событие для неизвестного аккаунта")
			return nil
		}
		return fmt.Errorf("connect service: %w", err)
	}

	status := ClassifyAccount(acct)
	if err := s.profiles.SetStripeAccountStatus(ctx, profile.ID, status); err != nil {
		return fmt.Errorf("connect service: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"driver_id": profile.ID, "account_id": acct.ID, "status": status}).
		Info("connect service: статус аккаунта обновлён")
	return nil
}

// SyncAll обновляет статусы всех подключённых водителей и возвращает число успешных.
func (s *ConnectService) SyncAll(ctx context.Context) (int, error) {
	drivers, err := s.profiles.ListDriversWithAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("connect service: %w", err)
	}

	synced := 0
	for _, d := range drivers {
		if _, err := s.RefreshStatus(ctx, d.ID); err != nil {
			logger.Log.WithError(err).WithField("driver_id", d.ID).Warn("connect service: не удалось обновить статус")
			continue
		}
		synced++
	}
	return synced, nil
}

func (s *ConnectService) driver(ctx context.Context, driverID uuid.UUID) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, fmt.Errorf("connect service: %w", err)
	}
	if !profile.IsDriver() {
		return nil, apperror.ErrDriverOnly
	}
	return profile, nil
}

func (s *ConnectService) accountID(ctx context.Context, driverID uuid.UUID) (string, error) {
	profile, err := s.driver(ctx, driverID)
	if err != nil {
		return "", err
	}
	if !profile.HasConnectedAccount() {
		return "", apperror.ErrNoConnectedAccount
	}
	return *profile.StripeAccountID, nil
}

// account загружает аккаунт у Stripe. Удалённый аккаунт отвязывается от профиля.
func (s *ConnectService) account(ctx context.Context, profile *models.Profile) (*payments.Account, error) {
	acct, err := s.gateway.GetAccount(ctx, *profile.StripeAccountID)
	if err != nil {
		return nil, s.gatewayErr(ctx, profile.ID, err)
	}
	return acct, nil
}

func (s *ConnectService) gatewayErr(ctx context.Context, driverID uuid.UUID, err error) error {
	if errors.Is(err, payments.ErrNotFound) {
		if cerr := s.profiles.ClearStripeAccount(ctx, driverID); cerr != nil {
			logger.Log.WithError(cerr).WithField("driver_id", driverID).Error("connect service: не удалось отвязать аккаунт")
		} else {
			logger.Log.WithField("driver_id", driverID).Warn("connect service: аккаунт не найден в Stripe, привязка сброшена")
		}
		return apperror.ErrAccountNotFound
	}
	return apperror.ErrPaymentProvider.WithCause(err)
}

func (s *ConnectService) cacheStatus(ctx context.Context, profile *models.Profile, acct *payments.Account) string {
	status := ClassifyAccount(acct)
	if profile.StripeAccountStatus != nil && *profile.StripeAccountStatus == status {
		return status
	}
	if err := s.profiles.SetStripeAccountStatus(ctx, profile.ID, status); err != nil {
		logger.Log.WithError(err).WithField("driver_id", profile.ID).Warn("connect service: не удалось сохранить статус")
	}
	return status
}

func (s *ConnectService) refreshURL() string {
	return s.appURL + "/motorista/stripe/refresh"
}

func (s *ConnectService) returnURL() string {
	return s.appURL + "/motorista/stripe/return"
}
