package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/goroutine"
	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/metrics"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/repository"
	"github.com/pixter/pixter-backend/internal/validation"
)

// События, отправляемые водителю по WebSocket.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// PaymentRepository описывает хранилище pagamentos.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	UpdateAmounts(ctx context.Context, intentID string, amount, tip, total, fee int64) error
	UpdateStatus(ctx context.Context, intentID, status, chargeID, method string) error
	ListByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error)
}

// PaymentGateway - операции Stripe для приёма платежей.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, p payments.CustomerParams) (string, error)
	EphemeralKey(ctx context.Context, customerID string) (string, error)
	CreateIntent(ctx context.Context, p payments.CreateIntentParams) (*payments.Intent, error)
	UpdateIntent(ctx context.Context, intentID string, amountCents, feeCents int64) (*payments.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*payments.Intent, error)
}

// PaymentNotifier доставляет события водителю в реальном времени.
type PaymentNotifier interface {
	Notify(userID uuid.UUID, event string, data any) error
}

// ReceiptEmailer отправляет клиенту квитанцию по email.
type ReceiptEmailer interface {
	EmailClientReceipt(ctx context.Context, chargeID, to string) error
}

// PaymentService создаёт PaymentIntent с переводом водителю и отслеживает их статус.
type PaymentService struct {
	profiles   ProfileRepository
	repo       PaymentRepository
	gateway    PaymentGateway
	notifier   PaymentNotifier
	emailer    ReceiptEmailer
	feePercent int64
	country    string
}

// CreateIntentInput - параметры нового платежа. Водитель задаётся ID или телефоном.
type CreateIntentInput struct {
	DriverID       *uuid.UUID
	DriverPhone    string
	CountryCode    string
	AmountCents    int64
	TipCents       int64
	ClientID       *uuid.UUID
	ReceiptEmail   string
	IdempotencyKey string
}

// IntentResult - данные для подтверждения платежа на клиенте.
type IntentResult struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
	Status          string    `json:"status"`
	DriverID        uuid.UUID `json:"driver_id"`
	Amount          int64     `json:"amount"`
	TipAmount       int64     `json:"tip_amount"`
	TotalAmount     int64     `json:"total_amount"`
	ApplicationFee  int64     `json:"application_fee_amount"`
	Currency        string    `json:"currency"`
	CustomerID      string    `json:"customer_id,omitempty"`
	EphemeralKey    string    `json:"ephemeral_key,omitempty"`
}

// PaymentStatus - текущий статус платежа.
type PaymentStatus struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	ProviderStatus  string `json:"provider_status"`
	ChargeID        string `json:"charge_id,omitempty"`
	Amount          int64  `json:"amount"`
	LastError       string `json:"last_error,omitempty"`
}

// NewPaymentService создаёт сервис платежей с комиссией платформы feePercent.
func NewPaymentService(profiles ProfileRepository, repo PaymentRepository, gateway PaymentGateway, feePercent int64, defaultCountry string) *PaymentService {
	if defaultCountry == "" {
		defaultCountry = "55"
	}
	return &PaymentService{
		profiles:   profiles,
		repo:       repo,
		gateway:    gateway,
		feePercent: feePercent,
		country:    defaultCountry,
	}
}

// SetNotifier подключает доставку событий водителям.
func (s *PaymentService) SetNotifier(n PaymentNotifier) {
	s.notifier = n
}

// SetReceiptEmailer включает отправку квитанций клиентам после оплаты.
func (s *PaymentService) SetReceiptEmailer(e ReceiptEmailer) {
	s.emailer = e
}

// FeePercent возвращает комиссию платформы в процентах.
func (s *PaymentService) FeePercent() int64 {
	return s.feePercent
}

// PlatformFee возвращает комиссию платформы в сентаво с округлением до ближайшего.
func PlatformFee(totalCents, percent int64) int64 {
	return (totalCents*percent + 50) / 100
}

// CreateIntent создаёт PaymentIntent в BRL с переводом на аккаунт водителя.
// Водитель без подключённого аккаунта получает ErrDriverNotFound, и платёж не создаётся.
func (s *PaymentService) CreateIntent(ctx context.Context, in CreateIntentInput) (*IntentResult, error) {
	if err := validation.ValidateAmountCents(in.AmountCents); err != nil {
		return nil, apperror.Validation(err)
	}
	if err := validation.ValidateTipCents(in.TipCents); err != nil {
		return nil, apperror.Validation(err)
	}

	driver, err := s.resolveDriver(ctx, in)
	if err != nil {
		return nil, err
	}

	total := in.AmountCents + in.TipCents
	fee := PlatformFee(total, s.feePercent)
	log := logger.Log.WithFields(logrus.Fields{"driver_id": driver.ID, "total": total})

	params := payments.CreateIntentParams{
		AmountCents:        total,
		FeeCents:           fee,
		DestinationAccount: *driver.StripeAccountID,
		ReceiptEmail:       validation.NormalizeEmail(in.ReceiptEmail),
		Description:        "Pagamento para " + driver.Nome,
		IdempotencyKey:     in.IdempotencyKey,
		Metadata: map[string]string{
			"driver_id":  driver.ID.String(),
			"amount":     strconv.FormatInt(in.AmountCents, 10),
			"tip_amount": strconv.FormatInt(in.TipCents, 10),
		},
	}
	if driver.Celular != nil {
		params.Metadata["driver_phone"] = *driver.Celular
	}

	var client *models.Profile
	if in.ClientID != nil {
		params.Metadata["client_id"] = in.ClientID.String()
		client = s.clientProfile(ctx, *in.ClientID)
		if client != nil {
			params.CustomerID = s.ensureCustomer(ctx, client)
			if params.ReceiptEmail == "" && client.Email != nil {
				params.ReceiptEmail = *client.Email
			}
		}
	}

	intent, err := s.gateway.CreateIntent(ctx, params)
	metrics.PaymentIntents.WithLabelValues("create", metrics.Result(err)).Inc()
	if err != nil {
		log.WithError(err).Error("payment service: не удалось создать PaymentIntent")
		return nil, apperror.ErrPaymentProvider.WithCause(err)
	}

	payment := &models.Payment{
		DriverID:              driver.ID,
		UserID:                in.ClientID,
		Amount:                in.AmountCents,
		TipAmount:             in.TipCents,
		TotalAmount:           total,
		ApplicationFeeAmount:  fee,
		Currency:              payments.CurrencyBRL,
		Status:                models.PaymentStatusPending,
		StripePaymentIntentID: intent.ID,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		log.WithError(err).WithField("intent_id", intent.ID).Error("payment service: не удалось сохранить платёж")
		return nil, fmt.Errorf("payment service: %w", err)
	}

	result := &IntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Status:          intent.Status,
		DriverID:        driver.ID,
		Amount:          in.AmountCents,
		TipAmount:       in.TipCents,
		TotalAmount:     total,
		ApplicationFee:  fee,
		Currency:        payments.CurrencyBRL,
		CustomerID:      params.CustomerID,
	}
	if params.CustomerID != "" {
		key, err := s.gateway.EphemeralKey(ctx, params.CustomerID)
		if err != nil {
			log.WithError(err).Warn("payment service: не удалось выпустить ephemeral key")
		} else {
			result.EphemeralKey = key
		}
	}

	log.WithField("intent_id", intent.ID).Info("payment service: PaymentIntent создан")
	return result, nil
}

// UpdateIntent меняет сумму ещё не подтверждённого платежа вместе с комиссией.
func (s *PaymentService) UpdateIntent(ctx context.Context, intentID string, amountCents, tipCents int64) (*IntentResult, error) {
	if err := validation.ValidateAmountCents(amountCents); err != nil {
		return nil, apperror.Validation(err)
	}
	if err := validation.ValidateTipCents(tipCents); err != nil {
		return nil, apperror.Validation(err)
	}

	payment, err := s.repo.GetByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment service: %w", err)
	}
	// failed - отклонённая попытка: у провайдера intent снова ждёт способ оплаты.
	if payment.Status == models.PaymentStatusSucceeded {
		return nil, apperror.ErrPaymentNotEditable
	}

	current, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, s.intentErr(err)
	}
	switch current.Status {
	case payments.IntentStatusSucceeded, payments.IntentStatusCanceled, payments.IntentStatusProcessing:
		return nil, apperror.ErrPaymentNotEditable
	}

	total := amountCents + tipCents
	fee := PlatformFee(total, s.feePercent)

	intent, err := s.gateway.UpdateIntent(ctx, intentID, total, fee)
	metrics.PaymentIntents.WithLabelValues("update", metrics.Result(err)).Inc()
	if err != nil {
		return nil, s.intentErr(err)
	}

	if err := s.repo.UpdateAmounts(ctx, intentID, amountCents, tipCents, total, fee); err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperror.ErrPaymentNotEditable
		}
		return nil, fmt.Errorf("payment service: %w", err)
	}

	return &IntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Status:          intent.Status,
		DriverID:        payment.DriverID,
		Amount:          amountCents,
		TipAmount:       tipCents,
		TotalAmount:     total,
		ApplicationFee:  fee,
		Currency:        payments.CurrencyBRL,
	}, nil
}

// CheckStatus запрашивает статус PaymentIntent и обновляет запись платежа.
func (s *PaymentService) CheckStatus(ctx context.Context, intentID string) (*PaymentStatus, error) {
	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, s.intentErr(err)
	}

	status := MapIntentStatus(intent.Status)
	if err := s.repo.UpdateStatus(ctx, intent.ID, status, intent.LatestChargeID, intent.PaymentMethodType); err != nil {
		switch {
		case errors.Is(err, repository.ErrPaymentSettled):
		case errors.Is(err, repository.ErrPaymentNotFound):
			logger.Log.WithField("intent_id", intent.ID).Warn("payment service: платёж не найден в pagamentos")
		default:
			return nil, fmt.Errorf("payment service: %w", err)
		}
	}

	return &PaymentStatus{
		PaymentIntentID: intent.ID,
		Status:          status,
		ProviderStatus:  intent.Status,
		ChargeID:        intent.LatestChargeID,
		Amount:          intent.AmountCents,
		LastError:       intent.LastError,
	}, nil
}

// HandleIntentEvent отражает событие payment_intent.* в pagamentos и уведомляет водителя.
func (s *PaymentService) HandleIntentEvent(ctx context.Context, intent *payments.Intent, succeeded bool) error {
	status := models.PaymentStatusFailed
	event := EventPaymentFailed
	chargeID := ""
	if succeeded {
		status = models.PaymentStatusSucceeded
		event = EventPaymentSucceeded
		chargeID = intent.LatestChargeID
	}
	log := logger.Log.WithFields(logrus.Fields{"intent_id": intent.ID, "status": status})

	// Списание отклонённой попытки не сохраняется: в pagamentos только проведённое.
	if err := s.repo.UpdateStatus(ctx, intent.ID, status, chargeID, intent.PaymentMethodType); err != nil {
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			log.Warn("payment service: событие для неизвестного платежа")
			return nil
		case errors.Is(err, repository.ErrPaymentSettled):
			// События приходят не по порядку; проведённый платёж окончателен.
			log.Info("payment service: событие для уже проведённого платежа пропущено")
			return nil
		}
		return fmt.Errorf("payment service: %w", err)
	}

	payment, err := s.repo.GetByIntentID(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("payment service: %w", err)
	}

	if succeeded {
		metrics.PaymentVolume.Add(float64(payment.TotalAmount))
	}

	if s.notifier != nil {
		data := map[string]any{
			"payment_intent_id": intent.ID,
			"charge_id":         intent.LatestChargeID,
			"amount":            payment.Amount,
			"tip_amount":        payment.TipAmount,
			"total_amount":      payment.TotalAmount,
			"status":            status,
		}
		if err := s.notifier.Notify(payment.DriverID, event, data); err != nil {
			log.WithError(err).Warn("payment service: не удалось уведомить водителя")
		}
	}

	if succeeded && s.emailer != nil && intent.LatestChargeID != "" && payment.UserID != nil {
		s.emailReceipt(ctx, *payment.UserID, intent.LatestChargeID)
	}

	log.Info("payment service: статус платежа обновлён")
	return nil
}

// DriverHistory возвращает платежи, полученные водителем.
func (s *PaymentService) DriverHistory(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	list, err := s.repo.ListByDriver(ctx, driverID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}
	return list, nil
}

// ClientHistory возвращает платежи, совершённые клиентом.
func (s *PaymentService) ClientHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	list, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}
	return list, nil
}

// MapIntentStatus сводит статусы PaymentIntent к pending/succeeded/failed.
func MapIntentStatus(status string) string {
	switch status {
	case payments.IntentStatusSucceeded:
		return models.PaymentStatusSucceeded
	case payments.IntentStatusCanceled:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}

func (s *PaymentService) resolveDriver(ctx context.Context, in CreateIntentInput) (*models.Profile, error) {
	var (
		driver *models.Profile
		err    error
	)
	switch {
	case in.DriverID != nil:
		driver, err = s.profiles.GetByID(ctx, *in.DriverID)
	case in.DriverPhone != "":
		country := in.CountryCode
		if country == "" {
			country = s.country
		}
		phone, perr := validation.FormatPhoneNumber(in.DriverPhone, country)
		if perr != nil {
			return nil, apperror.ErrDriverNotFound
		}
		driver, err = s.profiles.GetByPhone(ctx, phone)
	default:
		return nil, apperror.ErrDriverNotFound
	}

	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperror.ErrDriverNotFound
		}
		return nil, fmt.Errorf("payment service: %w", err)
	}
	if !driver.IsDriver() || !driver.HasConnectedAccount() {
		return nil, apperror.ErrDriverNotFound
	}
	return driver, nil
}

func (s *PaymentService) clientProfile(ctx context.Context, clientID uuid.UUID) *models.Profile {
	client, err := s.profiles.GetByID(ctx, clientID)
	if err != nil {
		logger.Log.WithError(err).WithField("client_id", clientID).Warn("payment service: профиль клиента не найден")
		return nil
	}
	return client
}

// ensureCustomer возвращает клиента Stripe для пассажира, создавая его при первой оплате.
// Ошибки не прерывают платёж: он пройдёт без привязки к клиенту.
func (s *PaymentService) ensureCustomer(ctx context.Context, client *models.Profile) string {
	if client.StripeCustomerID != nil && *client.StripeCustomerID != "" {
		return *client.StripeCustomerID
	}

	params := payments.CustomerParams{Name: client.Nome, Profile: client.ID.String()}
	if client.Email != nil {
		params.Email = *client.Email
	}
	if client.Celular != nil {
		params.Phone = *client.Celular
	}

	customerID, err := s.gateway.CreateCustomer(ctx, params)
	if err != nil {
		logger.Log.WithError(err).WithField("client_id", client.ID).Warn("payment service: не удалось создать клиента Stripe")
		return ""
	}
	if err := s.profiles.SetStripeCustomerID(ctx, client.ID, customerID); err != nil {
		logger.Log.WithError(err).WithField("client_id", client.ID).Warn("payment service: не удалось сохранить клиента Stripe")
	}
	return customerID
}

func (s *PaymentService) emailReceipt(ctx context.Context, clientID uuid.UUID, chargeID string) {
	client, err := s.profiles.GetByID(ctx, clientID)
	if err != nil || client.Email == nil || *client.Email == "" {
		return
	}
	to := *client.Email
	emailer := s.emailer

	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		if err := emailer.EmailClientReceipt(ctx, chargeID, to); err != nil {
			logger.Log.WithError(err).WithField("charge_id", chargeID).Warn("payment service: не удалось отправить квитанцию")
		}
	})
}

func (s *PaymentService) intentErr(err error) error {
	if errors.Is(err, payments.ErrNotFound) {
		return apperror.ErrPaymentNotFound
	}
	return apperror.ErrPaymentProvider.WithCause(err)
}
