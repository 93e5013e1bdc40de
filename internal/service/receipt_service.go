package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/metrics"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/receipt"
)

// ChargeGateway загружает проведённые списания.
type ChargeGateway interface {
	GetCharge(ctx context.Context, chargeID string) (*payments.Charge, error)
}

// ReceiptRenderer собирает PDF квитанции.
type ReceiptRenderer interface {
	Render(data receipt.Data) ([]byte, error)
}

// ReceiptMailer отправляет квитанцию письмом.
type ReceiptMailer interface {
	SendReceipt(ctx context.Context, to, driverName, chargeID string, pdf []byte) error
}

// ReceiptService формирует квитанции клиента и водителя по списанию Stripe.
// PDF собирается на каждый запрос и нигде не хранится.
type ReceiptService struct {
	gateway    ChargeGateway
	profiles   ProfileRepository
	renderer   ReceiptRenderer
	mailer     ReceiptMailer
	feePercent int64
}

// NewReceiptService создаёт сервис квитанций. mailer может быть nil.
func NewReceiptService(gateway ChargeGateway, profiles ProfileRepository, renderer ReceiptRenderer, mailer ReceiptMailer, feePercent int64) *ReceiptService {
	return &ReceiptService{
		gateway:    gateway,
		profiles:   profiles,
		renderer:   renderer,
		mailer:     mailer,
		feePercent: feePercent,
	}
}

// ClientReceipt возвращает квитанцию клиента с суммой оплаты.
func (s *ReceiptService) ClientReceipt(ctx context.Context, chargeID string) ([]byte, error) {
	charge, err := s.charge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, charge, receipt.VariantClient)
}

// DriverReceipt возвращает квитанцию водителя с комиссией и суммой к получению.
// Водитель видит только списания в пользу своего аккаунта.
func (s *ReceiptService) DriverReceipt(ctx context.Context, driverID uuid.UUID, chargeID string) ([]byte, error) {
	profile, err := s.profiles.GetByID(ctx, driverID)
	if err != nil {
		return nil, apperror.ErrUserNotFound
	}
	if !profile.IsDriver() {
		return nil, apperror.ErrDriverOnly
	}
	if !profile.HasConnectedAccount() {
		return nil, apperror.ErrNoConnectedAccount
	}

	charge, err := s.charge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if charge.DestinationAccount != *profile.StripeAccountID {
		logger.Log.WithField("driver_id", driverID).WithField("charge_id", chargeID).Warn("receipt service: чужое списание")
		return nil, apperror.ErrForbidden
	}

	return s.render(ctx, charge, receipt.VariantDriver)
}

// EmailClientReceipt отправляет квитанцию клиента на email.
func (s *ReceiptService) EmailClientReceipt(ctx context.Context, chargeID, to string) error {
	if s.mailer == nil {
		return nil
	}
	charge, err := s.charge(ctx, chargeID)
	if err != nil {
		return err
	}
	pdf, err := s.render(ctx, charge, receipt.VariantClient)
	if err != nil {
		return err
	}
	if err := s.mailer.SendReceipt(ctx, to, s.driverName(ctx, charge), chargeID, pdf); err != nil {
		return fmt.Errorf("receipt service: %w", err)
	}
	logger.Log.WithField("charge_id", chargeID).Info("receipt service: квитанция отправлена")
	return nil
}

// Data собирает содержимое квитанции. Комиссия берётся из списания, а при её
// отсутствии считается по ставке платформы.
func (s *ReceiptService) Data(ctx context.Context, charge *payments.Charge, variant string) receipt.Data {
	fee := charge.FeeCents
	if fee <= 0 {
		fee = PlatformFee(charge.AmountCents, s.feePercent)
	}
	return receipt.Data{
		Variant:       variant,
		ChargeID:      charge.ID,
		PaidAt:        charge.Created,
		DriverName:    s.driverName(ctx, charge),
		ClientName:    charge.BillingName,
		PaymentMethod: charge.PaymentMethodType,
		CardBrand:     charge.CardBrand,
		CardLast4:     charge.CardLast4,
		GrossCents:    charge.AmountCents,
		FeeCents:      fee,
		NetCents:      charge.AmountCents - fee,
		FeePercent:    s.feePercent,
	}
}

func (s *ReceiptService) charge(ctx context.Context, chargeID string) (*payments.Charge, error) {
	if chargeID == "" {
		return nil, apperror.ErrChargeNotFound
	}
	charge, err := s.gateway.GetCharge(ctx, chargeID)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			return nil, apperror.ErrChargeNotFound
		}
		return nil, apperror.ErrPaymentProvider.WithCause(err)
	}
	return charge, nil
}

func (s *ReceiptService) render(ctx context.Context, charge *payments.Charge, variant string) ([]byte, error) {
	pdf, err := s.renderer.Render(s.Data(ctx, charge, variant))
	metrics.ReceiptsRendered.WithLabelValues(variant, metrics.Result(err)).Inc()
	if err != nil {
		logger.Log.WithError(err).WithField("charge_id", charge.ID).Error("receipt service: не удалось собрать PDF")
		return nil, apperror.ErrReceiptGeneration.WithCause(err)
	}
	return pdf, nil
}

func (s *ReceiptService) driverName(ctx context.Context, charge *payments.Charge) string {
	if charge.DestinationAccount != "" {
		if driver, err := s.profiles.GetByStripeAccountID(ctx, charge.DestinationAccount); err == nil {
			return driver.Nome
		}
	}
	return "Motorista Pixter"
}
