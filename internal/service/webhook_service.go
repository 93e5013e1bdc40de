package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/metrics"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
)

// WebhookParser проверяет подпись и разбирает событие Stripe.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payments.Event, error)
}

// WebhookService маршрутизирует события Stripe в сервисы подключения и платежей.
type WebhookService struct {
	parser   WebhookParser
	connect  *ConnectService
	payments *PaymentService
}

// NewWebhookService создаёт обработчик вебхуков.
func NewWebhookService(parser WebhookParser, connect *ConnectService, payments *PaymentService) *WebhookService {
	return &WebhookService{parser: parser, connect: connect, payments: payments}
}

// Handle обрабатывает подписанное событие. Неизвестные типы событий игнорируются.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := s.parser.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
			return apperror.ErrInvalidWebhook
		}
		metrics.WebhookEvents.WithLabelValues("unknown", "error").Inc()
		return apperror.ErrInvalidWebhook.WithCause(err)
	}

	log := logger.Log.WithFields(logrus.Fields{"event_id": event.ID, "event": event.Type})

	switch {
	case event.Type == payments.EventAccountUpdated && event.Account != nil:
		err = s.connect.SyncAccount(ctx, event.Account)
	case event.Type == payments.EventPaymentIntentSucceeded && event.Intent != nil:
		err = s.payments.HandleIntentEvent(ctx, event.Intent, true)
	case event.Type == payments.EventPaymentIntentFailed && event.Intent != nil:
		err = s.payments.HandleIntentEvent(ctx, event.Intent, false)
	default:
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		log.Debug("webhook service: событие пропущено")
		return nil
	}

	metrics.WebhookEvents.WithLabelValues(event.Type, metrics.Result(err)).Inc()
	if err != nil {
		log.WithError(err).Error("webhook service: ошибка обработки события")
		return err
	}
	log.Info("webhook service: событие обработано")
	return nil
}
