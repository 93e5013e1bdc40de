package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/config"
	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/metrics"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/ratelimit"
	"github.com/pixter/pixter-backend/internal/repository"
	"github.com/pixter/pixter-backend/internal/validation"
)

// VerificationRepository описывает хранилище одноразовых кодов.
type VerificationRepository interface {
	Upsert(ctx context.Context, vc *models.VerificationCode) error
	Consume(ctx context.Context, phone, code string, now time.Time) (*models.VerificationCode, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SMSSender отправляет текстовые сообщения.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// SendLimiter ограничивает частоту отправки кодов на один номер.
type SendLimiter interface {
	Hit(ctx context.Context, key string) (ratelimit.Result, error)
}

// VerificationService выдаёт и проверяет коды подтверждения телефона.
type VerificationService struct {
	repo           VerificationRepository
	sms            SMSSender
	limiter        SendLimiter
	codeTTL        time.Duration
	defaultCountry string
	now            func() time.Time
	generate       func() (string, error)
}

// NewVerificationService создаёт сервис. limiter может быть nil.
func NewVerificationService(repo VerificationRepository, sms SMSSender, limiter SendLimiter, cfg config.VerificationConfig) *VerificationService {
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	country := cfg.DefaultCountryCode
	if country == "" {
		country = "55"
	}
	return &VerificationService{
		repo:           repo,
		sms:            sms,
		limiter:        limiter,
		codeTTL:        ttl,
		defaultCountry: country,
		now:            time.Now,
		generate:       generateCode,
	}
}

// NormalizePhone приводит номер к E.164 с кодом страны по умолчанию.
func (s *VerificationService) NormalizePhone(phone, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = s.defaultCountry
	}
	formatted, err := validation.FormatPhoneNumber(phone, countryCode)
	if err != nil {
		return "", apperror.Validation(err)
	}
	return formatted, nil
}

// Send генерирует новый код, сохраняет его поверх предыдущего и отправляет по SMS.
// Возвращает номер в формате E.164.
func (s *VerificationService) Send(ctx context.Context, phone, countryCode string) (string, error) {
	formatted, err := s.NormalizePhone(phone, countryCode)
	if err != nil {
		return "", err
	}

	log := logger.Log.WithField("phone", formatted)

	if s.limiter != nil {
		res, err := s.limiter.Hit(ctx, formatted)
		if err != nil {
			// Хранилище лимитов недоступно: не блокируем вход пользователей.
			log.WithError(err).Warn("verification service: лимитер недоступен")
		} else if res.Reached {
			metrics.VerificationCodes.WithLabelValues("send", "rate_limited").Inc()
			log.Warn("verification service: превышен лимит отправки кодов")
			return "", apperror.ErrTooManyCodeRequests
		}
	}

	code, err := s.generate()
	if err != nil {
		return "", apperror.ErrInternal.WithCause(err)
	}

	now := s.now()
	vc := &models.VerificationCode{
		Phone:     formatted,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codeTTL),
	}
	if err := s.repo.Upsert(ctx, vc); err != nil {
		metrics.VerificationCodes.WithLabelValues("send", "error").Inc()
		return "", fmt.Errorf("verification service: %w", err)
	}

	body := fmt.Sprintf("Seu código de verificação Pixter é: %s", code)
	if err := s.sms.Send(ctx, formatted, body); err != nil {
		metrics.VerificationCodes.WithLabelValues("send", "error").Inc()
		log.WithError(err).Error("verification service: не удалось отправить SMS")
		return "", apperror.ErrSMSDelivery.WithCause(err)
	}

	metrics.VerificationCodes.WithLabelValues("send", "ok").Inc()
	log.WithFields(logrus.Fields{"expires_at": vc.ExpiresAt}).Info("verification service: код отправлен")
	return formatted, nil
}

// Verify проверяет и погашает код. Неверный и просроченный код дают одну и ту же ошибку.
// Возвращает номер в формате E.164.
func (s *VerificationService) Verify(ctx context.Context, phone, countryCode, code string) (string, error) {
	formatted, err := s.NormalizePhone(phone, countryCode)
	if err != nil {
		return "", err
	}
	if !validCodeFormat(code) {
		metrics.VerificationCodes.WithLabelValues("verify", "invalid").Inc()
		return "", apperror.ErrInvalidCode
	}

	if _, err := s.repo.Consume(ctx, formatted, code, s.now()); err != nil {
		if errors.Is(err, repository.ErrVerificationCodeNotFound) {
			metrics.VerificationCodes.WithLabelValues("verify", "invalid").Inc()
			return "", apperror.ErrInvalidCode
		}
		metrics.VerificationCodes.WithLabelValues("verify", "error").Inc()
		return "", fmt.Errorf("verification service: %w", err)
	}

	metrics.VerificationCodes.WithLabelValues("verify", "ok").Inc()
	logger.Log.WithField("phone", formatted).Info("verification service: код подтверждён")
	return formatted, nil
}

// PurgeExpired удаляет просроченные коды.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("verification service: %w", err)
	}
	logger.Log.WithField("deleted", n).Info("verification service: просроченные коды удалены")
	return n, nil
}

// generateCode возвращает равномерно распределённый код из диапазона 100000-999999.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func validCodeFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
