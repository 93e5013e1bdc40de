package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/repository"
	"github.com/pixter/pixter-backend/internal/storage"
	"github.com/pixter/pixter-backend/internal/validation"
)

// Бакеты файлового хранилища.
const (
	BucketAvatars = "avatars"
	BucketSelfies = "selfies"
)

// ProfileRepository описывает хранилище профилей.
type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetByPhone(ctx context.Context, phone string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetByStripeAccountID(ctx context.Context, accountID string) (*models.Profile, error)
	GetPublicDriver(ctx context.Context, phone string) (*models.PublicDriverInfo, error)
	Update(ctx context.Context, p *models.Profile) error
	UpdateRegistration(ctx context.Context, p *models.Profile, passwordHash *string) error
	SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error
	SetSelfieURL(ctx context.Context, id uuid.UUID, url string) error
	SetStripeAccount(ctx context.Context, id uuid.UUID, accountID, status string) error
	SetStripeAccountStatus(ctx context.Context, id uuid.UUID, status string) error
	ClearStripeAccount(ctx context.Context, id uuid.UUID) error
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	ListDriversWithAccounts(ctx context.Context) ([]models.Profile, error)
}

// ObjectStorage описывает хранилище загруженных файлов.
type ObjectStorage interface {
	Upload(ctx context.Context, bucket, objectPath string, r io.Reader, upsert bool) (int64, error)
	PublicURL(bucket, objectPath string) string
	Delete(ctx context.Context, bucket, objectPath string) error
	ObjectPath(bucket, url string) (string, bool)
}

// ProfileService управляет профилем текущего пользователя и публичной карточкой водителя.
type ProfileService struct {
	profiles       ProfileRepository
	storage        ObjectStorage
	defaultCountry string
	now            func() time.Time
}

// ProfileUpdateInput - изменяемые поля профиля. nil означает "не менять".
type ProfileUpdateInput struct {
	Nome  *string
	Email *string
	CPF   *string
}

// NewProfileService создаёт сервис профилей.
func NewProfileService(profiles ProfileRepository, storage ObjectStorage, defaultCountry string) *ProfileService {
	if defaultCountry == "" {
		defaultCountry = "55"
	}
	return &ProfileService{
		profiles:       profiles,
		storage:        storage,
		defaultCountry: defaultCountry,
		now:            time.Now,
	}
}

// Get возвращает профиль пользователя.
func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, fmt.Errorf("profile service: %w", err)
	}
	return profile, nil
}

// Update меняет имя, email и CPF. Тип пользователя и телефон не редактируются.
func (s *ProfileService) Update(ctx context.Context, userID uuid.UUID, in ProfileUpdateInput) (*models.Profile, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Nome != nil {
		nome := strings.TrimSpace(*in.Nome)
		if err := validation.ValidateNome(nome); err != nil {
			return nil, apperror.Validation(err)
		}
		profile.Nome = nome
	}
	if in.Email != nil {
		if *in.Email == "" {
			profile.Email = nil
		} else {
			if err := validation.ValidateEmail(*in.Email); err != nil {
				return nil, apperror.Validation(err)
			}
			email := validation.NormalizeEmail(*in.Email)
			profile.Email = &email
		}
	}
	if in.CPF != nil {
		if *in.CPF == "" {
			if profile.IsDriver() {
				return nil, apperror.ErrCPFRequired
			}
			profile.CPF = nil
		} else {
			if err := validation.ValidateCPF(*in.CPF); err != nil {
				return nil, apperror.Validation(err)
			}
			cpf := validation.NormalizeCPF(*in.CPF)
			profile.CPF = &cpf
		}
	}

	if err := s.profiles.Update(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, fmt.Errorf("profile service: %w", err)
	}
	return profile, nil
}

// UploadAvatar сохраняет аватар и возвращает его публичный URL.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID uuid.UUID, r io.Reader) (string, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.upload(ctx, userID, BucketAvatars, profile.AvatarURL, r, s.profiles.SetAvatarURL)
}

// UploadSelfie сохраняет селфи водителя для проверки личности.
func (s *ProfileService) UploadSelfie(ctx context.Context, userID uuid.UUID, r io.Reader) (string, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !profile.IsDriver() {
		return "", apperror.ErrDriverOnly
	}
	return s.upload(ctx, userID, BucketSelfies, profile.SelfieURL, r, s.profiles.SetSelfieURL)
}

func (s *ProfileService) upload(
	ctx context.Context,
	userID uuid.UUID,
	bucket string,
	previous *string,
	r io.Reader,
	save func(context.Context, uuid.UUID, string) error,
) (string, error) {
	ext, _, body, err := storage.SniffImage(r)
	if err != nil {
		if errors.Is(err, storage.ErrNotImage) {
			return "", apperror.ErrInvalidUpload
		}
		return "", fmt.Errorf("profile service: %w", err)
	}

	objectPath := fmt.Sprintf("%s/%d.%s", userID, s.now().UnixNano(), ext)
	log := logger.Log.WithFields(logrus.Fields{"user_id": userID, "bucket": bucket, "path": objectPath})

	if _, err := s.storage.Upload(ctx, bucket, objectPath, body, true); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return "", apperror.ErrFileTooLarge
		}
		return "", fmt.Errorf("profile service: %w", err)
	}

	url := s.storage.PublicURL(bucket, objectPath)
	if err := save(ctx, userID, url); err != nil {
		// Файл без ссылки в профиле никому не нужен.
		if derr := s.storage.Delete(ctx, bucket, objectPath); derr != nil {
			log.WithError(derr).Warn("profile service: не удалось удалить загруженный файл")
		}
		if errors.Is(err, repository.ErrProfileNotFound) {
			return "", apperror.ErrUserNotFound
		}
		return "", fmt.Errorf("profile service: %w", err)
	}

	// Прежний файл больше не нужен. Внешние ссылки (фото Google) не трогаем.
	if previous != nil && *previous != url {
		if oldPath, ok := s.storage.ObjectPath(bucket, *previous); ok {
			if err := s.storage.Delete(ctx, bucket, oldPath); err != nil {
				log.WithError(err).WithField("old_path", oldPath).Warn("profile service: не удалось удалить прежний файл")
			}
		}
	}

	log.Info("profile service: файл загружен")
	return url, nil
}

// PublicDriverInfo возвращает публичную карточку водителя. Водитель без подключённого
// аккаунта Stripe не виден.
func (s *ProfileService) PublicDriverInfo(ctx context.Context, phone string) (*models.PublicDriverInfo, error) {
	formatted, err := validation.FormatPhoneNumber(phone, s.defaultCountry)
	if err != nil {
		return nil, apperror.ErrDriverNotFound
	}
	info, err := s.profiles.GetPublicDriver(ctx, formatted)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperror.ErrDriverNotFound
		}
		return nil, fmt.Errorf("profile service: %w", err)
	}
	return info, nil
}
