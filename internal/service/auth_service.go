package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/oauth"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/repository"
	"github.com/pixter/pixter-backend/internal/validation"
)

// IdentityRepository описывает хранилище учётных записей.
type IdentityRepository interface {
	Create(ctx context.Context, user *models.AuthUser) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuthUser, error)
	GetByEmail(ctx context.Context, email string) (*models.AuthUser, error)
	GetByPhone(ctx context.Context, phone string) (*models.AuthUser, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOrphanByPhone(ctx context.Context, phone string) (bool, error)
	UpdateCredentials(ctx context.Context, id uuid.UUID, email, passwordHash *string) error
	TouchLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SessionRepository описывает хранилище выданных сессий.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	Active(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Session, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PhoneVerifier проверяет и погашает код подтверждения, возвращая номер в E.164.
type PhoneVerifier interface {
	Verify(ctx context.Context, phone, countryCode, code string) (string, error)
}

// GoogleAuthenticator обменивает код авторизации Google на данные пользователя.
type GoogleAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.GoogleUser, error)
}

// AuthService реализует вход по телефону, регистрацию, вход по паролю и через Google.
type AuthService struct {
	identities IdentityRepository
	profiles   ProfileRepository
	sessions   SessionRepository
	verifier   PhoneVerifier
	tokens     *TokenManager
	google     GoogleAuthenticator
	now        func() time.Time
}

// SessionMeta - данные клиента, сохраняемые вместе с сессией.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// AuthResult - итог успешного входа.
type AuthResult struct {
	User      *models.AuthUser
	Profile   *models.Profile
	Token     string
	SessionID uuid.UUID
	ExpiresAt time.Time
}

// RegistrationInput - данные формы регистрации.
type RegistrationInput struct {
	Phone       string
	CountryCode string
	Code        string
	Nome        string
	Tipo        string
	CPF         string
	Email       string
	Password    string
}

// NewAuthService создаёт сервис аутентификации. google может быть nil.
func NewAuthService(
	identities IdentityRepository,
	profiles ProfileRepository,
	sessions SessionRepository,
	verifier PhoneVerifier,
	tokens *TokenManager,
	google GoogleAuthenticator,
) *AuthService {
	return &AuthService{
		identities: identities,
		profiles:   profiles,
		sessions:   sessions,
		verifier:   verifier,
		tokens:     tokens,
		google:     google,
		now:        time.Now,
	}
}

// VerifyCode выполняет вход по телефону. Подтверждение кода само по себе аккаунт не создаёт:
// если профиля нет, висячая учётная запись удаляется и возвращается ErrRegisterFirst.
func (s *AuthService) VerifyCode(ctx context.Context, phone, countryCode, code string, meta SessionMeta) (*AuthResult, error) {
	formatted, err := s.verifier.Verify(ctx, phone, countryCode, code)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetByPhone(ctx, formatted)
	if err != nil {
		if !errors.Is(err, repository.ErrProfileNotFound) {
			return nil, fmt.Errorf("auth service: %w", err)
		}
		deleted, derr := s.identities.DeleteOrphanByPhone(ctx, formatted)
		if derr != nil {
			logger.Log.WithError(derr).WithField("phone", formatted).Error("auth service: не удалось удалить учётную запись без профиля")
		} else if deleted {
			logger.Log.WithField("phone", formatted).Warn("auth service: удалена учётная запись без профиля")
		}
		return nil, apperror.ErrRegisterFirst
	}

	user, err := s.identities.GetByID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	return s.issueSession(ctx, user, profile, meta)
}

// CompleteRegistration подтверждает телефон и создаёт или обновляет профиль.
func (s *AuthService) CompleteRegistration(ctx context.Context, in RegistrationInput, meta SessionMeta) (*AuthResult, error) {
	nome := strings.TrimSpace(in.Nome)
	if err := validation.ValidateNome(nome); err != nil {
		return nil, apperror.Validation(err)
	}
	if err := validation.ValidateTipo(in.Tipo); err != nil {
		return nil, apperror.Validation(err)
	}

	var cpf *string
	if in.CPF != "" || in.Tipo == models.TipoMotorista {
		if in.CPF == "" {
			return nil, apperror.ErrCPFRequired
		}
		if err := validation.ValidateCPF(in.CPF); err != nil {
			return nil, apperror.Validation(err)
		}
		normalized := validation.NormalizeCPF(in.CPF)
		cpf = &normalized
	}

	var email *string
	if in.Email != "" {
		if err := validation.ValidateEmail(in.Email); err != nil {
			return nil, apperror.Validation(err)
		}
		normalized := validation.NormalizeEmail(in.Email)
		email = &normalized
	}

	var passwordHash *string
	if in.Password != "" {
		if err := validation.ValidatePassword(in.Password); err != nil {
			return nil, apperror.Validation(err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	phone, err := s.verifier.Verify(ctx, in.Phone, in.CountryCode, in.Code)
	if err != nil {
		return nil, err
	}

	log := logger.Log.WithFields(logrus.Fields{"phone": phone, "tipo": in.Tipo})

	existing, err := s.profiles.GetByPhone(ctx, phone)
	switch {
	case err == nil:
		// Повторная регистрация обновляет профиль; tipo не меняется.
		existing.Nome = nome
		if email != nil {
			existing.Email = email
		}
		if cpf != nil {
			existing.CPF = cpf
		}
		if err := s.profiles.UpdateRegistration(ctx, existing, passwordHash); err != nil {
			return nil, mapRegistrationErr(err)
		}
		user, err := s.identities.GetByID(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("auth service: %w", err)
		}
		log.WithField("user_id", existing.ID).Info("auth service: профиль обновлён при регистрации")
		return s.issueSession(ctx, user, existing, meta)
	case !errors.Is(err, repository.ErrProfileNotFound):
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, created, err := s.identityForPhone(ctx, phone, email, passwordHash)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{
		ID:      user.ID,
		Nome:    nome,
		Email:   email,
		Celular: &phone,
		CPF:     cpf,
		Tipo:    in.Tipo,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if created {
			if derr := s.identities.Delete(ctx, user.ID); derr != nil {
				log.WithError(derr).WithField("user_id", user.ID).Error("auth service: не удалось откатить учётную запись")
			}
		}
		log.WithError(err).Error("auth service: не удалось создать профиль")
		return nil, mapRegistrationErr(err)
	}

	log.WithField("user_id", user.ID).Info("auth service: пользователь зарегистрирован")
	return s.issueSession(ctx, user, profile, meta)
}

// identityForPhone возвращает учётную запись с этим телефоном, создавая её при необходимости.
func (s *AuthService) identityForPhone(ctx context.Context, phone string, email, passwordHash *string) (*models.AuthUser, bool, error) {
	user, err := s.identities.GetByPhone(ctx, phone)
	if err == nil {
		// Висячая запись от прерванной регистрации получает данные формы.
		if email != nil || passwordHash != nil {
			if err := s.identities.UpdateCredentials(ctx, user.ID, email, passwordHash); err != nil {
				return nil, false, mapRegistrationErr(err)
			}
			if email != nil {
				user.Email = email
			}
			if passwordHash != nil {
				user.PasswordHash = passwordHash
			}
		}
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrIdentityNotFound) {
		return nil, false, fmt.Errorf("auth service: %w", err)
	}

	user = &models.AuthUser{
		Email:        email,
		Phone:        &phone,
		PasswordHash: passwordHash,
		Provider:     models.ProviderPhone,
	}
	if err := s.identities.Create(ctx, user); err != nil {
		return nil, false, mapRegistrationErr(err)
	}
	return user, true, nil
}

// Login выполняет вход по email и паролю.
func (s *AuthService) Login(ctx context.Context, email, password string, meta SessionMeta) (*AuthResult, error) {
	user, err := s.identities.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth service: %w", err)
	}

	if user.PasswordHash == nil {
		return nil, apperror.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	profile, err := s.profiles.GetByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperror.ErrRegisterFirst
		}
		return nil, fmt.Errorf("auth service: %w", err)
	}

	return s.issueSession(ctx, user, profile, meta)
}

// GoogleAuthURL возвращает ссылку на согласие Google и state для проверки колбэка.
func (s *AuthService) GoogleAuthURL() (string, string, error) {
	if s.google == nil {
		return "", "", apperror.ErrOAuthDisabled
	}
	state, err := oauth.NewState()
	if err != nil {
		return "", "", apperror.ErrInternal.WithCause(err)
	}
	return s.google.AuthURL(state), state, nil
}

// SignInWithGoogle завершает вход через Google. Профиль ищется по email; новый профиль
// создаётся с типом cliente.
func (s *AuthService) SignInWithGoogle(ctx context.Context, code string, meta SessionMeta) (*AuthResult, error) {
	if s.google == nil {
		return nil, apperror.ErrOAuthDisabled
	}

	gu, err := s.google.Exchange(ctx, code)
	if err != nil {
		logger.Log.WithError(err).Warn("auth service: ошибка обмена кода Google")
		return nil, apperror.ErrOAuthFailed.WithCause(err)
	}
	email := validation.NormalizeEmail(gu.Email)
	log := logger.Log.WithField("email", email)

	if profile, err := s.profiles.GetByEmail(ctx, email); err == nil {
		user, err := s.identities.GetByID(ctx, profile.ID)
		if err != nil {
			return nil, fmt.Errorf("auth service: %w", err)
		}
		return s.issueSession(ctx, user, profile, meta)
	} else if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, err := s.identities.GetByEmail(ctx, email)
	created := false
	if err != nil {
		if !errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, fmt.Errorf("auth service: %w", err)
		}
		user = &models.AuthUser{Email: &email, Provider: models.ProviderGoogle}
		if err := s.identities.Create(ctx, user); err != nil {
			return nil, mapRegistrationErr(err)
		}
		created = true
	}

	nome := strings.TrimSpace(gu.Name)
	if nome == "" {
		nome = strings.SplitN(email, "@", 2)[0]
	}
	profile := &models.Profile{
		ID:    user.ID,
		Nome:  nome,
		Email: &email,
		Tipo:  models.TipoCliente,
	}
	if gu.Picture != "" {
		picture := gu.Picture
		profile.AvatarURL = &picture
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if created {
			if derr := s.identities.Delete(ctx, user.ID); derr != nil {
				log.WithError(derr).Error("auth service: не удалось откатить учётную запись Google")
			}
		}
		return nil, mapRegistrationErr(err)
	}

	log.WithField("user_id", user.ID).Info("auth service: создан профиль через Google")
	return s.issueSession(ctx, user, profile, meta)
}

// Authenticate проверяет токен и что его сессия ещё действует.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*SessionClaims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperror.ErrUnauthorized
	}
	active, err := s.sessions.Active(ctx, claims.SessionID, s.now())
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if !active {
		return nil, apperror.ErrUnauthorized
	}
	return claims, nil
}

// Session возвращает учётную запись и профиль текущего пользователя.
func (s *AuthService) Session(ctx context.Context, userID uuid.UUID) (*models.AuthUser, *models.Profile, error) {
	user, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, nil, apperror.ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("auth service: %w", err)
	}
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, nil, fmt.Errorf("auth service: %w", err)
	}
	return user, profile, nil
}

// Logout завершает сессию. Повторный выход не считается ошибкой.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := s.sessions.Delete(ctx, userID, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return fmt.Errorf("auth service: %w", err)
	}
	return nil
}

// ListSessions возвращает действующие сессии пользователя.
func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	sessions, err := s.sessions.ListActive(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	return sessions, nil
}

// RevokeSession завершает одну из сессий пользователя.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return apperror.ErrSessionNotFound
		}
		return fmt.Errorf("auth service: %w", err)
	}
	return nil
}

// PurgeExpiredSessions удаляет истёкшие сессии.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("auth service: %w", err)
	}
	return n, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.AuthUser, profile *models.Profile, meta SessionMeta) (*AuthResult, error) {
	token, claims, err := s.tokens.Issue(user, profile)
	if err != nil {
		return nil, fmt.Errorf("auth service: не удалось выпустить токен: %w", err)
	}

	session := &models.Session{
		ID:        claims.SessionID,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt,
	}
	if meta.UserAgent != "" {
		ua := meta.UserAgent
		session.UserAgent = &ua
	}
	if meta.IP != "" {
		ip := meta.IP
		session.IPAddress = &ip
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	if err := s.identities.TouchLastSignIn(ctx, user.ID, s.now()); err != nil {
		logger.Log.WithError(err).WithField("user_id", user.ID).Warn("auth service: не удалось обновить время входа")
	}

	return &AuthResult{
		User:      user,
		Profile:   profile,
		Token:     token,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func mapRegistrationErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrIdentityExists):
		return apperror.ErrEmailTaken.WithCause(err)
	case errors.Is(err, repository.ErrPhoneTaken):
		return apperror.ErrPhoneTaken.WithCause(err)
	case errors.Is(err, repository.ErrProfileNotFound):
		return apperror.ErrUserNotFound
	default:
		return fmt.Errorf("auth service: %w", err)
	}
}
