package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pixter/pixter-backend/internal/models"
)

// ErrInvalidToken - токен не прошёл проверку подписи, срока или формата.
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims - содержимое токена сессии.
type SessionClaims struct {
	UserID          uuid.UUID
	SessionID       uuid.UUID
	Tipo            string
	Provider        string
	StripeAccountID string
	ExpiresAt       time.Time
}

type sessionJWT struct {
	Tipo            string `json:"tipo,omitempty"`
	Provider        string `json:"provider,omitempty"`
	StripeAccountID string `json:"stripe_account_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager отвечает за выпуск и проверку JWT сессий.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager создаёт менеджер токенов с фиксированным сроком жизни сессии.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL возвращает срок жизни сессии.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue выпускает токен для пользователя. jti токена - это ID новой сессии.
func (m *TokenManager) Issue(user *models.AuthUser, profile *models.Profile) (string, *SessionClaims, error) {
	now := m.now()
	claims := &SessionClaims{
		UserID:    user.ID,
		SessionID: uuid.New(),
		Provider:  user.Provider,
		ExpiresAt: now.Add(m.ttl),
	}
	if profile != nil {
		claims.Tipo = profile.Tipo
		if profile.HasConnectedAccount() {
			claims.StripeAccountID = *profile.StripeAccountID
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionJWT{
		Tipo:            claims.Tipo,
		Provider:        claims.Provider,
		StripeAccountID: claims.StripeAccountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID.String(),
			ID:        claims.SessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse проверяет токен и возвращает его клеймы.
func (m *TokenManager) Parse(token string) (*SessionClaims, error) {
	var raw sessionJWT
	parsed, err := jwt.ParseWithClaims(token, &raw, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(raw.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	sessionID, err := uuid.Parse(raw.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims := &SessionClaims{
		UserID:          userID,
		SessionID:       sessionID,
		Tipo:            raw.Tipo,
		Provider:        raw.Provider,
		StripeAccountID: raw.StripeAccountID,
	}
	if raw.ExpiresAt != nil {
		claims.ExpiresAt = raw.ExpiresAt.Time
	}
	return claims, nil
}
