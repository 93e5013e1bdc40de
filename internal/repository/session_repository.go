package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/repository/common"
)

// ErrSessionNotFound возвращается, когда сессия не найдена или уже завершена.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository отвечает за таблицу user_sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository создаёт экземпляр репозитория.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create сохраняет выданную сессию.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO user_sessions (id, user_id, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := r.db.QueryRowxContext(ctx, query, s.ID, s.UserID, s.UserAgent, s.IPAddress, s.ExpiresAt).Scan(&s.CreatedAt); err != nil {
		return fmt.Errorf("session repository: create %w", err)
	}
	return nil
}

// Active сообщает, что сессия существует и не истекла.
func (r *SessionRepository) Active(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM user_sessions WHERE id = $1 AND expires_at > $2)`, id, now); err != nil {
		return false, fmt.Errorf("session repository: active %w", err)
	}
	return ok, nil
}

// ListActive возвращает действующие сессии пользователя, новые первыми.
func (r *SessionRepository) ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	query := `
		SELECT id, user_id, user_agent, ip_address, expires_at, created_at
		FROM user_sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &sessions, query, userID, now); err != nil {
		return nil, fmt.Errorf("session repository: list %w", err)
	}
	return sessions, nil
}

// Delete завершает сессию пользователя.
func (r *SessionRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("session repository: delete %w", err)
	}
	return common.ExpectAffected(res, ErrSessionNotFound)
}

// DeleteExpired удаляет истёкшие сессии.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("session repository: delete expired %w", err)
	}
	return res.RowsAffected()
}
