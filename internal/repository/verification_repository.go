package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pixter/pixter-backend/internal/models"
)

// ErrVerificationCodeNotFound - кода нет, он не совпал или истёк.
var ErrVerificationCodeNotFound = errors.New("verification code not found")

// VerificationRepository хранит одноразовые коды подтверждения телефона.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository создаёт экземпляр репозитория.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Upsert сохраняет код для номера, перезаписывая предыдущий.
func (r *VerificationRepository) Upsert(ctx context.Context, vc *models.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (phone, code, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE
		SET code = EXCLUDED.code,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, vc.Phone, vc.Code, vc.CreatedAt, vc.ExpiresAt); err != nil {
		return fmt.Errorf("verification repository: upsert %w", err)
	}
	return nil
}

// Consume атомарно удаляет совпавший непросроченный код и возвращает его.
// Повторный вызов с тем же кодом вернёт ErrVerificationCodeNotFound.
func (r *VerificationRepository) Consume(ctx context.Context, phone, code string, now time.Time) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	query := `
		DELETE FROM verification_codes
		WHERE phone = $1 AND code = $2 AND expires_at > $3
		RETURNING phone, code, created_at, expires_at
	`
	if err := r.db.GetContext(ctx, &vc, query, phone, code, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVerificationCodeNotFound
		}
		return nil, fmt.Errorf("verification repository: consume %w", err)
	}
	return &vc, nil
}

// PurgeExpired удаляет просроченные коды и возвращает их количество.
func (r *VerificationRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("verification repository: purge %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("verification repository: purge %w", err)
	}
	return n, nil
}
