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

// ErrIdentityNotFound возвращается, когда учётная запись не найдена.
var ErrIdentityNotFound = errors.New("identity not found")

// ErrIdentityExists возвращается при повторной регистрации email или телефона.
var ErrIdentityExists = errors.New("identity already exists")

// IdentityRepository хранит учётные записи провайдера идентификации (auth_users).
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository создаёт экземпляр репозитория.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create регистрирует учётную запись и заполняет ID и даты.
func (r *IdentityRepository) Create(ctx context.Context, user *models.AuthUser) error {
	query := `
		INSERT INTO auth_users (email, phone, password_hash, provider)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, user.Email, user.Phone, user.PasswordHash, user.Provider).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrIdentityExists
		}
		return fmt.Errorf("identity repository: create %w", err)
	}
	return nil
}

// GetByID возвращает учётную запись по идентификатору.
func (r *IdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuthUser, error) {
	return common.GetByField[models.AuthUser](ctx, r.db, "auth_users", "id", id, ErrIdentityNotFound)
}

// GetByEmail возвращает учётную запись по email.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.AuthUser, error) {
	return common.GetByField[models.AuthUser](ctx, r.db, "auth_users", "email", email, ErrIdentityNotFound)
}

// GetByPhone возвращает учётную запись по номеру в формате E.164.
func (r *IdentityRepository) GetByPhone(ctx context.Context, phone string) (*models.AuthUser, error) {
	return common.GetByField[models.AuthUser](ctx, r.db, "auth_users", "phone", phone, ErrIdentityNotFound)
}

// Delete удаляет учётную запись. Сессии удаляются каскадно.
func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("identity repository: delete %w", err)
	}
	return common.ExpectAffected(res, ErrIdentityNotFound)
}

// DeleteOrphanByPhone удаляет учётную запись с этим телефоном, если у неё нет профиля.
func (r *IdentityRepository) DeleteOrphanByPhone(ctx context.Context, phone string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_users a
		WHERE a.phone = $1
		  AND NOT EXISTS (SELECT 1 FROM profiles p WHERE p.id = a.id)
	`, phone)
	if err != nil {
		return false, fmt.Errorf("identity repository: delete orphan %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("identity repository: delete orphan %w", err)
	}
	return n > 0, nil
}

// UpdateCredentials дописывает email и хеш пароля. NULL-аргументы оставляют текущие значения.
func (r *IdentityRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, email, passwordHash *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_users
		SET email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    updated_at = NOW()
		WHERE id = $1
	`, id, email, passwordHash)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrIdentityExists
		}
		return fmt.Errorf("identity repository: update credentials %w", err)
	}
	return common.ExpectAffected(res, ErrIdentityNotFound)
}

// TouchLastSignIn отмечает время последнего входа.
func (r *IdentityRepository) TouchLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE auth_users SET last_sign_in_at = $2, updated_at = NOW() WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("identity repository: touch last sign in %w", err)
	}
	return nil
}
