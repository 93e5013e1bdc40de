package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/repository/common"
)

// ErrProfileNotFound возвращается, когда профиль не найден.
var ErrProfileNotFound = errors.New("profile not found")

// ErrPhoneTaken возвращается, когда номер уже привязан к другому профилю.
var ErrPhoneTaken = errors.New("phone already registered")

const profileColumns = `
	id, nome, email, celular, cpf, tipo, avatar_url, selfie_url,
	stripe_account_id, stripe_account_status, stripe_customer_id, created_at, updated_at
`

// ProfileRepository отвечает за таблицу profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository создаёт экземпляр репозитория.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create вставляет профиль. ID должен совпадать с ID учётной записи.
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (id, nome, email, celular, cpf, tipo, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, p.ID, p.Nome, p.Email, p.Celular, p.CPF, p.Tipo, p.AvatarURL).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrPhoneTaken
		}
		return fmt.Errorf("profile repository: create %w", err)
	}
	return nil
}

// GetByID возвращает профиль по идентификатору.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return r.getOne(ctx, "get by id", `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

// GetByPhone возвращает профиль по номеру в формате E.164.
func (r *ProfileRepository) GetByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	return r.getOne(ctx, "get by phone", `SELECT `+profileColumns+` FROM profiles WHERE celular = $1`, phone)
}

// GetByEmail возвращает самый старый профиль с таким email.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.getOne(ctx, "get by email", `SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower($1) ORDER BY created_at LIMIT 1`, email)
}

// GetByStripeAccountID возвращает профиль водителя по подключённому аккаунту.
func (r *ProfileRepository) GetByStripeAccountID(ctx context.Context, accountID string) (*models.Profile, error) {
	return r.getOne(ctx, "get by stripe account", `SELECT `+profileColumns+` FROM profiles WHERE stripe_account_id = $1`, accountID)
}

// GetPublicDriver возвращает публичные поля водителя, принимающего платежи.
func (r *ProfileRepository) GetPublicDriver(ctx context.Context, phone string) (*models.PublicDriverInfo, error) {
	var info models.PublicDriverInfo
	query := `
		SELECT id, nome, avatar_url, celular
		FROM profiles
		WHERE celular = $1
		  AND tipo = 'motorista'
		  AND stripe_account_id IS NOT NULL AND stripe_account_id <> ''
	`
	if err := r.db.GetContext(ctx, &info, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile repository: get public driver %w", err)
	}
	return &info, nil
}

// Update сохраняет редактируемые поля профиля. tipo не меняется.
func (r *ProfileRepository) Update(ctx context.Context, p *models.Profile) error {
	return r.update(ctx, r.db, p)
}

// UpdateRegistration обновляет существующий профиль при повторной регистрации
// и, если передан хеш, пароль учётной записи. Обе записи меняются в одной транзакции.
func (r *ProfileRepository) UpdateRegistration(ctx context.Context, p *models.Profile, passwordHash *string) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := r.update(ctx, tx, p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE auth_users
			SET email = COALESCE($2, email),
			    password_hash = COALESCE($3, password_hash),
			    updated_at = NOW()
			WHERE id = $1
		`, p.ID, p.Email, passwordHash); err != nil {
			if common.IsUniqueViolation(err) {
				return ErrIdentityExists
			}
			return fmt.Errorf("profile repository: update identity %w", err)
		}
		return nil
	})
}

func (r *ProfileRepository) update(ctx context.Context, db sqlx.ExtContext, p *models.Profile) error {
	query := `
		UPDATE profiles
		SET nome = $2, email = $3, celular = $4, cpf = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := sqlx.GetContext(ctx, db, &p.UpdatedAt, query, p.ID, p.Nome, p.Email, p.Celular, p.CPF)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProfileNotFound
		}
		if common.IsUniqueViolation(err) {
			return ErrPhoneTaken
		}
		return fmt.Errorf("profile repository: update %w", err)
	}
	return nil
}

// SetAvatarURL сохраняет ссылку на аватар.
func (r *ProfileRepository) SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.exec(ctx, "set avatar", `UPDATE profiles SET avatar_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
}

// SetSelfieURL сохраняет ссылку на селфи водителя.
func (r *ProfileRepository) SetSelfieURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.exec(ctx, "set selfie", `UPDATE profiles SET selfie_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
}

// SetStripeAccount привязывает подключённый аккаунт и его статус.
func (r *ProfileRepository) SetStripeAccount(ctx context.Context, id uuid.UUID, accountID, status string) error {
	return r.exec(ctx, "set stripe account",
		`UPDATE profiles SET stripe_account_id = $2, stripe_account_status = $3, updated_at = NOW() WHERE id = $1`,
		id, accountID, status)
}

// SetStripeAccountStatus кэширует статус подключённого аккаунта.
func (r *ProfileRepository) SetStripeAccountStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.exec(ctx, "set stripe status",
		`UPDATE profiles SET stripe_account_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

// ClearStripeAccount отвязывает аккаунт, удалённый на стороне Stripe.
func (r *ProfileRepository) ClearStripeAccount(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "clear stripe account",
		`UPDATE profiles SET stripe_account_id = NULL, stripe_account_status = NULL, updated_at = NOW() WHERE id = $1`, id)
}

// SetStripeCustomerID сохраняет клиента Stripe для пассажира.
func (r *ProfileRepository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.exec(ctx, "set stripe customer",
		`UPDATE profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, id, customerID)
}

// ListDriversWithAccounts возвращает водителей с подключёнными аккаунтами.
func (r *ProfileRepository) ListDriversWithAccounts(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE tipo = 'motorista' AND stripe_account_id IS NOT NULL ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &profiles, query); err != nil {
		return nil, fmt.Errorf("profile repository: list drivers %w", err)
	}
	return profiles, nil
}

func (r *ProfileRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.GetContext(ctx, &p, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profile repository: %s %w", op, err)
	}
	return &p, nil
}

func (r *ProfileRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("profile repository: %s %w", op, err)
	}
	return common.ExpectAffected(res, ErrProfileNotFound)
}
