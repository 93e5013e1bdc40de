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

// ErrPaymentNotFound возвращается, когда платёж не найден.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrPaymentSettled возвращается при попытке изменить статус уже проведённого платежа.
var ErrPaymentSettled = errors.New("payment already settled")

const paymentColumns = `
	id, driver_id, user_id, amount, tip_amount, total_amount, application_fee_amount, currency,
	payment_method, status, stripe_payment_intent_id, stripe_charge_id, created_at, updated_at
`

// PaymentRepository отвечает за таблицу pagamentos. Записи никогда не удаляются.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository создаёт экземпляр репозитория.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет платёж при создании PaymentIntent.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO pagamentos (driver_id, user_id, amount, tip_amount, total_amount, application_fee_amount, currency, status, stripe_payment_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stripe_payment_intent_id) DO UPDATE
		SET updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.DriverID, p.UserID, p.Amount, p.TipAmount, p.TotalAmount, p.ApplicationFeeAmount,
		p.Currency, p.Status, p.StripePaymentIntentID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// GetByIntentID возвращает платёж по идентификатору PaymentIntent.
func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM pagamentos WHERE stripe_payment_intent_id = $1`, intentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get by intent %w", err)
	}
	return &p, nil
}

// UpdateAmounts пересчитывает суммы, пока платёж не проведён. Отклонённая попытка снова становится pending.
func (r *PaymentRepository) UpdateAmounts(ctx context.Context, intentID string, amount, tip, total, fee int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pagamentos
		SET amount = $2, tip_amount = $3, total_amount = $4, application_fee_amount = $5,
			status = 'pending', updated_at = NOW()
		WHERE stripe_payment_intent_id = $1 AND status IN ('pending', 'failed')
	`, intentID, amount, tip, total, fee)
	if err != nil {
		return fmt.Errorf("payment repository: update amounts %w", err)
	}
	return common.ExpectAffected(res, ErrPaymentNotFound)
}

// UpdateStatus отражает статус PaymentIntent. Пустые chargeID и method не затирают сохранённые.
// Проведённый платёж (succeeded) больше не меняется: в этом случае возвращается ErrPaymentSettled.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, intentID, status, chargeID, method string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pagamentos
		SET status = $2,
			stripe_charge_id = COALESCE(NULLIF($3, ''), stripe_charge_id),
			payment_method = COALESCE(NULLIF($4, ''), payment_method),
			updated_at = NOW()
		WHERE stripe_payment_intent_id = $1 AND status <> 'succeeded'
	`, intentID, status, chargeID, method)
	if err != nil {
		return fmt.Errorf("payment repository: update status %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment repository: update status %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM pagamentos WHERE stripe_payment_intent_id = $1)`, intentID); err != nil {
		return fmt.Errorf("payment repository: update status %w", err)
	}
	if exists {
		return ErrPaymentSettled
	}
	return ErrPaymentNotFound
}

// ListByDriver возвращает платежи водителя, новые первыми.
func (r *PaymentRepository) ListByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	return r.list(ctx, "list by driver", `driver_id = $1`, driverID, limit, offset)
}

// ListByUser возвращает платежи клиента, новые первыми.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	return r.list(ctx, "list by user", `user_id = $1`, userID, limit, offset)
}

func (r *PaymentRepository) list(ctx context.Context, op, where string, id uuid.UUID, limit, offset int) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM pagamentos WHERE ` + where + ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &payments, query, id, limit, offset); err != nil {
		return nil, fmt.Errorf("payment repository: %s %w", op, err)
	}
	return payments, nil
}
