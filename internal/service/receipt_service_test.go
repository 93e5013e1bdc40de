package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/receipt"
)

type capturingRenderer struct {
	last receipt.Data
	err  error
}

func (r *capturingRenderer) Render(data receipt.Data) ([]byte, error) {
	r.last = data
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.3"), nil
}

type capturingMailer struct {
	to, driverName, chargeID string
	pdf                      []byte
}

func (m *capturingMailer) SendReceipt(ctx context.Context, to, driverName, chargeID string, pdf []byte) error {
	m.to, m.driverName, m.chargeID, m.pdf = to, driverName, chargeID, pdf
	return nil
}

func newReceiptFixture(t *testing.T) (*ReceiptService, *fakeProfileRepo, *mockGateway, *capturingRenderer, *models.Profile) {
	t.Helper()
	profiles := newFakeProfileRepo()
	gateway := new(mockGateway)
	renderer := &capturingRenderer{}
	driver := profiles.put(&models.Profile{Nome: "Carlos", Tipo: models.TipoMotorista, StripeAccountID: strPtr("acct_driver")})
	return NewReceiptService(gateway, profiles, renderer, nil, 10), profiles, gateway, renderer, driver
}

func TestReceiptService_DriverReceiptUsesReportedFee(t *testing.T) {
	svc, _, gateway, renderer, driver := newReceiptFixture(t)
	ctx := context.Background()

	gateway.On("GetCharge", ctx, "ch_1").Return(&payments.Charge{
		ID: "ch_1", AmountCents: 5000, FeeCents: 300, DestinationAccount: "acct_driver", Created: time.Now(),
	}, nil)

	pdf, err := svc.DriverReceipt(ctx, driver.ID, "ch_1")
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Equal(t, receipt.VariantDriver, renderer.last.Variant)
	assert.Equal(t, int64(300), renderer.last.FeeCents)
	assert.Equal(t, int64(4700), renderer.last.NetCents)
	assert.Equal(t, "Carlos", renderer.last.DriverName)
}

func TestReceiptService_FeeFallsBackToPlatformRate(t *testing.T) {
	svc, _, gateway, renderer, _ := newReceiptFixture(t)
	ctx := context.Background()

	gateway.On("GetCharge", ctx, "ch_1").Return(&payments.Charge{ID: "ch_1", AmountCents: 5000, DestinationAccount: "acct_driver"}, nil)

	_, err := svc.ClientReceipt(ctx, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, receipt.VariantClient, renderer.last.Variant)
	assert.Equal(t, int64(500), renderer.last.FeeCents)
	assert.Equal(t, int64(5000), renderer.last.GrossCents)
}

func TestReceiptService_DriverCannotSeeForeignCharge(t *testing.T) {
	svc, profiles, gateway, _, _ := newReceiptFixture(t)
	ctx := context.Background()
	other := profiles.put(&models.Profile{Nome: "Outro", Tipo: models.TipoMotorista, StripeAccountID: strPtr("acct_other")})

	gateway.On("GetCharge", ctx, "ch_1").Return(&payments.Charge{ID: "ch_1", AmountCents: 5000, DestinationAccount: "acct_driver"}, nil)

	_, err := svc.DriverReceipt(ctx, other.ID, "ch_1")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	client := profiles.put(&models.Profile{Nome: "Ana", Tipo: models.TipoCliente})
	_, err = svc.DriverReceipt(ctx, client.ID, "ch_1")
	assert.ErrorIs(t, err, apperror.ErrDriverOnly)
}

func TestReceiptService_Errors(t *testing.T) {
	svc, _, gateway, renderer, _ := newReceiptFixture(t)
	ctx := context.Background()

	gateway.On("GetCharge", ctx, "ch_missing").Return(nil, fmt.Errorf("get charge: %w", payments.ErrNotFound))
	_, err := svc.ClientReceipt(ctx, "ch_missing")
	assert.ErrorIs(t, err, apperror.ErrChargeNotFound)

	gateway.On("GetCharge", ctx, "ch_1").Return(&payments.Charge{ID: "ch_1", AmountCents: 100}, nil)
	renderer.err = errBoom
	_, err = svc.ClientReceipt(ctx, "ch_1")
	assert.ErrorIs(t, err, apperror.ErrReceiptGeneration)
}

func TestReceiptService_EmailClientReceipt(t *testing.T) {
	profiles := newFakeProfileRepo()
	gateway := new(mockGateway)
	mailer := &capturingMailer{}
	profiles.put(&models.Profile{Nome: "Carlos", Tipo: models.TipoMotorista, StripeAccountID: strPtr("acct_driver")})
	svc := NewReceiptService(gateway, profiles, &capturingRenderer{}, mailer, 10)
	ctx := context.Background()

	gateway.On("GetCharge", ctx, "ch_1").Return(&payments.Charge{ID: "ch_1", AmountCents: 100, DestinationAccount: "acct_driver"}, nil)

	require.NoError(t, svc.EmailClientReceipt(ctx, "ch_1", "ana@example.com"))
	assert.Equal(t, "ana@example.com", mailer.to)
	assert.Equal(t, "Carlos", mailer.driverName)
	assert.NotEmpty(t, mailer.pdf)
}
