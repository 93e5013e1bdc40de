package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
)

type recordingNotifier struct {
	userID uuid.UUID
	event  string
	data   any
}

func (n *recordingNotifier) Notify(userID uuid.UUID, event string, data any) error {
	n.userID, n.event, n.data = userID, event, data
	return nil
}

type chanEmailer struct {
	sent chan string
}

func (e *chanEmailer) EmailClientReceipt(ctx context.Context, chargeID, to string) error {
	e.sent <- chargeID + "|" + to
	return nil
}

type paymentFixture struct {
	svc      *PaymentService
	profiles *fakeProfileRepo
	repo     *fakePaymentRepo
	gateway  *mockGateway
	driver   *models.Profile
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	profiles := newFakeProfileRepo()
	repo := newFakePaymentRepo()
	gateway := new(mockGateway)
	driver := profiles.put(&models.Profile{
		Nome: "Carlos", Tipo: models.TipoMotorista, Celular: strPtr(testPhone), StripeAccountID: strPtr("acct_driver"),
	})
	return &paymentFixture{
		svc:      NewPaymentService(profiles, repo, gateway, 10, "55"),
		profiles: profiles,
		repo:     repo,
		gateway:  gateway,
		driver:   driver,
	}
}

func TestPlatformFee(t *testing.T) {
	assert.Equal(t, int64(250), PlatformFee(2500, 10))
	assert.Equal(t, int64(1), PlatformFee(5, 10))
	assert.Equal(t, int64(0), PlatformFee(4, 10))
	assert.Equal(t, int64(0), PlatformFee(2500, 0))
}

func TestPaymentService_DriverWithoutAccountCreatesNoIntent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	noAccount := f.profiles.put(&models.Profile{Nome: "Sem Conta", Tipo: models.TipoMotorista, Celular: strPtr("+5511988887777")})

	_, err := f.svc.CreateIntent(ctx, CreateIntentInput{DriverID: &noAccount.ID, AmountCents: 2500})
	assert.ErrorIs(t, err, apperror.ErrDriverNotFound)

	_, err = f.svc.CreateIntent(ctx, CreateIntentInput{DriverPhone: "11988887777", AmountCents: 2500})
	assert.ErrorIs(t, err, apperror.ErrDriverNotFound)

	unknown := uuid.New()
	_, err = f.svc.CreateIntent(ctx, CreateIntentInput{DriverID: &unknown, AmountCents: 2500})
	assert.ErrorIs(t, err, apperror.ErrDriverNotFound)

	f.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
	assert.Empty(t, f.repo.byIntent)
}

func TestPaymentService_CreateIntentWithFeeAndTip(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.gateway.On("CreateIntent", ctx, mock.MatchedBy(func(p payments.CreateIntentParams) bool {
		return p.AmountCents == 3000 &&
			p.FeeCents == 300 &&
			p.DestinationAccount == "acct_driver" &&
			p.IdempotencyKey == "idem-1" &&
			p.Metadata["driver_id"] == f.driver.ID.String()
	})).Return(&payments.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: payments.IntentStatusRequiresPaymentMethod}, nil).Once()

	res, err := f.svc.CreateIntent(ctx, CreateIntentInput{
		DriverPhone: "11999990000", AmountCents: 2500, TipCents: 500, IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, int64(3000), res.TotalAmount)
	assert.Equal(t, int64(300), res.ApplicationFee)
	assert.Empty(t, res.EphemeralKey)

	payment, err := f.repo.GetByIntentID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, f.driver.ID, payment.DriverID)
	assert.Equal(t, int64(500), payment.TipAmount)
	f.gateway.AssertExpectations(t)
}

func TestPaymentService_CreateIntentAttachesCustomerForClient(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	client := f.profiles.put(&models.Profile{Nome: "Ana", Tipo: models.TipoCliente, Email: strPtr("ana@example.com")})

	f.gateway.On("CreateCustomer", ctx, payments.CustomerParams{Name: "Ana", Email: "ana@example.com", Profile: client.ID.String()}).
		Return("cus_1", nil).Once()
	f.gateway.On("CreateIntent", ctx, mock.MatchedBy(func(p payments.CreateIntentParams) bool {
		return p.CustomerID == "cus_1" && p.ReceiptEmail == "ana@example.com"
	})).Return(&payments.Intent{ID: "pi_2", ClientSecret: "s"}, nil).Once()
	f.gateway.On("EphemeralKey", ctx, "cus_1").Return("ek_1", nil).Once()

	res, err := f.svc.CreateIntent(ctx, CreateIntentInput{DriverID: &f.driver.ID, AmountCents: 1000, ClientID: &client.ID})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", res.CustomerID)
	assert.Equal(t, "ek_1", res.EphemeralKey)

	stored, _ := f.profiles.GetByID(ctx, client.ID)
	assert.Equal(t, "cus_1", *stored.StripeCustomerID)
	f.gateway.AssertExpectations(t)
}

func TestPaymentService_CreateIntentValidatesAmount(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{DriverID: &f.driver.ID, AmountCents: 0})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.CreateIntent(context.Background(), CreateIntentInput{DriverID: &f.driver.ID, AmountCents: 100, TipCents: -1})
	assert.True(t, apperror.IsValidation(err))
}

func TestPaymentService_UpdateIntent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, &models.Payment{
		DriverID: f.driver.ID, Amount: 1000, TotalAmount: 1000, ApplicationFeeAmount: 100,
		Status: models.PaymentStatusPending, StripePaymentIntentID: "pi_1",
	}))

	f.gateway.On("GetIntent", ctx, "pi_1").Return(&payments.Intent{ID: "pi_1", Status: payments.IntentStatusRequiresPaymentMethod}, nil).Once()
	f.gateway.On("UpdateIntent", ctx, "pi_1", int64(2200), int64(220)).Return(&payments.Intent{ID: "pi_1", ClientSecret: "s"}, nil).Once()

	res, err := f.svc.UpdateIntent(ctx, "pi_1", 2000, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(220), res.ApplicationFee)

	payment, _ := f.repo.GetByIntentID(ctx, "pi_1")
	assert.Equal(t, int64(2200), payment.TotalAmount)
	assert.Equal(t, int64(220), payment.ApplicationFeeAmount)

	f.gateway.On("GetIntent", ctx, "pi_1").Return(&payments.Intent{ID: "pi_1", Status: payments.IntentStatusSucceeded}, nil).Once()
	_, err = f.svc.UpdateIntent(ctx, "pi_1", 3000, 0)
	assert.ErrorIs(t, err, apperror.ErrPaymentNotEditable)

	_, err = f.svc.UpdateIntent(ctx, "pi_missing", 3000, 0)
	assert.ErrorIs(t, err, apperror.ErrPaymentNotFound)
}

func TestPaymentService_CheckStatus(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, &models.Payment{
		DriverID: f.driver.ID, Status: models.PaymentStatusPending, StripePaymentIntentID: "pi_1",
	}))

	f.gateway.On("GetIntent", ctx, "pi_1").
		Return(&payments.Intent{ID: "pi_1", Status: payments.IntentStatusSucceeded, LatestChargeID: "ch_1", PaymentMethodType: "pix", AmountCents: 1000}, nil)
	f.gateway.On("GetIntent", ctx, "pi_gone").Return(nil, fmt.Errorf("get intent: %w", payments.ErrNotFound))

	status, err := f.svc.CheckStatus(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, status.Status)
	assert.Equal(t, "ch_1", status.ChargeID)

	payment, _ := f.repo.GetByIntentID(ctx, "pi_1")
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "pix", *payment.PaymentMethod)

	_, err = f.svc.CheckStatus(ctx, "pi_gone")
	assert.ErrorIs(t, err, apperror.ErrPaymentNotFound)
}

func TestMapIntentStatus(t *testing.T) {
	assert.Equal(t, models.PaymentStatusSucceeded, MapIntentStatus(payments.IntentStatusSucceeded))
	assert.Equal(t, models.PaymentStatusFailed, MapIntentStatus(payments.IntentStatusCanceled))
	assert.Equal(t, models.PaymentStatusPending, MapIntentStatus(payments.IntentStatusProcessing))
	assert.Equal(t, models.PaymentStatusPending, MapIntentStatus(payments.IntentStatusRequiresPaymentMethod))
}

func TestPaymentService_HandleIntentEventNotifiesDriverAndEmailsReceipt(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	client := f.profiles.put(&models.Profile{Nome: "Ana", Tipo: models.TipoCliente, Email: strPtr("ana@example.com")})
	require.NoError(t, f.repo.Create(ctx, &models.Payment{
		DriverID: f.driver.ID, UserID: &client.ID, Amount: 1000, TotalAmount: 1000,
		Status: models.PaymentStatusPending, StripePaymentIntentID: "pi_1",
	}))

	notifier := &recordingNotifier{}
	emailer := &chanEmailer{sent: make(chan string, 1)}
	f.svc.SetNotifier(notifier)
	f.svc.SetReceiptEmailer(emailer)

	require.NoError(t, f.svc.HandleIntentEvent(ctx, &payments.Intent{ID: "pi_1", LatestChargeID: "ch_1", PaymentMethodType: "card"}, true))

	payment, _ := f.repo.GetByIntentID(ctx, "pi_1")
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "ch_1", *payment.StripeChargeID)
	assert.Equal(t, f.driver.ID, notifier.userID)
	assert.Equal(t, EventPaymentSucceeded, notifier.event)

	select {
	case sent := <-emailer.sent:
		assert.Equal(t, "ch_1|ana@example.com", sent)
	case <-time.After(2 * time.Second):
		t.Fatal("квитанция не отправлена")
	}

	// Событие по неизвестному платежу игнорируется.
	assert.NoError(t, f.svc.HandleIntentEvent(ctx, &payments.Intent{ID: "pi_other"}, false))
}

func TestPaymentService_LateFailureDoesNotOverrideSucceeded(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, &models.Payment{
		DriverID: f.driver.ID, Amount: 1000, TotalAmount: 1000,
		Status: models.PaymentStatusPending, StripePaymentIntentID: "pi_1",
	}))
	notifier := &recordingNotifier{}
	f.svc.SetNotifier(notifier)

	require.NoError(t, f.svc.HandleIntentEvent(ctx, &payments.Intent{ID: "pi_1", LatestChargeID: "ch_ok"}, true))
	notifier.event = ""

	require.NoError(t, f.svc.HandleIntentEvent(ctx, &payments.Intent{ID: "pi_1", LatestChargeID: "ch_declined"}, false))

	payment, _ := f.repo.GetByIntentID(ctx, "pi_1")
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "ch_ok", *payment.StripeChargeID)
	assert.Empty(t, notifier.event, "водитель не должен получить payment.failed")
}

func TestPaymentService_FailedAttemptStaysEditable(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, &models.Payment{
		DriverID: f.driver.ID, Amount: 1000, TotalAmount: 1000, ApplicationFeeAmount: 100,
		Status: models.PaymentStatusPending, StripePaymentIntentID: "pi_1",
	}))

	require.NoError(t, f.svc.HandleIntentEvent(ctx, &payments.Intent{ID: "pi_1", LatestChargeID: "ch_declined"}, false))
	payment, _ := f.repo.GetByIntentID(ctx, "pi_1")
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Nil(t, payment.StripeChargeID)

	f.gateway.On("GetIntent", ctx, "pi_1").Return(&payments.Intent{ID: "pi_1", Status: payments.IntentStatusRequiresPaymentMethod}, nil).Once()
	f.gateway.On("UpdateIntent", ctx, "pi_1", int64(1500), int64(150)).Return(&payments.Intent{ID: "pi_1", ClientSecret: "s"}, nil).Once()

	_, err := f.svc.UpdateIntent(ctx, "pi_1", 1500, 0)
	require.NoError(t, err)

	payment, _ = f.repo.GetByIntentID(ctx, "pi_1")
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, int64(1500), payment.TotalAmount)

	// Повторная попытка проходит после отклонённой.
	require.NoError(t, f.svc.HandleIntentEvent(ctx, &payments.Intent{ID: "pi_1", LatestChargeID: "ch_ok"}, true))
	payment, _ = f.repo.GetByIntentID(ctx, "pi_1")
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
}

func TestPaymentService_History(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	client := uuid.New()
	require.NoError(t, f.repo.Create(ctx, &models.Payment{DriverID: f.driver.ID, UserID: &client, StripePaymentIntentID: "pi_1", Status: models.PaymentStatusPending}))
	require.NoError(t, f.repo.Create(ctx, &models.Payment{DriverID: f.driver.ID, StripePaymentIntentID: "pi_2", Status: models.PaymentStatusPending}))

	driverList, err := f.svc.DriverHistory(ctx, f.driver.ID, 20, 0)
	require.NoError(t, err)
	assert.Len(t, driverList, 2)

	clientList, err := f.svc.ClientHistory(ctx, client, 20, 0)
	require.NoError(t, err)
	assert.Len(t, clientList, 1)
}
