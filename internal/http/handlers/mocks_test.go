package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/pixter/pixter-backend/internal/http/middleware"
	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Silence()
}

// newRouter собирает gin с ErrorHandler, как в боевом роутере.
func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	return r
}

// asUser подменяет AuthMiddleware в тестах.
func asUser(userID uuid.UUID, tipo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		c.Set(middleware.ContextTipoKey, tipo)
		c.Set(middleware.ContextSessionIDKey, uuid.New())
		c.Next()
	}
}

func doJSON(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type mockAuth struct{ mock.Mock }

func (m *mockAuth) VerifyCode(ctx context.Context, phone, countryCode, code string, meta service.SessionMeta) (*service.AuthResult, error) {
	args := m.Called(ctx, phone, countryCode, code, meta)
	res, _ := args.Get(0).(*service.AuthResult)
	return res, args.Error(1)
}

func (m *mockAuth) CompleteRegistration(ctx context.Context, in service.RegistrationInput, meta service.SessionMeta) (*service.AuthResult, error) {
	args := m.Called(ctx, in, meta)
	res, _ := args.Get(0).(*service.AuthResult)
	return res, args.Error(1)
}

func (m *mockAuth) Login(ctx context.Context, email, password string, meta service.SessionMeta) (*service.AuthResult, error) {
	args := m.Called(ctx, email, password, meta)
	res, _ := args.Get(0).(*service.AuthResult)
	return res, args.Error(1)
}

func (m *mockAuth) GoogleAuthURL() (string, string, error) {
	args := m.Called()
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockAuth) SignInWithGoogle(ctx context.Context, code string, meta service.SessionMeta) (*service.AuthResult, error) {
	args := m.Called(ctx, code, meta)
	res, _ := args.Get(0).(*service.AuthResult)
	return res, args.Error(1)
}

func (m *mockAuth) Session(ctx context.Context, userID uuid.UUID) (*models.AuthUser, *models.Profile, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*models.AuthUser)
	profile, _ := args.Get(1).(*models.Profile)
	return user, profile, args.Error(2)
}

func (m *mockAuth) Logout(ctx context.Context, userID, sessionID uuid.UUID) error {
	return m.Called(ctx, userID, sessionID).Error(0)
}

func (m *mockAuth) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).([]models.Session)
	return res, args.Error(1)
}

func (m *mockAuth) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	return m.Called(ctx, userID, sessionID).Error(0)
}

type mockCodes struct{ mock.Mock }

func (m *mockCodes) Send(ctx context.Context, phone, countryCode string) (string, error) {
	args := m.Called(ctx, phone, countryCode)
	return args.String(0), args.Error(1)
}

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).(*models.Profile)
	return res, args.Error(1)
}

func (m *mockProfiles) Update(ctx context.Context, userID uuid.UUID, in service.ProfileUpdateInput) (*models.Profile, error) {
	args := m.Called(ctx, userID, in)
	res, _ := args.Get(0).(*models.Profile)
	return res, args.Error(1)
}

func (m *mockProfiles) UploadAvatar(ctx context.Context, userID uuid.UUID, r io.Reader) (string, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(ctx, userID, body)
	return args.String(0), args.Error(1)
}

func (m *mockProfiles) UploadSelfie(ctx context.Context, userID uuid.UUID, r io.Reader) (string, error) {
	body, _ := io.ReadAll(r)
	args := m.Called(ctx, userID, body)
	return args.String(0), args.Error(1)
}

func (m *mockProfiles) PublicDriverInfo(ctx context.Context, phone string) (*models.PublicDriverInfo, error) {
	args := m.Called(ctx, phone)
	res, _ := args.Get(0).(*models.PublicDriverInfo)
	return res, args.Error(1)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) CreateIntent(ctx context.Context, in service.CreateIntentInput) (*service.IntentResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*service.IntentResult)
	return res, args.Error(1)
}

func (m *mockPayments) UpdateIntent(ctx context.Context, intentID string, amountCents, tipCents int64) (*service.IntentResult, error) {
	args := m.Called(ctx, intentID, amountCents, tipCents)
	res, _ := args.Get(0).(*service.IntentResult)
	return res, args.Error(1)
}

func (m *mockPayments) CheckStatus(ctx context.Context, intentID string) (*service.PaymentStatus, error) {
	args := m.Called(ctx, intentID)
	res, _ := args.Get(0).(*service.PaymentStatus)
	return res, args.Error(1)
}

func (m *mockPayments) DriverHistory(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	args := m.Called(ctx, driverID, limit, offset)
	res, _ := args.Get(0).([]models.Payment)
	return res, args.Error(1)
}

func (m *mockPayments) ClientHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	args := m.Called(ctx, userID, limit, offset)
	res, _ := args.Get(0).([]models.Payment)
	return res, args.Error(1)
}

type mockConnect struct{ mock.Mock }

func (m *mockConnect) EnsureConnectedAccount(ctx context.Context, driverID uuid.UUID) (*service.ConnectLink, error) {
	args := m.Called(ctx, driverID)
	res, _ := args.Get(0).(*service.ConnectLink)
	return res, args.Error(1)
}

func (m *mockConnect) RefreshStatus(ctx context.Context, driverID uuid.UUID) (*service.AccountStatus, error) {
	args := m.Called(ctx, driverID)
	res, _ := args.Get(0).(*service.AccountStatus)
	return res, args.Error(1)
}

func (m *mockConnect) Balance(ctx context.Context, driverID uuid.UUID) (*models.ConnectBalance, error) {
	args := m.Called(ctx, driverID)
	res, _ := args.Get(0).(*models.ConnectBalance)
	return res, args.Error(1)
}

func (m *mockConnect) Transactions(ctx context.Context, driverID uuid.UUID, limit int) ([]models.ConnectTransaction, error) {
	args := m.Called(ctx, driverID, limit)
	res, _ := args.Get(0).([]models.ConnectTransaction)
	return res, args.Error(1)
}

type mockReceipts struct{ mock.Mock }

func (m *mockReceipts) ClientReceipt(ctx context.Context, chargeID string) ([]byte, error) {
	args := m.Called(ctx, chargeID)
	res, _ := args.Get(0).([]byte)
	return res, args.Error(1)
}

func (m *mockReceipts) DriverReceipt(ctx context.Context, driverID uuid.UUID, chargeID string) ([]byte, error) {
	args := m.Called(ctx, driverID, chargeID)
	res, _ := args.Get(0).([]byte)
	return res, args.Error(1)
}

type mockWebhooks struct{ mock.Mock }

func (m *mockWebhooks) Handle(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}
