package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/pixter/pixter-backend/internal/logger"
	"github.com/pixter/pixter-backend/internal/models"
	"github.com/pixter/pixter-backend/internal/payments"
	"github.com/pixter/pixter-backend/internal/repository"
)

func init() {
	logger.Silence()
}

func strPtr(s string) *string { return &s }

// fakeIdentityRepo реализует IdentityRepository на map.
type fakeIdentityRepo struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*models.AuthUser
	profiles *fakeProfileRepo
	touched  map[uuid.UUID]time.Time
}

func newFakeIdentityRepo(profiles *fakeProfileRepo) *fakeIdentityRepo {
	return &fakeIdentityRepo{
		byID:     make(map[uuid.UUID]*models.AuthUser),
		profiles: profiles,
		touched:  make(map[uuid.UUID]time.Time),
	}
}

func (r *fakeIdentityRepo) Create(ctx context.Context, user *models.AuthUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if user.Email != nil && u.Email != nil && *u.Email == *user.Email {
			return repository.ErrIdentityExists
		}
		if user.Phone != nil && u.Phone != nil && *u.Phone == *user.Phone {
			return repository.ErrIdentityExists
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.byID[user.ID] = &cp
	return nil
}

func (r *fakeIdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AuthUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrIdentityNotFound
}

func (r *fakeIdentityRepo) GetByEmail(ctx context.Context, email string) (*models.AuthUser, error) {
	return r.find(func(u *models.AuthUser) bool { return u.Email != nil && *u.Email == email })
}

func (r *fakeIdentityRepo) GetByPhone(ctx context.Context, phone string) (*models.AuthUser, error) {
	return r.find(func(u *models.AuthUser) bool { return u.Phone != nil && *u.Phone == phone })
}

func (r *fakeIdentityRepo) find(match func(*models.AuthUser) bool) (*models.AuthUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrIdentityNotFound
}

func (r *fakeIdentityRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrIdentityNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *fakeIdentityRepo) DeleteOrphanByPhone(ctx context.Context, phone string) (bool, error) {
	u, err := r.GetByPhone(ctx, phone)
	if err != nil {
		return false, nil
	}
	if _, err := r.profiles.GetByID(ctx, u.ID); err == nil {
		return false, nil
	}
	return true, r.Delete(ctx, u.ID)
}

func (r *fakeIdentityRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, email, passwordHash *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrIdentityNotFound
	}
	if email != nil {
		for otherID, other := range r.byID {
			if otherID != id && other.Email != nil && *other.Email == *email {
				return repository.ErrIdentityExists
			}
		}
		u.Email = email
	}
	if passwordHash != nil {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (r *fakeIdentityRepo) TouchLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[id] = at
	return nil
}

// fakeProfileRepo реализует ProfileRepository на map.
type fakeProfileRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.Profile
	createErr error
	saveErr   error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{byID: make(map[uuid.UUID]*models.Profile)}
}

func (r *fakeProfileRepo) put(p *models.Profile) *models.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.byID[p.ID] = &cp
	return p
}

func (r *fakeProfileRepo) Create(ctx context.Context, p *models.Profile) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if p.Celular != nil && existing.Celular != nil && *p.Celular == *existing.Celular {
			return repository.ErrPhoneTaken
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *fakeProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return r.find(func(p *models.Profile) bool { return p.ID == id })
}

func (r *fakeProfileRepo) GetByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	return r.find(func(p *models.Profile) bool { return p.Celular != nil && *p.Celular == phone })
}

func (r *fakeProfileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.find(func(p *models.Profile) bool { return p.Email != nil && strings.EqualFold(*p.Email, email) })
}

func (r *fakeProfileRepo) GetByStripeAccountID(ctx context.Context, accountID string) (*models.Profile, error) {
	return r.find(func(p *models.Profile) bool { return p.StripeAccountID != nil && *p.StripeAccountID == accountID })
}

func (r *fakeProfileRepo) GetPublicDriver(ctx context.Context, phone string) (*models.PublicDriverInfo, error) {
	p, err := r.find(func(p *models.Profile) bool {
		return p.Celular != nil && *p.Celular == phone && p.IsDriver() && p.HasConnectedAccount()
	})
	if err != nil {
		return nil, err
	}
	return &models.PublicDriverInfo{ID: p.ID, Nome: p.Nome, AvatarURL: p.AvatarURL, Celular: *p.Celular}, nil
}

func (r *fakeProfileRepo) find(match func(*models.Profile) bool) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrProfileNotFound
}

func (r *fakeProfileRepo) Update(ctx context.Context, p *models.Profile) error {
	return r.mutate(p.ID, func(stored *models.Profile) {
		stored.Nome, stored.Email, stored.Celular, stored.CPF = p.Nome, p.Email, p.Celular, p.CPF
	})
}

func (r *fakeProfileRepo) UpdateRegistration(ctx context.Context, p *models.Profile, passwordHash *string) error {
	return r.Update(ctx, p)
}

func (r *fakeProfileRepo) SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.mutate(id, func(p *models.Profile) { p.AvatarURL = &url })
}

func (r *fakeProfileRepo) SetSelfieURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.mutate(id, func(p *models.Profile) { p.SelfieURL = &url })
}

func (r *fakeProfileRepo) SetStripeAccount(ctx context.Context, id uuid.UUID, accountID, status string) error {
	return r.mutate(id, func(p *models.Profile) { p.StripeAccountID, p.StripeAccountStatus = &accountID, &status })
}

func (r *fakeProfileRepo) SetStripeAccountStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.mutate(id, func(p *models.Profile) { p.StripeAccountStatus = &status })
}

func (r *fakeProfileRepo) ClearStripeAccount(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, func(p *models.Profile) { p.StripeAccountID, p.StripeAccountStatus = nil, nil })
}

func (r *fakeProfileRepo) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.mutate(id, func(p *models.Profile) { p.StripeCustomerID = &customerID })
}

func (r *fakeProfileRepo) ListDriversWithAccounts(ctx context.Context) ([]models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.Profile
	for _, p := range r.byID {
		if p.IsDriver() && p.HasConnectedAccount() {
			list = append(list, *p)
		}
	}
	return list, nil
}

func (r *fakeProfileRepo) mutate(id uuid.UUID, fn func(*models.Profile)) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return repository.ErrProfileNotFound
	}
	fn(p)
	return nil
}

// fakeVerificationRepo хранит по одному коду на номер, как таблица verification_codes.
type fakeVerificationRepo struct {
	mu    sync.Mutex
	codes map[string]models.VerificationCode
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{codes: make(map[string]models.VerificationCode)}
}

func (r *fakeVerificationRepo) Upsert(ctx context.Context, vc *models.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[vc.Phone] = *vc
	return nil
}

func (r *fakeVerificationRepo) Consume(ctx context.Context, phone, code string, now time.Time) (*models.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vc, ok := r.codes[phone]
	if !ok || vc.Code != code || !vc.Valid(now) {
		return nil, repository.ErrVerificationCodeNotFound
	}
	delete(r.codes, phone)
	return &vc, nil
}

func (r *fakeVerificationRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for phone, vc := range r.codes {
		if !vc.Valid(now) {
			delete(r.codes, phone)
			n++
		}
	}
	return n, nil
}

// fakeSessionRepo реализует SessionRepository на map.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]models.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CreatedAt = time.Now()
	r.sessions[s.ID] = *s
	return nil
}

func (r *fakeSessionRepo) Active(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return ok && now.Before(s.ExpiresAt), nil
}

func (r *fakeSessionRepo) ListActive(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.Session
	for _, s := range r.sessions {
		if s.UserID == userID && now.Before(s.ExpiresAt) {
			list = append(list, s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return repository.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// fakePaymentRepo реализует PaymentRepository на map.
type fakePaymentRepo struct {
	mu       sync.Mutex
	byIntent map[string]*models.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{byIntent: make(map[string]*models.Payment)}
}

func (r *fakePaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	r.byIntent[p.StripePaymentIntentID] = &cp
	return nil
}

func (r *fakePaymentRepo) GetByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byIntent[intentID]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) UpdateAmounts(ctx context.Context, intentID string, amount, tip, total, fee int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byIntent[intentID]
	if !ok || p.Status == models.PaymentStatusSucceeded {
		return repository.ErrPaymentNotFound
	}
	p.Amount, p.TipAmount, p.TotalAmount, p.ApplicationFeeAmount = amount, tip, total, fee
	p.Status = models.PaymentStatusPending
	return nil
}

func (r *fakePaymentRepo) UpdateStatus(ctx context.Context, intentID, status, chargeID, method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byIntent[intentID]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	if p.Status == models.PaymentStatusSucceeded {
		return repository.ErrPaymentSettled
	}
	p.Status = status
	if chargeID != "" {
		p.StripeChargeID = &chargeID
	}
	if method != "" {
		p.PaymentMethod = &method
	}
	return nil
}

func (r *fakePaymentRepo) ListByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	return r.list(func(p *models.Payment) bool { return p.DriverID == driverID }), nil
}

func (r *fakePaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	return r.list(func(p *models.Payment) bool { return p.UserID != nil && *p.UserID == userID }), nil
}

func (r *fakePaymentRepo) list(match func(*models.Payment) bool) []models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.Payment
	for _, p := range r.byIntent {
		if match(p) {
			list = append(list, *p)
		}
	}
	return list
}

// mockGateway - testify-мок всех операций Stripe.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateAccount(ctx context.Context, p payments.CreateAccountParams) (*payments.Account, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Account), args.Error(1)
}

func (m *mockGateway) GetAccount(ctx context.Context, accountID string) (*payments.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Account), args.Error(1)
}

func (m *mockGateway) OnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	args := m.Called(ctx, accountID, refreshURL, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) LoginLink(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Balance(ctx context.Context, accountID string) (*payments.Balance, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Balance), args.Error(1)
}

func (m *mockGateway) Transactions(ctx context.Context, accountID string, limit int) ([]payments.Transaction, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payments.Transaction), args.Error(1)
}

func (m *mockGateway) CreateCustomer(ctx context.Context, p payments.CustomerParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) EphemeralKey(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateIntent(ctx context.Context, p payments.CreateIntentParams) (*payments.Intent, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Intent), args.Error(1)
}

func (m *mockGateway) UpdateIntent(ctx context.Context, intentID string, amountCents, feeCents int64) (*payments.Intent, error) {
	args := m.Called(ctx, intentID, amountCents, feeCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Intent), args.Error(1)
}

func (m *mockGateway) GetIntent(ctx context.Context, intentID string) (*payments.Intent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Intent), args.Error(1)
}

func (m *mockGateway) GetCharge(ctx context.Context, chargeID string) (*payments.Charge, error) {
	args := m.Called(ctx, chargeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Charge), args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payments.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Event), args.Error(1)
}

// recordingSMS запоминает отправленные сообщения.
type recordingSMS struct {
	mu   sync.Mutex
	sent map[string][]string
	err  error
}

func newRecordingSMS() *recordingSMS {
	return &recordingSMS{sent: make(map[string][]string)}
}

func (s *recordingSMS) Send(ctx context.Context, to, body string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[to] = append(s.sent[to], body)
	return nil
}

// lastCode извлекает код из последнего SMS на номер.
func (s *recordingSMS) lastCode(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sent[phone]
	if len(msgs) == 0 {
		return ""
	}
	msg := msgs[len(msgs)-1]
	return msg[len(msg)-6:]
}

var errBoom = errors.New("boom")
