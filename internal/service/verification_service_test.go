package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixter/pixter-backend/internal/config"
	"github.com/pixter/pixter-backend/internal/pkg/apperror"
	"github.com/pixter/pixter-backend/internal/ratelimit"
)

func newTestVerificationService(t *testing.T) (*VerificationService, *fakeVerificationRepo, *recordingSMS) {
	t.Helper()
	repo := newFakeVerificationRepo()
	sms := newRecordingSMS()
	svc := NewVerificationService(repo, sms, nil, config.VerificationConfig{CodeTTL: 10 * time.Minute, DefaultCountryCode: "55"})
	return svc, repo, sms
}

func TestVerificationService_EndToEnd(t *testing.T) {
	svc, repo, sms := newTestVerificationService(t)
	ctx := context.Background()

	phone, err := svc.Send(ctx, "+5511999990000", "55")
	require.NoError(t, err)
	assert.Equal(t, "+5511999990000", phone)

	code := sms.lastCode(phone)
	require.Len(t, code, 6)
	assert.GreaterOrEqual(t, code, "100000")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = svc.Verify(ctx, phone, "55", wrong)
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)

	_, err = svc.Verify(ctx, phone, "55", code)
	require.NoError(t, err)
	assert.Empty(t, repo.codes, "код должен быть удалён после подтверждения")

	// Повторное использование того же кода запрещено.
	_, err = svc.Verify(ctx, phone, "55", code)
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)
}

func TestVerificationService_LastCodeWins(t *testing.T) {
	svc, _, sms := newTestVerificationService(t)
	ctx := context.Background()

	codes := []string{"123456", "654321"}
	svc.generate = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	phone, err := svc.Send(ctx, "11999998888", "55")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "11999998888", "55")
	require.NoError(t, err)
	assert.Equal(t, "654321", sms.lastCode(phone))

	_, err = svc.Verify(ctx, phone, "55", "123456")
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)
	_, err = svc.Verify(ctx, phone, "55", "654321")
	assert.NoError(t, err)
}

func TestVerificationService_ExpiredCodeGivesSameError(t *testing.T) {
	svc, _, sms := newTestVerificationService(t)
	ctx := context.Background()

	phone, err := svc.Send(ctx, "11999998888", "55")
	require.NoError(t, err)
	code := sms.lastCode(phone)

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = svc.Verify(ctx, phone, "55", code)
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestVerificationService_RateLimitPerPhone(t *testing.T) {
	store, err := ratelimit.NewStore(nil, "test-verification")
	require.NoError(t, err)
	limiter := ratelimit.New(store, 2, time.Minute)

	repo := newFakeVerificationRepo()
	sms := newRecordingSMS()
	svc := NewVerificationService(repo, sms, limiter, config.VerificationConfig{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Send(ctx, "11999998888", "55")
		require.NoError(t, err)
	}
	_, err = svc.Send(ctx, "11999998888", "55")
	assert.ErrorIs(t, err, apperror.ErrTooManyCodeRequests)

	// Другой номер не затронут.
	_, err = svc.Send(ctx, "11988887777", "55")
	assert.NoError(t, err)
}

func TestVerificationService_Errors(t *testing.T) {
	svc, _, sms := newTestVerificationService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, "123", "55")
	assert.True(t, apperror.IsValidation(err))

	sms.err = errBoom
	_, err = svc.Send(ctx, "11999998888", "55")
	assert.ErrorIs(t, err, apperror.ErrSMSDelivery)

	_, err = svc.Verify(ctx, "11999998888", "55", "12ab56")
	assert.ErrorIs(t, err, apperror.ErrInvalidCode)
}

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.True(t, validCodeFormat(code))
		assert.NotEqual(t, byte('0'), code[0])
	}
}
