package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/clubhousehq/screens-server-go/internal/errors"
	"github.com/clubhousehq/screens-server-go/internal/model"
)

type mockScreenRepo struct {
	mock.Mock
}

func (m *mockScreenRepo) FindByCode(ctx context.Context, code string) (*model.Screen, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Screen), args.Error(1)
}

func (m *mockScreenRepo) List(ctx context.Context) ([]model.Screen, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Screen), args.Error(1)
}

func (m *mockScreenRepo) Create(ctx context.Context, params model.CreateScreenParams) (*model.Screen, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Screen), args.Error(1)
}

func (m *mockScreenRepo) Activate(ctx context.Context, code string, now time.Time) (int64, error) {
	args := m.Called(ctx, code, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockScreenRepo) TouchLastSeen(ctx context.Context, code string, now time.Time) error {
	args := m.Called(ctx, code, now)
	return args.Error(0)
}

func (m *mockScreenRepo) Delete(ctx context.Context, code string) (int64, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockScreenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func pendingScreen(code string, expiresAt time.Time) *model.Screen {
	return &model.Screen{
		ID:          "11111111-1111-1111-1111-111111111111",
		PairingCode: code,
		Status:      model.ScreenStatusPending,
		CreatedAt:   time.Now().Add(-time.Minute),
		ExpiresAt:   expiresAt,
	}
}

func activatedScreen(code string) *model.Screen {
	now := time.Now()
	s := pendingScreen(code, now.Add(10*time.Minute))
	s.Status = model.ScreenStatusActivated
	s.ActivatedAt = &now
	return s
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestRequestPairing(t *testing.T) {
	ttl := 15 * time.Minute

	t.Run("issues a pending session with TTL applied", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, ttl, 6)

		repo.On("DeleteExpired", mock.Anything).Return(int64(0), nil)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateScreenParams) bool {
			return len(p.PairingCode) == 6 && p.ID != "" &&
				time.Until(p.ExpiresAt) > 14*time.Minute
		})).Return(pendingScreen("AB12CD", time.Now().Add(ttl)), nil)

		screen, err := svc.RequestPairing(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AB12CD", screen.PairingCode)
		assert.Equal(t, model.ScreenStatusPending, screen.Status)
		repo.AssertExpectations(t)
	})

	t.Run("cleanup failure does not block issuance", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, ttl, 6)

		repo.On("DeleteExpired", mock.Anything).Return(int64(0), errors.New("store unavailable"))
		repo.On("Create", mock.Anything, mock.Anything).
			Return(pendingScreen("AB12CD", time.Now().Add(ttl)), nil)

		screen, err := svc.RequestPairing(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, screen)
	})

	t.Run("retries generation on unique violation", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, ttl, 6)

		repo.On("DeleteExpired", mock.Anything).Return(int64(0), nil)
		repo.On("Create", mock.Anything, mock.Anything).
			Return(nil, &pq.Error{Code: "23505"}).Once()
		repo.On("Create", mock.Anything, mock.Anything).
			Return(pendingScreen("AB12CD", time.Now().Add(ttl)), nil).Once()

		screen, err := svc.RequestPairing(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AB12CD", screen.PairingCode)
		repo.AssertNumberOfCalls(t, "Create", 2)
	})

	t.Run("gives up after exhausting collision retries", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, ttl, 6)

		repo.On("DeleteExpired", mock.Anything).Return(int64(0), nil)
		repo.On("Create", mock.Anything, mock.Anything).
			Return(nil, &pq.Error{Code: "23505"})

		_, err := svc.RequestPairing(context.Background())
		assertCode(t, err, apperrors.ErrCodeInternal)
		repo.AssertNumberOfCalls(t, "Create", maxCodeAttempts)
	})

	t.Run("surfaces persistence failure as database error", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, ttl, 6)

		repo.On("DeleteExpired", mock.Anything).Return(int64(0), nil)
		repo.On("Create", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection reset"))

		_, err := svc.RequestPairing(context.Background())
		assertCode(t, err, apperrors.ErrCodeDatabase)
	})
}

func TestStatus(t *testing.T) {
	t.Run("unknown code reports not found", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "ZZ99ZZ").Return(nil, nil)

		_, err := svc.Status(context.Background(), "ZZ99ZZ")
		assertCode(t, err, apperrors.ErrCodeNotFound)
	})

	t.Run("pending unexpired code is not activated", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(pendingScreen("AB12CD", time.Now().Add(10*time.Minute)), nil)
		repo.On("TouchLastSeen", mock.Anything, "AB12CD", mock.Anything).Return(nil)

		result, err := svc.Status(context.Background(), "AB12CD")
		require.NoError(t, err)
		assert.False(t, result.Activated)
		assert.False(t, result.Expired)
	})

	t.Run("activated code reports activated", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").Return(activatedScreen("AB12CD"), nil)
		repo.On("TouchLastSeen", mock.Anything, "AB12CD", mock.Anything).Return(nil)

		result, err := svc.Status(context.Background(), "AB12CD")
		require.NoError(t, err)
		assert.True(t, result.Activated)
		assert.False(t, result.Expired)
	})

	t.Run("pending expired code is flagged expired", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(pendingScreen("AB12CD", time.Now().Add(-time.Minute)), nil)
		repo.On("TouchLastSeen", mock.Anything, "AB12CD", mock.Anything).Return(nil)

		result, err := svc.Status(context.Background(), "AB12CD")
		require.NoError(t, err)
		assert.False(t, result.Activated)
		assert.True(t, result.Expired)
	})

	t.Run("normalizes code before lookup", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(pendingScreen("AB12CD", time.Now().Add(10*time.Minute)), nil)
		repo.On("TouchLastSeen", mock.Anything, "AB12CD", mock.Anything).Return(nil)

		_, err := svc.Status(context.Background(), "  ab12cd ")
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("failed liveness touch does not fail the poll", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(pendingScreen("AB12CD", time.Now().Add(10*time.Minute)), nil)
		repo.On("TouchLastSeen", mock.Anything, "AB12CD", mock.Anything).
			Return(errors.New("store unavailable"))

		result, err := svc.Status(context.Background(), "AB12CD")
		require.NoError(t, err)
		assert.False(t, result.Activated)
	})
}

func TestActivate(t *testing.T) {
	t.Run("unknown code reports invalid pairing code", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "ZZ99ZZ").Return(nil, nil)

		err := svc.Activate(context.Background(), "ZZ99ZZ")
		assertCode(t, err, apperrors.ErrCodeInvalidPairingCode)
		repo.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired code reports expired regardless of status", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(pendingScreen("AB12CD", time.Now().Add(-time.Second)), nil)

		err := svc.Activate(context.Background(), "AB12CD")
		assertCode(t, err, apperrors.ErrCodePairingExpired)
		repo.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("already activated code is an error, not a no-op", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").Return(activatedScreen("AB12CD"), nil)

		err := svc.Activate(context.Background(), "AB12CD")
		assertCode(t, err, apperrors.ErrCodeAlreadyActivated)
	})

	t.Run("activates a pending unexpired code", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(pendingScreen("AB12CD", time.Now().Add(10*time.Minute)), nil)
		repo.On("Activate", mock.Anything, "AB12CD", mock.Anything).Return(int64(1), nil)

		err := svc.Activate(context.Background(), "ab12cd")
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("lost race reports already activated", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(pendingScreen("AB12CD", time.Now().Add(10*time.Minute)), nil)
		repo.On("Activate", mock.Anything, "AB12CD", mock.Anything).Return(int64(0), nil)

		err := svc.Activate(context.Background(), "AB12CD")
		assertCode(t, err, apperrors.ErrCodeAlreadyActivated)
	})

	t.Run("persistence failure surfaces as database error", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("FindByCode", mock.Anything, "AB12CD").
			Return(nil, errors.New("connection reset"))

		err := svc.Activate(context.Background(), "AB12CD")
		assertCode(t, err, apperrors.ErrCodeDatabase)
	})
}

func TestDeleteScreen(t *testing.T) {
	t.Run("deletes an existing session", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("Delete", mock.Anything, "AB12CD").Return(int64(1), nil)

		assert.NoError(t, svc.DeleteScreen(context.Background(), "AB12CD"))
	})

	t.Run("unknown code reports not found", func(t *testing.T) {
		repo := new(mockScreenRepo)
		svc := NewPairingService(repo, 15*time.Minute, 6)

		repo.On("Delete", mock.Anything, "ZZ99ZZ").Return(int64(0), nil)

		err := svc.DeleteScreen(context.Background(), "ZZ99ZZ")
		assertCode(t, err, apperrors.ErrCodeNotFound)
	})
}

func TestGeneratePairingCode(t *testing.T) {
	t.Run("generates code of requested length", func(t *testing.T) {
		code := generatePairingCode(6)

		pattern := regexp.MustCompile(`^[A-Z2-9]{6}$`)
		assert.True(t, pattern.MatchString(code), "code should be 6 uppercase alphanumerics, got: %s", code)
	})

	t.Run("uses only allowed characters", func(t *testing.T) {
		code := generatePairingCode(8)

		for _, c := range code {
			assert.Contains(t, pairingCodeChars, string(c))
		}
	})

	t.Run("generates unique codes", func(t *testing.T) {
		codes := make(map[string]bool)
		for i := 0; i < 100; i++ {
			code := generatePairingCode(6)
			assert.False(t, codes[code], "duplicate code generated: %s", code)
			codes[code] = true
		}
	})

	t.Run("excludes ambiguous characters", func(t *testing.T) {
		// O, I, 0, 1 are excluded from pairingCodeChars
		for i := 0; i < 100; i++ {
			code := generatePairingCode(6)
			assert.NotContains(t, code, "O")
			assert.NotContains(t, code, "I")
			assert.NotContains(t, code, "0")
			assert.NotContains(t, code, "1")
		}
	})
}

func TestPairingCodeChars(t *testing.T) {
	t.Run("contains no ambiguous characters", func(t *testing.T) {
		assert.NotContains(t, pairingCodeChars, "O")
		assert.NotContains(t, pairingCodeChars, "I")
		assert.NotContains(t, pairingCodeChars, "0")
		assert.NotContains(t, pairingCodeChars, "1")
	})

	t.Run("contains expected character count", func(t *testing.T) {
		// 26 letters - O, I = 24 letters
		// 10 digits - 0, 1 = 8 digits
		// Total = 32 characters
		assert.Len(t, pairingCodeChars, 32)
	})
}
