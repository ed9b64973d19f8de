package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetActiveSubscription(ctx context.Context, telegramID int64) (*models.Subscription, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) CreateOrExtendSubscription(ctx context.Context, telegramID int64, typ models.SubscriptionType, days int) (*models.Subscription, error) {
	args := m.Called(ctx, telegramID, typ, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) ExpireDueSubscriptions(ctx context.Context, now time.Time) ([]int64, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestService_CreateOrExtend(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:        1,
		Type:      models.SubscriptionPremium,
		Status:    models.StatusActive,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 0, 30),
	}

	tests := []struct {
		name       string
		typ        models.SubscriptionType
		days       int
		setupMocks func(r *RepoMock, c *CacheMock)
		wantErr    bool
	}{
		{
			name: "success",
			typ:  models.SubscriptionPremium,
			days: 30,
			setupMocks: func(r *RepoMock, c *CacheMock) {
				r.On("CreateOrExtendSubscription", mock.Anything, int64(42), models.SubscriptionPremium, 30).
					Return(sub, nil).Once()
				c.On("Invalidate", mock.Anything, "subscription:42").Return(nil).Once()
			},
		},
		{
			name:       "invalid type",
			typ:        models.SubscriptionType("golden"),
			days:       30,
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    true,
		},
		{
			name:       "invalid days",
			typ:        models.SubscriptionPremium,
			days:       0,
			setupMocks: func(_ *RepoMock, _ *CacheMock) {},
			wantErr:    true,
		},
		{
			name: "repo error",
			typ:  models.SubscriptionPremium,
			days: 30,
			setupMocks: func(r *RepoMock, _ *CacheMock) {
				r.On("CreateOrExtendSubscription", mock.Anything, int64(42), models.SubscriptionPremium, 30).
					Return(nil, errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			tt.setupMocks(repo, cache)

			svc := New(repo, cache, time.Minute, newNoopLogger())
			got, err := svc.CreateOrExtend(context.Background(), 42, tt.typ, tt.days)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, sub, got)
			}
			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestService_ActiveFor_CacheMissThenStore(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:        5,
		Type:      models.SubscriptionPremium,
		Status:    models.StatusActive,
		ExpiresAt: now.AddDate(0, 0, 10),
	}

	repo := new(RepoMock)
	cache := new(CacheMock)
	cache.On("Get", mock.Anything, "subscription:42", mock.Anything).Return(false, nil).Once()
	repo.On("GetActiveSubscription", mock.Anything, int64(42)).Return(sub, nil).Once()
	cache.On("Set", mock.Anything, "subscription:42", sub, time.Hour).Return(nil).Once()

	svc := New(repo, cache, time.Minute, newNoopLogger())
	got, err := svc.ActiveFor(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, sub, got)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestService_ActiveFor_NoSubscription(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	cache.On("Get", mock.Anything, "subscription:42", mock.Anything).Return(false, nil).Once()
	repo.On("GetActiveSubscription", mock.Anything, int64(42)).Return(nil, nil).Once()

	svc := New(repo, cache, time.Minute, newNoopLogger())
	got, err := svc.ActiveFor(context.Background(), 42)

	require.NoError(t, err)
	assert.Nil(t, got)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Info_NoSubscription(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	cache.On("Get", mock.Anything, "subscription:42", mock.Anything).Return(false, nil).Once()
	repo.On("GetActiveSubscription", mock.Anything, int64(42)).Return(nil, nil).Once()

	svc := New(repo, cache, time.Minute, newNoopLogger())
	info, err := svc.Info(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, "У вас нет активной подписки", info)
}

func TestService_ExpireDue_InvalidatesAffected(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	repo.On("ExpireDueSubscriptions", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]int64{42, 99}, nil).Once()
	cache.On("Invalidate", mock.Anything, "subscription:42").Return(nil).Once()
	cache.On("Invalidate", mock.Anything, "subscription:99").Return(nil).Once()

	svc := New(repo, cache, time.Minute, newNoopLogger())
	count, err := svc.ExpireDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestService_RunExpireSweep_StopsOnCancel(t *testing.T) {
	repo := new(RepoMock)
	cache := new(CacheMock)
	// первый проход выполняется сразу при старте цикла
	repo.On("ExpireDueSubscriptions", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]int64{}, nil)

	svc := New(repo, cache, time.Hour, newNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunExpireSweep(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop after context cancellation")
	}
}
