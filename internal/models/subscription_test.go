package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenewalFor_ExtendsActiveFromCurrentExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	existing := &Subscription{
		ID:        7,
		UserID:    1,
		Type:      SubscriptionPremium,
		Status:    StatusActive,
		StartsAt:  now.AddDate(0, 0, -20),
		ExpiresAt: now.AddDate(0, 0, 10),
	}

	renewed := RenewalFor(existing, SubscriptionPremium, 30, now)

	assert.Equal(t, existing.ID, renewed.ID)
	assert.Equal(t, StatusActive, renewed.Status)
	assert.Equal(t, existing.StartsAt, renewed.StartsAt)
	// 10 оставшихся дней + 30 купленных = 40 от текущего момента
	assert.Equal(t, now.AddDate(0, 0, 40), renewed.ExpiresAt)
}

func TestRenewalFor_TypeOverwrittenInPlace(t *testing.T) {
	now := time.Now().UTC()
	existing := &Subscription{
		ID:        3,
		Type:      SubscriptionBasic,
		Status:    StatusActive,
		ExpiresAt: now.AddDate(0, 0, 5),
	}

	renewed := RenewalFor(existing, SubscriptionPremium, 30, now)

	assert.Equal(t, SubscriptionPremium, renewed.Type)
	assert.Equal(t, existing.ID, renewed.ID)
	assert.Equal(t, existing.ExpiresAt.AddDate(0, 0, 30), renewed.ExpiresAt)
}

func TestRenewalFor_LapsedSubscriptionRestartsFromNow(t *testing.T) {
	now := time.Now().UTC()
	existing := &Subscription{
		ID:        9,
		Type:      SubscriptionPremium,
		Status:    StatusActive,
		StartsAt:  now.AddDate(0, 0, -40),
		ExpiresAt: now.AddDate(0, 0, -10),
	}

	renewed := RenewalFor(existing, SubscriptionTrial, 7, now)

	assert.Equal(t, existing.ID, renewed.ID)
	assert.Equal(t, SubscriptionTrial, renewed.Type)
	assert.Equal(t, StatusActive, renewed.Status)
	assert.Equal(t, now, renewed.StartsAt)
	assert.Equal(t, now.AddDate(0, 0, 7), renewed.ExpiresAt)
}

func TestRenewalFor_NoExistingCreatesNew(t *testing.T) {
	now := time.Now().UTC()

	renewed := RenewalFor(nil, SubscriptionPremium, 30, now)

	assert.Zero(t, renewed.ID)
	assert.Equal(t, StatusActive, renewed.Status)
	assert.Equal(t, now, renewed.StartsAt)
	assert.Equal(t, now.AddDate(0, 0, 30), renewed.ExpiresAt)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("moderator").Valid())
}

func TestSubscriptionType_Valid(t *testing.T) {
	assert.True(t, SubscriptionPremium.Valid())
	assert.False(t, SubscriptionType("golden").Valid())
}

func TestSubscription_DaysLeft(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name      string
		expiresAt time.Time
		want      int
	}{
		{name: "exact days", expiresAt: now.AddDate(0, 0, 10), want: 10},
		// неполный день считается за день
		{name: "partial day rounds up", expiresAt: now.AddDate(0, 0, 40).Add(-2 * time.Hour), want: 40},
		{name: "a few hours left", expiresAt: now.Add(3 * time.Hour), want: 1},
		{name: "already expired", expiresAt: now.Add(-time.Hour), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := Subscription{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, sub.DaysLeft(now))
		})
	}
}
