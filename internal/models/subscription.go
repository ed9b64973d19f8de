package models

import (
	"math"
	"time"
)

// SubscriptionType тип подписки пользователя.
type SubscriptionType string

// Поддерживаемые типы подписок.
const (
	SubscriptionBasic   SubscriptionType = "basic"
	SubscriptionPremium SubscriptionType = "premium"
	SubscriptionTrial   SubscriptionType = "trial"
)

// Valid сообщает, входит ли тип в закрытый набор допустимых значений.
func (t SubscriptionType) Valid() bool {
	switch t {
	case SubscriptionBasic, SubscriptionPremium, SubscriptionTrial:
		return true
	}
	return false
}

// SubscriptionStatus статус подписки.
type SubscriptionStatus string

// Возможные статусы подписки.
const (
	StatusActive   SubscriptionStatus = "active"
	StatusExpired  SubscriptionStatus = "expired"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Subscription представляет подписку пользователя. У пользователя может
// быть не более одной активной подписки: продление сдвигает дату окончания
// существующей записи, а не создаёт новую.
type Subscription struct {
	ID        int                // Идентификатор подписки
	UserID    int                // Внутренний идентификатор владельца
	Type      SubscriptionType   // Тип подписки
	Status    SubscriptionStatus // Статус подписки
	StartsAt  time.Time          // Начало действия
	ExpiresAt time.Time          // Окончание действия
}

// DaysLeft возвращает число дней до окончания подписки относительно
// переданного момента времени. Неполный день считается за день:
// подписка, истекающая завтра утром, показывает один оставшийся день.
func (s *Subscription) DaysLeft(now time.Time) int {
	left := s.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// RenewalFor вычисляет результат покупки days дней подписки типа typ
// с учетом существующей подписки existing (nil, если активной нет).
// Свежая активная подписка продлевается от текущей даты окончания,
// тип при расхождении перезаписывается. Просроченная или отсутствующая
// подписка начинается заново от now. Параллельные активные подписки
// не создаются никогда.
func RenewalFor(existing *Subscription, typ SubscriptionType, days int, now time.Time) Subscription {
	if existing != nil && existing.Status == StatusActive && existing.ExpiresAt.After(now) {
		renewed := *existing
		renewed.Type = typ
		renewed.ExpiresAt = existing.ExpiresAt.AddDate(0, 0, days)
		return renewed
	}
	if existing != nil {
		renewed := *existing
		renewed.Type = typ
		renewed.Status = StatusActive
		renewed.StartsAt = now
		renewed.ExpiresAt = now.AddDate(0, 0, days)
		return renewed
	}
	return Subscription{
		Type:      typ,
		Status:    StatusActive,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 0, days),
	}
}
