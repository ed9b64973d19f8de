// Package subscription содержит бизнес-логику подписок: покупку с продлением,
// просмотр активной подписки и фоновое снятие истекших.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/assistant-bot/internal/lib/sl"
	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// GetActiveSubscription возвращает активную подписку пользователя или nil.
	GetActiveSubscription(ctx context.Context, telegramID int64) (*models.Subscription, error)
	// CreateOrExtendSubscription применяет покупку подписки одной транзакцией.
	CreateOrExtendSubscription(ctx context.Context, telegramID int64, typ models.SubscriptionType, days int) (*models.Subscription, error)
	// ExpireDueSubscriptions снимает истекшие подписки и возвращает telegram_id владельцев.
	ExpireDueSubscriptions(ctx context.Context, now time.Time) ([]int64, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// Service реализует бизнес-логику подписок, включая кеширование.
type Service struct {
	repo          SubscriptionRepository
	cache         Cache
	sweepInterval time.Duration
	log           *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo SubscriptionRepository, cache Cache, sweepInterval time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		cache:         cache,
		sweepInterval: sweepInterval,
		log:           log,
	}
}

func cacheKey(telegramID int64) string {
	return fmt.Sprintf("subscription:%d", telegramID)
}

// CreateOrExtend применяет покупку days дней подписки типа typ. Активная
// подписка продлевается от своей текущей даты окончания, новая строка
// не создается.
func (s *Service) CreateOrExtend(ctx context.Context, telegramID int64, typ models.SubscriptionType, days int) (*models.Subscription, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("invalid subscription type: %q", typ)
	}
	if days <= 0 {
		return nil, fmt.Errorf("invalid subscription length: %d days", days)
	}

	sub, err := s.repo.CreateOrExtendSubscription(ctx, telegramID, typ, days)
	if err != nil {
		return nil, err
	}
	s.log.Info("subscription applied",
		slog.Int64("telegram_id", telegramID),
		slog.String("type", string(sub.Type)),
		slog.Time("expires_at", sub.ExpiresAt))

	key := cacheKey(telegramID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to invalidate cached subscription", slog.String("key", key), sl.Err(err))
	}
	return sub, nil
}

// ActiveFor возвращает активную подписку пользователя, используя кеш
// или хранилище. Отсутствие активной подписки не является ошибкой.
func (s *Service) ActiveFor(ctx context.Context, telegramID int64) (*models.Subscription, error) {
	key := cacheKey(telegramID)
	var cached models.Subscription
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("failed to read cached subscription", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	sub, err := s.repo.GetActiveSubscription(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		if err := s.cache.Set(ctx, key, sub, time.Hour); err != nil {
			s.log.Warn("failed to cache subscription", slog.String("key", key), sl.Err(err))
		}
	}
	return sub, nil
}

// Info возвращает человекочитаемую сводку по подписке пользователя.
func (s *Service) Info(ctx context.Context, telegramID int64) (string, error) {
	sub, err := s.ActiveFor(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "У вас нет активной подписки", nil
	}

	typeText := map[models.SubscriptionType]string{
		models.SubscriptionBasic:   "Базовая",
		models.SubscriptionPremium: "Премиум",
		models.SubscriptionTrial:   "Пробная",
	}[sub.Type]
	if typeText == "" {
		typeText = string(sub.Type)
	}

	now := time.Now().UTC()
	return fmt.Sprintf(
		"Подписка: %s\nСтатус: %s\nИстекает: %s\nОсталось дней: %d",
		typeText, sub.Status, sub.ExpiresAt.Format("02.01.2006 15:04"), sub.DaysLeft(now)), nil
}

// ExpireDue снимает все подписки, чей срок истек к текущему моменту,
// и возвращает количество затронутых пользователей. Снятие подписки и
// возврат базового лимита токенов выполняются хранилищем согласованно.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	affected, err := s.repo.ExpireDueSubscriptions(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, telegramID := range affected {
		key := cacheKey(telegramID)
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.log.Warn("failed to invalidate cached subscription", slog.String("key", key), sl.Err(err))
		}
	}
	return len(affected), nil
}

// RunExpireSweep периодически снимает истекшие подписки. Ошибки прохода
// логируются, цикл продолжает работу до отмены контекста.
func (s *Service) RunExpireSweep(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expire sweep loop stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	count, err := s.ExpireDue(ctx)
	if err != nil {
		s.log.Error("failed to expire due subscriptions", sl.Err(err))
		return
	}
	if count > 0 {
		s.log.Info("expired subscriptions", slog.Int("count", count))
	}
}
