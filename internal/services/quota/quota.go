// Package quota содержит бизнес-логику суточных лимитов токенов:
// проверку остатка, учет расхода и ежедневный сброс счетчиков.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/assistant-bot/internal/lib/sl"
	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

// UserRepository определяет методы хранилища, нужные учету квот.
type UserRepository interface {
	// GetUserByTelegramID возвращает пользователя по telegram_id.
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	// AddTokensUsed увеличивает счетчик израсходованных токенов.
	AddTokensUsed(ctx context.Context, telegramID int64, tokens int) error
	// ResetAllDailyTokens обнуляет счетчики всех пользователей.
	ResetAllDailyTokens(ctx context.Context) (int, error)
}

// resetRetryInterval пауза между повторными попытками суточного сброса.
const resetRetryInterval = time.Minute

// Service реализует учет суточных квот.
type Service struct {
	repo UserRepository
	loc  *time.Location
	log  *slog.Logger

	retryInterval time.Duration
}

// New создает новый экземпляр Service. Суточная граница сброса
// вычисляется в часовом поясе loc.
func New(repo UserRepository, loc *time.Location, log *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		loc:           loc,
		log:           log,
		retryInterval: resetRetryInterval,
	}
}

// HasRemainingBudget сообщает, осталась ли у пользователя квота на сегодня.
// Сравнение строгое: израсходовано меньше лимита.
func (s *Service) HasRemainingBudget(ctx context.Context, telegramID int64) (bool, error) {
	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return false, err
	}
	return user.TokensUsedToday < user.DailyTokenLimit, nil
}

// RecordUsage учитывает расход токенов. Счетчик монотонно растет,
// дедупликация повторных вызовов остается на совести вызывающего.
func (s *Service) RecordUsage(ctx context.Context, telegramID int64, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("negative token usage: %d", tokens)
	}
	return s.repo.AddTokensUsed(ctx, telegramID, tokens)
}

// CurrentStatus возвращает строку вида "израсходовано/лимит".
func (s *Service) CurrentStatus(ctx context.Context, telegramID int64) (string, error) {
	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d", user.TokensUsedToday, user.DailyTokenLimit), nil
}

// RunDailyReset сбрасывает суточные счетчики всех пользователей в полночь.
// Момент следующего сброса пересчитывается от текущего времени на каждой
// итерации, поэтому цикл не накапливает дрейф между перезапусками.
func (s *Service) RunDailyReset(ctx context.Context) {
	for {
		now := time.Now().In(s.loc)
		next := nextRollover(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("daily reset loop stopped")
			return
		case <-timer.C:
		}

		if !s.resetWithRetry(ctx) {
			return
		}
	}
}

// resetWithRetry выполняет сброс счетчиков, повторяя попытку через
// retryInterval после ошибки: неудавшийся сброс не откладывается до
// следующей полуночи. Возвращает false, если контекст отменен.
func (s *Service) resetWithRetry(ctx context.Context) bool {
	for {
		count, err := s.repo.ResetAllDailyTokens(ctx)
		if err == nil {
			s.log.Info("daily token counters reset", slog.Int("users", count))
			return true
		}
		s.log.Error("failed to reset daily token counters, will retry", sl.Err(err))

		select {
		case <-ctx.Done():
			s.log.Info("daily reset loop stopped")
			return false
		case <-time.After(s.retryInterval):
		}
	}
}

// nextRollover возвращает ближайшую полночь после now в поясе now.
func nextRollover(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
