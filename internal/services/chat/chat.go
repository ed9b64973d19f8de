// Package chat содержит основную бизнес-логику бота: обработку входящего
// сообщения пользователя, сборку контекстного окна диалога под бюджет
// токенов и учет расхода квоты.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/assistant-bot/internal/completion"
	"github.com/magabrotheeeer/assistant-bot/internal/lib/sl"
	"github.com/magabrotheeeer/assistant-bot/internal/models"
	"github.com/magabrotheeeer/assistant-bot/internal/storage"
)

// Ошибки, которые внешний слой показывает пользователю как подсказки,
// а не как сбои.
var (
	ErrNotRegistered = errors.New("user is not registered")
	ErrQuotaExceeded = errors.New("daily token limit exceeded")
	ErrEmptyMessage  = errors.New("empty user message")
)

// UserRepository определяет методы работы с пользователями.
type UserRepository interface {
	// GetOrCreateUser возвращает пользователя, создавая запись при первом контакте.
	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*models.User, bool, error)
	// GetUserByTelegramID возвращает пользователя по telegram_id.
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

// DialogueRepository определяет методы работы с историей диалога.
type DialogueRepository interface {
	// AppendTurn добавляет реплику в историю.
	AppendTurn(ctx context.Context, telegramID int64, role models.Role, content string, metadata map[string]string) error
	// ListRecentTurns возвращает последние limit реплик в порядке диалога.
	ListRecentTurns(ctx context.Context, telegramID int64, limit int) ([]models.Turn, error)
	// ClearDialogue удаляет историю диалога.
	ClearDialogue(ctx context.Context, telegramID int64) (int, error)
}

// Quota определяет учет суточной квоты токенов.
type Quota interface {
	HasRemainingBudget(ctx context.Context, telegramID int64) (bool, error)
	RecordUsage(ctx context.Context, telegramID int64, tokens int) error
	CurrentStatus(ctx context.Context, telegramID int64) (string, error)
}

// SubscriptionInfo отдает сводку по подписке для отчета о статусе.
type SubscriptionInfo interface {
	Info(ctx context.Context, telegramID int64) (string, error)
}

// Completer выполняет обращение к удаленной модели.
type Completer interface {
	Complete(ctx context.Context, msgs []completion.Message) (*completion.Settlement, error)
}

// TokenCounter оценивает стоимость текста в токенах.
type TokenCounter interface {
	Count(text string) int
}

// Service реализует обработку сообщений пользователей.
type Service struct {
	users     UserRepository
	dialogues DialogueRepository
	quota     Quota
	subs      SubscriptionInfo
	completer Completer
	tokens    TokenCounter

	systemPrompt     string
	historyWindow    int
	maxHistoryTokens int

	log *slog.Logger
}

// New создает новый экземпляр Service.
func New(users UserRepository, dialogues DialogueRepository, quota Quota, subs SubscriptionInfo,
	completer Completer, tokens TokenCounter,
	systemPrompt string, historyWindow, maxHistoryTokens int, log *slog.Logger) *Service {
	return &Service{
		users:            users,
		dialogues:        dialogues,
		quota:            quota,
		subs:             subs,
		completer:        completer,
		tokens:           tokens,
		systemPrompt:     systemPrompt,
		historyWindow:    historyWindow,
		maxHistoryTokens: maxHistoryTokens,
		log:              log,
	}
}

// Register создает пользователя при первом контакте или обновляет
// изменившийся username. Возвращает пользователя и флаг создания.
func (s *Service) Register(ctx context.Context, telegramID int64, username string) (*models.User, bool, error) {
	return s.users.GetOrCreateUser(ctx, telegramID, username)
}

// HandleUserMessage обрабатывает входящее сообщение: проверяет регистрацию
// и квоту, дописывает реплику в историю, собирает контекстное окно,
// получает ответ модели, учитывает расход и сохраняет ответ.
func (s *Service) HandleUserMessage(ctx context.Context, telegramID int64, text string) (string, error) {
	if text == "" {
		return "", ErrEmptyMessage
	}

	if _, err := s.users.GetUserByTelegramID(ctx, telegramID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", ErrNotRegistered
		}
		return "", err
	}

	ok, err := s.quota.HasRemainingBudget(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrQuotaExceeded
	}

	if err := s.dialogues.AppendTurn(ctx, telegramID, models.RoleUser, text, nil); err != nil {
		return "", err
	}

	// Реплика уже добавлена, история читается после этого: окно всегда
	// собирается по актуальному состоянию диалога.
	turns, err := s.dialogues.ListRecentTurns(ctx, telegramID, s.historyWindow+1)
	if err != nil {
		return "", err
	}
	history := trimPendingTurn(turns, text)

	msgs, historyTokens := s.buildWindow(history, text)

	settlement, err := s.completer.Complete(ctx, msgs)
	if err != nil {
		s.log.Error("completion failed",
			slog.Int64("telegram_id", telegramID), sl.Err(err))
		return "", err
	}

	usage := settlement.TokensConsumed
	if usage == 0 {
		usage = historyTokens + s.tokens.Count(settlement.Reply)
	}
	if err := s.quota.RecordUsage(ctx, telegramID, usage); err != nil {
		return "", err
	}

	if err := s.dialogues.AppendTurn(ctx, telegramID, models.RoleAssistant, settlement.Reply, nil); err != nil {
		return "", err
	}

	s.log.Info("message handled",
		slog.Int64("telegram_id", telegramID),
		slog.Int("tokens_used", usage))
	return settlement.Reply, nil
}

// StatusReport возвращает сводку по квоте и подписке пользователя.
func (s *Service) StatusReport(ctx context.Context, telegramID int64) (string, error) {
	quotaStatus, err := s.quota.CurrentStatus(ctx, telegramID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", ErrNotRegistered
		}
		return "", err
	}
	subInfo, err := s.subs.Info(ctx, telegramID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Использовано токенов: %s\n%s", quotaStatus, subInfo), nil
}

// ClearHistory удаляет историю диалога пользователя.
func (s *Service) ClearHistory(ctx context.Context, telegramID int64) error {
	count, err := s.dialogues.ClearDialogue(ctx, telegramID)
	if err != nil {
		return err
	}
	s.log.Info("dialogue cleared",
		slog.Int64("telegram_id", telegramID), slog.Int("turns", count))
	return nil
}

// trimPendingTurn отрезает от истории хвостовую реплику, если это только
// что добавленное сообщение пользователя: оно попадает в окно напрямую
// и не участвует в бюджете истории.
func trimPendingTurn(turns []models.Turn, text string) []models.Turn {
	if n := len(turns); n > 0 && turns[n-1].Role == models.RoleUser && turns[n-1].Content == text {
		return turns[:n-1]
	}
	return turns
}
