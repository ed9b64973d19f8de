package chat

import (
	"github.com/magabrotheeeer/assistant-bot/internal/completion"
	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

// messageOverhead фиксированная надбавка к стоимости каждой реплики:
// служебные токены ролей и разделителей.
const messageOverhead = 5

// buildWindow собирает контекстное окно для модели: системная инструкция,
// затем уместившийся в бюджет хвост истории, затем новое сообщение
// пользователя. Возвращает окно и оценку стоимости исторической части.
//
// Заполнение жадное, от новых реплик к старым: первая реплика, не
// влезшая в бюджет, останавливает просмотр, более старые уже не
// рассматриваются. Слишком дорогая реплика пропускается целиком,
// усечения текста нет. Новое сообщение пользователя в бюджете истории
// не участвует и не отбрасывается никогда.
func (s *Service) buildWindow(history []models.Turn, userMessage string) ([]completion.Message, int) {
	if len(history) > s.historyWindow {
		history = history[len(history)-s.historyWindow:]
	}

	var kept []completion.Message
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := s.tokens.Count(history[i].Content) + messageOverhead
		if total+cost > s.maxHistoryTokens {
			break
		}
		total += cost
		kept = append([]completion.Message{{
			Role:    history[i].Role,
			Content: history[i].Content,
		}}, kept...)
	}

	out := make([]completion.Message, 0, len(kept)+2)
	out = append(out, completion.Message{Role: models.RoleSystem, Content: s.systemPrompt})
	out = append(out, kept...)
	out = append(out, completion.Message{Role: models.RoleUser, Content: userMessage})
	return out, total
}
