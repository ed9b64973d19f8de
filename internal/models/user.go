// Package models содержит доменные структуры бота: пользователей,
// диалоги с репликами и подписки. Структуры используются в бизнес‑логике
// и при работе с хранилищем.
package models

import "time"

// Суточные лимиты токенов: базовый и повышенный для premium-подписки.
const (
	DefaultDailyTokenLimit = 10000
	PremiumDailyTokenLimit = 49999
)

// User представляет пользователя бота.
type User struct {
	ID              int       // Внутренний идентификатор
	TelegramID      int64     // Идентификатор в Telegram (уникальный)
	Username        string    // Имя пользователя, может быть пустым
	DailyTokenLimit int       // Суточный лимит токенов
	TokensUsedToday int       // Токенов израсходовано с последнего сброса
	CreatedAt       time.Time // Дата регистрации
}
