// Package tokencount оценивает стоимость текста в токенах для модели
// chat-completion. Оценка приблизительная: если для модели нет своего
// кодировщика, используется универсальный cl100k_base.
package tokencount

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding применяется, когда для модели нет своего кодировщика.
const fallbackEncoding = "cl100k_base"

// Counter считает токены выбранным кодировщиком.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// ForModel возвращает счетчик токенов для модели. Неизвестная модель
// не является ошибкой: в этом случае берется запасной кодировщик.
func ForModel(model string) (*Counter, error) {
	const op = "tokencount.ForModel"

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &Counter{enc: enc}, nil
}

// Count возвращает число токенов в тексте.
func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
