// Package completion оборачивает обращение к chat-completion API.
// Клиент получает собранное контекстное окно диалога и возвращает
// ответ ассистента вместе с фактическим расходом токенов.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/assistant-bot/internal/config"
	"github.com/magabrotheeeer/assistant-bot/internal/lib/sl"
	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

// ErrUpstream возвращается при любой неуспешной попытке получить ответ
// от удаленной модели: сетевой сбой, не-2xx ответ, пустой список choices.
var ErrUpstream = errors.New("upstream completion failed")

// Message одна реплика контекстного окна, отправляемого модели.
type Message struct {
	Role    models.Role
	Content string
}

// Settlement итог обращения к модели: текст ответа и расход токенов.
// TokensConsumed равен нулю, если API не сообщило usage.
type Settlement struct {
	Reply          string
	TokensConsumed int
}

// Client клиент chat-completion API.
type Client struct {
	api     *openai.Client
	model   string
	maxTok  int
	limiter *rate.Limiter
	log     *slog.Logger
}

// New создает клиент по настройкам из конфига. BaseURL позволяет работать
// с любым OpenAI-совместимым API.
func New(cfg config.Completion, log *slog.Logger) *Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return &Client{
		api:     openai.NewClientWithConfig(apiConfig),
		model:   cfg.Model,
		maxTok:  cfg.MaxResponseTokens,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsBurst),
		log:     log,
	}
}

// Complete отправляет контекстное окно модели и возвращает ответ.
func (c *Client) Complete(ctx context.Context, msgs []Message) (*Settlement, error) {
	const op = "completion.Complete"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  chatMessages,
		MaxTokens: c.maxTok,
	})
	if err != nil {
		c.log.Error("chat completion request failed", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, ErrUpstream)
	}
	if len(resp.Choices) == 0 {
		c.log.Error("chat completion returned no choices", slog.String("model", c.model))
		return nil, fmt.Errorf("%s: %w", op, ErrUpstream)
	}

	return &Settlement{
		Reply:          resp.Choices[0].Message.Content,
		TokensConsumed: resp.Usage.TotalTokens,
	}, nil
}
