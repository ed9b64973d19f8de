// Package assistantbot собирает все компоненты бота в единое приложение
// и управляет их жизненным циклом.
package assistantbot

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/assistant-bot/internal/cache"
	"github.com/magabrotheeeer/assistant-bot/internal/completion"
	"github.com/magabrotheeeer/assistant-bot/internal/config"
	"github.com/magabrotheeeer/assistant-bot/internal/lib/sl"
	"github.com/magabrotheeeer/assistant-bot/internal/lib/tokencount"
	"github.com/magabrotheeeer/assistant-bot/internal/paymentprovider"
	chatservice "github.com/magabrotheeeer/assistant-bot/internal/services/chat"
	paymentservice "github.com/magabrotheeeer/assistant-bot/internal/services/payment"
	quotaservice "github.com/magabrotheeeer/assistant-bot/internal/services/quota"
	subscriptionservice "github.com/magabrotheeeer/assistant-bot/internal/services/subscription"
	"github.com/magabrotheeeer/assistant-bot/internal/storage"
)

// App приложение бота: хранилище, кэш, клиенты внешних API и сервисы.
type App struct {
	Chat          *chatservice.Service
	Quota         *quotaservice.Service
	Subscriptions *subscriptionservice.Service
	Payments      *paymentservice.Service

	logger *slog.Logger
	db     *storage.Storage
	cache  *cache.Cache
}

// New создает приложение: подключает хранилище и кэш, инициализирует
// клиентов внешних API и связывает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	counter, err := tokencount.ForModel(cfg.Completion.Model)
	if err != nil {
		return nil, err
	}

	completer := completion.New(cfg.Completion, logger)
	gateway := paymentprovider.NewClient(cfg.Payments.ShopID, cfg.Payments.SecretKey)

	quota := quotaservice.New(db, cfg.Location(), logger)
	subscriptions := subscriptionservice.New(db, cacheRedis, cfg.Subscriptions.SweepInterval, logger)
	chat := chatservice.New(db, db, quota, subscriptions, completer, counter,
		cfg.Chat.SystemPrompt, cfg.Chat.HistoryWindow, cfg.Chat.MaxHistoryTokens, logger)
	payments := paymentservice.New(gateway, db, subscriptions,
		cfg.Payments.ReturnURL, cfg.Payments.PollInterval, cfg.Payments.PollTimeout, logger)

	return &App{
		Chat:          chat,
		Quota:         quota,
		Subscriptions: subscriptions,
		Payments:      payments,
		logger:        logger,
		db:            db,
		cache:         cacheRedis,
	}, nil
}

// Run запускает фоновые циклы приложения и блокируется до отмены
// контекста, после чего аккуратно останавливает компоненты.
func (a *App) Run(ctx context.Context) error {
	go a.Quota.RunDailyReset(ctx)
	go a.Subscriptions.RunExpireSweep(ctx)

	a.logger.Info("assistant-bot is running")
	<-ctx.Done()

	a.logger.Info("shutting down")
	a.Payments.Shutdown()
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
		return err
	}
	return nil
}
