// Package payment реализует покупку подписки: создание платежа в ЮKassa
// и фоновое отслеживание его статуса до зачисления или отказа.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/assistant-bot/internal/lib/sl"
	"github.com/magabrotheeeer/assistant-bot/internal/models"
	"github.com/magabrotheeeer/assistant-bot/internal/paymentprovider"
)

// Ошибки уровня сервиса платежей.
var (
	ErrUnknownPlan = errors.New("unknown plan")
	ErrInvalidPlan = errors.New("invalid plan")
)

// PollState состояние фонового отслеживания платежа.
type PollState string

const (
	PollStarted        PollState = "started"
	PollPolling        PollState = "polling"
	PollSucceeded      PollState = "succeeded"
	PollTerminalFailed PollState = "terminal_failed"
	PollTimedOut       PollState = "timed_out"
)

const defaultPlanDays = 30

// Gateway определяет операции платежного шлюза.
type Gateway interface {
	CreatePayment(ctx context.Context, req paymentprovider.CreatePaymentRequest) (*paymentprovider.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*paymentprovider.Payment, error)
}

// UserRepository определяет доступ к пользователям.
type UserRepository interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

// Extender зачисляет оплаченную подписку.
type Extender interface {
	CreateOrExtend(ctx context.Context, telegramID int64, typ models.SubscriptionType, days int) (*models.Subscription, error)
}

// Purchase результат начала покупки: ссылка на оплату и описание для
// пользователя.
type Purchase struct {
	PaymentID   string
	CheckoutURL string
	Summary     string
}

// pollTask одно фоновое отслеживание платежа.
type pollTask struct {
	paymentID string
	cancel    context.CancelFunc
}

// Service реализует покупку и зачисление подписок.
type Service struct {
	gateway  Gateway
	users    UserRepository
	subs     Extender
	validate *validator.Validate
	log      *slog.Logger

	returnURL    string
	pollInterval time.Duration
	pollTimeout  time.Duration

	mu    sync.Mutex
	tasks map[string]*pollTask
	wg    sync.WaitGroup
}

// New создает новый экземпляр Service.
func New(gateway Gateway, users UserRepository, subs Extender,
	returnURL string, pollInterval, pollTimeout time.Duration, log *slog.Logger) *Service {
	return &Service{
		gateway:      gateway,
		users:        users,
		subs:         subs,
		validate:     validator.New(),
		log:          log,
		returnURL:    returnURL,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		tasks:        make(map[string]*pollTask),
	}
}

// StartPurchase создает платеж за тарифный план и запускает фоновое
// отслеживание его статуса. Возвращает ссылку на оплату и описание покупки.
func (s *Service) StartPurchase(ctx context.Context, telegramID int64, planName string) (*Purchase, error) {
	const op = "services.payment.StartPurchase"

	plan, ok := models.Plans[planName]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnknownPlan, planName)
	}
	if err := s.validate.Struct(plan); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidPlan, err)
	}

	if _, err := s.users.GetUserByTelegramID(ctx, telegramID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payment, err := s.gateway.CreatePayment(ctx, paymentprovider.CreatePaymentRequest{
		Amount: paymentprovider.Amount{
			Value:    fmt.Sprintf("%.2f", plan.Amount),
			Currency: "RUB",
		},
		Confirmation: paymentprovider.Confirmation{
			Type:      "redirect",
			ReturnURL: s.returnURL,
		},
		Capture:     true,
		Description: plan.Description,
		Metadata: map[string]string{
			"user_id": strconv.FormatInt(telegramID, 10),
			"days":    strconv.Itoa(plan.Days),
			"type":    string(plan.Type),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("payment created",
		slog.Int64("telegram_id", telegramID),
		slog.String("payment_id", payment.ID),
		slog.String("plan", planName))

	s.StartPoll(payment.ID)
	return &Purchase{
		PaymentID:   payment.ID,
		CheckoutURL: payment.Confirmation.ConfirmationURL,
		Summary: fmt.Sprintf("%s: %.2f руб. на %d дней",
			plan.Description, plan.Amount, plan.Days),
	}, nil
}

// StartPoll запускает фоновое отслеживание платежа. Повторный вызов для
// того же платежа отменяет предыдущее отслеживание и начинает новое.
func (s *Service) StartPoll(paymentID string) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &pollTask{paymentID: paymentID, cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.tasks[paymentID]; ok {
		prev.cancel()
	}
	s.tasks[paymentID] = task
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.deregister(task)

		state, err := s.runPoll(ctx, paymentID)
		if err != nil {
			s.log.Error("payment poll finished with error",
				slog.String("payment_id", paymentID),
				slog.String("state", string(state)), sl.Err(err))
			return
		}
		s.log.Info("payment poll finished",
			slog.String("payment_id", paymentID),
			slog.String("state", string(state)))
	}()
}

// CancelPoll прекращает отслеживание платежа, если оно еще идет.
func (s *Service) CancelPoll(paymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[paymentID]; ok {
		task.cancel()
	}
}

// Shutdown отменяет все отслеживания и дожидается их завершения.
func (s *Service) Shutdown() {
	s.mu.Lock()
	for _, task := range s.tasks {
		task.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// runPoll опрашивает статус платежа раз в pollInterval до успеха,
// терминального отказа или истечения pollTimeout. Срок проверяется
// первым на каждом тике, поэтому зависший шлюз не продлевает опрос.
// Ошибки запроса статуса считаются временными: опрос продолжается.
func (s *Service) runPoll(ctx context.Context, paymentID string) (PollState, error) {
	deadline := time.Now().Add(s.pollTimeout)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	state := PollStarted
	for {
		select {
		case <-ctx.Done():
			return state, nil
		case <-ticker.C:
		}
		state = PollPolling

		if time.Now().After(deadline) {
			return PollTimedOut, nil
		}

		payment, err := s.gateway.GetPayment(ctx, paymentID)
		if err != nil {
			s.log.Warn("payment status check failed",
				slog.String("payment_id", paymentID), sl.Err(err))
			continue
		}

		switch payment.Status {
		case paymentprovider.StatusSucceeded:
			if err := s.settle(ctx, payment); err != nil {
				return PollSucceeded, err
			}
			return PollSucceeded, nil
		case paymentprovider.StatusCanceled, paymentprovider.StatusExpired:
			return PollTerminalFailed, nil
		}
	}
}

// settle зачисляет оплаченную подписку по метаданным платежа.
func (s *Service) settle(ctx context.Context, payment *paymentprovider.Payment) error {
	const op = "services.payment.settle"

	telegramID, err := strconv.ParseInt(payment.Metadata["user_id"], 10, 64)
	if err != nil {
		return fmt.Errorf("%s: bad user_id in metadata: %w", op, err)
	}

	days := defaultPlanDays
	if raw, ok := payment.Metadata["days"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.log.Warn("bad days in payment metadata, using default",
				slog.String("payment_id", payment.ID),
				slog.String("days", raw))
		} else {
			days = parsed
		}
	}

	typ := models.SubscriptionPremium
	if raw := models.SubscriptionType(payment.Metadata["type"]); raw.Valid() {
		typ = raw
	}

	sub, err := s.subs.CreateOrExtend(ctx, telegramID, typ, days)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscription settled",
		slog.Int64("telegram_id", telegramID),
		slog.String("payment_id", payment.ID),
		slog.Time("expires_at", sub.ExpiresAt))
	return nil
}

// deregister снимает задачу из реестра, если ее не вытеснил повторный
// StartPoll того же платежа.
func (s *Service) deregister(task *pollTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.tasks[task.paymentID]; ok && current == task {
		delete(s.tasks, task.paymentID)
	}
}
