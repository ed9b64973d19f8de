package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

// GetActiveSubscription возвращает самую свежую активную подписку
// пользователя или nil, если активной подписки нет.
func (s *Storage) GetActiveSubscription(ctx context.Context, telegramID int64) (*models.Subscription, error) {
	const op = "storage.GetActiveSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT s.id, s.user_id, s.type, s.status, s.starts_at, s.expires_at
		      FROM subscriptions s
		      JOIN users u ON s.user_id = u.id
		      WHERE u.telegram_id = $1 AND s.status = $2
		      ORDER BY s.expires_at DESC
		      LIMIT 1`
	var sub models.Subscription
	var typ, status string
	err := s.DB.QueryRowContext(ctx, query, telegramID, string(models.StatusActive)).Scan(
		&sub.ID, &sub.UserID, &typ, &status, &sub.StartsAt, &sub.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.Type = models.SubscriptionType(typ)
	sub.Status = models.SubscriptionStatus(status)
	return &sub, nil
}

// CreateOrExtendSubscription применяет покупку days дней подписки типа typ
// к пользователю. Активная подписка продлевается на месте, новая запись
// создается только при полном отсутствии подписки. Покупка premium
// одновременно повышает суточный лимит токенов. Вся операция выполняется
// в одной транзакции.
func (s *Storage) CreateOrExtendSubscription(ctx context.Context, telegramID int64, typ models.SubscriptionType, days int) (*models.Subscription, error) {
	const op = "storage.CreateOrExtendSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if !typ.Valid() {
		return nil, fmt.Errorf("%s: invalid subscription type %q", op, typ)
	}

	now := time.Now().UTC()
	var result models.Subscription
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var userID int
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE telegram_id = $1 FOR UPDATE`, telegramID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var existing *models.Subscription
		query := `SELECT id, user_id, type, status, starts_at, expires_at
			      FROM subscriptions
			      WHERE user_id = $1 AND status = $2
			      ORDER BY expires_at DESC
			      LIMIT 1
			      FOR UPDATE`
		var sub models.Subscription
		var subType, subStatus string
		err = tx.QueryRowContext(ctx, query, userID, string(models.StatusActive)).Scan(
			&sub.ID, &sub.UserID, &subType, &subStatus, &sub.StartsAt, &sub.ExpiresAt)
		switch {
		case err == nil:
			sub.Type = models.SubscriptionType(subType)
			sub.Status = models.SubscriptionStatus(subStatus)
			existing = &sub
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		result = models.RenewalFor(existing, typ, days, now)
		result.UserID = userID

		if existing != nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE subscriptions
				 SET type = $1, status = $2, starts_at = $3, expires_at = $4
				 WHERE id = $5`,
				string(result.Type), string(result.Status), result.StartsAt,
				result.ExpiresAt, existing.ID)
			if err != nil {
				return err
			}
			result.ID = existing.ID
		} else {
			err = tx.QueryRowContext(ctx,
				`INSERT INTO subscriptions (user_id, type, status, starts_at, expires_at)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				userID, string(result.Type), string(result.Status), result.StartsAt,
				result.ExpiresAt).Scan(&result.ID)
			if err != nil {
				return err
			}
		}

		if typ == models.SubscriptionPremium {
			_, err = tx.ExecContext(ctx,
				`UPDATE users SET daily_token_limit = $1 WHERE id = $2`,
				models.PremiumDailyTokenLimit, userID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// ExpireDueSubscriptions помечает истекшие активные подписки и одним
// согласованным обновлением возвращает владельцам базовый суточный лимит
// токенов. Возвращает telegram_id затронутых пользователей.
func (s *Storage) ExpireDueSubscriptions(ctx context.Context, now time.Time) ([]int64, error) {
	const op = "storage.ExpireDueSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH expired AS (
		          UPDATE subscriptions
		          SET status = $1
		          WHERE status = $2 AND expires_at <= $3
		          RETURNING user_id
		      )
		      UPDATE users
		      SET daily_token_limit = $4
		      FROM expired
		      WHERE users.id = expired.user_id
		      RETURNING users.telegram_id`
	rows, err := s.DB.QueryContext(ctx, query,
		string(models.StatusExpired), string(models.StatusActive), now,
		models.DefaultDailyTokenLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []int64
	for rows.Next() {
		var telegramID int64
		if err := rows.Scan(&telegramID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, telegramID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
