package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

// GetOrCreateUser возвращает пользователя по telegram_id, создавая запись
// при первом обращении. Изменившийся username обновляется на месте.
// Второе возвращаемое значение сообщает, был ли пользователь создан.
func (s *Storage) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*models.User, bool, error) {
	const op = "storage.GetOrCreateUser"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var u models.User
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT id, telegram_id, COALESCE(username, ''), daily_token_limit,
			          tokens_used_today, created_at
			      FROM users
			      WHERE telegram_id = $1
			      FOR UPDATE`
		err := tx.QueryRowContext(ctx, query, telegramID).Scan(&u.ID, &u.TelegramID,
			&u.Username, &u.DailyTokenLimit, &u.TokensUsedToday, &u.CreatedAt)
		switch {
		case err == nil:
			if username != "" && username != u.Username {
				if _, err := tx.ExecContext(ctx,
					`UPDATE users SET username = $1 WHERE id = $2`, username, u.ID); err != nil {
					return err
				}
				u.Username = username
			}
			return nil
		case errors.Is(err, sql.ErrNoRows):
			created = true
			query := `INSERT INTO users (telegram_id, username, daily_token_limit)
				      VALUES ($1, NULLIF($2, ''), $3)
				      RETURNING id, telegram_id, COALESCE(username, ''), daily_token_limit,
				          tokens_used_today, created_at`
			return tx.QueryRowContext(ctx, query, telegramID, username,
				models.DefaultDailyTokenLimit).Scan(&u.ID, &u.TelegramID, &u.Username,
				&u.DailyTokenLimit, &u.TokensUsedToday, &u.CreatedAt)
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &u, created, nil
}

// GetUserByTelegramID возвращает пользователя по telegram_id.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUserByTelegramID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_id, COALESCE(username, ''), daily_token_limit,
		          tokens_used_today, created_at
		      FROM users
		      WHERE telegram_id = $1`
	var u models.User
	err := s.DB.QueryRowContext(ctx, query, telegramID).Scan(&u.ID, &u.TelegramID,
		&u.Username, &u.DailyTokenLimit, &u.TokensUsedToday, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// AddTokensUsed увеличивает счетчик израсходованных токенов пользователя.
// Счетчик только растет; уменьшение выполняет лишь суточный сброс.
func (s *Storage) AddTokensUsed(ctx context.Context, telegramID int64, tokens int) error {
	const op = "storage.AddTokensUsed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
		      SET tokens_used_today = tokens_used_today + $1
		      WHERE telegram_id = $2`
	result, err := s.DB.ExecContext(ctx, query, tokens, telegramID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// ResetAllDailyTokens обнуляет суточные счетчики токенов всех пользователей
// и возвращает количество затронутых записей.
func (s *Storage) ResetAllDailyTokens(ctx context.Context) (int, error) {
	const op = "storage.ResetAllDailyTokens"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
		      SET tokens_used_today = 0
		      WHERE tokens_used_today <> 0`
	result, err := s.DB.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
