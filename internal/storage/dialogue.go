package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/magabrotheeeer/assistant-bot/internal/models"
)

// AppendTurn добавляет реплику в историю диалога пользователя. Диалог
// создается лениво при первой реплике. Вся операция выполняется в одной
// транзакции.
func (s *Storage) AppendTurn(ctx context.Context, telegramID int64, role models.Role, content string, metadata map[string]string) error {
	const op = "storage.AppendTurn"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if !role.Valid() {
		return fmt.Errorf("%s: invalid role %q", op, role)
	}

	var meta any
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		meta = raw
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var userID int
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE telegram_id = $1`, telegramID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var dialogueID int
		query := `INSERT INTO dialogues (user_id)
			      VALUES ($1)
			      ON CONFLICT (user_id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
			      RETURNING id`
		if err := tx.QueryRowContext(ctx, query, userID).Scan(&dialogueID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO turns (dialogue_id, role, content, metadata) VALUES ($1, $2, $3, $4)`,
			dialogueID, string(role), content, meta)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListRecentTurns возвращает последние limit реплик диалога пользователя
// в хронологическом порядке.
func (s *Storage) ListRecentTurns(ctx context.Context, telegramID int64, limit int) ([]models.Turn, error) {
	const op = "storage.ListRecentTurns"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT t.id, t.role, t.content, t.metadata, t.created_at
		      FROM turns t
		      JOIN dialogues d ON t.dialogue_id = d.id
		      JOIN users u ON d.user_id = u.id
		      WHERE u.telegram_id = $1
		      ORDER BY t.id DESC
		      LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Turn
	for rows.Next() {
		var item models.Turn
		var role string
		var raw []byte
		if err := rows.Scan(&item.ID, &role, &item.Content, &raw, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		item.Role = models.Role(role)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &item.Metadata); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		result = append(result, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Запрос отдает реплики от новых к старым, история нужна в порядке диалога.
	slices.Reverse(result)
	return result, nil
}

// ClearDialogue удаляет все реплики диалога пользователя и возвращает
// количество удаленных записей.
func (s *Storage) ClearDialogue(ctx context.Context, telegramID int64) (int, error) {
	const op = "storage.ClearDialogue"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM turns
		      WHERE dialogue_id IN (
		          SELECT d.id
		          FROM dialogues d
		          JOIN users u ON d.user_id = u.id
		          WHERE u.telegram_id = $1
		      )`
	result, err := s.DB.ExecContext(ctx, query, telegramID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
