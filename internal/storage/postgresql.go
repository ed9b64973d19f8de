// Package storage реализует хранилище данных на основе PostgreSQL
// для управления пользователями, историями диалогов и подписками.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrUserNotFound возвращается, когда пользователь не зарегистрирован.
var ErrUserNotFound = errors.New("user not found")

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с пользователями, диалогами и подписками.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и инициализирует необходимые таблицы и индексы.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = initializeSchema(db); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

func initializeSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS schema_info(
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create schema_info: %w", err)
	}

	var exists bool
	err = db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM schema_info WHERE key = 'initialized')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check initialization: %w", err)
	}
	if exists {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
        CREATE TABLE IF NOT EXISTS users(
            id SERIAL PRIMARY KEY,
            telegram_id BIGINT NOT NULL UNIQUE,
            username VARCHAR(100),
            daily_token_limit INTEGER NOT NULL DEFAULT 10000,
            tokens_used_today INTEGER NOT NULL DEFAULT 0 CHECK (tokens_used_today >= 0),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = tx.Exec(`
        CREATE TABLE IF NOT EXISTS dialogues(
            id SERIAL PRIMARY KEY,
            user_id INTEGER NOT NULL UNIQUE REFERENCES users(id),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create dialogues table: %w", err)
	}

	_, err = tx.Exec(`
        CREATE TABLE IF NOT EXISTS turns(
            id SERIAL PRIMARY KEY,
            dialogue_id INTEGER NOT NULL REFERENCES dialogues(id),
            role TEXT NOT NULL,
            content TEXT NOT NULL,
            metadata JSONB,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create turns table: %w", err)
	}

	_, err = tx.Exec(`
        CREATE INDEX IF NOT EXISTS idx_turns_dialogue_id
        ON turns (dialogue_id);
    `)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	_, err = tx.Exec(`
        CREATE TABLE IF NOT EXISTS subscriptions(
            id SERIAL PRIMARY KEY,
            user_id INTEGER NOT NULL REFERENCES users(id),
            type TEXT NOT NULL,
            status TEXT NOT NULL,
            starts_at TIMESTAMP NOT NULL,
            expires_at TIMESTAMP NOT NULL
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create subscriptions table: %w", err)
	}

	_, err = tx.Exec(`
        CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id
        ON subscriptions (user_id);
    `)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO schema_info (key, value) VALUES ('initialized', 'true')")
	if err != nil {
		return fmt.Errorf("failed to mark as initialized: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit initialization: %w", err)
	}
	return nil
}

// withTx выполняет fn внутри транзакции: commit при успехе,
// rollback при ошибке или досрочном выходе.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Close закрывает соединение с базой данных.
func (s *Storage) Close() error {
	return s.DB.Close()
}
