package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PostgresStore — Store поверх таблицы kv_collections (key → JSONB).
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore создаёт Store поверх PostgreSQL.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx,
		`SELECT value FROM kv_collections WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения коллекции %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_collections (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`

	if _, err := s.db.Exec(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("ошибка записи коллекции %s: %w", key, err)
	}
	return nil
}
