package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"adaptive-testing-service/internal/domain"
)

// PoolLoader loads item-pool JSONB from Postgres.
type PoolLoader struct {
	db *pgxpool.Pool
}

func NewPoolLoader(db *pgxpool.Pool) *PoolLoader {
	return &PoolLoader{db: db}
}

func (l *PoolLoader) LoadPool(ctx context.Context, poolID string) (domain.Pool, error) {
	var raw []byte
	err := l.db.QueryRow(ctx, `SELECT data FROM item_pools WHERE id=$1`, poolID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, domain.ErrPoolNotFound
		}
		return domain.Pool{}, fmt.Errorf("load item pool: %w", err)
	}
	var pool domain.Pool
	if err := json.Unmarshal(raw, &pool); err != nil {
		return domain.Pool{}, fmt.Errorf("unmarshal item pool: %w", err)
	}
	return pool, nil
}
