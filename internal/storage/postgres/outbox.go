package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/outbox"
)

const (
	fetchPendingSQL = `SELECT id, event_id, event_type, key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`

	markSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`
)

var _ outbox.Store = (*OutboxStore)(nil)

// OutboxStore implements outbox.Store backed by PostgreSQL.
type OutboxStore struct {
	pool *pgxpool.Pool
}

// NewOutboxStore returns an OutboxStore that uses the given pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// FetchPending returns up to limit unsent events, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := s.pool.Query(ctx, fetchPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching outbox: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Event, error) {
		var e outbox.Event
		err := row.Scan(&e.ID, &e.EventID, &e.Type, &e.Key, &e.Payload, &e.CreatedAt)
		return e, err
	})
}

// MarkSent stamps the events as published.
func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	if _, err := s.pool.Exec(ctx, markSentSQL, ids); err != nil {
		return fmt.Errorf("marking %d outbox events sent: %w", len(ids), err)
	}
	return nil
}
