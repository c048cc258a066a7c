package repository

import (
	"context"
	"time"

	"salon-booking/internal/infra"
	"salon-booking/internal/outbox"

	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// LockBatch claims pending events with SKIP LOCKED so relay instances
// never hand the same event to the broker while a lease is live.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	const stmt = `
UPDATE outbox_events
SET claimed_by = $1, claimed_until = now() + $2
WHERE id IN (
    SELECT id FROM outbox_events
    WHERE status = 'pending' AND (claimed_until IS NULL OR claimed_until < now())
    ORDER BY id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING id, aggregate_id, event_type, payload, created_at, status, retry_count, last_error`

	rows, err := s.pool.Query(ctx, stmt, relayID, lease, batchSize)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to lock outbox batch", err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		var status string
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.Type, &e.Payload, &e.CreatedAt, &status, &e.RetryCount, &e.LastError); err != nil {
			return nil, infra.WrapRepoErr("failed to scan outbox event", err)
		}
		e.Status = outbox.Status(status)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate outbox events", err)
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	const stmt = `
UPDATE outbox_events
SET status = 'sent', claimed_by = NULL, claimed_until = NULL
WHERE id = ANY($1)`

	if _, err := s.pool.Exec(ctx, stmt, ids); err != nil {
		return infra.WrapRepoErr("failed to mark outbox events sent", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	const stmt = `
UPDATE outbox_events
SET status = CASE WHEN retry_count + 1 >= 5 THEN 'failed' ELSE 'pending' END,
    retry_count = retry_count + 1,
    last_error = $2,
    claimed_by = NULL,
    claimed_until = NULL
WHERE id = $1`

	if _, err := s.pool.Exec(ctx, stmt, id, errMsg); err != nil {
		return infra.WrapRepoErr("failed to mark outbox event failed", err)
	}
	return nil
}
