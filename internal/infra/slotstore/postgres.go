package slotstore

import (
	"context"
	"errors"
	"time"

	"salon-booking/internal/domain/slot"
	"salon-booking/internal/infra"
	"salon-booking/internal/pkg/errs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the SlotStore contract with optimistic
// compare-and-swap statements: each mutation is one conditional UPDATE,
// so there is no read-then-write window anywhere.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetSlot(ctx context.Context, slotID uuid.UUID) (*slot.Slot, error) {
	const query = `
SELECT id, service_id, start_time, end_time, capacity, booked_count, version
FROM slots
WHERE id = $1`

	row, err := scanSlot(s.pool.QueryRow(ctx, query, slotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrSlotNotFound
		}
		return nil, infra.WrapRepoErr("failed to get slot", err)
	}
	return row, nil
}

func (s *PostgresStore) TryReserve(ctx context.Context, slotID uuid.UUID, expectedVersion int64) (*slot.Slot, error) {
	const stmt = `
UPDATE slots
SET booked_count = booked_count + 1, version = version + 1
WHERE id = $1 AND version = $2 AND booked_count < capacity
RETURNING id, service_id, start_time, end_time, capacity, booked_count, version`

	row, err := scanSlot(s.pool.QueryRow(ctx, stmt, slotID, expectedVersion))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, infra.WrapRepoErr("failed to reserve slot unit", err)
	}

	// The guarded update matched nothing; re-read to tell the caller why.
	current, getErr := s.GetSlot(ctx, slotID)
	if getErr != nil {
		return nil, getErr
	}
	if current.IsFull() {
		return nil, errs.ErrSlotFull
	}
	return nil, errs.ErrVersionMismatch
}

func (s *PostgresStore) ReleaseReservation(ctx context.Context, slotID uuid.UUID) error {
	const stmt = `
UPDATE slots
SET booked_count = GREATEST(booked_count - 1, 0), version = version + 1
WHERE id = $1`

	tag, err := s.pool.Exec(ctx, stmt, slotID)
	if err != nil {
		return infra.WrapRepoErr("failed to release slot unit", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrSlotNotFound
	}
	return nil
}

// CreateSlot inserts a new slot row; used by fixtures and admin tooling,
// not by the reservation path.
func (s *PostgresStore) CreateSlot(ctx context.Context, sl *slot.Slot) error {
	const stmt = `
INSERT INTO slots (id, service_id, start_time, end_time, capacity, booked_count, version)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, stmt,
		sl.ID(), sl.ServiceID(), sl.StartTime(), sl.EndTime(), sl.Capacity(), sl.BookedCount(), sl.Version())
	if err != nil {
		return infra.WrapRepoErr("failed to create slot", err)
	}
	return nil
}

func scanSlot(row pgx.Row) (*slot.Slot, error) {
	var (
		id, serviceID      uuid.UUID
		startTime, endTime time.Time
		capacity, booked   int
		version            int64
	)
	if err := row.Scan(&id, &serviceID, &startTime, &endTime, &capacity, &booked, &version); err != nil {
		return nil, err
	}
	return slot.ReconstructSlot(id, serviceID, startTime, endTime, capacity, booked, version)
}
