package readstore

import (
	"context"
	"errors"

	"salon-booking/internal/infra"
	"salon-booking/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationReadStore serves the query side directly from SQL rows,
// bypassing domain entities.
type ReservationReadStore struct {
	pool *pgxpool.Pool
}

func NewReservationReadStore(pool *pgxpool.Pool) *ReservationReadStore {
	return &ReservationReadStore{pool: pool}
}

func (r *ReservationReadStore) FindByID(ctx context.Context, id uuid.UUID) (*queries.BookingView, error) {
	const query = `
SELECT b.id, b.user_id, b.slot_id, s.service_id, s.start_time, s.end_time,
       b.status, b.token_cents, b.total_cents, b.hold_expires_at, b.cancel_reason,
       b.created_at, b.updated_at
FROM bookings b
JOIN slots s ON s.id = b.slot_id
WHERE b.id = $1`

	var (
		v            queries.BookingView
		cancelReason string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.UserID, &v.SlotID, &v.ServiceID, &v.SlotStart, &v.SlotEnd,
		&v.Status, &v.TokenCents, &v.TotalCents, &v.HoldExpiresAt, &cancelReason,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr("booking not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find booking view by ID", err)
	}
	if cancelReason != "" {
		v.CancelReason = &cancelReason
	}
	return &v, nil
}

func (r *ReservationReadStore) FindByUserID(ctx context.Context, userID uuid.UUID, limit int32) ([]*queries.BookingListItem, error) {
	const query = `
SELECT b.id, b.slot_id, s.start_time, b.status, b.total_cents, b.created_at
FROM bookings b
JOIN slots s ON s.id = b.slot_id
WHERE b.user_id = $1
ORDER BY b.created_at DESC
LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list bookings by user", err)
	}
	defer rows.Close()

	var items []*queries.BookingListItem
	for rows.Next() {
		var item queries.BookingListItem
		if err := rows.Scan(&item.ID, &item.SlotID, &item.SlotStart, &item.Status, &item.TotalCents, &item.CreatedAt); err != nil {
			return nil, infra.WrapRepoErr("failed to scan booking list item", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate booking list", err)
	}
	return items, nil
}

func (r *ReservationReadStore) FindSlotAvailability(ctx context.Context, slotID uuid.UUID) (*queries.SlotAvailabilityView, error) {
	const query = `
SELECT id, service_id, start_time, end_time, capacity, booked_count
FROM slots
WHERE id = $1`

	var v queries.SlotAvailabilityView
	err := r.pool.QueryRow(ctx, query, slotID).Scan(
		&v.ID, &v.ServiceID, &v.StartTime, &v.EndTime, &v.Capacity, &v.BookedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr("slot not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find slot availability", err)
	}
	v.Remaining = v.Capacity - v.BookedCount
	return &v, nil
}
