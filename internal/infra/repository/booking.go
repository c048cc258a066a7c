package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"salon-booking/internal/domain/booking"
	"salon-booking/internal/infra"
	"salon-booking/internal/outbox"
	"salon-booking/internal/pkg/errs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingRepository persists bookings and their outbox events in one
// transaction, so a state change and its event are durable together or
// not at all.
type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking, evt *outbox.Event) error {
	const stmt = `
INSERT INTO bookings (id, user_id, slot_id, status, token_cents, total_cents, hold_expires_at, cancel_reason, unit_released, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			b.ID(), b.UserID(), b.SlotID(), b.Status().String(),
			b.TokenAmount().Cents(), b.TotalAmount().Cents(),
			b.HoldExpiresAt(), b.CancelReason(), b.UnitReleased(), b.CreatedAt(), b.UpdatedAt())
		if err != nil {
			return infra.WrapRepoErr("failed to create booking", err)
		}
		return insertEvent(ctx, tx, evt)
	})
}

func (r *BookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	const query = `
SELECT id, user_id, slot_id, status, token_cents, total_cents, hold_expires_at, cancel_reason, unit_released, created_at, updated_at
FROM bookings
WHERE id = $1`

	var (
		bookingID, userID, slotID uuid.UUID
		status, cancelReason      string
		tokenCents, totalCents    int64
		holdExpiresAt             time.Time
		unitReleased              bool
		createdAt, updatedAt      time.Time
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&bookingID, &userID, &slotID, &status,
		&tokenCents, &totalCents, &holdExpiresAt, &cancelReason, &unitReleased, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrBookingNotFound
		}
		return nil, infra.WrapRepoErr("failed to find booking by ID", err)
	}

	return booking.ReconstructBooking(
		bookingID, userID, slotID, booking.Status(status),
		booking.NewMoney(tokenCents), booking.NewMoney(totalCents),
		holdExpiresAt, cancelReason, unitReleased, createdAt, updatedAt,
	), nil
}

// Update applies a transition only if the stored status still matches
// prevStatus; a lost race surfaces as KindConflict for the coordinator
// to resolve.
func (r *BookingRepository) Update(ctx context.Context, b *booking.Booking, prevStatus booking.Status, evt *outbox.Event) error {
	const stmt = `
UPDATE bookings
SET status = $2, cancel_reason = $3, updated_at = $4
WHERE id = $1 AND status = $5`

	return r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt,
			b.ID(), b.Status().String(), b.CancelReason(), b.UpdatedAt(), prevStatus.String())
		if err != nil {
			return infra.WrapRepoErr("failed to update booking", err)
		}
		if tag.RowsAffected() == 0 {
			return infra.WrapRepoErr("booking status changed concurrently", nil, infra.KindConflict)
		}
		return insertEvent(ctx, tx, evt)
	})
}

// SetUnitReleased flips the release flag only when it currently holds
// the opposite value. Exactly one of any number of concurrent callers
// observes true, so the slot decrement runs once per booking.
func (r *BookingRepository) SetUnitReleased(ctx context.Context, id uuid.UUID, released bool) (bool, error) {
	const stmt = `
UPDATE bookings
SET unit_released = $2
WHERE id = $1 AND unit_released = NOT $2`

	tag, err := r.pool.Exec(ctx, stmt, id, released)
	if err != nil {
		return false, infra.WrapRepoErr("failed to flip unit release flag", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *BookingRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	const query = `
SELECT id
FROM bookings
WHERE status = 'pending' AND hold_expires_at < $1
ORDER BY hold_expires_at
LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to find expired pending bookings", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, infra.WrapRepoErr("failed to scan expired booking id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to iterate expired bookings", err)
	}
	return ids, nil
}

func (r *BookingRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return infra.WrapRepoErr("failed to begin transaction", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			slog.Warn("failed to rollback transaction", "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return infra.WrapRepoErr("failed to commit transaction", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, evt *outbox.Event) error {
	if evt == nil {
		return nil
	}

	const stmt = `
INSERT INTO outbox_events (aggregate_id, event_type, payload, status, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, stmt, evt.AggregateID, evt.Type, evt.Payload, string(evt.Status), evt.CreatedAt)
	if err != nil {
		return infra.WrapRepoErr("failed to insert outbox event", err)
	}
	return nil
}
