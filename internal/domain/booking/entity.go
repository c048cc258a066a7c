package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrHoldNotExpired    = errors.New("hold has not expired yet")
	ErrNegativeAmount    = errors.New("amount cannot be negative")
)

// Booking drives the reserve -> pay -> confirm lifecycle. Transitions are
// monotonic: terminal states (Cancelled, Expired, Completed) are never left,
// and repeated confirm/cancel/expire signals are absorbed as no-ops so that
// at-least-once webhook delivery cannot corrupt state. Bookings are never
// deleted, only transitioned.
type Booking struct {
	id            uuid.UUID
	userID        uuid.UUID
	slotID        uuid.UUID
	status        Status
	tokenAmount   Money
	totalAmount   Money
	holdExpiresAt time.Time
	cancelReason  string
	unitReleased  bool
	createdAt     time.Time
	updatedAt     time.Time
}

func NewBooking(userID, slotID uuid.UUID, tokenAmount, totalAmount Money, now time.Time, holdTTL time.Duration) (*Booking, error) {
	if tokenAmount.Cents() < 0 || totalAmount.Cents() < 0 {
		return nil, ErrNegativeAmount
	}

	return &Booking{
		id:            uuid.New(),
		userID:        userID,
		slotID:        slotID,
		status:        StatusPending,
		tokenAmount:   tokenAmount,
		totalAmount:   totalAmount,
		holdExpiresAt: now.Add(holdTTL),
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

func ReconstructBooking(
	id, userID, slotID uuid.UUID,
	status Status,
	tokenAmount, totalAmount Money,
	holdExpiresAt time.Time,
	cancelReason string,
	unitReleased bool,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:            id,
		userID:        userID,
		slotID:        slotID,
		status:        status,
		tokenAmount:   tokenAmount,
		totalAmount:   totalAmount,
		holdExpiresAt: holdExpiresAt,
		cancelReason:  cancelReason,
		unitReleased:  unitReleased,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// Confirm moves a Pending booking to Confirmed. Confirming an already
// Confirmed booking reports changed=false with no error: payment webhooks
// are delivered at least once and duplicates must not fail.
func (b *Booking) Confirm(now time.Time) (bool, error) {
	switch b.status {
	case StatusConfirmed:
		return false, nil
	case StatusPending:
		b.status = StatusConfirmed
		b.updatedAt = now
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

// Cancel is valid from Pending and Confirmed. Cancelling an already
// Cancelled booking is a no-op. The token amount is not reclaimed on
// post-confirmation cancellation; only the slot unit is released.
func (b *Booking) Cancel(now time.Time, reason string) (bool, error) {
	switch b.status {
	case StatusCancelled:
		return false, nil
	case StatusPending, StatusConfirmed:
		b.status = StatusCancelled
		b.cancelReason = reason
		b.updatedAt = now
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

// Expire moves a Pending booking whose hold window has elapsed to Expired.
// Duplicate sweeps observe changed=false.
func (b *Booking) Expire(now time.Time) (bool, error) {
	switch b.status {
	case StatusExpired:
		return false, nil
	case StatusPending:
		if now.Before(b.holdExpiresAt) {
			return false, ErrHoldNotExpired
		}
		b.status = StatusExpired
		b.updatedAt = now
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

// Complete marks a Confirmed booking as fulfilled (service rendered).
func (b *Booking) Complete(now time.Time) (bool, error) {
	switch b.status {
	case StatusCompleted:
		return false, nil
	case StatusConfirmed:
		b.status = StatusCompleted
		b.updatedAt = now
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

func (b *Booking) IsPending() bool {
	return b.status == StatusPending
}

func (b *Booking) HoldElapsed(now time.Time) bool {
	return !now.Before(b.holdExpiresAt)
}

func (b *Booking) ID() uuid.UUID            { return b.id }
func (b *Booking) UserID() uuid.UUID        { return b.userID }
func (b *Booking) SlotID() uuid.UUID        { return b.slotID }
func (b *Booking) Status() Status           { return b.status }
func (b *Booking) TokenAmount() Money       { return b.tokenAmount }
func (b *Booking) TotalAmount() Money       { return b.totalAmount }
func (b *Booking) HoldExpiresAt() time.Time { return b.holdExpiresAt }
func (b *Booking) CancelReason() string     { return b.cancelReason }
func (b *Booking) UnitReleased() bool       { return b.unitReleased }
func (b *Booking) CreatedAt() time.Time     { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time     { return b.updatedAt }
