package commands

import (
	"context"
	"time"

	"salon-booking/internal/domain/booking"
	"salon-booking/internal/domain/slot"
	"salon-booking/internal/outbox"

	"github.com/google/uuid"
)

// SlotStore is the single source of truth for slot capacity accounting.
// Both mutating operations must be single atomic primitives against the
// backing store; no other code path writes bookedCount or version.
type SlotStore interface {
	GetSlot(ctx context.Context, slotID uuid.UUID) (*slot.Slot, error)
	// TryReserve atomically increments bookedCount and version iff
	// bookedCount < capacity and the stored version equals
	// expectedVersion. Returns the fresh snapshot on success,
	// errs.ErrSlotFull or errs.ErrVersionMismatch otherwise.
	TryReserve(ctx context.Context, slotID uuid.UUID, expectedVersion int64) (*slot.Slot, error)
	// ReleaseReservation atomically decrements bookedCount (floor 0)
	// and bumps version.
	ReleaseReservation(ctx context.Context, slotID uuid.UUID) error
}

// LockManager grants a single holder a time-bounded exclusive hold on a
// slot. Holds expire on their own once the TTL elapses.
type LockManager interface {
	// Acquire sets the hold iff no live hold exists; returns
	// errs.ErrHoldDenied when another holder owns a live hold.
	Acquire(ctx context.Context, slotID, holderID uuid.UUID, ttl time.Duration) error
	// Release removes the hold only if owned by holderID; releasing a
	// hold owned by someone else returns errs.ErrNotHoldOwner.
	Release(ctx context.Context, slotID, holderID uuid.UUID) error
	// Renew extends an owned hold; fails with errs.ErrNotHoldOwner if
	// the hold expired or changed hands.
	Renew(ctx context.Context, slotID, holderID uuid.UUID, ttl time.Duration) error
}

// BookingRepository persists bookings together with their outbox events.
// Update compares against prevStatus so that two coordinators racing on
// the same transition cannot both apply it (the loser observes
// infra.KindConflict).
type BookingRepository interface {
	Create(ctx context.Context, b *booking.Booking, evt *outbox.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	Update(ctx context.Context, b *booking.Booking, prevStatus booking.Status, evt *outbox.Event) error
	// SetUnitReleased flips the unit release flag iff it currently
	// holds the opposite value; reports whether this caller won the
	// flip. The flag records that the slot unit of a terminal booking
	// has been handed back, so a replayed cancel or a racing sweeper
	// releases at most once.
	SetUnitReleased(ctx context.Context, id uuid.UUID, released bool) (bool, error)
	// FindExpiredPending returns ids of Pending bookings whose hold
	// window elapsed before now, oldest first.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Quote is the deposit and full price for one slot unit of a service.
type Quote struct {
	TokenAmount booking.Money
	TotalAmount booking.Money
}

type PriceQuoter interface {
	QuoteSlot(serviceID uuid.UUID) Quote
}

// DefaultPriceQuoter charges a flat token deposit against a flat service
// price. A real catalog lookup belongs to the out-of-scope service CRUD.
type DefaultPriceQuoter struct {
	TokenCents int64
	TotalCents int64
}

func NewDefaultPriceQuoter() *DefaultPriceQuoter {
	return &DefaultPriceQuoter{
		TokenCents: 500,
		TotalCents: 5000,
	}
}

func (q *DefaultPriceQuoter) QuoteSlot(_ uuid.UUID) Quote {
	return Quote{
		TokenAmount: booking.NewMoney(q.TokenCents),
		TotalAmount: booking.NewMoney(q.TotalCents),
	}
}
