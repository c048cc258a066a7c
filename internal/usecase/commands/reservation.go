package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"salon-booking/internal/domain/booking"
	"salon-booking/internal/infra"
	"salon-booking/internal/outbox"
	"salon-booking/internal/pkg/clock"
	"salon-booking/internal/pkg/config"
	"salon-booking/internal/pkg/errs"

	"github.com/google/uuid"
)

// ReservationCommands is the write side of the reservation workflow: it
// coordinates SlotStore, LockManager and the booking state machine so
// that a slot is never oversold and a confirmed booking is never
// double-counted.
type ReservationCommands interface {
	InitiateReservation(ctx context.Context, userID, slotID uuid.UUID) (*booking.Booking, error)
	ConfirmReservation(ctx context.Context, bookingID uuid.UUID) (*booking.Booking, error)
	CancelReservation(ctx context.Context, bookingID uuid.UUID, reason string) (*booking.Booking, error)
	ExpireReservation(ctx context.Context, bookingID uuid.UUID) (*booking.Booking, error)
}

type reservationCommandsImpl struct {
	slots    SlotStore
	locks    LockManager
	bookings BookingRepository
	quoter   PriceQuoter
	clock    clock.Clock

	holdTTL     time.Duration
	lockRetries int
	lockBackoff time.Duration
}

func NewReservationCommands(
	slots SlotStore,
	locks LockManager,
	bookings BookingRepository,
	quoter PriceQuoter,
	clk clock.Clock,
	cfg config.ReservationConfig,
) ReservationCommands {
	return &reservationCommandsImpl{
		slots:       slots,
		locks:       locks,
		bookings:    bookings,
		quoter:      quoter,
		clock:       clk,
		holdTTL:     cfg.HoldTTL,
		lockRetries: cfg.LockRetries,
		lockBackoff: cfg.LockRetryBackoff,
	}
}

// InitiateReservation claims exactly one unit of the slot and creates a
// Pending booking. The capacity unit is counted here, at hold time, not
// at payment time: payment confirmation can lag by minutes and the unit
// must not be sellable twice in the meantime. The exclusive hold guards
// only the read-version/compare-and-swap critical section; it is
// released as soon as the booking row is durable, with its TTL as the
// backstop for a coordinator that dies mid-checkout.
func (r *reservationCommandsImpl) InitiateReservation(ctx context.Context, userID, slotID uuid.UUID) (*booking.Booking, error) {
	s, err := r.slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if s.IsFull() {
		return nil, errs.ErrSlotFull
	}

	quote := r.quoter.QuoteSlot(s.ServiceID())
	b, err := booking.NewBooking(userID, slotID, quote.TokenAmount, quote.TotalAmount, r.clock.Now(), r.holdTTL)
	if err != nil {
		return nil, err
	}

	// The pending booking id is the hold's holder identity, so later
	// confirm/cancel/expire can release an abandoned hold.
	if err := r.acquireHold(ctx, slotID, b.ID()); err != nil {
		return nil, err
	}
	defer func() {
		if relErr := r.locks.Release(ctx, slotID, b.ID()); relErr != nil && !errors.Is(relErr, errs.ErrNotHoldOwner) {
			slog.Warn("failed to release checkout hold", "slot_id", slotID, "error", relErr)
		}
	}()

	if _, err := r.reserveUnit(ctx, slotID); err != nil {
		return nil, err
	}

	evt, err := newBookingEvent(b, outbox.TypeBookingCreated, r.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := r.bookings.Create(ctx, b, evt); err != nil {
		// The unit was already counted; give it back or the slot
		// leaks capacity with no booking attached.
		if relErr := r.slots.ReleaseReservation(ctx, slotID); relErr != nil {
			slog.Error("failed to release reserved unit after create failure", "slot_id", slotID, "error", relErr)
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	return b, nil
}

// ConfirmReservation finalizes payment. Idempotent: a duplicate webhook
// for an already Confirmed booking succeeds without side effects. The
// slot unit was counted at reservation time, so no SlotStore mutation
// happens here.
func (r *reservationCommandsImpl) ConfirmReservation(ctx context.Context, bookingID uuid.UUID) (*booking.Booking, error) {
	b, err := r.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	changed, err := b.Confirm(r.clock.Now())
	if err != nil {
		return nil, errs.ErrInvalidTransition
	}
	if !changed {
		return b, nil
	}

	evt, err := newBookingEvent(b, outbox.TypeBookingConfirmed, r.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := r.bookings.Update(ctx, b, booking.StatusPending, evt); err != nil {
		if infra.IsKind(err, infra.KindConflict) {
			return r.resolveLostRace(ctx, bookingID, booking.StatusConfirmed)
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	r.releaseHold(ctx, b)
	return b, nil
}

// CancelReservation releases the counted unit and any live hold. Valid
// from Pending (payment failed, user abandoned) and from Confirmed (the
// token amount stays charged; only the slot unit is resold). A second
// cancel is a no-op.
func (r *reservationCommandsImpl) CancelReservation(ctx context.Context, bookingID uuid.UUID, reason string) (*booking.Booking, error) {
	b, err := r.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	prev := b.Status()
	changed, err := b.Cancel(r.clock.Now(), reason)
	if err != nil {
		return nil, errs.ErrInvalidTransition
	}
	if !changed {
		// Replay. An earlier cancel may have died between the status
		// write and the unit release; finish the release now.
		if err := r.releaseUnit(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	evt, err := newBookingEvent(b, outbox.TypeBookingCancelled, r.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := r.bookings.Update(ctx, b, prev, evt); err != nil {
		if infra.IsKind(err, infra.KindConflict) {
			resolved, raceErr := r.resolveLostRace(ctx, bookingID, booking.StatusCancelled)
			if raceErr != nil {
				return nil, raceErr
			}
			if err := r.releaseUnit(ctx, resolved); err != nil {
				return nil, err
			}
			return resolved, nil
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	if err := r.releaseUnit(ctx, b); err != nil {
		return nil, err
	}

	r.releaseHold(ctx, b)
	return b, nil
}

// ExpireReservation reclaims an abandoned Pending booking. Invoked by the
// sweeper; duplicate invocations (or concurrent sweeper instances) are
// no-ops past the first, guarded by the state machine and the
// compare-on-update.
func (r *reservationCommandsImpl) ExpireReservation(ctx context.Context, bookingID uuid.UUID) (*booking.Booking, error) {
	b, err := r.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	changed, err := b.Expire(r.clock.Now())
	if err != nil {
		if errors.Is(err, booking.ErrHoldNotExpired) {
			return nil, errs.ErrHoldNotExpired
		}
		return nil, errs.ErrInvalidTransition
	}
	if !changed {
		if err := r.releaseUnit(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	evt, err := newBookingEvent(b, outbox.TypeBookingExpired, r.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := r.bookings.Update(ctx, b, booking.StatusPending, evt); err != nil {
		if infra.IsKind(err, infra.KindConflict) {
			// Another sweeper or a webhook got there first. If it
			// expired the booking too, make sure the release landed.
			resolved, raceErr := r.resolveLostRace(ctx, bookingID, booking.StatusExpired)
			if raceErr != nil {
				return nil, raceErr
			}
			if err := r.releaseUnit(ctx, resolved); err != nil {
				return nil, err
			}
			return resolved, nil
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	if err := r.releaseUnit(ctx, b); err != nil {
		return nil, err
	}

	r.releaseHold(ctx, b)
	return b, nil
}

// acquireHold retries briefly on contention, then surfaces ErrSlotHeld.
// It never blocks past lockRetries*lockBackoff.
func (r *reservationCommandsImpl) acquireHold(ctx context.Context, slotID, holderID uuid.UUID) error {
	var err error
	for attempt := 0; attempt <= r.lockRetries; attempt++ {
		err = r.locks.Acquire(ctx, slotID, holderID, r.holdTTL)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrHoldDenied) {
			return errs.Mark(err, errs.ErrLockOperationFailed)
		}
		if attempt == r.lockRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.lockBackoff):
		}
	}
	return errs.ErrSlotHeld
}

// releaseUnit hands the slot unit of a terminal booking back exactly
// once: the flag flip is a compare-and-set, so of any number of
// replayed cancels and racing sweepers a single caller decrements. A
// failed decrement reverts the claim so a later replay can retry.
func (r *reservationCommandsImpl) releaseUnit(ctx context.Context, b *booking.Booking) error {
	claimed, err := r.bookings.SetUnitReleased(ctx, b.ID(), true)
	if err != nil {
		return errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	if !claimed {
		return nil
	}

	if err := r.slots.ReleaseReservation(ctx, b.SlotID()); err != nil {
		slog.Error("booking settled but unit release failed", "booking_id", b.ID(), "slot_id", b.SlotID(), "error", err)
		if _, revertErr := r.bookings.SetUnitReleased(ctx, b.ID(), false); revertErr != nil {
			slog.Error("failed to revert unit release claim, unit stays counted", "booking_id", b.ID(), "error", revertErr)
		}
		return errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	return nil
}

// reserveUnit runs the compare-and-increment, re-reading and retrying
// once on a concurrent version bump.
func (r *reservationCommandsImpl) reserveUnit(ctx context.Context, slotID uuid.UUID) (version int64, err error) {
	s, err := r.slots.GetSlot(ctx, slotID)
	if err != nil {
		return 0, err
	}
	if s.IsFull() {
		return 0, errs.ErrSlotFull
	}

	snap, err := r.slots.TryReserve(ctx, slotID, s.Version())
	if err == nil {
		return snap.Version(), nil
	}
	if !errors.Is(err, errs.ErrVersionMismatch) {
		return 0, err
	}

	// A cancel/expire release can bump the version between read and
	// swap even while we hold the checkout lock; one fresh attempt.
	s, err = r.slots.GetSlot(ctx, slotID)
	if err != nil {
		return 0, err
	}
	if s.IsFull() {
		return 0, errs.ErrSlotFull
	}
	snap, err = r.slots.TryReserve(ctx, slotID, s.Version())
	if err != nil {
		return 0, err
	}
	return snap.Version(), nil
}

// resolveLostRace reloads a booking after a compare-on-update conflict.
// If the other writer applied the same transition the call succeeds
// idempotently; otherwise the transition was genuinely invalid.
func (r *reservationCommandsImpl) resolveLostRace(ctx context.Context, bookingID uuid.UUID, want booking.Status) (*booking.Booking, error) {
	b, err := r.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status() == want {
		return b, nil
	}
	return nil, errs.Wrap(errs.ErrInvalidTransition, "booking moved to "+b.Status().String()+" concurrently")
}

func (r *reservationCommandsImpl) releaseHold(ctx context.Context, b *booking.Booking) {
	// Normally released at the end of initiation; this reclaims holds
	// abandoned by a crash inside the checkout critical section.
	if err := r.locks.Release(ctx, b.SlotID(), b.ID()); err != nil && !errors.Is(err, errs.ErrNotHoldOwner) {
		slog.Warn("failed to release hold", "booking_id", b.ID(), "error", err)
	}
}

type bookingEventPayload struct {
	BookingID     uuid.UUID `json:"booking_id"`
	UserID        uuid.UUID `json:"user_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	Status        string    `json:"status"`
	TokenCents    int64     `json:"token_cents"`
	TotalCents    int64     `json:"total_cents"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
}

func newBookingEvent(b *booking.Booking, eventType string, now time.Time) (*outbox.Event, error) {
	return outbox.NewEvent(b.ID(), eventType, bookingEventPayload{
		BookingID:     b.ID(),
		UserID:        b.UserID(),
		SlotID:        b.SlotID(),
		Status:        b.Status().String(),
		TokenCents:    b.TokenAmount().Cents(),
		TotalCents:    b.TotalAmount().Cents(),
		HoldExpiresAt: b.HoldExpiresAt(),
		CancelReason:  b.CancelReason(),
	}, now)
}
