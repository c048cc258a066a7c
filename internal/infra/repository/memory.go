package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"salon-booking/internal/domain/booking"
	"salon-booking/internal/infra"
	"salon-booking/internal/outbox"
	"salon-booking/internal/pkg/errs"

	"github.com/google/uuid"
)

// MemoryBookingRepository is a mutex-guarded substitute for the Postgres
// repository. It keeps the same compare-on-previous-status contract so
// race resolution behaves identically under test.
type MemoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*booking.Booking
	events   []outbox.Event
	nextID   int64
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[uuid.UUID]*booking.Booking),
		nextID:   1,
	}
}

func (r *MemoryBookingRepository) Create(_ context.Context, b *booking.Booking, evt *outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[b.ID()]; ok {
		return infra.WrapRepoErr("booking already exists", nil, infra.KindDuplicateKey)
	}
	r.bookings[b.ID()] = snapshot(b)
	r.appendEvent(evt)
	return nil
}

func (r *MemoryBookingRepository) FindByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, errs.ErrBookingNotFound
	}
	return snapshot(b), nil
}

func (r *MemoryBookingRepository) Update(_ context.Context, b *booking.Booking, prevStatus booking.Status, evt *outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[b.ID()]
	if !ok {
		return errs.ErrBookingNotFound
	}
	if stored.Status() != prevStatus {
		return infra.WrapRepoErr("booking status changed concurrently", nil, infra.KindConflict)
	}
	r.bookings[b.ID()] = snapshot(b)
	r.appendEvent(evt)
	return nil
}

func (r *MemoryBookingRepository) SetUnitReleased(_ context.Context, id uuid.UUID, released bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[id]
	if !ok || stored.UnitReleased() == released {
		return false, nil
	}
	r.bookings[id] = booking.ReconstructBooking(
		stored.ID(), stored.UserID(), stored.SlotID(), stored.Status(),
		stored.TokenAmount(), stored.TotalAmount(),
		stored.HoldExpiresAt(), stored.CancelReason(), released, stored.CreatedAt(), stored.UpdatedAt(),
	)
	return true, nil
}

func (r *MemoryBookingRepository) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type expired struct {
		id uuid.UUID
		at time.Time
	}
	var found []expired
	for id, b := range r.bookings {
		if b.Status() == booking.StatusPending && b.HoldExpiresAt().Before(now) {
			found = append(found, expired{id: id, at: b.HoldExpiresAt()})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })

	if len(found) > limit {
		found = found[:limit]
	}
	ids := make([]uuid.UUID, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.id)
	}
	return ids, nil
}

// Events returns a copy of everything appended so far, for assertions.
func (r *MemoryBookingRepository) Events() []outbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]outbox.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryBookingRepository) appendEvent(evt *outbox.Event) {
	if evt == nil {
		return
	}
	stored := *evt
	stored.ID = r.nextID
	r.nextID++
	r.events = append(r.events, stored)
}

func snapshot(b *booking.Booking) *booking.Booking {
	return booking.ReconstructBooking(
		b.ID(), b.UserID(), b.SlotID(), b.Status(),
		b.TokenAmount(), b.TotalAmount(),
		b.HoldExpiresAt(), b.CancelReason(), b.UnitReleased(), b.CreatedAt(), b.UpdatedAt(),
	)
}
