package slotstore

import (
	"context"
	"sync"
	"time"

	"salon-booking/internal/domain/slot"
	"salon-booking/internal/pkg/errs"

	"github.com/google/uuid"
)

type record struct {
	serviceID   uuid.UUID
	startTime   time.Time
	endTime     time.Time
	capacity    int
	bookedCount int
	version     int64
}

// MemoryStore keeps slot records behind one mutex so that TryReserve and
// ReleaseReservation are single atomic operations, honoring the same
// contract as the Postgres store. DI substitute for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[uuid.UUID]*record),
	}
}

// Seed registers a slot; intended for tests and fixtures.
func (m *MemoryStore) Seed(s *slot.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[s.ID()] = &record{
		serviceID:   s.ServiceID(),
		startTime:   s.StartTime(),
		endTime:     s.EndTime(),
		capacity:    s.Capacity(),
		bookedCount: s.BookedCount(),
		version:     s.Version(),
	}
}

func (m *MemoryStore) GetSlot(_ context.Context, slotID uuid.UUID) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.slots[slotID]
	if !ok {
		return nil, errs.ErrSlotNotFound
	}
	return rec.snapshot(slotID)
}

func (m *MemoryStore) TryReserve(_ context.Context, slotID uuid.UUID, expectedVersion int64) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.slots[slotID]
	if !ok {
		return nil, errs.ErrSlotNotFound
	}
	if rec.bookedCount >= rec.capacity {
		return nil, errs.ErrSlotFull
	}
	if rec.version != expectedVersion {
		return nil, errs.ErrVersionMismatch
	}

	rec.bookedCount++
	rec.version++
	return rec.snapshot(slotID)
}

func (m *MemoryStore) ReleaseReservation(_ context.Context, slotID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.slots[slotID]
	if !ok {
		return errs.ErrSlotNotFound
	}
	if rec.bookedCount > 0 {
		rec.bookedCount--
	}
	rec.version++
	return nil
}

func (r *record) snapshot(id uuid.UUID) (*slot.Slot, error) {
	return slot.ReconstructSlot(id, r.serviceID, r.startTime, r.endTime, r.capacity, r.bookedCount, r.version)
}
