package lock

import (
	"context"
	"sync"
	"time"

	"salon-booking/internal/pkg/clock"
	"salon-booking/internal/pkg/errs"

	"github.com/google/uuid"
)

type hold struct {
	holderID  uuid.UUID
	expiresAt time.Time
}

// MemoryManager is the in-process LockManager: one mutex makes each
// check-and-set atomic, and expiry is lazy — a dead hold is overwritten
// by the next Acquire rather than collected by a janitor.
type MemoryManager struct {
	mu    sync.Mutex
	holds map[uuid.UUID]hold
	clock clock.Clock
}

func NewMemoryManager(clk clock.Clock) *MemoryManager {
	return &MemoryManager{
		holds: make(map[uuid.UUID]hold),
		clock: clk,
	}
}

func (m *MemoryManager) Acquire(_ context.Context, slotID, holderID uuid.UUID, ttl time.Duration) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.holds[slotID]; ok && now.Before(h.expiresAt) && h.holderID != holderID {
		return errs.ErrHoldDenied
	}

	m.holds[slotID] = hold{holderID: holderID, expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryManager) Release(_ context.Context, slotID, holderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[slotID]
	if !ok || h.holderID != holderID || !m.clock.Now().Before(h.expiresAt) {
		return errs.ErrNotHoldOwner
	}

	delete(m.holds, slotID)
	return nil
}

func (m *MemoryManager) Renew(_ context.Context, slotID, holderID uuid.UUID, ttl time.Duration) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[slotID]
	if !ok || h.holderID != holderID || !now.Before(h.expiresAt) {
		return errs.ErrNotHoldOwner
	}

	m.holds[slotID] = hold{holderID: holderID, expiresAt: now.Add(ttl)}
	return nil
}

// Holder reports the live holder of a slot, if any. Test helper.
func (m *MemoryManager) Holder(slotID uuid.UUID) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[slotID]
	if !ok || !m.clock.Now().Before(h.expiresAt) {
		return uuid.Nil, false
	}
	return h.holderID, true
}
