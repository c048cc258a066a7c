package slot

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCapacity = errors.New("capacity must be at least 1")
	ErrInvalidWindow   = errors.New("slot start must be before end")
	ErrOverbooked      = errors.New("booked count exceeds capacity")
)

// Slot is a bookable time window with finite capacity. BookedCount and
// Version are mutated only through the SlotStore's atomic operations;
// Version increments on every successful state-changing write.
type Slot struct {
	id          uuid.UUID
	serviceID   uuid.UUID
	startTime   time.Time
	endTime     time.Time
	capacity    int
	bookedCount int
	version     int64
}

func NewSlot(serviceID uuid.UUID, start, end time.Time, capacity int) (*Slot, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if !start.Before(end) {
		return nil, ErrInvalidWindow
	}

	return &Slot{
		id:        uuid.New(),
		serviceID: serviceID,
		startTime: start,
		endTime:   end,
		capacity:  capacity,
		version:   1,
	}, nil
}

func ReconstructSlot(
	id, serviceID uuid.UUID,
	start, end time.Time,
	capacity, bookedCount int,
	version int64,
) (*Slot, error) {
	if bookedCount < 0 || bookedCount > capacity {
		return nil, ErrOverbooked
	}
	return &Slot{
		id:          id,
		serviceID:   serviceID,
		startTime:   start,
		endTime:     end,
		capacity:    capacity,
		bookedCount: bookedCount,
		version:     version,
	}, nil
}

func (s *Slot) Remaining() int {
	return s.capacity - s.bookedCount
}

func (s *Slot) IsFull() bool {
	return s.bookedCount >= s.capacity
}

func (s *Slot) HasStarted(now time.Time) bool {
	return !now.Before(s.startTime)
}

func (s *Slot) ID() uuid.UUID        { return s.id }
func (s *Slot) ServiceID() uuid.UUID { return s.serviceID }
func (s *Slot) StartTime() time.Time { return s.startTime }
func (s *Slot) EndTime() time.Time   { return s.endTime }
func (s *Slot) Capacity() int        { return s.capacity }
func (s *Slot) BookedCount() int     { return s.bookedCount }
func (s *Slot) Version() int64       { return s.version }
