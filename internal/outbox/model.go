package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Event is a booking lifecycle event written in the same transaction as
// the state change it describes, then relayed to the broker.
type Event struct {
	ID          int64
	AggregateID uuid.UUID
	Type        string
	Payload     []byte
	CreatedAt   time.Time
	Status      Status
	RetryCount  int
	LastError   *string
}

const (
	TypeBookingCreated   = "booking.created"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingExpired   = "booking.expired"
)

func NewEvent(bookingID uuid.UUID, eventType string, payload any, now time.Time) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		AggregateID: bookingID,
		Type:        eventType,
		Payload:     body,
		CreatedAt:   now,
		Status:      StatusPending,
	}, nil
}
