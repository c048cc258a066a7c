package request

import (
	"github.com/google/uuid"
)

const (
	PaymentEventSucceeded = "payment.succeeded"
	PaymentEventFailed    = "payment.failed"
	PaymentEventCancelled = "payment.cancelled"
)

// PaymentWebhookRequest is the provider callback body. Deliveries are
// at-least-once, so handlers must treat replays as no-ops.
type PaymentWebhookRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	EventType string    `json:"event_type" binding:"required"`
}

func (r PaymentWebhookRequest) IsKnownEvent() bool {
	switch r.EventType {
	case PaymentEventSucceeded, PaymentEventFailed, PaymentEventCancelled:
		return true
	default:
		return false
	}
}
