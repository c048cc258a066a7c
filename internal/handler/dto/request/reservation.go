package request

import (
	"strings"

	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	SlotID uuid.UUID `json:"slot_id" binding:"required"`
}

type CancelBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func (r CancelBookingRequest) GetReason() string {
	if r.Reason == nil {
		return "cancelled by user"
	}
	trimmed := strings.TrimSpace(*r.Reason)
	if trimmed == "" {
		return "cancelled by user"
	}
	return trimmed
}
