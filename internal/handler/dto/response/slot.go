package response

import (
	"time"

	"salon-booking/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type SlotAvailabilityResponse struct {
	ID          uuid.UUID `json:"id"`
	ServiceID   uuid.UUID `json:"serviceId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"bookedCount"`
	Remaining   int       `json:"remaining"`
}

func FromSlotAvailabilityView(rm *queries.SlotAvailabilityView) *SlotAvailabilityResponse {
	var resp SlotAvailabilityResponse
	_ = copier.Copy(&resp, rm)
	return &resp
}
