package response

import (
	"time"

	"salon-booking/internal/domain/booking"
	"salon-booking/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type BookingResponse struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	SlotID        uuid.UUID `json:"slotId"`
	ServiceID     uuid.UUID `json:"serviceId,omitempty"`
	SlotStart     time.Time `json:"slotStart,omitempty"`
	SlotEnd       time.Time `json:"slotEnd,omitempty"`
	Status        string    `json:"status"`
	TokenCents    int64     `json:"tokenCents"`
	TotalCents    int64     `json:"totalCents"`
	HoldExpiresAt time.Time `json:"holdExpiresAt"`
	CancelReason  *string   `json:"cancelReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type BookingListResponse struct {
	ID         uuid.UUID `json:"id"`
	SlotID     uuid.UUID `json:"slotId"`
	SlotStart  time.Time `json:"slotStart"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"totalCents"`
	CreatedAt  time.Time `json:"createdAt"`
}

func FromBookingView(rm *queries.BookingView) *BookingResponse {
	var resp BookingResponse
	_ = copier.Copy(&resp, rm)
	return &resp
}

func FromBookingListItems(rms []*queries.BookingListItem) []*BookingListResponse {
	out := make([]*BookingListResponse, 0, len(rms))
	for _, rm := range rms {
		var resp BookingListResponse
		_ = copier.Copy(&resp, rm)
		out = append(out, &resp)
	}
	return out
}

// FromBookingEntity renders a booking straight off the write model,
// used right after a command when no read-side join is needed.
func FromBookingEntity(b *booking.Booking) *BookingResponse {
	resp := &BookingResponse{
		ID:            b.ID(),
		UserID:        b.UserID(),
		SlotID:        b.SlotID(),
		Status:        b.Status().String(),
		TokenCents:    b.TokenAmount().Cents(),
		TotalCents:    b.TotalAmount().Cents(),
		HoldExpiresAt: b.HoldExpiresAt(),
		CreatedAt:     b.CreatedAt(),
		UpdatedAt:     b.UpdatedAt(),
	}
	if reason := b.CancelReason(); reason != "" {
		resp.CancelReason = &reason
	}
	return resp
}
