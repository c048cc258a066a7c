package api

import (
	"errors"
	"net/http"

	reqdto "salon-booking/internal/handler/dto/request"
	resdto "salon-booking/internal/handler/dto/response"
	"salon-booking/internal/pkg/errs"
	"salon-booking/internal/usecase/commands"

	"github.com/gin-gonic/gin"
)

// PaymentHandler settles pending bookings from provider callbacks.
// The provider retries until it sees 2xx, so every outcome that is
// already applied must answer success.
type PaymentHandler struct {
	commands commands.ReservationCommands
}

func NewPaymentHandler(cmds commands.ReservationCommands) *PaymentHandler {
	return &PaymentHandler{commands: cmds}
}

func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	var req reqdto.PaymentWebhookRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return
	}
	if !req.IsKnownEvent() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown event type",
		})
		return
	}

	var err error
	switch req.EventType {
	case reqdto.PaymentEventSucceeded:
		booking, confirmErr := h.commands.ConfirmReservation(c.Request.Context(), req.BookingID)
		if confirmErr == nil {
			c.JSON(http.StatusOK, resdto.FromBookingEntity(booking))
			return
		}
		err = confirmErr
	case reqdto.PaymentEventFailed, reqdto.PaymentEventCancelled:
		booking, cancelErr := h.commands.CancelReservation(c.Request.Context(), req.BookingID, "payment "+req.EventType)
		if cancelErr == nil {
			c.JSON(http.StatusOK, resdto.FromBookingEntity(booking))
			return
		}
		err = cancelErr
	}

	switch {
	case errors.Is(err, errs.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Booking not found",
		})
	case errors.Is(err, errs.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Booking already settled in a conflicting state",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}
