package errs

import "errors"

// Domain-specific sentinel errors for CQRS usecase layers
var (
	// Slot errors
	ErrSlotNotFound    = errors.New("slot not found")
	ErrSlotFull        = errors.New("slot full")
	ErrSlotHeld        = errors.New("slot currently held by another checkout")
	ErrVersionMismatch = errors.New("slot version mismatch")

	// Booking errors
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrHoldNotExpired    = errors.New("hold has not expired yet")

	// Lock errors
	ErrHoldDenied   = errors.New("hold denied")
	ErrNotHoldOwner = errors.New("not hold owner")

	// Operation errors
	ErrDatabaseOperationFailed = errors.New("database operation failed")
	ErrLockOperationFailed     = errors.New("lock operation failed")
)
