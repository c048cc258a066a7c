//go:build unit

package booking_test

import (
	"testing"
	"time"

	"salon-booking/internal/domain/booking"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holdTTL = 10 * time.Minute

func newPending(t *testing.T, now time.Time) *booking.Booking {
	t.Helper()
	b, err := booking.NewBooking(uuid.New(), uuid.New(), booking.NewMoney(500), booking.NewMoney(5000), now, holdTTL)
	require.NoError(t, err)
	return b
}

func TestNewBooking(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("starts pending with hold window", func(t *testing.T) {
		b := newPending(t, now)

		assert.NotEqual(t, uuid.Nil, b.ID())
		assert.Equal(t, booking.StatusPending, b.Status())
		assert.Equal(t, now.Add(holdTTL), b.HoldExpiresAt())
		assert.Equal(t, int64(500), b.TokenAmount().Cents())
		assert.Equal(t, int64(5000), b.TotalAmount().Cents())
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := booking.NewBooking(uuid.New(), uuid.New(), booking.NewMoney(-1), booking.NewMoney(100), now, holdTTL)
		assert.ErrorIs(t, err, booking.ErrNegativeAmount)
	})
}

func TestConfirm(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("pending to confirmed", func(t *testing.T) {
		b := newPending(t, now)

		changed, err := b.Confirm(now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, booking.StatusConfirmed, b.Status())
	})

	t.Run("duplicate confirm is a no-op", func(t *testing.T) {
		b := newPending(t, now)

		_, err := b.Confirm(now)
		require.NoError(t, err)

		changed, err := b.Confirm(now.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, booking.StatusConfirmed, b.Status())
	})

	t.Run("confirm from terminal states fails", func(t *testing.T) {
		for _, terminal := range []func(*booking.Booking){
			func(b *booking.Booking) { _, _ = b.Cancel(now, "user") },
			func(b *booking.Booking) { _, _ = b.Expire(now.Add(holdTTL)) },
		} {
			b := newPending(t, now)
			terminal(b)

			_, err := b.Confirm(now.Add(time.Minute))
			assert.ErrorIs(t, err, booking.ErrInvalidTransition)
		}
	})
}

func TestCancel(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("pending to cancelled with reason", func(t *testing.T) {
		b := newPending(t, now)

		changed, err := b.Cancel(now, "payment failed")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, booking.StatusCancelled, b.Status())
		assert.Equal(t, "payment failed", b.CancelReason())
	})

	t.Run("confirmed to cancelled", func(t *testing.T) {
		b := newPending(t, now)
		_, err := b.Confirm(now)
		require.NoError(t, err)

		changed, err := b.Cancel(now.Add(time.Hour), "user request")
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("duplicate cancel is a no-op", func(t *testing.T) {
		b := newPending(t, now)
		_, err := b.Cancel(now, "first")
		require.NoError(t, err)

		changed, err := b.Cancel(now, "second")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "first", b.CancelReason())
	})

	t.Run("cancel after completion fails", func(t *testing.T) {
		b := newPending(t, now)
		_, err := b.Confirm(now)
		require.NoError(t, err)
		_, err = b.Complete(now)
		require.NoError(t, err)

		_, err = b.Cancel(now, "too late")
		assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	})
}

func TestExpire(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("pending expires after hold window", func(t *testing.T) {
		b := newPending(t, now)

		changed, err := b.Expire(now.Add(holdTTL))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, booking.StatusExpired, b.Status())
	})

	t.Run("expire before hold window elapses fails", func(t *testing.T) {
		b := newPending(t, now)

		_, err := b.Expire(now.Add(holdTTL - time.Second))
		assert.ErrorIs(t, err, booking.ErrHoldNotExpired)
		assert.Equal(t, booking.StatusPending, b.Status())
	})

	t.Run("duplicate expire is a no-op", func(t *testing.T) {
		b := newPending(t, now)
		_, err := b.Expire(now.Add(holdTTL))
		require.NoError(t, err)

		changed, err := b.Expire(now.Add(holdTTL + time.Minute))
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("expire on confirmed booking fails", func(t *testing.T) {
		b := newPending(t, now)
		_, err := b.Confirm(now)
		require.NoError(t, err)

		_, err = b.Expire(now.Add(holdTTL))
		assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	})
}

func TestComplete(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("confirmed to completed", func(t *testing.T) {
		b := newPending(t, now)
		_, err := b.Confirm(now)
		require.NoError(t, err)

		changed, err := b.Complete(now.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, booking.StatusCompleted, b.Status())
	})

	t.Run("complete from pending fails", func(t *testing.T) {
		b := newPending(t, now)

		_, err := b.Complete(now)
		assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	})
}

func TestStatus(t *testing.T) {
	t.Run("terminal states", func(t *testing.T) {
		assert.False(t, booking.StatusPending.IsTerminal())
		assert.False(t, booking.StatusConfirmed.IsTerminal())
		assert.True(t, booking.StatusCancelled.IsTerminal())
		assert.True(t, booking.StatusExpired.IsTerminal())
		assert.True(t, booking.StatusCompleted.IsTerminal())
	})

	t.Run("validity", func(t *testing.T) {
		assert.True(t, booking.StatusPending.IsValid())
		assert.False(t, booking.Status("unknown").IsValid())
	})
}
