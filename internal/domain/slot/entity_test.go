//go:build unit

package slot_test

import (
	"testing"
	"time"

	"salon-booking/internal/domain/slot"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewSlot(t *testing.T) {
	serviceID := uuid.New()
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	t.Run("valid slot starts empty at version 1", func(t *testing.T) {
		s, err := slot.NewSlot(serviceID, start, end, 3)
		require.NoError(t, err)
		require.Equal(t, 3, s.Capacity())
		require.Equal(t, 0, s.BookedCount())
		require.Equal(t, int64(1), s.Version())
		require.Equal(t, 3, s.Remaining())
		require.False(t, s.IsFull())
	})

	t.Run("capacity must be at least one", func(t *testing.T) {
		_, err := slot.NewSlot(serviceID, start, end, 0)
		require.Error(t, err)
	})

	t.Run("start must precede end", func(t *testing.T) {
		_, err := slot.NewSlot(serviceID, end, start, 1)
		require.Error(t, err)
	})
}

func TestReconstructSlot(t *testing.T) {
	serviceID := uuid.New()
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	t.Run("rejects booked count above capacity", func(t *testing.T) {
		_, err := slot.ReconstructSlot(uuid.New(), serviceID, start, end, 2, 3, 5)
		require.Error(t, err)
	})

	t.Run("full slot", func(t *testing.T) {
		s, err := slot.ReconstructSlot(uuid.New(), serviceID, start, end, 2, 2, 7)
		require.NoError(t, err)
		require.True(t, s.IsFull())
		require.Equal(t, 0, s.Remaining())
	})
}

func TestSlot_HasStarted(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s, err := slot.NewSlot(uuid.New(), start, start.Add(time.Hour), 1)
	require.NoError(t, err)

	require.False(t, s.HasStarted(start.Add(-time.Minute)))
	require.True(t, s.HasStarted(start))
	require.True(t, s.HasStarted(start.Add(time.Minute)))
}
