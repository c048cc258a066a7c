//go:build unit

package commands_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salon-booking/internal/domain/booking"
	"salon-booking/internal/domain/slot"
	"salon-booking/internal/infra/lock"
	"salon-booking/internal/infra/repository"
	"salon-booking/internal/infra/slotstore"
	"salon-booking/internal/outbox"
	"salon-booking/internal/pkg/clock"
	"salon-booking/internal/pkg/config"
	"salon-booking/internal/pkg/errs"
	"salon-booking/internal/usecase/commands"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	cmds     commands.ReservationCommands
	slots    *slotstore.MemoryStore
	bookings *repository.MemoryBookingRepository
	clock    *clock.MockClock
	slotID   uuid.UUID
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	clk := clock.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	slots := slotstore.NewMemoryStore()
	bookings := repository.NewMemoryBookingRepository()

	start := clk.Now().Add(24 * time.Hour)
	s, err := slot.NewSlot(uuid.New(), start, start.Add(time.Hour), capacity)
	require.NoError(t, err)
	slots.Seed(s)

	cfg := config.ReservationConfig{
		HoldTTL:          10 * time.Minute,
		LockRetries:      3,
		LockRetryBackoff: time.Millisecond,
	}
	cmds := commands.NewReservationCommands(
		slots,
		lock.NewMemoryManager(clk),
		bookings,
		commands.NewDefaultPriceQuoter(),
		clk,
		cfg,
	)

	return &fixture{
		cmds:     cmds,
		slots:    slots,
		bookings: bookings,
		clock:    clk,
		slotID:   s.ID(),
	}
}

func (f *fixture) bookedCount(t *testing.T) int {
	t.Helper()
	s, err := f.slots.GetSlot(context.Background(), f.slotID)
	require.NoError(t, err)
	return s.BookedCount()
}

// initiate retries through checkout-hold contention the way a client
// would; only a definitive outcome (success or full) is returned.
func (f *fixture) initiate(ctx context.Context, userID uuid.UUID) (*booking.Booking, error) {
	for {
		b, err := f.cmds.InitiateReservation(ctx, userID, f.slotID)
		if errors.Is(err, errs.ErrSlotHeld) {
			continue
		}
		return b, err
	}
}

func TestInitiateReservation_ConcurrentNeverOversells(t *testing.T) {
	const (
		capacity = 3
		clients  = 20
	)
	f := newFixture(t, capacity)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []*booking.Booking
		failures  []error
	)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := f.initiate(ctx, uuid.New())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded = append(succeeded, b)
		}()
	}
	wg.Wait()

	require.Len(t, succeeded, capacity)
	require.Len(t, failures, clients-capacity)
	for _, err := range failures {
		require.ErrorIs(t, err, errs.ErrSlotFull)
	}
	require.Equal(t, capacity, f.bookedCount(t))

	seen := make(map[uuid.UUID]struct{})
	for _, b := range succeeded {
		require.Equal(t, booking.StatusPending, b.Status())
		seen[b.ID()] = struct{}{}
	}
	require.Len(t, seen, capacity)
}

func TestInitiateReservation_CapacityOneDuel(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()

	type outcome struct {
		booking *booking.Booking
		err     error
	}
	results := make(map[uuid.UUID]outcome, 2)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, userID := range []uuid.UUID{alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := f.initiate(ctx, userID)
			mu.Lock()
			results[userID] = outcome{booking: b, err: err}
			mu.Unlock()
		}()
	}
	wg.Wait()

	var winner, loser uuid.UUID
	if results[alice].err == nil {
		winner, loser = alice, bob
	} else {
		winner, loser = bob, alice
	}
	require.NoError(t, results[winner].err)
	require.ErrorIs(t, results[loser].err, errs.ErrSlotFull)
	require.Equal(t, 1, f.bookedCount(t))

	// The winner never pays, so the loser gets the unit back.
	f.clock.Add(10*time.Minute + time.Second)
	_, err := f.cmds.ExpireReservation(ctx, results[winner].booking.ID())
	require.NoError(t, err)

	retry, err := f.initiate(ctx, loser)
	require.NoError(t, err)
	require.Equal(t, loser, retry.UserID())
	require.Equal(t, 1, f.bookedCount(t))
}

func TestInitiateReservation_SlotNotFound(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.cmds.InitiateReservation(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, errs.ErrSlotNotFound)
}

func TestConfirmReservation_Idempotent(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)

	first, err := f.cmds.ConfirmReservation(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, booking.StatusConfirmed, first.Status())

	second, err := f.cmds.ConfirmReservation(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, booking.StatusConfirmed, second.Status())

	// The replay must not emit a second confirmed event.
	var gotTypes []string
	for _, evt := range f.bookings.Events() {
		gotTypes = append(gotTypes, evt.Type)
	}
	wantTypes := []string{outbox.TypeBookingCreated, outbox.TypeBookingConfirmed}
	require.Empty(t, cmp.Diff(wantTypes, gotTypes))
	require.Equal(t, 1, f.bookedCount(t))
}

func TestCancelReservation_PendingReleasesUnit(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, f.bookedCount(t))

	cancelled, err := f.cmds.CancelReservation(ctx, b.ID(), "changed my mind")
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, cancelled.Status())
	require.Equal(t, "changed my mind", cancelled.CancelReason())
	require.Equal(t, 0, f.bookedCount(t))

	// The freed unit is immediately sellable.
	_, err = f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, f.bookedCount(t))
}

func TestCancelReservation_AfterConfirmReleasesUnit(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	_, err = f.cmds.ConfirmReservation(ctx, b.ID())
	require.NoError(t, err)

	cancelled, err := f.cmds.CancelReservation(ctx, b.ID(), "client no-show")
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, cancelled.Status())
	require.Equal(t, 0, f.bookedCount(t))

	_, err = f.initiate(ctx, uuid.New())
	require.NoError(t, err)
}

func TestCancelReservation_DuplicateIsNoOp(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)

	_, err = f.cmds.CancelReservation(ctx, b.ID(), "first")
	require.NoError(t, err)
	require.Equal(t, 0, f.bookedCount(t))

	// The replay must not decrement again.
	cancelled, err := f.cmds.CancelReservation(ctx, b.ID(), "second")
	require.NoError(t, err)
	require.Equal(t, "first", cancelled.CancelReason())
	require.Equal(t, 0, f.bookedCount(t))
}

func TestExpireReservation_ReclaimsUnit(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)

	// Too early: the hold window is still open.
	_, err = f.cmds.ExpireReservation(ctx, b.ID())
	require.ErrorIs(t, err, errs.ErrHoldNotExpired)
	require.Equal(t, 1, f.bookedCount(t))

	f.clock.Add(10*time.Minute + time.Second)

	expired, err := f.cmds.ExpireReservation(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, booking.StatusExpired, expired.Status())
	require.Equal(t, 0, f.bookedCount(t))

	_, err = f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, f.bookedCount(t))
}

func TestExpireReservation_AfterConfirmIsInvalid(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	_, err = f.cmds.ConfirmReservation(ctx, b.ID())
	require.NoError(t, err)

	f.clock.Add(11 * time.Minute)

	_, err = f.cmds.ExpireReservation(ctx, b.ID())
	require.ErrorIs(t, err, errs.ErrInvalidTransition)

	got, err := f.bookings.FindByID(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, booking.StatusConfirmed, got.Status())
	require.Equal(t, 1, f.bookedCount(t))
}

func TestConfirmReservation_AfterCancelIsInvalid(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	_, err = f.cmds.CancelReservation(ctx, b.ID(), "changed my mind")
	require.NoError(t, err)

	// A late payment webhook for a settled booking must map to a
	// matchable sentinel or the provider retries forever.
	_, err = f.cmds.ConfirmReservation(ctx, b.ID())
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestExpireReservation_RacingConfirm(t *testing.T) {
	// A late payment webhook and the sweeper fight over the same
	// Pending booking; exactly one transition wins and the unit count
	// matches the winner.
	for i := 0; i < 20; i++ {
		f := newFixture(t, 1)
		ctx := context.Background()

		b, err := f.initiate(ctx, uuid.New())
		require.NoError(t, err)
		f.clock.Add(11 * time.Minute)

		var wg sync.WaitGroup
		var confirmErr, expireErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, confirmErr = f.cmds.ConfirmReservation(ctx, b.ID())
		}()
		go func() {
			defer wg.Done()
			_, expireErr = f.cmds.ExpireReservation(ctx, b.ID())
		}()
		wg.Wait()

		got, err := f.bookings.FindByID(ctx, b.ID())
		require.NoError(t, err)

		switch got.Status() {
		case booking.StatusConfirmed:
			require.NoError(t, confirmErr)
			require.Error(t, expireErr)
			require.Equal(t, 1, f.bookedCount(t))
		case booking.StatusExpired:
			require.NoError(t, expireErr)
			require.Error(t, confirmErr)
			require.Equal(t, 0, f.bookedCount(t))
		default:
			t.Fatalf("unexpected terminal status %s", got.Status())
		}
	}
}

func TestExpireReservation_ConcurrentSweepersSingleRelease(t *testing.T) {
	const sweepers = 8
	f := newFixture(t, 2)
	ctx := context.Background()

	b, err := f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	_, err = f.initiate(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 2, f.bookedCount(t))

	f.clock.Add(11 * time.Minute)

	// All sweepers expire the same booking; only the winner may
	// decrement the count.
	var wg sync.WaitGroup
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.cmds.ExpireReservation(ctx, b.ID())
		}()
	}
	wg.Wait()

	got, err := f.bookings.FindByID(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, booking.StatusExpired, got.Status())
	require.Equal(t, 1, f.bookedCount(t))
}

// staleOnFirstTry forces one version mismatch to exercise the
// re-read-and-retry path inside initiation.
type staleOnFirstTry struct {
	commands.SlotStore
	mu    sync.Mutex
	tries int
}

func (s *staleOnFirstTry) TryReserve(ctx context.Context, slotID uuid.UUID, expectedVersion int64) (*slot.Slot, error) {
	s.mu.Lock()
	s.tries++
	first := s.tries == 1
	s.mu.Unlock()

	if first {
		return nil, errs.ErrVersionMismatch
	}
	return s.SlotStore.TryReserve(ctx, slotID, expectedVersion)
}

func TestInitiateReservation_RetriesOnceOnVersionMismatch(t *testing.T) {
	f := newFixture(t, 1)
	stale := &staleOnFirstTry{SlotStore: f.slots}

	cmds := commands.NewReservationCommands(
		stale,
		lock.NewMemoryManager(f.clock),
		f.bookings,
		commands.NewDefaultPriceQuoter(),
		f.clock,
		config.ReservationConfig{HoldTTL: 10 * time.Minute, LockRetries: 3, LockRetryBackoff: time.Millisecond},
	)

	b, err := cmds.InitiateReservation(context.Background(), uuid.New(), f.slotID)
	require.NoError(t, err)
	require.Equal(t, booking.StatusPending, b.Status())
	require.Equal(t, 2, stale.tries)
	require.Equal(t, 1, f.bookedCount(t))
}

// failingRelease makes ReleaseReservation fail a fixed number of times
// before delegating, mimicking a store outage between the terminal
// status write and the unit decrement.
type failingRelease struct {
	commands.SlotStore
	mu       sync.Mutex
	failures int
}

func (s *failingRelease) ReleaseReservation(ctx context.Context, slotID uuid.UUID) error {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return errs.New("slot store unavailable")
	}
	return s.SlotStore.ReleaseReservation(ctx, slotID)
}

func TestCancelReservation_ReplayRetriesFailedUnitRelease(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	flaky := &failingRelease{SlotStore: f.slots, failures: 1}
	cmds := commands.NewReservationCommands(
		flaky,
		lock.NewMemoryManager(f.clock),
		f.bookings,
		commands.NewDefaultPriceQuoter(),
		f.clock,
		config.ReservationConfig{HoldTTL: 10 * time.Minute, LockRetries: 3, LockRetryBackoff: time.Millisecond},
	)

	b, err := cmds.InitiateReservation(ctx, uuid.New(), f.slotID)
	require.NoError(t, err)

	// The cancelled status lands but the unit release fails.
	_, err = cmds.CancelReservation(ctx, b.ID(), "changed my mind")
	require.Error(t, err)
	got, err := f.bookings.FindByID(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, got.Status())
	require.Equal(t, 1, f.bookedCount(t))

	// The replay finishes the release instead of no-opping past it.
	replayed, err := cmds.CancelReservation(ctx, b.ID(), "changed my mind")
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, replayed.Status())
	require.Equal(t, 0, f.bookedCount(t))

	// Further replays must not decrement again.
	_, err = cmds.CancelReservation(ctx, b.ID(), "changed my mind")
	require.NoError(t, err)
	require.Equal(t, 0, f.bookedCount(t))

	// The reclaimed unit is sellable.
	_, err = cmds.InitiateReservation(ctx, uuid.New(), f.slotID)
	require.NoError(t, err)
	require.Equal(t, 1, f.bookedCount(t))
}

func TestExpireReservation_ReplayRetriesFailedUnitRelease(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	flaky := &failingRelease{SlotStore: f.slots, failures: 1}
	cmds := commands.NewReservationCommands(
		flaky,
		lock.NewMemoryManager(f.clock),
		f.bookings,
		commands.NewDefaultPriceQuoter(),
		f.clock,
		config.ReservationConfig{HoldTTL: 10 * time.Minute, LockRetries: 3, LockRetryBackoff: time.Millisecond},
	)

	b, err := cmds.InitiateReservation(ctx, uuid.New(), f.slotID)
	require.NoError(t, err)
	f.clock.Add(10*time.Minute + time.Second)

	_, err = cmds.ExpireReservation(ctx, b.ID())
	require.Error(t, err)
	require.Equal(t, 1, f.bookedCount(t))

	replayed, err := cmds.ExpireReservation(ctx, b.ID())
	require.NoError(t, err)
	require.Equal(t, booking.StatusExpired, replayed.Status())
	require.Equal(t, 0, f.bookedCount(t))
}

func TestInitiateReservation_HeldSlotDeniedAfterRetries(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	locks := lock.NewMemoryManager(f.clock)
	cmds := commands.NewReservationCommands(
		f.slots,
		locks,
		f.bookings,
		commands.NewDefaultPriceQuoter(),
		f.clock,
		config.ReservationConfig{HoldTTL: 10 * time.Minute, LockRetries: 2, LockRetryBackoff: time.Millisecond},
	)

	// Another checkout owns the hold and never lets go.
	require.NoError(t, locks.Acquire(ctx, f.slotID, uuid.New(), 10*time.Minute))

	_, err := cmds.InitiateReservation(ctx, uuid.New(), f.slotID)
	require.ErrorIs(t, err, errs.ErrSlotHeld)
	require.Equal(t, 0, f.bookedCount(t))
}
