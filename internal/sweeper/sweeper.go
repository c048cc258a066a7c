package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"salon-booking/internal/pkg/clock"
	"salon-booking/internal/pkg/config"
	"salon-booking/internal/pkg/errs"
	"salon-booking/internal/usecase/commands"

	"github.com/google/uuid"
)

// ExpiredFinder lists Pending bookings whose hold deadline has passed.
type ExpiredFinder interface {
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Sweeper periodically reclaims slot capacity from bookings that were
// initiated but never confirmed. Each expiry goes through the command
// layer, so a sweep racing a late confirmation loses cleanly.
type Sweeper struct {
	log      *slog.Logger
	finder   ExpiredFinder
	cmds     commands.ReservationCommands
	clock    clock.Clock
	interval time.Duration
	batch    int
}

func New(log *slog.Logger, finder ExpiredFinder, cmds commands.ReservationCommands, clk clock.Clock, cfg config.ReservationConfig) *Sweeper {
	return &Sweeper{
		log:      log,
		finder:   finder,
		cmds:     cmds,
		clock:    clk,
		interval: cfg.SweepInterval,
		batch:    cfg.SweepBatchSize,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopping")
			return nil
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce drains one batch. Individual failures are logged and skipped
// so one stuck booking cannot stall the rest of the batch.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	ids, err := s.finder.FindExpiredPending(ctx, s.clock.Now(), s.batch)
	if err != nil {
		s.log.Error("sweep query error", "err", err)
		return 0
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired
		}
		if _, err := s.cmds.ExpireReservation(ctx, id); err != nil {
			// Another actor already settled this booking.
			if errors.Is(err, errs.ErrInvalidTransition) || errors.Is(err, errs.ErrHoldNotExpired) || errors.Is(err, errs.ErrBookingNotFound) {
				continue
			}
			s.log.Error("sweep expire error", "booking_id", id, "err", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		s.log.Info("swept expired holds", "count", expired)
	}
	return expired
}
