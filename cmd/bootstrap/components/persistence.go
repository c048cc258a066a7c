package components

import (
	"salon-booking/internal/infra/lock"
	"salon-booking/internal/infra/readstore"
	"salon-booking/internal/infra/repository"
	"salon-booking/internal/infra/slotstore"
	"salon-booking/internal/outbox"
	"salon-booking/internal/sweeper"
	"salon-booking/internal/usecase/commands"
	"salon-booking/internal/usecase/queries"

	"go.uber.org/fx"
)

var PersistenceModule = fx.Module("persistence",
	fx.Provide(
		fx.Annotate(
			slotstore.NewPostgresStore,
			fx.As(new(commands.SlotStore)),
		),
		fx.Annotate(
			lock.NewRedisManager,
			fx.As(new(commands.LockManager)),
		),
		repository.NewBookingRepository,
		fx.Annotate(
			func(r *repository.BookingRepository) *repository.BookingRepository { return r },
			fx.As(new(commands.BookingRepository)),
			fx.As(new(sweeper.ExpiredFinder)),
		),
		fx.Annotate(
			readstore.NewReservationReadStore,
			fx.As(new(queries.BookingViewRepo)),
		),
		fx.Annotate(
			repository.NewOutboxStore,
			fx.As(new(outbox.Store)),
		),
	),
)
