package components

import (
	"context"
	"log/slog"
	"os"

	"salon-booking/internal/outbox"
	"salon-booking/internal/pkg/config"
	"salon-booking/internal/sweeper"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		sweeper.New,
		NewOutboxRelay,
	),
	fx.Invoke(
		runSweeper,
		runRelay,
	),
)

func NewOutboxRelay(log *slog.Logger, store outbox.Store, writer *kafka.Writer, cfg config.Config) *outbox.Relay {
	dispatcher := outbox.NewDispatcher(log, writer, cfg.Kafka.Topic)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "relay"
	}
	relayID := hostname + "-" + uuid.NewString()[:8]

	return outbox.NewRelay(log, store, dispatcher, relayID)
}

func runSweeper(lc fx.Lifecycle, s *sweeper.Sweeper) {
	runWorker(lc, s.Run)
}

func runRelay(lc fx.Lifecycle, r *outbox.Relay) {
	runWorker(lc, r.Run)
}

func runWorker(lc fx.Lifecycle, run func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := run(ctx); err != nil {
					slog.Error("background worker exited", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
