package server

import (
	"context"
	"math/rand"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/hblackburnRedev/SmartMeter/config"
	"github.com/hblackburnRedev/SmartMeter/logging"
	"github.com/hblackburnRedev/SmartMeter/protocol"
)

// broadcastWorkers bounds the fan-out pool so a slow peer cannot hold up
// delivery to the rest of the fleet.
const broadcastWorkers = 32

// Broadcaster periodically flips a simulated grid status and pushes it to
// every open session. It runs as a single long-lived task for the server's
// lifetime and communicates with connections only through the session
// registry.
type Broadcaster struct {
	logger   logging.Logger
	registry *Registry
	cfg      config.GridAlertsConfig
	pool     pond.Pool
	rng      *rand.Rand
}

// NewBroadcaster creates a grid alert broadcaster over the session registry.
func NewBroadcaster(logger logging.Logger, registry *Registry, cfg config.GridAlertsConfig) *Broadcaster {
	return &Broadcaster{
		logger:   logging.ForComponent(logger, logging.ComponentBroadcaster),
		registry: registry,
		cfg:      cfg,
		pool:     pond.NewPool(broadcastWorkers),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run cycles grid status until the context is cancelled: wait a random
// interval, broadcast "down", wait a second random interval, broadcast "up".
// Cancellation is checked at every wait so shutdown is never blocked.
func (b *Broadcaster) Run(ctx context.Context) {
	b.logger.Info().
		Dur("down_after_min", b.cfg.DownAfterMin()).
		Dur("down_after_max", b.cfg.DownAfterMax()).
		Dur("up_after_min", b.cfg.UpAfterMin()).
		Dur("up_after_max", b.cfg.UpAfterMax()).
		Msg("grid alert broadcaster started")

	defer b.pool.StopAndWait()

	for {
		if !b.sleep(ctx, b.randomInterval(b.cfg.DownAfterMin(), b.cfg.DownAfterMax())) {
			return
		}
		b.Broadcast(protocol.GridStatusEvent{Status: protocol.GridStatusDown})

		if !b.sleep(ctx, b.randomInterval(b.cfg.UpAfterMin(), b.cfg.UpAfterMax())) {
			return
		}
		b.Broadcast(protocol.GridStatusEvent{Status: protocol.GridStatusUp})
	}
}

// Broadcast fans a grid status event out to every open session. A failed
// delivery to one session is logged and never aborts delivery to the rest.
func (b *Broadcaster) Broadcast(ev protocol.GridStatusEvent) {
	count := 0
	group := b.pool.NewGroup()

	b.registry.Range(func(s *Session) bool {
		count++
		group.SubmitErr(func() error {
			if !s.IsOpen() {
				broadcastsDelivered.WithLabelValues(ev.Status, resultSkipped).Inc()
				return nil
			}
			if err := s.SendGridStatus(ev); err != nil {
				broadcastsDelivered.WithLabelValues(ev.Status, resultFailure).Inc()
				b.logger.Warn().
					Err(err).
					Str(logging.FieldSessionID, s.Key).
					Str(logging.FieldStatus, ev.Status).
					Msg("failed to deliver grid status")
				return nil
			}
			broadcastsDelivered.WithLabelValues(ev.Status, resultSuccess).Inc()
			return nil
		})
		return true
	})

	_ = group.Wait()

	b.logger.Info().
		Str(logging.FieldStatus, ev.Status).
		Int(logging.FieldCount, count).
		Msg("grid status broadcast")
}

// sleep waits for d or until ctx is cancelled. It reports whether the full
// wait elapsed.
func (b *Broadcaster) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// randomInterval returns a uniformly distributed duration in [min, max].
func (b *Broadcaster) randomInterval(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(b.rng.Int63n(int64(max-min)+1))
}
