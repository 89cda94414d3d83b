package glowbadge

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/anim"
	"libdb.so/glowbadge/internal/badge"
	"libdb.so/glowbadge/internal/events"
	"libdb.so/glowbadge/internal/led"
	"libdb.so/glowbadge/internal/strip"
)

// Updater services pending update or transfer work. Handle must not block.
type Updater interface {
	Handle()
}

// NopUpdater is an Updater with nothing to do.
type NopUpdater struct{}

// Handle implements Updater.
func (NopUpdater) Handle() {}

// Poller services pending control-plane work. Poll must not block.
type Poller interface {
	Poll() bool
}

// DeviceState is everything the main loop owns. It is built once at boot and
// only touched from the goroutine calling Iterate.
type DeviceState struct {
	Badge   *badge.Badge
	Pool    *anim.Pool
	Trail   *anim.Trail
	Events  *events.Table
	Sink    strip.Sink
	Updater Updater
	// Control is nil until an operational surface has started.
	Control Poller

	logger     *slog.Logger
	iterations int
}

// NewDeviceState creates the device state for badge b. The pixels are lit in
// the badge color until the trail passes over them.
func NewDeviceState(b badge.Badge, trail anim.TrailConfig, sink strip.Sink, rng *rand.Rand, logger *slog.Logger) (*DeviceState, error) {
	leds := led.NewLEDs(trail.Pixels)
	leds.Fill(led.Gamma(b.Color))

	pool := anim.NewPool(trail.PoolCapacity(), leds)

	t, err := anim.NewTrail(pool, trail, rng, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trail")
	}

	logger.Debug(
		"created device state",
		"pixels", trail.Pixels,
		"channels", pool.Cap(),
		"tail", trail.TailLength())

	return &DeviceState{
		Badge:   &b,
		Pool:    pool,
		Trail:   t,
		Events:  &events.Table{},
		Sink:    sink,
		Updater: NopUpdater{},
		logger:  logger,
	}, nil
}

// Iterate runs one main loop iteration and returns. In order, it advances the
// animations and shows the pixels, services update work, services the control
// plane and fires due events.
func (s *DeviceState) Iterate(now time.Duration) {
	s.Pool.Advance(now)
	if err := s.Sink.Show(s.Pool.LEDs()); err != nil {
		s.logger.Warn(
			"failed to show pixels",
			"error", err)
	}

	if s.Updater != nil {
		s.Updater.Handle()
	}

	if s.Control != nil {
		s.Control.Poll()
	}

	s.Events.Tick(now)
	s.iterations++
}

// Iterations returns the number of completed iterations.
func (s *DeviceState) Iterations() int { return s.iterations }
