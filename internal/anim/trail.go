package anim

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/led"
)

// Revolution is how long the front pixel takes to go around the ring once.
const Revolution = time.Second

// DefaultLightness is the HSL lightness of the trail hues.
const DefaultLightness = 0.5

// TrailConfig configures a Trail.
type TrailConfig struct {
	// Pixels is the number of pixels in the ring.
	Pixels int
	// Fade is how long a vacated pixel takes to go dark.
	Fade time.Duration
	// Lightness is the HSL lightness of each new hue. Zero means
	// DefaultLightness.
	Lightness float64
}

// Step returns how long the front pixel rests on each pixel.
func (c TrailConfig) Step() time.Duration {
	if c.Pixels <= 0 {
		return Revolution
	}
	return Revolution / time.Duration(c.Pixels)
}

// TailLength returns the largest number of pixels that can be fading at the
// same time.
func (c TrailConfig) TailLength() int {
	step := c.Step()
	if step <= 0 || c.Fade <= 0 {
		return 0
	}
	n := int((c.Fade + step - 1) / step)
	if n > c.Pixels {
		n = c.Pixels
	}
	return n
}

// PoolCapacity returns the number of channels a pool needs to run the trail:
// the timer, the full tail and a spare. The result is odd and never smaller
// than Pixels/5*2+1.
func (c TrailConfig) PoolCapacity() int {
	n := c.TailLength() + 2
	if floor := c.Pixels/5*2 + 1; n < floor {
		n = floor
	}
	if n%2 == 0 {
		n++
	}
	return n
}

// Trail moves a single lit pixel around a ring, leaving a fading tail. It
// owns one timer channel in its pool for as long as it runs.
type Trail struct {
	pool   *Pool
	cfg    TrailConfig
	rand   *rand.Rand
	logger *slog.Logger

	timer   Handle
	front   int
	hue     led.RGBColor
	laps    int
	dropped int
}

// NewTrail creates a trail that runs on pool. rng picks the hues.
func NewTrail(pool *Pool, cfg TrailConfig, rng *rand.Rand, logger *slog.Logger) (*Trail, error) {
	if cfg.Pixels < 1 {
		return nil, errors.New("trail needs at least one pixel")
	}
	if cfg.Pixels > len(pool.LEDs()) {
		return nil, errors.Errorf("trail of %d pixels does not fit a strip of %d", cfg.Pixels, len(pool.LEDs()))
	}
	if cfg.Lightness == 0 {
		cfg.Lightness = DefaultLightness
	}
	return &Trail{
		pool:   pool,
		cfg:    cfg,
		rand:   rng,
		logger: logger,
		timer:  -1,
	}, nil
}

// Start reserves the timer channel and lights the first pixel.
func (t *Trail) Start(now time.Duration) error {
	h, ok := t.pool.Reserve()
	if !ok {
		return errors.New("no free channel for the trail timer")
	}

	err := t.pool.Start(h, Animation{
		Role:     RoleTimer,
		Duration: t.cfg.Step(),
		Done:     t.step,
	}, now)
	if err != nil {
		t.pool.Release(h)
		return errors.Wrap(err, "failed to start trail timer")
	}

	t.timer = h
	t.hue = t.drawHue()
	t.pool.LEDs().Set(t.front, led.Gamma(t.hue))
	return nil
}

func (t *Trail) step(_ Handle, now time.Duration) {
	vacated := t.front

	t.front = (t.front + 1) % t.cfg.Pixels
	if t.front == 0 {
		t.hue = t.drawHue()
		t.laps++
	}
	if t.pool.Fading(t.front) {
		// Hold the new front at full color rather than let an old fade
		// darken it.
		t.pool.Fade(t.front, t.hue, t.hue, t.cfg.Fade, now, nil)
	}
	t.pool.LEDs().Set(t.front, led.Gamma(t.hue))

	if !t.pool.Fade(vacated, t.hue, led.Off, t.cfg.Fade, now, nil) {
		t.dropped++
		t.logger.Debug(
			"no free channel, skipping fade",
			"pixel", vacated,
			"dropped", t.dropped)
	}
}

func (t *Trail) drawHue() led.RGBColor {
	return led.Hue(float64(t.rand.Intn(360)), t.cfg.Lightness)
}

// Front returns the index of the lit pixel.
func (t *Trail) Front() int { return t.front }

// Hue returns the color of the current revolution before gamma correction.
func (t *Trail) Hue() led.RGBColor { return t.hue }

// Laps returns the number of completed revolutions.
func (t *Trail) Laps() int { return t.laps }

// Dropped returns the number of fades skipped because the pool was exhausted.
func (t *Trail) Dropped() int { return t.dropped }
