// Package anim implements the fixed-size animation channel pool and the
// chasing trail that runs on top of it.
package anim

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"libdb.so/glowbadge/internal/led"
)

// Role is what a channel does while it runs.
type Role uint8

const (
	// RoleFade blends its pixel from one color to another and frees the
	// channel once the blend completes.
	RoleFade Role = iota
	// RoleTimer drives no pixel. On completion it restarts itself and is
	// never freed.
	RoleTimer
)

// String returns a string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleFade:
		return "fade"
	case RoleTimer:
		return "loop-timer"
	default:
		return fmt.Sprintf("Role(%d)", r)
	}
}

// Handle identifies a channel within a Pool.
type Handle int

// Completion is called when a channel reaches the end of its duration. now is
// the time passed to the Advance call that completed it.
type Completion func(h Handle, now time.Duration)

// Animation describes what a channel should run.
type Animation struct {
	Role     Role
	Pixel    int
	From, To led.RGBColor
	Duration time.Duration
	Done     Completion
}

type channelState uint8

const (
	channelFree channelState = iota
	channelReserved
	channelRunning
	channelCompleting
)

type channel struct {
	state   channelState
	anim    Animation
	started time.Duration
}

// Pool is a fixed set of animation channels writing into a shared pixel
// buffer. It is not safe for concurrent use; it is owned by the main loop.
type Pool struct {
	leds     led.LEDs
	channels []channel
}

// NewPool creates a pool of capacity channels that writes into leds.
func NewPool(capacity int, leds led.LEDs) *Pool {
	return &Pool{
		leds:     leds,
		channels: make([]channel, capacity),
	}
}

// LEDs returns the pixel buffer the pool writes into.
func (p *Pool) LEDs() led.LEDs { return p.leds }

// Cap returns the number of channels in the pool.
func (p *Pool) Cap() int { return len(p.channels) }

// Reserve claims the lowest free channel. It returns false without touching
// the pool when every channel is in use.
func (p *Pool) Reserve() (Handle, bool) {
	for i := range p.channels {
		if p.channels[i].state == channelFree {
			p.channels[i].state = channelReserved
			return Handle(i), true
		}
	}
	return -1, false
}

// Release returns a reserved channel that was never started.
func (p *Pool) Release(h Handle) {
	if p.valid(h) && p.channels[h].state == channelReserved {
		p.channels[h] = channel{}
	}
}

var (
	// ErrBadHandle is returned for handles outside the pool.
	ErrBadHandle = errors.New("channel out of range")
	// ErrNotReserved is returned when starting a free or completed channel.
	ErrNotReserved = errors.New("channel is not reserved")
	// ErrNoDuration is returned when starting a timer without a duration.
	ErrNoDuration = errors.New("timer needs a positive duration")
)

// Start arms a reserved or running channel with a, measuring its progress from
// now. Restarting a running channel drops its pending completion.
func (p *Pool) Start(h Handle, a Animation, now time.Duration) error {
	if !p.valid(h) {
		return errors.Wrapf(ErrBadHandle, "channel %d", h)
	}
	ch := &p.channels[h]
	switch ch.state {
	case channelReserved, channelRunning:
	default:
		return errors.Wrapf(ErrNotReserved, "channel %d", h)
	}
	if a.Role == RoleTimer && a.Duration <= 0 {
		return errors.Wrapf(ErrNoDuration, "channel %d", h)
	}
	ch.state = channelRunning
	ch.anim = a
	ch.started = now
	return nil
}

// Fade starts a fade on pixel. A fade already running on the same pixel is
// restarted in place so that no two channels target one pixel; otherwise a
// free channel is reserved. It returns false when the pool is exhausted, in
// which case the pixel keeps its current color.
func (p *Pool) Fade(pixel int, from, to led.RGBColor, d time.Duration, now time.Duration, done Completion) bool {
	h, ok := p.fading(pixel)
	if !ok {
		if h, ok = p.Reserve(); !ok {
			return false
		}
	}

	err := p.Start(h, Animation{
		Role:     RoleFade,
		Pixel:    pixel,
		From:     from,
		To:       to,
		Duration: d,
		Done:     done,
	}, now)
	return err == nil
}

// Advance moves every running channel to now. Fade channels write their
// gamma corrected blend into the pixel buffer. A channel whose progress
// reaches 1 has its completion called exactly once: fade channels are freed
// after it returns and timer channels are restarted before it runs.
func (p *Pool) Advance(now time.Duration) {
	for i := range p.channels {
		ch := &p.channels[i]
		if ch.state != channelRunning {
			continue
		}

		progress := ch.progress(now)
		if ch.anim.Role == RoleFade {
			p.leds.Set(ch.anim.Pixel, led.BlendGamma(ch.anim.From, ch.anim.To, progress))
		}
		if progress < 1 {
			continue
		}

		done := ch.anim.Done
		switch ch.anim.Role {
		case RoleTimer:
			ch.started = now
			if done != nil {
				done(Handle(i), now)
			}
		default:
			ch.state = channelCompleting
			if done != nil {
				done(Handle(i), now)
			}
			p.channels[i] = channel{}
		}
	}
}

// Running returns the number of running channels with the given role.
func (p *Pool) Running(role Role) int {
	var n int
	for _, ch := range p.channels {
		if ch.state == channelRunning && ch.anim.Role == role {
			n++
		}
	}
	return n
}

// Free returns the number of free channels.
func (p *Pool) Free() int {
	var n int
	for _, ch := range p.channels {
		if ch.state == channelFree {
			n++
		}
	}
	return n
}

// Fading reports whether a fade is running on pixel.
func (p *Pool) Fading(pixel int) bool {
	_, ok := p.fading(pixel)
	return ok
}

func (p *Pool) fading(pixel int) (Handle, bool) {
	for i, ch := range p.channels {
		if ch.state == channelRunning && ch.anim.Role == RoleFade && ch.anim.Pixel == pixel {
			return Handle(i), true
		}
	}
	return -1, false
}

func (p *Pool) valid(h Handle) bool {
	return h >= 0 && int(h) < len(p.channels)
}

func (ch *channel) progress(now time.Duration) float64 {
	if ch.anim.Duration <= 0 {
		return 1
	}
	elapsed := now - ch.started
	switch {
	case elapsed <= 0:
		return 0
	case elapsed >= ch.anim.Duration:
		return 1
	}
	return float64(elapsed) / float64(ch.anim.Duration)
}
