package badge

import (
	"time"

	"libdb.so/glowbadge/internal/events"
)

// Display is the render capability of the badge screen.
type Display interface {
	// DrawStatus replaces the text on a line.
	DrawStatus(line int, text string)
	// DrawStatusAt replaces the text on a line, drawn with its left edge x
	// pixels from the left of the screen. x may lie outside the screen.
	DrawStatusAt(line, x int, text string)
	// TextWidth returns the width of text in pixels.
	TextWidth(text string) int
	// DrawSignal draws signal strength bars, 0 to SignalBars.
	DrawSignal(level int)
	// Flush pushes pending drawing to the screen.
	Flush()
}

// SignalSource reports received signal strength in dBm.
type SignalSource interface {
	Signal() int
}

// Display lines.
const (
	LineHeader = 0
	LineName   = 1
)

// Screen geometry of the name scroller, in pixels.
const (
	DisplayWidth = 128
	ScrollStep   = 3
)

// SignalBars is the number of bars in the signal indicator.
const SignalBars = 3

// Signal thresholds in dBm. Each threshold exceeded lights one bar.
var signalThresholds = [SignalBars]int{-85, -65, -55}

// Event intervals.
const (
	NameInterval   = 33 * time.Millisecond
	SignalInterval = 40 * time.Millisecond
	TeamInterval   = 40 * time.Millisecond
)

// SignalLevel converts a signal strength to a number of bars.
func SignalLevel(dbm int) int {
	var level int
	for _, threshold := range signalThresholds {
		if dbm > threshold {
			level++
		}
	}
	return level
}

// Renderer draws the badge onto a Display. Its render methods are meant to be
// registered into an event table.
type Renderer struct {
	badge   *Badge
	display Display
	signal  SignalSource

	shown  Name
	offset int
}

// NewRenderer creates a renderer for b. b is read on every render, so changes
// made to it show up on the next frame.
func NewRenderer(b *Badge, display Display, signal SignalSource) *Renderer {
	return &Renderer{
		badge:   b,
		display: display,
		signal:  signal,
		shown:   b.Name,
		offset:  DisplayWidth,
	}
}

// Register adds the renderers to table.
func (r *Renderer) Register(table *events.Table) error {
	if err := table.Register("name", NameInterval, r.RenderName); err != nil {
		return err
	}
	if err := table.Register("signal", SignalInterval, r.RenderSignal); err != nil {
		return err
	}
	return table.Register("team", TeamInterval, r.RenderTeam)
}

// RenderName draws the next frame of the scrolling name. The name enters from
// the right edge and restarts once it has fully left on the left.
func (r *Renderer) RenderName() {
	if r.badge.Name != r.shown {
		r.shown = r.badge.Name
		r.offset = DisplayWidth
	}

	r.display.DrawStatusAt(LineName, r.offset, string(r.shown))
	r.display.Flush()

	r.offset -= ScrollStep
	if r.offset < -r.display.TextWidth(string(r.shown)) {
		r.offset = DisplayWidth
	}
}

// RenderSignal draws the signal bars. It does not flush.
func (r *Renderer) RenderSignal() {
	r.display.DrawSignal(SignalLevel(r.signal.Signal()))
}

// RenderTeam draws the team label.
func (r *Renderer) RenderTeam() {
	r.display.DrawStatus(LineHeader, r.badge.Label())
	r.display.Flush()
}

// Offset returns the current horizontal position of the name in pixels.
func (r *Renderer) Offset() int { return r.offset }
