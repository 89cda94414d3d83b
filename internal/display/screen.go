// Package display renders the badge screen into a 1-bit framebuffer the size
// of the badge OLED and hands changed frames to its outputs.
package display

import (
	"bytes"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"libdb.so/glowbadge/internal/badge"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Screen size in pixels.
const (
	Width  = badge.DisplayWidth
	Height = 32
)

// Text lines are LinePitch pixels apart, the first at the top edge.
const (
	Lines     = 3
	LinePitch = 10
)

// Face is the font every line is drawn with.
var Face = basicfont.Face7x13

// Signal indicator geometry. Each bar is barWidth wide, one pixel apart, and
// grows towards the top right corner.
const (
	signalLeft = Width - badge.SignalBars*(barWidth+1) + 1
	barWidth   = 4
	barStep    = 2
	barMin     = 3
)

// Output receives every frame that differs from the previous one.
type Output interface {
	ShowFrame(img *image1bit.VerticalLSB) error
}

type textLine struct {
	text string
	x    int
}

// Screen is a badge.Display drawing into a Width by Height framebuffer. The
// whole frame is redrawn from the line contents on every flush.
type Screen struct {
	outputs []Output
	img     *image1bit.VerticalLSB
	last    []byte
	lines   [Lines]textLine
	signal  int
	err     error
}

var _ badge.Display = (*Screen)(nil)

// NewScreen creates a blank screen showing its frames on outputs.
func NewScreen(outputs ...Output) *Screen {
	return &Screen{
		outputs: outputs,
		img:     image1bit.NewVerticalLSB(image.Rect(0, 0, Width, Height)),
	}
}

// DrawStatus implements badge.Display. Lines out of range are ignored.
func (s *Screen) DrawStatus(line int, text string) {
	s.DrawStatusAt(line, 0, text)
}

// DrawStatusAt implements badge.Display. Lines out of range are ignored.
func (s *Screen) DrawStatusAt(line, x int, text string) {
	if line < 0 || line >= Lines {
		return
	}
	s.lines[line] = textLine{text: text, x: x}
}

// TextWidth implements badge.Display.
func (s *Screen) TextWidth(text string) int {
	return font.MeasureString(Face, text).Ceil()
}

// DrawSignal implements badge.Display.
func (s *Screen) DrawSignal(level int) {
	s.signal = max(0, min(level, badge.SignalBars))
}

// Clear blanks every line and the signal indicator.
func (s *Screen) Clear() {
	s.lines = [Lines]textLine{}
	s.signal = 0
}

// Flush implements badge.Display. Outputs only see frames that changed since
// the last flush.
func (s *Screen) Flush() {
	s.render()
	if s.last != nil && bytes.Equal(s.last, s.img.Pix) {
		return
	}
	s.last = append(s.last[:0], s.img.Pix...)

	for _, out := range s.outputs {
		if err := out.ShowFrame(s.img); err != nil && s.err == nil {
			s.err = err
		}
	}
}

// Line returns the text on line, or "" for lines out of range.
func (s *Screen) Line(line int) string {
	if line < 0 || line >= Lines {
		return ""
	}
	return s.lines[line].text
}

// Err returns the first output error, if any.
func (s *Screen) Err() error { return s.err }

// Image returns the framebuffer as of the last flush.
func (s *Screen) Image() *image1bit.VerticalLSB { return s.img }

func (s *Screen) render() {
	clear(s.img.Pix)

	ascent := Face.Metrics().Ascent.Ceil()
	for i, line := range s.lines {
		if line.text == "" {
			continue
		}
		d := font.Drawer{
			Dst:  s.img,
			Src:  image.NewUniform(image1bit.On),
			Face: Face,
			Dot:  fixed.P(line.x, i*LinePitch+ascent),
		}
		d.DrawString(line.text)
	}

	s.renderSignal()
}

// renderSignal draws the signal bars over whatever text reached the corner.
// Lit bars are filled, the others outlined.
func (s *Screen) renderSignal() {
	top := barMin + (badge.SignalBars-1)*barStep
	fillRect(s.img, image.Rect(signalLeft-1, 0, Width, top+1), image1bit.Off)

	for i := 0; i < badge.SignalBars; i++ {
		x := signalLeft + i*(barWidth+1)
		h := barMin + i*barStep
		r := image.Rect(x, top+1-h, x+barWidth, top+1)
		if i < s.signal {
			fillRect(s.img, r, image1bit.On)
		} else {
			outlineRect(s.img, r)
		}
	}
}

func fillRect(img *image1bit.VerticalLSB, r image.Rectangle, c image1bit.Bit) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetBit(x, y, c)
		}
	}
}

func outlineRect(img *image1bit.VerticalLSB, r image.Rectangle) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetBit(x, r.Min.Y, image1bit.On)
		img.SetBit(x, r.Max.Y-1, image1bit.On)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetBit(r.Min.X, y, image1bit.On)
		img.SetBit(r.Max.X-1, y, image1bit.On)
	}
}
