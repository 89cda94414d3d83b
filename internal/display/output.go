package display

import (
	"image"
	"io"
	"strings"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// clearScreen homes the cursor and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

// Terminal draws frames as text, two pixel rows per line using half blocks.
type Terminal struct {
	w    io.Writer
	ansi bool
}

var _ Output = (*Terminal)(nil)

// NewTerminal creates a text output writing to w. If ansi is true, every
// frame redraws the terminal in place.
func NewTerminal(w io.Writer, ansi bool) *Terminal {
	return &Terminal{w: w, ansi: ansi}
}

// ShowFrame implements Output.
func (t *Terminal) ShowFrame(img *image1bit.VerticalLSB) error {
	var b strings.Builder
	if t.ansi {
		b.WriteString(clearScreen)
	}
	b.WriteString(HalfBlocks(img))
	_, err := io.WriteString(t.w, b.String())
	return err
}

var halfBlocks = [4]rune{' ', '▀', '▄', '█'}

// HalfBlocks renders img as lines of half block characters, each covering two
// pixel rows.
func HalfBlocks(img *image1bit.VerticalLSB) string {
	r := img.Bounds()

	var b strings.Builder
	for y := r.Min.Y; y < r.Max.Y; y += 2 {
		for x := r.Min.X; x < r.Max.X; x++ {
			var cell int
			if img.BitAt(x, y) {
				cell |= 1
			}
			if y+1 < r.Max.Y && img.BitAt(x, y+1) {
				cell |= 2
			}
			b.WriteRune(halfBlocks[cell])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// OLED is an SSD1306 panel on an I2C bus.
type OLED struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

var _ Output = (*OLED)(nil)

// OpenOLED opens a Width by Height SSD1306 on the named I2C bus. An empty name
// picks the first bus available.
func OpenOLED(bus string) (*OLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize host drivers")
	}

	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open i2c bus")
	}

	opts := ssd1306.DefaultOpts
	opts.W = Width
	opts.H = Height

	dev, err := ssd1306.NewI2C(b, &opts)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "failed to open ssd1306")
	}

	return &OLED{bus: b, dev: dev}, nil
}

// ShowFrame implements Output.
func (o *OLED) ShowFrame(img *image1bit.VerticalLSB) error {
	return o.dev.Draw(img.Bounds(), img, image.Point{})
}

// Close turns the panel off and releases the bus.
func (o *OLED) Close() error {
	haltErr := o.dev.Halt()
	if err := o.bus.Close(); err != nil {
		return err
	}
	return haltErr
}
