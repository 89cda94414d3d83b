package led

import (
	"encoding"
	"encoding/hex"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// RGBColor is a color in RGB order, one byte per channel.
type RGBColor [3]uint8

// Off is the color of an unlit pixel.
var Off = RGBColor{0, 0, 0}

var (
	_ encoding.TextUnmarshaler = (*RGBColor)(nil)
	_ encoding.TextMarshaler   = RGBColor{}
)

// RGB creates a color from its channels.
func RGB(r, g, b uint8) RGBColor {
	return RGBColor{r, g, b}
}

// Hue returns the fully saturated color at hue degrees with the given
// lightness in [0, 1].
func Hue(hue, lightness float64) RGBColor {
	return FromColorful(colorful.Hsl(hue, 1, lightness))
}

// FromColorful converts a colorful.Color, clamping it into the RGB gamut.
func FromColorful(c colorful.Color) RGBColor {
	r, g, b := c.Clamped().RGB255()
	return RGBColor{r, g, b}
}

// Colorful converts c into a colorful.Color.
func (c RGBColor) Colorful() colorful.Color {
	return colorful.Color{
		R: float64(c[0]) / 255,
		G: float64(c[1]) / 255,
		B: float64(c[2]) / 255,
	}
}

// String formats c as #rrggbb.
func (c RGBColor) String() string {
	return "#" + hex.EncodeToString(c[:])
}

// MarshalText implements encoding.TextMarshaler.
func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a color in the #rrggbb form.
func (c *RGBColor) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "#")
	if len(s) != 6 {
		return errors.Errorf("invalid color %q: want #rrggbb", text)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return errors.Wrapf(err, "invalid color %q", text)
	}
	copy(c[:], b)
	return nil
}
