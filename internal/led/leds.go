// Package led holds the pixel buffer shared between the animation pool and the
// strip sink, along with the colour maths used to fill it.
package led

import (
	"io"
	"unsafe"
)

// LEDs describes a strip of LEDs. It is a preallocated slice of RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new strip of LEDs. Colors are initialized to black
// (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// WriteTo implements io.WriterTo. It writes the LED strip to the given writer
// as a series of RGBColor values.
func (l LEDs) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, c := range l {
		n, err := w.Write(c[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// AsPixels returns the LED strip as a slice of uint8 values. Each LED is
// represented by three values, one for each color channel. The returned slice
// aliases l.
func (l LEDs) AsPixels() []uint8 {
	if len(l) == 0 {
		return nil
	}
	return unsafe.Slice((*uint8)(unsafe.Pointer(&l[0])), 3*len(l))
}

// Set sets the color of the LED at the given index. Indices outside the strip
// are ignored.
func (l LEDs) Set(i int, c RGBColor) {
	if i < 0 || i >= len(l) {
		return
	}
	l[i] = c
}

// Fill sets every LED in the strip to c.
func (l LEDs) Fill(c RGBColor) {
	for i := range l {
		l[i] = c
	}
}

// Equal reports whether l and other hold the same colors.
func (l LEDs) Equal(other LEDs) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}
