package led

import "math"

// GammaExponent is the exponent of the gamma curve applied to colors before
// they reach the strip.
const GammaExponent = 2.8

var gammaTable = func() (t [256]uint8) {
	for i := range t {
		t[i] = uint8(math.Round(math.Pow(float64(i)/255, GammaExponent) * 255))
	}
	return t
}()

// Gamma corrects c for the perceived brightness of the strip.
func Gamma(c RGBColor) RGBColor {
	return RGBColor{gammaTable[c[0]], gammaTable[c[1]], gammaTable[c[2]]}
}

// Blend linearly interpolates between from and to. Progress is clamped to
// [0, 1]; 0 yields from and 1 yields to.
func Blend(from, to RGBColor, progress float64) RGBColor {
	switch {
	case progress <= 0 || math.IsNaN(progress):
		return from
	case progress >= 1:
		return to
	}
	return FromColorful(from.Colorful().BlendRgb(to.Colorful(), progress))
}

// BlendGamma blends from and to and gamma corrects the result, ready to be
// written to the strip.
func BlendGamma(from, to RGBColor, progress float64) RGBColor {
	return Gamma(Blend(from, to, progress))
}
