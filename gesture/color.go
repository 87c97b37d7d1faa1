package gesture

import (
	"math"
	"math/rand/v2"
)

const (
	pastelSaturation = 0.6
	pastelBrightness = 0.9
)

// RandomPastel picks a random hue at fixed saturation and brightness.
// A nil r uses the package-level source.
func RandomPastel(r *rand.Rand) Color {
	var hue float64
	if r != nil {
		hue = r.Float64()
	} else {
		hue = rand.Float64()
	}
	return FromHSV(hue, pastelSaturation, pastelBrightness)
}

// FromHSV converts hue, saturation and value in [0,1] to an opaque Color.
func FromHSV(h, s, v float64) Color {
	h = math.Mod(h, 1) * 6
	if h < 0 {
		h += 6
	}
	i := math.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return Color{R: r, G: g, B: b, A: 1}
}
