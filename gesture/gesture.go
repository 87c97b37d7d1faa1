// Package gesture encodes and decodes the circle events exchanged between
// peers in a room.
package gesture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const KindCircle = "circle"

var (
	ErrNotCircle      = errors.New("not a circle event")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrColorFormat    = fmt.Errorf("%w: color must have four numeric components", ErrInvalidPayload)
)

type Color struct {
	R, G, B, A float64
}

// String returns the "r,g,b,a" wire form.
func (c Color) String() string {
	parts := [4]string{
		formatFloat(c.R),
		formatFloat(c.G),
		formatFloat(c.B),
		formatFloat(c.A),
	}
	return strings.Join(parts[:], ",")
}

func ParseColor(s string) (Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Color{}, fmt.Errorf("%w: got %d components", ErrColorFormat, len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || !finite(f) {
			return Color{}, fmt.Errorf("%w: component %d is %q", ErrColorFormat, i, p)
		}
		v[i] = f
	}
	return Color{R: v[0], G: v[1], B: v[2], A: v[3]}, nil
}

// Event is a remote touch: a room-relative position in [0,1] and a color.
type Event struct {
	X     float64
	Y     float64
	Color Color
}

// Position scales the normalized coordinates to a view of the given size.
func (e Event) Position(width, height float64) (x, y float64) {
	return e.X * width, e.Y * height
}

// Normalize converts view coordinates to room-relative ones, clamped to [0,1].
func Normalize(x, y, width, height float64) (nx, ny float64) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return clamp01(x / width), clamp01(y / height)
}

type wireCircle struct {
	Type  string  `json:"type"`
	PX    float64 `json:"px"`
	PY    float64 `json:"py"`
	Color string  `json:"color"`
}

func Encode(e Event) (string, error) {
	for _, f := range []float64{e.X, e.Y, e.Color.R, e.Color.G, e.Color.B, e.Color.A} {
		if !finite(f) {
			return "", fmt.Errorf("encode circle: %w: non-finite value", ErrInvalidPayload)
		}
	}

	b, err := json.Marshal(wireCircle{
		Type:  KindCircle,
		PX:    e.X,
		PY:    e.Y,
		Color: e.Color.String(),
	})
	if err != nil {
		return "", fmt.Errorf("encode circle: %w", err)
	}
	return string(b), nil
}

// Decode parses a circle message. Messages of any other kind yield
// ErrNotCircle; malformed circles yield an error matching ErrInvalidPayload.
func Decode(s string) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var kind string
	raw, ok := fields["type"]
	if !ok || json.Unmarshal(raw, &kind) != nil || kind != KindCircle {
		return Event{}, ErrNotCircle
	}

	x, err := numberField(fields, "px")
	if err != nil {
		return Event{}, err
	}
	y, err := numberField(fields, "py")
	if err != nil {
		return Event{}, err
	}

	var colorText string
	raw, ok = fields["color"]
	if !ok || isNull(raw) || json.Unmarshal(raw, &colorText) != nil {
		return Event{}, fmt.Errorf("%w: color must be a string", ErrColorFormat)
	}
	color, err := ParseColor(colorText)
	if err != nil {
		return Event{}, err
	}

	return Event{X: x, Y: y, Color: color}, nil
}

func numberField(fields map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidPayload, key)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrInvalidPayload, key)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0 || math.IsNaN(f):
		return 0
	case f > 1:
		return 1
	}
	return f
}
