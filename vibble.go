package vibble

import "github.com/hajimehoshi/ebiten/v2"

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
// Premultiplication occurs at render submission time.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the default tint (no color modification).
var ColorWhite = Color{1, 1, 1, 1}

// Point is an integer 2D world position. All world positions are integer
// pixels.
type Point struct {
	X, Y int
}

// FPoint is a float 2D point used for screen positions and sub-pixel offsets.
type FPoint struct {
	X, Y float64
}

// Rect is an integer axis-aligned rectangle. The coordinate system has its
// origin at the top-left, with Y increasing downward.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether the point p lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W &&
		p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.W &&
		r.X+r.W >= other.X &&
		r.Y <= other.Y+other.H &&
		r.Y+r.H >= other.Y
}

// Expand grows the rectangle by margin pixels on every side.
func (r Rect) Expand(margin int) Rect {
	return Rect{X: r.X - margin, Y: r.Y - margin, W: r.W + 2*margin, H: r.H + 2*margin}
}

// FRect is a float axis-aligned rectangle used for screen-space geometry.
type FRect struct {
	X, Y, W, H float64
}

// Intersects reports whether r and other overlap.
func (r FRect) Intersects(other FRect) bool {
	return r.X <= other.X+other.W &&
		r.X+r.W >= other.X &&
		r.Y <= other.Y+other.H &&
		r.Y+r.H >= other.Y
}

// BlendMode selects a compositing operation. Each maps to a specific
// ebiten.Blend value.
type BlendMode uint8

const (
	BlendNormal   BlendMode = iota // source-over (standard alpha blending)
	BlendAdd                       // additive / lighter
	BlendMultiply                  // multiply (source * destination; only darkens)
	BlendNone                      // opaque copy (skip blending)
	BlendCarve                     // subtract source alpha from destination alpha, RGB untouched
)

// EbitenBlend returns the ebiten.Blend value corresponding to this BlendMode.
//
// BlendCarve implements the dark-mask carving equation
// (ZERO, ONE, ADD; ZERO, 1-SRC_ALPHA, ADD): the destination RGB is kept and
// the source alpha is subtracted from the destination alpha, punching holes
// in an opaque darkness overlay.
func (b BlendMode) EbitenBlend() ebiten.Blend {
	switch b {
	case BlendNormal:
		return ebiten.BlendSourceOver
	case BlendAdd:
		return ebiten.BlendLighter
	case BlendMultiply:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorDestinationColor,
			BlendFactorSourceAlpha:      ebiten.BlendFactorDestinationAlpha,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceAlpha,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	case BlendNone:
		return ebiten.BlendCopy
	case BlendCarve:
		return ebiten.Blend{
			BlendFactorSourceRGB:        ebiten.BlendFactorZero,
			BlendFactorSourceAlpha:      ebiten.BlendFactorZero,
			BlendFactorDestinationRGB:   ebiten.BlendFactorOne,
			BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
			BlendOperationRGB:           ebiten.BlendOperationAdd,
			BlendOperationAlpha:         ebiten.BlendOperationAdd,
		}
	default:
		return ebiten.BlendSourceOver
	}
}

// clamp01 clamps v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// lerp linearly interpolates between a and b by t.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// clampf clamps v to [lo, hi].
func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
