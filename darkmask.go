package vibble

import (
	"image/color"
	"log"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// lightDraw is one light sprite to carve out of the darkness overlay, in
// screen space.
type lightDraw struct {
	Texture   *ebiten.Image
	X, Y      float64 // screen center of the light
	W, H      float64 // screen size of the light sprite
	Intensity float64
}

// DarkMask is the per-map darkness overlay. Each frame it fills a
// screen-sized target with black at the map's light opacity, carves a hole
// for every visible light sprite with the carve blend (alpha subtraction,
// RGB untouched), and composites the result over the scene. Frames where
// the overlay would be fully transparent are skipped entirely.
type DarkMask struct {
	w, h int

	// Opacity is the base darkness in [0, 1], from the map manifest's
	// light intensity. Zero disables the overlay.
	Opacity float64

	overlay *ebiten.Image
	circles circleCache
	imgOp   ebiten.DrawImageOptions

	skippedFrames uint64
}

// NewDarkMask creates a darkness overlay for the given screen size.
func NewDarkMask(w, h int, opacity float64) *DarkMask {
	return &DarkMask{
		w:       w,
		h:       h,
		Opacity: clamp01(opacity),
	}
}

// SkippedFrames returns how many frames the overlay was skipped because it
// would have been fully transparent.
func (m *DarkMask) SkippedFrames() uint64 {
	return m.skippedFrames
}

// Resize adapts the overlay to a new screen size. The target is dropped and
// reallocated at next need.
func (m *DarkMask) Resize(w, h int) {
	if w == m.w && h == m.h {
		return
	}
	m.w, m.h = w, h
	if m.overlay != nil {
		m.overlay.Deallocate()
		m.overlay = nil
	}
}

// CircleTexture returns the shared feathered circle for a light radius.
func (m *DarkMask) CircleTexture(radius float64) *ebiten.Image {
	return m.circles.Get(radius)
}

// ensureOverlay lazily allocates the screen-sized target. Allocation failure
// disables the overlay for the frame.
func (m *DarkMask) ensureOverlay() bool {
	if m.overlay != nil {
		return true
	}
	if m.w <= 0 || m.h <= 0 {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("vibble: dark mask target alloc failed: %v", r)
			m.overlay = nil
		}
	}()
	m.overlay = ebiten.NewImage(m.w, m.h)
	return m.overlay != nil
}

// Render draws the darkness overlay onto the screen, carving out the given
// lights. A fully transparent overlay is skipped and counted.
func (m *DarkMask) Render(screen *ebiten.Image, lights []lightDraw) {
	if m.Opacity <= 0 {
		m.skippedFrames++
		return
	}
	if !m.ensureOverlay() {
		m.skippedFrames++
		return
	}

	m.overlay.Clear()
	m.overlay.Fill(color.NRGBA{A: uint8(m.Opacity * 255)})

	op := &m.imgOp
	for _, l := range lights {
		if l.Texture == nil || l.W <= 0 || l.H <= 0 {
			continue
		}
		b := l.Texture.Bounds()
		sw, sh := float64(b.Dx()), float64(b.Dy())
		if sw == 0 || sh == 0 {
			continue
		}
		op.GeoM.Reset()
		op.GeoM.Scale(l.W/sw, l.H/sh)
		op.GeoM.Translate(l.X-l.W/2, l.Y-l.H/2)
		i := clamp01(l.Intensity)
		op.ColorScale.Reset()
		op.ColorScale.Scale(float32(i), float32(i), float32(i), float32(i))
		op.Blend = BlendCarve.EbitenBlend()
		m.overlay.DrawImage(l.Texture, op)
	}

	op.GeoM.Reset()
	op.ColorScale.Reset()
	op.Blend = BlendNormal.EbitenBlend()
	screen.DrawImage(m.overlay, op)
}

// FlickerRadius modulates a light radius by its flicker parameters at time t
// (seconds). Amount is the radius fraction, hz the oscillation rate.
func FlickerRadius(radius, amount, hz, t float64) float64 {
	if amount <= 0 || hz <= 0 {
		return radius
	}
	return radius * (1 + amount*math.Sin(2*math.Pi*hz*t))
}
