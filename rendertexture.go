package vibble

import (
	"image"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// renderTexturePool manages reusable offscreen ebiten.Images keyed by
// power-of-two dimensions. Composite rebuilds and the dark-mask overlay
// churn through offscreen targets every frame; after warmup, Acquire and
// Release are zero-alloc.
type renderTexturePool struct {
	buckets map[uint64][]*ebiten.Image
}

func poolKey(w, h int) uint64 {
	return uint64(w)<<32 | uint64(h)
}

// Acquire returns a cleared offscreen image with at least (w, h) pixels.
// Dimensions are rounded up to the next power of two.
func (p *renderTexturePool) Acquire(w, h int) *ebiten.Image {
	pw := nextPowerOfTwo(w)
	ph := nextPowerOfTwo(h)
	key := poolKey(pw, ph)

	if p.buckets != nil {
		if stack := p.buckets[key]; len(stack) > 0 {
			img := stack[len(stack)-1]
			p.buckets[key] = stack[:len(stack)-1]
			img.Clear()
			return img
		}
	}

	return ebiten.NewImageWithOptions(
		image.Rect(0, 0, pw, ph),
		&ebiten.NewImageOptions{Unmanaged: true},
	)
}

// Release returns an image to the pool for reuse. Clearing happens on the
// next Acquire, not here.
func (p *renderTexturePool) Release(img *ebiten.Image) {
	if img == nil {
		return
	}
	b := img.Bounds()
	key := poolKey(b.Dx(), b.Dy())

	if p.buckets == nil {
		p.buckets = make(map[uint64][]*ebiten.Image)
	}
	p.buckets[key] = append(p.buckets[key], img)
}

// Drain deallocates every pooled image.
func (p *renderTexturePool) Drain() {
	for key, stack := range p.buckets {
		for _, img := range stack {
			img.Deallocate()
		}
		delete(p.buckets, key)
	}
}

// nextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

// generateCircle builds a feathered white circle texture of the given
// radius: fully opaque in the core, alpha falling off smoothly toward the
// rim. Used for light sources authored without a texture.
func generateCircle(radius float64) *ebiten.Image {
	size := int(math.Ceil(radius * 2))
	if size < 2 {
		size = 2
	}
	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	center := float64(size) / 2
	feather := radius * 0.4
	core := radius - feather

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - center
			dy := float64(y) + 0.5 - center
			d := math.Hypot(dx, dy)

			var a float64
			switch {
			case d <= core:
				a = 1
			case d >= radius:
				a = 0
			default:
				t := (d - core) / feather
				// Smoothstep falloff across the feather band.
				a = 1 - t*t*(3-2*t)
			}
			v := uint8(a * 255)
			rgba.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: v})
		}
	}
	return ebiten.NewImageFromImage(rgba)
}

// circleCache caches generated circles keyed by quantized radius so lights
// sharing a radius share one texture.
type circleCache struct {
	circles map[int]*ebiten.Image
}

func (c *circleCache) Get(radius float64) *ebiten.Image {
	key := int(math.Ceil(radius))
	if key < 1 {
		key = 1
	}
	if c.circles == nil {
		c.circles = make(map[int]*ebiten.Image)
	}
	if img, ok := c.circles[key]; ok {
		return img
	}
	img := generateCircle(float64(key))
	c.circles[key] = img
	return img
}
