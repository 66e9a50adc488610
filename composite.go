package vibble

import (
	"image"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
)

// RenderObject is one draw emitted for an asset: a texture with a placement
// rect in world units centered on the asset, plus blend and transform state.
type RenderObject struct {
	Texture  *ebiten.Image
	Rect     FRect // offset and size relative to the asset position, world units
	ColorMod Color
	Blend    BlendMode
	Angle    float64
	Center   FPoint
	FlipH    bool
	FlipV    bool

	// IsLightMask marks the object as a darkness carve sprite instead of a
	// scene draw.
	IsLightMask bool
}

// RenderCompositePackage is the ordered draw list for one asset this frame:
// composite sprite first, then light sprites, then the shading mask.
type RenderCompositePackage struct {
	Asset   *Asset
	Objects []RenderObject
}

// CompositeRenderer rebuilds per-asset composite textures and emits render
// packages. Composites merge the frame's background, base, and foreground
// layers into one target, rebuilt only when the frame, variant, or flip
// state changes.
type CompositeRenderer struct {
	pool    renderTexturePool
	circles circleCache
}

// NewCompositeRenderer creates a composite renderer with an empty pool.
func NewCompositeRenderer() *CompositeRenderer {
	return &CompositeRenderer{}
}

// currentVariant resolves the asset's frame variant for its chosen ladder
// index, falling back to the nearest populated rung.
func currentVariant(f *AnimationFrame, idx int) *FrameVariant {
	if f == nil || len(f.Variants) == 0 {
		return nil
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(f.Variants) {
		idx = len(f.Variants) - 1
	}
	for i := idx; i >= 0; i-- {
		if f.Variants[i].Base != nil {
			return &f.Variants[i]
		}
	}
	for i := idx + 1; i < len(f.Variants); i++ {
		if f.Variants[i].Base != nil {
			return &f.Variants[i]
		}
	}
	return nil
}

// EnsureComposite rebuilds the asset's composite texture when dirty or when
// the rendered frame, variant, or flip state changed since the last build.
// The returned image is a view cropped to the variant's content size; the
// backing target comes from the pool and may be larger. Allocation failure
// logs and leaves the asset without a composite for the frame.
func (cr *CompositeRenderer) EnsureComposite(a *Asset) *ebiten.Image {
	f := a.CurrentFrame
	idx := 0
	if a.runtime != nil {
		idx = a.runtime.VariantIndex()
	}
	v := currentVariant(f, idx)
	if v == nil {
		return nil
	}

	if a.compositeView != nil && !a.compositeDirty &&
		a.compositeFrame == f && a.compositeVar == idx && a.compositeFlip == a.Flipped {
		return a.compositeView
	}

	w, h := v.W, v.H
	if w <= 0 || h <= 0 {
		return nil
	}

	var target *ebiten.Image
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("vibble: composite alloc failed for %s: %v", a.Info.Name, r)
				target = nil
			}
		}()
		target = cr.pool.Acquire(w, h)
	}()
	if target == nil {
		return nil
	}
	if a.composite != nil {
		cr.pool.Release(a.composite)
	}

	op := &ebiten.DrawImageOptions{}
	for _, layer := range []*ebiten.Image{v.Background, v.Base, v.Foreground} {
		if layer == nil {
			continue
		}
		op.GeoM.Reset()
		if a.Flipped {
			b := layer.Bounds()
			op.GeoM.Scale(-1, 1)
			op.GeoM.Translate(float64(b.Dx()), 0)
		}
		target.DrawImage(layer, op)
	}

	a.composite = target
	a.compositeView = target.SubImage(image.Rect(0, 0, w, h)).(*ebiten.Image)
	a.compositeDirty = false
	a.compositeFrame = f
	a.compositeVar = idx
	a.compositeFlip = a.Flipped
	return a.compositeView
}

// BuildPackage assembles the asset's draw list for this frame: the composite
// sprite, then one object per light source (flicker applied at time t), then
// the shading mask when the asset is shaded.
func (cr *CompositeRenderer) BuildPackage(a *Asset, t float64) RenderCompositePackage {
	pkg := RenderCompositePackage{Asset: a}
	f := a.CurrentFrame
	idx := 0
	if a.runtime != nil {
		idx = a.runtime.VariantIndex()
	}
	v := currentVariant(f, idx)
	if v == nil {
		return pkg
	}

	colorMod := ColorWhite
	if f != nil && f.ColorMod != (Color{}) {
		colorMod = f.ColorMod
	}

	composite := cr.EnsureComposite(a)
	if composite != nil {
		w := float64(a.W)
		h := float64(a.H)
		pkg.Objects = append(pkg.Objects, RenderObject{
			Texture:  composite,
			Rect:     FRect{X: -w / 2, Y: -h, W: w, H: h},
			ColorMod: colorMod,
			Blend:    BlendNormal,
		})
	}

	if a.Info != nil {
		for i := range a.Info.Lights {
			l := &a.Info.Lights[i]
			tex := l.Texture
			if tex == nil {
				tex = cr.circles.Get(l.Radius)
			}
			r := FlickerRadius(l.Radius, l.FlickerAmount, l.FlickerHz, t)
			pkg.Objects = append(pkg.Objects, RenderObject{
				Texture:     tex,
				Rect:        FRect{X: float64(l.OffsetX) - r, Y: float64(l.OffsetY) - r, W: r * 2, H: r * 2},
				ColorMod:    ColorWhite,
				Blend:       BlendAdd,
				IsLightMask: true,
			})
		}
		if a.Info.IsShaded && v.Mask != nil {
			pkg.Objects = append(pkg.Objects, RenderObject{
				Texture:     v.Mask,
				Rect:        FRect{X: -float64(a.W) / 2, Y: -float64(a.H), W: float64(a.W), H: float64(a.H)},
				ColorMod:    ColorWhite,
				Blend:       BlendCarve,
				IsLightMask: true,
				FlipH:       a.Flipped,
			})
		}
	}
	return pkg
}

// ReleaseComposite returns an asset's composite to the pool. Called on asset
// destruction.
func (cr *CompositeRenderer) ReleaseComposite(a *Asset) {
	if a.composite != nil {
		cr.pool.Release(a.composite)
		a.composite = nil
	}
	a.compositeView = nil
	a.compositeDirty = true
}
