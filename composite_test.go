package vibble

import (
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
)

func newCompositeAsset(w, h int, lights []LightSource) *Asset {
	base := ebiten.NewImage(w, h)
	frame := &AnimationFrame{
		ColorMod: ColorWhite,
		Variants: []FrameVariant{{Base: base, W: w, H: h}},
	}
	an := NewAnimation("default", []*AnimationFrame{frame})
	info := &AssetInfo{
		Name:       "prop",
		CanvasW:    w,
		CanvasH:    h,
		Animations: map[string]*Animation{"default": an},
		Lights:     lights,
	}
	return NewAsset(info, Point{})
}

func TestEnsureCompositeContentSize(t *testing.T) {
	// A 20x20 variant lands in a 32x32 pooled target; the returned view
	// must still be 20x20 so the renderer's texture-bounds scaling keeps
	// the sprite at its authored size.
	a := newCompositeAsset(20, 20, nil)
	cr := NewCompositeRenderer()

	img := cr.EnsureComposite(a)
	if img == nil {
		t.Fatal("EnsureComposite returned nil")
	}
	b := img.Bounds()
	if b.Dx() != 20 || b.Dy() != 20 {
		t.Fatalf("composite view = %dx%d, want 20x20", b.Dx(), b.Dy())
	}
	if a.Composite() != img {
		t.Error("Composite() does not return the content view")
	}
	if again := cr.EnsureComposite(a); again != img {
		t.Error("unchanged frame rebuilt the composite")
	}
}

func TestEnsureCompositeIgnoresLightRadii(t *testing.T) {
	// Lights are emitted as separate render objects; a large radius must
	// not inflate the composite or pad the sprite.
	a := newCompositeAsset(16, 16, []LightSource{{OffsetY: -8, Radius: 200}})
	cr := NewCompositeRenderer()

	img := cr.EnsureComposite(a)
	if img == nil {
		t.Fatal("EnsureComposite returned nil")
	}
	b := img.Bounds()
	if b.Dx() != 16 || b.Dy() != 16 {
		t.Errorf("composite view = %dx%d, want 16x16", b.Dx(), b.Dy())
	}
}

func TestReleaseCompositeClearsView(t *testing.T) {
	a := newCompositeAsset(8, 8, nil)
	cr := NewCompositeRenderer()

	if cr.EnsureComposite(a) == nil {
		t.Fatal("EnsureComposite returned nil")
	}
	cr.ReleaseComposite(a)
	if a.Composite() != nil {
		t.Error("Composite() still set after release")
	}
}
