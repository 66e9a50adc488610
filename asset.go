package vibble

import (
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
)

// assetIDCounter hands out stable, process-unique asset ids. Visibility
// ordering uses the id as its final tie-breaker, so ids must be strictly
// monotone.
var assetIDCounter uint64

func nextAssetID() uint64 {
	return atomic.AddUint64(&assetIDCounter, 1)
}

// LightSource is an authored point light attached to an asset. When Texture
// is nil, a feathered circle of the given radius is generated at spawn time.
type LightSource struct {
	OffsetX, OffsetY int
	Radius           float64
	FlickerAmount    float64 // radius modulation fraction in [0, 1]
	FlickerHz        float64
	Texture          *ebiten.Image
}

// AssetInfo is the immutable authored definition shared by every instance of
// an asset type. VariantSteps is the normalized scale ladder: strictly
// descending, unique, positive fractions of the authored base size, first
// entry largest.
type AssetInfo struct {
	Name    string
	Type    string
	CanvasW int
	CanvasH int

	VariantSteps []float64
	Animations   map[string]*Animation
	ChildNames   []string
	Lights       []LightSource

	SmoothScaling        bool
	ApplyDistanceScaling bool
	ApplyVerticalScaling bool
	Tillable             bool
	MovingAsset          bool
	IsShaded             bool

	// ZThreshold seeds the spawn depth of new instances.
	ZThreshold int
}

// Animation returns the named animation, or nil.
func (info *AssetInfo) Animation(name string) *Animation {
	if info == nil || info.Animations == nil {
		return nil
	}
	return info.Animations[name]
}

// normalizeVariantSteps sorts the scale ladder descending, drops duplicates,
// and clamps entries to positive values. An empty ladder becomes [1.0].
func normalizeVariantSteps(steps []float64) []float64 {
	out := make([]float64, 0, len(steps))
	for _, s := range steps {
		if s > 0 {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []float64{1.0}
	}
	// Insertion sort descending; ladders are tiny.
	for i := 1; i < len(out); i++ {
		v := out[i]
		j := i - 1
		for j >= 0 && out[j] < v {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = v
	}
	dedup := out[:1]
	for _, s := range out[1:] {
		if s != dedup[len(dedup)-1] {
			dedup = append(dedup, s)
		}
	}
	return dedup
}

// TilingInfo describes a grid-aligned repeat of a decorative asset over a
// coverage rect.
type TilingInfo struct {
	Enabled    bool
	GridOrigin Point
	TileW      int
	TileH      int
	Coverage   Rect
	Anchor     Point
}

// IsValid reports whether the tiling info describes a renderable repeat:
// enabled, positive tile size, positive coverage.
func (t TilingInfo) IsValid() bool {
	return t.Enabled && t.TileW > 0 && t.TileH > 0 && t.Coverage.W > 0 && t.Coverage.H > 0
}

// variantState is the scale-variant hysteresis cache. The chosen index only
// changes when the requested scale leaves the [min, max] window, preventing
// texture oscillation near a variant boundary.
type variantState struct {
	index     int
	min       float64
	max       float64
	hasWindow bool
}

// renderSmoothing holds the exponentially smoothed translation/scale/alpha
// used for render interpolation.
type renderSmoothing struct {
	x, y        float64
	scale       float64
	alpha       float64
	initialized bool
}

// Asset is a world entity: one instance of an AssetInfo placed on the grid.
// Assets are owned by their occupying GridPoint; every other reference
// (chunk lists, camera visibility, child links) is non-owning and becomes
// invalid once the removal queue destroys the asset.
type Asset struct {
	ID   uint64
	Info *AssetInfo

	Pos     Point
	Z       int
	Flipped bool
	Visible bool

	CurrentAnimation string
	CurrentFrame     *AnimationFrame
	FrameProgress    float64

	RequestedScale float64
	RemainderScale float64
	variant        variantState

	W, H int

	GridID GridID

	composite      *ebiten.Image
	compositeView  *ebiten.Image
	compositeDirty bool
	compositeFrame *AnimationFrame
	compositeVar   int
	compositeFlip  bool

	smoothing renderSmoothing

	Tiling TilingInfo

	// Children are non-owning links to spawned child assets, indexed in
	// the order of Info.ChildNames.
	Children []*Asset

	runtime *AnimationRuntime

	// pendingDX/pendingDY accumulate this frame's authored movement. The
	// manager drains them into WorldGrid.MoveAsset during the serial apply
	// phase.
	pendingDX int
	pendingDY int

	deleted bool
}

// NewAsset creates an asset instance of the given info at a world position.
// The current animation starts on the info's "default" animation when
// present.
func NewAsset(info *AssetInfo, pos Point) *Asset {
	a := &Asset{
		ID:             nextAssetID(),
		Info:           info,
		Pos:            pos,
		Visible:        true,
		RequestedScale: 1.0,
		compositeDirty: true,
	}
	if info != nil {
		a.Z = info.ZThreshold
		a.W = info.CanvasW
		a.H = info.CanvasH
	}
	a.runtime = newAnimationRuntime(a)
	if anim := info.Animation("default"); anim != nil {
		a.runtime.SetAnimation("default")
	}
	return a
}

// Runtime returns the asset's animation runtime.
func (a *Asset) Runtime() *AnimationRuntime {
	return a.runtime
}

// Delete marks the asset for removal. Destruction is deferred to the
// manager's removal queue so no iterator observes a dangling pointer
// mid-frame.
func (a *Asset) Delete() {
	a.deleted = true
}

// IsDeleted reports whether the asset has been scheduled for removal.
func (a *Asset) IsDeleted() bool {
	return a.deleted
}

// MarkCompositeDirty forces the composite texture to be rebuilt on the next
// render.
func (a *Asset) MarkCompositeDirty() {
	a.compositeDirty = true
}

// Composite returns the asset's composite texture cropped to its content
// size, or nil when it has not been built yet. The backing render target is
// pooled and may be larger than the view.
func (a *Asset) Composite() *ebiten.Image {
	return a.compositeView
}

// takePendingMovement returns and clears the accumulated movement for this
// frame.
func (a *Asset) takePendingMovement() (dx, dy int) {
	dx, dy = a.pendingDX, a.pendingDY
	a.pendingDX, a.pendingDY = 0, 0
	return dx, dy
}

// releaseComposite frees the composite render target.
func (a *Asset) releaseComposite() {
	if a.composite != nil {
		a.composite.Deallocate()
		a.composite = nil
	}
	a.compositeView = nil
	a.compositeDirty = true
}
