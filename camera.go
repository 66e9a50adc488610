package vibble

import (
	"math"
	"sort"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Zoom and pitch limits of the warped screen camera.
const (
	MinZoom         = 0.5
	MaxZoom         = 20.0
	MinPitchDegrees = 0.0
	MaxPitchDegrees = 150.0
)

// BlurFalloffMethod selects how foreground/background plane opacity falls
// off with distance from the plane.
type BlurFalloffMethod uint8

const (
	FalloffLinear BlurFalloffMethod = iota
	FalloffQuadratic
	FalloffCubic
	FalloffLogarithmic
	FalloffExponential
)

// renderQualitySteps are the accepted render-quality percentages.
var renderQualitySteps = []int{100, 75, 50, 25, 10}

// AlignRenderQuality snaps a percentage to the nearest accepted step.
func AlignRenderQuality(percent int) int {
	best := renderQualitySteps[0]
	bestDist := math.MaxInt
	for _, s := range renderQualitySteps {
		d := percent - s
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = s
		}
	}
	return best
}

// RealismSettings tunes the camera's depth-cue projection, smoothing, and
// culling behavior.
type RealismSettings struct {
	MinVisibleScreenRatio float64

	// ZoomLow and ZoomHigh bound the scale range mapped onto the pitch
	// ramp.
	ZoomLow  float64
	ZoomHigh float64

	BaseHeightPx float64

	RenderQualityPercent int

	// ParallaxSmoothing is the exponential smoothing rate (per second) of
	// the screen center. Zero snaps immediately.
	ParallaxSmoothing              float64
	ParallaxSmoothingSnapThreshold float64

	ScaleVariantHysteresisMargin float64

	ForegroundTextureMaxOpacity int
	BackgroundTextureMaxOpacity int
	ForegroundPlaneScreenY      float64
	BackgroundPlaneScreenY      float64
	TextureOpacityFalloffMethod BlurFalloffMethod

	ExtraCullMargin float64

	PerspectiveDistanceAtScaleZero    float64
	PerspectiveDistanceAtScaleHundred float64

	HorizonFadeBandPx float64

	PerspectiveScaleGamma float64
}

// DefaultRealismSettings returns the authored defaults.
func DefaultRealismSettings() RealismSettings {
	return RealismSettings{
		MinVisibleScreenRatio:             0.015,
		ZoomLow:                           0.75,
		ZoomHigh:                          3.0,
		BaseHeightPx:                      1000.0,
		RenderQualityPercent:              100,
		ParallaxSmoothing:                 8.0,
		ParallaxSmoothingSnapThreshold:    0.0,
		ScaleVariantHysteresisMargin:      0.05,
		ForegroundTextureMaxOpacity:       255,
		BackgroundTextureMaxOpacity:       255,
		ForegroundPlaneScreenY:            1080.0,
		BackgroundPlaneScreenY:            0.0,
		ExtraCullMargin:                   300.0,
		PerspectiveDistanceAtScaleZero:    1.0,
		PerspectiveDistanceAtScaleHundred: 0.5,
		HorizonFadeBandPx:                 150.0,
		PerspectiveScaleGamma:             2.5,
	}
}

// CameraGeometry is the derived camera rig for one scale value. Cached and
// invalidated when the scale or settings change.
type CameraGeometry struct {
	Valid          bool
	Scale          float64
	CameraHeight   float64
	FocusDepth     float64
	AnchorWorldY   float64
	FocusNDCOffset float64
	PitchRadians   float64
	PitchDegrees   float64
}

// RenderEffects is the per-point projection output consumed by the variant
// selector and the scene renderer.
type RenderEffects struct {
	ScreenPos        FPoint
	VerticalScale    float64
	DistanceScale    float64
	HorizonFadeAlpha float64
}

// Camera is the warped screen grid: it owns the zoom state machine, the
// pitched projection with horizon warp, the smoothed screen center, and the
// per-frame visibility list.
type Camera struct {
	ScreenW, ScreenH int

	Settings RealismSettings

	// DepthEnabled turns on the floor warp and horizon fade. With depth
	// effects off, MapToScreen and ScreenToMap are exact inverses up to
	// integer rounding.
	DepthEnabled bool

	scale         float64
	smoothedScale float64

	zooming     bool
	zoomTween   *gween.Tween
	startScale  float64
	targetScale float64

	screenCenter      Point
	smoothedCenter    FPoint
	centerInitialized bool

	focusOverride      bool
	focusPoint         Point
	manualZoomOverride bool

	geom CameraGeometry

	frame           uint64
	visiblePoints   []*GridPoint
	visibleAssets   []*Asset
	cachedWorldRect Rect
}

// NewCamera creates a camera for the given screen size at scale 1.
func NewCamera(screenW, screenH int) *Camera {
	return &Camera{
		ScreenW:       screenW,
		ScreenH:       screenH,
		Settings:      DefaultRealismSettings(),
		scale:         1.0,
		smoothedScale: 1.0,
	}
}

// Scale returns the current zoom scale (world pixels per screen pixel).
func (c *Camera) Scale() float64 { return c.scale }

// SetScale sets the scale immediately, clamped to [MinZoom, MaxZoom], and
// invalidates the cached geometry.
func (c *Camera) SetScale(s float64) {
	c.scale = clampf(s, MinZoom, MaxZoom)
	c.smoothedScale = c.scale
	c.geom.Valid = false
}

// IsZooming reports whether a zoom animation is in flight.
func (c *Camera) IsZooming() bool { return c.zooming }

// --- Zoom state machine ---

// ZoomToScale starts a zoom animation to the target scale over the given
// number of update steps. Zero or negative steps snap immediately.
func (c *Camera) ZoomToScale(target float64, steps int) {
	target = clampf(target, MinZoom, MaxZoom)
	if steps <= 0 {
		c.SetScale(target)
		c.zooming = false
		c.zoomTween = nil
		return
	}
	c.startScale = c.scale
	c.targetScale = target
	c.zoomTween = gween.New(float32(c.scale), float32(target), float32(steps), ease.Linear)
	c.zooming = true
}

// ZoomToArea zooms so the given world-space area height fills the screen.
func (c *Camera) ZoomToArea(area FRect, steps int) {
	if c.ScreenH <= 0 || area.H <= 0 {
		return
	}
	c.ZoomToScale(area.H/float64(c.ScreenH), steps)
}

// AnimateZoomMultiply scales the current zoom by factor over the given
// steps.
func (c *Camera) AnimateZoomMultiply(factor float64, steps int) {
	c.ZoomToScale(c.scale*factor, steps)
}

// AnimateZoomTowardsPoint zooms by factor while anchoring the world point
// under the given screen point, by installing a focus override.
func (c *Camera) AnimateZoomTowardsPoint(factor float64, screen Point, steps int) {
	world := c.ScreenToMap(FPoint{X: float64(screen.X), Y: float64(screen.Y)})
	c.SetFocusOverride(world)
	c.ZoomToScale(c.scale*factor, steps)
}

// PanAndZoomToPoint focuses the camera on a world point while multiplying
// the zoom.
func (c *Camera) PanAndZoomToPoint(world Point, factor float64, steps int) {
	c.SetFocusOverride(world)
	c.ZoomToScale(c.scale*factor, steps)
}

// PanAndZoomToAsset focuses the camera on an asset's position while
// multiplying the zoom.
func (c *Camera) PanAndZoomToAsset(a *Asset, factor float64, steps int) {
	if a == nil {
		return
	}
	c.PanAndZoomToPoint(a.Pos, factor, steps)
}

// UpdateZoom advances the zoom animation by one step. On completion the
// scale snaps to the target and the machine returns to idle.
func (c *Camera) UpdateZoom() {
	if !c.zooming || c.zoomTween == nil {
		return
	}
	val, done := c.zoomTween.Update(1)
	c.scale = clampf(float64(val), MinZoom, MaxZoom)
	c.geom.Valid = false
	if done {
		c.scale = clampf(c.targetScale, MinZoom, MaxZoom)
		c.zooming = false
		c.zoomTween = nil
	}
}

// --- Focus and overrides ---

// SetFocusOverride aims the smoothed center at a fixed world point instead
// of the player.
func (c *Camera) SetFocusOverride(world Point) {
	c.focusOverride = true
	c.focusPoint = world
}

// ClearFocusOverride returns center tracking to the player.
func (c *Camera) ClearFocusOverride() {
	c.focusOverride = false
}

// HasFocusOverride reports whether a focus override is active.
func (c *Camera) HasFocusOverride() bool { return c.focusOverride }

// FocusOverridePoint returns the override target.
func (c *Camera) FocusOverridePoint() Point { return c.focusPoint }

// SetManualZoomOverride disables automatic per-room default scaling so
// dev-mode pan/zoom doesn't fight the auto-fit.
func (c *Camera) SetManualZoomOverride(enabled bool) {
	c.manualZoomOverride = enabled
}

// IsManualZoomOverride reports whether manual zoom override is active.
func (c *Camera) IsManualZoomOverride() bool { return c.manualZoomOverride }

// SetScreenCenter aims the camera at a world point. With snap, the smoothed
// center jumps immediately; otherwise it eases over the following frames.
func (c *Camera) SetScreenCenter(world Point, snap bool) {
	c.screenCenter = world
	if snap || !c.centerInitialized {
		c.smoothedCenter = FPoint{X: float64(world.X), Y: float64(world.Y)}
		c.centerInitialized = true
	}
}

// SmoothedCenter returns the current smoothed world-space view center.
func (c *Camera) SmoothedCenter() FPoint { return c.smoothedCenter }

// updateSmoothedCenter advances the exponential center smoothing. Jumps
// beyond the snap threshold snap directly.
func (c *Camera) updateSmoothedCenter(dt float64) {
	target := c.screenCenter
	if c.focusOverride {
		target = c.focusPoint
	}
	tx, ty := float64(target.X), float64(target.Y)
	if !c.centerInitialized {
		c.smoothedCenter = FPoint{X: tx, Y: ty}
		c.centerInitialized = true
		return
	}
	dx := tx - c.smoothedCenter.X
	dy := ty - c.smoothedCenter.Y

	thresh := c.Settings.ParallaxSmoothingSnapThreshold
	if c.Settings.ParallaxSmoothing <= 0 ||
		(thresh > 0 && math.Hypot(dx, dy) > thresh) {
		c.smoothedCenter = FPoint{X: tx, Y: ty}
		return
	}
	k := 1 - math.Exp(-c.Settings.ParallaxSmoothing*dt)
	c.smoothedCenter.X += dx * k
	c.smoothedCenter.Y += dy * k
}

// --- Geometry ---

// zoomLerpT maps a scale value into [0, 1] across the settings' zoom range.
func (c *Camera) zoomLerpT(scale float64) float64 {
	lo, hi := c.Settings.ZoomLow, c.Settings.ZoomHigh
	if hi <= lo {
		return 0
	}
	return clamp01((scale - lo) / (hi - lo))
}

// ComputeGeometryForScale derives the camera rig for an arbitrary scale:
// pitch from the monotone zoom map (clamped to [0°, 150°]), camera height,
// focus depth, and the focus NDC offset.
func (c *Camera) ComputeGeometryForScale(scale float64) CameraGeometry {
	t := c.zoomLerpT(scale)
	pitchDeg := clampf(lerp(MinPitchDegrees, MaxPitchDegrees, t), MinPitchDegrees, MaxPitchDegrees)
	pitchRad := pitchDeg * math.Pi / 180
	height := c.Settings.BaseHeightPx * scale
	cos := math.Cos(pitchRad / 2)
	if cos < 0.05 {
		cos = 0.05
	}
	return CameraGeometry{
		Valid:          true,
		Scale:          scale,
		CameraHeight:   height,
		FocusDepth:     height / cos,
		AnchorWorldY:   c.smoothedCenter.Y,
		FocusNDCOffset: t - 0.5,
		PitchRadians:   pitchRad,
		PitchDegrees:   pitchDeg,
	}
}

// Geometry returns the cached rig for the current scale, recomputing it when
// the scale or settings changed.
func (c *Camera) Geometry() CameraGeometry {
	if !c.geom.Valid || c.geom.Scale != c.scale {
		c.geom = c.ComputeGeometryForScale(c.scale)
	}
	return c.geom
}

// InvalidateGeometry drops the cached rig. Call after mutating Settings.
func (c *Camera) InvalidateGeometry() {
	c.geom.Valid = false
}

// HorizonScreenY returns the screen Y at which the pitched floor plane
// recedes to infinity for the current scale. May be off screen (negative)
// when the pitch is shallow.
func (c *Camera) HorizonScreenY() float64 {
	g := c.Geometry()
	pitchNorm := g.PitchDegrees / MaxPitchDegrees
	return float64(c.ScreenH) * (pitchNorm - 0.5)
}

// --- Projection ---

// MapToScreenF projects a float world point to screen space: the linear
// projection plus the floor warp when depth effects are enabled.
func (c *Camera) MapToScreenF(world FPoint) FPoint {
	cx := float64(c.ScreenW) / 2
	cy := float64(c.ScreenH) / 2
	sx := cx + (world.X-c.smoothedCenter.X)/c.scale
	sy := cy + (world.Y-c.smoothedCenter.Y)/c.scale
	if c.DepthEnabled {
		sy = c.WarpFloorScreenY(sy)
	}
	return FPoint{X: sx, Y: sy}
}

// MapToScreen projects an integer world point to screen space.
func (c *Camera) MapToScreen(world Point) FPoint {
	return c.MapToScreenF(FPoint{X: float64(world.X), Y: float64(world.Y)})
}

// ScreenToMap converts a screen point back to world space through the linear
// projection. With depth effects enabled this is an approximation: the
// forward projection blends through the perspective distance while the
// inverse follows the linear path only.
func (c *Camera) ScreenToMap(screen FPoint) Point {
	cx := float64(c.ScreenW) / 2
	cy := float64(c.ScreenH) / 2
	wx := c.smoothedCenter.X + (screen.X-cx)*c.scale
	wy := c.smoothedCenter.Y + (screen.Y-cy)*c.scale
	return Point{X: int(math.Floor(wx + 0.5)), Y: int(math.Floor(wy + 0.5))}
}

// perspectiveDistance returns the blended perspective distance for the
// current scale.
func (c *Camera) perspectiveDistance() float64 {
	return lerp(
		c.Settings.PerspectiveDistanceAtScaleZero,
		c.Settings.PerspectiveDistanceAtScaleHundred,
		c.zoomLerpT(c.scale),
	)
}

// WarpFloorScreenY bends a linear screen Y toward the horizon. The warp
// fraction rises from 0 at the screen bottom to 1 at the horizon.
func (c *Camera) WarpFloorScreenY(linearY float64) float64 {
	h := c.HorizonScreenY()
	bottom := float64(c.ScreenH)
	if bottom <= h || linearY >= bottom {
		return linearY
	}
	f := clamp01((bottom - linearY) / (bottom - h))
	d := c.perspectiveDistance()
	compressed := h + (linearY-h)*d
	return lerp(linearY, compressed, f)
}

// floorWarpFraction returns the warp fraction for a linear screen Y.
func (c *Camera) floorWarpFraction(linearY float64) float64 {
	h := c.HorizonScreenY()
	bottom := float64(c.ScreenH)
	if bottom <= h {
		return 0
	}
	return clamp01((bottom - linearY) / (bottom - h))
}

// HorizonFadeAlpha returns the sprite alpha for a screen Y: 1 below the
// horizon, decaying linearly to 0 across the fade band above it, so sprites
// crossing into the sky dissolve.
func (c *Camera) HorizonFadeAlpha(screenY float64) float64 {
	if !c.DepthEnabled {
		return 1
	}
	h := c.HorizonScreenY()
	band := c.Settings.HorizonFadeBandPx
	if band <= 0 || screenY >= h {
		return 1
	}
	return clamp01(1 - (h-screenY)/band)
}

// ComputeRenderEffects projects a world point and derives the per-point
// depth cues: vertical scale attenuation near the horizon (bent through the
// perspective gamma), distance scale, and horizon fade alpha.
func (c *Camera) ComputeRenderEffects(world Point) RenderEffects {
	pos := c.MapToScreen(world)
	if !c.DepthEnabled {
		return RenderEffects{
			ScreenPos:        pos,
			VerticalScale:    1,
			DistanceScale:    1,
			HorizonFadeAlpha: 1,
		}
	}
	cy := float64(c.ScreenH)/2 + (float64(world.Y)-c.smoothedCenter.Y)/c.scale
	f := c.floorWarpFraction(cy)
	d := c.perspectiveDistance()
	vertical := lerp(1, d, math.Pow(f, c.Settings.PerspectiveScaleGamma))
	return RenderEffects{
		ScreenPos:        pos,
		VerticalScale:    vertical,
		DistanceScale:    vertical,
		HorizonFadeAlpha: c.HorizonFadeAlpha(pos.Y),
	}
}

// --- Grid rebuild ---

// WorldRect returns the world-space rect currently covered by the screen.
func (c *Camera) WorldRect() Rect {
	halfW := float64(c.ScreenW) / 2 * c.scale
	halfH := float64(c.ScreenH) / 2 * c.scale
	return Rect{
		X: int(math.Floor(c.smoothedCenter.X - halfW)),
		Y: int(math.Floor(c.smoothedCenter.Y - halfH)),
		W: int(math.Ceil(halfW * 2)),
		H: int(math.Ceil(halfH * 2)),
	}
}

// RebuildGrid advances the smoothed center, refreshes the world grid's
// active chunk window, projects every active grid point once for this frame,
// and rebuilds the visibility list ordered by (screen Y, z, asset id).
func (c *Camera) RebuildGrid(wg *WorldGrid, dt float64) {
	c.frame++
	c.updateSmoothedCenter(dt)
	c.smoothedScale += (c.scale - c.smoothedScale) * 0.5

	c.cachedWorldRect = c.WorldRect()
	margin := int(c.Settings.ExtraCullMargin)
	wg.UpdateActiveChunks(c.cachedWorldRect, margin)

	c.visiblePoints = c.visiblePoints[:0]
	c.visibleAssets = c.visibleAssets[:0]

	screenRect := FRect{
		X: -c.Settings.ExtraCullMargin,
		Y: -c.Settings.ExtraCullMargin,
		W: float64(c.ScreenW) + 2*c.Settings.ExtraCullMargin,
		H: float64(c.ScreenH) + 2*c.Settings.ExtraCullMargin,
	}
	invScale := 1.0 / c.scale

	for _, chunk := range wg.ActiveChunks() {
		for _, a := range chunk.Assets {
			p := wg.PointForAsset(a)
			if p == nil {
				continue
			}
			if p.Screen.Frame != c.frame || !p.Screen.Valid {
				c.projectPoint(p)
			}
			w := float64(a.W) * invScale
			h := float64(a.H) * invScale
			r := FRect{
				X: p.Screen.Pos.X - w/2,
				Y: p.Screen.Pos.Y - h,
				W: w,
				H: h,
			}
			if !r.Intersects(screenRect) {
				continue
			}
			if !containsPoint(c.visiblePoints, p) {
				c.visiblePoints = append(c.visiblePoints, p)
			}
			c.visibleAssets = append(c.visibleAssets, a)
		}
	}

	sort.SliceStable(c.visibleAssets, func(i, j int) bool {
		ai, aj := c.visibleAssets[i], c.visibleAssets[j]
		pi, pj := wg.PointForAsset(ai), wg.PointForAsset(aj)
		yi, yj := 0.0, 0.0
		if pi != nil {
			yi = pi.Screen.Pos.Y
		}
		if pj != nil {
			yj = pj.Screen.Pos.Y
		}
		if yi != yj {
			return yi < yj
		}
		if ai.Z != aj.Z {
			return ai.Z < aj.Z
		}
		return ai.ID < aj.ID
	})
}

// projectPoint computes and caches a grid point's screen projection for the
// current rebuild frame.
func (c *Camera) projectPoint(p *GridPoint) {
	effects := c.ComputeRenderEffects(p.World)
	p.Screen = ScreenCache{
		Pos:              effects.ScreenPos,
		ParallaxDX:       0,
		VerticalScale:    effects.VerticalScale,
		FadeAlpha:        effects.HorizonFadeAlpha,
		PerspectiveScale: effects.DistanceScale,
		Frame:            c.frame,
		Valid:            true,
	}
}

func containsPoint(list []*GridPoint, p *GridPoint) bool {
	for _, x := range list {
		if x == p {
			return true
		}
	}
	return false
}

// VisibleAssets returns the active asset order produced by the last grid
// rebuild. The returned slice MUST NOT be mutated.
func (c *Camera) VisibleAssets() []*Asset {
	return c.visibleAssets
}

// VisiblePoints returns the grid points visited by the last rebuild. The
// returned slice MUST NOT be mutated.
func (c *Camera) VisiblePoints() []*GridPoint {
	return c.visiblePoints
}

// CachedWorldRect returns the world rect used by the last rebuild.
func (c *Camera) CachedWorldRect() Rect {
	return c.cachedWorldRect
}
