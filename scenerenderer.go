package vibble

import (
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// texelPad insets tile UVs by a fraction of a texel to hide sampling seams
// between warped quads.
const texelPad = 0.01

// SceneRenderer draws one frame of the world: ambient clear, sky band,
// warped floor tiles, sorted sprites, and the darkness overlay.
type SceneRenderer struct {
	Camera     *Camera
	Composites *CompositeRenderer
	DarkMask   *DarkMask

	// AmbientColor is the per-map clear color from the map manifest.
	AmbientColor Color

	// SkyTexture, when set and depth cues are on, fills the band above the
	// horizon.
	SkyTexture *ebiten.Image

	elapsed float64

	verts  []ebiten.Vertex
	inds   []uint32
	lights []lightDraw
	imgOp  ebiten.DrawImageOptions
}

// NewSceneRenderer wires a renderer to its camera and composite source.
func NewSceneRenderer(cam *Camera, composites *CompositeRenderer, mask *DarkMask) *SceneRenderer {
	return &SceneRenderer{
		Camera:       cam,
		Composites:   composites,
		DarkMask:     mask,
		AmbientColor: Color{A: 1},
	}
}

// Render draws the full scene for this frame. The camera's grid rebuild must
// have run first; the sprite pass consumes its visibility order unchanged.
func (sr *SceneRenderer) Render(screen *ebiten.Image, wg *WorldGrid, dt float64) {
	sr.elapsed += dt
	cam := sr.Camera

	screen.Fill(color.NRGBA{
		R: uint8(sr.AmbientColor.R * 255),
		G: uint8(sr.AmbientColor.G * 255),
		B: uint8(sr.AmbientColor.B * 255),
		A: 255,
	})

	if cam.DepthEnabled {
		sr.renderSky(screen)
	}
	sr.renderTiles(screen, wg)
	sr.renderSprites(screen, wg)

	if sr.DarkMask != nil {
		sr.DarkMask.Render(screen, sr.lights)
	}
}

// renderSky fills the band above the horizon with the sky texture scaled to
// screen width, bottom edge sitting on the horizon line.
func (sr *SceneRenderer) renderSky(screen *ebiten.Image) {
	if sr.SkyTexture == nil {
		return
	}
	h := sr.Camera.HorizonScreenY()
	if h <= 0 {
		return
	}
	b := sr.SkyTexture.Bounds()
	sw, sh := float64(b.Dx()), float64(b.Dy())
	if sw == 0 || sh == 0 {
		return
	}
	scale := float64(sr.Camera.ScreenW) / sw
	op := &sr.imgOp
	op.GeoM.Reset()
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(0, h-sh*scale)
	op.ColorScale.Reset()
	op.Blend = BlendNormal.EbitenBlend()
	screen.DrawImage(sr.SkyTexture, op)
}

// renderTiles draws every active chunk's floor tiles as warped quads: the
// four world corners run through the camera's floor warp, floored to whole
// pixels, and the UVs are padded inward to hide seams.
func (sr *SceneRenderer) renderTiles(screen *ebiten.Image, wg *WorldGrid) {
	cam := sr.Camera
	for _, chunk := range wg.ActiveChunks() {
		for _, tile := range chunk.Tiles {
			if tile.Texture == nil {
				continue
			}
			sr.verts = sr.verts[:0]
			sr.inds = sr.inds[:0]
			sr.appendWarpedQuad(cam, tile)
			var op ebiten.DrawTrianglesOptions
			op.ColorScaleMode = ebiten.ColorScaleModePremultipliedAlpha
			screen.DrawTriangles32(sr.verts, sr.inds, tile.Texture, &op)
		}
	}
}

// appendWarpedQuad projects a tile's four corners and emits two triangles.
func (sr *SceneRenderer) appendWarpedQuad(cam *Camera, tile ChunkTile) {
	r := tile.Bounds
	corners := [4]Point{
		{X: r.X, Y: r.Y},             // TL
		{X: r.X + r.W, Y: r.Y},       // TR
		{X: r.X, Y: r.Y + r.H},       // BL
		{X: r.X + r.W, Y: r.Y + r.H}, // BR
	}

	b := tile.Texture.Bounds()
	tw, th := float32(b.Dx()), float32(b.Dy())
	pad := float32(texelPad)
	su := [4]float32{pad, tw - pad, pad, tw - pad}
	sv := [4]float32{pad, pad, th - pad, th - pad}

	base := uint32(len(sr.verts))
	for i, c := range corners {
		p := cam.MapToScreen(c)
		sr.verts = append(sr.verts, ebiten.Vertex{
			DstX:   float32(math.Floor(p.X)),
			DstY:   float32(math.Floor(p.Y)),
			SrcX:   su[i],
			SrcY:   sv[i],
			ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1,
		})
	}
	sr.inds = append(sr.inds,
		base+0, base+1, base+2,
		base+1, base+3, base+2,
	)
}

// renderSprites draws every visible asset in the camera's order, collecting
// light carve sprites for the dark-mask pass.
func (sr *SceneRenderer) renderSprites(screen *ebiten.Image, wg *WorldGrid) {
	cam := sr.Camera
	sr.lights = sr.lights[:0]
	invScale := 1.0 / cam.Scale()

	for _, a := range cam.VisibleAssets() {
		if !a.Visible || a.IsDeleted() {
			continue
		}
		p := wg.PointForAsset(a)
		if p == nil || !p.Screen.Valid {
			continue
		}
		if a.Tiling.IsValid() {
			sr.renderTiledAsset(screen, a, invScale)
			continue
		}
		sr.renderPackage(screen, a, p.Screen, invScale)
	}
}

// renderPackage draws one asset's package anchored at its cached screen
// position.
func (sr *SceneRenderer) renderPackage(screen *ebiten.Image, a *Asset, sc ScreenCache, invScale float64) {
	pkg := sr.Composites.BuildPackage(a, sr.elapsed)
	for _, obj := range pkg.Objects {
		if obj.IsLightMask {
			if obj.Blend == BlendCarve || obj.Blend == BlendAdd {
				w := obj.Rect.W * invScale
				h := obj.Rect.H * invScale
				sr.lights = append(sr.lights, lightDraw{
					Texture:   obj.Texture,
					X:         sc.Pos.X + (obj.Rect.X+obj.Rect.W/2)*invScale,
					Y:         sc.Pos.Y + (obj.Rect.Y+obj.Rect.H/2)*invScale,
					W:         w,
					H:         h,
					Intensity: sc.FadeAlpha,
				})
			}
			continue
		}
		sr.drawObject(screen, obj, sc, invScale)
	}
}

// drawObject maps one render object into screen space and draws it. Vertical
// and perspective scales from the point's projection shrink sprites near the
// horizon; the fade alpha dissolves them into the sky band.
func (sr *SceneRenderer) drawObject(screen *ebiten.Image, obj RenderObject, sc ScreenCache, invScale float64) {
	if obj.Texture == nil {
		return
	}
	b := obj.Texture.Bounds()
	tw, th := float64(b.Dx()), float64(b.Dy())
	if tw == 0 || th == 0 {
		return
	}

	w := obj.Rect.W * invScale * sc.PerspectiveScale
	h := obj.Rect.H * invScale * sc.PerspectiveScale * sc.VerticalScale
	x := sc.Pos.X + obj.Rect.X*invScale*sc.PerspectiveScale
	y := sc.Pos.Y + obj.Rect.Y*invScale*sc.PerspectiveScale*sc.VerticalScale

	op := &sr.imgOp
	op.GeoM.Reset()
	sx, sy := w/tw, h/th
	tx, ty := x, y
	if obj.FlipH {
		sx = -sx
		tx += w
	}
	if obj.FlipV {
		sy = -sy
		ty += h
	}
	op.GeoM.Scale(sx, sy)
	if obj.Angle != 0 {
		op.GeoM.Translate(-obj.Center.X*w, -obj.Center.Y*h)
		op.GeoM.Rotate(obj.Angle)
		op.GeoM.Translate(obj.Center.X*w, obj.Center.Y*h)
	}
	op.GeoM.Translate(tx, ty)

	alpha := sc.FadeAlpha
	op.ColorScale.Reset()
	op.ColorScale.Scale(
		float32(obj.ColorMod.R*alpha),
		float32(obj.ColorMod.G*alpha),
		float32(obj.ColorMod.B*alpha),
		float32(obj.ColorMod.A*alpha),
	)
	op.Blend = obj.Blend.EbitenBlend()
	screen.DrawImage(obj.Texture, op)
}

// renderTiledAsset repeats a decorative asset across its coverage rect,
// anchored to the tiling grid. Each repetition projects independently so the
// floor warp bends the whole field consistently.
func (sr *SceneRenderer) renderTiledAsset(screen *ebiten.Image, a *Asset, invScale float64) {
	t := a.Tiling
	cam := sr.Camera
	startX := t.Coverage.X - floorMod(t.Coverage.X-t.GridOrigin.X, t.TileW)
	startY := t.Coverage.Y - floorMod(t.Coverage.Y-t.GridOrigin.Y, t.TileH)

	pkg := sr.Composites.BuildPackage(a, sr.elapsed)
	for wy := startY; wy < t.Coverage.Y+t.Coverage.H; wy += t.TileH {
		for wx := startX; wx < t.Coverage.X+t.Coverage.W; wx += t.TileW {
			effects := cam.ComputeRenderEffects(Point{X: wx + t.Anchor.X, Y: wy + t.Anchor.Y})
			sc := ScreenCache{
				Pos:              effects.ScreenPos,
				VerticalScale:    effects.VerticalScale,
				FadeAlpha:        effects.HorizonFadeAlpha,
				PerspectiveScale: effects.DistanceScale,
				Valid:            true,
			}
			for _, obj := range pkg.Objects {
				if obj.IsLightMask {
					continue
				}
				sr.drawObject(screen, obj, sc, invScale)
			}
		}
	}
}

// floorMod returns a mod b with the sign of b, matching the grid's
// floor-consistent quantization.
func floorMod(a, b int) int {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}
