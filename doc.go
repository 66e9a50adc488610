// Package vibble is the core of a 2D game engine built on [Ebitengine],
// organized around a warped camera, a chunked spatial grid, and a
// per-asset animation/composite renderer.
//
// The engine loads authored asset definitions (sprites with multi-variant
// scale stacks, multi-path animations, hit/attack geometry, attached child
// assets, and optional point lights), places them in a world keyed by a
// chunked integer grid, and every frame computes which assets are visible,
// where they project on a pitched/horizon-warped screen, what textures and
// lights compose each asset's current frame, and what darkness-overlay and
// depth-cue blending to apply.
//
// # Quick start
//
// Embed an [AssetsManager] in your ebiten.Game:
//
//	cam := vibble.NewCamera(1280, 720)
//	world := vibble.NewWorldGrid(vibble.Point{}, 8)
//	mgr := vibble.NewAssetsManager(cam, world, vibble.NewLibrary(nil))
//	mgr.Library.Register(heroInfo)
//	mgr.Player = mgr.SpawnAsset("hero", vibble.Point{X: 100, Y: 100})
//
//	type Game struct{ mgr *vibble.AssetsManager }
//
//	func (g *Game) Update() error         { g.mgr.Update(1.0 / 60); return nil }
//	func (g *Game) Draw(s *ebiten.Image)  { g.mgr.Render(s) }
//	func (g *Game) Layout(w, h int) (int, int) { return 1280, 720 }
//
// # World model
//
// Every [Asset] lives in exactly one [GridPoint], the owning cell of the
// [WorldGrid]. Grid points group into [Chunk]s for active-window culling.
// All other references (chunk lists, visibility lists, child links) are
// non-owning and routed through the manager's removal queue, so no frame
// ever observes a dangling asset.
//
// # Camera
//
// The [Camera] projects integer world points onto a pitched, horizon-warped
// screen. Zoom animates through a step-driven tween (via [gween]); the
// screen center follows the player through exponential smoothing.
//
// [Ebitengine]: https://ebitengine.org
// [gween]: https://github.com/tanema/gween
package vibble
