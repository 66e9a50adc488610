package vibble

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/sync/errgroup"
)

// maxFrameDT clamps the frame delta so a stalled process doesn't teleport
// every asset on resume.
const maxFrameDT = 0.25

// parallelUpdateThreshold is the minimum non-player buffer size before the
// update fans out across workers.
const parallelUpdateThreshold = 16

// AssetsManager owns the camera, world grid, renderers, and library, and
// drives the per-frame pipeline: removals, animation updates, movement
// apply, camera rebuild, light diffing, render.
type AssetsManager struct {
	Camera     *Camera
	World      *WorldGrid
	Library    *Library
	Renderer   *SceneRenderer
	Composites *CompositeRenderer
	Audio      *AudioEngine

	// Player is updated serially before the non-player fan-out and drives
	// the camera center.
	Player *Asset

	// OnStaticLightsChanged fires when the set of static light-carrying
	// assets changed this frame. OnMovingLightChanged fires per asset
	// whose moving light entered or left the active set.
	OnStaticLightsChanged func()
	OnMovingLightChanged  func(*Asset)

	removalMu sync.Mutex
	removals  []*Asset

	// spawnMu serializes spawns triggered from parallel child-timeline
	// initialization. All other grid mutation happens on the game thread.
	spawnMu sync.Mutex

	lastDT float64

	all             []*Asset
	nonPlayerBuffer []*Asset

	activeDirty    atomic.Bool
	nonPlayerDirty atomic.Bool

	staticLights map[uint64]*Asset
	movingLights map[uint64]*Asset
}

// NewAssetsManager wires the engine subsystems for one map.
func NewAssetsManager(cam *Camera, world *WorldGrid, lib *Library) *AssetsManager {
	composites := NewCompositeRenderer()
	mask := NewDarkMask(cam.ScreenW, cam.ScreenH, defaultMapLightOpacity)
	m := &AssetsManager{
		Camera:       cam,
		World:        world,
		Library:      lib,
		Composites:   composites,
		Renderer:     NewSceneRenderer(cam, composites, mask),
		staticLights: make(map[uint64]*Asset),
		movingLights: make(map[uint64]*Asset),
	}
	m.activeDirty.Store(true)
	m.nonPlayerDirty.Store(true)
	return m
}

// ApplyMapSettings configures the grid, ambient color, and dark mask from a
// parsed manifest entry.
func (m *AssetsManager) ApplyMapSettings(ms *MapSettings) {
	if ms == nil {
		return
	}
	m.World.SetChunkResolution(ms.Grid.ChunkResolution)
	m.Renderer.AmbientColor = ms.Light.MapColor
	if m.Renderer.DarkMask != nil {
		m.Renderer.DarkMask.Opacity = ms.Light.Opacity
	}
}

// SpawnAsset creates an instance of a library definition at a world
// position and registers it with the grid. Returns nil when the library has
// no such asset.
func (m *AssetsManager) SpawnAsset(name string, pos Point) *Asset {
	info := m.Library.Info(name)
	if info == nil {
		log.Printf("vibble: spawn %q: asset not found", name)
		return nil
	}
	a := NewAsset(info, pos)
	a.runtime.spawnChild = m.spawnChild

	m.spawnMu.Lock()
	m.ensureLightTextures(info)
	m.World.RegisterAsset(a)
	m.spawnMu.Unlock()

	// Re-run attachment setup now that lazy child spawning is available.
	a.runtime.RebuildChildAttachments()
	m.markDirty()
	return a
}

// spawnChild is the lazy child factory handed to animation runtimes.
func (m *AssetsManager) spawnChild(name string, pos Point) *Asset {
	return m.SpawnAsset(name, pos)
}

// ensureLightTextures fills in generated circle textures for lights authored
// without one.
func (m *AssetsManager) ensureLightTextures(info *AssetInfo) {
	mask := m.Renderer.DarkMask
	if mask == nil {
		return
	}
	for i := range info.Lights {
		l := &info.Lights[i]
		if l.Texture == nil && l.Radius > 0 {
			l.Texture = mask.CircleTexture(l.Radius)
		}
	}
}

// ScheduleRemoval queues an asset for destruction. Safe from any goroutine;
// the queue drains at a fixed point in the next update.
func (m *AssetsManager) ScheduleRemoval(a *Asset) {
	if a == nil {
		return
	}
	a.Delete()
	m.removalMu.Lock()
	m.removals = append(m.removals, a)
	m.removalMu.Unlock()
}

// ProcessRemovals drains the removal queue: each queued asset leaves the
// grid, frees its composite, and drops out of the light sets. Returns false
// when the queue was empty.
func (m *AssetsManager) ProcessRemovals() bool {
	m.removalMu.Lock()
	queued := m.removals
	m.removals = nil
	m.removalMu.Unlock()

	if len(queued) == 0 {
		return false
	}
	// Light sets are left alone here: the next diffLightSets pass sees the
	// asset gone from the visible set and fires the leave notification.
	for _, a := range queued {
		m.World.RemoveAsset(a)
		m.Composites.ReleaseComposite(a)
		if a == m.Player {
			m.Player = nil
		}
	}
	m.markDirty()
	return true
}

// markDirty flags the flat and non-player lists for rebuild.
func (m *AssetsManager) markDirty() {
	m.activeDirty.Store(true)
	m.nonPlayerDirty.Store(true)
}

// rebuildLists refreshes the flat asset list and the non-player update
// buffer when dirty.
func (m *AssetsManager) rebuildLists() {
	if m.activeDirty.Load() {
		m.all = m.World.AllAssets()
		m.activeDirty.Store(false)
	}
	if m.nonPlayerDirty.Load() {
		m.nonPlayerBuffer = m.nonPlayerBuffer[:0]
		for _, a := range m.all {
			if a != m.Player && !a.IsDeleted() {
				m.nonPlayerBuffer = append(m.nonPlayerBuffer, a)
			}
		}
		m.nonPlayerDirty.Store(false)
	}
}

// updateOne runs one asset's per-frame pipeline: scale selection, then
// animation advance. Movement lands in the asset's pending deltas; nothing
// shared is touched, so workers may run these concurrently.
func (m *AssetsManager) updateOne(a *Asset, dt float64) {
	effects := m.Camera.ComputeRenderEffects(a.Pos)
	a.runtime.UpdateScaleValues(effects, m.Camera.Settings.ScaleVariantHysteresisMargin)
	a.runtime.Update(dt)
}

// Update advances the whole engine by one frame. dt is clamped to
// [0, maxFrameDT] seconds.
func (m *AssetsManager) Update(dt float64) {
	if dt < 0 {
		dt = 0
	} else if dt > maxFrameDT {
		dt = maxFrameDT
	}

	m.lastDT = dt
	m.ProcessRemovals()
	m.rebuildLists()

	// Warm the geometry cache so the parallel step reads it immutably.
	m.Camera.Geometry()

	if m.Player != nil && !m.Player.IsDeleted() {
		m.updateOne(m.Player, dt)
	}

	m.updateNonPlayers(dt)
	m.applyMovement()

	if m.Player != nil {
		m.Camera.SetScreenCenter(m.Player.Pos, false)
	}
	m.Camera.UpdateZoom()
	m.Camera.RebuildGrid(m.World, dt)

	m.diffLightSets()
}

// updateNonPlayers advances every non-player asset, fanning out across
// workers when the buffer is large enough.
func (m *AssetsManager) updateNonPlayers(dt float64) {
	buf := m.nonPlayerBuffer
	workers := runtime.NumCPU()
	if len(buf) < parallelUpdateThreshold || workers < 2 {
		for _, a := range buf {
			m.updateOne(a, dt)
		}
		return
	}

	var g errgroup.Group
	shard := (len(buf) + workers - 1) / workers
	for start := 0; start < len(buf); start += shard {
		end := start + shard
		if end > len(buf) {
			end = len(buf)
		}
		part := buf[start:end]
		g.Go(func() error {
			for _, a := range part {
				m.updateOne(a, dt)
			}
			return nil
		})
	}
	// Workers never return errors; Wait is the join point.
	_ = g.Wait()
}

// applyMovement drains each asset's pending deltas into the world grid, in
// buffer order so movement resolution stays deterministic.
func (m *AssetsManager) applyMovement() {
	apply := func(a *Asset) {
		dx, dy := a.takePendingMovement()
		if dx == 0 && dy == 0 {
			return
		}
		oldPos := a.Pos
		m.World.MoveAsset(a, oldPos, Point{X: oldPos.X + dx, Y: oldPos.Y + dy})
	}
	if m.Player != nil && !m.Player.IsDeleted() {
		apply(m.Player)
	}
	for _, a := range m.nonPlayerBuffer {
		apply(a)
	}
}

// diffLightSets recomputes the static and moving light sets from the
// camera's visible assets and fires the change callbacks.
func (m *AssetsManager) diffLightSets() {
	newStatic := make(map[uint64]*Asset)
	newMoving := make(map[uint64]*Asset)
	for _, a := range m.Camera.VisibleAssets() {
		if a.Info == nil || len(a.Info.Lights) == 0 {
			continue
		}
		if a.Info.MovingAsset {
			newMoving[a.ID] = a
		} else {
			newStatic[a.ID] = a
		}
	}

	if !sameLightSet(m.staticLights, newStatic) {
		m.staticLights = newStatic
		if m.OnStaticLightsChanged != nil {
			m.OnStaticLightsChanged()
		}
	} else {
		m.staticLights = newStatic
	}

	for id, a := range newMoving {
		if _, ok := m.movingLights[id]; !ok && m.OnMovingLightChanged != nil {
			m.OnMovingLightChanged(a)
		}
	}
	for id, a := range m.movingLights {
		if _, ok := newMoving[id]; !ok && m.OnMovingLightChanged != nil {
			m.OnMovingLightChanged(a)
		}
	}
	m.movingLights = newMoving
}

func sameLightSet(a, b map[uint64]*Asset) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// PlayClip plays a clip positioned at an asset relative to the camera
// center, using the screen's world width as the attenuation range.
func (m *AssetsManager) PlayClip(clip *Clip, a *Asset) bool {
	if m.Audio == nil || clip == nil {
		return false
	}
	listener := Point{
		X: int(m.Camera.SmoothedCenter().X),
		Y: int(m.Camera.SmoothedCenter().Y),
	}
	maxDist := float64(m.Camera.ScreenW) * m.Camera.Scale()
	if a == nil {
		return m.Audio.Play(clip)
	}
	return m.Audio.PlayAt(clip, a.Pos, listener, maxDist)
}

// Render draws the frame through the scene renderer.
func (m *AssetsManager) Render(screen *ebiten.Image) {
	m.Renderer.Render(screen, m.World, m.lastDT)
}

// Assets returns the flat asset list from the last rebuild. The returned
// slice MUST NOT be mutated.
func (m *AssetsManager) Assets() []*Asset {
	return m.all
}
