package vibble

import "testing"

func newTestManager() *AssetsManager {
	cam := NewCamera(800, 600)
	cam.SetScreenCenter(Point{}, true)
	wg := NewWorldGrid(Point{}, 8)
	lib := NewLibrary(nil)
	lib.Register(&AssetInfo{Name: "crate", CanvasW: 32, CanvasH: 32})
	return NewAssetsManager(cam, wg, lib)
}

func TestSpawnAssetUnknownName(t *testing.T) {
	m := newTestManager()
	if a := m.SpawnAsset("ghost", Point{}); a != nil {
		t.Errorf("spawn of unknown asset = %v, want nil", a)
	}
}

func TestSpawnAssetRegisters(t *testing.T) {
	m := newTestManager()
	a := m.SpawnAsset("crate", Point{X: 50, Y: 50})
	if a == nil {
		t.Fatal("spawn returned nil")
	}
	if m.World.PointForAsset(a) == nil {
		t.Error("spawned asset not in the world grid")
	}
	m.rebuildLists()
	if len(m.Assets()) != 1 {
		t.Errorf("asset list = %d, want 1", len(m.Assets()))
	}
}

func TestProcessRemovalsEmptyQueue(t *testing.T) {
	m := newTestManager()
	if m.ProcessRemovals() {
		t.Error("ProcessRemovals = true on an empty queue")
	}
}

func TestScheduleRemovalDefersDestruction(t *testing.T) {
	m := newTestManager()
	a := m.SpawnAsset("crate", Point{X: 10, Y: 10})

	m.ScheduleRemoval(a)
	if !a.IsDeleted() {
		t.Error("asset not marked deleted after scheduling")
	}
	// Still in the grid until the queue drains.
	if m.World.PointForAsset(a) == nil {
		t.Fatal("asset left the grid before the drain point")
	}

	if !m.ProcessRemovals() {
		t.Fatal("ProcessRemovals = false with a queued removal")
	}
	if m.World.PointForAsset(a) != nil {
		t.Error("asset still in the grid after the drain")
	}
	if m.ProcessRemovals() {
		t.Error("second drain reported work")
	}
}

func TestUpdateAppliesAnimationMovement(t *testing.T) {
	m := newTestManager()
	walk := makeAnimation("default", []FrameDelta{{DX: 2}, {DX: 2}})
	walk.Loop = true
	m.Library.Register(&AssetInfo{
		Name:       "walker",
		CanvasW:    16,
		CanvasH:    16,
		Animations: map[string]*Animation{"default": walk},
	})

	a := m.SpawnAsset("walker", Point{X: 0, Y: 0})
	// Rate 10 fps, dt 0.1 advances exactly one frame.
	m.Update(0.1)
	if a.Pos.X != 2 {
		t.Errorf("pos X after one frame = %d, want 2", a.Pos.X)
	}
	if m.World.PointForAsset(a) == nil {
		t.Error("asset lost grid ownership after movement")
	}
}

func TestUpdateClampsDT(t *testing.T) {
	m := newTestManager()
	walk := makeAnimation("default", []FrameDelta{{DX: 1}})
	walk.Loop = true
	m.Library.Register(&AssetInfo{
		Name:       "walker",
		CanvasW:    16,
		CanvasH:    16,
		Animations: map[string]*Animation{"default": walk},
	})
	a := m.SpawnAsset("walker", Point{})

	// An hour-long stall clamps to 0.25s: at 10 fps that is 2 frames
	// worth of movement at most, not 36000.
	m.Update(3600)
	if a.Pos.X > 3 {
		t.Errorf("pos X after clamped update = %d, want <= 3", a.Pos.X)
	}
}

func TestUpdateParallelNonPlayers(t *testing.T) {
	m := newTestManager()
	walk := makeAnimation("default", []FrameDelta{{DX: 1}, {DX: 1}})
	walk.Loop = true
	m.Library.Register(&AssetInfo{
		Name:       "walker",
		CanvasW:    16,
		CanvasH:    16,
		Animations: map[string]*Animation{"default": walk},
	})

	// Enough assets to cross the fan-out threshold.
	var assets []*Asset
	for i := 0; i < parallelUpdateThreshold*3; i++ {
		assets = append(assets, m.SpawnAsset("walker", Point{X: i * 40, Y: 0}))
	}

	m.Update(0.1)
	for i, a := range assets {
		if a.Pos.X != i*40+1 {
			t.Fatalf("asset %d pos X = %d, want %d", i, a.Pos.X, i*40+1)
		}
	}
}

func TestPlayerUpdatesCameraCenter(t *testing.T) {
	m := newTestManager()
	m.Camera.Settings.ParallaxSmoothing = 0 // snap
	p := m.SpawnAsset("crate", Point{X: 300, Y: -200})
	m.Player = p

	m.Update(0.016)
	c := m.Camera.SmoothedCenter()
	if !approxEqual(c.X, 300, epsilon) || !approxEqual(c.Y, -200, epsilon) {
		t.Errorf("camera center = %v, want player position", c)
	}
}

func TestLightSetDiffing(t *testing.T) {
	m := newTestManager()
	m.Library.Register(&AssetInfo{
		Name:        "torch",
		CanvasW:     16,
		CanvasH:     16,
		MovingAsset: true,
		// No radius so spawn never touches texture generation.
		Lights: []LightSource{{OffsetX: 0, OffsetY: -8}},
	})

	var movingEvents int
	m.OnMovingLightChanged = func(*Asset) { movingEvents++ }

	torch := m.SpawnAsset("torch", Point{X: 0, Y: 0})
	m.Update(0.016)
	if movingEvents != 1 {
		t.Fatalf("moving light events = %d, want 1 after entering view", movingEvents)
	}

	m.ScheduleRemoval(torch)
	m.Update(0.016)
	if movingEvents != 2 {
		t.Errorf("moving light events = %d, want 2 after leaving", movingEvents)
	}
}

func TestApplyMapSettings(t *testing.T) {
	m := newTestManager()
	settings, err := ParseMapManifest([]byte(`{
		"maps": {"cave": {
			"map_light_data": {"map_color": [5, 6, 7], "intensity": 51},
			"map_grid_settings": {"r_chunk": 9}
		}}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	m.ApplyMapSettings(settings["cave"])
	if m.World.ChunkResolution() != 9 {
		t.Errorf("chunk resolution = %d, want 9", m.World.ChunkResolution())
	}
	if !approxEqual(m.Renderer.AmbientColor.R, 5.0/255, epsilon) {
		t.Errorf("ambient = %+v", m.Renderer.AmbientColor)
	}
	if !approxEqual(m.Renderer.DarkMask.Opacity, 0.2, epsilon) {
		t.Errorf("mask opacity = %f, want 0.2", m.Renderer.DarkMask.Opacity)
	}
}
