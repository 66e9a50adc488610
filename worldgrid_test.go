package vibble

import "testing"

func newTestAsset(pos Point) *Asset {
	return NewAsset(&AssetInfo{Name: "prop", CanvasW: 16, CanvasH: 16}, pos)
}

func TestRegisterAssetCreatesPointAndChunk(t *testing.T) {
	wg := NewWorldGrid(Point{}, 4)
	a := newTestAsset(Point{X: 10, Y: 10})
	wg.RegisterAsset(a)

	p := wg.PointForAsset(a)
	if p == nil {
		t.Fatal("PointForAsset = nil after register")
	}
	if len(p.Occupants()) != 1 || p.Occupants()[0] != a {
		t.Fatalf("occupants = %v, want [a]", p.Occupants())
	}
	if wg.ChunkForAsset(a) != p.Chunk {
		t.Error("residency chunk differs from the point's chunk")
	}
	if a.GridID != p.ID {
		t.Errorf("asset GridID = %d, want %d", a.GridID, p.ID)
	}
}

func TestMoveAssetSameCell(t *testing.T) {
	// Chunk resolution 4 gives a chunk step of 16: (10,10) and (12,12)
	// stay in the same chunk even though the fine grid cell changes.
	wg := NewWorldGrid(Point{}, 4)
	a := newTestAsset(Point{X: 10, Y: 10})
	wg.RegisterAsset(a)
	chunkBefore := wg.ChunkForAsset(a)

	wg.MoveAsset(a, Point{X: 10, Y: 10}, Point{X: 12, Y: 12})

	p := wg.PointForAsset(a)
	if p == nil {
		t.Fatal("PointForAsset = nil after move")
	}
	if p.World != (Point{X: 12, Y: 12}) {
		t.Errorf("point world = %v, want (12,12)", p.World)
	}
	if len(p.Occupants()) != 1 {
		t.Errorf("occupants = %d, want 1", len(p.Occupants()))
	}
	if wg.ChunkForAsset(a) != chunkBefore {
		t.Error("chunk changed on a same-chunk move")
	}
	if len(chunkBefore.Assets) != 1 {
		t.Errorf("chunk asset list = %d, want 1", len(chunkBefore.Assets))
	}
}

func TestMoveAssetSameGridCellKeepsID(t *testing.T) {
	// rChunk 8 gives rGrid 4 (step 16): (10,10) and (12,12) share a grid
	// cell, so the point id must not change and no duplicates appear.
	wg := NewWorldGrid(Point{}, 8)
	a := newTestAsset(Point{X: 10, Y: 10})
	wg.RegisterAsset(a)
	idBefore := a.GridID

	wg.MoveAsset(a, Point{X: 10, Y: 10}, Point{X: 12, Y: 12})

	if a.GridID != idBefore {
		t.Errorf("grid id changed: %d -> %d", idBefore, a.GridID)
	}
	p := wg.PointForAsset(a)
	if p.World != (Point{X: 12, Y: 12}) {
		t.Errorf("point world = %v, want (12,12)", p.World)
	}
	if len(p.Occupants()) != 1 {
		t.Errorf("occupants = %d, want 1", len(p.Occupants()))
	}
}

func TestMoveAssetAcrossCells(t *testing.T) {
	wg := NewWorldGrid(Point{}, 8) // grid step 16
	a := newTestAsset(Point{X: 0, Y: 0})
	wg.RegisterAsset(a)
	oldID := a.GridID

	wg.MoveAsset(a, Point{X: 0, Y: 0}, Point{X: 40, Y: 0})

	if a.GridID == oldID {
		t.Error("grid id unchanged after crossing a cell boundary")
	}
	if wg.PointForID(oldID) != nil {
		t.Error("old point not pruned after it emptied")
	}
	if got := len(wg.PointForAsset(a).Occupants()); got != 1 {
		t.Errorf("occupants = %d, want 1", got)
	}
}

func TestMoveUnknownAssetRegisters(t *testing.T) {
	wg := NewWorldGrid(Point{}, 8)
	a := newTestAsset(Point{X: 0, Y: 0})
	wg.MoveAsset(a, Point{}, Point{X: 33, Y: 7})
	if wg.PointForAsset(a) == nil {
		t.Fatal("moving an unknown asset did not register it")
	}
	if a.Pos != (Point{X: 33, Y: 7}) {
		t.Errorf("pos = %v, want (33,7)", a.Pos)
	}
}

func TestRegisterThenRemoveRestoresState(t *testing.T) {
	wg := NewWorldGrid(Point{}, 8)
	a := newTestAsset(Point{X: 100, Y: 100})
	wg.RegisterAsset(a)
	wg.RemoveAsset(a)

	if len(wg.Points()) != 0 {
		t.Errorf("points = %d, want 0", len(wg.Points()))
	}
	if wg.PointForAsset(a) != nil {
		t.Error("PointForAsset non-nil after removal")
	}
	if wg.ChunkForAsset(a) != nil {
		t.Error("ChunkForAsset non-nil after removal")
	}
	wg.Chunks().Each(func(c *Chunk) {
		if len(c.Assets) != 0 {
			t.Errorf("chunk (%d,%d) still holds %d assets", c.I, c.J, len(c.Assets))
		}
	})
}

func TestOwnershipInvariant(t *testing.T) {
	wg := NewWorldGrid(Point{}, 8)
	assets := []*Asset{
		newTestAsset(Point{X: 0, Y: 0}),
		newTestAsset(Point{X: 5, Y: 5}), // same cell as the first
		newTestAsset(Point{X: 100, Y: -200}),
	}
	for _, a := range assets {
		wg.RegisterAsset(a)
	}

	for _, a := range assets {
		owners := 0
		for _, p := range wg.Points() {
			for _, occ := range p.Occupants() {
				if occ == a {
					owners++
				}
			}
		}
		if owners != 1 {
			t.Errorf("asset %d owned by %d points, want 1", a.ID, owners)
		}
		p := wg.PointForAsset(a)
		if p == nil || wg.ChunkForAsset(a) != p.Chunk {
			t.Errorf("asset %d: index tables disagree with ownership", a.ID)
		}
	}
}

func TestUpdateActiveChunksCaching(t *testing.T) {
	wg := NewWorldGrid(Point{}, 8)
	for i := 0; i < 5; i++ {
		wg.RegisterAsset(newTestAsset(Point{X: i * 300, Y: 0}))
	}

	window := Rect{X: 0, Y: 0, W: 800, H: 600}
	if !wg.UpdateActiveChunks(window, 300) {
		t.Fatal("first UpdateActiveChunks did no work")
	}
	first := append([]*Chunk(nil), wg.ActiveChunks()...)

	if wg.UpdateActiveChunks(window, 300) {
		t.Error("second identical UpdateActiveChunks rebuilt the list")
	}
	second := wg.ActiveChunks()
	if len(first) != len(second) {
		t.Fatalf("active list changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("active list contents changed on a cached call")
		}
	}

	if !wg.UpdateActiveChunks(window.Expand(10), 300) {
		t.Error("changed window did not rebuild")
	}
}

func TestNewChunkJoinsActiveWindow(t *testing.T) {
	// rChunk 8 gives a chunk step of 256. An asset walking from chunk
	// (0,0) into the not-yet-created chunk (1,1) must show up in the
	// active list even though the camera window never moved.
	wg := NewWorldGrid(Point{}, 8)
	a := newTestAsset(Point{X: 10, Y: 10})
	wg.RegisterAsset(a)

	window := Rect{X: -500, Y: -500, W: 1000, H: 1000}
	if !wg.UpdateActiveChunks(window, 0) {
		t.Fatal("first UpdateActiveChunks did no work")
	}

	wg.MoveAsset(a, a.Pos, Point{X: 300, Y: 300})
	if !wg.UpdateActiveChunks(window, 0) {
		t.Fatal("UpdateActiveChunks kept the cache after a chunk was created")
	}
	found := false
	for _, c := range wg.ActiveChunks() {
		if c == wg.ChunkForAsset(a) {
			found = true
		}
	}
	if !found {
		t.Error("freshly created chunk missing from the active window")
	}
}

func TestChunkResolutionChangePreservesAssets(t *testing.T) {
	wg := NewWorldGrid(Point{}, 8)
	var assets []*Asset
	for i := 0; i < 10; i++ {
		a := newTestAsset(Point{X: i * 123, Y: i * -77})
		wg.RegisterAsset(a)
		assets = append(assets, a)
	}

	wg.SetChunkResolution(5)

	if got := len(wg.AllAssets()); got != len(assets) {
		t.Fatalf("assets after resolution change = %d, want %d", got, len(assets))
	}
	for _, a := range assets {
		p := wg.PointForAsset(a)
		if p == nil {
			t.Fatalf("asset %d lost after resolution change", a.ID)
		}
		if wg.ChunkForAsset(a) != p.Chunk {
			t.Errorf("asset %d residency stale after resolution change", a.ID)
		}
	}
}

func TestPointIDFromWorldNegative(t *testing.T) {
	wg := NewWorldGrid(Point{}, 8) // grid step 16
	// Cells on either side of the origin must differ.
	a := wg.PointIDFromWorld(Point{X: -1, Y: -1})
	b := wg.PointIDFromWorld(Point{X: 0, Y: 0})
	if a == b {
		t.Error("cells straddling the origin share an id")
	}
}
