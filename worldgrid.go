package vibble

// ScreenCache is the per-point projection data computed by the camera during
// a grid rebuild. Valid only when Frame matches the camera's current rebuild
// frame counter.
type ScreenCache struct {
	Pos              FPoint
	ParallaxDX       float64
	VerticalScale    float64
	FadeAlpha        float64
	PerspectiveScale float64
	Frame            uint64
	Valid            bool
}

// GridPoint is the owning cell of the world grid. Every asset lives in
// exactly one GridPoint; a point with no occupants is pruned from the grid.
type GridPoint struct {
	ID    GridID
	World Point
	Index Point
	Chunk *Chunk

	Screen ScreenCache

	occupants []*Asset
}

// Occupants returns the assets owned by this point. The returned slice MUST
// NOT be mutated.
func (p *GridPoint) Occupants() []*Asset {
	return p.occupants
}

// invalidateScreen drops the cached projection, forcing recomputation on the
// next camera rebuild.
func (p *GridPoint) invalidateScreen() {
	p.Screen.Valid = false
}

// WorldGrid owns all assets through their GridPoint occupant lists and
// maintains the secondary indices needed for movement and culling: asset to
// point id, and asset to chunk residency.
//
// All operations are total: nil inputs are no-ops, and moving an unknown
// asset simply registers it at the new position.
type WorldGrid struct {
	origin Point
	rChunk int
	rGrid  int

	chunks    *ChunkManager
	points    map[GridID]*GridPoint
	pointByID map[uint64]GridID // asset id -> owning point id
	residency map[uint64]*Chunk // asset id -> chunk

	active []*Chunk

	hasCachedWindow  bool
	lastWindow       Rect
	lastMargin       int
	lastRChunkActive int
}

// NewWorldGrid creates a world grid with the given origin and chunk
// resolution. Grid resolution defaults to the chunk resolution minus four
// (sixteen grid cells per chunk side), clamped to zero.
func NewWorldGrid(origin Point, rChunk int) *WorldGrid {
	rChunk = ClampResolution(rChunk)
	rGrid := rChunk - 4
	if rGrid < 0 {
		rGrid = 0
	}
	return &WorldGrid{
		origin:    origin,
		rChunk:    rChunk,
		rGrid:     rGrid,
		chunks:    NewChunkManager(),
		points:    make(map[GridID]*GridPoint),
		pointByID: make(map[uint64]GridID),
		residency: make(map[uint64]*Chunk),

		lastMargin:       -1,
		lastRChunkActive: -1,
	}
}

// Origin returns the grid origin in world pixels.
func (w *WorldGrid) Origin() Point { return w.origin }

// ChunkResolution returns the current chunk resolution.
func (w *WorldGrid) ChunkResolution() int { return w.rChunk }

// GridResolution returns the current per-asset grid resolution.
func (w *WorldGrid) GridResolution() int { return w.rGrid }

// SetGridResolution changes the per-asset grid resolution and rebuilds all
// point residency.
func (w *WorldGrid) SetGridResolution(r int) {
	r = ClampResolution(r)
	if r == w.rGrid {
		return
	}
	w.rGrid = r
	w.RebuildChunks()
}

// SetChunkResolution changes the chunk resolution. Every chunk index is
// invalidated, so the whole grid is rebuilt.
func (w *WorldGrid) SetChunkResolution(r int) {
	r = ClampResolution(r)
	if r == w.rChunk {
		return
	}
	w.rChunk = r
	w.RebuildChunks()
}

// Chunks returns the underlying chunk manager.
func (w *WorldGrid) Chunks() *ChunkManager { return w.chunks }

// Points returns the live grid point map. The returned map MUST NOT be
// mutated.
func (w *WorldGrid) Points() map[GridID]*GridPoint { return w.points }

// GridIndexFromWorld converts a world point to its grid index at the grid
// resolution.
func (w *WorldGrid) GridIndexFromWorld(world Point) Point {
	return WorldToGridIndex(world, w.rGrid, w.origin)
}

// PointIDFromWorld returns the GridID of the cell containing a world point.
func (w *WorldGrid) PointIDFromWorld(world Point) GridID {
	idx := w.GridIndexFromWorld(world)
	return MakeGridID(idx.X, idx.Y)
}

// PointForID returns the grid point with the given id, or nil.
func (w *WorldGrid) PointForID(id GridID) *GridPoint {
	return w.points[id]
}

// PointForAsset returns the grid point currently owning a, or nil.
func (w *WorldGrid) PointForAsset(a *Asset) *GridPoint {
	if a == nil {
		return nil
	}
	id, ok := w.pointByID[a.ID]
	if !ok {
		return nil
	}
	return w.points[id]
}

// ChunkForAsset returns the chunk a currently resides in, or nil.
func (w *WorldGrid) ChunkForAsset(a *Asset) *Chunk {
	if a == nil {
		return nil
	}
	return w.residency[a.ID]
}

// ensureChunk returns the chunk at the given chunk index, creating it if
// absent. A newly created chunk invalidates the active-window cache so it can
// join the window without the camera having to move.
func (w *WorldGrid) ensureChunk(i, j int) *Chunk {
	if w.chunks.Find(i, j) == nil {
		w.invalidateActiveCache()
	}
	return w.chunks.Ensure(i, j, w.rChunk, w.origin)
}

// ensurePoint returns the grid point at the given grid index, creating it
// (and its owning chunk) if absent.
func (w *WorldGrid) ensurePoint(index Point) *GridPoint {
	id := MakeGridID(index.X, index.Y)
	if p, ok := w.points[id]; ok {
		return p
	}
	world := GridIndexToWorld(index, w.rGrid, w.origin)
	chunkIdx := WorldToGridIndex(world, w.rChunk, w.origin)
	chunk := w.ensureChunk(chunkIdx.X, chunkIdx.Y)
	p := &GridPoint{
		ID:    id,
		World: world,
		Index: index,
		Chunk: chunk,
	}
	w.points[id] = p
	return p
}

// RegisterAsset inserts a into the grid at its current position: the owning
// GridPoint and Chunk are created on demand, the secondary indices are
// updated, and a's grid residency cache is set. Registering an asset that is
// already present moves its ownership to the point matching its position.
func (w *WorldGrid) RegisterAsset(a *Asset) *Asset {
	if a == nil {
		return nil
	}
	// Move any prior ownership out first.
	if old := w.PointForAsset(a); old != nil {
		w.removeFromPoint(a, old)
		if c := w.residency[a.ID]; c != nil {
			c.removeAsset(a)
		}
	}

	index := w.GridIndexFromWorld(a.Pos)
	p := w.ensurePoint(index)
	p.occupants = append(p.occupants, a)
	p.World = a.Pos
	p.invalidateScreen()

	p.Chunk.addAsset(a)
	w.pointByID[a.ID] = p.ID
	w.residency[a.ID] = p.Chunk
	a.GridID = p.ID
	return a
}

// MoveAsset relocates a from oldPos to newPos. When the containing grid cell
// is unchanged the point's cached screen data is invalidated and nothing
// else happens. Moving an asset the grid does not know simply registers it.
func (w *WorldGrid) MoveAsset(a *Asset, oldPos, newPos Point) *Asset {
	if a == nil {
		return nil
	}
	oldPoint := w.PointForAsset(a)
	if oldPoint == nil {
		a.Pos = newPos
		return w.RegisterAsset(a)
	}

	a.Pos = newPos

	// Chunk transition.
	newChunkIdx := WorldToGridIndex(newPos, w.rChunk, w.origin)
	oldChunk := w.residency[a.ID]
	if oldChunk == nil || oldChunk.I != newChunkIdx.X || oldChunk.J != newChunkIdx.Y {
		if oldChunk != nil {
			oldChunk.removeAsset(a)
		}
		newChunk := w.ensureChunk(newChunkIdx.X, newChunkIdx.Y)
		newChunk.addAsset(a)
		w.residency[a.ID] = newChunk
	}

	newID := w.PointIDFromWorld(newPos)
	if newID == oldPoint.ID {
		oldPoint.World = newPos
		oldPoint.invalidateScreen()
		return a
	}

	w.removeFromPoint(a, oldPoint)
	w.pruneIfEmpty(oldPoint)

	idx := w.GridIndexFromWorld(newPos)
	p := w.ensurePoint(idx)
	p.occupants = append(p.occupants, a)
	p.World = newPos
	p.invalidateScreen()
	w.pointByID[a.ID] = p.ID
	a.GridID = p.ID

	// The point-level chunk may differ from the asset's residency chunk
	// only transiently; keep them consistent.
	if w.residency[a.ID] != p.Chunk {
		if c := w.residency[a.ID]; c != nil {
			c.removeAsset(a)
		}
		p.Chunk.addAsset(a)
		w.residency[a.ID] = p.Chunk
	}
	return a
}

// RemoveAsset removes a from its GridPoint, chunk, and both indices, pruning
// the point if it becomes empty. Returns a for caller-side destruction.
func (w *WorldGrid) RemoveAsset(a *Asset) *Asset {
	if a == nil {
		return nil
	}
	if p := w.PointForAsset(a); p != nil {
		w.removeFromPoint(a, p)
		w.pruneIfEmpty(p)
	}
	if c := w.residency[a.ID]; c != nil {
		c.removeAsset(a)
	}
	delete(w.pointByID, a.ID)
	delete(w.residency, a.ID)
	a.GridID = 0
	return a
}

// removeFromPoint drops a from p's occupant list.
func (w *WorldGrid) removeFromPoint(a *Asset, p *GridPoint) {
	for i, occ := range p.occupants {
		if occ == a {
			last := len(p.occupants) - 1
			p.occupants[i] = p.occupants[last]
			p.occupants[last] = nil
			p.occupants = p.occupants[:last]
			return
		}
	}
}

// pruneIfEmpty removes an empty point from the grid.
func (w *WorldGrid) pruneIfEmpty(p *GridPoint) {
	if len(p.occupants) == 0 {
		delete(w.points, p.ID)
	}
}

// AllAssets collects every asset owned by the grid. The order is
// unspecified.
func (w *WorldGrid) AllAssets() []*Asset {
	out := make([]*Asset, 0, len(w.pointByID))
	for _, p := range w.points {
		out = append(out, p.occupants...)
	}
	return out
}

// RebuildChunks harvests every owned asset, clears the chunk manager and all
// index tables, and re-registers each asset. Used after changing the chunk
// resolution, which invalidates every chunk index. No asset is lost.
func (w *WorldGrid) RebuildChunks() {
	assets := w.AllAssets()
	w.chunks.Clear()
	w.points = make(map[GridID]*GridPoint)
	w.pointByID = make(map[uint64]GridID)
	w.residency = make(map[uint64]*Chunk)
	w.active = nil
	w.hasCachedWindow = false
	w.lastMargin = -1
	w.lastRChunkActive = -1
	for _, a := range assets {
		w.RegisterAsset(a)
	}
}

// UpdateActiveChunks rebuilds the active chunk list for a camera world rect
// expanded by margin. When the expanded rect, margin, and chunk resolution
// all match the previous call, the cached list is kept and no work is done.
// Returns true when the list was rebuilt.
func (w *WorldGrid) UpdateActiveChunks(cameraWorld Rect, margin int) bool {
	window := cameraWorld.Expand(margin)
	if w.hasCachedWindow &&
		window == w.lastWindow &&
		margin == w.lastMargin &&
		w.rChunk == w.lastRChunkActive {
		return false
	}
	w.hasCachedWindow = true
	w.lastWindow = window
	w.lastMargin = margin
	w.lastRChunkActive = w.rChunk

	w.active = w.active[:0]
	w.chunks.Each(func(c *Chunk) {
		if c.Bounds.Intersects(window) {
			w.active = append(w.active, c)
		}
	})
	return true
}

// ActiveChunks returns the chunks intersecting the last camera window. The
// returned slice MUST NOT be mutated.
func (w *WorldGrid) ActiveChunks() []*Chunk {
	return w.active
}

// invalidateActiveCache forces the next UpdateActiveChunks to rebuild.
func (w *WorldGrid) invalidateActiveCache() {
	w.hasCachedWindow = false
}
