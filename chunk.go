package vibble

import "github.com/hajimehoshi/ebiten/v2"

// ChunkLighting is the per-chunk lighting state blended into the dark-mask
// overlay. Static strength comes from baked map lighting; dynamic strength
// from moving light sources currently inside the chunk.
type ChunkLighting struct {
	Static  float64
	Dynamic float64
	Blended float64
	// Color is an optional runtime tint. HasColor distinguishes "no tint"
	// from an explicit black tint.
	Color    Color
	HasColor bool
}

// Blend recomputes the blended strength from the static and dynamic parts.
func (l *ChunkLighting) Blend() {
	l.Blended = clamp01(l.Static + l.Dynamic)
}

// ChunkTile is a ground decoration rendered as a warped quad covering an
// integer world rect.
type ChunkTile struct {
	Bounds  Rect
	Texture *ebiten.Image
}

// Chunk is one cell of the chunk grid. It holds a non-owning list of the
// assets whose current GridPoint maps to this chunk, a tile list, and a
// lighting state. Assets are owned by their GridPoint, never by the chunk.
type Chunk struct {
	I, J   int
	Bounds Rect

	Assets   []*Asset
	Tiles    []ChunkTile
	Lighting ChunkLighting
}

// addAsset appends a to the chunk's list if not already present.
func (c *Chunk) addAsset(a *Asset) {
	for _, existing := range c.Assets {
		if existing == a {
			return
		}
	}
	c.Assets = append(c.Assets, a)
}

// removeAsset removes a from the chunk's list. Order is not preserved.
func (c *Chunk) removeAsset(a *Asset) {
	for i, existing := range c.Assets {
		if existing == a {
			last := len(c.Assets) - 1
			c.Assets[i] = c.Assets[last]
			c.Assets[last] = nil
			c.Assets = c.Assets[:last]
			return
		}
	}
}

// release frees tile textures and clears the asset list. Called when the
// chunk manager is cleared or the chunk grid is rebuilt.
func (c *Chunk) release() {
	for i := range c.Tiles {
		if c.Tiles[i].Texture != nil {
			c.Tiles[i].Texture.Deallocate()
			c.Tiles[i].Texture = nil
		}
	}
	c.Tiles = nil
	c.Assets = nil
	c.Lighting = ChunkLighting{}
}

// ChunkManager is a sparse dictionary of chunk cells keyed by packed (i, j).
// Chunk pointers returned by Ensure are stable for the manager's lifetime
// (until Clear).
type ChunkManager struct {
	cells map[GridID]*Chunk
}

// NewChunkManager creates an empty chunk manager.
func NewChunkManager() *ChunkManager {
	return &ChunkManager{cells: make(map[GridID]*Chunk)}
}

// Ensure returns the chunk at (i, j), constructing it with world bounds
// [origin + (i,j)*step, +step) at chunk resolution r if absent.
func (m *ChunkManager) Ensure(i, j, r int, origin Point) *Chunk {
	id := MakeGridID(i, j)
	if c, ok := m.cells[id]; ok {
		return c
	}
	step := GridDelta(r)
	c := &Chunk{
		I: i,
		J: j,
		Bounds: Rect{
			X: origin.X + i*step,
			Y: origin.Y + j*step,
			W: step,
			H: step,
		},
	}
	m.cells[id] = c
	return c
}

// Find returns the chunk at (i, j), or nil if absent.
func (m *ChunkManager) Find(i, j int) *Chunk {
	return m.cells[MakeGridID(i, j)]
}

// FromWorld converts a world point to chunk coordinates at resolution r and
// returns the chunk there, or nil if absent.
func (m *ChunkManager) FromWorld(world Point, r int, origin Point) *Chunk {
	idx := WorldToGridIndex(world, r, origin)
	return m.Find(idx.X, idx.Y)
}

// Len returns the number of existing chunks.
func (m *ChunkManager) Len() int {
	return len(m.cells)
}

// Each calls fn for every existing chunk. Iteration order is unspecified.
func (m *ChunkManager) Each(fn func(*Chunk)) {
	for _, c := range m.cells {
		fn(c)
	}
}

// Clear releases every chunk's resources and empties the manager.
func (m *ChunkManager) Clear() {
	for _, c := range m.cells {
		c.release()
	}
	m.cells = make(map[GridID]*Chunk)
}
