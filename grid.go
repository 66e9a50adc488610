package vibble

// MaxResolution is the largest accepted grid resolution. The quantization
// step at resolution r is 1 << r world pixels.
const MaxResolution = 30

// ClampResolution clamps r to the valid range [0, MaxResolution].
func ClampResolution(r int) int {
	if r < 0 {
		return 0
	}
	if r > MaxResolution {
		return MaxResolution
	}
	return r
}

// GridDelta returns the quantization step at resolution r.
func GridDelta(r int) int {
	return 1 << ClampResolution(r)
}

// floorDiv divides a by b rounding toward negative infinity. b must be
// positive. Plain integer division truncates toward zero, which would snap
// negative coordinates inconsistently.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// SnapWorldToVertex snaps a world point to the nearest grid vertex at
// resolution r relative to origin. Rounding is floor-consistent so negative
// coordinates snap the same way positive ones do.
func SnapWorldToVertex(world Point, r int, origin Point) Point {
	step := GridDelta(r)
	half := step / 2
	return Point{
		X: origin.X + floorDiv(world.X-origin.X+half, step)*step,
		Y: origin.Y + floorDiv(world.Y-origin.Y+half, step)*step,
	}
}

// WorldToGridIndex converts a world point to its integer grid index (i, j)
// at resolution r relative to origin, using floor division.
func WorldToGridIndex(world Point, r int, origin Point) Point {
	step := GridDelta(r)
	return Point{
		X: floorDiv(world.X-origin.X, step),
		Y: floorDiv(world.Y-origin.Y, step),
	}
}

// GridIndexToWorld converts a grid index back to the world anchor of its cell.
func GridIndexToWorld(index Point, r int, origin Point) Point {
	step := GridDelta(r)
	return Point{
		X: origin.X + index.X*step,
		Y: origin.Y + index.Y*step,
	}
}

// IsVertexOnGrid reports whether the world point lies exactly on a grid
// vertex at resolution r.
func IsVertexOnGrid(world Point, r int, origin Point) bool {
	step := GridDelta(r)
	dx := world.X - origin.X
	dy := world.Y - origin.Y
	return dx%step == 0 && dy%step == 0
}

// ChangeResolution converts grid indices from one resolution to another.
func ChangeResolution(index Point, from, to int) Point {
	world := GridIndexToWorld(index, from, Point{})
	return WorldToGridIndex(world, to, Point{})
}

// GridID is the stable 64-bit identifier of a grid cell: (i << 32) | j of
// its integer grid index. It survives chunk rebuilds and never aliases two
// distinct cells.
type GridID uint64

// MakeGridID packs a grid index into a GridID.
func MakeGridID(i, j int) GridID {
	return GridID(uint64(uint32(int32(i)))<<32 | uint64(uint32(int32(j))))
}

// Split unpacks a GridID back into its grid index (i, j).
func (id GridID) Split() (i, j int) {
	return int(int32(uint32(id >> 32))), int(int32(uint32(id)))
}
