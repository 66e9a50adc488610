package vibble

import "github.com/hajimehoshi/ebiten/v2"

// DamageType classifies hit and attack geometry on an animation frame.
type DamageType string

const (
	DamageProjectile DamageType = "projectile"
	DamageMelee      DamageType = "melee"
	DamageExplosion  DamageType = "explosion"
)

// AttackVector is a quadratic Bezier segment with a damage payload.
type AttackVector struct {
	P0, P1, P2 FPoint
	Damage     float64
}

// At evaluates the Bezier at t in [0, 1].
func (v AttackVector) At(t float64) FPoint {
	u := 1 - t
	return FPoint{
		X: u*u*v.P0.X + 2*u*t*v.P1.X + t*t*v.P2.X,
		Y: u*u*v.P0.Y + 2*u*t*v.P1.Y + t*t*v.P2.Y,
	}
}

// FrameVariant is one rung of a frame's texture stack: the pre-rendered
// textures for a single scale variant.
type FrameVariant struct {
	Base       *ebiten.Image
	Foreground *ebiten.Image
	Background *ebiten.Image
	Mask       *ebiten.Image
	W, H       int
}

// ChildFrame positions one child asset during one parent frame.
type ChildFrame struct {
	ChildIndex    int
	DX, DY        int
	Degrees       float64
	Visible       bool
	RenderInFront bool
}

// AnimationFrame is a single tick of an animation. Frames of the primary
// movement path are linked into a doubly-linked list consumed by the
// runtime.
type AnimationFrame struct {
	Index   int
	IsFirst bool
	IsLast  bool
	Prev    *AnimationFrame
	Next    *AnimationFrame

	// DX and DY are this tick's authored movement in world pixels.
	DX, DY  int
	ZResort bool

	ColorMod Color

	Variants []FrameVariant
	Children []ChildFrame

	HitBoxes map[DamageType][]Rect
	Attacks  map[DamageType][]AttackVector
}

// FrameDelta is one tick of a secondary movement path.
type FrameDelta struct {
	DX, DY int
}

// OnEndKind classifies what happens when a non-looping animation reaches its
// last frame.
type OnEndKind uint8

const (
	OnEndDefault OnEndKind = iota // transition to the "default" animation if present
	OnEndStop                     // freeze on the last frame
	OnEndNamed                    // switch to a named animation
)

// OnEndBehavior is the parsed on_end classification.
type OnEndBehavior struct {
	Kind OnEndKind
	Name string // valid when Kind == OnEndNamed
}

// SourceKind selects where an animation's frames come from.
type SourceKind uint8

const (
	SourceFolder    SourceKind = iota // frame cache folder layout on disk
	SourceAnimation                   // derived from a sibling animation via the cloner
)

// AnimationSource is the source-derivation descriptor.
type AnimationSource struct {
	Kind SourceKind
	Name string
	Path string
}

// CloneModifiers are the transforms applied when deriving one animation from
// another: texture flips, frame reversal, and movement mirroring.
type CloneModifiers struct {
	FlipH           bool
	FlipV           bool
	Reverse         bool
	FlipMovementH   bool
	FlipMovementV   bool
	InheritMovement bool
}

// ChildMode distinguishes static child timelines (per-parent-frame lookup)
// from async ones (independent cursor).
type ChildMode uint8

const (
	ChildStatic ChildMode = iota
	ChildAsync
)

// ChildSample is one tick of a child timeline.
type ChildSample struct {
	DX, DY        int
	Degrees       float64
	Visible       bool
	RenderInFront bool
}

// ChildTimeline schedules one child slot over the parent animation. For
// static mode, Frames has exactly one sample per parent frame after loading.
// For async mode, the child runs its own cursor of arbitrary length.
type ChildTimeline struct {
	ChildIndex    int
	AssetName     string
	AnimationName string
	Mode          ChildMode
	AutoStart     bool
	Frames        []ChildSample
}

// Animation is an ordered sequence of frames accessed through one or more
// parallel movement paths. Path 0 is the primary render path; additional
// paths describe alternative per-frame trajectories reused by planners.
type Animation struct {
	Name string

	// VariantSteps is the scale ladder copied from the owning AssetInfo,
	// normalized to descending unique values.
	VariantSteps []float64

	frames []*AnimationFrame
	// Paths holds the secondary movement paths; Paths[i] has one delta
	// per frame after loading. The primary path's deltas live on the
	// frames themselves.
	Paths [][]FrameDelta

	Loop      bool
	Locked    bool
	Randomize bool
	RndStart  bool
	OnEnd     OnEndBehavior

	Source    AnimationSource
	Modifiers CloneModifiers

	ChildNames     []string
	ChildTimelines []*ChildTimeline

	TotalDX, TotalDY int

	Audio *Clip

	PreviewTexture *ebiten.Image
}

// NewAnimation builds an animation from pre-assembled frames, linking them
// and computing the movement totals. Procedural assets use this directly;
// authored assets go through the AnimationLoader.
func NewAnimation(name string, frames []*AnimationFrame) *Animation {
	an := &Animation{Name: name, VariantSteps: []float64{1.0}}
	an.setFrames(frames)
	return an
}

// NumberOfFrames returns the frame count of the primary path.
func (an *Animation) NumberOfFrames() int {
	return len(an.frames)
}

// Frames returns the primary path's frames. The returned slice MUST NOT be
// mutated.
func (an *Animation) Frames() []*AnimationFrame {
	return an.frames
}

// FirstFrame returns the primary path's first frame, or nil when the
// animation is empty.
func (an *Animation) FirstFrame() *AnimationFrame {
	if len(an.frames) == 0 {
		return nil
	}
	return an.frames[0]
}

// LastFrame returns the primary path's last frame, or nil.
func (an *Animation) LastFrame() *AnimationFrame {
	if len(an.frames) == 0 {
		return nil
	}
	return an.frames[len(an.frames)-1]
}

// FrameAt returns the frame at the given index, or nil when out of range.
func (an *Animation) FrameAt(i int) *AnimationFrame {
	if i < 0 || i >= len(an.frames) {
		return nil
	}
	return an.frames[i]
}

// setFrames installs a new primary frame list, links prev/next, stamps
// IsFirst/IsLast and indices, recomputes totals, and refreshes the preview
// texture.
func (an *Animation) setFrames(frames []*AnimationFrame) {
	an.frames = frames
	an.TotalDX = 0
	an.TotalDY = 0
	n := len(frames)
	for i, f := range frames {
		f.Index = i
		f.IsFirst = i == 0
		f.IsLast = i == n-1
		if i > 0 {
			f.Prev = frames[i-1]
			frames[i-1].Next = f
		} else {
			f.Prev = nil
		}
		if i == n-1 {
			f.Next = nil
		}
		an.TotalDX += f.DX
		an.TotalDY += f.DY
	}
	an.refreshPreview()
}

// refreshPreview points PreviewTexture at the first variant's base of frame
// zero, when any exists.
func (an *Animation) refreshPreview() {
	an.PreviewTexture = nil
	if len(an.frames) == 0 {
		return
	}
	f := an.frames[0]
	if len(f.Variants) > 0 {
		an.PreviewTexture = f.Variants[0].Base
	}
}

// normalizePaths resizes every secondary path to the primary frame count:
// shorter paths are padded with zero deltas, longer ones truncated.
func (an *Animation) normalizePaths() {
	n := len(an.frames)
	for i, path := range an.Paths {
		if len(path) == n {
			continue
		}
		resized := make([]FrameDelta, n)
		copy(resized, path)
		an.Paths[i] = resized
	}
}

// PathDelta returns the movement delta for the given path and frame index.
// Path 0 reads the primary frames; out-of-range lookups return a zero delta.
func (an *Animation) PathDelta(path, frame int) FrameDelta {
	if frame < 0 || frame >= len(an.frames) {
		return FrameDelta{}
	}
	if path == 0 {
		f := an.frames[frame]
		return FrameDelta{DX: f.DX, DY: f.DY}
	}
	p := path - 1
	if p < 0 || p >= len(an.Paths) || frame >= len(an.Paths[p]) {
		return FrameDelta{}
	}
	return an.Paths[p][frame]
}

// releaseTextures frees every cached frame texture. Called before a reload.
func (an *Animation) releaseTextures() {
	for _, f := range an.frames {
		for i := range f.Variants {
			v := &f.Variants[i]
			for _, img := range []*ebiten.Image{v.Base, v.Foreground, v.Background, v.Mask} {
				if img != nil {
					img.Deallocate()
				}
			}
			*v = FrameVariant{}
		}
	}
	an.PreviewTexture = nil
}

// PlanStride is one leg of a movement plan: how many frames of which
// animation path to consume.
type PlanStride struct {
	AnimationName string
	PathIndex     int
	FrameCount    int
}

// Plan is a pre-sanitized movement plan consumed by the runtime to choose
// which path to render each tick.
type Plan struct {
	Checkpoints []Point
	Strides     []PlanStride
	Start       Point
}

// TotalFrames returns the summed frame count of all strides.
func (p *Plan) TotalFrames() int {
	total := 0
	for _, s := range p.Strides {
		total += s.FrameCount
	}
	return total
}
