package vibble

import (
	"errors"
	"math/rand"
)

// ErrMissingAnimation is returned when an animation switch names an
// animation the owning AssetInfo does not define.
var ErrMissingAnimation = errors.New("vibble: missing animation")

// defaultAnimationRate is the frame advance rate in frames per second when
// an asset does not override it.
const defaultAnimationRate = 10.0

// childAttachment is the runtime record binding one child timeline to a
// spawned child asset. Async attachments carry their own cursor; static
// ones mirror the parent's frame index.
type childAttachment struct {
	timeline *ChildTimeline
	child    *Asset
	cursor   int
	progress float64
}

// AnimationRuntime advances one asset's frame cursor each tick, picks the
// texture variant to render, updates attached child timelines, and publishes
// the flags consumed by the composite renderer.
type AnimationRuntime struct {
	asset *Asset

	// Rate is the frame advance rate in frames per second.
	Rate float64

	Frozen bool

	// StaticFrame is set while the animation holds its frame (frozen,
	// locked-in-progress, or stopped at the end).
	StaticFrame bool
	// LastRenderedFrame is the frame handed to the composite renderer on
	// the previous tick.
	LastRenderedFrame *AnimationFrame
	// TargetReached is set when a plan-driven movement consumed its last
	// stride.
	TargetReached bool

	plan       *Plan
	planStride int
	planFrames int

	attachments []*childAttachment

	// spawnChild materializes a missing child asset. Set by the manager;
	// nil leaves absent children unspawned.
	spawnChild func(name string, pos Point) *Asset

	rndStartApplied      map[string]bool
	initializingChildren bool
}

func newAnimationRuntime(a *Asset) *AnimationRuntime {
	return &AnimationRuntime{
		asset:           a,
		Rate:            defaultAnimationRate,
		rndStartApplied: make(map[string]bool),
	}
}

// CurrentAnimation returns the animation the asset is currently playing, or
// nil.
func (rt *AnimationRuntime) CurrentAnimation() *Animation {
	if rt.asset == nil || rt.asset.Info == nil {
		return nil
	}
	return rt.asset.Info.Animation(rt.asset.CurrentAnimation)
}

// SetAnimation switches the asset to the named animation, resetting the
// frame cursor and progress. Randomize picks a random starting frame on
// every start; RndStart does so only the first time the animation is
// entered. Returns ErrMissingAnimation when the name is unknown.
func (rt *AnimationRuntime) SetAnimation(name string) error {
	a := rt.asset
	anim := a.Info.Animation(name)
	if anim == nil {
		return ErrMissingAnimation
	}
	a.CurrentAnimation = name
	a.CurrentFrame = anim.FirstFrame()
	a.FrameProgress = 0
	rt.StaticFrame = false
	rt.TargetReached = false

	if anim.Randomize {
		rt.randomizeFrame(anim)
	} else if anim.RndStart && !rt.rndStartApplied[name] {
		rt.randomizeFrame(anim)
	}
	rt.rndStartApplied[name] = true

	rt.RebuildChildAttachments()
	a.MarkCompositeDirty()
	return nil
}

// randomizeFrame moves the cursor to a uniformly random frame.
func (rt *AnimationRuntime) randomizeFrame(anim *Animation) {
	n := anim.NumberOfFrames()
	if n <= 1 {
		return
	}
	rt.asset.CurrentFrame = anim.FrameAt(rand.Intn(n))
}

// SetPlan installs a movement plan. The runtime consumes it stride by
// stride, reading movement deltas from the stride's path instead of the
// primary path.
func (rt *AnimationRuntime) SetPlan(p *Plan) {
	rt.plan = p
	rt.planStride = 0
	rt.planFrames = 0
	rt.TargetReached = p == nil || p.TotalFrames() == 0
}

// Update advances the frame cursor by dt seconds, applies this tick's
// movement, and updates child timelines.
func (rt *AnimationRuntime) Update(dt float64) {
	a := rt.asset
	anim := rt.CurrentAnimation()
	if anim == nil || a.CurrentFrame == nil {
		rt.StaticFrame = true
		return
	}

	if rt.Frozen {
		rt.StaticFrame = true
		rt.updateChildren(dt)
		return
	}

	rt.StaticFrame = false
	a.FrameProgress += dt * rt.Rate
	for a.FrameProgress >= 1 {
		a.FrameProgress -= 1
		rt.advanceFrame(anim)
		anim = rt.CurrentAnimation()
		if anim == nil || a.CurrentFrame == nil || rt.StaticFrame {
			break
		}
	}

	if a.CurrentFrame != rt.LastRenderedFrame {
		rt.LastRenderedFrame = a.CurrentFrame
		a.MarkCompositeDirty()
	}

	rt.updateChildren(dt)
}

// TrySetAnimation switches animations unless a locked animation is still in
// progress. Locked animations hold external switches until they reach their
// last frame; they advance normally on their own.
func (rt *AnimationRuntime) TrySetAnimation(name string) error {
	if rt.IsCurrentAnimationLockedInProgress() {
		return nil
	}
	return rt.SetAnimation(name)
}

// advanceFrame steps one frame, applies its movement delta, and handles the
// end-of-animation transition.
func (rt *AnimationRuntime) advanceFrame(anim *Animation) {
	a := rt.asset
	f := a.CurrentFrame

	rt.applyMovement(anim, f)

	if f.Next != nil {
		a.CurrentFrame = f.Next
		return
	}

	// End of animation.
	switch {
	case anim.Loop:
		a.CurrentFrame = anim.FirstFrame()
		if anim.Randomize {
			rt.randomizeFrame(anim)
		}
		rt.restartAutoStartChildren()
	case anim.OnEnd.Kind == OnEndStop:
		rt.StaticFrame = true
	case anim.OnEnd.Kind == OnEndNamed:
		if err := rt.SetAnimation(anim.OnEnd.Name); err != nil {
			rt.StaticFrame = true
		}
	default: // OnEndDefault
		if a.Info.Animation("default") != nil && a.CurrentAnimation != "default" {
			rt.SetAnimation("default")
		} else {
			rt.StaticFrame = true
		}
	}
}

// applyMovement accumulates this tick's authored (dx, dy) into the asset's
// pending movement, reading from the plan's stride path when a plan is
// active. Horizontal movement mirrors when the asset is flipped.
func (rt *AnimationRuntime) applyMovement(anim *Animation, f *AnimationFrame) {
	dx, dy := f.DX, f.DY

	if rt.plan != nil && !rt.TargetReached {
		stride := rt.plan.Strides[rt.planStride]
		d := anim.PathDelta(stride.PathIndex, f.Index)
		dx, dy = d.DX, d.DY
		rt.planFrames++
		if rt.planFrames >= stride.FrameCount {
			rt.planStride++
			rt.planFrames = 0
			if rt.planStride >= len(rt.plan.Strides) {
				rt.TargetReached = true
			}
		}
	}

	if rt.asset.Flipped {
		dx = -dx
	}
	rt.asset.pendingDX += dx
	rt.asset.pendingDY += dy
}

// --- Child timelines ---

// RebuildChildAttachments recreates the attachment records from the current
// animation's child timelines, binding each to the matching entry of the
// asset's child list and lazily spawning auto-start children. Idempotent and
// cycle-guarded: two assets listing each other initialize once.
func (rt *AnimationRuntime) RebuildChildAttachments() {
	if rt.initializingChildren {
		return
	}
	rt.initializingChildren = true
	defer func() { rt.initializingChildren = false }()

	anim := rt.CurrentAnimation()
	rt.attachments = rt.attachments[:0]
	if anim == nil {
		return
	}
	for _, tl := range anim.ChildTimelines {
		att := &childAttachment{timeline: tl}
		if tl.ChildIndex >= 0 && tl.ChildIndex < len(rt.asset.Children) {
			att.child = rt.asset.Children[tl.ChildIndex]
		}
		if att.child == nil && tl.AutoStart && rt.spawnChild != nil && tl.AssetName != "" {
			att.child = rt.spawnChild(tl.AssetName, rt.asset.Pos)
			if att.child != nil {
				for len(rt.asset.Children) <= tl.ChildIndex {
					rt.asset.Children = append(rt.asset.Children, nil)
				}
				rt.asset.Children[tl.ChildIndex] = att.child
			}
		}
		if att.child != nil && tl.AnimationName != "" {
			att.child.Runtime().SetAnimation(tl.AnimationName)
		}
		rt.attachments = append(rt.attachments, att)
	}
}

// restartAutoStartChildren resets async cursors for auto-start attachments
// when the parent animation wraps. Async cursors otherwise persist across
// parent restarts.
func (rt *AnimationRuntime) restartAutoStartChildren() {
	for _, att := range rt.attachments {
		if att.timeline.Mode == ChildAsync && att.timeline.AutoStart {
			att.cursor = 0
			att.progress = 0
		}
	}
}

// updateChildren applies the current sample of every attachment: static
// attachments mirror the parent's frame index, async ones advance their own
// cursor.
func (rt *AnimationRuntime) updateChildren(dt float64) {
	a := rt.asset
	for _, att := range rt.attachments {
		if att.child == nil || att.child.IsDeleted() {
			continue
		}
		var sample ChildSample
		switch att.timeline.Mode {
		case ChildStatic:
			idx := 0
			if a.CurrentFrame != nil {
				idx = a.CurrentFrame.Index
			}
			if idx >= len(att.timeline.Frames) {
				continue
			}
			sample = att.timeline.Frames[idx]
		case ChildAsync:
			if len(att.timeline.Frames) == 0 {
				continue
			}
			att.progress += dt * rt.Rate
			for att.progress >= 1 {
				att.progress -= 1
				att.cursor = (att.cursor + 1) % len(att.timeline.Frames)
			}
			sample = att.timeline.Frames[att.cursor]
		}

		dx, dy := sample.DX, sample.DY
		if a.Flipped {
			dx = -dx
		}
		att.child.Pos = Point{X: a.Pos.X + dx, Y: a.Pos.Y + dy}
		att.child.Visible = sample.Visible
		if sample.RenderInFront {
			att.child.Z = a.Z + 1
		} else {
			att.child.Z = a.Z - 1
		}
	}
}

// Attachments returns the live child attachment records. The returned slice
// MUST NOT be mutated.
func (rt *AnimationRuntime) Attachments() []*childAttachment {
	return rt.attachments
}

// --- Progress inspection ---

// IsCurrentAnimationLastFrame reports whether the cursor sits on the last
// frame of the primary path.
func (rt *AnimationRuntime) IsCurrentAnimationLastFrame() bool {
	f := rt.asset.CurrentFrame
	return f != nil && f.IsLast
}

// IsCurrentAnimationLockedInProgress reports whether a locked animation has
// started but not yet reached its last frame.
func (rt *AnimationRuntime) IsCurrentAnimationLockedInProgress() bool {
	anim := rt.CurrentAnimation()
	if anim == nil || !anim.Locked {
		return false
	}
	f := rt.asset.CurrentFrame
	return f != nil && !f.IsLast
}

// IsCurrentAnimationLooping reports whether the current animation loops.
func (rt *AnimationRuntime) IsCurrentAnimationLooping() bool {
	anim := rt.CurrentAnimation()
	return anim != nil && anim.Loop
}

// --- Scale variant selection ---

// UpdateScaleValues recomputes the effective requested scale from the
// camera's per-point render effects and re-picks the texture variant through
// the hysteresis window.
func (rt *AnimationRuntime) UpdateScaleValues(effects RenderEffects, margin float64) {
	a := rt.asset
	s := effects.DistanceScale
	if a.Info != nil && !a.Info.ApplyDistanceScaling {
		s = 1.0
	}
	if a.Info != nil && a.Info.ApplyVerticalScaling {
		s *= effects.VerticalScale
	}
	a.RequestedScale = s
	rt.ChooseVariant(margin)
}

// ChooseVariant picks the texture-variant index for the asset's requested
// scale. The chosen index holds while the scale stays inside the cached
// hysteresis window [step*(1-margin), step*(1+margin)], so a scale
// oscillating near a variant boundary never flips the texture stack.
func (rt *AnimationRuntime) ChooseVariant(margin float64) int {
	a := rt.asset
	steps := rt.variantSteps()
	if len(steps) == 0 {
		a.variant = variantState{}
		return 0
	}
	s := a.RequestedScale

	if a.variant.hasWindow && s >= a.variant.min && s <= a.variant.max {
		return a.variant.index
	}

	v := pickVariantIndex(steps, s, margin)
	step := steps[v]
	min := step * (1 - margin)
	max := step * (1 + margin)
	if v == 0 {
		max = 1e18 // largest variant never yields to a bigger one
	}
	if v == len(steps)-1 {
		min = 0
	}
	changed := !a.variant.hasWindow || v != a.variant.index
	a.variant = variantState{index: v, min: min, max: max, hasWindow: true}

	// Keep the asset's cached remainder: the fraction of the requested
	// scale not absorbed by the variant step.
	a.RemainderScale = s / step
	if changed {
		a.MarkCompositeDirty()
	}
	return v
}

// pickVariantIndex returns the largest index whose step still covers the
// requested scale (steps are descending). Scales above the top step pick
// index 0; scales below the bottom pick the last.
func pickVariantIndex(steps []float64, s, margin float64) int {
	v := 0
	for i, step := range steps {
		if step >= s*(1-margin) {
			v = i
		} else {
			break
		}
	}
	return v
}

// variantSteps returns the active scale ladder: the current animation's, or
// the asset info's when the animation carries none.
func (rt *AnimationRuntime) variantSteps() []float64 {
	if anim := rt.CurrentAnimation(); anim != nil && len(anim.VariantSteps) > 0 {
		return anim.VariantSteps
	}
	if rt.asset.Info != nil {
		return rt.asset.Info.VariantSteps
	}
	return nil
}

// VariantIndex returns the currently chosen texture-variant index.
func (rt *AnimationRuntime) VariantIndex() int {
	return rt.asset.variant.index
}
