package vibble

import "testing"

func TestApplyChildFrameFlipSingleNegationPerAxis(t *testing.T) {
	children := []ChildFrame{{ChildIndex: 0, DX: 10, DY: 20, Degrees: 45}}

	// Texture flip and movement flip both request the horizontal axis:
	// the offset mirrors exactly once.
	ApplyChildFrameFlip(children, CloneModifiers{FlipH: true, FlipMovementH: true})
	if children[0].DX != -10 {
		t.Errorf("DX = %d, want -10 (single negation)", children[0].DX)
	}
	if children[0].DY != 20 {
		t.Errorf("DY = %d, want untouched 20", children[0].DY)
	}
	if children[0].Degrees != -45 {
		t.Errorf("Degrees = %f, want -45", children[0].Degrees)
	}

	// Vertical alone.
	ApplyChildFrameFlip(children, CloneModifiers{FlipV: true})
	if children[0].DY != -20 {
		t.Errorf("DY = %d, want -20", children[0].DY)
	}
	if children[0].DX != -10 {
		t.Errorf("DX = %d, want unchanged -10", children[0].DX)
	}
}

func TestCloneFlipsMovement(t *testing.T) {
	src := makeAnimation("walk", []FrameDelta{{DX: 5, DY: 1}, {DX: 3, DY: -1}})

	out := CloneAnimation(src, CloneModifiers{FlipMovementH: true})
	frames := out.Frames()
	if frames[0].DX != -5 || frames[0].DY != 1 {
		t.Errorf("frame 0 = (%d,%d), want (-5,1)", frames[0].DX, frames[0].DY)
	}
	if out.TotalDX != -8 {
		t.Errorf("TotalDX = %d, want -8", out.TotalDX)
	}
	// Source is untouched.
	if src.Frames()[0].DX != 5 {
		t.Errorf("source mutated: frame 0 DX = %d", src.Frames()[0].DX)
	}
}

func TestCloneReverseOrder(t *testing.T) {
	src := makeAnimation("walk", []FrameDelta{{DX: 1}, {DX: 2}, {DX: 3}})

	out := CloneAnimation(src, CloneModifiers{Reverse: true})
	frames := out.Frames()
	want := []int{3, 2, 1}
	for i, w := range want {
		if frames[i].DX != w {
			t.Errorf("frame %d DX = %d, want %d", i, frames[i].DX, w)
		}
	}
	if !frames[0].IsFirst || !frames[2].IsLast {
		t.Error("first/last flags not restamped after reversal")
	}
}

func TestCloneInverseFlipsRoundTrip(t *testing.T) {
	a := makeAnimation("walk", []FrameDelta{{DX: 4, DY: -2}, {DX: -1, DY: 3}})
	a.Frames()[0].Children = []ChildFrame{{ChildIndex: 0, DX: 6, DY: -8, Visible: true}}
	a.Paths = [][]FrameDelta{{{DX: 9}, {DY: 9}}}

	mods := CloneModifiers{FlipMovementH: true, FlipMovementV: true, Reverse: true}
	b := CloneAnimation(a, mods)
	c := CloneAnimation(b, mods)

	af, cf := a.Frames(), c.Frames()
	if len(af) != len(cf) {
		t.Fatalf("frame counts differ: %d vs %d", len(af), len(cf))
	}
	for i := range af {
		if af[i].DX != cf[i].DX || af[i].DY != cf[i].DY {
			t.Errorf("frame %d = (%d,%d), want (%d,%d)",
				i, cf[i].DX, cf[i].DY, af[i].DX, af[i].DY)
		}
	}
	if got := cf[0].Children[0]; got.DX != 6 || got.DY != -8 {
		t.Errorf("child offset after round trip = (%d,%d), want (6,-8)", got.DX, got.DY)
	}
	for i := range a.Paths[0] {
		if a.Paths[0][i] != c.Paths[0][i] {
			t.Errorf("path delta %d = %+v, want %+v", i, c.Paths[0][i], a.Paths[0][i])
		}
	}
}

func TestCloneMirrorsHitGeometry(t *testing.T) {
	src := makeAnimation("slash", []FrameDelta{{}})
	src.Frames()[0].HitBoxes = map[DamageType][]Rect{
		DamageMelee: {{X: 10, Y: 0, W: 20, H: 30}},
	}
	src.Frames()[0].Attacks = map[DamageType][]AttackVector{
		DamageMelee: {{P0: FPoint{X: 1}, P1: FPoint{X: 2}, P2: FPoint{X: 3}}},
	}

	out := CloneAnimation(src, CloneModifiers{FlipH: true})
	hb := out.Frames()[0].HitBoxes[DamageMelee][0]
	if hb.X != -30 || hb.W != 20 {
		t.Errorf("mirrored hit box = %+v, want X -30 W 20", hb)
	}
	av := out.Frames()[0].Attacks[DamageMelee][0]
	if av.P0.X != -1 || av.P1.X != -2 || av.P2.X != -3 {
		t.Errorf("mirrored attack = %+v", av)
	}
}

func TestAttackVectorBezier(t *testing.T) {
	v := AttackVector{P0: FPoint{X: 0, Y: 0}, P1: FPoint{X: 5, Y: 10}, P2: FPoint{X: 10, Y: 0}}
	if p := v.At(0); p != (FPoint{X: 0, Y: 0}) {
		t.Errorf("At(0) = %v", p)
	}
	if p := v.At(1); p != (FPoint{X: 10, Y: 0}) {
		t.Errorf("At(1) = %v", p)
	}
	mid := v.At(0.5)
	if !approxEqual(mid.X, 5, epsilon) || !approxEqual(mid.Y, 5, epsilon) {
		t.Errorf("At(0.5) = %v, want (5,5)", mid)
	}
}
