package vibble

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"strconv"
	"testing"
	"testing/fstest"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// frameFS builds a map filesystem with n normal frames for prop/walk at the
// 100 variant.
func frameFS(t *testing.T, n int) fstest.MapFS {
	t.Helper()
	fsys := fstest.MapFS{}
	for i := 0; i < n; i++ {
		fsys["prop/walk/100/normal/"+strconv.Itoa(i)+".png"] = &fstest.MapFile{Data: pngBytes(t, 4, 4)}
	}
	return fsys
}

func newTestLoader(t *testing.T, fsys fstest.MapFS) *AnimationLoader {
	t.Helper()
	l := NewAnimationLoader(fsys)
	l.CreateTextures = false
	return l
}

func TestLoadAnimationFrames(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 3))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}}

	an, err := l.LoadAnimation(info, "walk", []byte(`{
		"loop": true,
		"movement": [[1, 0], [2, 0], [3, 1]]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if an.NumberOfFrames() != 3 {
		t.Fatalf("frames = %d, want 3", an.NumberOfFrames())
	}
	if !an.Loop {
		t.Error("Loop = false")
	}
	if an.TotalDX != 6 || an.TotalDY != 1 {
		t.Errorf("totals = (%d,%d), want (6,1)", an.TotalDX, an.TotalDY)
	}
	first := an.FirstFrame()
	if !first.IsFirst || first.Next == nil || first.Next.Prev != first {
		t.Error("frame links broken")
	}
	if len(first.Variants) != 1 || first.Variants[0].Base == nil {
		t.Error("frame 0 has no loaded variant texture")
	}
	if info.Animation("walk") != an {
		t.Error("animation not registered on the info")
	}
}

func TestLoadAnimationMissingCacheFails(t *testing.T) {
	l := newTestLoader(t, fstest.MapFS{})
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}}

	_, err := l.LoadAnimation(info, "walk", []byte(`{"movement": [[1,0]]}`))
	if !errors.Is(err, ErrAnimationLoadFailed) {
		t.Fatalf("err = %v, want ErrAnimationLoadFailed", err)
	}
	if info.Animation("walk") != nil {
		t.Error("failed animation was still registered")
	}
}

func TestPermissiveScalars(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 1))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}}

	an, err := l.LoadAnimation(info, "walk", []byte(`{
		"loop": "true",
		"locked": 1,
		"randomize": "0",
		"movement": [["3", "-2"]]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if !an.Loop || !an.Locked || an.Randomize {
		t.Errorf("flags = loop %v locked %v randomize %v", an.Loop, an.Locked, an.Randomize)
	}
	f := an.FirstFrame()
	if f.DX != 3 || f.DY != -2 {
		t.Errorf("quoted deltas = (%d,%d), want (3,-2)", f.DX, f.DY)
	}
}

func TestOnEndParsing(t *testing.T) {
	cases := []struct {
		in   string
		want OnEndBehavior
	}{
		{"", OnEndBehavior{Kind: OnEndDefault}},
		{"default", OnEndBehavior{Kind: OnEndDefault}},
		{"stop", OnEndBehavior{Kind: OnEndStop}},
		{"idle", OnEndBehavior{Kind: OnEndNamed, Name: "idle"}},
	}
	for _, c := range cases {
		if got := parseOnEnd(c.in); got != c.want {
			t.Errorf("parseOnEnd(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestInvalidChildIndexDropped(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 1))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}, ChildNames: []string{"orb"}}

	an, err := l.LoadAnimation(info, "walk", []byte(`{
		"children": ["orb"],
		"movement": [{"dx": 0, "dy": 0, "children": [
			{"child_index": 5, "dx": 1, "dy": 1},
			{"child_index": 0, "dx": 2, "dy": 2}
		]}]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	f := an.FirstFrame()
	if len(f.Children) != 1 {
		t.Fatalf("children = %d, want 1 (invalid index dropped)", len(f.Children))
	}
	if f.Children[0].ChildIndex != 0 || f.Children[0].DX != 2 {
		t.Errorf("surviving child = %+v", f.Children[0])
	}
}

func TestStaticTimelineStretchesToParentFrames(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 4))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}, ChildNames: []string{"orb"}}

	// One authored sample; parent frame 1 carries its own child entry.
	an, err := l.LoadAnimation(info, "walk", []byte(`{
		"children": ["orb"],
		"movement": [
			[0, 0],
			{"dx": 0, "dy": 0, "children": [{"child_index": 0, "dx": 7, "dy": -3}]},
			[0, 0],
			[0, 0]
		],
		"child_timelines": [
			{"child_index": 0, "mode": "static", "frames": [{"dx": 1, "dy": 1}]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(an.ChildTimelines) != 1 {
		t.Fatalf("timelines = %d, want 1", len(an.ChildTimelines))
	}
	tl := an.ChildTimelines[0]
	if len(tl.Frames) != 4 {
		t.Fatalf("timeline samples = %d, want 4", len(tl.Frames))
	}
	if tl.Frames[0].DX != 1 || tl.Frames[0].DY != 1 {
		t.Errorf("sample 0 = %+v, want the authored sample", tl.Frames[0])
	}
	if tl.Frames[1].DX != 7 || tl.Frames[1].DY != -3 {
		t.Errorf("sample 1 = %+v, want the per-frame child entry", tl.Frames[1])
	}
}

func TestAsyncTimelineInheritsPreviousFrames(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 1))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}, ChildNames: []string{"orb"}}

	_, err := l.LoadAnimation(info, "walk", []byte(`{
		"children": ["orb"],
		"movement": [[0, 0]],
		"child_timelines": [
			{"child_index": 0, "mode": "async", "frames": [
				{"dx": 1}, {"dx": 2}, {"dx": 3}, {"dx": 4}
			]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	// Reload omitting frames: the async descriptor keeps the old cursor
	// data.
	an, err := l.LoadAnimation(info, "walk", []byte(`{
		"children": ["orb"],
		"movement": [[0, 0]],
		"child_timelines": [
			{"child_index": 0, "mode": "async"}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	tl := an.ChildTimelines[0]
	if tl.Mode != ChildAsync {
		t.Fatalf("mode = %v, want async", tl.Mode)
	}
	if len(tl.Frames) != 4 {
		t.Fatalf("inherited samples = %d, want 4", len(tl.Frames))
	}
	if tl.Frames[3].DX != 4 {
		t.Errorf("sample 3 DX = %d, want 4", tl.Frames[3].DX)
	}
}

func TestLoadAnimationHitGeometry(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 3))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}}

	an, err := l.LoadAnimation(info, "walk", []byte(`{
		"movement": [[0, 0], [0, 0], [0, 0]],
		"hit_geometry": [
			{"melee": {"center_x": 4, "center_y": -6, "half_width": 5, "half_height": 10},
			 "projectile": [0, 0, 3, 3]},
			null,
			{"explosion": {"center_x": 0, "center_y": 0}}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	f0 := an.FrameAt(0)
	melee := f0.HitBoxes[DamageMelee]
	if len(melee) != 1 || melee[0] != (Rect{X: -1, Y: -16, W: 10, H: 20}) {
		t.Errorf("melee boxes = %v, want [{-1 -16 10 20}]", melee)
	}
	proj := f0.HitBoxes[DamageProjectile]
	if len(proj) != 1 || proj[0] != (Rect{X: -3, Y: -3, W: 6, H: 6}) {
		t.Errorf("projectile boxes = %v, want [{-3 -3 6 6}]", proj)
	}
	if an.FrameAt(1).HitBoxes != nil {
		t.Error("null entry did not clear frame 1 geometry")
	}
	// Zero half extents make the box degenerate; it must be dropped.
	if an.FrameAt(2).HitBoxes != nil {
		t.Errorf("frame 2 boxes = %v, want none", an.FrameAt(2).HitBoxes)
	}
}

func TestLoadAnimationAttackGeometry(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 2))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}}

	an, err := l.LoadAnimation(info, "walk", []byte(`{
		"movement": [[0, 0], [0, 0]],
		"attack_geometry": [
			{"melee": [
				{"start_x": 0, "start_y": 0, "end_x": 10, "end_y": 0, "damage": 7},
				[2, 2, 6, 6, 3]
			]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	vecs := an.FrameAt(0).Attacks[DamageMelee]
	if len(vecs) != 2 {
		t.Fatalf("melee vectors = %d, want 2", len(vecs))
	}
	v := vecs[0]
	if v.P0 != (FPoint{}) || v.P2 != (FPoint{X: 10}) || v.Damage != 7 {
		t.Errorf("vector 0 = %+v", v)
	}
	// No authored control point: the curve degrades to a straight segment.
	if v.P1 != (FPoint{X: 5}) {
		t.Errorf("vector 0 control = %v, want midpoint (5,0)", v.P1)
	}
	v = vecs[1]
	if v.P0 != (FPoint{X: 2, Y: 2}) || v.P2 != (FPoint{X: 6, Y: 6}) || v.Damage != 3 {
		t.Errorf("vector 1 = %+v", v)
	}
	if an.FrameAt(1).Attacks != nil {
		t.Error("frame 1 has attack geometry beyond the authored array")
	}
}

func TestTimelineMissingModeAborts(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 1))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}, ChildNames: []string{"orb"}}

	_, err := l.LoadAnimation(info, "walk", []byte(`{
		"children": ["orb"],
		"movement": [[0, 0]],
		"child_timelines": [{"child_index": 0}]
	}`))
	if !errors.Is(err, ErrAnimationLoadFailed) {
		t.Fatalf("err = %v, want ErrAnimationLoadFailed", err)
	}
}

func TestCloneSourceMissingFails(t *testing.T) {
	l := newTestLoader(t, fstest.MapFS{})
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}}

	_, err := l.LoadAnimation(info, "walk_left", []byte(`{
		"source": {"kind": "animation", "name": "walk"},
		"flipped_source": true
	}`))
	if !errors.Is(err, ErrAnimationCloneFailed) {
		t.Fatalf("err = %v, want ErrAnimationCloneFailed", err)
	}
}

func TestCloneFromSibling(t *testing.T) {
	l := newTestLoader(t, frameFS(t, 2))
	info := &AssetInfo{Name: "prop", VariantSteps: []float64{1.0}}

	if _, err := l.LoadAnimation(info, "walk", []byte(`{
		"movement": [[5, 0], [3, 0]]
	}`)); err != nil {
		t.Fatal(err)
	}

	left, err := l.LoadAnimation(info, "walk_left", []byte(`{
		"source": {"kind": "animation", "name": "walk"},
		"flip_movement_horizontal": true,
		"inherit_source_movement": true
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if left.NumberOfFrames() != 2 {
		t.Fatalf("cloned frames = %d, want 2", left.NumberOfFrames())
	}
	if left.TotalDX != -8 {
		t.Errorf("cloned TotalDX = %d, want -8", left.TotalDX)
	}
}

func TestVariantFolderKey(t *testing.T) {
	cases := []struct {
		step float64
		want string
	}{
		{1.0, "100"}, {0.75, "75"}, {0.5, "50"}, {0.25, "25"},
	}
	for _, c := range cases {
		if got := variantFolderKey(c.step); got != c.want {
			t.Errorf("variantFolderKey(%v) = %q, want %q", c.step, got, c.want)
		}
	}
}

func TestNormalizeVariantSteps(t *testing.T) {
	got := normalizeVariantSteps([]float64{0.5, 1.0, 0.75, 0.75, -2, 0})
	want := []float64{1.0, 0.75, 0.5}
	if len(got) != len(want) {
		t.Fatalf("steps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("steps = %v, want %v", got, want)
		}
	}
	if got := normalizeVariantSteps(nil); len(got) != 1 || got[0] != 1.0 {
		t.Errorf("empty ladder = %v, want [1.0]", got)
	}
}
