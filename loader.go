package vibble

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
)

var (
	// ErrAnimationLoadFailed reports a missing frame cache or a fatal
	// descriptor error. The animation is left empty and may be retried.
	ErrAnimationLoadFailed = errors.New("vibble: animation load failed")

	// ErrAnimationCloneFailed reports a missing or empty clone source. The
	// destination is left untouched.
	ErrAnimationCloneFailed = errors.New("vibble: animation clone failed")
)

// --- Permissive scalar parsing ---
//
// Authored JSON is hand-edited; booleans arrive as true, "true", 1, or "1",
// and numbers arrive quoted as often as not. Every field parse falls back to
// a default instead of failing the load.

func permBool(raw json.RawMessage, def bool) bool {
	if len(raw) == 0 {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off", "":
			return false
		}
	}
	return def
}

func permFloat(raw json.RawMessage, def float64) float64 {
	if len(raw) == 0 {
		return def
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return def
}

func permInt(raw json.RawMessage, def int) int {
	return int(math.Floor(permFloat(raw, float64(def)) + 0.5))
}

func permString(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return def
}

// --- Authored JSON shapes ---

type sourceJSON struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type derivedModsJSON struct {
	Reverse       json.RawMessage `json:"reverse"`
	FlipX         json.RawMessage `json:"flipX"`
	FlipY         json.RawMessage `json:"flipY"`
	FlipMovementX json.RawMessage `json:"flipMovementX"`
	FlipMovementY json.RawMessage `json:"flipMovementY"`
}

type childEntryJSON struct {
	ChildIndex    json.RawMessage `json:"child_index"`
	Child         json.RawMessage `json:"child"`
	Asset         string          `json:"asset"`
	DX            json.RawMessage `json:"dx"`
	DY            json.RawMessage `json:"dy"`
	Degree        json.RawMessage `json:"degree"`
	Visible       json.RawMessage `json:"visible"`
	RenderInFront json.RawMessage `json:"render_in_front"`
}

type childSampleJSON struct {
	DX            json.RawMessage `json:"dx"`
	DY            json.RawMessage `json:"dy"`
	Degree        json.RawMessage `json:"degree"`
	Visible       json.RawMessage `json:"visible"`
	RenderInFront json.RawMessage `json:"render_in_front"`
}

type childTimelineJSON struct {
	Child      json.RawMessage   `json:"child"`
	ChildIndex json.RawMessage   `json:"child_index"`
	Asset      string            `json:"asset"`
	Mode       string            `json:"mode"`
	AutoStart  json.RawMessage   `json:"auto_start"`
	Animation  string            `json:"animation"`
	Frames     []childSampleJSON `json:"frames"`
}

type audioJSON struct {
	Name   string          `json:"name"`
	Volume json.RawMessage `json:"volume"`
}

type frameObjectJSON struct {
	DX       json.RawMessage  `json:"dx"`
	DY       json.RawMessage  `json:"dy"`
	ResortZ  json.RawMessage  `json:"resort_z"`
	RGB      []int            `json:"rgb"`
	Children []childEntryJSON `json:"children"`
}

type animationJSON struct {
	Source                *sourceJSON      `json:"source"`
	FlippedSource         json.RawMessage  `json:"flipped_source"`
	FlipVerticalSource    json.RawMessage  `json:"flip_vertical_source"`
	FlipMovementH         json.RawMessage  `json:"flip_movement_horizontal"`
	FlipMovementV         json.RawMessage  `json:"flip_movement_vertical"`
	ReverseSource         json.RawMessage  `json:"reverse_source"`
	InheritSourceMovement json.RawMessage  `json:"inherit_source_movement"`
	DerivedModifiers      *derivedModsJSON `json:"derived_modifiers"`

	Locked    json.RawMessage `json:"locked"`
	Loop      json.RawMessage `json:"loop"`
	Randomize json.RawMessage `json:"randomize"`
	RndStart  json.RawMessage `json:"rnd_start"`
	OnEnd     string          `json:"on_end"`

	Children     []string  `json:"children"`
	VariantSteps []float64 `json:"variant_steps"`

	Movement       []json.RawMessage   `json:"movement"`
	MovementPaths  [][]json.RawMessage `json:"movement_paths"`
	ChildTimelines []json.RawMessage   `json:"child_timelines"`

	HitGeometry    []json.RawMessage `json:"hit_geometry"`
	AttackGeometry []json.RawMessage `json:"attack_geometry"`

	Audio *audioJSON `json:"audio"`
}

type hitBoxJSON struct {
	CenterX    json.RawMessage `json:"center_x"`
	CenterY    json.RawMessage `json:"center_y"`
	HalfWidth  json.RawMessage `json:"half_width"`
	HalfHeight json.RawMessage `json:"half_height"`
}

type attackVectorJSON struct {
	StartX   json.RawMessage `json:"start_x"`
	StartY   json.RawMessage `json:"start_y"`
	ControlX json.RawMessage `json:"control_x"`
	ControlY json.RawMessage `json:"control_y"`
	EndX     json.RawMessage `json:"end_x"`
	EndY     json.RawMessage `json:"end_y"`
	Damage   json.RawMessage `json:"damage"`
}

var damageTypes = [...]DamageType{DamageProjectile, DamageMelee, DamageExplosion}

// AnimationLoader materializes Animations from authored JSON plus the
// on-disk frame texture cache, and derives animations from siblings through
// the cloner. Decoded PNGs are cached by path across loads.
type AnimationLoader struct {
	FS    fs.FS
	Audio *AudioEngine

	// CreateTextures gates GPU texture creation. Headless tests load frame
	// metadata and timelines without touching ebiten image allocation.
	CreateTextures bool

	images map[string]*ebiten.Image
}

// NewAnimationLoader creates a loader over the given asset filesystem.
func NewAnimationLoader(fsys fs.FS) *AnimationLoader {
	return &AnimationLoader{
		FS:             fsys,
		CreateTextures: true,
		images:         make(map[string]*ebiten.Image),
	}
}

// variantFolderKey maps a normalized ladder step to its cache folder name:
// the step as an integer percentage.
func variantFolderKey(step float64) string {
	return strconv.Itoa(int(math.Floor(step*100 + 0.5)))
}

// parseOnEnd classifies the authored on_end value.
func parseOnEnd(s string) OnEndBehavior {
	switch s {
	case "", "default":
		return OnEndBehavior{Kind: OnEndDefault}
	case "stop":
		return OnEndBehavior{Kind: OnEndStop}
	default:
		return OnEndBehavior{Kind: OnEndNamed, Name: s}
	}
}

// LoadAnimation builds the named animation of info from its authored JSON.
// On failure the returned animation is empty and the error classifies the
// cause; the caller may retry. The previous animation of the same name, if
// any, donates async child-timeline frames when the new JSON omits them.
func (l *AnimationLoader) LoadAnimation(info *AssetInfo, name string, raw []byte) (*Animation, error) {
	var aj animationJSON
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &aj); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", ErrAnimationLoadFailed, info.Name, name, err)
		}
	}

	prev := info.Animation(name)
	if prev != nil {
		prev.releaseTextures()
	}

	an := &Animation{
		Name:      name,
		Loop:      permBool(aj.Loop, false),
		Locked:    permBool(aj.Locked, false),
		Randomize: permBool(aj.Randomize, false),
		RndStart:  permBool(aj.RndStart, false),
		OnEnd:     parseOnEnd(aj.OnEnd),
	}

	steps := aj.VariantSteps
	if len(steps) == 0 {
		steps = info.VariantSteps
	}
	an.VariantSteps = normalizeVariantSteps(steps)

	if aj.Source != nil {
		an.Source = AnimationSource{
			Kind: SourceFolder,
			Name: aj.Source.Name,
			Path: aj.Source.Path,
		}
		if aj.Source.Kind == "animation" {
			an.Source.Kind = SourceAnimation
		}
	}
	an.Modifiers = l.parseModifiers(&aj)
	an.ChildNames = aj.Children

	// Movement frames before textures: the frame list defines the cache
	// length for folder sources with no frames on disk yet.
	frames, err := l.parseMovement(info, &aj)
	if err != nil {
		return nil, err
	}

	switch an.Source.Kind {
	case SourceAnimation:
		src := info.Animation(an.Source.Name)
		if src == nil || src.NumberOfFrames() == 0 {
			return nil, fmt.Errorf("%w: %s/%s: source animation %q unavailable",
				ErrAnimationCloneFailed, info.Name, name, an.Source.Name)
		}
		an.VariantSteps = append([]float64(nil), src.VariantSteps...)
		cloned := CloneAnimation(src, an.Modifiers)
		if an.Modifiers.InheritMovement || len(frames) == 0 {
			frames = cloned.Frames()
		} else {
			// Keep authored movement, adopt cloned textures.
			adoptFrameTextures(frames, cloned.Frames())
		}
	default:
		if err := l.loadFrameCache(info, an, frames); err != nil {
			return nil, err
		}
		frames = applyMovementModifiers(frames, an.Modifiers)
	}

	applyCombatGeometry(frames, aj.HitGeometry, aj.AttackGeometry)

	an.setFrames(frames)
	an.Paths = l.parsePaths(&aj)
	an.normalizePaths()

	if err := l.loadChildTimelines(an, prev, &aj, frames); err != nil {
		return nil, err
	}

	l.loadAudio(info, an, aj.Audio)

	if info.Animations == nil {
		info.Animations = make(map[string]*Animation)
	}
	info.Animations[name] = an
	return an, nil
}

// parseModifiers folds the flat flip flags and the derived_modifiers object
// into one CloneModifiers; the object overrides the flat keys.
func (l *AnimationLoader) parseModifiers(aj *animationJSON) CloneModifiers {
	m := CloneModifiers{
		FlipH:           permBool(aj.FlippedSource, false),
		FlipV:           permBool(aj.FlipVerticalSource, false),
		Reverse:         permBool(aj.ReverseSource, false),
		FlipMovementH:   permBool(aj.FlipMovementH, false),
		FlipMovementV:   permBool(aj.FlipMovementV, false),
		InheritMovement: permBool(aj.InheritSourceMovement, false),
	}
	if d := aj.DerivedModifiers; d != nil {
		m.Reverse = permBool(d.Reverse, m.Reverse)
		m.FlipH = permBool(d.FlipX, m.FlipH)
		m.FlipV = permBool(d.FlipY, m.FlipV)
		m.FlipMovementH = permBool(d.FlipMovementX, m.FlipMovementH)
		m.FlipMovementV = permBool(d.FlipMovementY, m.FlipMovementV)
	}
	return m
}

// parseMovement builds the frame list from the authored movement array.
// Entries come in array form [dx, dy, z_resort?, rgb?, children?] or object
// form. Child entries with an out-of-range index are dropped with a
// diagnostic.
func (l *AnimationLoader) parseMovement(info *AssetInfo, aj *animationJSON) ([]*AnimationFrame, error) {
	frames := make([]*AnimationFrame, 0, len(aj.Movement))
	for i, raw := range aj.Movement {
		f, err := l.parseFrame(info, raw)
		if err != nil {
			log.Printf("vibble: %s movement frame %d: %v", info.Name, i, err)
			f = &AnimationFrame{ColorMod: ColorWhite}
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func (l *AnimationLoader) parseFrame(info *AssetInfo, raw json.RawMessage) (*AnimationFrame, error) {
	f := &AnimationFrame{ColorMod: ColorWhite}

	// Object form.
	if len(raw) > 0 && raw[0] == '{' {
		var obj frameObjectJSON
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		f.DX = permInt(obj.DX, 0)
		f.DY = permInt(obj.DY, 0)
		f.ZResort = permBool(obj.ResortZ, false)
		if len(obj.RGB) >= 3 {
			f.ColorMod = Color{
				R: float64(obj.RGB[0]) / 255,
				G: float64(obj.RGB[1]) / 255,
				B: float64(obj.RGB[2]) / 255,
				A: 1,
			}
		}
		f.Children = l.parseChildEntries(info, obj.Children)
		return f, nil
	}

	// Array form.
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, err
	}
	if len(arr) > 0 {
		f.DX = permInt(arr[0], 0)
	}
	if len(arr) > 1 {
		f.DY = permInt(arr[1], 0)
	}
	if len(arr) > 2 {
		f.ZResort = permBool(arr[2], false)
	}
	if len(arr) > 3 {
		var rgb []int
		if err := json.Unmarshal(arr[3], &rgb); err == nil && len(rgb) >= 3 {
			f.ColorMod = Color{
				R: float64(rgb[0]) / 255,
				G: float64(rgb[1]) / 255,
				B: float64(rgb[2]) / 255,
				A: 1,
			}
		}
	}
	if len(arr) > 4 {
		var entries []childEntryJSON
		if err := json.Unmarshal(arr[4], &entries); err == nil {
			f.Children = l.parseChildEntries(info, entries)
		}
	}
	return f, nil
}

// parseChildEntries resolves child references by index or asset name against
// info.ChildNames, dropping out-of-range entries.
func (l *AnimationLoader) parseChildEntries(info *AssetInfo, entries []childEntryJSON) []ChildFrame {
	if len(entries) == 0 {
		return nil
	}
	out := make([]ChildFrame, 0, len(entries))
	for _, e := range entries {
		idx := l.resolveChildIndex(info, e.ChildIndex, e.Child, e.Asset)
		if idx < 0 {
			log.Printf("vibble: %s: child entry with invalid index dropped", info.Name)
			continue
		}
		out = append(out, ChildFrame{
			ChildIndex:    idx,
			DX:            permInt(e.DX, 0),
			DY:            permInt(e.DY, 0),
			Degrees:       permFloat(e.Degree, 0),
			Visible:       permBool(e.Visible, true),
			RenderInFront: permBool(e.RenderInFront, false),
		})
	}
	return out
}

// resolveChildIndex returns the child slot for an index or asset-name
// reference, or -1 when out of range.
func (l *AnimationLoader) resolveChildIndex(info *AssetInfo, idxRaw, childRaw json.RawMessage, assetName string) int {
	idx := permInt(idxRaw, -1)
	if idx < 0 {
		idx = permInt(childRaw, -1)
	}
	if idx < 0 && assetName != "" {
		for i, n := range info.ChildNames {
			if n == assetName {
				idx = i
				break
			}
		}
	}
	if idx < 0 || idx >= len(info.ChildNames) {
		return -1
	}
	return idx
}

// parsePaths builds the secondary movement paths. Path entries reuse the
// frame forms but only the deltas are consumed.
func (l *AnimationLoader) parsePaths(aj *animationJSON) [][]FrameDelta {
	if len(aj.MovementPaths) == 0 {
		return nil
	}
	paths := make([][]FrameDelta, 0, len(aj.MovementPaths))
	for _, rawPath := range aj.MovementPaths {
		path := make([]FrameDelta, 0, len(rawPath))
		for _, raw := range rawPath {
			var arr []json.RawMessage
			if err := json.Unmarshal(raw, &arr); err == nil {
				d := FrameDelta{}
				if len(arr) > 0 {
					d.DX = permInt(arr[0], 0)
				}
				if len(arr) > 1 {
					d.DY = permInt(arr[1], 0)
				}
				path = append(path, d)
				continue
			}
			var obj frameObjectJSON
			if err := json.Unmarshal(raw, &obj); err == nil {
				path = append(path, FrameDelta{DX: permInt(obj.DX, 0), DY: permInt(obj.DY, 0)})
				continue
			}
			path = append(path, FrameDelta{})
		}
		paths = append(paths, path)
	}
	return paths
}

// applyCombatGeometry overlays the authored hit_geometry and attack_geometry
// arrays onto the frame list, one entry per frame index. An authored entry
// replaces the frame's geometry wholesale; frames past the end of an array
// keep what they already carry.
func applyCombatGeometry(frames []*AnimationFrame, hit, attack []json.RawMessage) {
	for i, f := range frames {
		if i < len(hit) {
			f.HitBoxes = parseHitGeometry(hit[i])
		}
		if i < len(attack) {
			f.Attacks = parseAttackGeometry(attack[i])
		}
	}
}

// parseHitGeometry decodes one frame's hit entry: an object keyed by damage
// type, or a bare box treated as melee. Degenerate boxes are dropped.
func parseHitGeometry(raw json.RawMessage) map[DamageType][]Rect {
	var out map[DamageType][]Rect
	add := func(dt DamageType, node json.RawMessage) {
		r, ok := parseHitBox(node)
		if !ok {
			return
		}
		if out == nil {
			out = make(map[DamageType][]Rect)
		}
		out[dt] = append(out[dt], r)
	}

	if len(raw) > 0 && raw[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		for _, dt := range damageTypes {
			if node, ok := obj[string(dt)]; ok {
				add(dt, node)
			}
		}
		return out
	}
	add(DamageMelee, raw)
	return out
}

// parseHitBox decodes a centered box node, object form {center_x, center_y,
// half_width, half_height} or array form [cx, cy, hw, hh], into an
// axis-aligned Rect.
func parseHitBox(raw json.RawMessage) (Rect, bool) {
	var cx, cy, hw, hh float64
	if len(raw) > 0 && raw[0] == '{' {
		var b hitBoxJSON
		if err := json.Unmarshal(raw, &b); err != nil {
			return Rect{}, false
		}
		cx = permFloat(b.CenterX, 0)
		cy = permFloat(b.CenterY, 0)
		hw = permFloat(b.HalfWidth, 0)
		hh = permFloat(b.HalfHeight, 0)
	} else {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return Rect{}, false
		}
		if len(arr) > 0 {
			cx = permFloat(arr[0], 0)
		}
		if len(arr) > 1 {
			cy = permFloat(arr[1], 0)
		}
		if len(arr) > 2 {
			hw = permFloat(arr[2], 0)
		}
		if len(arr) > 3 {
			hh = permFloat(arr[3], 0)
		}
	}
	if hw <= 0 || hh <= 0 {
		return Rect{}, false
	}
	return Rect{
		X: int(math.Floor(cx - hw + 0.5)),
		Y: int(math.Floor(cy - hh + 0.5)),
		W: int(math.Floor(hw*2 + 0.5)),
		H: int(math.Floor(hh*2 + 0.5)),
	}, true
}

// parseAttackGeometry decodes one frame's attack entry: an object keyed by
// damage type, each key holding an array of vector nodes.
func parseAttackGeometry(raw json.RawMessage) map[DamageType][]AttackVector {
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var obj map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	var out map[DamageType][]AttackVector
	for _, dt := range damageTypes {
		for _, node := range obj[string(dt)] {
			v, ok := parseAttackVector(node)
			if !ok {
				continue
			}
			if out == nil {
				out = make(map[DamageType][]AttackVector)
			}
			out[dt] = append(out[dt], v)
		}
	}
	return out
}

// parseAttackVector decodes a Bezier vector node, object form {start_x,
// start_y, control_x?, control_y?, end_x, end_y, damage} or array form
// [sx, sy, ex, ey, damage?]. A missing control point defaults to the
// start/end midpoint, degrading the curve to a straight segment.
func parseAttackVector(raw json.RawMessage) (AttackVector, bool) {
	var v AttackVector
	if len(raw) > 0 && raw[0] == '{' {
		var a attackVectorJSON
		if err := json.Unmarshal(raw, &a); err != nil {
			return v, false
		}
		v.P0 = FPoint{X: permFloat(a.StartX, 0), Y: permFloat(a.StartY, 0)}
		v.P2 = FPoint{X: permFloat(a.EndX, 0), Y: permFloat(a.EndY, 0)}
		if len(a.ControlX) > 0 || len(a.ControlY) > 0 {
			v.P1 = FPoint{X: permFloat(a.ControlX, v.P0.X), Y: permFloat(a.ControlY, v.P0.Y)}
		} else {
			v.P1 = FPoint{X: (v.P0.X + v.P2.X) / 2, Y: (v.P0.Y + v.P2.Y) / 2}
		}
		v.Damage = permFloat(a.Damage, 0)
		return v, true
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return v, false
	}
	if len(arr) > 0 {
		v.P0.X = permFloat(arr[0], 0)
	}
	if len(arr) > 1 {
		v.P0.Y = permFloat(arr[1], 0)
	}
	if len(arr) > 2 {
		v.P2.X = permFloat(arr[2], 0)
	}
	if len(arr) > 3 {
		v.P2.Y = permFloat(arr[3], 0)
	}
	if len(arr) > 4 {
		v.Damage = permFloat(arr[4], 0)
	}
	v.P1 = FPoint{X: (v.P0.X + v.P2.X) / 2, Y: (v.P0.Y + v.P2.Y) / 2}
	return v, true
}

// loadFrameCache loads the folder-layout texture cache into the frame list,
// extending it when the cache holds more frames than the movement array.
// Every variant folder missing normal/0.png fails the load.
func (l *AnimationLoader) loadFrameCache(info *AssetInfo, an *Animation, frames []*AnimationFrame) error {
	root := an.Source.Path
	if root == "" {
		root = info.Name
	}
	base := root + "/" + an.Name

	type variantCache struct {
		step   float64
		normal []*ebiten.Image
		fg     []*ebiten.Image
		bg     []*ebiten.Image
		mask   []*ebiten.Image
	}

	caches := make([]variantCache, 0, len(an.VariantSteps))
	maxFrames := 0
	anyLoaded := false
	for _, step := range an.VariantSteps {
		dir := base + "/" + variantFolderKey(step)
		vc := variantCache{step: step}
		vc.normal = l.loadFrameFolder(dir + "/normal")
		if len(vc.normal) > 0 {
			anyLoaded = true
			vc.fg = l.loadFrameFolder(dir + "/foreground")
			vc.bg = l.loadFrameFolder(dir + "/background")
			vc.mask = l.loadFrameFolder(dir + "/mask")
		}
		if len(vc.normal) > maxFrames {
			maxFrames = len(vc.normal)
		}
		caches = append(caches, vc)
	}
	if !anyLoaded {
		return fmt.Errorf("%w: %s/%s: no cached frames under %s",
			ErrAnimationLoadFailed, info.Name, an.Name, base)
	}

	for len(frames) < maxFrames {
		frames = append(frames, &AnimationFrame{ColorMod: ColorWhite})
	}

	for fi := 0; fi < len(frames) && fi < maxFrames; fi++ {
		variants := make([]FrameVariant, len(caches))
		for vi, vc := range caches {
			v := FrameVariant{}
			if fi < len(vc.normal) {
				v.Base = vc.normal[fi]
			} else if vi > 0 {
				// Missing variant texture falls back to the nearest
				// loaded ladder rung.
				v = variants[vi-1]
			}
			if fi < len(vc.fg) {
				v.Foreground = vc.fg[fi]
			}
			if fi < len(vc.bg) {
				v.Background = vc.bg[fi]
			}
			if fi < len(vc.mask) {
				v.Mask = vc.mask[fi]
			}
			if v.Base != nil {
				b := v.Base.Bounds()
				v.W, v.H = b.Dx(), b.Dy()
			}
			variants[vi] = v
		}
		frames[fi].Variants = variants
	}
	return nil
}

// loadFrameFolder reads <dir>/0.png, <dir>/1.png, ... until a number is
// missing. Returns nil when the folder or its first frame is absent.
func (l *AnimationLoader) loadFrameFolder(dir string) []*ebiten.Image {
	var out []*ebiten.Image
	for n := 0; ; n++ {
		img := l.loadImage(dir + "/" + strconv.Itoa(n) + ".png")
		if img == nil {
			break
		}
		out = append(out, img)
	}
	return out
}

// loadImage decodes a PNG through the path cache.
func (l *AnimationLoader) loadImage(path string) *ebiten.Image {
	if img, ok := l.images[path]; ok {
		return img
	}
	f, err := l.FS.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		log.Printf("vibble: decode %s: %v", path, err)
		return nil
	}
	var img *ebiten.Image
	if l.CreateTextures {
		img = ebiten.NewImageFromImage(decoded)
	} else {
		img = placeholderFor(decoded.Bounds())
	}
	l.images[path] = img
	return img
}

// placeholderFor stands in for a GPU texture during headless loads. The
// bounds survive so frame sizing stays correct.
func placeholderFor(b image.Rectangle) *ebiten.Image {
	w, h := b.Dx(), b.Dy()
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return ebiten.NewImageWithOptions(image.Rect(0, 0, w, h), &ebiten.NewImageOptions{Unmanaged: true})
}

// adoptFrameTextures copies cloned variant textures onto authored frames,
// index by index.
func adoptFrameTextures(dst, src []*AnimationFrame) {
	for i := range dst {
		if i < len(src) {
			dst[i].Variants = src[i].Variants
		}
	}
}

// applyMovementModifiers mirrors and reverses authored movement per the
// clone modifiers. Used for folder sources too, so a flipped walk cycle can
// be authored once.
func applyMovementModifiers(frames []*AnimationFrame, m CloneModifiers) []*AnimationFrame {
	if m.Reverse {
		for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
			frames[i], frames[j] = frames[j], frames[i]
		}
	}
	if m.FlipMovementH || m.FlipMovementV {
		for _, f := range frames {
			if m.FlipMovementH {
				f.DX = -f.DX
			}
			if m.FlipMovementV {
				f.DY = -f.DY
			}
		}
	}
	if m.FlipH || m.FlipV || m.FlipMovementH || m.FlipMovementV {
		for _, f := range frames {
			ApplyChildFrameFlip(f.Children, m)
		}
	}
	return frames
}

// loadChildTimelines builds the animation's child timeline descriptors.
// Explicit descriptors missing mode abort the load; when no descriptors are
// authored, static timelines are synthesized from per-frame child entries.
// Async descriptors with no authored frames inherit them from the previous
// load of the same animation.
func (l *AnimationLoader) loadChildTimelines(an *Animation, prev *Animation, aj *animationJSON, frames []*AnimationFrame) error {
	if len(aj.ChildTimelines) == 0 {
		an.ChildTimelines = synthesizeStaticTimelines(frames)
		return nil
	}

	info := &AssetInfo{Name: an.Name, ChildNames: an.ChildNames}
	timelines := make([]*ChildTimeline, 0, len(aj.ChildTimelines))
	for i, raw := range aj.ChildTimelines {
		var tj childTimelineJSON
		if err := json.Unmarshal(raw, &tj); err != nil {
			return fmt.Errorf("%w: %s: child timeline %d: %v", ErrAnimationLoadFailed, an.Name, i, err)
		}
		var mode ChildMode
		switch tj.Mode {
		case "static":
			mode = ChildStatic
		case "async":
			mode = ChildAsync
		default:
			return fmt.Errorf("%w: %s: child timeline %d missing mode", ErrAnimationLoadFailed, an.Name, i)
		}
		idx := l.resolveChildIndex(info, tj.ChildIndex, tj.Child, tj.Asset)
		if idx < 0 {
			log.Printf("vibble: %s: child timeline %d has invalid child, dropped", an.Name, i)
			continue
		}
		tl := &ChildTimeline{
			ChildIndex:    idx,
			AssetName:     childNameAt(an.ChildNames, idx),
			AnimationName: tj.Animation,
			Mode:          mode,
			AutoStart:     permBool(tj.AutoStart, false),
		}
		for _, sj := range tj.Frames {
			tl.Frames = append(tl.Frames, ChildSample{
				DX:            permInt(sj.DX, 0),
				DY:            permInt(sj.DY, 0),
				Degrees:       permFloat(sj.Degree, 0),
				Visible:       permBool(sj.Visible, true),
				RenderInFront: permBool(sj.RenderInFront, false),
			})
		}

		switch mode {
		case ChildStatic:
			tl.Frames = resizeStaticSamples(tl.Frames, frames, idx)
		case ChildAsync:
			if len(tl.Frames) == 0 && prev != nil {
				if pt := prev.timelineForChild(idx, ChildAsync); pt != nil {
					tl.Frames = append([]ChildSample(nil), pt.Frames...)
				}
			}
		}
		timelines = append(timelines, tl)
	}
	an.ChildTimelines = timelines
	return nil
}

// timelineForChild finds a timeline by child slot and mode.
func (an *Animation) timelineForChild(idx int, mode ChildMode) *ChildTimeline {
	for _, tl := range an.ChildTimelines {
		if tl.ChildIndex == idx && tl.Mode == mode {
			return tl
		}
	}
	return nil
}

func childNameAt(names []string, idx int) string {
	if idx >= 0 && idx < len(names) {
		return names[idx]
	}
	return ""
}

// resizeStaticSamples stretches a static timeline to one sample per parent
// frame. Unauthored indices fall back to the parent frame's own child entry
// for this slot, then to the last authored sample.
func resizeStaticSamples(samples []ChildSample, frames []*AnimationFrame, childIdx int) []ChildSample {
	n := len(frames)
	out := make([]ChildSample, n)
	last := ChildSample{Visible: true}
	for i := 0; i < n; i++ {
		switch {
		case i < len(samples):
			out[i] = samples[i]
		case frameChildSample(frames[i], childIdx) != nil:
			out[i] = *frameChildSample(frames[i], childIdx)
		default:
			out[i] = last
		}
		last = out[i]
	}
	return out
}

// frameChildSample extracts a frame's child entry for a slot as a sample.
func frameChildSample(f *AnimationFrame, childIdx int) *ChildSample {
	for _, c := range f.Children {
		if c.ChildIndex == childIdx {
			return &ChildSample{
				DX:            c.DX,
				DY:            c.DY,
				Degrees:       c.Degrees,
				Visible:       c.Visible,
				RenderInFront: c.RenderInFront,
			}
		}
	}
	return nil
}

// synthesizeStaticTimelines rebuilds static timelines from per-frame child
// entries when the JSON authors none.
func synthesizeStaticTimelines(frames []*AnimationFrame) []*ChildTimeline {
	slots := map[int]bool{}
	for _, f := range frames {
		for _, c := range f.Children {
			slots[c.ChildIndex] = true
		}
	}
	if len(slots) == 0 {
		return nil
	}
	var out []*ChildTimeline
	for idx := range slots {
		tl := &ChildTimeline{
			ChildIndex: idx,
			Mode:       ChildStatic,
		}
		tl.Frames = resizeStaticSamples(nil, frames, idx)
		out = append(out, tl)
	}
	return out
}

// loadAudio attaches the animation's audio clip. Failure is non-fatal: the
// animation plays silently.
func (l *AnimationLoader) loadAudio(info *AssetInfo, an *Animation, aj *audioJSON) {
	if aj == nil || aj.Name == "" || l.Audio == nil {
		return
	}
	clip, err := l.Audio.LoadClip(l.FS, aj.Name)
	if err != nil {
		log.Printf("vibble: %s/%s: audio: %v", info.Name, an.Name, err)
		return
	}
	vol := clampf(permFloat(aj.Volume, 100), 0, 100)
	clip.BaseVolume = vol / 100
	an.Audio = clip
}
