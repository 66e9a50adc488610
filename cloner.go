package vibble

import "github.com/hajimehoshi/ebiten/v2"

// ApplyChildFrameFlip mirrors child offsets per the clone modifiers. Each
// axis is negated at most once: a texture flip and a movement flip on the
// same axis still produce a single sign change.
func ApplyChildFrameFlip(children []ChildFrame, m CloneModifiers) {
	flipH := m.FlipH || m.FlipMovementH
	flipV := m.FlipV || m.FlipMovementV
	if !flipH && !flipV {
		return
	}
	for i := range children {
		if flipH {
			children[i].DX = -children[i].DX
			children[i].Degrees = -children[i].Degrees
		}
		if flipV {
			children[i].DY = -children[i].DY
		}
	}
}

// flipImage renders src into a fresh texture mirrored along the requested
// axes. Returns src unchanged when no flip is requested.
func flipImage(src *ebiten.Image, flipH, flipV bool) *ebiten.Image {
	if src == nil || (!flipH && !flipV) {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := ebiten.NewImage(w, h)
	op := &ebiten.DrawImageOptions{}
	sx, sy := 1.0, 1.0
	tx, ty := 0.0, 0.0
	if flipH {
		sx = -1
		tx = float64(w)
	}
	if flipV {
		sy = -1
		ty = float64(h)
	}
	op.GeoM.Scale(sx, sy)
	op.GeoM.Translate(tx, ty)
	dst.DrawImage(src, op)
	return dst
}

// cloneVariant flips every layer of a frame variant.
func cloneVariant(v FrameVariant, flipH, flipV bool) FrameVariant {
	return FrameVariant{
		Base:       flipImage(v.Base, flipH, flipV),
		Foreground: flipImage(v.Foreground, flipH, flipV),
		Background: flipImage(v.Background, flipH, flipV),
		Mask:       flipImage(v.Mask, flipH, flipV),
		W:          v.W,
		H:          v.H,
	}
}

// CloneAnimation deep-copies src's frames while applying the modifiers:
// texture flips through render targets, frame order reversal, movement and
// child offset mirroring. The source is left untouched, so a failed or
// partial clone never corrupts its sibling.
func CloneAnimation(src *Animation, m CloneModifiers) *Animation {
	out := &Animation{
		Name:         src.Name,
		VariantSteps: append([]float64(nil), src.VariantSteps...),
		Loop:         src.Loop,
		Locked:       src.Locked,
		Randomize:    src.Randomize,
		RndStart:     src.RndStart,
		OnEnd:        src.OnEnd,
		ChildNames:   append([]string(nil), src.ChildNames...),
	}

	srcFrames := src.Frames()
	frames := make([]*AnimationFrame, len(srcFrames))
	for i, sf := range srcFrames {
		f := &AnimationFrame{
			DX:       sf.DX,
			DY:       sf.DY,
			ZResort:  sf.ZResort,
			ColorMod: sf.ColorMod,
			Children: append([]ChildFrame(nil), sf.Children...),
		}
		if m.FlipMovementH {
			f.DX = -f.DX
		}
		if m.FlipMovementV {
			f.DY = -f.DY
		}
		ApplyChildFrameFlip(f.Children, m)

		if len(sf.Variants) > 0 {
			f.Variants = make([]FrameVariant, len(sf.Variants))
			for vi, v := range sf.Variants {
				f.Variants[vi] = cloneVariant(v, m.FlipH, m.FlipV)
			}
		}

		f.HitBoxes = cloneHitBoxes(sf.HitBoxes, m)
		f.Attacks = cloneAttacks(sf.Attacks, m)
		frames[i] = f
	}

	if m.Reverse {
		for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
			frames[i], frames[j] = frames[j], frames[i]
		}
	}

	out.setFrames(frames)

	out.Paths = make([][]FrameDelta, len(src.Paths))
	for pi, path := range src.Paths {
		cp := make([]FrameDelta, len(path))
		for i, d := range path {
			if m.FlipMovementH {
				d.DX = -d.DX
			}
			if m.FlipMovementV {
				d.DY = -d.DY
			}
			cp[i] = d
		}
		if m.Reverse {
			for i, j := 0, len(cp)-1; i < j; i, j = i+1, j-1 {
				cp[i], cp[j] = cp[j], cp[i]
			}
		}
		out.Paths[pi] = cp
	}

	out.ChildTimelines = make([]*ChildTimeline, len(src.ChildTimelines))
	for ti, tl := range src.ChildTimelines {
		ct := &ChildTimeline{
			ChildIndex:    tl.ChildIndex,
			AssetName:     tl.AssetName,
			AnimationName: tl.AnimationName,
			Mode:          tl.Mode,
			AutoStart:     tl.AutoStart,
			Frames:        append([]ChildSample(nil), tl.Frames...),
		}
		flipH := m.FlipH || m.FlipMovementH
		flipV := m.FlipV || m.FlipMovementV
		for i := range ct.Frames {
			if flipH {
				ct.Frames[i].DX = -ct.Frames[i].DX
				ct.Frames[i].Degrees = -ct.Frames[i].Degrees
			}
			if flipV {
				ct.Frames[i].DY = -ct.Frames[i].DY
			}
		}
		out.ChildTimelines[ti] = ct
	}

	return out
}

// cloneHitBoxes mirrors hit rects about the asset origin per the flip flags.
func cloneHitBoxes(src map[DamageType][]Rect, m CloneModifiers) map[DamageType][]Rect {
	if len(src) == 0 {
		return nil
	}
	out := make(map[DamageType][]Rect, len(src))
	for dt, rects := range src {
		cp := make([]Rect, len(rects))
		for i, r := range rects {
			if m.FlipH || m.FlipMovementH {
				r.X = -(r.X + r.W)
			}
			if m.FlipV || m.FlipMovementV {
				r.Y = -(r.Y + r.H)
			}
			cp[i] = r
		}
		out[dt] = cp
	}
	return out
}

// cloneAttacks mirrors attack vectors about the asset origin.
func cloneAttacks(src map[DamageType][]AttackVector, m CloneModifiers) map[DamageType][]AttackVector {
	if len(src) == 0 {
		return nil
	}
	flipH := m.FlipH || m.FlipMovementH
	flipV := m.FlipV || m.FlipMovementV
	out := make(map[DamageType][]AttackVector, len(src))
	for dt, vecs := range src {
		cp := make([]AttackVector, len(vecs))
		for i, v := range vecs {
			if flipH {
				v.P0.X, v.P1.X, v.P2.X = -v.P0.X, -v.P1.X, -v.P2.X
			}
			if flipV {
				v.P0.Y, v.P1.Y, v.P2.Y = -v.P0.Y, -v.P1.Y, -v.P2.Y
			}
			cp[i] = v
		}
		out[dt] = cp
	}
	return out
}
