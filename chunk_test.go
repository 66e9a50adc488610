package vibble

import "testing"

func TestChunkManagerEnsureBounds(t *testing.T) {
	m := NewChunkManager()
	c := m.Ensure(2, -1, 6, Point{})
	if c == nil {
		t.Fatal("Ensure returned nil")
	}
	want := Rect{X: 128, Y: -64, W: 64, H: 64}
	if c.Bounds != want {
		t.Errorf("Bounds = %v, want %v", c.Bounds, want)
	}
}

func TestChunkManagerEnsureStable(t *testing.T) {
	m := NewChunkManager()
	a := m.Ensure(3, 3, 4, Point{})
	b := m.Ensure(3, 3, 4, Point{})
	if a != b {
		t.Error("Ensure returned different pointers for the same cell")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestChunkManagerFind(t *testing.T) {
	m := NewChunkManager()
	if m.Find(0, 0) != nil {
		t.Error("Find on empty manager should return nil")
	}
	c := m.Ensure(0, 0, 4, Point{})
	if m.Find(0, 0) != c {
		t.Error("Find did not return the ensured chunk")
	}
}

func TestChunkManagerFromWorld(t *testing.T) {
	m := NewChunkManager()
	c := m.Ensure(1, 1, 6, Point{})
	// World (70, 100) at r=6 (step 64) is chunk (1, 1).
	if got := m.FromWorld(Point{70, 100}, 6, Point{}); got != c {
		t.Errorf("FromWorld = %v, want chunk (1,1)", got)
	}
	if got := m.FromWorld(Point{-1, -1}, 6, Point{}); got != nil {
		t.Error("FromWorld for absent chunk should return nil")
	}
}

func TestChunkAddRemoveAsset(t *testing.T) {
	c := &Chunk{}
	a := &Asset{}
	b := &Asset{}
	c.addAsset(a)
	c.addAsset(a) // duplicate add is a no-op
	c.addAsset(b)
	if len(c.Assets) != 2 {
		t.Fatalf("Assets len = %d, want 2", len(c.Assets))
	}
	c.removeAsset(a)
	if len(c.Assets) != 1 || c.Assets[0] != b {
		t.Errorf("after remove: %v", c.Assets)
	}
	c.removeAsset(a) // removing absent asset is a no-op
	if len(c.Assets) != 1 {
		t.Errorf("after double remove: len = %d", len(c.Assets))
	}
}

func TestChunkManagerClear(t *testing.T) {
	m := NewChunkManager()
	m.Ensure(0, 0, 4, Point{})
	m.Ensure(1, 0, 4, Point{})
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", m.Len())
	}
	if m.Find(0, 0) != nil {
		t.Error("Find after Clear should return nil")
	}
}

func TestChunkLightingBlend(t *testing.T) {
	l := ChunkLighting{Static: 0.4, Dynamic: 0.3}
	l.Blend()
	if !approxEqual(l.Blended, 0.7, 1e-9) {
		t.Errorf("Blended = %f, want 0.7", l.Blended)
	}
	l.Dynamic = 0.9
	l.Blend()
	if l.Blended != 1.0 {
		t.Errorf("Blended = %f, want clamp to 1.0", l.Blended)
	}
}
