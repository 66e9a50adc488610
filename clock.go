package vibble

import (
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// FrameClock measures the frame delta from the wall clock, clamped to the
// manager's maximum step so debugger pauses don't teleport the world.
type FrameClock struct {
	last    time.Time
	started bool
}

// Tick returns the seconds elapsed since the previous Tick. The first call
// returns zero.
func (c *FrameClock) Tick() float64 {
	now := time.Now()
	if !c.started {
		c.started = true
		c.last = now
		return 0
	}
	dt := now.Sub(c.last).Seconds()
	c.last = now
	if dt < 0 {
		dt = 0
	} else if dt > maxFrameDT {
		dt = maxFrameDT
	}
	return dt
}

// Reset forgets the previous tick, so the next delta starts from zero.
func (c *FrameClock) Reset() {
	c.started = false
}

// FPSOverlay draws the current FPS and TPS into a corner widget, refreshed
// about twice a second.
type FPSOverlay struct {
	img        *ebiten.Image
	lastUpdate float64
}

// NewFPSOverlay creates the overlay widget.
func NewFPSOverlay() *FPSOverlay {
	// 100x32 fits "FPS: 60.0\nTPS: 60.0".
	return &FPSOverlay{img: ebiten.NewImage(100, 32)}
}

// Draw refreshes the readout when due and blits it to the top-left corner.
func (o *FPSOverlay) Draw(screen *ebiten.Image, dt float64) {
	o.lastUpdate += dt
	if o.lastUpdate >= 0.5 {
		o.lastUpdate = 0
		o.img.Clear()
		o.img.Fill(color.RGBA{A: 128})
		ebitenutil.DebugPrint(o.img, fmt.Sprintf("FPS: %.1f\nTPS: %.1f",
			ebiten.ActualFPS(), ebiten.ActualTPS()))
	}
	screen.DrawImage(o.img, nil)
}
