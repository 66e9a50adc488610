package vibble

import (
	"fmt"
	"io/fs"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
)

const (
	audioSampleRate = beep.SampleRate(48000)

	// maxVoices caps concurrently playing clips. Requests beyond the cap
	// are dropped, not queued.
	maxVoices = 64

	// panCrossfeed keeps a fraction of each channel in the opposite ear so
	// fully lateral sounds never pan hard to one side.
	panCrossfeed = 0.2
)

// Clip is a decoded, buffered sound ready for mixing. Clips are cached by
// path and shared; playback streams a fresh cursor over the shared buffer.
type Clip struct {
	Name       string
	Path       string
	BaseVolume float64
	Loop       bool

	buffer *beep.Buffer
}

// Len returns the clip length in samples.
func (c *Clip) Len() int {
	if c == nil || c.buffer == nil {
		return 0
	}
	return c.buffer.Len()
}

// Duration returns the clip length in wall time.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.buffer == nil {
		return 0
	}
	return c.buffer.Format().SampleRate.D(c.buffer.Len())
}

// streamer returns a fresh read cursor over the buffered samples.
func (c *Clip) streamer() beep.StreamSeeker {
	return c.buffer.Streamer(0, c.buffer.Len())
}

// SpatialVolume attenuates a base volume by listener distance with a
// quadratic falloff: full volume at the listener, silent at maxDist.
func SpatialVolume(base, dist, maxDist float64) float64 {
	if maxDist <= 0 {
		return base
	}
	d := clamp01(dist / maxDist)
	return base * (1 - d) * (1 - d)
}

// SpatialPan derives a stereo pan from the source's angle relative to the
// listener: the cosine of the angle, damped by the crossfeed so lateral
// sounds stay audible in both ears.
func SpatialPan(dx, dy float64) float64 {
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return 0
	}
	return dx / dist * (1 - panCrossfeed)
}

// AudioEngine owns the speaker, the mixer, and the decoded clip cache. All
// playback methods are safe to call before Initialize; they no-op until the
// speaker is up, so headless runs and tests never touch an audio device.
type AudioEngine struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	clips       map[string]*Clip
	voices      int
	master      float64
	initialized bool
}

// NewAudioEngine creates an engine with master volume 1.
func NewAudioEngine() *AudioEngine {
	return &AudioEngine{
		mixer:  &beep.Mixer{},
		clips:  make(map[string]*Clip),
		master: 1.0,
	}
}

// Initialize opens the speaker and starts the mixer.
func (e *AudioEngine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}
	if err := speaker.Init(audioSampleRate, audioSampleRate.N(time.Millisecond*100)); err != nil {
		return fmt.Errorf("audio: speaker init: %w", err)
	}
	speaker.Play(e.mixer)
	e.initialized = true
	return nil
}

// Cleanup silences the mixer and drops all voices.
func (e *AudioEngine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return
	}
	speaker.Lock()
	e.mixer.Clear()
	speaker.Unlock()
	e.voices = 0
	e.initialized = false
}

// SetMasterVolume sets the global volume multiplier, clamped to [0, 1].
func (e *AudioEngine) SetMasterVolume(v float64) {
	e.mu.Lock()
	e.master = clamp01(v)
	e.mu.Unlock()
}

// MasterVolume returns the global volume multiplier.
func (e *AudioEngine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master
}

// ActiveVoices returns the number of clips currently playing.
func (e *AudioEngine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voices
}

// LoadClip decodes a WAV file into the clip cache, resampling to the engine
// rate when the file disagrees. Repeated loads of the same path return the
// cached clip.
func (e *AudioEngine) LoadClip(fsys fs.FS, path string) (*Clip, error) {
	e.mu.Lock()
	if c, ok := e.clips[path]; ok {
		e.mu.Unlock()
		return c, nil
	}
	e.mu.Unlock()

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	if format.SampleRate != audioSampleRate {
		buf = beep.NewBuffer(beep.Format{
			SampleRate:  audioSampleRate,
			NumChannels: format.NumChannels,
			Precision:   format.Precision,
		})
		buf.Append(beep.Resample(4, format.SampleRate, audioSampleRate, streamer))
	} else {
		buf.Append(streamer)
	}

	clip := &Clip{
		Name:       path,
		Path:       path,
		BaseVolume: 1.0,
		buffer:     buf,
	}

	e.mu.Lock()
	e.clips[path] = clip
	e.mu.Unlock()
	return clip, nil
}

// ClipFor returns the cached clip for a path, or nil.
func (e *AudioEngine) ClipFor(path string) *Clip {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clips[path]
}

// Play starts a clip at its base volume, centered. Returns false when the
// engine is not initialized, the clip is empty, or the voice cap is reached.
func (e *AudioEngine) Play(clip *Clip) bool {
	return e.play(clip, 1.0, 0.0)
}

// PlayAt starts a clip positioned relative to the listener: volume falls off
// quadratically with distance and the pan follows the horizontal offset.
func (e *AudioEngine) PlayAt(clip *Clip, source, listener Point, maxDist float64) bool {
	dx := float64(source.X - listener.X)
	dy := float64(source.Y - listener.Y)
	dist := math.Hypot(dx, dy)
	vol := SpatialVolume(1.0, dist, maxDist)
	if vol <= 0.001 {
		return false
	}
	return e.play(clip, vol, SpatialPan(dx, dy))
}

// play wires the clip's streamer through volume and pan stages into the
// mixer, claiming a voice slot until the streamer drains.
func (e *AudioEngine) play(clip *Clip, gain, pan float64) bool {
	if clip == nil || clip.buffer == nil || clip.buffer.Len() == 0 {
		return false
	}

	e.mu.Lock()
	if !e.initialized || e.voices >= maxVoices {
		e.mu.Unlock()
		return false
	}
	e.voices++
	level := clip.BaseVolume * gain * e.master
	e.mu.Unlock()

	var s beep.Streamer = clip.streamer()
	if clip.Loop {
		s = beep.Loop(-1, clip.streamer())
	}
	if level < 1.0 {
		// beep's Volume is exponential: gain = Base^Volume.
		v := math.Log2(math.Max(level, 0.001))
		s = &effects.Volume{Streamer: s, Base: 2, Volume: v}
	}
	if pan != 0 {
		s = &effects.Pan{Streamer: s, Pan: pan}
	}

	done := beep.Callback(func() {
		e.mu.Lock()
		e.voices--
		e.mu.Unlock()
	})

	speaker.Lock()
	e.mixer.Add(beep.Seq(s, done))
	speaker.Unlock()
	return true
}
