package animation

import (
	"time"

	"github.com/l1jgo/scenecore/internal/scene"
)

// Animator plays one translation track on its object.
type Animator struct {
	scene.BaseComponent

	Track    Track
	Speed    float64
	Autoplay bool

	playing bool
	bound   bool
	time    time.Duration
}

func NewAnimator() *Animator {
	return &Animator{Speed: 1, Autoplay: true}
}

func (a *Animator) Play()                 { a.playing = true }
func (a *Animator) Pause()                { a.playing = false }
func (a *Animator) IsPlaying() bool       { return a.playing }
func (a *Animator) Seek(at time.Duration) { a.time = at }
func (a *Animator) Time() time.Duration   { return a.time }

// Bound reports whether the processor accepted the track.
func (a *Animator) Bound() bool { return a.bound }

// Finished reports a non-looping track that reached its end.
func (a *Animator) Finished() bool {
	return a.bound && !a.Track.Loop && a.time >= a.Track.Duration()
}

func (a *Animator) advance(dt time.Duration) {
	if !a.playing {
		return
	}
	a.time += time.Duration(float64(dt) * a.Speed)
	if a.Finished() {
		a.time = a.Track.Duration()
		a.playing = false
	}
}

func (a *Animator) apply() {
	a.Object().SetTranslation(a.Track.Sample(a.time))
}
