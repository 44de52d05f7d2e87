package animation

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

var ErrInvalidTrack = errors.New("animation: invalid track")

// Keyframe pins the local translation of an object at a point of the track.
type Keyframe struct {
	At          time.Duration
	Translation mgl64.Vec3
}

// Track interpolates translation keyframes linearly.
type Track struct {
	Keys []Keyframe
	Loop bool
}

func (t Track) Validate() error {
	if len(t.Keys) == 0 {
		return fmt.Errorf("%w: no keyframes", ErrInvalidTrack)
	}
	for i := 1; i < len(t.Keys); i++ {
		if t.Keys[i].At <= t.Keys[i-1].At {
			return fmt.Errorf("%w: keyframe %d at %s is not after %s", ErrInvalidTrack, i, t.Keys[i].At, t.Keys[i-1].At)
		}
	}
	if t.Keys[0].At < 0 {
		return fmt.Errorf("%w: negative start %s", ErrInvalidTrack, t.Keys[0].At)
	}
	return nil
}

func (t Track) Duration() time.Duration {
	if len(t.Keys) == 0 {
		return 0
	}
	return t.Keys[len(t.Keys)-1].At
}

// normalize maps at onto the track: wrapped when looping, clamped otherwise.
func (t Track) normalize(at time.Duration) time.Duration {
	d := t.Duration()
	switch {
	case at < 0:
		return 0
	case d == 0:
		return 0
	case t.Loop:
		return at % d
	case at > d:
		return d
	}
	return at
}

// Sample returns the translation at time at.
func (t Track) Sample(at time.Duration) mgl64.Vec3 {
	if len(t.Keys) == 0 {
		return mgl64.Vec3{}
	}
	at = t.normalize(at)
	i := sort.Search(len(t.Keys), func(i int) bool { return t.Keys[i].At > at })
	switch {
	case i == 0:
		return t.Keys[0].Translation
	case i == len(t.Keys):
		return t.Keys[len(t.Keys)-1].Translation
	}
	a, b := t.Keys[i-1], t.Keys[i]
	f := float64(at-a.At) / float64(b.At-a.At)
	return a.Translation.Add(b.Translation.Sub(a.Translation).Mul(f))
}
