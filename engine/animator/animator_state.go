package animator

import (
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/combo"
)

// PlayMode controls how a single animation advances with the sync clock.
type PlayMode int

const (
	// PlayModeManual never advances; the frame only changes through SetAnimation.
	PlayModeManual PlayMode = iota
	// PlayModeLoop plays forward and wraps to the start.
	PlayModeLoop
	// PlayModeOnce plays forward and holds the last frame.
	PlayModeOnce
	// PlayModeLoopPingPong plays forward, then backward, reversing at each end.
	PlayModeLoopPingPong
	// PlayModeLoopBackwards plays backward and wraps to the end.
	PlayModeLoopBackwards
	// PlayModeOnceBackwards plays backward and holds frame 0.
	PlayModeOnceBackwards
)

func (m PlayMode) String() string {
	switch m {
	case PlayModeManual:
		return "manual"
	case PlayModeLoop:
		return "loop"
	case PlayModeOnce:
		return "once"
	case PlayModeLoopPingPong:
		return "loop-pingpong"
	case PlayModeLoopBackwards:
		return "loop-backwards"
	case PlayModeOnceBackwards:
		return "once-backwards"
	default:
		return "unknown"
	}
}

// initialDirection returns the playback direction a mode starts with.
func (m PlayMode) initialDirection() float32 {
	if m >= PlayModeLoopBackwards {
		return -1
	}
	return 1
}

// StateKind identifies the active variant of an object's animation state.
type StateKind int

const (
	// StateBasePose poses the hierarchy at rest.
	StateBasePose StateKind = iota
	// StateSingleAnim plays one clip.
	StateSingleAnim
	// StateBlend blends two clips by a fixed percentage.
	StateBlend
	// StateCombo blends any number of weighted clips.
	StateCombo
)

func (k StateKind) String() string {
	switch k {
	case StateBasePose:
		return "base-pose"
	case StateSingleAnim:
		return "single"
	case StateBlend:
		return "blend"
	case StateCombo:
		return "combo"
	default:
		return "unknown"
	}
}

// State is the animation state of an AnimatableObject. It is one of BasePose, SingleAnim, TwoWayBlend or
// ComboAnim.
type State interface {
	// Kind returns the variant of the state.
	Kind() StateKind
}

// BasePose poses the hierarchy at rest.
type BasePose struct{}

// SingleAnim plays one clip.
type SingleAnim struct {
	Clip                clip.Clip
	Frame               float32
	Mode                PlayMode
	Direction           float32
	FrameRateMultiplier float32
	// LastSyncTime is the sync clock reading at which Frame was current.
	LastSyncTime time.Duration
}

// TwoWayBlend blends two clips by a fixed percentage.
type TwoWayBlend struct {
	Clip0      clip.Clip
	Frame0     float32
	Clip1      clip.Clip
	Frame1     float32
	Percentage float32
}

// ComboAnim blends the clips of a combo.
type ComboAnim struct {
	Combo combo.Combo
}

func (BasePose) Kind() StateKind { return StateBasePose }
func (SingleAnim) Kind() StateKind { return StateSingleAnim }
func (TwoWayBlend) Kind() StateKind { return StateBlend }
func (ComboAnim) Kind() StateKind { return StateCombo }

var (
	_ State = BasePose{}
	_ State = SingleAnim{}
	_ State = TwoWayBlend{}
	_ State = ComboAnim{}
)

// PlaybackInfo describes the single animation an object is playing.
type PlaybackInfo struct {
	Clip                clip.Clip
	Frame               float32
	NumFrames           int
	Mode                PlayMode
	FrameRateMultiplier float32
}

// advance computes the frame and direction of s at sync time now, applying the wrap policy of its mode.
func (s SingleAnim) advance(now time.Duration) (float32, float32) {
	frame, direction := s.Frame, s.Direction
	if s.Mode == PlayModeManual || s.Clip == nil {
		return frame, direction
	}

	elapsed := float32((now - s.LastSyncTime).Seconds())
	frame += s.Clip.FrameRate() * s.FrameRateMultiplier * s.Direction * elapsed
	last := float32(s.Clip.NumFrames() - 1)

	switch s.Mode {
	case PlayModeOnce:
		if frame >= last {
			frame = last
		}
	case PlayModeLoop:
		if frame >= last {
			frame -= last
		}
		if frame >= last {
			frame = 0
		}
	case PlayModeOnceBackwards:
		if frame < 0 {
			frame = 0
		}
	case PlayModeLoopBackwards:
		if frame < 0 {
			frame += last
		}
		if frame < 0 {
			frame = last
		}
	case PlayModeLoopPingPong:
		if s.Direction >= 1 {
			if frame >= last {
				frame = last*2 - frame
				if frame >= last {
					frame = last
				}
				direction = -s.Direction
			}
		} else if frame < 0 {
			frame = -frame
			if frame >= last {
				frame = 0
			}
			direction = -s.Direction
		}
	}
	return frame, direction
}

// complete reports whether a once-mode animation has reached its final frame.
func (s SingleAnim) complete() bool {
	if s.Clip == nil {
		return false
	}
	switch s.Mode {
	case PlayModeOnce:
		return s.Frame == float32(s.Clip.NumFrames()-1)
	case PlayModeOnceBackwards:
		return s.Frame == 0
	}
	return false
}
