package clip

import (
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/channel"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// defaultFrameRate is the playback rate of clips built without WithFrameRate.
const defaultFrameRate = 30

// morphChannelConfig is one pose channel of a morph clip under construction.
type morphChannelConfig struct {
	pose Clip
	keys []w3d.MorphKey
}

// clipConfig collects the options of the in-memory clip constructors.
type clipConfig struct {
	numFrames     int
	frameRate     float32
	motions       []channel.Motion
	bits          []channel.Bit
	morphChannels []morphChannelConfig
	pivotChannels []int
}

// BuilderOption is a functional option for configuring a Clip during construction.
type BuilderOption func(*clipConfig)

func newClipConfig(options []BuilderOption) *clipConfig {
	cfg := &clipConfig{numFrames: 1, frameRate: defaultFrameRate}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// WithNumFrames sets the number of frames of the clip.
//
// Parameters:
//   - n: the frame count, at least 1
//
// Returns:
//   - BuilderOption: functional option to set the frame count
func WithNumFrames(n int) BuilderOption {
	return func(c *clipConfig) {
		c.numFrames = n
	}
}

// WithFrameRate sets the playback rate of the clip.
//
// Parameters:
//   - rate: frames per second
//
// Returns:
//   - BuilderOption: functional option to set the frame rate
func WithFrameRate(rate float32) BuilderOption {
	return func(c *clipConfig) {
		c.frameRate = rate
	}
}

// WithMotionChannels adds motion channels to a raw or compressed clip.
//
// Parameters:
//   - channels: the channels; their encodings must match the clip
//
// Returns:
//   - BuilderOption: functional option to add the channels
func WithMotionChannels(channels ...channel.Motion) BuilderOption {
	return func(c *clipConfig) {
		c.motions = append(c.motions, channels...)
	}
}

// WithBitChannels adds visibility channels to a raw or compressed clip.
//
// Parameters:
//   - channels: the channels; dense for raw clips, time-coded for compressed clips
//
// Returns:
//   - BuilderOption: functional option to add the channels
func WithBitChannels(channels ...channel.Bit) BuilderOption {
	return func(c *clipConfig) {
		c.bits = append(c.bits, channels...)
	}
}

// WithMorphChannel adds a pose channel to a morph clip.
//
// Parameters:
//   - pose: the clip whose frames the channel samples
//   - keys: morph frame to pose frame mapping, ordered by MorphFrame
//
// Returns:
//   - BuilderOption: functional option to add the channel
func WithMorphChannel(pose Clip, keys []w3d.MorphKey) BuilderOption {
	return func(c *clipConfig) {
		c.morphChannels = append(c.morphChannels, morphChannelConfig{pose: pose, keys: keys})
	}
}

// WithPivotChannels sets which morph channel drives each pivot (-1 for none). Without it the owner of each
// pivot is found by asking the pose clips which pivots they animate.
//
// Parameters:
//   - table: channel index per pivot
//
// Returns:
//   - BuilderOption: functional option to set the pivot table
func WithPivotChannels(table []int) BuilderOption {
	return func(c *clipConfig) {
		c.pivotChannels = append([]int(nil), table...)
	}
}
