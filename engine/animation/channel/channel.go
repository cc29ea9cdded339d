// package channel contains the per-pivot motion and visibility tracks that animation clips are built from.
// Motion channels come in three encodings (dense raw samples, sparse time-coded packets and adaptive-delta
// compressed streams); bit channels come in two (dense bit arrays and time-coded toggles). A loaded channel
// never fails at query time: frames outside its data return identity or default values.
package channel

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// Encoding identifies how a channel stores its samples.
type Encoding int

const (
	// EncodingRaw stores one sample per frame over a contiguous frame range.
	EncodingRaw Encoding = iota
	// EncodingTimeCoded stores samples only at the frames where the value changes.
	EncodingTimeCoded
	// EncodingAdaptiveDelta stores an anchor sample followed by nibble-quantized deltas.
	EncodingAdaptiveDelta
)

// String returns a readable name for the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingTimeCoded:
		return "timecoded"
	case EncodingAdaptiveDelta:
		return "adaptive-delta"
	default:
		return "unknown"
	}
}

// StepFlag marks a time-coded packet whose value must not be interpolated towards from the previous packet.
const StepFlag uint32 = 0x80000000

// maxVectorLen is the widest vector a channel can carry (a quaternion).
const maxVectorLen = 4

// Common errors returned by the channel constructors and loaders.
var (
	ErrInvalidVectorLen = errors.New("channel: vector length must be 1..4")
	ErrEmptyChannel     = errors.New("channel: channel has no samples")
	ErrFrameRange       = errors.New("channel: invalid frame range")
	ErrUnsortedKeys     = errors.New("channel: time codes must be strictly increasing")
)

// Motion is a single animated scalar or quaternion track belonging to one pivot.
type Motion interface {
	// Pivot returns the index of the pivot this channel animates.
	Pivot() int

	// Type returns what the channel animates (X, Y, Z translation or the Q orientation).
	Type() w3d.ChannelType

	// VectorLen returns the number of floats per sample: 1 for translations, 4 for quaternions.
	VectorLen() int

	// Encoding returns the storage encoding of the channel.
	Encoding() Encoding

	// Vector evaluates the channel at a frame, linearly interpolating between samples where the
	// encoding supports it. Frames outside the stored data produce the identity value.
	//
	// Parameters:
	//   - frame: the (possibly fractional) frame number
	//   - out: destination, must hold at least VectorLen floats
	Vector(frame float32, out []float32)

	// Quat evaluates a 4-wide channel as an orientation, using fast-slerp between samples.
	//
	// Parameters:
	//   - frame: the (possibly fractional) frame number
	//
	// Returns:
	//   - mgl32.Quat: the orientation, identity outside the stored data
	Quat(frame float32) mgl32.Quat

	// Save writes the channel as a single W3D chunk.
	//
	// Parameters:
	//   - w: the chunk writer positioned inside the owning animation chunk
	//
	// Returns:
	//   - error: error if encoding fails
	Save(w w3d.ChunkWriter) error
}

// Bit is a boolean track belonging to one pivot, used for visibility.
type Bit interface {
	// Pivot returns the index of the pivot this channel belongs to.
	Pivot() int

	// Type returns the bit channel type (w3d.BitChannelVis).
	Type() uint8

	// Encoding returns the storage encoding of the channel (raw or time-coded).
	Encoding() Encoding

	// Bit returns the channel value at an integer frame.
	//
	// Parameters:
	//   - frame: the frame number
	//
	// Returns:
	//   - bool: the bit value, or the channel default outside its data
	Bit(frame int) bool

	// Save writes the channel as a single W3D chunk.
	Save(w w3d.ChunkWriter) error
}

// identity fills out with the identity value for a vector of the given width.
func identity(out []float32, vectorLen int) {
	for i := 0; i < vectorLen; i++ {
		out[i] = 0
	}
	if vectorLen == maxVectorLen {
		out[3] = 1
	}
}

func quatFromSlice(v []float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

func validVectorLen(n int) bool {
	return n >= 1 && n <= maxVectorLen
}
