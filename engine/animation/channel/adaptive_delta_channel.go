package channel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// deltaGroupFrames is the number of frames encoded by one packet.
	deltaGroupFrames = 16
	// deltaPacketSize is one filter byte followed by 16 packed nibbles.
	deltaPacketSize = 1 + deltaGroupFrames/2
	// noCachedFrame marks an empty decode cache.
	noCachedFrame = math.MaxInt32
)

// adaptiveDeltaChannelImpl is the compressed Motion implementation.
//
// The payload starts with vectorLen float32 anchors (the frame 0 value). After that, packets are
// interleaved: for every group of 16 frames there is one packet per vector component. Frame f > 0
// is reconstructed by adding the deltas of frames 1..f to the anchor, so decoding is sequential.
// The two-slot cache holds frames cacheFrame and cacheFrame+1.
type adaptiveDeltaChannelImpl struct {
	pivot     int
	typ       w3d.ChannelType
	vectorLen int
	numFrames int
	scale     float32
	data      []byte

	cacheFrame int
	cache      [2 * maxVectorLen]float32

	// decodes counts full re-decompressions from the anchor.
	decodes int
}

var _ Motion = &adaptiveDeltaChannelImpl{}

// newAdaptiveDeltaChannel wraps an encoded payload after validating its size.
func newAdaptiveDeltaChannel(pivot int, typ w3d.ChannelType, vectorLen, numFrames int, scale float32, data []byte) (*adaptiveDeltaChannelImpl, error) {
	if !validVectorLen(vectorLen) {
		return nil, ErrInvalidVectorLen
	}
	if numFrames < 1 {
		return nil, ErrEmptyChannel
	}
	if need := adaptiveDeltaPayloadSize(vectorLen, numFrames); len(data) < need {
		return nil, fmt.Errorf("adaptive-delta channel needs %d bytes, has %d: %w", need, len(data), w3d.ErrChunkSizeMismatch)
	}
	return &adaptiveDeltaChannelImpl{
		pivot:      pivot,
		typ:        typ,
		vectorLen:  vectorLen,
		numFrames:  numFrames,
		scale:      scale,
		data:       data,
		cacheFrame: noCachedFrame,
	}, nil
}

// adaptiveDeltaPayloadSize returns the byte size of the anchors plus every packet needed for numFrames.
func adaptiveDeltaPayloadSize(vectorLen, numFrames int) int {
	groups := (numFrames - 1 + deltaGroupFrames - 1) / deltaGroupFrames
	return vectorLen*4 + groups*vectorLen*deltaPacketSize
}

// LoadAdaptiveDeltaChannel reads a compressed channel from an open w3d.ChunkCompressedAnimationChannel chunk
// of an adaptive-delta animation.
//
// Parameters:
//   - r: the chunk reader with the channel chunk open
//
// Returns:
//   - Motion: the loaded channel
//   - error: error if the chunk is malformed or too short for its frame count
func LoadAdaptiveDeltaChannel(r w3d.ChunkReader) (Motion, error) {
	var header w3d.AdaptiveDeltaChannelHeader
	if err := r.ReadStruct(&header); err != nil {
		return nil, fmt.Errorf("failed to read adaptive-delta channel header: %w", err)
	}
	data, err := w3d.ReadRest(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read adaptive-delta channel data: %w", err)
	}
	return newAdaptiveDeltaChannel(int(header.Pivot), w3d.ChannelType(header.Flags), int(header.VectorLen),
		int(header.NumFrames), header.Scale, data)
}

func (c *adaptiveDeltaChannelImpl) Pivot() int {
	return c.pivot
}

func (c *adaptiveDeltaChannelImpl) Type() w3d.ChannelType {
	return c.typ
}

func (c *adaptiveDeltaChannelImpl) VectorLen() int {
	return c.vectorLen
}

func (c *adaptiveDeltaChannelImpl) Encoding() Encoding {
	return EncodingAdaptiveDelta
}

func (c *adaptiveDeltaChannelImpl) Vector(frame float32, out []float32) {
	var a, b [maxVectorLen]float32
	ratio := c.sample(frame, a[:], b[:])
	for i := 0; i < c.vectorLen; i++ {
		out[i] = a[i] + (b[i]-a[i])*ratio
	}
}

func (c *adaptiveDeltaChannelImpl) Quat(frame float32) mgl32.Quat {
	if c.vectorLen != maxVectorLen {
		return mgl32.QuatIdent()
	}
	var a, b [maxVectorLen]float32
	ratio := c.sample(frame, a[:], b[:])
	return common.FastSlerp(quatFromSlice(a[:]), quatFromSlice(b[:]), ratio)
}

func (c *adaptiveDeltaChannelImpl) Save(w w3d.ChunkWriter) error {
	header := w3d.AdaptiveDeltaChannelHeader{
		NumFrames: uint32(c.numFrames),
		Pivot:     uint16(c.pivot),
		VectorLen: uint8(c.vectorLen),
		Flags:     uint8(c.typ),
		Scale:     c.scale,
	}
	return w3d.WriteChunk(w, w3d.ChunkCompressedAnimationChannel, &header, c.data)
}

// sample decodes the integer frames around frame into a and b and returns the blend ratio.
func (c *adaptiveDeltaChannelImpl) sample(frame float32, a, b []float32) float32 {
	if frame < 0 {
		frame = 0
	}
	f := int(frame)
	ratio := frame - float32(f)
	copy(a, c.frame(f))
	copy(b, c.frame(f+1))
	return ratio
}

// frame returns the decoded vector for frameIdx, maintaining the two-slot cache:
//   - hit on either slot: returned directly
//   - backward jump: full decode from the anchor, then the following frame
//   - cacheFrame+2: slide the window by one frame
//   - any other forward jump: continue decoding from slot 1
//
// The returned slice aliases the cache and is only valid until the next call.
func (c *adaptiveDeltaChannelImpl) frame(frameIdx int) []float32 {
	n := c.vectorLen
	if frameIdx >= c.numFrames {
		frameIdx = c.numFrames - 1
	}
	slot0 := c.cache[:n]
	slot1 := c.cache[n : 2*n]

	switch {
	case frameIdx == c.cacheFrame:
		return slot0
	case c.cacheFrame != noCachedFrame && frameIdx == c.cacheFrame+1:
		return slot1
	case frameIdx < c.cacheFrame:
		c.decodeFromAnchor(frameIdx, slot0)
		if frameIdx != c.numFrames-1 {
			c.decodeFrom(frameIdx, slot0, frameIdx+1, slot1)
		}
		c.cacheFrame = frameIdx
		return slot0
	case frameIdx == c.cacheFrame+2:
		copy(slot0, slot1)
		c.cacheFrame++
		c.decodeFrom(c.cacheFrame, slot0, frameIdx, slot1)
		return slot1
	default:
		var start [maxVectorLen]float32
		copy(start[:n], slot1)
		c.decodeFrom(c.cacheFrame+1, start[:n], frameIdx, slot0)
		c.cacheFrame = frameIdx
		if frameIdx != c.numFrames-1 {
			c.decodeFrom(frameIdx, slot0, frameIdx+1, slot1)
		}
		return slot0
	}
}

// decodeFromAnchor reconstructs frameIdx starting from the stored anchors.
func (c *adaptiveDeltaChannelImpl) decodeFromAnchor(frameIdx int, out []float32) {
	c.decodes++
	for vi := 0; vi < c.vectorLen; vi++ {
		out[vi] = math.Float32frombits(binary.LittleEndian.Uint32(c.data[vi*4:]))
	}
	if frameIdx > 0 {
		c.decodeFrom(0, out, frameIdx, out)
	}
}

// decodeFrom continues decoding from the known values src at frame srcIdx up to frameIdx.
// src and out may alias.
func (c *adaptiveDeltaChannelImpl) decodeFrom(srcIdx int, src []float32, frameIdx int, out []float32) {
	for vi := 0; vi < c.vectorLen; vi++ {
		value := src[vi]
		for f := srcIdx + 1; f <= frameIdx; f++ {
			value += c.delta(f, vi)
		}
		out[vi] = value
	}
}

// delta returns the decoded delta that takes component vi from frame f-1 to frame f.
func (c *adaptiveDeltaChannelImpl) delta(f, vi int) float32 {
	group := (f - 1) / deltaGroupFrames
	fi := (f - 1) % deltaGroupFrames

	packet := c.vectorLen*4 + (group*c.vectorLen+vi)*deltaPacketSize
	filter := filterTable[c.data[packet]] * c.scale

	nibbles := c.data[packet+1+fi/2]
	if fi&1 != 0 {
		nibbles >>= 4
	}
	return float32(signExtendNibble(nibbles)) * filter
}

// signExtendNibble interprets the low four bits of b as a signed value in [-8, 7].
func signExtendNibble(b byte) int {
	v := int(b & 0x0F)
	if v&0x08 != 0 {
		v -= 16
	}
	return v
}
