package channel

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// TimeCodedKey is one packet of a time-coded channel.
type TimeCodedKey struct {
	// Frame is the frame the value takes effect on.
	Frame uint32
	// Step makes the value switch in at Frame with no interpolation from the previous key.
	Step bool
	// Value holds VectorLen floats.
	Value []float32
}

// timeCodedChannelImpl is the sparse Motion implementation. Packets are stored as uint32 words:
// a time code (high bit = StepFlag) followed by the vector bits.
type timeCodedChannelImpl struct {
	pivot        int
	typ          w3d.ChannelType
	vectorLen    int
	packetSize   int
	numTimeCodes int
	data         []uint32
	cachedIdx    int
}

var _ Motion = &timeCodedChannelImpl{}

// NewTimeCodedChannel creates a sparse channel from keys ordered by frame.
//
// Parameters:
//   - pivot: the animated pivot index
//   - typ: what the channel animates
//   - vectorLen: floats per key (1 or 4)
//   - keys: the packets, strictly increasing in Frame
//
// Returns:
//   - Motion: the channel
//   - error: error if the keys are empty, unsorted or the wrong width
func NewTimeCodedChannel(pivot int, typ w3d.ChannelType, vectorLen int, keys []TimeCodedKey) (Motion, error) {
	if !validVectorLen(vectorLen) {
		return nil, ErrInvalidVectorLen
	}
	if len(keys) == 0 {
		return nil, ErrEmptyChannel
	}

	packetSize := vectorLen + 1
	data := make([]uint32, 0, len(keys)*packetSize)
	for i, k := range keys {
		if len(k.Value) != vectorLen {
			return nil, ErrInvalidVectorLen
		}
		if k.Frame&StepFlag != 0 || (i > 0 && k.Frame <= keys[i-1].Frame) {
			return nil, ErrUnsortedKeys
		}
		tc := k.Frame
		if k.Step {
			tc |= StepFlag
		}
		data = append(data, tc)
		for _, v := range k.Value {
			data = append(data, math.Float32bits(v))
		}
	}

	return &timeCodedChannelImpl{
		pivot:        pivot,
		typ:          typ,
		vectorLen:    vectorLen,
		packetSize:   packetSize,
		numTimeCodes: len(keys),
		data:         data,
	}, nil
}

// LoadTimeCodedChannel reads a sparse channel from an open w3d.ChunkCompressedAnimationChannel chunk of a
// time-coded animation.
//
// Parameters:
//   - r: the chunk reader with the channel chunk open
//
// Returns:
//   - Motion: the loaded channel
//   - error: error if the chunk is malformed
func LoadTimeCodedChannel(r w3d.ChunkReader) (Motion, error) {
	var header w3d.TimeCodedChannelHeader
	if err := r.ReadStruct(&header); err != nil {
		return nil, fmt.Errorf("failed to read time-coded channel header: %w", err)
	}
	vectorLen := int(header.VectorLen)
	if !validVectorLen(vectorLen) {
		return nil, ErrInvalidVectorLen
	}
	if header.NumTimeCodes == 0 {
		return nil, ErrEmptyChannel
	}

	words := int(header.NumTimeCodes) * (vectorLen + 1)
	if uint32(words*4) > r.Remaining() {
		return nil, fmt.Errorf("time-coded channel expects %d words: %w", words, w3d.ErrChunkSizeMismatch)
	}
	data, err := w3d.ReadUint32s(r, words)
	if err != nil {
		return nil, fmt.Errorf("failed to read time-coded channel data: %w", err)
	}

	return &timeCodedChannelImpl{
		pivot:        int(header.Pivot),
		typ:          w3d.ChannelType(header.Flags),
		vectorLen:    vectorLen,
		packetSize:   vectorLen + 1,
		numTimeCodes: int(header.NumTimeCodes),
		data:         data,
	}, nil
}

func (c *timeCodedChannelImpl) Pivot() int {
	return c.pivot
}

func (c *timeCodedChannelImpl) Type() w3d.ChannelType {
	return c.typ
}

func (c *timeCodedChannelImpl) VectorLen() int {
	return c.vectorLen
}

func (c *timeCodedChannelImpl) Encoding() Encoding {
	return EncodingTimeCoded
}

func (c *timeCodedChannelImpl) Vector(frame float32, out []float32) {
	idx, next, ratio, hold := c.locate(frame)
	if hold {
		c.value(idx, out)
		return
	}
	var a, b [maxVectorLen]float32
	c.value(idx, a[:])
	c.value(next, b[:])
	for i := 0; i < c.vectorLen; i++ {
		out[i] = a[i] + (b[i]-a[i])*ratio
	}
}

func (c *timeCodedChannelImpl) Quat(frame float32) mgl32.Quat {
	if c.vectorLen != maxVectorLen {
		return mgl32.QuatIdent()
	}
	idx, next, ratio, hold := c.locate(frame)
	var a [maxVectorLen]float32
	c.value(idx, a[:])
	if hold {
		return quatFromSlice(a[:])
	}
	var b [maxVectorLen]float32
	c.value(next, b[:])
	return common.FastSlerp(quatFromSlice(a[:]), quatFromSlice(b[:]), ratio)
}

func (c *timeCodedChannelImpl) Save(w w3d.ChunkWriter) error {
	header := w3d.TimeCodedChannelHeader{
		NumTimeCodes: uint32(c.numTimeCodes),
		Pivot:        uint16(c.pivot),
		VectorLen:    uint8(c.vectorLen),
		Flags:        uint8(c.typ),
	}
	return w3d.WriteChunk(w, w3d.ChunkCompressedAnimationChannel, &header, c.data)
}

// locate finds the packet pair bracketing frame through the cache.
// hold is true when the first packet's value must be returned verbatim.
func (c *timeCodedChannelImpl) locate(frame float32) (idx, next int, ratio float32, hold bool) {
	if frame < 0 {
		frame = 0
	}
	idx = c.index(uint32(frame))
	return c.bracket(idx, frame)
}

// bracket computes the interpolation parameters for packet idx.
func (c *timeCodedChannelImpl) bracket(idx int, frame float32) (int, int, float32, bool) {
	if idx == c.numTimeCodes-1 {
		return idx, idx, 0, true
	}
	next := idx + 1
	if c.data[next*c.packetSize]&StepFlag != 0 {
		return idx, next, 0, true
	}
	t1 := float32(c.timeCode(idx))
	t2 := float32(c.timeCode(next))
	if frame <= t1 {
		return idx, next, 0, true
	}
	return idx, next, (frame - t1) / (t2 - t1), false
}

// index returns the packet that governs time code tc, consulting the cached packet and the one after it
// before falling back to a binary search.
func (c *timeCodedChannelImpl) index(tc uint32) int {
	last := c.numTimeCodes - 1
	if tc >= c.timeCode(c.cachedIdx) {
		if c.cachedIdx == last || tc < c.timeCode(c.cachedIdx+1) {
			return c.cachedIdx
		}
		c.cachedIdx++
		if c.cachedIdx == last || tc < c.timeCode(c.cachedIdx+1) {
			return c.cachedIdx
		}
	}
	c.cachedIdx = c.binarySearchIndex(tc)
	return c.cachedIdx
}

// binarySearchIndex returns the packet i with timeCode(i) <= tc < timeCode(i+1), the last packet when tc is
// at or past it, and the first packet when tc precedes every key.
func (c *timeCodedChannelImpl) binarySearchIndex(tc uint32) int {
	last := c.numTimeCodes - 1
	if tc >= c.timeCode(last) {
		return last
	}
	if tc < c.timeCode(0) {
		return 0
	}

	left, right := 0, last-1
	for left < right {
		mid := left + (right-left+1)/2
		if tc < c.timeCode(mid) {
			right = mid - 1
		} else {
			left = mid
		}
	}
	return left
}

func (c *timeCodedChannelImpl) timeCode(idx int) uint32 {
	return c.data[idx*c.packetSize] &^ StepFlag
}

func (c *timeCodedChannelImpl) value(idx int, out []float32) {
	base := idx*c.packetSize + 1
	for i := 0; i < c.vectorLen; i++ {
		out[i] = math.Float32frombits(c.data[base+i])
	}
}
