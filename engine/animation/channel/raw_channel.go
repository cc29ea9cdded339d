package channel

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// rawChannelImpl is the dense Motion implementation: one sample per frame in [firstFrame, lastFrame].
type rawChannelImpl struct {
	pivot      int
	typ        w3d.ChannelType
	vectorLen  int
	firstFrame int
	lastFrame  int
	data       []float32
}

var _ Motion = &rawChannelImpl{}

// NewRawChannel creates a dense motion channel. The last frame is derived from the sample count.
//
// Parameters:
//   - pivot: the animated pivot index
//   - typ: what the channel animates
//   - vectorLen: floats per sample (1 or 4)
//   - firstFrame: the frame of the first sample
//   - data: len(data)/vectorLen samples laid out frame after frame
//
// Returns:
//   - Motion: the channel
//   - error: error if the vector length or sample count is invalid
func NewRawChannel(pivot int, typ w3d.ChannelType, vectorLen, firstFrame int, data []float32) (Motion, error) {
	if !validVectorLen(vectorLen) {
		return nil, ErrInvalidVectorLen
	}
	if len(data) == 0 || len(data)%vectorLen != 0 {
		return nil, ErrEmptyChannel
	}
	if firstFrame < 0 {
		return nil, ErrFrameRange
	}
	return &rawChannelImpl{
		pivot:      pivot,
		typ:        typ,
		vectorLen:  vectorLen,
		firstFrame: firstFrame,
		lastFrame:  firstFrame + len(data)/vectorLen - 1,
		data:       append([]float32(nil), data...),
	}, nil
}

// LoadRawChannel reads a dense channel from an open w3d.ChunkAnimationChannel chunk.
//
// Parameters:
//   - r: the chunk reader with the channel chunk open
//   - pivotOffset: added to the stored pivot index (1 for pre-3.0 files, which lack the root pivot)
//
// Returns:
//   - Motion: the loaded channel
//   - error: error if the chunk is malformed
func LoadRawChannel(r w3d.ChunkReader, pivotOffset int) (Motion, error) {
	var header w3d.AnimChannelHeader
	if err := r.ReadStruct(&header); err != nil {
		return nil, fmt.Errorf("failed to read channel header: %w", err)
	}
	if header.LastFrame < header.FirstFrame {
		return nil, ErrFrameRange
	}
	vectorLen := int(header.VectorLen)
	if !validVectorLen(vectorLen) {
		return nil, ErrInvalidVectorLen
	}

	count := (int(header.LastFrame) - int(header.FirstFrame) + 1) * vectorLen
	if uint32(count*4) > r.Remaining() {
		return nil, fmt.Errorf("channel expects %d values: %w", count, w3d.ErrChunkSizeMismatch)
	}
	data, err := w3d.ReadFloat32s(r, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel data: %w", err)
	}

	return &rawChannelImpl{
		pivot:      int(header.Pivot) + pivotOffset,
		typ:        w3d.ChannelType(header.Flags),
		vectorLen:  vectorLen,
		firstFrame: int(header.FirstFrame),
		lastFrame:  int(header.LastFrame),
		data:       data,
	}, nil
}

func (c *rawChannelImpl) Pivot() int {
	return c.pivot
}

func (c *rawChannelImpl) Type() w3d.ChannelType {
	return c.typ
}

func (c *rawChannelImpl) VectorLen() int {
	return c.vectorLen
}

func (c *rawChannelImpl) Encoding() Encoding {
	return EncodingRaw
}

func (c *rawChannelImpl) Vector(frame float32, out []float32) {
	f := int(frame)
	if frame < 0 || f < c.firstFrame || f > c.lastFrame {
		identity(out, c.vectorLen)
		return
	}
	base := (f - c.firstFrame) * c.vectorLen
	copy(out[:c.vectorLen], c.data[base:base+c.vectorLen])
}

func (c *rawChannelImpl) Quat(frame float32) mgl32.Quat {
	if c.vectorLen != maxVectorLen {
		return mgl32.QuatIdent()
	}
	var v [maxVectorLen]float32
	c.Vector(frame, v[:])
	return quatFromSlice(v[:])
}

func (c *rawChannelImpl) Save(w w3d.ChunkWriter) error {
	header := w3d.AnimChannelHeader{
		FirstFrame: uint16(c.firstFrame),
		LastFrame:  uint16(c.lastFrame),
		VectorLen:  uint16(c.vectorLen),
		Flags:      uint16(c.typ),
		Pivot:      uint16(c.pivot),
	}
	return w3d.WriteChunk(w, w3d.ChunkAnimationChannel, &header, c.data)
}
