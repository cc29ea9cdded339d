package channel

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// bitChannelImpl is the dense Bit implementation: one bit per frame in [firstFrame, lastFrame],
// least significant bit first.
type bitChannelImpl struct {
	pivot      int
	typ        uint8
	defaultVal bool
	firstFrame int
	lastFrame  int
	bits       []byte
}

var _ Bit = &bitChannelImpl{}

// NewBitChannel creates a dense bit channel.
//
// Parameters:
//   - pivot: the pivot index
//   - firstFrame: the frame of values[0]
//   - defaultVal: returned for frames outside the stored range
//   - values: one bit per frame
//
// Returns:
//   - Bit: the channel
//   - error: error if values is empty or firstFrame is negative
func NewBitChannel(pivot, firstFrame int, defaultVal bool, values []bool) (Bit, error) {
	if len(values) == 0 {
		return nil, ErrEmptyChannel
	}
	if firstFrame < 0 {
		return nil, ErrFrameRange
	}
	bits := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			bits[i>>3] |= 1 << (i & 7)
		}
	}
	return &bitChannelImpl{
		pivot:      pivot,
		typ:        w3d.BitChannelVis,
		defaultVal: defaultVal,
		firstFrame: firstFrame,
		lastFrame:  firstFrame + len(values) - 1,
		bits:       bits,
	}, nil
}

// LoadBitChannel reads a dense bit channel from an open w3d.ChunkBitChannel chunk.
//
// Parameters:
//   - r: the chunk reader with the channel chunk open
//   - pivotOffset: added to the stored pivot index (1 for pre-3.0 files)
//
// Returns:
//   - Bit: the loaded channel
//   - error: error if the chunk is malformed
func LoadBitChannel(r w3d.ChunkReader, pivotOffset int) (Bit, error) {
	var header w3d.BitChannelHeader
	if err := r.ReadStruct(&header); err != nil {
		return nil, fmt.Errorf("failed to read bit channel header: %w", err)
	}
	if header.LastFrame < header.FirstFrame {
		return nil, ErrFrameRange
	}
	count := int(header.LastFrame) - int(header.FirstFrame) + 1
	size := (count + 7) / 8
	if uint32(size) > r.Remaining() {
		return nil, fmt.Errorf("bit channel expects %d bytes: %w", size, w3d.ErrChunkSizeMismatch)
	}
	bits := make([]byte, size)
	if err := r.ReadFull(bits); err != nil {
		return nil, fmt.Errorf("failed to read bit channel data: %w", err)
	}
	return &bitChannelImpl{
		pivot:      int(header.Pivot) + pivotOffset,
		typ:        uint8(header.Flags),
		defaultVal: header.DefaultVal != 0,
		firstFrame: int(header.FirstFrame),
		lastFrame:  int(header.LastFrame),
		bits:       bits,
	}, nil
}

func (c *bitChannelImpl) Pivot() int {
	return c.pivot
}

func (c *bitChannelImpl) Type() uint8 {
	return c.typ
}

func (c *bitChannelImpl) Encoding() Encoding {
	return EncodingRaw
}

func (c *bitChannelImpl) Bit(frame int) bool {
	if frame < c.firstFrame || frame > c.lastFrame {
		return c.defaultVal
	}
	i := frame - c.firstFrame
	return c.bits[i>>3]&(1<<(i&7)) != 0
}

func (c *bitChannelImpl) Save(w w3d.ChunkWriter) error {
	header := w3d.BitChannelHeader{
		FirstFrame: uint16(c.firstFrame),
		LastFrame:  uint16(c.lastFrame),
		Flags:      uint16(c.typ),
		Pivot:      uint16(c.pivot),
		DefaultVal: boolByte(c.defaultVal),
	}
	return w3d.WriteChunk(w, w3d.ChunkBitChannel, &header, c.bits)
}

// TimeCodedBitKey sets the channel to Value from Frame onwards.
type TimeCodedBitKey struct {
	Frame uint32
	Value bool
}

// timeCodedBitChannelImpl is the sparse Bit implementation. Each word is a frame number whose high bit
// carries the value.
type timeCodedBitChannelImpl struct {
	pivot      int
	typ        uint8
	defaultVal bool
	data       []uint32
	cachedIdx  int
}

var _ Bit = &timeCodedBitChannelImpl{}

// NewTimeCodedBitChannel creates a sparse bit channel. Frames before the first key take the first key's value.
//
// Parameters:
//   - pivot: the pivot index
//   - defaultVal: stored default value
//   - keys: toggles, strictly increasing in Frame
//
// Returns:
//   - Bit: the channel
//   - error: error if keys are empty or unsorted
func NewTimeCodedBitChannel(pivot int, defaultVal bool, keys []TimeCodedBitKey) (Bit, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyChannel
	}
	data := make([]uint32, len(keys))
	for i, k := range keys {
		if k.Frame&StepFlag != 0 || (i > 0 && k.Frame <= keys[i-1].Frame) {
			return nil, ErrUnsortedKeys
		}
		data[i] = k.Frame
		if k.Value {
			data[i] |= StepFlag
		}
	}
	return &timeCodedBitChannelImpl{
		pivot:      pivot,
		typ:        w3d.BitChannelVis,
		defaultVal: defaultVal,
		data:       data,
	}, nil
}

// LoadTimeCodedBitChannel reads a sparse bit channel from an open w3d.ChunkCompressedBitChannel chunk.
//
// Parameters:
//   - r: the chunk reader with the channel chunk open
//
// Returns:
//   - Bit: the loaded channel
//   - error: error if the chunk is malformed
func LoadTimeCodedBitChannel(r w3d.ChunkReader) (Bit, error) {
	var header w3d.TimeCodedBitChannelHeader
	if err := r.ReadStruct(&header); err != nil {
		return nil, fmt.Errorf("failed to read time-coded bit channel header: %w", err)
	}
	if header.NumTimeCodes == 0 {
		return nil, ErrEmptyChannel
	}
	if header.NumTimeCodes*4 > r.Remaining() {
		return nil, fmt.Errorf("time-coded bit channel expects %d words: %w", header.NumTimeCodes, w3d.ErrChunkSizeMismatch)
	}
	data, err := w3d.ReadUint32s(r, int(header.NumTimeCodes))
	if err != nil {
		return nil, fmt.Errorf("failed to read time-coded bit channel data: %w", err)
	}
	return &timeCodedBitChannelImpl{
		pivot:      int(header.Pivot),
		typ:        header.Flags,
		defaultVal: header.DefaultVal != 0,
		data:       data,
	}, nil
}

func (c *timeCodedBitChannelImpl) Pivot() int {
	return c.pivot
}

func (c *timeCodedBitChannelImpl) Type() uint8 {
	return c.typ
}

func (c *timeCodedBitChannelImpl) Encoding() Encoding {
	return EncodingTimeCoded
}

// Bit scans linearly from the cached key when frame is at or past it, otherwise from the first key.
func (c *timeCodedBitChannelImpl) Bit(frame int) bool {
	if frame < 0 {
		frame = 0
	}
	f := uint32(frame)

	idx := 0
	if f >= c.data[c.cachedIdx]&^StepFlag {
		idx = c.cachedIdx + 1
	}
	for ; idx < len(c.data); idx++ {
		if f < c.data[idx]&^StepFlag {
			break
		}
	}
	idx = max(idx-1, 0)
	c.cachedIdx = idx
	return c.data[idx]&StepFlag != 0
}

func (c *timeCodedBitChannelImpl) Save(w w3d.ChunkWriter) error {
	header := w3d.TimeCodedBitChannelHeader{
		NumTimeCodes: uint32(len(c.data)),
		Pivot:        uint16(c.pivot),
		Flags:        c.typ,
		DefaultVal:   boolByte(c.defaultVal),
	}
	return w3d.WriteChunk(w, w3d.ChunkCompressedBitChannel, &header, c.data)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
