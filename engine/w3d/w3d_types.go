// package w3d contains the chunk framing and fixed binary record shapes of the W3D asset format.
// Every chunk is an 8 byte header (uint32 id, uint32 size) followed by size bytes of payload; the
// high bit of size marks a chunk whose payload is itself a sequence of chunks. All values are
// little-endian.
package w3d

import (
	"bytes"
	"errors"
)

// Chunk identifiers used by the hierarchy and animation loaders.
const (
	ChunkHierarchy       uint32 = 0x00000100
	ChunkHierarchyHeader uint32 = 0x00000101
	ChunkPivots          uint32 = 0x00000102
	ChunkPivotFixups     uint32 = 0x00000103

	ChunkAnimation        uint32 = 0x00000200
	ChunkAnimationHeader  uint32 = 0x00000201
	ChunkAnimationChannel uint32 = 0x00000202
	ChunkBitChannel       uint32 = 0x00000203

	ChunkCompressedAnimation        uint32 = 0x00000280
	ChunkCompressedAnimationHeader  uint32 = 0x00000281
	ChunkCompressedAnimationChannel uint32 = 0x00000282
	ChunkCompressedBitChannel       uint32 = 0x00000283

	ChunkMorphAnimation        uint32 = 0x000002C0
	ChunkMorphAnimHeader       uint32 = 0x000002C1
	ChunkMorphAnimChannel      uint32 = 0x000002C2
	ChunkMorphAnimPoseName     uint32 = 0x000002C3
	ChunkMorphAnimKeyData      uint32 = 0x000002C4
	ChunkMorphAnimPivotChannel uint32 = 0x000002C5
)

// subChunkFlag is set in a chunk header's size field when the payload contains sub-chunks.
const subChunkFlag uint32 = 0x80000000

// NameLen is the fixed on-disk width of W3D names.
const NameLen = 16

// NoParent is the on-disk parent index of a root pivot.
const NoParent uint32 = 0xFFFFFFFF

// ChannelType identifies what a motion channel animates.
type ChannelType uint8

const (
	// ChannelX animates the X translation.
	ChannelX ChannelType = iota
	// ChannelY animates the Y translation.
	ChannelY
	// ChannelZ animates the Z translation.
	ChannelZ
	// ChannelXR animates an X euler rotation (legacy, ignored by the clip loaders).
	ChannelXR
	// ChannelYR animates a Y euler rotation (legacy, ignored by the clip loaders).
	ChannelYR
	// ChannelZR animates a Z euler rotation (legacy, ignored by the clip loaders).
	ChannelZR
	// ChannelQ animates the orientation as an x, y, z, w quaternion.
	ChannelQ
)

// BitChannelVis is the bit channel type that carries pivot visibility.
const BitChannelVis uint8 = 0

// Flavor selects the channel encoding of a compressed animation.
type Flavor uint16

const (
	// FlavorTimeCoded stores sparse time-coded channels.
	FlavorTimeCoded Flavor = iota
	// FlavorAdaptiveDelta stores nibble-packed adaptive delta channels.
	FlavorAdaptiveDelta
)

// MakeVersion packs a major/minor version pair the way W3D headers store it.
func MakeVersion(major, minor uint32) uint32 {
	return (major << 16) | (minor & 0xFFFF)
}

// Versions written by the savers. Pre30Version is the first version whose hierarchies carry an
// explicit root pivot.
var (
	HierarchyVersion           = MakeVersion(4, 1)
	AnimationVersion           = MakeVersion(4, 1)
	CompressedAnimationVersion = MakeVersion(0, 1)
	MorphAnimationVersion      = MakeVersion(0, 1)
	Pre30Version               = MakeVersion(3, 0)
)

// Common errors returned while reading chunks.
var (
	ErrTruncatedChunk    = errors.New("w3d: truncated chunk")
	ErrChunkOverrun      = errors.New("w3d: read past end of chunk")
	ErrNoOpenChunk       = errors.New("w3d: no open chunk")
	ErrUnexpectedChunk   = errors.New("w3d: unexpected chunk")
	ErrMissingHeader     = errors.New("w3d: missing header chunk")
	ErrChunkSizeMismatch = errors.New("w3d: chunk size does not match its record")
)

// Name is a fixed width, zero padded W3D name.
type Name [NameLen]byte

// MakeName converts s into a Name, truncating it so the terminating zero always fits.
func MakeName(s string) Name {
	var n Name
	copy(n[:NameLen-1], s)
	return n
}

// String returns the name up to its first zero byte.
func (n Name) String() string {
	if i := bytes.IndexByte(n[:], 0); i >= 0 {
		return string(n[:i])
	}
	return string(n[:])
}

// HierarchyHeader is the payload of ChunkHierarchyHeader.
type HierarchyHeader struct {
	Version   uint32
	Name      Name
	NumPivots uint32
	Center    [3]float32
}

// PivotRecord is one entry of the ChunkPivots payload. Rotation is stored x, y, z, w.
type PivotRecord struct {
	Name        Name
	ParentIdx   uint32
	Translation [3]float32
	EulerAngles [3]float32
	Rotation    [4]float32
}

// AnimHeader is the payload of ChunkAnimationHeader.
type AnimHeader struct {
	Version       uint32
	Name          Name
	HierarchyName Name
	NumFrames     uint32
	FrameRate     uint32
}

// AnimChannelHeader prefixes a ChunkAnimationChannel payload. It is followed by
// (LastFrame-FirstFrame+1)*VectorLen float32 values.
type AnimChannelHeader struct {
	FirstFrame uint16
	LastFrame  uint16
	VectorLen  uint16
	Flags      uint16
	Pivot      uint16
	Pad        uint16
}

// BitChannelHeader prefixes a ChunkBitChannel payload. It is followed by a packed bit array of
// LastFrame-FirstFrame+1 bits, least significant bit first.
type BitChannelHeader struct {
	FirstFrame uint16
	LastFrame  uint16
	Flags      uint16
	Pivot      uint16
	DefaultVal uint8
}

// CompressedAnimHeader is the payload of ChunkCompressedAnimationHeader.
type CompressedAnimHeader struct {
	Version       uint32
	Name          Name
	HierarchyName Name
	NumFrames     uint32
	FrameRate     uint16
	Flavor        uint16
}

// TimeCodedChannelHeader prefixes a time-coded ChunkCompressedAnimationChannel payload. It is
// followed by NumTimeCodes*(VectorLen+1) uint32 words.
type TimeCodedChannelHeader struct {
	NumTimeCodes uint32
	Pivot        uint16
	VectorLen    uint8
	Flags        uint8
}

// AdaptiveDeltaChannelHeader prefixes an adaptive-delta ChunkCompressedAnimationChannel payload.
// It is followed by VectorLen float32 anchors and the packed delta packets.
type AdaptiveDeltaChannelHeader struct {
	NumFrames uint32
	Pivot     uint16
	VectorLen uint8
	Flags     uint8
	Scale     float32
}

// TimeCodedBitChannelHeader prefixes a ChunkCompressedBitChannel payload. It is followed by
// NumTimeCodes uint32 words whose high bit carries the bit value.
type TimeCodedBitChannelHeader struct {
	NumTimeCodes uint32
	Pivot        uint16
	Flags        uint8
	DefaultVal   uint8
}

// MorphAnimHeader is the payload of ChunkMorphAnimHeader.
type MorphAnimHeader struct {
	Version       uint32
	Name          Name
	HierarchyName Name
	FrameCount    uint32
	FrameRate     float32
	ChannelCount  uint32
}

// MorphKey maps a frame of a morph animation onto a frame of its pose animation.
type MorphKey struct {
	MorphFrame uint32
	PoseFrame  uint32
}
