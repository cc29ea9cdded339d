package clip

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/channel"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// compressedClipImpl is the Clip implementation over time-coded or adaptive-delta channels. The flavor
// is clip-wide; every motion channel uses its encoding and visibility is always time-coded.
type compressedClipImpl struct {
	name      string
	hierName  string
	numFrames int
	frameRate float32
	flavor    w3d.Flavor
	nodes     nodeTable
}

var _ Clip = &compressedClipImpl{}

// flavorEncoding returns the channel encoding a compressed flavor stores.
func flavorEncoding(flavor w3d.Flavor) (channel.Encoding, error) {
	switch flavor {
	case w3d.FlavorTimeCoded:
		return channel.EncodingTimeCoded, nil
	case w3d.FlavorAdaptiveDelta:
		return channel.EncodingAdaptiveDelta, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownFlavor, flavor)
	}
}

// NewCompressedClip builds a compressed clip in memory.
//
// Parameters:
//   - hierName: the hierarchy the clip animates
//   - animName: the animation name; the clip is named "<hierName>.<animName>"
//   - numPivots: the pivot count of the hierarchy
//   - flavor: the channel encoding used by every motion channel
//   - options: frame count, frame rate and channels
//
// Returns:
//   - Clip: the clip
//   - error: error if the flavor is unknown or a channel does not match it
func NewCompressedClip(hierName, animName string, numPivots int, flavor w3d.Flavor, options ...BuilderOption) (Clip, error) {
	encoding, err := flavorEncoding(flavor)
	if err != nil {
		return nil, err
	}
	cfg := newClipConfig(options)
	if cfg.numFrames < 1 {
		return nil, ErrNoFrames
	}
	c := &compressedClipImpl{
		name:      joinName(hierName, animName),
		hierName:  hierName,
		numFrames: cfg.numFrames,
		frameRate: cfg.frameRate,
		flavor:    flavor,
		nodes:     make(nodeTable, numPivots),
	}
	for _, ch := range cfg.motions {
		if ch.Encoding() != encoding {
			return nil, fmt.Errorf("%s channel on pivot %d in %s clip: %w", ch.Encoding(), ch.Pivot(), encoding, errEncodingMismatch)
		}
		c.nodes.addMotion(c.name, ch)
	}
	for _, ch := range cfg.bits {
		if ch.Encoding() != channel.EncodingTimeCoded {
			return nil, fmt.Errorf("%s bit channel on pivot %d: %w", ch.Encoding(), ch.Pivot(), errEncodingMismatch)
		}
		c.nodes.addBit(c.name, ch)
	}
	return c, nil
}

// LoadCompressedClip reads a compressed clip from an open w3d.ChunkCompressedAnimation chunk. The header
// chunk must come first; its flavor selects the decoder for every channel chunk.
//
// Parameters:
//   - r: the chunk reader with the animation chunk open
//   - pivots: resolves the pivot count of the clip's hierarchy
//
// Returns:
//   - Clip: the loaded clip
//   - error: error if the chunk is malformed, the flavor unknown or the hierarchy missing
func LoadCompressedClip(r w3d.ChunkReader, pivots PivotCounter) (Clip, error) {
	var header w3d.CompressedAnimHeader
	if err := readHeader(r, w3d.ChunkCompressedAnimationHeader, &header); err != nil {
		return nil, err
	}
	hierName := header.HierarchyName.String()
	name := joinName(hierName, header.Name.String())

	numPivots, ok := pivots.PivotCount(hierName)
	if !ok {
		return nil, fmt.Errorf("animation %s: %w: %s", name, ErrHierarchyNotFound, hierName)
	}
	if header.NumFrames == 0 {
		return nil, fmt.Errorf("animation %s: %w", name, ErrNoFrames)
	}
	flavor := w3d.Flavor(header.Flavor)
	if _, err := flavorEncoding(flavor); err != nil {
		return nil, fmt.Errorf("animation %s: %w", name, err)
	}

	c := &compressedClipImpl{
		name:      name,
		hierName:  hierName,
		numFrames: int(header.NumFrames),
		frameRate: float32(header.FrameRate),
		flavor:    flavor,
		nodes:     make(nodeTable, numPivots),
	}

	for {
		ok, err := r.OpenChunk()
		if err != nil {
			return nil, fmt.Errorf("animation %s: %w", name, err)
		}
		if !ok {
			break
		}
		switch r.ID() {
		case w3d.ChunkCompressedAnimationChannel:
			ch, err := c.loadChannel(r)
			if err != nil {
				return nil, fmt.Errorf("animation %s: %w", name, err)
			}
			c.nodes.addMotion(name, ch)
		case w3d.ChunkCompressedBitChannel:
			ch, err := channel.LoadTimeCodedBitChannel(r)
			if err != nil {
				return nil, fmt.Errorf("animation %s: %w", name, err)
			}
			c.nodes.addBit(name, ch)
		default:
			log.Printf("[Clip] animation %s: skipping unknown chunk 0x%x", name, r.ID())
		}
		if err := r.CloseChunk(); err != nil {
			return nil, fmt.Errorf("animation %s: %w", name, err)
		}
	}
	return c, nil
}

func (c *compressedClipImpl) loadChannel(r w3d.ChunkReader) (channel.Motion, error) {
	if c.flavor == w3d.FlavorAdaptiveDelta {
		return channel.LoadAdaptiveDeltaChannel(r)
	}
	return channel.LoadTimeCodedChannel(r)
}

func (c *compressedClipImpl) Name() string {
	return c.name
}

func (c *compressedClipImpl) HierarchyName() string {
	return c.hierName
}

func (c *compressedClipImpl) NumFrames() int {
	return c.numFrames
}

func (c *compressedClipImpl) FrameRate() float32 {
	return c.frameRate
}

func (c *compressedClipImpl) TotalTime() float32 {
	return float32(c.numFrames) / c.frameRate
}

func (c *compressedClipImpl) NumPivots() int {
	return len(c.nodes)
}

func (c *compressedClipImpl) Flavor() w3d.Flavor {
	return c.flavor
}

func (c *compressedClipImpl) Translation(pivot int, frame float32) mgl32.Vec3 {
	n := c.nodes.node(pivot)
	if n == nil {
		return mgl32.Vec3{}
	}
	return n.translation(frame)
}

func (c *compressedClipImpl) Orientation(pivot int, frame float32) mgl32.Quat {
	n := c.nodes.node(pivot)
	if n == nil {
		return mgl32.QuatIdent()
	}
	return n.orientation(frame)
}

func (c *compressedClipImpl) Transform(pivot int, frame float32) mgl32.Mat4 {
	return common.BuildTransform(c.Translation(pivot, frame), c.Orientation(pivot, frame))
}

func (c *compressedClipImpl) Visibility(pivot int, frame float32) bool {
	n := c.nodes.node(pivot)
	if n == nil {
		return true
	}
	return n.visibility(int(frame))
}

func (c *compressedClipImpl) IsNodeMotionPresent(pivot int) bool {
	return c.nodes.present(pivot)
}

func (c *compressedClipImpl) Variant() Variant {
	return VariantCompressed
}

func (c *compressedClipImpl) Save(w w3d.ChunkWriter) error {
	w.BeginChunk(w3d.ChunkCompressedAnimation)
	header := w3d.CompressedAnimHeader{
		Version:       w3d.CompressedAnimationVersion,
		Name:          w3d.MakeName(splitName(c.name, c.hierName)),
		HierarchyName: w3d.MakeName(c.hierName),
		NumFrames:     uint32(c.numFrames),
		FrameRate:     uint16(c.frameRate),
		Flavor:        uint16(c.flavor),
	}
	if err := w3d.WriteChunk(w, w3d.ChunkCompressedAnimationHeader, &header); err != nil {
		return err
	}
	if err := c.nodes.save(w); err != nil {
		return fmt.Errorf("failed to save animation %s: %w", c.name, err)
	}
	return w.EndChunk()
}

// Compressed is implemented by compressed clips and exposes their flavor.
type Compressed interface {
	Clip

	// Flavor returns the clip-wide channel encoding.
	Flavor() w3d.Flavor
}

var _ Compressed = &compressedClipImpl{}
