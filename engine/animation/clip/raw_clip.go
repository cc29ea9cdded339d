package clip

import (
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/channel"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// frameRoundBias turns round-to-nearest into a floor that tolerates values a hair below an integer.
const frameRoundBias = 0.499999

var errEncodingMismatch = errors.New("clip: channel encoding does not match the clip variant")

// rawClipImpl is the Clip implementation over dense per-frame channels.
type rawClipImpl struct {
	name      string
	hierName  string
	numFrames int
	frameRate float32
	nodes     nodeTable
}

var _ Clip = &rawClipImpl{}

// NewRawClip builds a raw clip in memory.
//
// Parameters:
//   - hierName: the hierarchy the clip animates
//   - animName: the animation name; the clip is named "<hierName>.<animName>"
//   - numPivots: the pivot count of the hierarchy
//   - options: frame count, frame rate and channels
//
// Returns:
//   - Clip: the clip
//   - error: error if the frame count is invalid or a channel is not dense
func NewRawClip(hierName, animName string, numPivots int, options ...BuilderOption) (Clip, error) {
	cfg := newClipConfig(options)
	if cfg.numFrames < 1 {
		return nil, ErrNoFrames
	}
	c := &rawClipImpl{
		name:      joinName(hierName, animName),
		hierName:  hierName,
		numFrames: cfg.numFrames,
		frameRate: cfg.frameRate,
		nodes:     make(nodeTable, numPivots),
	}
	for _, ch := range cfg.motions {
		if ch.Encoding() != channel.EncodingRaw {
			return nil, fmt.Errorf("%s channel on pivot %d: %w", ch.Encoding(), ch.Pivot(), errEncodingMismatch)
		}
		c.nodes.addMotion(c.name, ch)
	}
	for _, ch := range cfg.bits {
		if ch.Encoding() != channel.EncodingRaw {
			return nil, fmt.Errorf("%s bit channel on pivot %d: %w", ch.Encoding(), ch.Pivot(), errEncodingMismatch)
		}
		c.nodes.addBit(c.name, ch)
	}
	return c, nil
}

// LoadRawClip reads a raw clip from an open w3d.ChunkAnimation chunk. The header chunk must come first.
// Files older than version 3.0 have no root pivot, so their channel pivots are shifted by one.
//
// Parameters:
//   - r: the chunk reader with the animation chunk open
//   - pivots: resolves the pivot count of the clip's hierarchy
//
// Returns:
//   - Clip: the loaded clip
//   - error: error if the chunk is malformed or the hierarchy is unknown
func LoadRawClip(r w3d.ChunkReader, pivots PivotCounter) (Clip, error) {
	var header w3d.AnimHeader
	if err := readHeader(r, w3d.ChunkAnimationHeader, &header); err != nil {
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
	pivotOffset := 0
	if header.Version < w3d.Pre30Version {
		pivotOffset = 1
	}

	c := &rawClipImpl{
		name:      name,
		hierName:  hierName,
		numFrames: int(header.NumFrames),
		frameRate: float32(header.FrameRate),
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
		case w3d.ChunkAnimationChannel:
			ch, err := channel.LoadRawChannel(r, pivotOffset)
			if err != nil {
				return nil, fmt.Errorf("animation %s: %w", name, err)
			}
			c.nodes.addMotion(name, ch)
		case w3d.ChunkBitChannel:
			ch, err := channel.LoadBitChannel(r, pivotOffset)
			if err != nil {
				return nil, fmt.Errorf("animation %s: %w", name, err)
			}
			c.nodes.addBit(name, ch)
		}
		if err := r.CloseChunk(); err != nil {
			return nil, fmt.Errorf("animation %s: %w", name, err)
		}
	}
	return c, nil
}

// readHeader opens the first sub-chunk, checks that it is the expected header and decodes it.
func readHeader(r w3d.ChunkReader, id uint32, header any) error {
	ok, err := r.OpenChunk()
	if err != nil {
		return fmt.Errorf("failed to open animation header: %w", err)
	}
	if !ok || r.ID() != id {
		return errMissingHeader
	}
	if err := r.ReadStruct(header); err != nil {
		return fmt.Errorf("failed to read animation header: %w", err)
	}
	return r.CloseChunk()
}

func (c *rawClipImpl) Name() string {
	return c.name
}

func (c *rawClipImpl) HierarchyName() string {
	return c.hierName
}

func (c *rawClipImpl) NumFrames() int {
	return c.numFrames
}

func (c *rawClipImpl) FrameRate() float32 {
	return c.frameRate
}

func (c *rawClipImpl) TotalTime() float32 {
	return float32(c.numFrames) / c.frameRate
}

func (c *rawClipImpl) NumPivots() int {
	return len(c.nodes)
}

// frames splits frame into the sample before it, the sample after it (wrapping to frame 0) and the ratio
// between them.
func (c *rawClipImpl) frames(frame float32) (int, int, float32) {
	frame0 := int(math.Round(float64(frame - frameRoundBias)))
	if frame0 < 0 {
		frame0 = 0
	}
	frame1 := frame0 + 1
	if frame1 >= c.numFrames {
		frame1 = 0
	}
	return frame0, frame1, frame - float32(frame0)
}

func (c *rawClipImpl) Translation(pivot int, frame float32) mgl32.Vec3 {
	n := c.nodes.node(pivot)
	if n == nil {
		return mgl32.Vec3{}
	}
	frame0, frame1, ratio := c.frames(frame)
	t0 := n.translation(float32(frame0))
	if ratio == 0 {
		return t0
	}
	return common.LerpVec3(t0, n.translation(float32(frame1)), ratio)
}

func (c *rawClipImpl) Orientation(pivot int, frame float32) mgl32.Quat {
	n := c.nodes.node(pivot)
	if n == nil || n.q == nil {
		return mgl32.QuatIdent()
	}
	frame0, frame1, ratio := c.frames(frame)
	q0 := n.orientation(float32(frame0))
	if ratio == 0 {
		return q0
	}
	return common.FastSlerp(q0, n.orientation(float32(frame1)), ratio)
}

func (c *rawClipImpl) Transform(pivot int, frame float32) mgl32.Mat4 {
	return common.BuildTransform(c.Translation(pivot, frame), c.Orientation(pivot, frame))
}

func (c *rawClipImpl) Visibility(pivot int, frame float32) bool {
	n := c.nodes.node(pivot)
	if n == nil {
		return true
	}
	return n.visibility(int(frame))
}

func (c *rawClipImpl) IsNodeMotionPresent(pivot int) bool {
	return c.nodes.present(pivot)
}

func (c *rawClipImpl) Variant() Variant {
	return VariantRaw
}

func (c *rawClipImpl) Save(w w3d.ChunkWriter) error {
	w.BeginChunk(w3d.ChunkAnimation)
	header := w3d.AnimHeader{
		Version:       w3d.AnimationVersion,
		Name:          w3d.MakeName(splitName(c.name, c.hierName)),
		HierarchyName: w3d.MakeName(c.hierName),
		NumFrames:     uint32(c.numFrames),
		FrameRate:     uint32(c.frameRate),
	}
	if err := w3d.WriteChunk(w, w3d.ChunkAnimationHeader, &header); err != nil {
		return err
	}
	if err := c.nodes.save(w); err != nil {
		return fmt.Errorf("failed to save animation %s: %w", c.name, err)
	}
	return w.EndChunk()
}
