package clip

import (
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	errNoMorphKeys       = errors.New("clip: morph channel has no keys")
	errUnsortedMorphKeys = errors.New("clip: morph keys must be strictly increasing")
)

// noMorphChannel marks a pivot that no morph channel drives.
const noMorphChannel = -1

// morphChannel samples a pose clip through a morph frame to pose frame key list.
type morphChannel struct {
	pose      Clip
	keys      []w3d.MorphKey
	cachedKey int
}

// morphClipImpl is the Clip implementation that replays frames of pose clips.
type morphClipImpl struct {
	name          string
	hierName      string
	numFrames     int
	frameRate     float32
	numPivots     int
	channels      []*morphChannel
	pivotChannels []int
}

var _ Clip = &morphClipImpl{}

// NewMorphClip builds a morph clip in memory. Pivot ownership comes from WithPivotChannels or, when that
// option is absent, from the pose clips themselves.
//
// Parameters:
//   - hierName: the hierarchy the clip animates
//   - animName: the animation name; the clip is named "<hierName>.<animName>"
//   - numPivots: the pivot count of the hierarchy
//   - options: frame count, frame rate, pose channels and pivot table
//
// Returns:
//   - Clip: the clip
//   - error: error if the frame count is invalid or a channel has no pose or no keys
func NewMorphClip(hierName, animName string, numPivots int, options ...BuilderOption) (Clip, error) {
	cfg := newClipConfig(options)
	if cfg.numFrames < 1 {
		return nil, ErrNoFrames
	}
	c := &morphClipImpl{
		name:      joinName(hierName, animName),
		hierName:  hierName,
		numFrames: cfg.numFrames,
		frameRate: cfg.frameRate,
		numPivots: numPivots,
	}
	for i, mc := range cfg.morphChannels {
		if mc.pose == nil {
			return nil, fmt.Errorf("morph channel %d: %w", i, ErrPoseNotFound)
		}
		if err := validateMorphKeys(mc.keys); err != nil {
			return nil, fmt.Errorf("morph channel %d: %w", i, err)
		}
		c.channels = append(c.channels, &morphChannel{pose: mc.pose, keys: append([]w3d.MorphKey(nil), mc.keys...)})
	}
	if cfg.pivotChannels != nil {
		c.setPivotChannels(cfg.pivotChannels)
	} else {
		c.resolvePivotChannels()
	}
	return c, nil
}

// LoadMorphClip reads a morph clip from an open w3d.ChunkMorphAnimation chunk. Pose clips are looked up by
// name through poses, so they must be loaded first.
//
// Parameters:
//   - r: the chunk reader with the animation chunk open
//   - pivots: resolves the pivot count of the clip's hierarchy
//   - poses: resolves the pose clips named by the channels
//
// Returns:
//   - Clip: the loaded clip
//   - error: error if the chunk is malformed, the hierarchy is unknown or a pose clip is missing
func LoadMorphClip(r w3d.ChunkReader, pivots PivotCounter, poses Resolver) (Clip, error) {
	var header w3d.MorphAnimHeader
	if err := readHeader(r, w3d.ChunkMorphAnimHeader, &header); err != nil {
		return nil, err
	}
	hierName := header.HierarchyName.String()
	name := joinName(hierName, header.Name.String())

	numPivots, ok := pivots.PivotCount(hierName)
	if !ok {
		return nil, fmt.Errorf("animation %s: %w: %s", name, ErrHierarchyNotFound, hierName)
	}
	if header.FrameCount == 0 {
		return nil, fmt.Errorf("animation %s: %w", name, ErrNoFrames)
	}

	c := &morphClipImpl{
		name:      name,
		hierName:  hierName,
		numFrames: int(header.FrameCount),
		frameRate: header.FrameRate,
		numPivots: numPivots,
	}

	var table []uint32
	for {
		ok, err := r.OpenChunk()
		if err != nil {
			return nil, fmt.Errorf("animation %s: %w", name, err)
		}
		if !ok {
			break
		}
		switch r.ID() {
		case w3d.ChunkMorphAnimChannel:
			ch, err := loadMorphChannel(r, poses)
			if err != nil {
				return nil, fmt.Errorf("animation %s: %w", name, err)
			}
			c.channels = append(c.channels, ch)
		case w3d.ChunkMorphAnimPivotChannel:
			table, err = w3d.ReadUint32s(r, int(r.Remaining()/4))
			if err != nil {
				return nil, fmt.Errorf("animation %s: %w", name, err)
			}
		}
		if err := r.CloseChunk(); err != nil {
			return nil, fmt.Errorf("animation %s: %w", name, err)
		}
	}
	if len(c.channels) != int(header.ChannelCount) {
		log.Printf("[Clip] animation %s: header lists %d channels, found %d", name, header.ChannelCount, len(c.channels))
	}

	if table != nil {
		pivotChannels := make([]int, len(table))
		for i, v := range table {
			pivotChannels[i] = int(int32(v))
		}
		c.setPivotChannels(pivotChannels)
	} else {
		c.resolvePivotChannels()
	}
	return c, nil
}

// loadMorphChannel reads the pose name and key list of one w3d.ChunkMorphAnimChannel chunk.
func loadMorphChannel(r w3d.ChunkReader, poses Resolver) (*morphChannel, error) {
	ch := &morphChannel{}
	var poseName string
	for {
		ok, err := r.OpenChunk()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch r.ID() {
		case w3d.ChunkMorphAnimPoseName:
			if poseName, err = w3d.ReadString(r); err != nil {
				return nil, err
			}
		case w3d.ChunkMorphAnimKeyData:
			ch.keys = make([]w3d.MorphKey, r.Remaining()/8)
			if err := r.ReadStruct(ch.keys); err != nil {
				return nil, fmt.Errorf("failed to read morph keys: %w", err)
			}
		}
		if err := r.CloseChunk(); err != nil {
			return nil, err
		}
	}
	pose, ok := poses.Clip(poseName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoseNotFound, poseName)
	}
	if err := validateMorphKeys(ch.keys); err != nil {
		return nil, fmt.Errorf("morph channel for pose %s: %w", poseName, err)
	}
	ch.pose = pose
	return ch, nil
}

// validateMorphKeys checks that keys is non-empty and strictly increasing in MorphFrame.
func validateMorphKeys(keys []w3d.MorphKey) error {
	if len(keys) == 0 {
		return errNoMorphKeys
	}
	for i := 1; i < len(keys); i++ {
		if keys[i].MorphFrame <= keys[i-1].MorphFrame {
			return errUnsortedMorphKeys
		}
	}
	return nil
}

// setPivotChannels installs an explicit pivot table, ignoring entries that name missing channels.
func (c *morphClipImpl) setPivotChannels(table []int) {
	c.pivotChannels = make([]int, c.numPivots)
	for p := range c.pivotChannels {
		c.pivotChannels[p] = noMorphChannel
		if p < len(table) && table[p] >= 0 && table[p] < len(c.channels) {
			c.pivotChannels[p] = table[p]
		}
	}
}

// resolvePivotChannels assigns every pivot to the last channel whose pose animates it.
func (c *morphClipImpl) resolvePivotChannels() {
	c.pivotChannels = make([]int, c.numPivots)
	for p := range c.pivotChannels {
		c.pivotChannels[p] = noMorphChannel
	}
	for i, ch := range c.channels {
		for p := 0; p < c.numPivots; p++ {
			if ch.pose.IsNodeMotionPresent(p) {
				c.pivotChannels[p] = i
			}
		}
	}
}

// channel returns the morph channel driving pivot, or nil.
func (c *morphClipImpl) channel(pivot int) *morphChannel {
	if pivot < 0 || pivot >= len(c.pivotChannels) || c.pivotChannels[pivot] == noMorphChannel {
		return nil
	}
	return c.channels[c.pivotChannels[pivot]]
}

// poseFrames maps a morph frame onto the two pose frames around it and the ratio between them.
func (ch *morphChannel) poseFrames(frame float32) (float32, float32, float32) {
	if frame < 0 {
		frame = 0
	}
	idx := ch.keyIndex(uint32(frame))
	k0 := ch.keys[idx]
	if idx == len(ch.keys)-1 || frame <= float32(k0.MorphFrame) {
		return float32(k0.PoseFrame), float32(k0.PoseFrame), 0
	}
	k1 := ch.keys[idx+1]
	ratio := (frame - float32(k0.MorphFrame)) / float32(k1.MorphFrame-k0.MorphFrame)
	return float32(k0.PoseFrame), float32(k1.PoseFrame), ratio
}

// keyIndex returns the key governing frame, consulting the cached key and the one after it before falling
// back to a binary search.
func (ch *morphChannel) keyIndex(frame uint32) int {
	last := len(ch.keys) - 1
	if frame >= ch.keys[ch.cachedKey].MorphFrame {
		if ch.cachedKey == last || frame < ch.keys[ch.cachedKey+1].MorphFrame {
			return ch.cachedKey
		}
		ch.cachedKey++
		if ch.cachedKey == last || frame < ch.keys[ch.cachedKey+1].MorphFrame {
			return ch.cachedKey
		}
	}

	switch {
	case frame >= ch.keys[last].MorphFrame:
		ch.cachedKey = last
	case frame < ch.keys[0].MorphFrame:
		ch.cachedKey = 0
	default:
		left, right := 0, last-1
		for left < right {
			mid := left + (right-left+1)/2
			if frame < ch.keys[mid].MorphFrame {
				right = mid - 1
			} else {
				left = mid
			}
		}
		ch.cachedKey = left
	}
	return ch.cachedKey
}

func (c *morphClipImpl) Name() string {
	return c.name
}

func (c *morphClipImpl) HierarchyName() string {
	return c.hierName
}

func (c *morphClipImpl) NumFrames() int {
	return c.numFrames
}

func (c *morphClipImpl) FrameRate() float32 {
	return c.frameRate
}

func (c *morphClipImpl) TotalTime() float32 {
	return float32(c.numFrames) / c.frameRate
}

func (c *morphClipImpl) NumPivots() int {
	return c.numPivots
}

func (c *morphClipImpl) Translation(pivot int, frame float32) mgl32.Vec3 {
	ch := c.channel(pivot)
	if ch == nil {
		return mgl32.Vec3{}
	}
	f0, f1, ratio := ch.poseFrames(frame)
	t0 := ch.pose.Translation(pivot, f0)
	if ratio == 0 {
		return t0
	}
	return common.LerpVec3(t0, ch.pose.Translation(pivot, f1), ratio)
}

func (c *morphClipImpl) Orientation(pivot int, frame float32) mgl32.Quat {
	ch := c.channel(pivot)
	if ch == nil {
		return mgl32.QuatIdent()
	}
	f0, f1, ratio := ch.poseFrames(frame)
	q0 := ch.pose.Orientation(pivot, f0)
	if ratio == 0 {
		return q0
	}
	return common.FastSlerp(q0, ch.pose.Orientation(pivot, f1), ratio)
}

func (c *morphClipImpl) Transform(pivot int, frame float32) mgl32.Mat4 {
	return common.BuildTransform(c.Translation(pivot, frame), c.Orientation(pivot, frame))
}

func (c *morphClipImpl) Visibility(pivot int, frame float32) bool {
	return true
}

func (c *morphClipImpl) IsNodeMotionPresent(pivot int) bool {
	return c.channel(pivot) != nil
}

func (c *morphClipImpl) Variant() Variant {
	return VariantMorph
}

func (c *morphClipImpl) Save(w w3d.ChunkWriter) error {
	w.BeginChunk(w3d.ChunkMorphAnimation)
	header := w3d.MorphAnimHeader{
		Version:       w3d.MorphAnimationVersion,
		Name:          w3d.MakeName(splitName(c.name, c.hierName)),
		HierarchyName: w3d.MakeName(c.hierName),
		FrameCount:    uint32(c.numFrames),
		FrameRate:     c.frameRate,
		ChannelCount:  uint32(len(c.channels)),
	}
	if err := w3d.WriteChunk(w, w3d.ChunkMorphAnimHeader, &header); err != nil {
		return err
	}
	for _, ch := range c.channels {
		w.BeginChunk(w3d.ChunkMorphAnimChannel)
		if err := w3d.WriteChunk(w, w3d.ChunkMorphAnimPoseName, append([]byte(ch.pose.Name()), 0)); err != nil {
			return err
		}
		if err := w3d.WriteChunk(w, w3d.ChunkMorphAnimKeyData, ch.keys); err != nil {
			return err
		}
		if err := w.EndChunk(); err != nil {
			return err
		}
	}
	table := make([]uint32, len(c.pivotChannels))
	for i, ch := range c.pivotChannels {
		table[i] = uint32(int32(ch))
	}
	if err := w3d.WriteChunk(w, w3d.ChunkMorphAnimPivotChannel, table); err != nil {
		return err
	}
	return w.EndChunk()
}
