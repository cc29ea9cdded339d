package clip

import (
	"bytes"
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/channel"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threePivots = PivotCountFunc(func(hierName string) (int, bool) {
	if common.NamesEqual(hierName, "SKEL") {
		return 3, true
	}
	return 0, false
})

func quarterTurnY() mgl32.Quat {
	return mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
}

func mustRawClip(t *testing.T) Clip {
	t.Helper()
	x, err := channel.NewRawChannel(1, w3d.ChannelX, 1, 0, []float32{0, 10, 20})
	require.NoError(t, err)
	q := quarterTurnY()
	rot, err := channel.NewRawChannel(1, w3d.ChannelQ, 4, 0, []float32{
		0, 0, 0, 1,
		q.V[0], q.V[1], q.V[2], q.W,
		0, 0, 0, 1,
	})
	require.NoError(t, err)
	vis, err := channel.NewBitChannel(2, 0, true, []bool{true, false, true})
	require.NoError(t, err)
	stale, err := channel.NewRawChannel(7, w3d.ChannelY, 1, 0, []float32{1, 1, 1})
	require.NoError(t, err)

	c, err := NewRawClip("SKEL", "WALK", 3,
		WithNumFrames(3),
		WithFrameRate(15),
		WithMotionChannels(x, rot, stale),
		WithBitChannels(vis),
	)
	require.NoError(t, err)
	return c
}

// saveAndOpen writes c and returns a reader positioned inside its top-level chunk.
func saveAndOpen(t *testing.T, c Clip) w3d.ChunkReader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Save(w3d.NewChunkWriter(&buf)))
	r := w3d.NewChunkReader(bytes.NewReader(buf.Bytes()))
	ok, err := r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	return r
}

func TestRawClipSampling(t *testing.T) {
	c := mustRawClip(t)

	assert.Equal(t, "SKEL.WALK", c.Name())
	assert.Equal(t, "SKEL", c.HierarchyName())
	assert.Equal(t, 3, c.NumPivots())
	assert.InDelta(t, 0.2, c.TotalTime(), 1e-6)
	assert.Equal(t, VariantRaw, c.Variant())

	tests := []struct {
		frame float32
		want  float32
	}{
		{0, 0},
		{1, 10},
		{1.5, 15},
		{2, 20},
		{2.5, 10},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, c.Translation(1, tt.frame)[0], 1e-4, "frame %v", tt.frame)
	}

	assert.Equal(t, quarterTurnY(), c.Orientation(1, 1))
	assert.Equal(t, mgl32.QuatIdent(), c.Orientation(0, 1), "missing Q channel is identity")
	assert.Equal(t, mgl32.Vec3{}, c.Translation(0, 1), "missing translation channels are zero")
	assert.Equal(t, mgl32.Vec3{}, c.Translation(9, 1), "out of range pivot is zero")

	assert.True(t, c.Visibility(2, 0))
	assert.False(t, c.Visibility(2, 1))
	assert.True(t, c.Visibility(0, 1), "missing visibility channel is visible")

	assert.True(t, c.IsNodeMotionPresent(1))
	assert.True(t, c.IsNodeMotionPresent(2))
	assert.False(t, c.IsNodeMotionPresent(0))
	assert.False(t, c.IsNodeMotionPresent(7), "channels past the pivot count are dropped")

	m := c.Transform(1, 1)
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, common.Translation(m))
}

func TestRawClipSaveLoad(t *testing.T) {
	c := mustRawClip(t)
	r := saveAndOpen(t, c)

	loaded, err := Load(r, threePivots, nil)
	require.NoError(t, err)
	assert.Equal(t, "SKEL.WALK", loaded.Name())
	assert.Equal(t, 3, loaded.NumFrames())
	assert.Equal(t, float32(15), loaded.FrameRate())
	for _, f := range []float32{0, 0.5, 1, 1.25, 2, 2.9} {
		assert.Equal(t, c.Translation(1, f), loaded.Translation(1, f), "frame %v", f)
		assert.Equal(t, c.Orientation(1, f), loaded.Orientation(1, f), "frame %v", f)
		assert.Equal(t, c.Visibility(2, f), loaded.Visibility(2, f), "frame %v", f)
	}
}

func TestRawClipLoadErrors(t *testing.T) {
	c := mustRawClip(t)

	_, err := Load(saveAndOpen(t, c), PivotCountFunc(func(string) (int, bool) { return 0, false }), nil)
	assert.ErrorIs(t, err, ErrHierarchyNotFound)

	var buf bytes.Buffer
	w := w3d.NewChunkWriter(&buf)
	w.BeginChunk(w3d.ChunkAnimation)
	require.NoError(t, w3d.WriteChunk(w, w3d.ChunkAnimationChannel, &w3d.AnimChannelHeader{VectorLen: 1}, float32(1)))
	require.NoError(t, w.EndChunk())
	r := w3d.NewChunkReader(bytes.NewReader(buf.Bytes()))
	_, err = r.OpenChunk()
	require.NoError(t, err)
	_, err = Load(r, threePivots, nil)
	assert.ErrorIs(t, err, errMissingHeader)
}

func TestRawClipPre30PivotShift(t *testing.T) {
	var buf bytes.Buffer
	w := w3d.NewChunkWriter(&buf)
	w.BeginChunk(w3d.ChunkAnimation)
	require.NoError(t, w3d.WriteChunk(w, w3d.ChunkAnimationHeader, &w3d.AnimHeader{
		Version:       w3d.MakeVersion(2, 0),
		Name:          w3d.MakeName("OLD"),
		HierarchyName: w3d.MakeName("SKEL"),
		NumFrames:     1,
		FrameRate:     30,
	}))
	require.NoError(t, w3d.WriteChunk(w, w3d.ChunkAnimationChannel, &w3d.AnimChannelHeader{
		VectorLen: 1,
		Flags:     uint16(w3d.ChannelZ),
		Pivot:     0,
	}, float32(4)))
	require.NoError(t, w.EndChunk())

	r := w3d.NewChunkReader(bytes.NewReader(buf.Bytes()))
	_, err := r.OpenChunk()
	require.NoError(t, err)
	loaded, err := LoadRawClip(r, threePivots)
	require.NoError(t, err)
	assert.False(t, loaded.IsNodeMotionPresent(0))
	assert.Equal(t, mgl32.Vec3{0, 0, 4}, loaded.Translation(1, 0))
}

func TestRawClipRejectsCompressedChannels(t *testing.T) {
	ch, err := channel.NewTimeCodedChannel(0, w3d.ChannelX, 1, []channel.TimeCodedKey{{Frame: 0, Value: []float32{1}}})
	require.NoError(t, err)
	_, err = NewRawClip("SKEL", "BAD", 3, WithMotionChannels(ch))
	assert.ErrorIs(t, err, errEncodingMismatch)
	_, err = NewRawClip("SKEL", "BAD", 3, WithNumFrames(0))
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestCompressedClipTimeCoded(t *testing.T) {
	x, err := channel.NewTimeCodedChannel(1, w3d.ChannelX, 1, []channel.TimeCodedKey{
		{Frame: 0, Value: []float32{0}},
		{Frame: 8, Value: []float32{8}},
	})
	require.NoError(t, err)
	vis, err := channel.NewTimeCodedBitChannel(1, true, []channel.TimeCodedBitKey{
		{Frame: 0, Value: true},
		{Frame: 4, Value: false},
	})
	require.NoError(t, err)

	c, err := NewCompressedClip("SKEL", "RUN", 3, w3d.FlavorTimeCoded,
		WithNumFrames(9), WithMotionChannels(x), WithBitChannels(vis))
	require.NoError(t, err)

	assert.InDelta(t, 2.5, c.Translation(1, 2.5)[0], 1e-5, "time-coded channels interpolate at fractional frames")
	assert.True(t, c.Visibility(1, 3.9))
	assert.False(t, c.Visibility(1, 4))
	assert.Equal(t, mgl32.QuatIdent(), c.Orientation(1, 3))

	loaded, err := Load(saveAndOpen(t, c), threePivots, nil)
	require.NoError(t, err)
	require.Equal(t, VariantCompressed, loaded.Variant())
	assert.Equal(t, w3d.FlavorTimeCoded, loaded.(Compressed).Flavor())
	assert.Equal(t, c.Translation(1, 6.5), loaded.Translation(1, 6.5))
	assert.False(t, loaded.Visibility(1, 7))
}

func TestCompressedClipAdaptiveDelta(t *testing.T) {
	values := make([]float32, 40)
	for i := range values {
		values[i] = float32(i) * 0.25
	}
	z, err := channel.NewAdaptiveDeltaChannel(2, w3d.ChannelZ, 1, values)
	require.NoError(t, err)

	c, err := NewCompressedClip("SKEL", "SLIDE", 3, w3d.FlavorAdaptiveDelta, WithNumFrames(40), WithMotionChannels(z))
	require.NoError(t, err)
	for f := 0; f < 40; f += 3 {
		assert.InDelta(t, values[f], c.Translation(2, float32(f))[2], 0.05, "frame %d", f)
	}

	loaded, err := Load(saveAndOpen(t, c), threePivots, nil)
	require.NoError(t, err)
	assert.Equal(t, w3d.FlavorAdaptiveDelta, loaded.(Compressed).Flavor())
	for f := float32(0); f < 40; f += 1.5 {
		assert.Equal(t, c.Translation(2, f), loaded.Translation(2, f), "frame %v", f)
	}

	_, err = NewCompressedClip("SKEL", "BAD", 3, w3d.FlavorTimeCoded, WithMotionChannels(z))
	assert.ErrorIs(t, err, errEncodingMismatch)
	_, err = NewCompressedClip("SKEL", "BAD", 3, w3d.Flavor(9))
	assert.ErrorIs(t, err, ErrUnknownFlavor)
}

func mustPoseClip(t *testing.T, name string, pivot int, xs []float32) Clip {
	t.Helper()
	x, err := channel.NewRawChannel(pivot, w3d.ChannelX, 1, 0, xs)
	require.NoError(t, err)
	c, err := NewRawClip("SKEL", name, 3, WithNumFrames(len(xs)), WithMotionChannels(x))
	require.NoError(t, err)
	return c
}

func TestMorphClip(t *testing.T) {
	poseA := mustPoseClip(t, "POSEA", 1, []float32{0, 5, 20})
	poseB := mustPoseClip(t, "POSEB", 2, []float32{100, 200})

	c, err := NewMorphClip("SKEL", "TALK", 3,
		WithNumFrames(21),
		WithMorphChannel(poseA, []w3d.MorphKey{{MorphFrame: 0, PoseFrame: 0}, {MorphFrame: 10, PoseFrame: 2}, {MorphFrame: 20, PoseFrame: 1}}),
		WithMorphChannel(poseB, []w3d.MorphKey{{MorphFrame: 0, PoseFrame: 1}}),
	)
	require.NoError(t, err)

	assert.Equal(t, VariantMorph, c.Variant())
	assert.True(t, c.IsNodeMotionPresent(1))
	assert.True(t, c.IsNodeMotionPresent(2))
	assert.False(t, c.IsNodeMotionPresent(0))

	assert.InDelta(t, 0, c.Translation(1, 0)[0], 1e-5)
	assert.InDelta(t, 10, c.Translation(1, 5)[0], 1e-5)
	assert.InDelta(t, 20, c.Translation(1, 10)[0], 1e-5)
	assert.InDelta(t, 12.5, c.Translation(1, 15)[0], 1e-5)
	assert.InDelta(t, 5, c.Translation(1, 30)[0], 1e-5)
	assert.InDelta(t, 10, c.Translation(1, 5)[0], 1e-5, "backward lookup")
	assert.InDelta(t, 200, c.Translation(2, 7)[0], 1e-5)
	assert.Equal(t, mgl32.Vec3{}, c.Translation(0, 3), "pivot without a channel")
	assert.Equal(t, mgl32.QuatIdent(), c.Orientation(0, 3))
	assert.True(t, c.Visibility(1, 3))

	loaded, err := Load(saveAndOpen(t, c), threePivots, NewResolverMap(poseA, poseB))
	require.NoError(t, err)
	assert.Equal(t, "SKEL.TALK", loaded.Name())
	for _, f := range []float32{0, 3, 10, 12, 20} {
		assert.Equal(t, c.Translation(1, f), loaded.Translation(1, f), "frame %v", f)
		assert.Equal(t, c.Translation(2, f), loaded.Translation(2, f), "frame %v", f)
	}

	_, err = Load(saveAndOpen(t, c), threePivots, NewResolverMap(poseA))
	assert.ErrorIs(t, err, ErrPoseNotFound)
}

func TestMorphClipPivotOwnership(t *testing.T) {
	first := mustPoseClip(t, "FIRST", 1, []float32{1})
	second := mustPoseClip(t, "SECOND", 1, []float32{2})
	keys := []w3d.MorphKey{{MorphFrame: 0, PoseFrame: 0}}

	c, err := NewMorphClip("SKEL", "LAST", 3, WithMorphChannel(first, keys), WithMorphChannel(second, keys))
	require.NoError(t, err)
	assert.Equal(t, float32(2), c.Translation(1, 0)[0], "last channel animating a pivot owns it")

	c, err = NewMorphClip("SKEL", "TABLE", 3,
		WithMorphChannel(first, keys), WithMorphChannel(second, keys), WithPivotChannels([]int{-1, 0, -1}))
	require.NoError(t, err)
	assert.Equal(t, float32(1), c.Translation(1, 0)[0])

	_, err = NewMorphClip("SKEL", "BAD", 3, WithMorphChannel(first, []w3d.MorphKey{{MorphFrame: 3}, {MorphFrame: 3}}))
	assert.ErrorIs(t, err, errUnsortedMorphKeys)
}
