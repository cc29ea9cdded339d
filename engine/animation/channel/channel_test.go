package channel

import (
	"bytes"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reload saves ch and reads it back through the matching loader.
func reload(t *testing.T, save func(w3d.ChunkWriter) error, load func(w3d.ChunkReader) error) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, save(w3d.NewChunkWriter(&buf)))
	r := w3d.NewChunkReader(bytes.NewReader(buf.Bytes()))
	ok, err := r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, load(r))
	require.NoError(t, r.CloseChunk())
}

func sineSamples(frames, vectorLen int) []float32 {
	out := make([]float32, frames*vectorLen)
	for f := 0; f < frames; f++ {
		for vi := 0; vi < vectorLen; vi++ {
			out[f*vectorLen+vi] = float32(math.Sin(float64(f)*0.2+float64(vi))) * 3
		}
	}
	return out
}

func TestRawChannelOutOfRangeIsIdentity(t *testing.T) {
	x, err := NewRawChannel(1, w3d.ChannelX, 1, 2, []float32{5, 6, 7})
	require.NoError(t, err)
	q, err := NewRawChannel(1, w3d.ChannelQ, 4, 2, []float32{0, 1, 0, 0, 0, 0, 1, 0})
	require.NoError(t, err)

	out := make([]float32, 4)
	for _, frame := range []float32{-1, 0, 1, 5, 100} {
		x.Vector(frame, out)
		assert.Equal(t, float32(0), out[0], "frame %v", frame)
		assert.Equal(t, mgl32.QuatIdent(), q.Quat(frame), "frame %v", frame)
	}

	x.Vector(3, out)
	assert.Equal(t, float32(6), out[0])
	assert.Equal(t, mgl32.Quat{W: 0, V: mgl32.Vec3{0, 0, 1}}, q.Quat(3))
}

func TestRawChannelSaveLoad(t *testing.T) {
	ch, err := NewRawChannel(3, w3d.ChannelZ, 1, 0, []float32{1, 2, 3, 4})
	require.NoError(t, err)

	var loaded Motion
	reload(t, ch.Save, func(r w3d.ChunkReader) error {
		var err error
		loaded, err = LoadRawChannel(r, 1)
		return err
	})
	assert.Equal(t, 4, loaded.Pivot())
	assert.Equal(t, w3d.ChannelZ, loaded.Type())
	assert.Equal(t, EncodingRaw, loaded.Encoding())
	out := make([]float32, 1)
	loaded.Vector(2, out)
	assert.Equal(t, float32(3), out[0])
}

func TestNewChannelValidation(t *testing.T) {
	_, err := NewRawChannel(0, w3d.ChannelX, 5, 0, []float32{1})
	assert.ErrorIs(t, err, ErrInvalidVectorLen)
	_, err = NewRawChannel(0, w3d.ChannelX, 1, 0, nil)
	assert.ErrorIs(t, err, ErrEmptyChannel)
	_, err = NewTimeCodedChannel(0, w3d.ChannelX, 1, []TimeCodedKey{{Frame: 2, Value: []float32{0}}, {Frame: 2, Value: []float32{1}}})
	assert.ErrorIs(t, err, ErrUnsortedKeys)
	_, err = NewAdaptiveDeltaChannel(0, w3d.ChannelX, 0, []float32{1})
	assert.ErrorIs(t, err, ErrInvalidVectorLen)
	_, err = NewTimeCodedBitChannel(0, true, nil)
	assert.ErrorIs(t, err, ErrEmptyChannel)
}

func TestTimeCodedChannelInterpolation(t *testing.T) {
	ch, err := NewTimeCodedChannel(0, w3d.ChannelX, 1, []TimeCodedKey{
		{Frame: 0, Value: []float32{0}},
		{Frame: 10, Value: []float32{10}},
		{Frame: 20, Step: true, Value: []float32{100}},
		{Frame: 30, Value: []float32{200}},
	})
	require.NoError(t, err)

	out := make([]float32, 1)
	tests := []struct {
		frame float32
		want  float32
	}{
		{0, 0},
		{5, 5},
		{10, 10},
		{15, 10},
		{19.9, 10},
		{20, 100},
		{25, 150},
		{30, 200},
		{45, 200},
		{-3, 0},
	}
	for _, tt := range tests {
		ch.Vector(tt.frame, out)
		assert.InDelta(t, tt.want, out[0], 1e-4, "frame %v", tt.frame)
	}
}

func TestTimeCodedChannelQuat(t *testing.T) {
	a := mgl32.QuatIdent()
	b := mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	ch, err := NewTimeCodedChannel(2, w3d.ChannelQ, 4, []TimeCodedKey{
		{Frame: 0, Value: []float32{a.V[0], a.V[1], a.V[2], a.W}},
		{Frame: 4, Value: []float32{b.V[0], b.V[1], b.V[2], b.W}},
	})
	require.NoError(t, err)

	assert.Equal(t, a, ch.Quat(0))
	assert.Equal(t, b, ch.Quat(4))
	mid := ch.Quat(2)
	want := mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	assert.True(t, mid.Normalize().ApproxEqualThreshold(want, 1e-2), "got %v want %v", mid, want)
}

func TestTimeCodedCacheMatchesBinarySearch(t *testing.T) {
	keys := make([]TimeCodedKey, 0, 40)
	for i := 0; i < 40; i++ {
		keys = append(keys, TimeCodedKey{
			Frame: uint32(i*3 + i%2),
			Step:  i%7 == 3,
			Value: []float32{float32(math.Cos(float64(i))) * 10},
		})
	}
	m, err := NewTimeCodedChannel(0, w3d.ChannelY, 1, keys)
	require.NoError(t, err)
	cached := m.(*timeCodedChannelImpl)

	out := make([]float32, 1)
	for frame := float32(0); frame < 130; frame += 0.37 {
		cached.Vector(frame, out)

		idx := cached.binarySearchIndex(uint32(frame))
		i, next, ratio, hold := cached.bracket(idx, frame)
		var a, b [maxVectorLen]float32
		cached.value(i, a[:])
		want := a[0]
		if !hold {
			cached.value(next, b[:])
			want = a[0] + (b[0]-a[0])*ratio
		}
		require.Equal(t, want, out[0], "frame %v", frame)
	}
}

func TestTimeCodedChannelSaveLoad(t *testing.T) {
	ch, err := NewTimeCodedChannel(5, w3d.ChannelX, 1, []TimeCodedKey{
		{Frame: 0, Value: []float32{1}},
		{Frame: 8, Step: true, Value: []float32{9}},
	})
	require.NoError(t, err)

	var loaded Motion
	reload(t, ch.Save, func(r w3d.ChunkReader) error {
		var err error
		loaded, err = LoadTimeCodedChannel(r)
		return err
	})
	out := make([]float32, 1)
	loaded.Vector(7, out)
	assert.Equal(t, float32(1), out[0])
	loaded.Vector(8, out)
	assert.Equal(t, float32(9), out[0])
	assert.Equal(t, 5, loaded.Pivot())
}

func TestFilterTable(t *testing.T) {
	assert.InDelta(t, 1e-8, filterTable[0], 1e-15)
	assert.InDelta(t, 1e7, filterTable[15], 1)
	assert.Equal(t, float32(1), filterTable[16])
	for i := 17; i < filterTableSize; i++ {
		assert.Less(t, filterTable[i], filterTable[i-1])
		assert.Greater(t, filterTable[i], float32(0))
	}
}

func TestAdaptiveDeltaWithinTolerance(t *testing.T) {
	const frames = 50
	values := sineSamples(frames, 1)
	ch, err := NewAdaptiveDeltaChannel(0, w3d.ChannelX, 1, values)
	require.NoError(t, err)

	var maxDelta float64
	for f := 1; f < frames; f++ {
		maxDelta = math.Max(maxDelta, math.Abs(float64(values[f]-values[f-1])))
	}
	out := make([]float32, 1)
	for f := 0; f < frames; f++ {
		ch.Vector(float32(f), out)
		assert.InDelta(t, values[f], out[0], maxDelta/7, "frame %d", f)
	}
	ch.Vector(0, out)
	assert.Equal(t, values[0], out[0], "anchor is stored exactly")
}

func TestAdaptiveDeltaAccessPatternDeterminism(t *testing.T) {
	const frames = 70
	values := sineSamples(frames, 4)
	m, err := NewAdaptiveDeltaChannel(1, w3d.ChannelQ, 4, values)
	require.NoError(t, err)
	data := m.(*adaptiveDeltaChannelImpl).data
	scale := m.(*adaptiveDeltaChannelImpl).scale

	fresh := func() *adaptiveDeltaChannelImpl {
		c, err := newAdaptiveDeltaChannel(1, w3d.ChannelQ, 4, frames, scale, data)
		require.NoError(t, err)
		return c
	}

	cold := make([][]float32, frames)
	for f := 0; f < frames; f++ {
		c := fresh()
		cold[f] = append([]float32(nil), c.frame(f)...)
	}

	sequential := fresh()
	for f := 0; f < frames; f++ {
		require.Equal(t, cold[f], sequential.frame(f), "sequential frame %d", f)
	}

	jumping := fresh()
	for _, f := range []int{5, 6, 8, 30, 31, 33, 60, 2, 40, 69, 0, 69} {
		require.Equal(t, cold[f], jumping.frame(f), "jump to frame %d", f)
	}

	backward := fresh()
	for f := frames - 1; f >= 0; f-- {
		require.Equal(t, cold[f], backward.frame(f), "backward frame %d", f)
	}
}

func TestAdaptiveDeltaCachePolicy(t *testing.T) {
	values := sineSamples(40, 1)
	m, err := NewAdaptiveDeltaChannel(0, w3d.ChannelX, 1, values)
	require.NoError(t, err)
	c := m.(*adaptiveDeltaChannelImpl)

	c.frame(10)
	assert.Equal(t, 1, c.decodes)
	c.frame(10)
	c.frame(11)
	c.frame(12)
	c.frame(20)
	assert.Equal(t, 1, c.decodes, "forward access continues from the cache")
	c.frame(3)
	assert.Equal(t, 2, c.decodes, "backward access restarts from the anchor")
	assert.Equal(t, c.frame(39), c.frame(100), "frames past the end clamp to the last frame")
}

func TestAdaptiveDeltaConstantAndSaveLoad(t *testing.T) {
	values := []float32{2, 2, 2, 2, 2}
	ch, err := NewAdaptiveDeltaChannel(7, w3d.ChannelY, 1, values)
	require.NoError(t, err)

	var loaded Motion
	reload(t, ch.Save, func(r w3d.ChunkReader) error {
		var err error
		loaded, err = LoadAdaptiveDeltaChannel(r)
		return err
	})
	assert.Equal(t, 7, loaded.Pivot())
	assert.Equal(t, EncodingAdaptiveDelta, loaded.Encoding())
	out := make([]float32, 1)
	for _, f := range []float32{0, 1.5, 4, 9} {
		loaded.Vector(f, out)
		assert.Equal(t, float32(2), out[0])
	}
}

func TestAdaptiveDeltaRejectsShortPayload(t *testing.T) {
	_, err := newAdaptiveDeltaChannel(0, w3d.ChannelX, 1, 20, 1, make([]byte, 8))
	assert.ErrorIs(t, err, w3d.ErrChunkSizeMismatch)
}

func TestBitChannel(t *testing.T) {
	values := []bool{true, false, false, true, true, false, true, false, true}
	ch, err := NewBitChannel(2, 3, true, values)
	require.NoError(t, err)

	assert.True(t, ch.Bit(0), "before range uses the default")
	assert.True(t, ch.Bit(100), "after range uses the default")
	for i, want := range values {
		assert.Equal(t, want, ch.Bit(3+i), "frame %d", 3+i)
	}

	var loaded Bit
	reload(t, ch.Save, func(r w3d.ChunkReader) error {
		var err error
		loaded, err = LoadBitChannel(r, 0)
		return err
	})
	for i, want := range values {
		assert.Equal(t, want, loaded.Bit(3+i))
	}
	assert.True(t, loaded.Bit(1))
}

func TestTimeCodedBitChannel(t *testing.T) {
	ch, err := NewTimeCodedBitChannel(1, true, []TimeCodedBitKey{
		{Frame: 0, Value: true},
		{Frame: 5, Value: false},
		{Frame: 9, Value: true},
	})
	require.NoError(t, err)

	want := map[int]bool{0: true, 4: true, 5: false, 8: false, 9: true, 50: true, 6: false, 2: true, -1: true}
	for _, f := range []int{0, 4, 5, 8, 9, 50, 6, 2, -1} {
		assert.Equal(t, want[f], ch.Bit(f), "frame %d", f)
	}

	var loaded Bit
	reload(t, ch.Save, func(r w3d.ChunkReader) error {
		var err error
		loaded, err = LoadTimeCodedBitChannel(r)
		return err
	})
	assert.False(t, loaded.Bit(6))
	assert.Equal(t, EncodingTimeCoded, loaded.Encoding())
}
