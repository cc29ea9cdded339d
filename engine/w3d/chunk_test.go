package w3d

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewChunkWriter(&buf)

	w.BeginChunk(ChunkHierarchy)
	require.NoError(t, WriteChunk(w, ChunkHierarchyHeader, &HierarchyHeader{
		Version:   HierarchyVersion,
		Name:      MakeName("SKEL"),
		NumPivots: 2,
	}))
	require.NoError(t, WriteChunk(w, ChunkPivots, []PivotRecord{
		{Name: MakeName("ROOT"), ParentIdx: NoParent, Rotation: [4]float32{0, 0, 0, 1}},
		{Name: MakeName("CHILD"), ParentIdx: 0, Translation: [3]float32{1, 2, 3}, Rotation: [4]float32{0, 0, 0, 1}},
	}))
	require.NoError(t, w.EndChunk())
	require.NoError(t, WriteChunk(w, ChunkMorphAnimPoseName, []byte("POSE.ANIM\x00")))

	r := NewChunkReader(bytes.NewReader(buf.Bytes()))

	ok, err := r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChunkHierarchy, r.ID())
	assert.True(t, r.ContainsChunks())

	ok, err = r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChunkHierarchyHeader, r.ID())
	var header HierarchyHeader
	require.NoError(t, r.ReadStruct(&header))
	assert.Equal(t, "SKEL", header.Name.String())
	assert.Equal(t, uint32(2), header.NumPivots)
	assert.Zero(t, r.Remaining())
	require.NoError(t, r.CloseChunk())

	ok, err = r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChunkPivots, r.ID())
	assert.False(t, r.ContainsChunks())
	pivots := make([]PivotRecord, 2)
	require.NoError(t, r.ReadStruct(pivots))
	assert.Equal(t, "CHILD", pivots[1].Name.String())
	assert.Equal(t, [3]float32{1, 2, 3}, pivots[1].Translation)
	assert.Equal(t, NoParent, pivots[0].ParentIdx)
	require.NoError(t, r.CloseChunk())

	ok, err = r.OpenChunk()
	require.NoError(t, err)
	assert.False(t, ok, "hierarchy has no more sub-chunks")
	require.NoError(t, r.CloseChunk())

	ok, err = r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	name, err := ReadString(r)
	require.NoError(t, err)
	assert.Equal(t, "POSE.ANIM", name)
	require.NoError(t, r.CloseChunk())

	ok, err = r.OpenChunk()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChunkReaderSkipsUnreadPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewChunkWriter(&buf)
	require.NoError(t, WriteChunk(w, 0x10, []uint32{1, 2, 3, 4}))
	require.NoError(t, WriteChunk(w, 0x11, uint32(99)))

	r := NewChunkReader(bytes.NewReader(buf.Bytes()))
	ok, err := r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	vals, err := ReadUint32s(r, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, vals)
	require.NoError(t, r.CloseChunk())

	ok, err = r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0x11), r.ID())
	vals, err = ReadUint32s(r, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{99}, vals)
}

func TestChunkReaderErrors(t *testing.T) {
	t.Run("overrun", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewChunkWriter(&buf)
		require.NoError(t, WriteChunk(w, 0x20, uint16(7)))

		r := NewChunkReader(bytes.NewReader(buf.Bytes()))
		ok, err := r.OpenChunk()
		require.NoError(t, err)
		require.True(t, ok)
		var v uint32
		assert.ErrorIs(t, r.ReadStruct(&v), ErrChunkOverrun)
	})

	t.Run("truncated header", func(t *testing.T) {
		r := NewChunkReader(bytes.NewReader([]byte{1, 2, 3}))
		ok, err := r.OpenChunk()
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrTruncatedChunk)
	})

	t.Run("truncated payload", func(t *testing.T) {
		data := []byte{0x30, 0, 0, 0, 16, 0, 0, 0, 1, 2}
		r := NewChunkReader(bytes.NewReader(data))
		ok, err := r.OpenChunk()
		require.NoError(t, err)
		require.True(t, ok)
		_, err = ReadRest(r)
		assert.ErrorIs(t, err, ErrTruncatedChunk)
	})

	t.Run("close without open", func(t *testing.T) {
		r := NewChunkReader(bytes.NewReader(nil))
		assert.ErrorIs(t, r.CloseChunk(), ErrNoOpenChunk)
	})
}

func TestMakeNameTruncates(t *testing.T) {
	n := MakeName("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	assert.Equal(t, "ABCDEFGHIJKLMNO", n.String())
	assert.Equal(t, byte(0), n[NameLen-1])
}

func TestRawChunkReopens(t *testing.T) {
	var buf bytes.Buffer
	w := NewChunkWriter(&buf)
	w.BeginChunk(ChunkAnimation)
	require.NoError(t, WriteChunk(w, ChunkAnimationHeader, &AnimHeader{Version: AnimationVersion, NumFrames: 4}))
	require.NoError(t, w.EndChunk())

	r := NewChunkReader(bytes.NewReader(buf.Bytes()))
	ok, err := r.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	raw, err := ReadRawChunk(r)
	require.NoError(t, err)
	require.NoError(t, r.CloseChunk())
	assert.Equal(t, ChunkAnimation, raw.ID)
	assert.True(t, raw.Container)

	reopened, err := raw.Open()
	require.NoError(t, err)
	assert.Equal(t, ChunkAnimation, reopened.ID())
	ok, err = reopened.OpenChunk()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChunkAnimationHeader, reopened.ID())
	var header AnimHeader
	require.NoError(t, reopened.ReadStruct(&header))
	assert.Equal(t, uint32(4), header.NumFrames)
}
