package loader

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/channel"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saver interface {
	Save(w w3d.ChunkWriter) error
}

// unknownChunk stands in for mesh data the loader must skip.
type unknownChunk struct{}

func (unknownChunk) Save(w w3d.ChunkWriter) error {
	return w3d.WriteChunk(w, 0x00000000, []byte{1, 2, 3, 4})
}

func encode(t *testing.T, assets ...saver) []byte {
	t.Helper()
	var buf bytes.Buffer
	cw := w3d.NewChunkWriter(&buf)
	for _, a := range assets {
		require.NoError(t, a.Save(cw))
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, assets ...saver) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, encode(t, assets...), 0o644))
}

func skelTree(t *testing.T) htree.HTree {
	t.Helper()
	tree, err := htree.NewHTree(
		htree.WithName("SKEL"),
		htree.WithPivot("ROOT", -1, mgl32.Vec3{}, mgl32.QuatIdent()),
		htree.WithPivot("SPINE", 0, mgl32.Vec3{0, 1, 0}, mgl32.QuatIdent()),
		htree.WithPivot("HEAD", 1, mgl32.Vec3{0, 1, 0}, mgl32.QuatIdent()),
	)
	require.NoError(t, err)
	return tree
}

func slideClip(t *testing.T, name string, xs []float32) clip.Clip {
	t.Helper()
	x, err := channel.NewRawChannel(1, w3d.ChannelX, 1, 0, xs)
	require.NoError(t, err)
	c, err := clip.NewRawClip("SKEL", name, 3, clip.WithNumFrames(len(xs)), clip.WithFrameRate(30), clip.WithMotionChannels(x))
	require.NoError(t, err)
	return c
}

func talkClip(t *testing.T, pose clip.Clip) clip.Clip {
	t.Helper()
	c, err := clip.NewMorphClip("SKEL", "TALK", 3,
		clip.WithNumFrames(11),
		clip.WithMorphChannel(pose, []w3d.MorphKey{{MorphFrame: 0, PoseFrame: 0}, {MorphFrame: 10, PoseFrame: 1}}),
	)
	require.NoError(t, err)
	return c
}

func newTestLoader(t *testing.T, options ...LoaderBuilderOption) Loader {
	t.Helper()
	l := NewLoader(BackendTypeW3D, options...)
	t.Cleanup(l.Close)
	return l
}

func TestLoadReaderDecodesEveryAsset(t *testing.T) {
	pose := slideClip(t, "POSE", []float32{0, 8})
	data := encode(t, unknownChunk{}, talkClip(t, pose), skelTree(t), slideClip(t, "WALK", []float32{0, 1, 2}), pose)

	l := newTestLoader(t)
	require.NoError(t, l.LoadReader("mem", bytes.NewReader(data)))

	tree, ok := l.HTree("skel")
	require.True(t, ok, "lookup ignores case")
	assert.Equal(t, 3, tree.NumPivots())

	n, ok := l.PivotCount("SKEL")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	walk, ok := l.Clip("skel.walk")
	require.True(t, ok)
	assert.Equal(t, clip.VariantRaw, walk.Variant())
	assert.InDelta(t, 1.5, walk.Translation(1, 1.5)[0], 1e-5)

	talk, ok := l.Clip("SKEL.TALK")
	require.True(t, ok, "morph clips resolve poses stored later in the stream")
	assert.Equal(t, clip.VariantMorph, talk.Variant())
	assert.InDelta(t, 4, talk.Translation(1, 5)[0], 1e-5)

	assert.Len(t, l.Clips(), 3)
	assert.Contains(t, l.Clips(), "SKEL.WALK")
	assert.Len(t, l.HTrees(), 1)
}

func TestLoadReaderSkipsDuplicates(t *testing.T) {
	data := encode(t, skelTree(t), slideClip(t, "WALK", []float32{0, 1}))
	l := newTestLoader(t)
	require.NoError(t, l.LoadReader("first", bytes.NewReader(data)))
	first, _ := l.Clip("SKEL.WALK")
	firstTree, _ := l.HTree("SKEL")

	require.NoError(t, l.LoadReader("second", bytes.NewReader(data)))
	second, _ := l.Clip("SKEL.WALK")
	secondTree, _ := l.HTree("SKEL")
	assert.Same(t, first, second)
	assert.Same(t, firstTree, secondTree)

	assert.ErrorIs(t, l.AddClip(slideClip(t, "walk", []float32{0})), ErrDuplicateAsset)
	assert.ErrorIs(t, l.AddHTree(skelTree(t)), ErrDuplicateAsset)
}

func TestLoadReaderErrors(t *testing.T) {
	l := newTestLoader(t)

	err := l.LoadReader("orphan", bytes.NewReader(encode(t, slideClip(t, "WALK", []float32{0}))))
	assert.ErrorIs(t, err, clip.ErrHierarchyNotFound)

	data := encode(t, skelTree(t))
	err = l.LoadReader("truncated", bytes.NewReader(data[:len(data)-3]))
	assert.ErrorIs(t, err, w3d.ErrTruncatedChunk)
	_, ok := l.HTree("SKEL")
	assert.False(t, ok)
}

func TestBuilderOptionsPopulateCaches(t *testing.T) {
	tree := skelTree(t)
	walk := slideClip(t, "WALK", []float32{0})
	l := newTestLoader(t, WithHTree(tree), WithClip(walk), WithWorkerCount(0))

	got, ok := l.HTree("SKEL")
	assert.True(t, ok)
	assert.Same(t, tree, got)
	_, ok = l.Clip("SKEL.WALK")
	assert.True(t, ok)
	assert.Equal(t, 1, l.(*loader).workerCount)
}

func TestMissingRegistry(t *testing.T) {
	l := newTestLoader(t)

	_, ok := l.Clip("SKEL.RUN")
	assert.False(t, ok)
	assert.False(t, l.IsMissing("SKEL.RUN"), "only on-demand misses are registered")

	l.RegisterMissing("SKEL.RUN")
	assert.True(t, l.IsMissing("skel.run"))
	l.ResetMissing()
	assert.False(t, l.IsMissing("SKEL.RUN"))

	l.RegisterMissing("SKEL.WALK")
	require.NoError(t, l.AddHTree(skelTree(t)))
	require.NoError(t, l.AddClip(slideClip(t, "WALK", []float32{0})))
	assert.False(t, l.IsMissing("SKEL.WALK"), "adding a clip forgets it as missing")
}

func TestFreeAll(t *testing.T) {
	l := newTestLoader(t)
	require.NoError(t, l.LoadReader("mem", bytes.NewReader(encode(t, skelTree(t), slideClip(t, "WALK", []float32{0})))))
	held, _ := l.Clip("SKEL.WALK")

	l.FreeAllClips()
	_, ok := l.Clip("SKEL.WALK")
	assert.False(t, ok)
	assert.Equal(t, "SKEL.WALK", held.Name(), "clips already handed out stay usable")
	_, ok = l.HTree("SKEL")
	assert.True(t, ok)

	l.FreeAllHTrees()
	assert.Empty(t, l.HTrees())
}

func TestOnDemandLoading(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "anims")
	require.NoError(t, os.Mkdir(sub, 0o755))

	pose := slideClip(t, "POSE", []float32{0, 8})
	writeFile(t, filepath.Join(sub, "SKEL.w3d"), skelTree(t))
	writeFile(t, filepath.Join(dir, "WALK.w3d"), slideClip(t, "WALK", []float32{0, 1, 2}))
	writeFile(t, filepath.Join(sub, "POSE.w3d"), pose)
	writeFile(t, filepath.Join(sub, "TALK.w3d"), talkClip(t, pose))

	l := newTestLoader(t, WithAssetDir(sub))

	walk, ok := l.Clip("SKEL.WALK")
	require.True(t, ok, "found in the parent directory")
	assert.Equal(t, 3, walk.NumFrames())
	_, ok = l.HTree("SKEL")
	assert.True(t, ok, "hierarchy was loaded to resolve the clip")

	talk, ok := l.Clip("SKEL.TALK")
	require.True(t, ok, "morph pose loaded on demand while decoding")
	assert.InDelta(t, 8, talk.Translation(1, 10)[0], 1e-5)
	_, ok = l.Clip("SKEL.POSE")
	assert.True(t, ok)

	_, ok = l.Clip("SKEL.RUN")
	assert.False(t, ok)
	assert.True(t, l.IsMissing("SKEL.RUN"))

	_, ok = l.Clip("NODOT")
	assert.False(t, ok)
	_, ok = l.HTree("OTHER")
	assert.False(t, ok)
}

func TestLoadFilesInParallel(t *testing.T) {
	dir := t.TempDir()
	pose := slideClip(t, "POSE", []float32{0, 8})
	paths := []string{
		filepath.Join(dir, "talk.w3d"),
		filepath.Join(dir, "walk.w3d"),
		filepath.Join(dir, "skel.w3d"),
		filepath.Join(dir, "pose.w3d"),
	}
	writeFile(t, paths[0], talkClip(t, pose))
	writeFile(t, paths[1], slideClip(t, "WALK", []float32{0, 1}), slideClip(t, "RUN", []float32{0, 2}))
	writeFile(t, paths[2], skelTree(t))
	writeFile(t, paths[3], pose)

	l := newTestLoader(t, WithWorkerCount(4))
	err := l.LoadFiles(append(paths, filepath.Join(dir, "absent.w3d"))...)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	assert.Len(t, l.HTrees(), 1)
	assert.Len(t, l.Clips(), 4, "files that load are cached despite the failure")
	talk, ok := l.Clip("SKEL.TALK")
	require.True(t, ok)
	assert.InDelta(t, 8, talk.Translation(1, 10)[0], 1e-5)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skel.w3d")
	writeFile(t, path, skelTree(t), slideClip(t, "WALK", []float32{0}))

	l := newTestLoader(t)
	require.NoError(t, l.LoadFile(path))
	_, ok := l.Clip("SKEL.WALK")
	assert.True(t, ok)

	assert.ErrorIs(t, l.LoadFile(filepath.Join(t.TempDir(), "none.w3d")), fs.ErrNotExist)
}
