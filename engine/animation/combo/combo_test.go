package combo

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyClip(t *testing.T, name string, numPivots int) clip.Clip {
	t.Helper()
	c, err := clip.NewRawClip("SKEL", name, numPivots)
	require.NoError(t, err)
	return c
}

func TestComboEntries(t *testing.T) {
	c := NewCombo()
	a := emptyClip(t, "A", 4)
	b := emptyClip(t, "B", 3)

	assert.Equal(t, 0, c.NumPivots())
	assert.Equal(t, 0, c.Add(a, 1, 0.5, nil, OwnershipShared))
	assert.Equal(t, 1, c.Add(b, 2, 0.5, nil, OwnershipExclusive))
	assert.Equal(t, 2, c.NumAnims())
	assert.Equal(t, 3, c.NumPivots())

	c.SetFrame(1, 7)
	c.SetWeight(0, 0.25)
	assert.Equal(t, float32(7), c.Frame(1))
	assert.Equal(t, float32(0.25), c.Weight(0))
	e, ok := c.Entry(1)
	require.True(t, ok)
	assert.Equal(t, OwnershipExclusive, e.Ownership)

	assert.Nil(t, c.Clip(5))
	assert.Zero(t, c.Weight(-1))
	_, ok = c.Entry(9)
	assert.False(t, ok)

	c.Remove(0)
	assert.Equal(t, 1, c.NumAnims())
	assert.Equal(t, b, c.Clip(0))
	c.Clear()
	assert.Equal(t, 0, c.NumAnims())
}

func TestNormalizeClipWeights(t *testing.T) {
	c := NewCombo()
	c.Add(emptyClip(t, "A", 3), 0, 2, nil, OwnershipShared)
	c.Add(emptyClip(t, "B", 3), 0, 6, nil, OwnershipShared)
	c.Add(nil, 0, 100, nil, OwnershipShared)

	require.True(t, c.NormalizeWeights())
	assert.InDelta(t, 0.25, c.Weight(0), 1e-6)
	assert.InDelta(t, 0.75, c.Weight(1), 1e-6)
	assert.Equal(t, float32(100), c.Weight(2), "entries without a clip are ignored")
	assert.InDelta(t, 1, c.Weight(0)+c.Weight(1), weightEpsilon)
}

func TestNormalizePivotMaps(t *testing.T) {
	c := NewCombo()
	upper := NewPivotMap(3, 1)
	upper.SetWeight(2, 0.5)
	lower := NewPivotMap(4, 3)
	lower.SetWeight(0, 0)

	c.Add(emptyClip(t, "A", 3), 0, 1, upper, OwnershipShared)
	c.Add(emptyClip(t, "B", 4), 0, 1, lower, OwnershipShared)
	c.Add(emptyClip(t, "C", 4), 0, 1, lower, OwnershipShared)

	require.True(t, c.NormalizeWeights())
	for p := 0; p < c.NumPivots(); p++ {
		var total float32
		for i := 0; i < c.NumAnims(); i++ {
			total += c.Weight(i) * c.PivotMap(i).Weight(p)
		}
		assert.InDelta(t, 1, total, weightEpsilon, "pivot %d", p)
	}
	assert.Equal(t, float32(1), upper.Weight(0), "pivot 0 already sums to 1")
	assert.Equal(t, float32(3), lower.Weight(3), "pivots past the shortest clip are untouched")
}

func TestNormalizeMixedFails(t *testing.T) {
	c := NewCombo()
	m := NewPivotMap(3, 0.3)
	c.Add(emptyClip(t, "A", 3), 0, 0.7, m, OwnershipShared)
	c.Add(emptyClip(t, "B", 3), 0, 0.9, nil, OwnershipShared)

	assert.False(t, c.NormalizeWeights())
	assert.Equal(t, float32(0.7), c.Weight(0))
	assert.Equal(t, float32(0.9), c.Weight(1))
	for p := 0; p < 3; p++ {
		assert.Equal(t, float32(0.3), m.Weight(p))
	}
}

type fakeTree struct {
	names   []string
	parents []int
}

func (f fakeTree) NumPivots() int { return len(f.names) }

func (f fakeTree) BoneIndex(name string) int {
	for i, n := range f.names {
		if n == name {
			return i
		}
	}
	return 0
}

func (f fakeTree) ParentIndex(pivot int) int { return f.parents[pivot] }

func TestNewPivotMapFromTree(t *testing.T) {
	tree := fakeTree{
		names:   []string{"ROOT", "PELVIS", "SPINE", "HEAD", "LEG"},
		parents: []int{0, 0, 1, 2, 1},
	}

	m := NewPivotMapFromTree(tree, "SPINE", 0.8)
	assert.Equal(t, []float32{0, 0, 0.8, 0.8, 0}, m.weights)

	all := NewPivotMapFromTree(tree, "MISSING", 1)
	assert.Equal(t, []float32{1, 1, 1, 1, 1}, all.weights)

	clone := m.Clone()
	clone.SetWeight(2, 0)
	assert.Equal(t, float32(0.8), m.Weight(2))
	assert.Zero(t, m.Weight(10))
}
