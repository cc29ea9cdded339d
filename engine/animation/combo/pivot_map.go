package combo

// PivotMap holds one blend weight per pivot. A map may be shared by several combo entries; changes are
// seen by all of them.
type PivotMap struct {
	weights []float32
}

// Hierarchy is the part of a pivot hierarchy needed to build a PivotMap from a bone subtree.
type Hierarchy interface {
	// NumPivots returns the number of pivots.
	NumPivots() int
	// BoneIndex returns the pivot index of a bone name, 0 when unknown.
	BoneIndex(name string) int
	// ParentIndex returns the parent pivot index, 0 for the root.
	ParentIndex(pivot int) int
}

// NewPivotMap creates a map with every pivot set to weight.
//
// Parameters:
//   - numPivots: the number of pivots
//   - weight: the initial weight of every pivot
//
// Returns:
//   - *PivotMap: the map
func NewPivotMap(numPivots int, weight float32) *PivotMap {
	m := &PivotMap{weights: make([]float32, numPivots)}
	for i := range m.weights {
		m.weights[i] = weight
	}
	return m
}

// NewPivotMapFromTree creates a map that gives weight to the named bone and every pivot below it and zero
// to all other pivots. An unknown bone name resolves to the root, so the whole tree is weighted.
//
// Parameters:
//   - tree: the hierarchy
//   - boneName: the root of the weighted subtree
//   - weight: the weight of the subtree pivots
//
// Returns:
//   - *PivotMap: the map
func NewPivotMapFromTree(tree Hierarchy, boneName string, weight float32) *PivotMap {
	n := tree.NumPivots()
	m := NewPivotMap(n, 0)
	bone := tree.BoneIndex(boneName)
	for p := 0; p < n; p++ {
		q := p
		for steps := 0; steps <= n; steps++ {
			if q == bone {
				m.weights[p] = weight
				break
			}
			if q == 0 {
				break
			}
			q = tree.ParentIndex(q)
		}
	}
	return m
}

// Len returns the number of pivots in the map.
func (m *PivotMap) Len() int {
	return len(m.weights)
}

// Weight returns the weight of a pivot, 0 outside the map.
func (m *PivotMap) Weight(pivot int) float32 {
	if pivot < 0 || pivot >= len(m.weights) {
		return 0
	}
	return m.weights[pivot]
}

// SetWeight sets the weight of a pivot. Pivots outside the map are ignored.
func (m *PivotMap) SetWeight(pivot int, weight float32) {
	if pivot >= 0 && pivot < len(m.weights) {
		m.weights[pivot] = weight
	}
}

// Clone returns an independent copy of the map.
func (m *PivotMap) Clone() *PivotMap {
	return &PivotMap{weights: append([]float32(nil), m.weights...)}
}
