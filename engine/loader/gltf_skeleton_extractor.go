package loader

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfRestPose is the local rest transform of a joint. Scale is not representable by a pivot and is dropped.
type gltfRestPose struct {
	translation mgl32.Vec3
	rotation    mgl32.Quat
}

// gltfSkeleton is a skin converted into a hierarchy. Pivot 0 is a synthesized root; joints follow in
// topological order.
type gltfSkeleton struct {
	tree htree.HTree
	// pivots maps glTF node indices of the skin's joints to pivot indices.
	pivots map[int]int
	// rest is indexed by pivot.
	rest []gltfRestPose
}

// gltfSkeletonExtractorImpl is the implementation of the gltfSkeletonExtractor interface.
type gltfSkeletonExtractorImpl struct {
	parser gltfParser
}

// gltfSkeletonExtractor converts glTF skins into hierarchies with parents ordered before children.
type gltfSkeletonExtractor interface {
	// ExtractSkeleton converts a skin by index.
	//
	// Parameters:
	//   - skinIndex: the index of the skin to extract
	//
	// Returns:
	//   - *gltfSkeleton: the hierarchy, its joint mapping and rest poses
	//   - error: error if the skin references missing nodes or the hierarchy is invalid
	ExtractSkeleton(skinIndex int) (*gltfSkeleton, error)
}

var _ gltfSkeletonExtractor = &gltfSkeletonExtractorImpl{}

// newGLTFSkeletonExtractor creates a new skeleton extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//
// Returns:
//   - gltfSkeletonExtractor: the skeleton extractor
func newGLTFSkeletonExtractor(parser gltfParser) gltfSkeletonExtractor {
	return &gltfSkeletonExtractorImpl{parser: parser}
}

func (e *gltfSkeletonExtractorImpl) ExtractSkeleton(skinIndex int) (*gltfSkeleton, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	if skinIndex < 0 || skinIndex >= len(doc.Skins) {
		return nil, fmt.Errorf("skin index %d out of range", skinIndex)
	}
	skin := &doc.Skins[skinIndex]

	nodeParents := make(map[int]int, len(doc.Nodes))
	for nodeIdx, node := range doc.Nodes {
		for _, child := range node.Children {
			nodeParents[child] = nodeIdx
		}
	}

	jointOf := make(map[int]int, len(skin.Joints))
	for j, nodeIdx := range skin.Joints {
		if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
			return nil, fmt.Errorf("joint %d: invalid node index %d", j, nodeIdx)
		}
		jointOf[nodeIdx] = j
	}

	// Joints whose parent node is not a joint hang off the synthesized root.
	parents := make([]int, len(skin.Joints))
	for j, nodeIdx := range skin.Joints {
		parents[j] = -1
		if p, ok := nodeParents[nodeIdx]; ok {
			if pj, ok := jointOf[p]; ok {
				parents[j] = pj
			}
		}
	}

	order := gltfTopologicalSortJoints(parents)

	sk := &gltfSkeleton{
		pivots: make(map[int]int, len(order)),
		rest:   make([]gltfRestPose, len(order)+1),
	}
	sk.rest[0] = gltfRestPose{rotation: mgl32.QuatIdent()}

	pivotOf := make([]int, len(skin.Joints))
	for i, j := range order {
		pivotOf[j] = i + 1
	}

	options := []htree.HTreeBuilderOption{
		htree.WithName(gltfSkinName(doc, skinIndex)),
		htree.WithPivot(htree.DefaultRootName, -1, mgl32.Vec3{}, mgl32.QuatIdent()),
	}
	for i, j := range order {
		nodeIdx := skin.Joints[j]
		node := &doc.Nodes[nodeIdx]
		rest := gltfNodeRestPose(node)

		name := node.Name
		if name == "" {
			name = fmt.Sprintf("BONE_%d", j)
		}
		parent := 0
		if parents[j] >= 0 {
			parent = pivotOf[parents[j]]
		}

		sk.pivots[nodeIdx] = i + 1
		sk.rest[i+1] = rest
		options = append(options, htree.WithPivot(name, parent, rest.translation, rest.rotation))
	}

	tree, err := htree.NewHTree(options...)
	if err != nil {
		return nil, fmt.Errorf("skin %d: %w", skinIndex, err)
	}
	sk.tree = tree
	return sk, nil
}

// gltfSkinName picks the hierarchy name: the skin name, then its skeleton root node name, then SKIN_<index>.
func gltfSkinName(doc *gltfDocument, skinIndex int) string {
	skin := &doc.Skins[skinIndex]
	if skin.Name != "" {
		return skin.Name
	}
	if skin.Skeleton != nil && *skin.Skeleton >= 0 && *skin.Skeleton < len(doc.Nodes) && doc.Nodes[*skin.Skeleton].Name != "" {
		return doc.Nodes[*skin.Skeleton].Name
	}
	return fmt.Sprintf("SKIN_%d", skinIndex)
}

// gltfNodeRestPose reads the TRS of a node, decomposing its matrix when one is given.
func gltfNodeRestPose(node *gltfNode) gltfRestPose {
	rest := gltfRestPose{rotation: mgl32.QuatIdent()}
	scale := mgl32.Vec3{1, 1, 1}

	if node.Matrix != nil {
		m := mgl32.Mat4(*node.Matrix)
		rest.translation = m.Col(3).Vec3()
		scale = mgl32.Vec3{m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len()}

		var rot mgl32.Mat3
		for c := 0; c < 3; c++ {
			col := m.Col(c).Vec3()
			if s := scale[c]; s > 0.0001 {
				col = col.Mul(1 / s)
			}
			rot.SetCol(c, col)
		}
		rest.rotation = mgl32.Mat4ToQuat(rot.Mat4()).Normalize()
	} else {
		if node.Translation != nil {
			rest.translation = mgl32.Vec3(*node.Translation)
		}
		if node.Rotation != nil {
			r := *node.Rotation
			rest.rotation = mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}.Normalize()
		}
		if node.Scale != nil {
			scale = mgl32.Vec3(*node.Scale)
		}
	}

	if !scale.ApproxEqualThreshold(mgl32.Vec3{1, 1, 1}, 1e-4) {
		log.Printf("[Loader] Ignoring scale %v on joint %s", scale, node.Name)
	}
	return rest
}

// gltfTopologicalSortJoints orders joints so that parents always come before children, breadth first from
// the roots. parents[j] is the parent joint of j or -1. Joints caught in a cycle are appended last as roots.
func gltfTopologicalSortJoints(parents []int) []int {
	children := make([][]int, len(parents))
	var queue []int
	for j, p := range parents {
		if p >= 0 {
			children[p] = append(children[p], j)
		} else {
			queue = append(queue, j)
		}
	}

	sorted := make([]int, 0, len(parents))
	visited := make([]bool, len(parents))
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		sorted = append(sorted, j)
		visited[j] = true
		queue = append(queue, children[j]...)
	}

	for j := range parents {
		if !visited[j] {
			parents[j] = -1
			sorted = append(sorted, j)
		}
	}
	return sorted
}
