// package htree contains the pivot hierarchy (skeleton) and the propagation of animation data through it.
//
// An HTree holds an array of named pivots. Pivot 0 is the root; every other pivot references a parent
// with a lower index, so a single ascending pass updates parents before children. Each update variant
// (base pose, single clip, two-clip blend, combo) recomputes the live world transform of every pivot from
// the supplied root transform. Captured pivots take an externally controlled transform instead.
package htree

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/combo"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultRootName is the name of the root pivot of default trees and of the root synthesized for old files.
const DefaultRootName = "RootTransform"

// Common errors returned by the hierarchy constructors and loaders.
var (
	ErrPivotCountMismatch = errors.New("htree: hierarchies have different pivot counts")
	ErrInvalidParent      = errors.New("htree: pivot parent must precede it")
	ErrNoPivots           = errors.New("htree: hierarchy has no pivots")
	errMissingPivots      = errors.New("htree: pivot chunk missing")
	errForeignTree        = errors.New("htree: hierarchy was not created by this package")
)

// hTreeImpl is the implementation of the HTree interface.
type hTreeImpl struct {
	name        string
	pivots      []pivot
	scaleFactor float32
}

// HTree is a named skeleton of parent-linked pivots together with the live transform of every pivot.
//
// An HTree is owned by a single animated object; Clone it to give each instance its own capture state.
// Bone indices outside [0, NumPivots) are ignored by the mutators and yield zero values from the queries.
type HTree interface {
	// Name returns the hierarchy name.
	Name() string

	// NumPivots returns the number of pivots, including the root.
	NumPivots() int

	// ScaleFactor returns the accumulated scale applied through Scale. Animation translations are
	// multiplied by it.
	ScaleFactor() float32

	// BoneIndex finds a pivot by name, ignoring case.
	//
	// Parameters:
	//   - name: the bone name
	//
	// Returns:
	//   - int: the pivot index, or 0 (the root) when no pivot has that name
	BoneIndex(name string) int

	// BoneName returns the name of a pivot.
	BoneName(bone int) string

	// ParentIndex returns the parent of a pivot. The root reports 0.
	ParentIndex(bone int) int

	// BaseTransform returns the rest transform of a pivot relative to its parent.
	BaseTransform(bone int) mgl32.Mat4

	// Transform returns the live world transform of a pivot computed by the last update.
	Transform(bone int) mgl32.Mat4

	// IsVisible returns the visibility of a pivot computed by the last update.
	IsVisible(bone int) bool

	// BaseUpdate poses every pivot at its rest transform.
	//
	// Parameters:
	//   - root: the world transform of the root pivot
	BaseUpdate(root mgl32.Mat4)

	// AnimUpdate poses the tree from a single clip. Pivots the clip has no slot for stay at rest.
	//
	// Parameters:
	//   - root: the world transform of the root pivot
	//   - c: the clip; nil poses the rest transform
	//   - frame: the clip frame
	AnimUpdate(root mgl32.Mat4, c clip.Clip, frame float32)

	// BlendUpdate poses the tree from two clips. Translations are lerped, rotations fast-slerped and a
	// pivot is visible when either clip shows it.
	//
	// Parameters:
	//   - root: the world transform of the root pivot
	//   - c0: the first clip
	//   - frame0: the frame of the first clip
	//   - c1: the second clip
	//   - frame1: the frame of the second clip
	//   - percentage: 0 poses c0 exactly, 1 poses c1 exactly
	BlendUpdate(root mgl32.Mat4, c0 clip.Clip, frame0 float32, c1 clip.Clip, frame1, percentage float32)

	// ComboUpdate poses the tree from a weighted set of clips. Pivots past the shortest clip stay at rest.
	//
	// Parameters:
	//   - root: the world transform of the root pivot
	//   - cb: the combo
	ComboUpdate(root mgl32.Mat4, cb combo.Combo)

	// CaptureBone puts a pivot under external control. Until released, every update sets its transform
	// from the control transform (see ControlBone) and marks it visible.
	CaptureBone(bone int)

	// ReleaseBone returns a captured pivot to normal evaluation.
	ReleaseBone(bone int)

	// IsBoneCaptured reports whether a pivot is captured.
	IsBoneCaptured(bone int) bool

	// ControlBone sets the control transform of a captured pivot.
	//
	// Parameters:
	//   - bone: the pivot index
	//   - relative: the transform applied after the parent's world transform
	//   - worldSpaceTranslation: when true, the translation of relative is added in world space instead
	//     of being rotated by the parent
	ControlBone(bone int, relative mgl32.Mat4, worldSpaceTranslation bool)

	// BoneControl returns the control transform of a captured pivot, identity when not captured.
	BoneControl(bone int) mgl32.Mat4

	// Scale multiplies every rest translation by factor and accumulates it into ScaleFactor.
	Scale(factor float32)

	// Clone returns an independent deep copy, including the scale factor and capture state.
	Clone() HTree

	// SimpleEvaluatePivot computes the world transform of one pivot under a clip without touching the live
	// state: objTM * product of base*anim from the top of the chain down to the pivot.
	//
	// Parameters:
	//   - c: the clip
	//   - bone: the pivot index
	//   - frame: the clip frame
	//   - objTM: the object's world transform
	//
	// Returns:
	//   - mgl32.Mat4: the pivot's world transform
	//   - bool: false if the clip is nil or the pivot out of range
	SimpleEvaluatePivot(c clip.Clip, bone int, frame float32, objTM mgl32.Mat4) (mgl32.Mat4, bool)

	// SimpleEvaluateBasePivot is SimpleEvaluatePivot for the rest pose.
	SimpleEvaluateBasePivot(bone int, objTM mgl32.Mat4) (mgl32.Mat4, bool)

	// Save writes the hierarchy as a w3d.ChunkHierarchy chunk.
	//
	// Parameters:
	//   - w: the chunk writer
	//
	// Returns:
	//   - error: error if encoding fails
	Save(w w3d.ChunkWriter) error
}

var _ HTree = &hTreeImpl{}

// NewDefault creates a hierarchy with a single identity root pivot and no name.
//
// Returns:
//   - HTree: the hierarchy
func NewDefault() HTree {
	return &hTreeImpl{
		pivots:      []pivot{newPivot(DefaultRootName, noParent, mgl32.Vec3{}, mgl32.QuatIdent())},
		scaleFactor: 1,
	}
}

// asImpl recovers the implementation behind an HTree.
func asImpl(t HTree) (*hTreeImpl, error) {
	impl, ok := t.(*hTreeImpl)
	if !ok || impl == nil {
		return nil, errForeignTree
	}
	return impl, nil
}

func (t *hTreeImpl) pivot(bone int) *pivot {
	if bone < 0 || bone >= len(t.pivots) {
		return nil
	}
	return &t.pivots[bone]
}

func (t *hTreeImpl) Name() string {
	return t.name
}

func (t *hTreeImpl) NumPivots() int {
	return len(t.pivots)
}

func (t *hTreeImpl) ScaleFactor() float32 {
	return t.scaleFactor
}

func (t *hTreeImpl) BoneIndex(name string) int {
	for i := range t.pivots {
		if common.NamesEqual(t.pivots[i].name, name) {
			return i
		}
	}
	return 0
}

func (t *hTreeImpl) BoneName(bone int) string {
	if p := t.pivot(bone); p != nil {
		return p.name
	}
	return ""
}

func (t *hTreeImpl) ParentIndex(bone int) int {
	if p := t.pivot(bone); p != nil && p.parent != noParent {
		return p.parent
	}
	return 0
}

func (t *hTreeImpl) BaseTransform(bone int) mgl32.Mat4 {
	if p := t.pivot(bone); p != nil {
		return p.base
	}
	return mgl32.Ident4()
}

func (t *hTreeImpl) Transform(bone int) mgl32.Mat4 {
	if p := t.pivot(bone); p != nil {
		return p.live
	}
	return mgl32.Ident4()
}

func (t *hTreeImpl) IsVisible(bone int) bool {
	if p := t.pivot(bone); p != nil {
		return p.visible
	}
	return false
}

func (t *hTreeImpl) CaptureBone(bone int) {
	if p := t.pivot(bone); p != nil {
		p.captured = true
	}
}

func (t *hTreeImpl) ReleaseBone(bone int) {
	if p := t.pivot(bone); p != nil {
		p.captured = false
	}
}

func (t *hTreeImpl) IsBoneCaptured(bone int) bool {
	if p := t.pivot(bone); p != nil {
		return p.captured
	}
	return false
}

func (t *hTreeImpl) ControlBone(bone int, relative mgl32.Mat4, worldSpaceTranslation bool) {
	if p := t.pivot(bone); p != nil {
		p.capture = relative
		p.worldSpaceTranslation = worldSpaceTranslation
	}
}

func (t *hTreeImpl) BoneControl(bone int) mgl32.Mat4 {
	if p := t.pivot(bone); p != nil && p.captured {
		return p.capture
	}
	return mgl32.Ident4()
}

func (t *hTreeImpl) Scale(factor float32) {
	if factor == 1 {
		return
	}
	for i := range t.pivots {
		p := &t.pivots[i]
		p.setBaseTranslation(p.baseTranslation().Mul(factor))
	}
	t.scaleFactor *= factor
}

func (t *hTreeImpl) Clone() HTree {
	return t.clone()
}

func (t *hTreeImpl) clone() *hTreeImpl {
	return &hTreeImpl{
		name:        t.name,
		pivots:      append([]pivot(nil), t.pivots...),
		scaleFactor: t.scaleFactor,
	}
}

func (t *hTreeImpl) SimpleEvaluatePivot(c clip.Clip, bone int, frame float32, objTM mgl32.Mat4) (mgl32.Mat4, bool) {
	if c == nil || t.pivot(bone) == nil {
		return mgl32.Ident4(), false
	}
	return t.evaluateChain(bone, objTM, func(idx int) mgl32.Mat4 {
		anim := c.Transform(idx, frame)
		return common.WithTranslation(anim, common.Translation(anim).Mul(t.scaleFactor))
	}), true
}

func (t *hTreeImpl) SimpleEvaluateBasePivot(bone int, objTM mgl32.Mat4) (mgl32.Mat4, bool) {
	if t.pivot(bone) == nil {
		return mgl32.Ident4(), false
	}
	return t.evaluateChain(bone, objTM, nil), true
}

// evaluateChain multiplies base*anim for the pivot and each ancestor below the root, then applies objTM.
func (t *hTreeImpl) evaluateChain(bone int, objTM mgl32.Mat4, anim func(int) mgl32.Mat4) mgl32.Mat4 {
	end := mgl32.Ident4()
	for idx := bone; t.pivots[idx].parent != noParent; idx = t.pivots[idx].parent {
		p := &t.pivots[idx]
		curr := p.base
		if anim != nil {
			curr = curr.Mul4(anim(idx))
		}
		end = curr.Mul4(end)
	}
	return objTM.Mul4(end)
}
