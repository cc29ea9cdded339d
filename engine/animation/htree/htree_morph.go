package htree

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/go-gl/mathgl/mgl32"
)

var errMorphWeights = errors.New("htree: morph needs one weight per hierarchy")

// flippedBones take the Z scale in place of the Y scale in AlterAvatar. Their local Y axis runs along
// the arm in the source skeletons. The leading spaces are part of the stored names.
var flippedBones = []string{
	" RIGHTFOREARM", " RIGHTHAND", " LEFTFOREARM", " LEFTHAND",
	"RIGHTINDEX", "RIGHTFINGERS", "RIGHTTHUMB",
	"LEFTINDEX", "LEFTFINGERS", "LEFTTHUMB",
}

// AlterAvatar builds a copy of tree whose rest translations are stretched per axis. The current live
// transforms of tree are scaled and re-expressed relative to each parent, so tree should be posed at
// rest before calling it.
//
// Parameters:
//   - tree: the source hierarchy
//   - scale: the per-axis scale
//
// Returns:
//   - HTree: the altered copy posed at rest
//   - error: error if tree was not created by this package
func AlterAvatar(tree HTree, scale mgl32.Vec3) (HTree, error) {
	src, err := asImpl(tree)
	if err != nil {
		return nil, err
	}
	out := src.clone()
	for i := range src.pivots {
		p := &src.pivots[i]
		if p.parent == noParent {
			continue
		}
		adjusted := scale
		if slices.Contains(flippedBones, p.name) {
			adjusted[1] = scale[2]
		}
		parent := src.pivots[p.parent].live
		pos := mulComponents(common.Translation(p.live), adjusted)
		parentPos := mulComponents(common.Translation(parent), adjusted)
		rel := common.RotateVector(parent.Inv(), pos.Sub(parentPos))
		out.pivots[i].setBaseTranslation(rel)
	}
	out.BaseUpdate(mgl32.Ident4())
	return out, nil
}

// CreateMorphed builds a copy of trees[0] whose rest translations are the weighted sum of the rest
// translations of every tree.
//
// Parameters:
//   - weights: one weight per tree
//   - trees: hierarchies with identical pivot counts
//
// Returns:
//   - HTree: the morphed copy posed at rest
//   - error: error if the inputs are empty, mismatched or foreign
func CreateMorphed(weights []float32, trees []HTree) (HTree, error) {
	if len(trees) == 0 || len(weights) != len(trees) {
		return nil, errMorphWeights
	}
	impls, err := sameShape(trees...)
	if err != nil {
		return nil, err
	}
	out := impls[0].clone()
	for i := range out.pivots {
		var pos mgl32.Vec3
		for k, t := range impls {
			pos = pos.Add(t.pivots[i].baseTranslation().Mul(weights[k]))
		}
		out.pivots[i].setBaseTranslation(pos)
	}
	out.BaseUpdate(mgl32.Ident4())
	return out, nil
}

// CreateInterpolated builds a copy of a0b0 whose rest translations are bilinearly interpolated between
// four hierarchies.
//
// Parameters:
//   - a0b0, a0b1, a1b0, a1b1: the corner hierarchies
//   - lerpA: the position along the A axis
//   - lerpB: the position along the B axis
//
// Returns:
//   - HTree: the interpolated copy posed at rest
//   - error: error if the pivot counts differ or a tree is foreign
func CreateInterpolated(a0b0, a0b1, a1b0, a1b1 HTree, lerpA, lerpB float32) (HTree, error) {
	impls, err := sameShape(a0b0, a0b1, a1b0, a1b1)
	if err != nil {
		return nil, err
	}
	out := impls[0].clone()
	for i := range out.pivots {
		b0 := common.LerpVec3(impls[0].pivots[i].baseTranslation(), impls[2].pivots[i].baseTranslation(), lerpA)
		b1 := common.LerpVec3(impls[1].pivots[i].baseTranslation(), impls[3].pivots[i].baseTranslation(), lerpA)
		out.pivots[i].setBaseTranslation(common.LerpVec3(b0, b1, lerpB))
	}
	out.BaseUpdate(mgl32.Ident4())
	return out, nil
}

// CreateInterpolatedBlend builds a copy of base whose rest translations move toward a and b. Each target
// is lerped by its own scalar and the two results are averaged weighted by the scalars' magnitudes.
// When both scalars are zero the copy keeps the base translations.
//
// Parameters:
//   - base: the neutral hierarchy
//   - a: the first target
//   - b: the second target
//   - aScalar: the lerp factor toward a
//   - bScalar: the lerp factor toward b
//
// Returns:
//   - HTree: the blended copy posed at rest
//   - error: error if the pivot counts differ or a tree is foreign
func CreateInterpolatedBlend(base, a, b HTree, aScalar, bScalar float32) (HTree, error) {
	impls, err := sameShape(base, a, b)
	if err != nil {
		return nil, err
	}
	out := impls[0].clone()
	aw := float32(math.Abs(float64(aScalar)))
	bw := float32(math.Abs(float64(bScalar)))
	if aw+bw > 0 {
		for i := range out.pivots {
			basePos := impls[0].pivots[i].baseTranslation()
			towardA := common.LerpVec3(basePos, impls[1].pivots[i].baseTranslation(), aScalar)
			towardB := common.LerpVec3(basePos, impls[2].pivots[i].baseTranslation(), bScalar)
			out.pivots[i].setBaseTranslation(towardA.Mul(aw).Add(towardB.Mul(bw)).Mul(1 / (aw + bw)))
		}
	}
	out.BaseUpdate(mgl32.Ident4())
	return out, nil
}

// sameShape recovers the implementations of trees and checks that their pivot counts agree.
func sameShape(trees ...HTree) ([]*hTreeImpl, error) {
	impls := make([]*hTreeImpl, len(trees))
	for i, t := range trees {
		impl, err := asImpl(t)
		if err != nil {
			return nil, err
		}
		if i > 0 && len(impl.pivots) != len(impls[0].pivots) {
			return nil, fmt.Errorf("%s has %d pivots, %s has %d: %w",
				impls[0].name, len(impls[0].pivots), impl.name, len(impl.pivots), ErrPivotCountMismatch)
		}
		impls[i] = impl
	}
	return impls, nil
}

func mulComponents(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
