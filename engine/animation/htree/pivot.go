package htree

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxNameLen is the longest pivot or hierarchy name kept in memory. Names are shortened further when saved.
const MaxNameLen = 32

// noParent is the parent index of the root pivot.
const noParent = -1

// pivot is one bone of a hierarchy. Parents are referenced by index so trees copy by value.
type pivot struct {
	name     string
	parent   int
	rotation mgl32.Quat

	base    mgl32.Mat4
	live    mgl32.Mat4
	visible bool

	captured              bool
	capture               mgl32.Mat4
	worldSpaceTranslation bool
}

func newPivot(name string, parent int, translation mgl32.Vec3, rotation mgl32.Quat) pivot {
	return pivot{
		name:     clampName(name),
		parent:   parent,
		rotation: rotation,
		base:     common.BuildTransform(translation, rotation),
		live:     mgl32.Ident4(),
		visible:  true,
		capture:  mgl32.Ident4(),
	}
}

// baseTranslation returns the translation part of the base transform.
func (p *pivot) baseTranslation() mgl32.Vec3 {
	return common.Translation(p.base)
}

// setBaseTranslation replaces the translation part of the base transform.
func (p *pivot) setBaseTranslation(v mgl32.Vec3) {
	p.base = common.WithTranslation(p.base, v)
}

// captureUpdate replaces the computed transform with the control transform applied to the parent.
// With world space translation the control translation is added in the parent's frame of reference
// without being rotated by it.
func (p *pivot) captureUpdate(parent mgl32.Mat4) {
	if !p.worldSpaceTranslation {
		p.live = parent.Mul4(p.capture)
	} else {
		rot := common.RotationOnly(parent).Mul4(common.RotationOnly(p.capture))
		p.live = common.WithTranslation(rot, common.Translation(parent).Add(common.Translation(p.capture)))
	}
	p.visible = true
}

func clampName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}
