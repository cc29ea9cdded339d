package htree

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/combo"
	"github.com/go-gl/mathgl/mgl32"
)

// poseFunc computes the live transform and visibility of pivot i once its parent-relative rest transform
// has been applied to rest.
type poseFunc func(i int, rest mgl32.Mat4) (mgl32.Mat4, bool)

// update runs one ascending pass over the pivots. The root takes the supplied transform; every other pivot
// starts from parent.live * base, is posed by pose when pose is non-nil and finally honors its capture.
func (t *hTreeImpl) update(root mgl32.Mat4, pose poseFunc) {
	t.pivots[0].live = root
	t.pivots[0].visible = true

	for i := 1; i < len(t.pivots); i++ {
		p := &t.pivots[i]
		parent := t.pivots[p.parent].live
		p.live = parent.Mul4(p.base)
		p.visible = true
		if pose != nil {
			p.live, p.visible = pose(i, p.live)
		}
		if p.captured {
			p.captureUpdate(parent)
		}
	}
}

func (t *hTreeImpl) BaseUpdate(root mgl32.Mat4) {
	t.update(root, nil)
}

func (t *hTreeImpl) AnimUpdate(root mgl32.Mat4, c clip.Clip, frame float32) {
	if c == nil {
		t.BaseUpdate(root)
		return
	}
	numAnim := c.NumPivots()
	t.update(root, func(i int, rest mgl32.Mat4) (mgl32.Mat4, bool) {
		if i >= numAnim {
			return rest, true
		}
		trans := c.Translation(i, frame).Mul(t.scaleFactor)
		live := common.Translate(rest, trans).Mul4(c.Orientation(i, frame).Mat4())
		return live, c.Visibility(i, frame)
	})
}

func (t *hTreeImpl) BlendUpdate(root mgl32.Mat4, c0 clip.Clip, frame0 float32, c1 clip.Clip, frame1, percentage float32) {
	switch {
	case c1 == nil:
		t.AnimUpdate(root, c0, frame0)
		return
	case c0 == nil:
		t.AnimUpdate(root, c1, frame1)
		return
	}
	numAnim := min(c0.NumPivots(), c1.NumPivots())
	t.update(root, func(i int, rest mgl32.Mat4) (mgl32.Mat4, bool) {
		if i >= numAnim {
			return rest, true
		}
		t0 := c0.Translation(i, frame0)
		t1 := c1.Translation(i, frame1)
		trans := common.LerpVec3(t0, t1, percentage).Mul(t.scaleFactor)

		q := common.FastSlerp(c0.Orientation(i, frame0), c1.Orientation(i, frame1), percentage)
		live := common.Translate(rest, trans).Mul4(q.Mat4())
		return live, c0.Visibility(i, frame0) || c1.Visibility(i, frame1)
	})
}

func (t *hTreeImpl) ComboUpdate(root mgl32.Mat4, cb combo.Combo) {
	if cb == nil {
		t.BaseUpdate(root)
		return
	}
	entries := make([]combo.Entry, 0, cb.NumAnims())
	for i := 0; i < cb.NumAnims(); i++ {
		if e, ok := cb.Entry(i); ok && e.Clip != nil {
			entries = append(entries, e)
		}
	}
	numAnim := cb.NumPivots()

	t.update(root, func(i int, rest mgl32.Mat4) (mgl32.Mat4, bool) {
		if i >= numAnim {
			return rest, true
		}
		var trans mgl32.Vec3
		var q mgl32.Quat
		var total float32
		visible := false
		for k := range entries {
			e := &entries[k]
			visible = visible || e.Clip.Visibility(i, e.Frame)

			w := e.PivotWeight(i)
			if w == 0 {
				continue
			}
			trans = trans.Add(e.Clip.Translation(i, e.Frame).Mul(w * t.scaleFactor))
			qi := e.Clip.Orientation(i, e.Frame)
			if total == 0 {
				q = qi
			} else {
				q = common.FastSlerp(q, qi, w/(total+w))
			}
			total += w
		}
		if total == 0 {
			return rest, visible
		}
		return common.Translate(rest, trans).Mul4(q.Mat4()), visible
	})
}
