package clip

import (
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/channel"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// nodeMotion holds the channels of one pivot. Any of them may be nil.
type nodeMotion struct {
	x, y, z channel.Motion
	q       channel.Motion
	vis     channel.Bit
}

// setMotion installs a motion channel in its slot, replacing an earlier one of the same type.
// Euler rotation channels are not evaluated and are ignored.
func (n *nodeMotion) setMotion(ch channel.Motion) {
	switch ch.Type() {
	case w3d.ChannelX:
		n.x = ch
	case w3d.ChannelY:
		n.y = ch
	case w3d.ChannelZ:
		n.z = ch
	case w3d.ChannelQ:
		n.q = ch
	}
}

// setBit installs a visibility channel; other bit channel types are ignored.
func (n *nodeMotion) setBit(ch channel.Bit) {
	if ch.Type() == w3d.BitChannelVis {
		n.vis = ch
	}
}

func (n *nodeMotion) present() bool {
	return n.x != nil || n.y != nil || n.z != nil || n.q != nil || n.vis != nil
}

// channels lists the motion channels in save order.
func (n *nodeMotion) channels() []channel.Motion {
	out := make([]channel.Motion, 0, 4)
	for _, ch := range []channel.Motion{n.x, n.y, n.z, n.q} {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// translation evaluates the X, Y and Z channels directly at frame. Missing axes are zero.
func (n *nodeMotion) translation(frame float32) mgl32.Vec3 {
	var t mgl32.Vec3
	var v [1]float32
	for i, ch := range []channel.Motion{n.x, n.y, n.z} {
		if ch != nil {
			ch.Vector(frame, v[:])
			t[i] = v[0]
		}
	}
	return t
}

// orientation evaluates the Q channel directly at frame. A missing channel is the identity.
func (n *nodeMotion) orientation(frame float32) mgl32.Quat {
	if n.q == nil {
		return mgl32.QuatIdent()
	}
	return n.q.Quat(frame)
}

// visibility evaluates the visibility channel at an integer frame. A missing channel is visible.
func (n *nodeMotion) visibility(frame int) bool {
	if n.vis == nil {
		return true
	}
	return n.vis.Bit(frame)
}

// nodeTable is the per-pivot channel table shared by the raw and compressed clips.
type nodeTable []nodeMotion

// node returns the motion of pivot, or nil when the pivot is outside the table.
func (t nodeTable) node(pivot int) *nodeMotion {
	if pivot < 0 || pivot >= len(t) {
		return nil
	}
	return &t[pivot]
}

// addMotion installs ch or logs and drops it when its pivot is out of range.
func (t nodeTable) addMotion(clipName string, ch channel.Motion) bool {
	n := t.node(ch.Pivot())
	if n == nil {
		logDroppedChannel(clipName, ch.Pivot(), len(t))
		return false
	}
	n.setMotion(ch)
	return true
}

// addBit installs ch or logs and drops it when its pivot is out of range.
func (t nodeTable) addBit(clipName string, ch channel.Bit) bool {
	n := t.node(ch.Pivot())
	if n == nil {
		logDroppedChannel(clipName, ch.Pivot(), len(t))
		return false
	}
	n.setBit(ch)
	return true
}

func (t nodeTable) present(pivot int) bool {
	n := t.node(pivot)
	return n != nil && n.present()
}

// save writes every motion channel followed by every bit channel.
func (t nodeTable) save(w w3d.ChunkWriter) error {
	for i := range t {
		for _, ch := range t[i].channels() {
			if err := ch.Save(w); err != nil {
				return err
			}
		}
	}
	for i := range t {
		if t[i].vis != nil {
			if err := t[i].vis.Save(w); err != nil {
				return err
			}
		}
	}
	return nil
}
