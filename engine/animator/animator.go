// package animator contains the AnimatableObject, which owns a hierarchy instance and drives it from an
// animation state: the base pose, one clip played by a sync clock, a two-clip blend or a combo.
package animator

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/combo"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
	"github.com/Carmen-Shannon/oxy-anim/engine/profiler"
	"github.com/go-gl/mathgl/mgl32"
)

// animatableObject is the implementation of the AnimatableObject interface.
type animatableObject struct {
	mu *sync.Mutex

	tree      htree.HTree
	transform mgl32.Mat4
	state     State
	valid     bool

	syncTime func() time.Duration
	profiler *profiler.Profiler
}

// AnimatableObject defines the public interface of an animated hierarchy instance.
//
// The object owns a private clone of its hierarchy, so capture state and scale are per instance while clips
// are shared. Bone transforms are recomputed lazily: any change to the state, the root transform or a bone
// control invalidates the hierarchy and the next bone query (or Update) evaluates it again. Single animations
// in a mode other than PlayModeManual advance with the sync clock every time the hierarchy is evaluated.
type AnimatableObject interface {
	// HTree returns the object's hierarchy instance.
	HTree() htree.HTree

	// SetHTree replaces the hierarchy with a clone of tree. The pivot count must match the current one so
	// bone indices stay valid.
	//
	// Parameters:
	//   - tree: the new hierarchy
	//
	// Returns:
	//   - error: htree.ErrPivotCountMismatch if the pivot counts differ
	SetHTree(tree htree.HTree) error

	// State returns a snapshot of the current animation state.
	State() State

	// SetBasePose poses the hierarchy at rest and drops any animation.
	SetBasePose()

	// SetAnimation plays a single clip. The frame rate multiplier resets to 1 and the direction to the
	// mode's natural direction.
	//
	// Parameters:
	//   - c: the clip; nil switches to the base pose
	//   - frame: the starting frame
	//   - mode: how the frame advances with the sync clock
	SetAnimation(c clip.Clip, frame float32, mode PlayMode)

	// SetBlend blends two clips by a fixed percentage.
	//
	// Parameters:
	//   - c0: the first clip
	//   - frame0: the frame of the first clip
	//   - c1: the second clip
	//   - frame1: the frame of the second clip
	//   - percentage: 0 poses c0, 1 poses c1
	SetBlend(c0 clip.Clip, frame0 float32, c1 clip.Clip, frame1, percentage float32)

	// SetCombo blends the entries of a combo. The combo is referenced, not copied, so later changes to it
	// apply on the next evaluation after Invalidate.
	SetCombo(cb combo.Combo)

	// PeekAnimation returns the clip of a single animation, nil in any other state.
	PeekAnimation() clip.Clip

	// AnimationInfo describes the single animation being played.
	//
	// Returns:
	//   - PlaybackInfo: the clip, frame, frame count, mode and multiplier
	//   - bool: false when the state is not a single animation
	AnimationInfo() (PlaybackInfo, bool)

	// SetFrameRateMultiplier scales the playback rate of a single animation.
	SetFrameRateMultiplier(multiplier float32)

	// ComputeCurrentFrame returns the frame a single animation is at right now according to the sync clock,
	// without storing it. Other states report 0.
	ComputeCurrentFrame() float32

	// Progress stores the current frame and direction of a single animation and restarts its sync interval.
	Progress()

	// IsAnimationComplete reports whether a once-mode single animation has reached its final frame.
	IsAnimationComplete() bool

	// Invalidate forces the next bone query to evaluate the hierarchy.
	Invalidate()

	// Update evaluates the hierarchy if it is invalid or a single animation is advancing with the clock.
	Update()

	// BoneTransform returns the world transform of a bone, evaluating the hierarchy first when needed.
	BoneTransform(bone int) mgl32.Mat4

	// BoneTransformByName returns the world transform of a bone found by name. Unknown names resolve to the
	// root.
	BoneTransformByName(name string) mgl32.Mat4

	// NumBones returns the pivot count of the hierarchy.
	NumBones() int

	// BoneName returns the name of a bone.
	BoneName(bone int) string

	// BoneIndex returns the index of a bone found by name, 0 when unknown.
	BoneIndex(name string) int

	// IsBoneVisible returns the visibility of a bone after evaluating the hierarchy when needed.
	IsBoneVisible(bone int) bool

	// CaptureBone puts a bone under external control.
	CaptureBone(bone int)

	// ReleaseBone returns a captured bone to animation control.
	ReleaseBone(bone int)

	// IsBoneCaptured reports whether a bone is captured.
	IsBoneCaptured(bone int) bool

	// ControlBone sets the control transform of a captured bone and invalidates the hierarchy.
	//
	// Parameters:
	//   - bone: the bone index
	//   - relative: the transform applied after the parent's world transform
	//   - worldSpaceTranslation: add the translation without the parent's rotation
	ControlBone(bone int, relative mgl32.Mat4, worldSpaceTranslation bool)

	// Transform returns the world transform of the object, which is the root transform of the hierarchy.
	Transform() mgl32.Mat4

	// SetTransform moves the object and invalidates the hierarchy.
	SetTransform(m mgl32.Mat4)

	// SimpleEvaluateBone computes the world transform of one bone under the current single animation at
	// the current frame, without evaluating the rest of the hierarchy.
	//
	// Parameters:
	//   - bone: the bone index
	//
	// Returns:
	//   - mgl32.Mat4: the bone transform, or the object transform when not playing a single animation
	//   - bool: false when the transform could not be evaluated
	SimpleEvaluateBone(bone int) (mgl32.Mat4, bool)
}

var _ AnimatableObject = &animatableObject{}

// NewAnimatableObject creates an object in the base pose. Without WithHTree the object uses a default
// single pivot hierarchy.
//
// Parameters:
//   - options: the hierarchy, clock, transform and profiler
//
// Returns:
//   - AnimatableObject: the object
func NewAnimatableObject(options ...AnimatorBuilderOption) AnimatableObject {
	start := time.Now()
	a := &animatableObject{
		mu:        &sync.Mutex{},
		transform: mgl32.Ident4(),
		state:     BasePose{},
		syncTime:  func() time.Duration { return time.Since(start) },
	}
	for _, opt := range options {
		opt(a)
	}
	if a.tree == nil {
		a.tree = htree.NewDefault()
	}
	return a
}

func (a *animatableObject) HTree() htree.HTree {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree
}

func (a *animatableObject) SetHTree(tree htree.HTree) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tree.NumPivots() != a.tree.NumPivots() {
		return fmt.Errorf("cannot replace %s (%d pivots) with %s (%d pivots): %w",
			a.tree.Name(), a.tree.NumPivots(), tree.Name(), tree.NumPivots(), htree.ErrPivotCountMismatch)
	}
	a.tree = tree.Clone()
	a.valid = false
	return nil
}

func (a *animatableObject) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *animatableObject) setState(s State) {
	a.state = s
	a.valid = false
}

func (a *animatableObject) SetBasePose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setState(BasePose{})
}

func (a *animatableObject) SetAnimation(c clip.Clip, frame float32, mode PlayMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c == nil {
		a.setState(BasePose{})
		return
	}
	a.setState(SingleAnim{
		Clip:                c,
		Frame:               frame,
		Mode:                mode,
		Direction:           mode.initialDirection(),
		FrameRateMultiplier: 1,
		LastSyncTime:        a.syncTime(),
	})
}

func (a *animatableObject) SetBlend(c0 clip.Clip, frame0 float32, c1 clip.Clip, frame1, percentage float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setState(TwoWayBlend{Clip0: c0, Frame0: frame0, Clip1: c1, Frame1: frame1, Percentage: percentage})
}

func (a *animatableObject) SetCombo(cb combo.Combo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setState(ComboAnim{Combo: cb})
}

func (a *animatableObject) PeekAnimation() clip.Clip {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.state.(SingleAnim); ok {
		return s.Clip
	}
	return nil
}

func (a *animatableObject) AnimationInfo() (PlaybackInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.state.(SingleAnim)
	if !ok {
		return PlaybackInfo{}, false
	}
	return PlaybackInfo{
		Clip:                s.Clip,
		Frame:               s.Frame,
		NumFrames:           s.Clip.NumFrames(),
		Mode:                s.Mode,
		FrameRateMultiplier: s.FrameRateMultiplier,
	}, true
}

func (a *animatableObject) SetFrameRateMultiplier(multiplier float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.state.(SingleAnim); ok {
		s.FrameRateMultiplier = multiplier
		a.state = s
	}
}

func (a *animatableObject) ComputeCurrentFrame() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.state.(SingleAnim); ok {
		frame, _ := s.advance(a.syncTime())
		return frame
	}
	return 0
}

func (a *animatableObject) Progress() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress()
}

func (a *animatableObject) progress() {
	s, ok := a.state.(SingleAnim)
	if !ok {
		return
	}
	now := a.syncTime()
	s.Frame, s.Direction = s.advance(now)
	s.LastSyncTime = now
	a.setState(s)
}

func (a *animatableObject) IsAnimationComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.state.(SingleAnim); ok {
		return s.complete()
	}
	return false
}

func (a *animatableObject) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.valid = false
}

func (a *animatableObject) Update() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.update()
}

// update evaluates the hierarchy from the current state. Advancing single animations always re-evaluate.
func (a *animatableObject) update() {
	if s, ok := a.state.(SingleAnim); ok && s.Mode != PlayModeManual {
		a.progress()
	}
	if a.valid {
		return
	}

	switch s := a.state.(type) {
	case SingleAnim:
		a.tree.AnimUpdate(a.transform, s.Clip, s.Frame)
	case TwoWayBlend:
		a.tree.BlendUpdate(a.transform, s.Clip0, s.Frame0, s.Clip1, s.Frame1, s.Percentage)
	case ComboAnim:
		a.tree.ComboUpdate(a.transform, s.Combo)
	default:
		a.tree.BaseUpdate(a.transform)
	}
	a.valid = true

	if a.profiler != nil {
		a.profiler.Tick(a.tree.NumPivots())
	}
}

// validate evaluates the hierarchy only when it is invalid.
func (a *animatableObject) validate() {
	if !a.valid {
		a.update()
	}
}

func (a *animatableObject) BoneTransform(bone int) mgl32.Mat4 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validate()
	return a.tree.Transform(bone)
}

func (a *animatableObject) BoneTransformByName(name string) mgl32.Mat4 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validate()
	return a.tree.Transform(a.tree.BoneIndex(name))
}

func (a *animatableObject) NumBones() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.NumPivots()
}

func (a *animatableObject) BoneName(bone int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.BoneName(bone)
}

func (a *animatableObject) BoneIndex(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.BoneIndex(name)
}

func (a *animatableObject) IsBoneVisible(bone int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validate()
	return a.tree.IsVisible(bone)
}

func (a *animatableObject) CaptureBone(bone int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tree.CaptureBone(bone)
	a.valid = false
}

func (a *animatableObject) ReleaseBone(bone int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tree.ReleaseBone(bone)
	a.valid = false
}

func (a *animatableObject) IsBoneCaptured(bone int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.IsBoneCaptured(bone)
}

func (a *animatableObject) ControlBone(bone int, relative mgl32.Mat4, worldSpaceTranslation bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tree.ControlBone(bone, relative, worldSpaceTranslation)
	a.valid = false
}

func (a *animatableObject) Transform() mgl32.Mat4 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transform
}

func (a *animatableObject) SetTransform(m mgl32.Mat4) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transform = m
	a.valid = false
}

func (a *animatableObject) SimpleEvaluateBone(bone int) (mgl32.Mat4, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.state.(SingleAnim)
	if !ok {
		return a.transform, false
	}
	frame, _ := s.advance(a.syncTime())
	return a.tree.SimpleEvaluatePivot(s.Clip, bone, frame, a.transform)
}
