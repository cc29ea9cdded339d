package animator

import (
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
	"github.com/Carmen-Shannon/oxy-anim/engine/profiler"
	"github.com/go-gl/mathgl/mgl32"
)

// AnimatorBuilderOption is a functional option for configuring an AnimatableObject during construction.
type AnimatorBuilderOption func(*animatableObject)

// WithHTree is an option builder that gives the object a private clone of a hierarchy.
//
// Parameters:
//   - tree: the hierarchy to clone
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the hierarchy option to an object
func WithHTree(tree htree.HTree) AnimatorBuilderOption {
	return func(a *animatableObject) {
		a.tree = tree.Clone()
	}
}

// WithDefaultHTree is an option builder that gives the object a single pivot hierarchy.
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the default hierarchy to an object
func WithDefaultHTree() AnimatorBuilderOption {
	return func(a *animatableObject) {
		a.tree = htree.NewDefault()
	}
}

// WithSyncClock is an option builder that replaces the clock single animations advance with.
// The clock reports the time elapsed since an arbitrary fixed origin.
//
// Parameters:
//   - clock: returns the current sync time
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the clock option to an object
func WithSyncClock(clock func() time.Duration) AnimatorBuilderOption {
	return func(a *animatableObject) {
		a.syncTime = clock
	}
}

// WithTransform is an option builder that sets the initial world transform of the object.
//
// Parameters:
//   - m: the world transform
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the transform option to an object
func WithTransform(m mgl32.Mat4) AnimatorBuilderOption {
	return func(a *animatableObject) {
		a.transform = m
	}
}

// WithProfiler is an option builder that reports every hierarchy evaluation to a profiler.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the profiler option to an object
func WithProfiler(p *profiler.Profiler) AnimatorBuilderOption {
	return func(a *animatableObject) {
		a.profiler = p
	}
}
