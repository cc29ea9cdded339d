// package clip contains the animation clip family: named sources of per-pivot motion for one hierarchy.
// A clip is one of three variants (raw per-frame channels, compressed channels, or a morph sequence over
// other clips). Clips are shared between animated objects and are read-only apart from the decode caches
// of their channels, so a single clip must not be evaluated from two goroutines at once.
package clip

import (
	"errors"
	"log"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// Variant identifies the storage form of a Clip.
type Variant int

const (
	// VariantRaw clips store dense per-frame channels.
	VariantRaw Variant = iota
	// VariantCompressed clips store time-coded or adaptive-delta channels.
	VariantCompressed
	// VariantMorph clips map their frames onto frames of other clips.
	VariantMorph
)

// String returns a readable name for the variant.
func (v Variant) String() string {
	switch v {
	case VariantRaw:
		return "raw"
	case VariantCompressed:
		return "compressed"
	case VariantMorph:
		return "morph"
	default:
		return "unknown"
	}
}

// Common errors returned by the clip loaders and constructors.
var (
	ErrHierarchyNotFound = errors.New("clip: hierarchy not found")
	ErrPoseNotFound      = errors.New("clip: morph pose animation not found")
	ErrUnknownFlavor     = errors.New("clip: unknown compressed flavor")
	ErrNoFrames          = errors.New("clip: animation has no frames")
	errMissingHeader     = errors.New("clip: animation header chunk missing")
)

// Clip is a named source of motion for the pivots of one hierarchy.
//
// Queries never fail: pivots outside the clip, or pivots without channels, yield the identity translation,
// identity orientation and visible.
type Clip interface {
	// Name returns the clip name, "<hierarchy>.<animation>".
	Name() string

	// HierarchyName returns the name of the hierarchy the clip animates.
	HierarchyName() string

	// NumFrames returns the number of frames in the clip (at least 1).
	NumFrames() int

	// FrameRate returns the playback rate in frames per second.
	FrameRate() float32

	// TotalTime returns the playback length in seconds.
	TotalTime() float32

	// NumPivots returns the number of pivots the clip has data slots for.
	NumPivots() int

	// Translation returns the translation of a pivot at a frame.
	//
	// Parameters:
	//   - pivot: the pivot index
	//   - frame: the (possibly fractional) frame
	//
	// Returns:
	//   - mgl32.Vec3: the translation relative to the pivot's base transform
	Translation(pivot int, frame float32) mgl32.Vec3

	// Orientation returns the rotation of a pivot at a frame.
	//
	// Parameters:
	//   - pivot: the pivot index
	//   - frame: the (possibly fractional) frame
	//
	// Returns:
	//   - mgl32.Quat: the rotation relative to the pivot's base transform
	Orientation(pivot int, frame float32) mgl32.Quat

	// Transform returns translate(Translation) * rotate(Orientation) for a pivot at a frame.
	//
	// Parameters:
	//   - pivot: the pivot index
	//   - frame: the (possibly fractional) frame
	//
	// Returns:
	//   - mgl32.Mat4: the relative transform
	Transform(pivot int, frame float32) mgl32.Mat4

	// Visibility returns whether a pivot is visible at a frame.
	//
	// Parameters:
	//   - pivot: the pivot index
	//   - frame: the (possibly fractional) frame
	//
	// Returns:
	//   - bool: true if visible
	Visibility(pivot int, frame float32) bool

	// IsNodeMotionPresent reports whether the clip carries any channel for a pivot.
	//
	// Parameters:
	//   - pivot: the pivot index
	//
	// Returns:
	//   - bool: true if any motion or visibility channel exists for the pivot
	IsNodeMotionPresent(pivot int) bool

	// Variant returns the storage form of the clip.
	Variant() Variant

	// Save writes the clip as one W3D animation chunk of its variant.
	//
	// Parameters:
	//   - w: the chunk writer
	//
	// Returns:
	//   - error: error if any chunk cannot be encoded
	Save(w w3d.ChunkWriter) error
}

// PivotCounter resolves the pivot count of a hierarchy by name. Clip loaders use it to size their
// per-pivot tables and to reject channels that reference missing bones.
type PivotCounter interface {
	// PivotCount returns the number of pivots of the named hierarchy.
	//
	// Parameters:
	//   - hierName: the hierarchy name (case-insensitive)
	//
	// Returns:
	//   - int: the pivot count
	//   - bool: false if the hierarchy is unknown
	PivotCount(hierName string) (int, bool)
}

// Resolver resolves clips by name. Morph clips use it to find their pose animations.
type Resolver interface {
	// Clip returns the named clip.
	//
	// Parameters:
	//   - name: the clip name (case-insensitive)
	//
	// Returns:
	//   - Clip: the clip
	//   - bool: false if no such clip is known
	Clip(name string) (Clip, bool)
}

// PivotCountFunc adapts a function to the PivotCounter interface.
type PivotCountFunc func(hierName string) (int, bool)

func (f PivotCountFunc) PivotCount(hierName string) (int, bool) {
	return f(hierName)
}

// ResolverMap is a Resolver backed by a map keyed on folded clip names.
type ResolverMap map[string]Clip

// NewResolverMap indexes clips by folded name.
//
// Parameters:
//   - clips: the clips to index
//
// Returns:
//   - ResolverMap: the resolver
func NewResolverMap(clips ...Clip) ResolverMap {
	m := make(ResolverMap, len(clips))
	for _, c := range clips {
		m[common.FoldName(c.Name())] = c
	}
	return m
}

func (m ResolverMap) Clip(name string) (Clip, bool) {
	c, ok := m[common.FoldName(name)]
	return c, ok
}

// joinName builds the full clip name from the hierarchy and animation names.
func joinName(hierName, animName string) string {
	return hierName + "." + animName
}

// splitName returns the animation part of a full clip name.
func splitName(name, hierName string) string {
	if len(name) > len(hierName) && common.NamesEqual(name[:len(hierName)], hierName) && name[len(hierName)] == '.' {
		return name[len(hierName)+1:]
	}
	return name
}

// logDroppedChannel reports a channel that references a pivot the hierarchy does not have.
func logDroppedChannel(clipName string, pivot, numPivots int) {
	log.Printf("[Clip] animation %s indexes bone %d but the hierarchy has %d pivots, channel dropped", clipName, pivot, numPivots)
}
