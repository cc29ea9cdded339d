package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// LoaderBackendType identifies the asset file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeW3D selects the W3D chunk file backend.
	BackendTypeW3D LoaderBackendType = iota
	// BackendTypeGLTF selects the glTF/GLB backend, which imports skins and their animations.
	BackendTypeGLTF
)

// assetKind groups top-level chunks by the decode phase that handles them.
type assetKind int

const (
	// assetUnknown chunks (meshes, emitters, aggregates) are skipped.
	assetUnknown assetKind = iota
	// assetHTree chunks are decoded first so clips can resolve their hierarchies.
	assetHTree
	// assetClip chunks are raw and compressed animations.
	assetClip
	// assetMorphClip chunks are decoded last and one at a time because they resolve other clips.
	assetMorphClip
)

// loaderBackend defines the generic interface for splitting and decoding asset streams.
// Concrete implementations (e.g., w3dLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Extension returns the file extension tried by on-demand loads, including the dot.
	Extension() string

	// Split reads every top-level chunk this backend can decode into memory and skips the rest.
	//
	// Parameters:
	//   - name: the file path or stream name; relative references resolve against its directory
	//   - r: the stream to read
	//
	// Returns:
	//   - []w3d.RawChunk: the captured chunks in stream order
	//   - error: error if the stream is malformed
	Split(name string, r io.Reader) ([]w3d.RawChunk, error)

	// Kind returns the decode phase of a top-level chunk.
	//
	// Parameters:
	//   - id: the chunk identifier
	//
	// Returns:
	//   - assetKind: the phase, assetUnknown for chunks the backend ignores
	Kind(id uint32) assetKind

	// DecodeHTree decodes a hierarchy chunk.
	//
	// Parameters:
	//   - c: the captured chunk
	//
	// Returns:
	//   - htree.HTree: the hierarchy
	//   - error: error if the chunk is malformed
	DecodeHTree(c w3d.RawChunk) (htree.HTree, error)

	// DecodeClip decodes an animation chunk of any variant.
	//
	// Parameters:
	//   - c: the captured chunk
	//   - pivots: resolves hierarchy pivot counts
	//   - poses: resolves the pose clips of morph animations
	//
	// Returns:
	//   - clip.Clip: the clip
	//   - error: error if the chunk is malformed or a reference cannot be resolved
	DecodeClip(c w3d.RawChunk, pivots clip.PivotCounter, poses clip.Resolver) (clip.Clip, error)
}
