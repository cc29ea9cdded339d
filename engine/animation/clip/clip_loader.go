package clip

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// IsClipChunk reports whether id is the top-level chunk of any clip variant.
func IsClipChunk(id uint32) bool {
	switch id {
	case w3d.ChunkAnimation, w3d.ChunkCompressedAnimation, w3d.ChunkMorphAnimation:
		return true
	}
	return false
}

// Load reads whichever clip variant the open chunk holds.
//
// Parameters:
//   - r: the chunk reader with a clip chunk open
//   - pivots: resolves the pivot count of the clip's hierarchy
//   - poses: resolves morph pose clips; may be nil when no morph clips are expected
//
// Returns:
//   - Clip: the loaded clip
//   - error: error if the chunk is not a clip chunk or fails to load
func Load(r w3d.ChunkReader, pivots PivotCounter, poses Resolver) (Clip, error) {
	switch r.ID() {
	case w3d.ChunkAnimation:
		return LoadRawClip(r, pivots)
	case w3d.ChunkCompressedAnimation:
		return LoadCompressedClip(r, pivots)
	case w3d.ChunkMorphAnimation:
		if poses == nil {
			return nil, fmt.Errorf("morph animation without a pose resolver: %w", ErrPoseNotFound)
		}
		return LoadMorphClip(r, pivots, poses)
	default:
		return nil, fmt.Errorf("chunk 0x%x: %w", r.ID(), w3d.ErrUnexpectedChunk)
	}
}
