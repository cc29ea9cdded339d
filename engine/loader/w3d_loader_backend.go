package loader

import (
	"bufio"
	"io"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// w3dLoaderBackendImpl is the implementation of w3dLoaderBackend.
type w3dLoaderBackendImpl struct{}

// w3dLoaderBackend is a loaderBackend implementation for W3D chunk files.
// It delegates to the htree and clip chunk loaders.
type w3dLoaderBackend interface {
	loaderBackend
}

var _ w3dLoaderBackend = &w3dLoaderBackendImpl{}

// newW3DLoaderBackend creates a new W3D loader backend.
//
// Returns:
//   - w3dLoaderBackend: the loader backend for W3D files
func newW3DLoaderBackend() w3dLoaderBackend {
	return &w3dLoaderBackendImpl{}
}

func (b *w3dLoaderBackendImpl) Extension() string {
	return ".w3d"
}

func (b *w3dLoaderBackendImpl) Split(_ string, r io.Reader) ([]w3d.RawChunk, error) {
	cr := w3d.NewChunkReader(bufio.NewReader(r))
	var chunks []w3d.RawChunk
	for {
		ok, err := cr.OpenChunk()
		if err != nil {
			return nil, err
		}
		if !ok {
			return chunks, nil
		}
		if b.Kind(cr.ID()) != assetUnknown {
			raw, err := w3d.ReadRawChunk(cr)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, raw)
		}
		if err := cr.CloseChunk(); err != nil {
			return nil, err
		}
	}
}

func (b *w3dLoaderBackendImpl) Kind(id uint32) assetKind {
	switch {
	case id == w3d.ChunkHierarchy:
		return assetHTree
	case id == w3d.ChunkMorphAnimation:
		return assetMorphClip
	case clip.IsClipChunk(id):
		return assetClip
	default:
		return assetUnknown
	}
}

func (b *w3dLoaderBackendImpl) DecodeHTree(c w3d.RawChunk) (htree.HTree, error) {
	r, err := c.Open()
	if err != nil {
		return nil, err
	}
	return htree.Load(r)
}

func (b *w3dLoaderBackendImpl) DecodeClip(c w3d.RawChunk, pivots clip.PivotCounter, poses clip.Resolver) (clip.Clip, error) {
	r, err := c.Open()
	if err != nil {
		return nil, err
	}
	return clip.Load(r, pivots, poses)
}
