package loader

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct {
	w3dLoaderBackend
	frameRate float32
}

// gltfLoaderBackend is a loaderBackend implementation for glTF/GLB files.
// Split converts every skin into a hierarchy chunk and every animation targeting it into a raw animation
// chunk, so decoding is shared with the W3D backend.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Parameters:
//   - frameRate: the rate animations are resampled at
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend(frameRate float32) gltfLoaderBackend {
	return &gltfLoaderBackendImpl{
		w3dLoaderBackend: newW3DLoaderBackend(),
		frameRate:        frameRate,
	}
}

func (b *gltfLoaderBackendImpl) Extension() string {
	return ".gltf"
}

func (b *gltfLoaderBackendImpl) Split(name string, r io.Reader) ([]w3d.RawChunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	parser := newGLTFParser()
	if err := parser.Parse(data, filepath.Dir(name)); err != nil {
		return nil, err
	}
	skeletons := newGLTFSkeletonExtractor(parser)
	animations := newGLTFAnimationExtractor(parser, b.frameRate)

	var buf bytes.Buffer
	cw := w3d.NewChunkWriter(&buf)
	for i := range parser.Document().Skins {
		sk, err := skeletons.ExtractSkeleton(i)
		if err != nil {
			return nil, err
		}
		clips, err := animations.ExtractClips(sk)
		if err != nil {
			return nil, fmt.Errorf("skin %s: %w", sk.tree.Name(), err)
		}

		if err := sk.tree.Save(cw); err != nil {
			return nil, err
		}
		for _, c := range clips {
			if err := c.Save(cw); err != nil {
				return nil, err
			}
		}
	}
	return b.w3dLoaderBackend.Split(name, &buf)
}
