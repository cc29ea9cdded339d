package loader

import (
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithWorkerCount is an option builder that sets how many files and chunks LoadFiles decodes at once.
//
// Parameters:
//   - n: the worker count; values below 1 use a single worker
//
// Returns:
//   - LoaderBuilderOption: a function that applies the worker count option to a loader
func WithWorkerCount(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.workerCount = max(n, 1)
	}
}

// WithAssetDir is an option builder that enables on-demand loading from a directory.
//
// Parameters:
//   - dir: the directory searched (then its parent) for asset files on cache misses
//
// Returns:
//   - LoaderBuilderOption: a function that applies the asset directory option to a loader
func WithAssetDir(dir string) LoaderBuilderOption {
	return func(l *loader) {
		l.assetDir = dir
	}
}

// WithFrameRate is an option builder that sets the rate glTF animations are resampled at. It has no effect
// on W3D files, whose clips carry their own rate.
//
// Parameters:
//   - fps: frames per second; values <= 0 keep the default of 30
//
// Returns:
//   - LoaderBuilderOption: a function that applies the frame rate option to a loader
func WithFrameRate(fps float32) LoaderBuilderOption {
	return func(l *loader) {
		if fps > 0 {
			l.frameRate = fps
		}
	}
}

// WithHTree is an option builder that pre-populates the hierarchy cache.
//
// Parameters:
//   - tree: the hierarchy to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the hierarchy option to a loader
func WithHTree(tree htree.HTree) LoaderBuilderOption {
	return func(l *loader) {
		l.trees[common.FoldName(tree.Name())] = tree
	}
}

// WithClip is an option builder that pre-populates the clip cache.
//
// Parameters:
//   - c: the clip to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the clip option to a loader
func WithClip(c clip.Clip) LoaderBuilderOption {
	return func(l *loader) {
		l.clips[common.FoldName(c.Name())] = c
	}
}
