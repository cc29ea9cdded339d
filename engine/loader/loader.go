// package loader contains the asset manager: it decodes W3D files into hierarchies and clips, caches them by
// case-insensitive name and resolves names for clips that reference other assets.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/htree"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
)

// ErrDuplicateAsset is returned when an asset with the same name is already cached.
var ErrDuplicateAsset = errors.New("loader: asset already loaded")

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	backend     loaderBackend
	pool        worker.DynamicWorkerPool
	workerCount int
	assetDir    string
	frameRate   float32

	trees   map[string]htree.HTree
	clips   map[string]clip.Clip
	missing map[string]struct{}
	loading map[string]struct{}
}

// Loader defines the public-facing interface for loading and caching hierarchies and animations.
// It abstracts the file format behind a generic backend and resolves the names clips refer to:
// hierarchies by name for their pivot counts and other clips for morph poses.
//
// When an asset directory is configured, lookups that miss the cache load "<anim><ext>" (for clips named
// "<hierarchy>.<anim>") or "<hierarchy><ext>" from that directory or its parent, where ext is ".w3d" or
// ".gltf" depending on the backend. Clips that still cannot be
// found are remembered as missing so the files are not searched again until ResetMissing.
type Loader interface {
	// LoadFile decodes every hierarchy and animation in a file and caches them.
	//
	// Parameters:
	//   - path: the file path
	//
	// Returns:
	//   - error: error if the file cannot be read or an asset fails to decode
	LoadFile(path string) error

	// LoadFiles decodes several files in parallel on the worker pool. Every hierarchy is cached before any
	// animation is decoded, and morph animations are decoded last so they can refer to poses in any of
	// the files. Assets that decode are cached even when others fail.
	//
	// Parameters:
	//   - paths: the file paths
	//
	// Returns:
	//   - error: the joined errors of every file or asset that failed
	LoadFiles(paths ...string) error

	// LoadReader decodes every hierarchy and animation in a stream and caches them.
	//
	// Parameters:
	//   - name: identifies the stream in log lines and errors
	//   - r: the stream
	//
	// Returns:
	//   - error: error if the stream is malformed or an asset fails to decode
	LoadReader(name string, r io.Reader) error

	// HTree returns a cached hierarchy by name, ignoring case. The hierarchy is shared; clone it before
	// posing or capturing bones.
	//
	// Parameters:
	//   - name: the hierarchy name
	//
	// Returns:
	//   - htree.HTree: the hierarchy
	//   - bool: false if it is neither cached nor loadable on demand
	HTree(name string) (htree.HTree, bool)

	// Clip returns a cached clip by its full name, ignoring case.
	//
	// Parameters:
	//   - name: the clip name, "<hierarchy>.<anim>"
	//
	// Returns:
	//   - clip.Clip: the clip
	//   - bool: false if it is neither cached nor loadable on demand
	Clip(name string) (clip.Clip, bool)

	// PivotCount returns the pivot count of a hierarchy, loading it on demand when possible.
	PivotCount(hierName string) (int, bool)

	// AddHTree caches a hierarchy built in memory.
	//
	// Returns:
	//   - error: ErrDuplicateAsset if a hierarchy with the same name is cached
	AddHTree(tree htree.HTree) error

	// AddClip caches a clip built in memory and forgets it as missing.
	//
	// Returns:
	//   - error: ErrDuplicateAsset if a clip with the same name is cached
	AddClip(c clip.Clip) error

	// RegisterMissing remembers a clip name as not loadable.
	RegisterMissing(name string)

	// IsMissing reports whether a clip name is remembered as not loadable.
	IsMissing(name string) bool

	// ResetMissing forgets every missing clip name.
	ResetMissing()

	// FreeAllClips drops every cached clip. Clips still referenced elsewhere stay alive.
	FreeAllClips()

	// FreeAllHTrees drops every cached hierarchy.
	FreeAllHTrees()

	// Clips returns the cached clips keyed by their names.
	Clips() map[string]clip.Clip

	// HTrees returns the cached hierarchies keyed by their names.
	HTrees() map[string]htree.HTree

	// Close stops the worker pool. The caches stay readable.
	Close()
}

var (
	_ Loader            = &loader{}
	_ clip.PivotCounter = &loader{}
	_ clip.Resolver     = &loader{}
)

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeW3D, BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:          sync.RWMutex{},
		workerCount: runtime.NumCPU(),
		frameRate:   gltfDefaultFrameRate,
		trees:       make(map[string]htree.HTree),
		clips:       make(map[string]clip.Clip),
		missing:     make(map[string]struct{}),
		loading:     make(map[string]struct{}),
	}

	for _, option := range options {
		option(l)
	}

	switch backendType {
	case BackendTypeW3D:
		l.backend = newW3DLoaderBackend()
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend(l.frameRate)
	}

	// Queue size of 256 covers a typical asset directory without blocking submitters.
	l.pool = worker.NewDynamicWorkerPool(l.workerCount, 256, 1*time.Second)
	return l
}

// source is a named stream of assets.
type source struct {
	name string
	open func() (io.ReadCloser, error)
}

func fileSource(path string) source {
	return source{
		name: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// pendingChunk is a captured chunk waiting for its decode phase.
type pendingChunk struct {
	source string
	chunk  w3d.RawChunk
}

// errorList collects errors from concurrent tasks.
type errorList struct {
	mu   sync.Mutex
	errs []error
}

func (e *errorList) add(err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func (e *errorList) join() error {
	return errors.Join(e.errs...)
}

func (l *loader) LoadFile(path string) error {
	return l.load([]source{fileSource(path)}, false)
}

func (l *loader) LoadFiles(paths ...string) error {
	sources := make([]source, len(paths))
	for i, p := range paths {
		sources[i] = fileSource(p)
	}
	return l.load(sources, true)
}

func (l *loader) LoadReader(name string, r io.Reader) error {
	return l.load([]source{{name: name, open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil }}}, false)
}

// load splits every source into chunks and decodes them phase by phase: hierarchies, then raw and
// compressed clips, then morph clips serially.
func (l *loader) load(sources []source, parallel bool) error {
	var errs errorList

	split := make([][]w3d.RawChunk, len(sources))
	l.run(parallel, len(sources), func(i int) {
		chunks, err := l.split(sources[i])
		if err != nil {
			errs.add(err)
			return
		}
		split[i] = chunks
	})

	var trees, clips, morphs []pendingChunk
	for i, chunks := range split {
		for _, c := range chunks {
			p := pendingChunk{source: sources[i].name, chunk: c}
			switch l.backend.Kind(c.ID) {
			case assetHTree:
				trees = append(trees, p)
			case assetClip:
				clips = append(clips, p)
			case assetMorphClip:
				morphs = append(morphs, p)
			}
		}
	}

	l.run(parallel, len(trees), func(i int) {
		tree, err := l.backend.DecodeHTree(trees[i].chunk)
		if err != nil {
			errs.add(fmt.Errorf("failed to decode hierarchy in %s: %w", trees[i].source, err))
			return
		}
		if err := l.AddHTree(tree); err != nil {
			log.Printf("[Loader] Skipping hierarchy %s in %s: %v", tree.Name(), trees[i].source, err)
		}
	})
	decodeClip := func(p pendingChunk) {
		c, err := l.backend.DecodeClip(p.chunk, l, l)
		if err != nil {
			errs.add(fmt.Errorf("failed to decode animation in %s: %w", p.source, err))
			return
		}
		if err := l.AddClip(c); err != nil {
			log.Printf("[Loader] Skipping animation %s in %s: %v", c.Name(), p.source, err)
		}
	}
	l.run(parallel, len(clips), func(i int) { decodeClip(clips[i]) })
	l.run(false, len(morphs), func(i int) { decodeClip(morphs[i]) })

	return errs.join()
}

// split opens a source and captures its decodable chunks.
func (l *loader) split(s source) ([]w3d.RawChunk, error) {
	rc, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.name, err)
	}
	defer rc.Close()

	chunks, err := l.backend.Split(s.name, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.name, err)
	}
	return chunks, nil
}

// run calls fn for every index in [0, n). In parallel mode each call is a task on the worker pool and a
// WaitGroup provides the barrier, since pool.Wait() only returns once the workers go idle.
func (l *loader) run(parallel bool, n int, fn func(i int)) {
	if !parallel || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		id := i
		l.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				fn(id)
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// loadOnDemand loads fileName from the asset directory, falling back to its parent. Files already being
// loaded on demand are skipped so a file that refers to itself cannot recurse.
func (l *loader) loadOnDemand(fileName string) {
	l.mu.Lock()
	dir := l.assetDir
	if _, busy := l.loading[common.FoldName(fileName)]; dir == "" || busy {
		l.mu.Unlock()
		return
	}
	l.loading[common.FoldName(fileName)] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.loading, common.FoldName(fileName))
		l.mu.Unlock()
	}()

	path := filepath.Join(dir, fileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		path = filepath.Join(dir, "..", fileName)
		if _, err := os.Stat(path); err != nil {
			return
		}
	}
	if err := l.load([]source{fileSource(path)}, false); err != nil {
		log.Printf("[Loader] Failed to load %s on demand: %v", path, err)
	}
}

func (l *loader) HTree(name string) (htree.HTree, bool) {
	key := common.FoldName(name)
	l.mu.RLock()
	tree, ok := l.trees[key]
	l.mu.RUnlock()
	if ok {
		return tree, true
	}

	l.loadOnDemand(name + l.backend.Extension())

	l.mu.RLock()
	defer l.mu.RUnlock()
	tree, ok = l.trees[key]
	return tree, ok
}

func (l *loader) Clip(name string) (clip.Clip, bool) {
	key := common.FoldName(name)
	l.mu.RLock()
	c, ok := l.clips[key]
	_, missing := l.missing[key]
	onDemand := l.assetDir != ""
	l.mu.RUnlock()
	if ok || missing || !onDemand {
		return c, ok
	}

	_, anim, found := strings.Cut(name, ".")
	if !found {
		log.Printf("[Loader] Animation %s has no . in the name", name)
		return nil, false
	}
	l.loadOnDemand(anim + l.backend.Extension())

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.clips[key]; !ok {
		l.missing[key] = struct{}{}
		log.Printf("[Loader] Animation %s is missing", name)
	}
	return c, ok
}

func (l *loader) PivotCount(hierName string) (int, bool) {
	tree, ok := l.HTree(hierName)
	if !ok {
		return 0, false
	}
	return tree.NumPivots(), true
}

func (l *loader) AddHTree(tree htree.HTree) error {
	key := common.FoldName(tree.Name())
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.trees[key]; ok {
		return fmt.Errorf("hierarchy %s: %w", tree.Name(), ErrDuplicateAsset)
	}
	l.trees[key] = tree
	return nil
}

func (l *loader) AddClip(c clip.Clip) error {
	key := common.FoldName(c.Name())
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.clips[key]; ok {
		return fmt.Errorf("animation %s: %w", c.Name(), ErrDuplicateAsset)
	}
	l.clips[key] = c
	delete(l.missing, key)
	return nil
}

func (l *loader) RegisterMissing(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.missing[common.FoldName(name)] = struct{}{}
}

func (l *loader) IsMissing(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.missing[common.FoldName(name)]
	return ok
}

func (l *loader) ResetMissing() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.missing)
}

func (l *loader) FreeAllClips() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.clips)
}

func (l *loader) FreeAllHTrees() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.trees)
}

func (l *loader) Clips() map[string]clip.Clip {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]clip.Clip, len(l.clips))
	for _, c := range l.clips {
		result[c.Name()] = c
	}
	return result
}

func (l *loader) HTrees() map[string]htree.HTree {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]htree.HTree, len(l.trees))
	for _, t := range l.trees {
		result[t.Name()] = t
	}
	return result
}

func (l *loader) Close() {
	l.pool.Stop()
}
