package loader

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/channel"
	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfDefaultFrameRate is the rate glTF animations are resampled at when none is configured.
const gltfDefaultFrameRate = 30

// gltfTrack is one sampler's keys reduced to a value per time.
type gltfTrack[T any] struct {
	times  []float32
	values []T
	step   bool
}

// sample evaluates the track at time, holding the first and last keys outside their range.
func (t *gltfTrack[T]) sample(time float32, lerp func(a, b T, r float32) T) T {
	n := len(t.times)
	if time <= t.times[0] {
		return t.values[0]
	}
	if time >= t.times[n-1] {
		return t.values[n-1]
	}
	i := sort.Search(n, func(i int) bool { return t.times[i] > time }) - 1
	span := t.times[i+1] - t.times[i]
	if t.step || span <= 0 {
		return t.values[i]
	}
	return lerp(t.values[i], t.values[i+1], (time-t.times[i])/span)
}

func (t *gltfTrack[T]) end() float32 {
	return t.times[len(t.times)-1]
}

// gltfJointTracks holds the animated properties of one joint.
type gltfJointTracks struct {
	translation *gltfTrack[mgl32.Vec3]
	rotation    *gltfTrack[mgl32.Quat]
}

// gltfAnimationExtractorImpl is the implementation of the gltfAnimationExtractor interface.
type gltfAnimationExtractorImpl struct {
	parser    gltfParser
	frameRate float32
}

// gltfAnimationExtractor resamples glTF animations into raw clips for a converted skeleton.
//
// glTF keys hold absolute local transforms while a pivot applies its animation after its rest transform,
// so every sample is re-expressed relative to the joint's rest pose before it is stored.
type gltfAnimationExtractor interface {
	// ExtractClips converts every animation that targets at least one joint of the skeleton.
	//
	// Parameters:
	//   - sk: the skeleton converted from the skin
	//
	// Returns:
	//   - []clip.Clip: one raw clip per relevant animation, named "<hierarchy>.<animation>"
	//   - error: error if a sampler or accessor is malformed
	ExtractClips(sk *gltfSkeleton) ([]clip.Clip, error)
}

var _ gltfAnimationExtractor = &gltfAnimationExtractorImpl{}

// newGLTFAnimationExtractor creates a new animation extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - frameRate: the resampling rate in frames per second
//
// Returns:
//   - gltfAnimationExtractor: the animation extractor
func newGLTFAnimationExtractor(parser gltfParser, frameRate float32) gltfAnimationExtractor {
	return &gltfAnimationExtractorImpl{parser: parser, frameRate: frameRate}
}

func (e *gltfAnimationExtractorImpl) ExtractClips(sk *gltfSkeleton) ([]clip.Clip, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}

	var clips []clip.Clip
	for animIdx := range doc.Animations {
		tracks, err := e.readTracks(animIdx, sk)
		if err != nil {
			return nil, err
		}
		if len(tracks) == 0 {
			continue
		}
		c, err := e.buildClip(animIdx, sk, tracks)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, nil
}

// readTracks gathers the translation and rotation tracks of an animation keyed by pivot.
func (e *gltfAnimationExtractorImpl) readTracks(animIdx int, sk *gltfSkeleton) (map[int]*gltfJointTracks, error) {
	anim := &e.parser.Document().Animations[animIdx]
	tracks := make(map[int]*gltfJointTracks)

	for i := range anim.Channels {
		ch := &anim.Channels[i]
		if ch.Target.Node == nil {
			continue
		}
		pivot, ok := sk.pivots[*ch.Target.Node]
		if !ok {
			continue
		}
		if ch.Sampler < 0 || ch.Sampler >= len(anim.Samplers) {
			return nil, fmt.Errorf("animation %q channel %d: invalid sampler index %d", anim.Name, i, ch.Sampler)
		}
		sampler := &anim.Samplers[ch.Sampler]

		jt := tracks[pivot]
		if jt == nil {
			jt = &gltfJointTracks{}
		}

		var err error
		switch ch.Target.Path {
		case gltfAnimPathTranslation:
			jt.translation, err = readGLTFTrack(e.parser, sampler, e.parser.ReadVec3s)
		case gltfAnimPathRotation:
			jt.rotation, err = readGLTFTrack(e.parser, sampler, e.parser.ReadQuats)
		case gltfAnimPathScale:
			log.Printf("[Loader] Animation %q: skipping scale channel on node %d", anim.Name, *ch.Target.Node)
			continue
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d: %w", anim.Name, i, err)
		}
		tracks[pivot] = jt
	}
	return tracks, nil
}

// readGLTFTrack reads a sampler's keys. Cubic spline samplers keep only their key values, dropping the
// tangents, and are then treated as linear.
func readGLTFTrack[T any](p gltfParser, sampler *gltfAnimSampler, read func(int) ([]T, error)) (*gltfTrack[T], error) {
	times, err := p.ReadScalars(sampler.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to read key times: %w", err)
	}
	values, err := read(sampler.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to read key values: %w", err)
	}

	track := &gltfTrack[T]{times: times}
	switch sampler.Interpolation {
	case gltfAnimInterpolationCubicSpline:
		if len(values) < len(times)*3 {
			return nil, fmt.Errorf("cubic spline sampler has %d values for %d keys", len(values), len(times))
		}
		track.values = make([]T, len(times))
		for i := range times {
			track.values[i] = values[i*3+1]
		}
	case gltfAnimInterpolationStep:
		track.step = true
		track.values = values
	case "", gltfAnimInterpolationLinear:
		track.values = values
	default:
		return nil, fmt.Errorf("unknown interpolation %q", sampler.Interpolation)
	}

	if len(track.times) == 0 || len(track.values) < len(track.times) {
		return nil, fmt.Errorf("sampler has %d keys and %d values", len(times), len(track.values))
	}
	return track, nil
}

// buildClip resamples the tracks at the extractor frame rate into dense raw channels.
func (e *gltfAnimationExtractorImpl) buildClip(animIdx int, sk *gltfSkeleton, tracks map[int]*gltfJointTracks) (clip.Clip, error) {
	anim := &e.parser.Document().Animations[animIdx]
	name := anim.Name
	if name == "" {
		name = fmt.Sprintf("ANIM_%d", animIdx)
	}

	var duration float32
	for _, jt := range tracks {
		if jt.translation != nil {
			duration = max(duration, jt.translation.end())
		}
		if jt.rotation != nil {
			duration = max(duration, jt.rotation.end())
		}
	}
	numFrames := int(math.Round(float64(duration*e.frameRate))) + 1

	pivots := make([]int, 0, len(tracks))
	for p := range tracks {
		pivots = append(pivots, p)
	}
	sort.Ints(pivots)

	var channels []channel.Motion
	for _, p := range pivots {
		jt := tracks[p]
		rest := sk.rest[p]
		invRest := rest.rotation.Inverse()

		var xs, ys, zs, qs []float32
		for f := 0; f < numFrames; f++ {
			t := float32(f) / e.frameRate
			if jt.translation != nil {
				local := invRest.Rotate(jt.translation.sample(t, lerpVec3Key).Sub(rest.translation))
				xs = append(xs, local[0])
				ys = append(ys, local[1])
				zs = append(zs, local[2])
			}
			if jt.rotation != nil {
				q := invRest.Mul(jt.rotation.sample(t, slerpQuatKey)).Normalize()
				qs = append(qs, q.V[0], q.V[1], q.V[2], q.W)
			}
		}

		if jt.translation != nil {
			for _, c := range []struct {
				typ    w3d.ChannelType
				values []float32
			}{{w3d.ChannelX, xs}, {w3d.ChannelY, ys}, {w3d.ChannelZ, zs}} {
				ch, err := channel.NewRawChannel(p, c.typ, 1, 0, c.values)
				if err != nil {
					return nil, fmt.Errorf("animation %q: %w", name, err)
				}
				channels = append(channels, ch)
			}
		}
		if jt.rotation != nil {
			ch, err := channel.NewRawChannel(p, w3d.ChannelQ, 4, 0, qs)
			if err != nil {
				return nil, fmt.Errorf("animation %q: %w", name, err)
			}
			channels = append(channels, ch)
		}
	}

	return clip.NewRawClip(sk.tree.Name(), name, sk.tree.NumPivots(),
		clip.WithNumFrames(numFrames),
		clip.WithFrameRate(e.frameRate),
		clip.WithMotionChannels(channels...),
	)
}

func lerpVec3Key(a, b mgl32.Vec3, r float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(r))
}

// slerpQuatKey interpolates along the shorter arc.
func slerpQuatKey(a, b mgl32.Quat, r float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl32.QuatSlerp(a, b, r)
}
