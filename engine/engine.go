package engine

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-anim/engine/animator"
	"github.com/Carmen-Shannon/oxy-anim/engine/profiler"
)

// engine implements the Engine interface.
type engine struct {
	mu sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)

	// clock is the simulated time handed to objects through Clock.
	clock time.Duration

	objects map[int]animator.AnimatableObject
}

// Engine drives a set of animatable objects from a fixed-rate tick loop.
// Every tick advances a simulated clock, runs the tick callback, then updates the objects in ascending
// key order so their hierarchies hold the pose for the new time.
type Engine interface {
	// EnableProfiler enables update-rate profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables update-rate profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick before the objects update.
	// Use this for game logic that changes animation states or bone captures.
	//
	// Parameters:
	//   - callback: function receiving the tick delta in seconds
	SetTickCallback(callback func(deltaTime float32))

	// Clock returns the simulated time source. Pass it to animator.WithSyncClock so objects advance with
	// the engine rather than the wall clock.
	//
	// Returns:
	//   - func() time.Duration: the simulated time since the engine was created
	Clock() func() time.Duration

	// AddObject registers an object at the given key, replacing any object already there.
	//
	// Parameters:
	//   - key: determines update order (lower updates first)
	//   - obj: the object to update every tick
	AddObject(key int, obj animator.AnimatableObject)

	// RemoveObject removes the object at the given key.
	RemoveObject(key int)

	// Object retrieves the object registered at the given key, nil if none.
	Object(key int) animator.AnimatableObject

	// Objects returns a copy of all registered objects keyed by update order.
	Objects() map[int]animator.AnimatableObject

	// Tick advances the clock by dt and updates every object once. Run calls it from its loop; tests and
	// offline tools call it directly for deterministic stepping.
	//
	// Parameters:
	//   - dt: the simulated time step
	Tick(dt time.Duration)

	// Run starts the tick loop and blocks until Quit is called.
	Run()

	// Quit signals the tick loop to stop. Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, objects)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		objects:          make(map[int]animator.AnimatableObject),
		running:          false,
		wg:               sync.WaitGroup{},
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}

	return e
}

func (e *engine) Clock() func() time.Duration {
	return func() time.Duration {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.clock
	}
}

func (e *engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.handle()
	e.wg.Wait()
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.quitChannel)
	})
}

// handle launches the tick and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate tick loop in its own goroutine.
// Ticks with the measured delta and listens for dynamic rate changes via tickRateChannel.
// Recovers from panics in callbacks or updates and signals quit on recovery.
func (e *engine) handleEngine() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] tick goroutine recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	e.mu.Lock()
	rate := e.engineTickRate
	e.mu.Unlock()

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := now.Sub(lastTick)
			lastTick = now
			e.Tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) Tick(dt time.Duration) {
	e.mu.Lock()
	e.clock += dt
	callback := e.tickCallback
	e.mu.Unlock()

	if callback != nil {
		callback(float32(dt.Seconds()))
	}

	// Objects are updated one at a time: clips cache decode state and may be shared between objects.
	pivots := 0
	for _, obj := range e.sortedObjects() {
		obj.Update()
		pivots += obj.NumBones()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profilingEnabled {
		e.profiler.Tick(pivots)
	}
}

// sortedObjects snapshots the objects in ascending key order.
func (e *engine) sortedObjects() []animator.AnimatableObject {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]int, 0, len(e.objects))
	for k := range e.objects {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	objs := make([]animator.AnimatableObject, len(keys))
	for i, k := range keys {
		objs[i] = e.objects[k]
	}
	return objs
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) AddObject(key int, obj animator.AnimatableObject) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects[key] = obj
}

func (e *engine) RemoveObject(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.objects, key)
}

func (e *engine) Object(key int) animator.AnimatableObject {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.objects[key]
}

func (e *engine) Objects() map[int]animator.AnimatableObject {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(map[int]animator.AnimatableObject, len(e.objects))
	for k, v := range e.objects {
		cp[k] = v
	}
	return cp
}
