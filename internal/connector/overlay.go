package connector

import (
	"sync"

	"github.com/starford/hiertree/internal/models"
)

// EventKind names a host event the overlay listens to.
type EventKind string

const (
	EventScroll EventKind = "scroll"
	EventResize EventKind = "resize"
)

// ResizeObserver reports size changes of the elements it observes.
type ResizeObserver interface {
	Observe(el Element)
	Disconnect()
}

// Host is the environment the overlay is mounted into: it creates resize
// observers and dispatches window-level scroll and resize events.
type Host interface {
	NewResizeObserver(cb func()) ResizeObserver
	AddListener(kind EventKind, capture bool, cb func()) (remove func())
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithGap sets the trunk offset. Values UsableGap rejects select DefaultGap.
func WithGap(gap float64) Option {
	return func(o *Overlay) { o.gap = gap }
}

// WithFrames sets the frame primitive used for coalescing.
func WithFrames(f Frames) Option {
	return func(o *Overlay) { o.frames = f }
}

// WithOnPaths registers a callback invoked after every pass with the
// freshly computed paths.
func WithOnPaths(fn func([]Path)) Option {
	return func(o *Overlay) { o.onPaths = fn }
}

// Overlay keeps the connector paths of one tree surface up to date.
type Overlay struct {
	registry *Registry
	gap      float64
	frames   Frames
	onPaths  func([]Path)
	sched    *Scheduler

	mu        sync.Mutex
	container Element
	nodes     []models.Node
	paths     []Path
	passes    int

	host     Host
	observer ResizeObserver
	removers []func()
}

// NewOverlay creates an overlay reading element positions from registry
// relative to container.
func NewOverlay(registry *Registry, container Element, opts ...Option) *Overlay {
	o := &Overlay{
		registry:  registry,
		container: container,
		gap:       DefaultGap,
	}
	for _, opt := range opts {
		opt(o)
	}
	if !UsableGap(o.gap) {
		o.gap = DefaultGap
	}
	o.sched = NewScheduler(o.frames, o.recompute)
	return o
}

// Gap returns the effective trunk offset.
func (o *Overlay) Gap() float64 { return o.gap }

// SetContainer replaces the container reference. A nil container turns
// passes into no-ops.
func (o *Overlay) SetContainer(el Element) {
	o.mu.Lock()
	o.container = el
	o.observeLocked()
	o.mu.Unlock()
	o.Invalidate()
}

// SetNodes replaces the node snapshot, re-observes the mounted elements and
// invalidates the overlay.
func (o *Overlay) SetNodes(nodes []models.Node) {
	o.mu.Lock()
	o.nodes = models.Clone(nodes)
	o.observeLocked()
	o.mu.Unlock()
	o.Invalidate()
}

// Mount subscribes to container and element resizes, captured scrolls and
// viewport resizes on host, then schedules a pass.
func (o *Overlay) Mount(host Host) {
	o.mu.Lock()
	o.unsubscribeLocked()
	o.host = host
	o.observeLocked()
	o.removers = append(o.removers,
		host.AddListener(EventScroll, true, o.Invalidate),
		host.AddListener(EventResize, false, o.Invalidate),
	)
	o.mu.Unlock()
	o.Invalidate()
}

// Resubscribe re-observes the current set of mounted elements. Hosts call
// it when cards mount or unmount without a structural tree change.
func (o *Overlay) Resubscribe() {
	o.mu.Lock()
	o.observeLocked()
	o.mu.Unlock()
}

// Unmount drops every subscription and any pending pass.
func (o *Overlay) Unmount() {
	o.mu.Lock()
	o.unsubscribeLocked()
	o.mu.Unlock()
	o.sched.Cancel()
}

// Close unmounts the overlay and stops its scheduler for good.
func (o *Overlay) Close() {
	o.Unmount()
	o.sched.Stop()
}

// Invalidate requests a pass on the next frame. Bursts within one frame
// collapse into a single pass.
func (o *Overlay) Invalidate() {
	o.sched.Request()
}

// Pending reports whether a pass is scheduled.
func (o *Overlay) Pending() bool {
	return o.sched.Pending()
}

// Paths returns a copy of the last computed paths.
func (o *Overlay) Paths() []Path {
	o.mu.Lock()
	defer o.mu.Unlock()
	return clonePaths(o.paths)
}

// Passes returns how many passes have run.
func (o *Overlay) Passes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.passes
}

// Recompute runs a pass immediately, bypassing the scheduler.
func (o *Overlay) Recompute() []Path {
	o.recompute()
	return o.Paths()
}

func (o *Overlay) recompute() {
	o.mu.Lock()
	if o.container == nil {
		o.mu.Unlock()
		return
	}
	paths := Compute(o.nodes, o.registry, o.container, o.gap)
	o.paths = paths
	o.passes++
	cb := o.onPaths
	o.mu.Unlock()

	if cb != nil {
		cb(clonePaths(paths))
	}
}

func (o *Overlay) observeLocked() {
	if o.host == nil {
		return
	}
	if o.observer != nil {
		o.observer.Disconnect()
	}
	o.observer = o.host.NewResizeObserver(o.Invalidate)
	if o.container != nil {
		o.observer.Observe(o.container)
	}
	for _, el := range o.registry.Elements() {
		o.observer.Observe(el)
	}
}

func (o *Overlay) unsubscribeLocked() {
	if o.observer != nil {
		o.observer.Disconnect()
		o.observer = nil
	}
	for _, remove := range o.removers {
		remove()
	}
	o.removers = nil
	o.host = nil
}

func clonePaths(paths []Path) []Path {
	if paths == nil {
		return nil
	}
	out := make([]Path, len(paths))
	copy(out, paths)
	return out
}
