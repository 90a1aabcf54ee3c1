package connector

import (
	"slices"
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Frames schedules callbacks on the next frame. Request returns a cancel
// function; cancelling after the callback ran is a no-op.
type Frames interface {
	Request(fn func()) (cancel func())
}

// TickerFrames runs callbacks on the next boundary of a fixed frame clock,
// the way a display refresh does. Every request made within one frame
// lands on the same boundary, so a Scheduler replacing its pending request
// under a steady stream of invalidations still runs once per frame.
type TickerFrames struct {
	Interval time.Duration
}

// Request implements Frames.
func (f TickerFrames) Request(fn func()) func() {
	t := time.AfterFunc(time.Until(f.next(time.Now())), fn)
	return func() { t.Stop() }
}

// next returns the first frame boundary after now.
func (f TickerFrames) next(now time.Time) time.Time {
	d := f.Interval
	if d <= 0 {
		d = DefaultFrameInterval
	}
	return now.Truncate(d).Add(d)
}

// ManualFrames queues callbacks until Flush is called. It drives frames
// deterministically for one-shot rendering and tests.
type ManualFrames struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]func()
}

// NewManualFrames returns an empty frame queue.
func NewManualFrames() *ManualFrames {
	return &ManualFrames{pending: make(map[uint64]func())}
}

// Request implements Frames.
func (m *ManualFrames) Request(fn func()) func() {
	m.mu.Lock()
	m.next++
	id := m.next
	m.pending[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}
}

// Pending returns the number of queued callbacks.
func (m *ManualFrames) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush runs every callback queued before the call, in request order, and
// returns how many ran. Callbacks requested while flushing wait for the
// next Flush.
func (m *ManualFrames) Flush() int {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	fns := make([]func(), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.pending[id])
		delete(m.pending, id)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Scheduler coalesces recomputation requests into at most one pending
// frame. A new request cancels the pending one and schedules a fresh
// frame, so the pass that eventually runs reads the latest inputs. With
// TickerFrames the fresh frame is the same boundary as the one it
// replaced, so replacement never delays a pass past the current frame.
type Scheduler struct {
	mu      sync.Mutex
	frames  Frames
	run     func()
	cancel  func()
	gen     uint64
	stopped bool
}

// NewScheduler returns a scheduler that calls run on frames.
func NewScheduler(frames Frames, run func()) *Scheduler {
	if frames == nil {
		frames = TickerFrames{}
	}
	return &Scheduler{frames: frames, run: run}
}

// Request schedules run for the next frame, replacing any pending request.
func (s *Scheduler) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = s.frames.Request(func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	s.mu.Unlock()
	s.run()
}

// Pending reports whether a frame is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Cancel drops the pending frame, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

// Stop cancels the pending frame and ignores all later requests.
func (s *Scheduler) Stop() {
	s.Cancel()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
