package layout

import (
	"sort"

	"github.com/starford/hiertree/internal/connector"
)

type observer struct {
	s       *Surface
	cb      func()
	targets map[connector.Element]struct{}
}

func (o *observer) Observe(el connector.Element) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if _, live := o.s.observers[o]; !live {
		return
	}
	o.targets[el] = struct{}{}
}

func (o *observer) Disconnect() {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	delete(o.s.observers, o)
	o.targets = make(map[connector.Element]struct{})
}

type listener struct {
	kind    connector.EventKind
	capture bool
	cb      func()
}

// NewResizeObserver implements connector.Host.
func (s *Surface) NewResizeObserver(cb func()) connector.ResizeObserver {
	o := &observer{s: s, cb: cb, targets: make(map[connector.Element]struct{})}
	s.mu.Lock()
	s.observers[o] = struct{}{}
	s.mu.Unlock()
	return o
}

// AddListener implements connector.Host.
func (s *Surface) AddListener(kind connector.EventKind, capture bool, cb func()) func() {
	s.mu.Lock()
	s.nextL++
	id := s.nextL
	s.listeners[id] = &listener{kind: kind, capture: capture, cb: cb}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Observers returns the number of connected resize observers.
func (s *Surface) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Listeners returns the number of attached event listeners.
func (s *Surface) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// listenersLocked returns callbacks for kind in registration order.
// captureOnly restricts the result to capturing listeners.
func (s *Surface) listenersLocked(kind connector.EventKind, captureOnly bool) []func() {
	ids := make([]int, 0, len(s.listeners))
	for id, l := range s.listeners {
		if l.kind == kind && (!captureOnly || l.capture) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]func(), len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id].cb
	}
	return out
}

// notifyResized calls each observer watching any of els once.
func (s *Surface) notifyResized(els []connector.Element) {
	if len(els) == 0 {
		return
	}
	s.mu.Lock()
	var cbs []func()
	for o := range s.observers {
		for _, el := range els {
			if _, ok := o.targets[el]; ok {
				cbs = append(cbs, o.cb)
				break
			}
		}
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

var _ connector.Host = (*Surface)(nil)
