// Package sse implements a Server-Sent Events broker for tree and overlay
// updates.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// Event types streamed to clients besides the tree change kinds.
const (
	TypeInvalidated = "connectors.invalidated"
	TypeConnectors  = "connectors.updated"
	TypeSeedUpdated = "seed.updated"
	TypeHighlighted = "node.highlighted"
)

const (
	clientBuffer = 64
	historySize  = 128
	// HeartbeatInterval spaces comment frames that keep idle streams open
	// through proxies.
	HeartbeatInterval = 15 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type frame struct {
	seq uint64
	raw []byte
}

type subscription struct {
	ch    chan []byte
	after uint64
}

type countReq chan int

// hub is the state owned by the broker loop.
type hub struct {
	clients        map[chan []byte]struct{}
	history        []frame
	seq            uint64
	lastInvalidate time.Time
	invalidateMin  time.Duration
}

func (h *hub) broadcast(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	h.seq++
	f := frame{
		seq: h.seq,
		raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, event.Type, payload)),
	}
	if len(h.history) == historySize {
		h.history = h.history[1:]
	}
	h.history = append(h.history, f)

	for ch := range h.clients {
		select {
		case ch <- f.raw:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}
}

// join registers a client and replays buffered frames newer than after.
func (h *hub) join(s subscription) {
	h.clients[s.ch] = struct{}{}
	if s.after == 0 {
		return
	}
	for _, f := range h.history {
		if f.seq <= s.after {
			continue
		}
		select {
		case s.ch <- f.raw:
		default:
			return
		}
	}
}

func (h *hub) treeEvent(kind string, id int64, now time.Time) {
	h.broadcast(Event{Type: kind, Data: map[string]int64{"id": id}})
	if now.Sub(h.lastInvalidate) >= h.invalidateMin {
		h.lastInvalidate = now
		h.broadcast(Event{Type: TypeInvalidated, Data: map[string]string{}})
	}
}

type treeEventReq struct {
	kind string
	id   int64
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the hub (clients, sequence, replay history
// and invalidation throttle). Public methods talk to it over channels.
type Broker struct {
	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	treeEventCh   chan treeEventReq
	countCh       chan countReq

	heartbeat time.Duration

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given throttle interval for
// connectors.invalidated.
func NewBroker(invalidateThrottle time.Duration) *Broker {
	if invalidateThrottle <= 0 {
		invalidateThrottle = 2 * time.Second
	}

	b := &Broker{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		treeEventCh:   make(chan treeEventReq, 256),
		countCh:       make(chan countReq),
		heartbeat:     HeartbeatInterval,
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run(&hub{
		clients:       make(map[chan []byte]struct{}),
		invalidateMin: invalidateThrottle,
	})
	return b
}

func (b *Broker) run(h *hub) {
	defer close(b.stopped)

	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			return
		case s := <-b.subscribeCh:
			h.join(s)
		case ch := <-b.unsubscribeCh:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case event := <-b.publishCh:
			h.broadcast(event)
		case req := <-b.treeEventCh:
			h.treeEvent(req.kind, req.id, time.Now())
		case resp := <-b.countCh:
			resp <- len(h.clients)
		}
	}
}

// Close stops the broker loop and closes every client channel. It is safe
// to call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeAfter(0)
}

// SubscribeAfter adds a client that first receives the buffered events
// with an id greater than lastID. Zero skips the replay.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: lastID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(countReq, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishTreeEvent publishes a tree change and a throttled
// connectors.invalidated event.
func (b *Broker) PublishTreeEvent(kind string, id int64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.treeEventCh <- treeEventReq{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). Reconnecting
// clients that send Last-Event-ID get the events they missed, as far as the
// replay buffer reaches.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeAfter(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
