// Package connector computes the elbow connector overlay drawn beneath the
// hierarchy tree.
//
// The geometry engine translates each parent/child relationship into an
// orthogonal path: a vertical trunk at gap units left of the child's card,
// a quarter-circle turn of fixed radius and a horizontal run into the
// child's left edge. Inputs are the node collection, a host-owned Registry
// of mounted elements and the container element that defines the
// coordinate frame. Nothing here mutates tree state.
//
// Overlay wraps the engine in the reactive contract: structural changes,
// element and container resizes, captured scrolls and viewport resizes all
// invalidate the overlay, and invalidations are coalesced by a Scheduler
// so at most one pass runs per frame.
package connector
