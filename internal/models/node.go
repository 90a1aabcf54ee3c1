// Package models defines the domain types for hiertree.
package models

// RootID is the parent value of top-level nodes.
const RootID int64 = 0

// Node is one entry of the hierarchy tree, stored as a flat parent-pointer
// record. Position in the collection is the sibling order.
type Node struct {
	ID        int64  `json:"id" yaml:"id"`
	Parent    int64  `json:"parent" yaml:"parent"`
	Text      string `json:"text" yaml:"text"`
	Droppable bool   `json:"droppable" yaml:"droppable"`
}

// IsRoot reports whether the node hangs directly off the root sentinel.
func (n Node) IsRoot() bool {
	return n.Parent == RootID
}

// Clone returns a copy of nodes that shares no backing array with the input.
func Clone(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	copy(out, nodes)
	return out
}
