// Package tree implements the operations of the flat parent-pointer tree
// collection. Every structural edit returns a new slice; inputs are never
// modified in place.
package tree

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/hiertree/internal/apperr"
	"github.com/starford/hiertree/internal/models"
)

// Find returns the index of id in nodes, or -1.
func Find(nodes []models.Node, id int64) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the node with the given id.
func Get(nodes []models.Node, id int64) (models.Node, error) {
	i := Find(nodes, id)
	if i < 0 {
		return models.Node{}, fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	return nodes[i], nil
}

// NextID derives an id from now, bumping it past any id already in use.
func NextID(nodes []models.Node, now time.Time) int64 {
	id := now.UnixMilli()
	if id <= 0 {
		id = 1
	}
	used := make(map[int64]struct{}, len(nodes))
	for _, n := range nodes {
		used[n.ID] = struct{}{}
	}
	for {
		if _, ok := used[id]; !ok {
			return id
		}
		id++
	}
}

// Add appends a droppable node under parent. The parent must be the root or
// an existing droppable node.
func Add(nodes []models.Node, parent int64, text string, now time.Time) ([]models.Node, models.Node, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.Node{}, fmt.Errorf("text is required: %w", apperr.ErrValidation)
	}
	if err := checkTarget(nodes, parent); err != nil {
		return nil, models.Node{}, err
	}
	n := models.Node{
		ID:        NextID(nodes, now),
		Parent:    parent,
		Text:      text,
		Droppable: true,
	}
	out := append(models.Clone(nodes), n)
	return out, n, nil
}

// Rename changes a node's text. Empty or unchanged text leaves the
// collection as is.
func Rename(nodes []models.Node, id int64, text string) ([]models.Node, bool, error) {
	i := Find(nodes, id)
	if i < 0 {
		return nil, false, fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	text = strings.TrimSpace(text)
	if text == "" || text == nodes[i].Text {
		return nodes, false, nil
	}
	out := models.Clone(nodes)
	out[i].Text = text
	return out, true, nil
}

// Delete removes a node together with its whole subtree and returns the
// ids that were removed.
func Delete(nodes []models.Node, id int64) ([]models.Node, []int64, error) {
	if Find(nodes, id) < 0 {
		return nil, nil, fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	doomed := Descendants(nodes, id)
	doomed[id] = struct{}{}

	out := make([]models.Node, 0, len(nodes)-len(doomed))
	var removed []int64
	for _, n := range nodes {
		if _, ok := doomed[n.ID]; ok {
			removed = append(removed, n.ID)
			continue
		}
		out = append(out, n)
	}
	return out, removed, nil
}

// Move reparents id under newParent, placing it last among its new
// siblings. Dropping onto the node itself, one of its descendants or a
// non-droppable node is rejected.
func Move(nodes []models.Node, id, newParent int64) ([]models.Node, error) {
	i := Find(nodes, id)
	if i < 0 {
		return nil, fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	if newParent == id {
		return nil, fmt.Errorf("node %d onto itself: %w", id, apperr.ErrInvalidMove)
	}
	if _, ok := Descendants(nodes, id)[newParent]; ok {
		return nil, fmt.Errorf("node %d into its own subtree: %w", id, apperr.ErrInvalidMove)
	}
	if err := checkTarget(nodes, newParent); err != nil {
		return nil, err
	}

	moved := nodes[i]
	moved.Parent = newParent
	out := make([]models.Node, 0, len(nodes))
	out = append(out, nodes[:i]...)
	out = append(out, nodes[i+1:]...)
	out = append(out, moved)
	return out, nil
}

func checkTarget(nodes []models.Node, parent int64) error {
	if parent == models.RootID {
		return nil
	}
	p, err := Get(nodes, parent)
	if err != nil {
		return fmt.Errorf("parent %d: %w", parent, apperr.ErrNotFound)
	}
	if !p.Droppable {
		return fmt.Errorf("parent %d does not accept children: %w", parent, apperr.ErrInvalidMove)
	}
	return nil
}

// Children returns the direct children of parent in collection order.
func Children(nodes []models.Node, parent int64) []models.Node {
	var out []models.Node
	for _, n := range nodes {
		if n.Parent == parent && n.ID != parent {
			out = append(out, n)
		}
	}
	return out
}

// Descendants returns the ids of every node below id.
func Descendants(nodes []models.Node, id int64) map[int64]struct{} {
	byParent := make(map[int64][]int64)
	for _, n := range nodes {
		byParent[n.Parent] = append(byParent[n.Parent], n.ID)
	}
	out := make(map[int64]struct{})
	stack := append([]int64(nil), byParent[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := out[cur]; seen || cur == id {
			continue
		}
		out[cur] = struct{}{}
		stack = append(stack, byParent[cur]...)
	}
	return out
}

// Depth returns the number of ancestors of id; top-level nodes have depth 0.
// Unknown ids and broken chains stop the walk.
func Depth(nodes []models.Node, id int64) int {
	byID := make(map[int64]models.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	depth := 0
	seen := map[int64]struct{}{id: {}}
	cur, ok := byID[id]
	for ok && cur.Parent != models.RootID {
		if _, loop := seen[cur.Parent]; loop {
			break
		}
		seen[cur.Parent] = struct{}{}
		cur, ok = byID[cur.Parent]
		if ok {
			depth++
		}
	}
	return depth
}

// IsLastChild reports whether id is the last of its siblings.
func IsLastChild(nodes []models.Node, id int64) bool {
	i := Find(nodes, id)
	if i < 0 {
		return false
	}
	for _, n := range nodes[i+1:] {
		if n.Parent == nodes[i].Parent {
			return false
		}
	}
	return true
}
