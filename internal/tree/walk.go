package tree

import "github.com/starford/hiertree/internal/models"

// Row is one rendered line of the tree.
type Row struct {
	Node        models.Node `json:"node"`
	Depth       int         `json:"depth"`
	IsLastChild bool        `json:"is_last_child"`
	HasChildren bool        `json:"has_children"`
	Open        bool        `json:"open"`
}

// Visible lists the rows a tree view renders: depth-first pre-order from
// the root, siblings in collection order, skipping the subtrees of
// collapsed nodes. Nodes unreachable from the root are not rendered.
func Visible(nodes []models.Node, collapsed map[int64]bool) []Row {
	byParent := make(map[int64][]models.Node)
	for _, n := range nodes {
		byParent[n.Parent] = append(byParent[n.Parent], n)
	}

	var rows []Row
	seen := make(map[int64]struct{}, len(nodes))
	var walk func(parent int64, depth int)
	walk = func(parent int64, depth int) {
		kids := byParent[parent]
		for i, n := range kids {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			open := n.Droppable && !collapsed[n.ID]
			rows = append(rows, Row{
				Node:        n,
				Depth:       depth,
				IsLastChild: i == len(kids)-1,
				HasChildren: len(byParent[n.ID]) > 0,
				Open:        open,
			})
			if open {
				walk(n.ID, depth+1)
			}
		}
	}
	walk(models.RootID, 0)
	return rows
}
