// Package parser decodes and encodes tree documents: the flat JSON array
// the editor saves, and a nested YAML outline for hand-written seeds.
package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/starford/hiertree/internal/models"
)

// Format names a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks a format from a file extension, defaulting to JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// outlineItem is one entry of a YAML outline. Ids and droppable flags are
// optional; children inherit their parent from nesting.
type outlineItem struct {
	ID        int64         `yaml:"id,omitempty"`
	Parent    *int64        `yaml:"parent,omitempty"`
	Text      string        `yaml:"text"`
	Droppable *bool         `yaml:"droppable,omitempty"`
	Children  []outlineItem `yaml:"children,omitempty"`
}

// Parse decodes a document. JSON input is recognised by a leading '[';
// anything else is read as YAML.
func Parse(data []byte) ([]models.Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.Node{}, nil
	}
	if trimmed[0] == '[' {
		return parseJSON(trimmed)
	}
	return parseYAML(trimmed)
}

func parseJSON(data []byte) ([]models.Node, error) {
	var nodes []models.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parser: decode json: %w", err)
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	return nodes, nil
}

func parseYAML(data []byte) ([]models.Node, error) {
	var items []outlineItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parser: decode yaml: %w", err)
	}

	// Explicit ids win; the rest are numbered after the largest one.
	var next int64
	var scan func([]outlineItem)
	scan = func(list []outlineItem) {
		for _, it := range list {
			if it.ID > next {
				next = it.ID
			}
			scan(it.Children)
		}
	}
	scan(items)

	out := []models.Node{}
	var flatten func(list []outlineItem, parent int64, top bool)
	flatten = func(list []outlineItem, parent int64, top bool) {
		for _, it := range list {
			id := it.ID
			if id == 0 {
				next++
				id = next
			}
			p := parent
			if top && it.Parent != nil {
				p = *it.Parent
			}
			droppable := true
			if it.Droppable != nil {
				droppable = *it.Droppable
			}
			out = append(out, models.Node{ID: id, Parent: p, Text: it.Text, Droppable: droppable})
			flatten(it.Children, id, false)
		}
	}
	flatten(items, models.RootID, true)
	return out, nil
}

// Encode renders nodes in the given format. YAML output is a nested
// outline; nodes whose parent is missing are emitted at the top level with
// an explicit parent so nothing is lost.
func Encode(nodes []models.Node, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(outline(nodes))
		if err != nil {
			return nil, fmt.Errorf("parser: encode yaml: %w", err)
		}
		return data, nil
	case FormatJSON, "":
		if nodes == nil {
			nodes = []models.Node{}
		}
		data, err := json.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("parser: encode json: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("parser: unknown format %q", format)
	}
}

func outline(nodes []models.Node) []outlineItem {
	known := make(map[int64]struct{}, len(nodes))
	byParent := make(map[int64][]models.Node)
	for _, n := range nodes {
		known[n.ID] = struct{}{}
		byParent[n.Parent] = append(byParent[n.Parent], n)
	}

	var build func(parent int64) []outlineItem
	build = func(parent int64) []outlineItem {
		var items []outlineItem
		for _, n := range byParent[parent] {
			items = append(items, item(n, build(n.ID)))
		}
		return items
	}

	out := build(models.RootID)
	for _, n := range nodes {
		if n.IsRoot() {
			continue
		}
		if _, ok := known[n.Parent]; ok {
			continue
		}
		it := item(n, build(n.ID))
		parent := n.Parent
		it.Parent = &parent
		out = append(out, it)
	}
	return out
}

func item(n models.Node, children []outlineItem) outlineItem {
	it := outlineItem{ID: n.ID, Text: n.Text, Children: children}
	if !n.Droppable {
		f := false
		it.Droppable = &f
	}
	return it
}
