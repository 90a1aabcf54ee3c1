package mcpserver

// TreeFormatContract describes the tree documents accepted by import_tree
// and used for the seed file and exports.
const TreeFormatContract = `# Tree Document Format

A tree is a flat collection of nodes. Each node points at its parent;
parent ` + "`0`" + ` is the invisible root, so nodes with parent 0 are top-level.

## Flat JSON

` + "```" + `json
[
  {"id": 1, "parent": 0, "text": "Europe",  "droppable": true},
  {"id": 2, "parent": 1, "text": "Germany", "droppable": true},
  {"id": 3, "parent": 0, "text": "Archive", "droppable": false}
]
` + "```" + `

## Nested YAML outline

` + "```" + `yaml
- text: Europe
  children:
    - text: Germany
- text: Archive
  droppable: false
` + "```" + `

## Rules

1. ` + "`id`" + ` is a positive integer, unique in the collection. Outline items
   without an id are numbered after the largest explicit id.
2. ` + "`text`" + ` is required, at most 200 characters.
3. ` + "`parent`" + ` must be 0 or the id of another node; cycles are rejected.
4. ` + "`droppable`" + ` defaults to true. Non-droppable nodes accept no children
   and their subtree is not rendered.
5. Collection order is sibling order: children render in the order they
   appear.
6. Documents starting with ` + "`[`" + ` are read as JSON, anything else as YAML.
`
