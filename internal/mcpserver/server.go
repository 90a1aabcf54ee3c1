// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes hierarchy tree tools for LLM integration via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/hiertree/internal/apperr"
	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/treeservice"
)

// TreeFormatURI names the document format resource.
const TreeFormatURI = "hiertree://tree-format"

// Server wraps the MCP server with tree tools.
type Server struct {
	mcp *server.MCPServer
	svc *treeservice.Service
}

// New creates a new MCP server with all tree tools registered.
func New(svc *treeservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"hiertree",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List every node of the tree as a flat JSON array with parent pointers, plus the collection checksum."),
	), s.listNodes)

	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node under a parent. Use parent 0 for a top-level node. "+
			"The parent must accept children (droppable)."),
		mcp.WithNumber("parent", mcp.Required(), mcp.Description("Parent node id, 0 for top level")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Label of the new node")),
	), s.addNode)

	s.mcp.AddTool(mcp.NewTool("rename_node",
		mcp.WithDescription("Change a node's label. Empty text leaves the node unchanged."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New label")),
	), s.renameNode)

	s.mcp.AddTool(mcp.NewTool("delete_node",
		mcp.WithDescription("Delete a node together with its whole subtree."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
	), s.deleteNode)

	s.mcp.AddTool(mcp.NewTool("move_node",
		mcp.WithDescription("Reparent a node. The node becomes the last child of the new parent. "+
			"Moving onto itself, into its own subtree or under a non-droppable node fails."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithNumber("parent", mcp.Required(), mcp.Description("New parent id, 0 for top level")),
	), s.moveNode)

	s.mcp.AddTool(mcp.NewTool("reset_tree",
		mcp.WithDescription("Discard all edits and restore the seed tree."),
	), s.resetTree)

	s.mcp.AddTool(mcp.NewTool("render_connectors",
		mcp.WithDescription("Compute the elbow connector paths that join every node to its parent, "+
			"as JSON path descriptors or as an SVG overlay."),
		mcp.WithString("collapsed", mcp.Description("Comma-separated ids of collapsed nodes")),
		mcp.WithNumber("gap", mcp.Description("Horizontal offset of the trunk from the child's left edge")),
		mcp.WithString("format", mcp.Description("Output format"), mcp.Enum("json", "svg")),
	), s.renderConnectors)

	s.mcp.AddTool(mcp.NewTool("import_tree",
		mcp.WithDescription("Replace the tree with a JSON or YAML document given inline, as a base64 data URI "+
			"or as an http(s) URL. Read the format first via get_tree_format or the "+TreeFormatURI+" resource."),
		mcp.WithString("content", mcp.Description("Document text")),
		mcp.WithString("url", mcp.Description("http(s) URL or data:application/json;base64,... URI")),
		mcp.WithBoolean("dry_run", mcp.Description("Only parse and validate; the stored tree is left unchanged")),
	), s.importTree)

	s.mcp.AddTool(mcp.NewTool("get_tree_format",
		mcp.WithDescription("Returns the tree document format accepted by import_tree and the seed file."),
	), s.getTreeFormat)

	s.mcp.AddResource(
		mcp.NewResource(TreeFormatURI, "Tree Document Format",
			mcp.WithResourceDescription("Flat JSON and nested YAML tree document formats."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTreeFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError converts a service error into a tool result the model can act on.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, apperr.ErrInvalidMove), errors.Is(err, apperr.ErrValidation):
		return mcp.NewToolResultError("rejected: " + err.Error())
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func requireID(req mcp.CallToolRequest, key string) (int64, error) {
	v, err := req.RequireFloat(key)
	if err != nil {
		return 0, err
	}
	if v != float64(int64(v)) || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return int64(v), nil
}

func (s *Server) listNodes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes, cs, err := s.svc.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"nodes": nodes, "checksum": cs}), nil
}

func (s *Server) addNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parent, err := requireID(req, "parent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Add(ctx, parent, text)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) renameNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Rename(ctx, id, text)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) deleteNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, err := s.svc.Delete(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted %d node(s)", len(removed))), nil
}

func (s *Server) moveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parent, err := requireID(req, "parent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Move(ctx, id, parent)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) resetTree(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes, err := s.svc.Reset(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored %d node(s)", len(nodes))), nil
}

func (s *Server) renderConnectors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := treeservice.ConnectorQuery{
		Collapsed: make(map[int64]bool),
		Gap:       req.GetFloat("gap", 0),
	}
	for _, part := range strings.Split(req.GetString("collapsed", ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var id int64
		if _, err := fmt.Sscan(part, &id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid collapsed id %q", part)), nil
		}
		q.Collapsed[id] = true
	}

	view, err := s.svc.Connectors(ctx, q)
	if err != nil {
		return toolError(err), nil
	}

	switch req.GetString("format", "json") {
	case "json":
		return jsonResult(view), nil
	case "svg":
		var buf bytes.Buffer
		connector.RenderSVG(&buf, view.Paths, connector.Rect{Width: view.Width, Height: view.Height}, connector.SVGOptions{})
		return mcp.NewToolResultText(buf.String()), nil
	default:
		return mcp.NewToolResultError("format must be json or svg"), nil
	}
}

func (s *Server) getTreeFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TreeFormatContract), nil
}

func (s *Server) readTreeFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      TreeFormatURI,
			MIMEType: "text/markdown",
			Text:     TreeFormatContract,
		},
	}, nil
}
