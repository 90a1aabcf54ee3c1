package mcpserver

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/testutil"
	"github.com/starford/hiertree/internal/treeservice"
)

func testServer(t *testing.T) (*Server, *treeservice.Service) {
	t.Helper()
	_, fs := testutil.TestSeedDir(t)
	svc := treeservice.NewService(testutil.TestDB(t), fs, testutil.SeedFile)
	if _, err := svc.EnsureSeeded(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_nodes":
		result, err = srv.listNodes(ctx, req)
	case "add_node":
		result, err = srv.addNode(ctx, req)
	case "rename_node":
		result, err = srv.renameNode(ctx, req)
	case "delete_node":
		result, err = srv.deleteNode(ctx, req)
	case "move_node":
		result, err = srv.moveNode(ctx, req)
	case "reset_tree":
		result, err = srv.resetTree(ctx, req)
	case "render_connectors":
		result, err = srv.renderConnectors(ctx, req)
	case "import_tree":
		result, err = srv.importTree(ctx, req)
	case "get_tree_format":
		result, err = srv.getTreeFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListNodes(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_nodes", nil)
	if r.IsError {
		t.Fatalf("list_nodes: %s", resultText(r))
	}
	var out struct {
		Nodes    []models.Node `json:"nodes"`
		Checksum string        `json:"checksum"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Nodes) != 5 || out.Checksum == "" {
		t.Errorf("list = %+v", out)
	}
}

func TestAddRenameMoveDelete(t *testing.T) {
	srv, svc := testServer(t)

	r := callTool(t, srv, "add_node", map[string]any{"parent": float64(1), "text": "Spain"})
	if r.IsError {
		t.Fatalf("add_node: %s", resultText(r))
	}
	var n models.Node
	if err := json.Unmarshal([]byte(resultText(r)), &n); err != nil {
		t.Fatal(err)
	}
	id := float64(n.ID)

	r = callTool(t, srv, "rename_node", map[string]any{"id": id, "text": "España"})
	if r.IsError || !strings.Contains(resultText(r), "España") {
		t.Errorf("rename_node: %s", resultText(r))
	}

	r = callTool(t, srv, "move_node", map[string]any{"id": id, "parent": float64(2)})
	if r.IsError {
		t.Errorf("move_node: %s", resultText(r))
	}

	r = callTool(t, srv, "delete_node", map[string]any{"id": float64(2)})
	if got := resultText(r); got != "deleted 3 node(s)" {
		t.Errorf("delete_node = %q", got)
	}

	nodes, _, _ := svc.List(context.Background())
	if len(nodes) != 3 {
		t.Errorf("remaining = %d, want 3", len(nodes))
	}
}

func TestToolErrors(t *testing.T) {
	srv, _ := testServer(t)
	cases := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"add_node", map[string]any{"parent": float64(5), "text": "x"}, "rejected"},
		{"add_node", map[string]any{"text": "x"}, "parent"},
		{"add_node", map[string]any{"parent": 1.5, "text": "x"}, "integer"},
		{"rename_node", map[string]any{"id": float64(99), "text": "x"}, "not found"},
		{"move_node", map[string]any{"id": float64(1), "parent": float64(4)}, "rejected"},
		{"delete_node", map[string]any{"id": float64(99)}, "not found"},
		{"render_connectors", map[string]any{"format": "png"}, "format"},
		{"render_connectors", map[string]any{"collapsed": "x"}, "collapsed"},
	}
	for _, tc := range cases {
		r := callTool(t, srv, tc.tool, tc.args)
		if !r.IsError {
			t.Errorf("%s(%v): expected error", tc.tool, tc.args)
			continue
		}
		if !strings.Contains(resultText(r), tc.want) {
			t.Errorf("%s(%v) = %q, want mention of %q", tc.tool, tc.args, resultText(r), tc.want)
		}
	}
}

func TestRenderConnectors(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "render_connectors", map[string]any{"collapsed": "2"})
	if r.IsError {
		t.Fatalf("render json: %s", resultText(r))
	}
	var view treeservice.ConnectorView
	if err := json.Unmarshal([]byte(resultText(r)), &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Paths) != 2 {
		t.Errorf("paths = %d, want 2", len(view.Paths))
	}

	r = callTool(t, srv, "render_connectors", map[string]any{"format": "svg", "gap": float64(20)})
	svg := resultText(r)
	if !strings.HasPrefix(strings.TrimSpace(svg), "<?xml") || strings.Count(svg, "<path") != 3 {
		t.Errorf("svg = %s", svg)
	}
	if !strings.Contains(svg, "M 28 60 V 128 Q 28 140 40 140 H 48") {
		t.Errorf("custom gap not applied: %s", svg)
	}
}

func TestImportTreeDataURI(t *testing.T) {
	srv, svc := testServer(t)
	doc := "- text: Solar System\n  children:\n    - text: Earth\n    - text: Mars\n"
	uri := "data:application/yaml;base64," + base64.StdEncoding.EncodeToString([]byte(doc))

	r := callTool(t, srv, "import_tree", map[string]any{"url": uri})
	if r.IsError {
		t.Fatalf("import_tree: %s", resultText(r))
	}
	nodes, _, _ := svc.List(context.Background())
	if len(nodes) != 3 || nodes[0].Text != "Solar System" {
		t.Errorf("imported = %+v", nodes)
	}
}

func TestImportTreeInlineDryRun(t *testing.T) {
	srv, svc := testServer(t)
	before, cs, _ := svc.List(context.Background())

	doc := `[{"id":1,"parent":0,"text":"Only","droppable":true}]`
	r := callTool(t, srv, "import_tree", map[string]any{"content": doc, "dry_run": true})
	if r.IsError || !strings.HasPrefix(resultText(r), "valid: 1 node(s)") {
		t.Fatalf("dry run = %s", resultText(r))
	}
	after, cs2, _ := svc.List(context.Background())
	if cs2 != cs || len(after) != len(before) {
		t.Error("dry run changed the stored tree")
	}

	r = callTool(t, srv, "import_tree", map[string]any{"content": doc})
	if r.IsError {
		t.Fatalf("import_tree: %s", resultText(r))
	}
	if nodes, _, _ := svc.List(context.Background()); len(nodes) != 1 {
		t.Errorf("imported = %+v", nodes)
	}
}

func TestImportTreeRejects(t *testing.T) {
	srv, _ := testServer(t)
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	cases := map[string]map[string]any{
		"no source":      {},
		"both sources":   {"content": "[]", "url": "data:application/json;base64," + b64("[]")},
		"plain data URI": {"url": "data:application/json,[]"},
		"bad MIME":       {"url": "data:image/png;base64,AAAA"},
		"bad scheme":     {"url": "ftp://example.com/tree.json"},
		"loopback":       {"url": "http://127.0.0.1/tree.json"},
		"localhost":      {"url": "http://localhost:8080/tree.json"},
		"private":        {"url": "http://10.1.2.3/tree.json"},
		"metadata":       {"url": "http://169.254.169.254/latest"},
		"invalid doc":    {"url": "data:application/json;base64," + b64("[{")},
		"invalid tree":   {"content": `[{"id":1,"parent":1,"text":"x"}]`},
		"dry run cycle":  {"content": `[{"id":1,"parent":1,"text":"x"}]`, "dry_run": true},
	}
	for name, args := range cases {
		if r := callTool(t, srv, "import_tree", args); !r.IsError {
			t.Errorf("%s: expected error, got %s", name, resultText(r))
		}
	}
}

func TestCheckMediaType(t *testing.T) {
	for _, ok := range []string{"", "application/json", "application/yaml; charset=utf-8", "text/plain"} {
		if err := checkMediaType(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"image/png", "text/html; charset=utf-8", ";;"} {
		if err := checkMediaType(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestResetTree(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "delete_node", map[string]any{"id": float64(1)})
	if got := resultText(callTool(t, srv, "reset_tree", nil)); got != "restored 5 node(s)" {
		t.Errorf("reset_tree = %q", got)
	}
}

func TestTreeFormatContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_tree_format", nil))
	if !strings.Contains(text, "droppable") || !strings.Contains(text, "children:") {
		t.Errorf("contract missing sections: %s", text)
	}

	contents, err := srv.readTreeFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != TreeFormatURI || tc.Text != TreeFormatContract {
		t.Errorf("resource = %+v", contents[0])
	}
}
