package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/parser"
)

func tempDir(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func sampleNodes() []models.Node {
	return []models.Node{
		{ID: 1, Parent: 0, Text: "Europe", Droppable: true},
		{ID: 2, Parent: 1, Text: "Germany", Droppable: true},
		{ID: 3, Parent: 0, Text: "Archive", Droppable: false},
	}
}

func equalNodes(a, b []models.Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSaveAndLoadJSON(t *testing.T) {
	s := tempDir(t)
	if err := s.Save("seed.json", sampleNodes()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("seed.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !equalNodes(got, sampleNodes()) {
		t.Errorf("Load = %+v", got)
	}
}

func TestSaveAndLoadYAML(t *testing.T) {
	s := tempDir(t)
	if err := s.Save("nested/seed.yaml", sampleNodes()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), "nested", "seed.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "children:") {
		t.Errorf("expected nested outline, got:\n%s", data)
	}
	got, err := s.Load("nested/seed.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !equalNodes(got, sampleNodes()) {
		t.Errorf("Load = %+v", got)
	}
}

func TestLoadMissing(t *testing.T) {
	s := tempDir(t)
	if _, err := s.Load("nope.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSafePathRejectsTraversal(t *testing.T) {
	s := tempDir(t)
	for _, p := range []string{"../escape.json", "a/../../escape.json", "/etc/passwd", ""} {
		if err := s.Save(p, sampleNodes()); err == nil {
			t.Errorf("Save(%q): expected error", p)
		}
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := tempDir(t)
	if err := s.Save("seed.json", sampleNodes()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".hiertree-tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestListSkipsOtherFiles(t *testing.T) {
	s := tempDir(t)
	_ = s.Save("b.yaml", sampleNodes())
	_ = s.Save("a.json", sampleNodes())
	_ = os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("x"), 0o644)

	metas, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List len = %d, want 2", len(metas))
	}
	if metas[0].Path != "a.json" || metas[1].Path != "b.yaml" {
		t.Errorf("order = %s, %s", metas[0].Path, metas[1].Path)
	}
	if metas[0].Checksum == "" {
		t.Error("checksum is empty")
	}
}

func TestExportUniqueNames(t *testing.T) {
	s := tempDir(t)
	a, err := s.Export(sampleNodes(), parser.FormatJSON)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	b, err := s.Export(sampleNodes(), parser.FormatYAML)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if a == b {
		t.Fatalf("export names collide: %s", a)
	}
	if !strings.HasPrefix(a, "exports/") || !strings.HasSuffix(a, ".json") {
		t.Errorf("json export name = %s", a)
	}
	if !strings.HasSuffix(b, ".yaml") {
		t.Errorf("yaml export name = %s", b)
	}
	got, err := s.Load(b)
	if err != nil {
		t.Fatalf("Load export: %v", err)
	}
	if !equalNodes(got, sampleNodes()) {
		t.Errorf("exported nodes = %+v", got)
	}
}
