package treeservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/hiertree/internal/apperr"
	"github.com/starford/hiertree/internal/checksum"
	"github.com/starford/hiertree/internal/layout"
	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/parser"
	"github.com/starford/hiertree/internal/testutil"
)

type change struct {
	kind string
	id   int64
}

type changeLog struct {
	mu      sync.Mutex
	changes []change
}

func (l *changeLog) record(kind string, id int64, _ []models.Node) {
	l.mu.Lock()
	l.changes = append(l.changes, change{kind, id})
	l.mu.Unlock()
}

func (l *changeLog) all() []change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]change(nil), l.changes...)
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newSeededService(t *testing.T) (*Service, *changeLog) {
	t.Helper()
	_, fs := testutil.TestSeedDir(t)
	db := testutil.TestDB(t)
	log := &changeLog{}
	svc := NewService(db, fs, testutil.SeedFile,
		WithOnChange(log.record),
		WithClock(func() time.Time { return fixedNow }),
	)
	loaded, err := svc.EnsureSeeded(context.Background())
	if err != nil {
		t.Fatalf("EnsureSeeded: %v", err)
	}
	if !loaded {
		t.Fatal("seed not loaded into empty store")
	}
	return svc, log
}

func TestEnsureSeededOnlyOnce(t *testing.T) {
	svc, _ := newSeededService(t)
	ctx := context.Background()
	if _, err := svc.Rename(ctx, 1, "Europa"); err != nil {
		t.Fatal(err)
	}
	loaded, err := svc.EnsureSeeded(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loaded {
		t.Error("seed reloaded into non-empty store")
	}
	nodes, _, _ := svc.List(ctx)
	if nodes[0].Text != "Europa" {
		t.Errorf("rename lost: %q", nodes[0].Text)
	}
}

func TestEnsureSeededMissingSeed(t *testing.T) {
	_, fs := testutil.TestSeedDir(t)
	svc := NewService(testutil.TestDB(t), fs, "absent.json")
	loaded, err := svc.EnsureSeeded(context.Background())
	if err != nil {
		t.Fatalf("EnsureSeeded: %v", err)
	}
	if loaded {
		t.Error("reported loaded without a seed file")
	}
	if _, err := svc.Reset(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Reset err = %v, want ErrNotFound", err)
	}
}

func TestListChecksum(t *testing.T) {
	svc, _ := newSeededService(t)
	nodes, cs, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 5 {
		t.Fatalf("len = %d", len(nodes))
	}
	if cs != checksum.Tree(testutil.SampleNodes()) {
		t.Errorf("checksum mismatch")
	}
}

func TestAddRenameMoveDelete(t *testing.T) {
	svc, log := newSeededService(t)
	ctx := context.Background()

	n, err := svc.Add(ctx, 3, "Paris")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n.ID != fixedNow.UnixMilli() || n.Parent != 3 || !n.Droppable {
		t.Errorf("added = %+v", n)
	}

	if n, err = svc.Rename(ctx, n.ID, "  Lyon "); err != nil || n.Text != "Lyon" {
		t.Errorf("Rename = %+v, %v", n, err)
	}
	// Unchanged text is a no-op and emits nothing.
	if _, err := svc.Rename(ctx, n.ID, "Lyon"); err != nil {
		t.Errorf("Rename no-op: %v", err)
	}

	if n, err = svc.Move(ctx, n.ID, 2); err != nil || n.Parent != 2 {
		t.Errorf("Move = %+v, %v", n, err)
	}

	removed, err := svc.Delete(ctx, 2)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("removed = %v, want Germany, Berlin and Lyon", removed)
	}

	want := []change{
		{KindCreated, n.ID},
		{KindUpdated, n.ID},
		{KindMoved, n.ID},
		{KindDeleted, 2},
	}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("changes = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMutationErrors(t *testing.T) {
	svc, log := newSeededService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, 5, "Tokyo"); !errors.Is(err, apperr.ErrInvalidMove) {
		t.Errorf("Add under non-droppable: %v", err)
	}
	if _, err := svc.Add(ctx, 1, "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Add blank: %v", err)
	}
	if _, err := svc.Rename(ctx, 99, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Rename missing: %v", err)
	}
	if _, err := svc.Move(ctx, 1, 4); !errors.Is(err, apperr.ErrInvalidMove) {
		t.Errorf("Move into descendant: %v", err)
	}
	if _, err := svc.Delete(ctx, 99); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete missing: %v", err)
	}
	if got := log.all(); len(got) != 0 {
		t.Errorf("failed mutations emitted %v", got)
	}
}

func TestSaveConcurrency(t *testing.T) {
	svc, log := newSeededService(t)
	ctx := context.Background()
	_, cs, _ := svc.List(ctx)

	next := testutil.SampleNodes()[:2]
	newCS, err := svc.Save(ctx, next, cs)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if newCS != checksum.Tree(next) {
		t.Error("returned checksum does not match saved collection")
	}
	if _, err := svc.Save(ctx, next, cs); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale If-Match: %v", err)
	}
	if _, err := svc.Save(ctx, testutil.SampleNodes(), ""); err != nil {
		t.Errorf("unconditional save: %v", err)
	}
	if got := log.all(); len(got) != 2 || got[0].kind != KindSaved {
		t.Errorf("changes = %v", got)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	svc, _ := newSeededService(t)
	bad := []models.Node{{ID: 1, Parent: 1, Text: "loop", Droppable: true}}
	if _, err := svc.Save(context.Background(), bad, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestReset(t *testing.T) {
	svc, log := newSeededService(t)
	ctx := context.Background()
	if _, err := svc.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	nodes, err := svc.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(nodes) != 5 {
		t.Errorf("reset nodes = %d", len(nodes))
	}
	got := log.all()
	if got[len(got)-1].kind != KindReset {
		t.Errorf("last change = %v", got[len(got)-1])
	}
}

func TestExport(t *testing.T) {
	svc, _ := newSeededService(t)
	name, err := svc.Export(context.Background(), parser.FormatYAML)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasSuffix(name, ".yaml") {
		t.Errorf("name = %s", name)
	}
}

func TestLayout(t *testing.T) {
	svc, _ := newSeededService(t)
	rows, err := svc.Layout(context.Background(), map[int64]bool{2: true})
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, r := range rows {
		ids = append(ids, r.Node.ID)
	}
	want := []int64{1, 2, 3, 5}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestConnectors(t *testing.T) {
	svc, _ := newSeededService(t)
	view, err := svc.Connectors(context.Background(), ConnectorQuery{})
	if err != nil {
		t.Fatal(err)
	}
	// Germany, France, Berlin have non-root parents.
	if len(view.Paths) != 3 {
		t.Fatalf("paths = %d, want 3", len(view.Paths))
	}
	if view.Passes != 1 {
		t.Errorf("passes = %d, want one coalesced pass", view.Passes)
	}
	// Germany: left 48, center 140; Europe center 60.
	if want := "M 36 60 V 128 Q 36 140 48 140 H 48"; view.Paths[0].D != want {
		t.Errorf("d = %q, want %q", view.Paths[0].D, want)
	}
	if view.Width <= 0 || view.Height <= 0 {
		t.Errorf("extent = %vx%v", view.Width, view.Height)
	}
}

func TestConnectorsCollapsedAndScrolled(t *testing.T) {
	svc, _ := newSeededService(t)
	view, err := svc.Connectors(context.Background(), ConnectorQuery{
		Collapsed: map[int64]bool{2: true},
		ScrollY:   20,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Paths) != 2 {
		t.Fatalf("paths = %d, want 2 (Berlin hidden)", len(view.Paths))
	}
	if want := "M 36 40 V 108 Q 36 120 48 120 H 48"; view.Paths[0].D != want {
		t.Errorf("d = %q, want %q", view.Paths[0].D, want)
	}
}

func TestRenderCustomGap(t *testing.T) {
	view := Render(testutil.SampleNodes(), ConnectorQuery{Gap: 20}, layout.DefaultOptions())
	if want := "M 28 60 V 128 Q 28 140 40 140 H 48"; view.Paths[0].D != want {
		t.Errorf("d = %q, want %q", view.Paths[0].D, want)
	}
}
