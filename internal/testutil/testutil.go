// Package testutil provides shared test helpers for setting up seed
// directories and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/snapshot"
	"github.com/starford/hiertree/internal/store"
)

// SeedFile is the seed document name used by TestSeedDir.
const SeedFile = "seed.json"

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "hiertree-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SampleNodes returns a small geography tree:
//
//	Europe(1) ─ Germany(2) ─ Berlin(4)
//	          └ France(3)
//	Asia(5, not droppable)
func SampleNodes() []models.Node {
	return []models.Node{
		{ID: 1, Parent: models.RootID, Text: "Europe", Droppable: true},
		{ID: 2, Parent: 1, Text: "Germany", Droppable: true},
		{ID: 3, Parent: 1, Text: "France", Droppable: true},
		{ID: 4, Parent: 2, Text: "Berlin", Droppable: true},
		{ID: 5, Parent: models.RootID, Text: "Asia", Droppable: false},
	}
}

// TestSeedDir creates a temporary snapshot directory holding SampleNodes
// as SeedFile.
func TestSeedDir(t *testing.T) (string, *snapshot.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := snapshot.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Save(SeedFile, SampleNodes()); err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
