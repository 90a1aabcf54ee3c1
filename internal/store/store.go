package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/hiertree/internal/models"
)

// NodeStore defines the persistence operations on the tree collection.
// Consumers should depend on this interface rather than the concrete *DB.
type NodeStore interface {
	All(ctx context.Context) ([]models.Node, error)
	ReplaceAll(ctx context.Context, nodes []models.Node) error
	Count(ctx context.Context) (int, error)
	SavedAt(ctx context.Context) (time.Time, error)
	Close() error
}

// Verify *DB satisfies NodeStore at compile time.
var _ NodeStore = (*DB)(nil)

const savedAtKey = "saved_at"

// All returns every node in collection order.
func (db *DB) All(ctx context.Context) ([]models.Node, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, parent, text, droppable FROM nodes ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("store: all: %w", err)
	}
	defer rows.Close()

	out := []models.Node{}
	for rows.Next() {
		var n models.Node
		if err := rows.Scan(&n.ID, &n.Parent, &n.Text, &n.Droppable); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ReplaceAll swaps the stored collection for nodes within one transaction.
func (db *DB) ReplaceAll(ctx context.Context, nodes []models.Node) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	if len(nodes) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO nodes (id, parent, text, droppable, position) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert: %w", err)
		}
		defer stmt.Close()
		for i, n := range nodes {
			if _, err := stmt.ExecContext(ctx, n.ID, n.Parent, n.Text, n.Droppable, i); err != nil {
				return fmt.Errorf("store: insert node %d: %w", n.ID, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, savedAtKey, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store: stamp: %w", err)
	}

	return tx.Commit()
}

// Count returns the number of stored nodes.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// SavedAt returns when the collection was last replaced, or the zero time
// if it never was.
func (db *DB) SavedAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, savedAtKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: saved at: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse saved at: %w", err)
	}
	return ts, nil
}
