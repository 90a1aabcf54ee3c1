// Package treeservice coordinates the node store, the tree operations, the
// seed snapshot and connector rendering.
package treeservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/starford/hiertree/internal/apperr"
	"github.com/starford/hiertree/internal/checksum"
	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/layout"
	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/parser"
	"github.com/starford/hiertree/internal/snapshot"
	"github.com/starford/hiertree/internal/store"
	"github.com/starford/hiertree/internal/tree"
)

// Change kinds passed to the change callback.
const (
	KindCreated = "node.created"
	KindUpdated = "node.updated"
	KindMoved   = "node.moved"
	KindDeleted = "node.deleted"
	KindSaved   = "tree.saved"
	KindReset   = "tree.reset"
)

// ChangeFunc is called after every successful mutation. id is zero for
// whole-collection changes.
type ChangeFunc func(kind string, id int64, nodes []models.Node)

// Service coordinates store and snapshot operations.
type Service struct {
	store    store.NodeStore
	snaps    snapshot.Provider
	seedFile string
	layout   layout.Options
	gap      float64
	onChange ChangeFunc
	now      func() time.Time

	// mu serialises read-modify-write cycles on the collection.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLayout sets the card geometry used by Layout and Connectors.
func WithLayout(opts layout.Options) Option {
	return func(s *Service) { s.layout = opts }
}

// WithGap sets the default trunk offset.
func WithGap(gap float64) Option {
	return func(s *Service) { s.gap = gap }
}

// WithOnChange registers the change callback.
func WithOnChange(fn ChangeFunc) Option {
	return func(s *Service) { s.onChange = fn }
}

// WithClock overrides the time source used for new node ids.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new tree service. seedFile is resolved against
// snaps.
func NewService(st store.NodeStore, snaps snapshot.Provider, seedFile string, opts ...Option) *Service {
	s := &Service{
		store:    st,
		snaps:    snaps,
		seedFile: seedFile,
		layout:   layout.DefaultOptions(),
		gap:      connector.DefaultGap,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOnChange replaces the change callback.
func (s *Service) SetOnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// List returns the collection and its checksum.
func (s *Service) List(ctx context.Context) ([]models.Node, string, error) {
	nodes, err := s.store.All(ctx)
	if err != nil {
		return nil, "", err
	}
	return nodes, checksum.Tree(nodes), nil
}

// Checksum returns the checksum of the stored collection.
func (s *Service) Checksum(ctx context.Context) (string, error) {
	_, cs, err := s.List(ctx)
	return cs, err
}

// Save replaces the whole collection. A non-empty ifMatch must equal the
// current checksum.
func (s *Service) Save(ctx context.Context, nodes []models.Node, ifMatch string) (string, error) {
	if err := tree.Validate(nodes); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ifMatch != "" {
		current, err := s.store.All(ctx)
		if err != nil {
			return "", err
		}
		if checksum.Tree(current) != ifMatch {
			return "", apperr.ErrConflict
		}
	}
	if err := s.commitLocked(ctx, KindSaved, 0, nodes); err != nil {
		return "", err
	}
	return checksum.Tree(nodes), nil
}

// Add appends a child under parent.
func (s *Service) Add(ctx context.Context, parent int64, text string) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.store.All(ctx)
	if err != nil {
		return models.Node{}, err
	}
	out, n, err := tree.Add(nodes, parent, text, s.now())
	if err != nil {
		return models.Node{}, err
	}
	if err := s.commitLocked(ctx, KindCreated, n.ID, out); err != nil {
		return models.Node{}, err
	}
	return n, nil
}

// Rename changes a node's text. Empty or unchanged text is accepted and
// leaves the collection untouched.
func (s *Service) Rename(ctx context.Context, id int64, text string) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.store.All(ctx)
	if err != nil {
		return models.Node{}, err
	}
	out, changed, err := tree.Rename(nodes, id, text)
	if err != nil {
		return models.Node{}, err
	}
	if changed {
		if err := s.commitLocked(ctx, KindUpdated, id, out); err != nil {
			return models.Node{}, err
		}
	}
	return tree.Get(out, id)
}

// Delete removes a node and its subtree, returning the removed ids.
func (s *Service) Delete(ctx context.Context, id int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out, removed, err := tree.Delete(nodes, id)
	if err != nil {
		return nil, err
	}
	if err := s.commitLocked(ctx, KindDeleted, id, out); err != nil {
		return nil, err
	}
	return removed, nil
}

// Move reparents a node under newParent.
func (s *Service) Move(ctx context.Context, id, newParent int64) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.store.All(ctx)
	if err != nil {
		return models.Node{}, err
	}
	out, err := tree.Move(nodes, id, newParent)
	if err != nil {
		return models.Node{}, err
	}
	if err := s.commitLocked(ctx, KindMoved, id, out); err != nil {
		return models.Node{}, err
	}
	return tree.Get(out, id)
}

// Reset restores the seed snapshot.
func (s *Service) Reset(ctx context.Context) ([]models.Node, error) {
	nodes, err := s.loadSeed()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitLocked(ctx, KindReset, 0, nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// EnsureSeeded loads the seed into an empty store. A missing seed file
// leaves the store empty. It reports whether the seed was loaded.
func (s *Service) EnsureSeeded(ctx context.Context) (bool, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	nodes, err := s.loadSeed()
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.store.ReplaceAll(ctx, nodes); err != nil {
		return false, err
	}
	return true, nil
}

// Export writes the stored collection to a new snapshot document.
func (s *Service) Export(ctx context.Context, format parser.Format) (string, error) {
	nodes, err := s.store.All(ctx)
	if err != nil {
		return "", err
	}
	return s.snaps.Export(nodes, format)
}

// Snapshots lists the documents in the snapshot directory.
func (s *Service) Snapshots() ([]snapshot.Meta, error) {
	return s.snaps.List()
}

func (s *Service) loadSeed() ([]models.Node, error) {
	nodes, err := s.snaps.Load(s.seedFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("seed %s: %w", s.seedFile, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := tree.Validate(nodes); err != nil {
		return nil, fmt.Errorf("seed %s: %w", s.seedFile, err)
	}
	return nodes, nil
}

func (s *Service) commitLocked(ctx context.Context, kind string, id int64, nodes []models.Node) error {
	if err := s.store.ReplaceAll(ctx, nodes); err != nil {
		return err
	}
	if s.onChange != nil {
		s.onChange(kind, id, models.Clone(nodes))
	}
	return nil
}
