package tree

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hiertree/internal/apperr"
	"github.com/starford/hiertree/internal/models"
)

// MaxTextLength bounds a node label.
const MaxTextLength = 200

func validateNode(n models.Node) error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&n.Parent, validation.Min(int64(0))),
		validation.Field(&n.Text, validation.Required, validation.Length(1, MaxTextLength)),
	)
}

// Validate checks a whole collection before it is persisted: every node is
// well formed, ids are unique, parents exist and the parent chain of every
// node reaches the root.
func Validate(nodes []models.Node) error {
	byID := make(map[int64]models.Node, len(nodes))
	for i, n := range nodes {
		if err := validateNode(n); err != nil {
			return fmt.Errorf("node at index %d: %w: %w", i, apperr.ErrValidation, err)
		}
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("duplicate id %d: %w", n.ID, apperr.ErrValidation)
		}
		byID[n.ID] = n
	}

	for _, n := range nodes {
		if n.IsRoot() {
			continue
		}
		if n.Parent == n.ID {
			return fmt.Errorf("node %d is its own parent: %w", n.ID, apperr.ErrValidation)
		}
		if _, ok := byID[n.Parent]; !ok {
			return fmt.Errorf("node %d references missing parent %d: %w", n.ID, n.Parent, apperr.ErrValidation)
		}
	}

	if err := checkCycles(byID); err != nil {
		return err
	}
	return nil
}

var errCycle = errors.New("cycle")

func checkCycles(byID map[int64]models.Node) error {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[int64]int, len(byID))
	for id := range byID {
		var chain []int64
		cur := id
		for cur != models.RootID && state[cur] == unvisited {
			state[cur] = active
			chain = append(chain, cur)
			cur = byID[cur].Parent
		}
		if cur != models.RootID && state[cur] == active {
			return fmt.Errorf("node %d: %w: %w", cur, apperr.ErrValidation, errCycle)
		}
		for _, c := range chain {
			state[c] = done
		}
	}
	return nil
}
