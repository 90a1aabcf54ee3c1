package tree

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/hiertree/internal/apperr"
	"github.com/starford/hiertree/internal/models"
)

func TestValidateAcceptsSample(t *testing.T) {
	if err := Validate(sample()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := Validate(nil); err != nil {
		t.Fatalf("empty collection: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		nodes []models.Node
	}{
		{"zero id", []models.Node{{ID: 0, Text: "a"}}},
		{"empty text", []models.Node{{ID: 1, Text: ""}}},
		{"long text", []models.Node{{ID: 1, Text: strings.Repeat("x", MaxTextLength+1)}}},
		{"duplicate id", []models.Node{{ID: 1, Text: "a"}, {ID: 1, Text: "b"}}},
		{"missing parent", []models.Node{{ID: 1, Parent: 7, Text: "a"}}},
		{"self parent", []models.Node{{ID: 1, Parent: 1, Text: "a"}}},
		{"cycle", []models.Node{
			{ID: 1, Parent: 3, Text: "a"},
			{ID: 2, Parent: 1, Text: "b"},
			{ID: 3, Parent: 2, Text: "c"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.nodes)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}
