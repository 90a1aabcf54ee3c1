package api

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/snapshot"
)

// TextRequest is the request body for adding or renaming a node.
type TextRequest struct {
	Text string `json:"text" example:"Berlin" validate:"required"`
}

// ParentRequest is the request body for reparenting a node.
type ParentRequest struct {
	Parent int64 `json:"parent" example:"0"`
}

// ViewRequest updates the shared live view. Nil fields are left as is.
type ViewRequest struct {
	Collapsed []int64  `json:"collapsed"`
	ScrollX   *float64 `json:"scroll_x"`
	ScrollY   *float64 `json:"scroll_y"`
	Width     *float64 `json:"width"`
	Height    *float64 `json:"height"`
}

// Validate rejects non-finite numbers and negative viewport sizes.
func (r *ViewRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ScrollX, validation.By(finite)),
		validation.Field(&r.ScrollY, validation.By(finite)),
		validation.Field(&r.Width, validation.By(finite), validation.Min(0.0)),
		validation.Field(&r.Height, validation.By(finite), validation.Min(0.0)),
	)
}

func finite(value any) error {
	v, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return errors.New("must be a finite number")
	}
	return nil
}

// TreeResponse carries the whole collection and its checksum.
type TreeResponse struct {
	Nodes    []models.Node `json:"nodes" validate:"required"`
	Checksum string        `json:"checksum" validate:"required"`
}

// SaveResponse reports the checksum of a saved collection.
type SaveResponse struct {
	Checksum string `json:"checksum" validate:"required"`
}

// DeleteResponse lists the ids removed by a cascading delete.
type DeleteResponse struct {
	Removed []int64 `json:"removed" validate:"required"`
}

// ExportResponse names the written snapshot document.
type ExportResponse struct {
	Path string `json:"path" example:"exports/20250101T120000Z-1a2b3c4d.json" validate:"required"`
}

// SnapshotListResponse lists snapshot documents.
type SnapshotListResponse struct {
	Snapshots []snapshot.Meta `json:"snapshots" validate:"required"`
}
