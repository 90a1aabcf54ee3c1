package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/hiertree/internal/parser"
)

const maxUploadBytes = 10 << 20 // 10 MB

// ListSnapshots handles GET /api/tree/snapshots.
//
//	@Summary		List snapshot documents
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	SnapshotListResponse
//	@Security		BearerAuth
//	@Router			/tree/snapshots [get]
func (h *Handler) ListSnapshots(w http.ResponseWriter, _ *http.Request) {
	metas, err := h.svc.Snapshots()
	if err != nil {
		writeError(w, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotListResponse{Snapshots: metas})
}

// ImportTree handles POST /api/tree/import (multipart/form-data, field
// "file"). The uploaded JSON or YAML document replaces the collection.
//
//	@Summary		Replace the collection with an uploaded document
//	@Tags			tree
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Tree document (.json, .yaml)"
//	@Param			If-Match	header		string	false	"Checksum for optimistic concurrency"
//	@Success		200	{object}	TreeResponse
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/import [post]
func (h *Handler) ImportTree(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".json", ".yaml", ".yml":
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("file must be .json, .yaml or .yml"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	nodes, err := parser.Parse(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	cs, err := h.svc.Save(r.Context(), nodes, ifMatch)
	if err != nil {
		writeError(w, "import tree", err)
		return
	}
	w.Header().Set("ETag", `"`+cs+`"`)
	writeJSON(w, http.StatusOK, TreeResponse{Nodes: nodes, Checksum: cs})
}
