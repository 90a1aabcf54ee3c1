package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/starford/hiertree/internal/apperr"
	"github.com/starford/hiertree/internal/connector"
	"github.com/starford/hiertree/internal/live"
	"github.com/starford/hiertree/internal/models"
	"github.com/starford/hiertree/internal/parser"
	"github.com/starford/hiertree/internal/treeservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc     *treeservice.Service
	session *live.Session
}

// NewHandler creates a new Handler. session may be nil, in which case the
// live view routes are not mounted.
func NewHandler(svc *treeservice.Service, session *live.Session) *Handler {
	return &Handler{svc: svc, session: session}
}

// nodeID parses the {id} URL parameter.
func nodeID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// parseCollapsed reads a comma-separated id list such as "1,2".
func parseCollapsed(raw string) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, nil
}

// parseFloat reads an optional finite number.
func parseFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", raw)
	}
	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrInvalidMove):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListNodes handles GET /api/nodes.
//
//	@Summary		List the whole collection
//	@Tags			nodes
//	@Produce		json
//	@Success		200		{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/nodes [get]
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, cs, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list nodes", err)
		return
	}
	w.Header().Set("ETag", `"`+cs+`"`)
	writeJSON(w, http.StatusOK, TreeResponse{Nodes: nodes, Checksum: cs})
}

// SaveNodes handles POST /api/nodes.
//
//	@Summary		Replace the whole collection
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header	string			false	"Checksum for optimistic concurrency"
//	@Param			body		body	[]models.Node	true	"Flat node list"
//	@Success		200		{object}	SaveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes [post]
func (h *Handler) SaveNodes(w http.ResponseWriter, r *http.Request) {
	var nodes []models.Node
	if !decodeBody(w, r, &nodes) {
		return
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	cs, err := h.svc.Save(r.Context(), nodes, ifMatch)
	if err != nil {
		writeError(w, "save nodes", err)
		return
	}
	w.Header().Set("ETag", `"`+cs+`"`)
	writeJSON(w, http.StatusOK, SaveResponse{Checksum: cs})
}

// AddChild handles POST /api/nodes/{id}/children. Id 0 adds a top-level
// node.
//
//	@Summary		Add a child node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int			true	"Parent id"
//	@Param			body	body		TextRequest	true	"Label"
//	@Success		201		{object}	models.Node
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/children [post]
func (h *Handler) AddChild(w http.ResponseWriter, r *http.Request) {
	parent, err := nodeID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid node id"))
		return
	}
	var req TextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.svc.Add(r.Context(), parent, req.Text)
	if err != nil {
		writeError(w, "add node", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// RenameNode handles PATCH /api/nodes/{id}.
//
//	@Summary		Rename a node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int			true	"Node id"
//	@Param			body	body		TextRequest	true	"New label"
//	@Success		200		{object}	models.Node
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [patch]
func (h *Handler) RenameNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid node id"))
		return
	}
	var req TextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.svc.Rename(r.Context(), id, req.Text)
	if err != nil {
		writeError(w, "rename node", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MoveNode handles PUT /api/nodes/{id}/parent.
//
//	@Summary		Reparent a node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Node id"
//	@Param			body	body		ParentRequest	true	"New parent"
//	@Success		200		{object}	models.Node
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/parent [put]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid node id"))
		return
	}
	var req ParentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.svc.Move(r.Context(), id, req.Parent)
	if err != nil {
		writeError(w, "move node", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNode handles DELETE /api/nodes/{id}.
//
//	@Summary		Delete a node and its subtree
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		int	true	"Node id"
//	@Success		200	{object}	DeleteResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id} [delete]
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid node id"))
		return
	}
	removed, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, "delete node", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Removed: removed})
}

// ResetTree handles POST /api/tree/reset.
//
//	@Summary		Restore the seed snapshot
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	TreeResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/reset [post]
func (h *Handler) ResetTree(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.Reset(r.Context())
	if err != nil {
		writeError(w, "reset tree", err)
		return
	}
	cs, err := h.svc.Checksum(r.Context())
	if err != nil {
		writeError(w, "reset tree", err)
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Nodes: nodes, Checksum: cs})
}

// ExportTree handles POST /api/tree/export.
//
//	@Summary		Write the collection to a snapshot document
//	@Tags			tree
//	@Produce		json
//	@Param			format	query		string	false	"Document format"	Enums(json, yaml)
//	@Success		201		{object}	ExportResponse
//	@Security		BearerAuth
//	@Router			/tree/export [post]
func (h *Handler) ExportTree(w http.ResponseWriter, r *http.Request) {
	format := parser.FormatJSON
	switch r.URL.Query().Get("format") {
	case "", "json":
	case "yaml", "yml":
		format = parser.FormatYAML
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("format must be json or yaml"))
		return
	}
	path, err := h.svc.Export(r.Context(), format)
	if err != nil {
		writeError(w, "export tree", err)
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Path: path})
}

// Layout handles GET /api/tree/layout.
//
//	@Summary		Rendered rows with card rectangles
//	@Tags			tree
//	@Produce		json
//	@Param			collapsed	query	string	false	"Comma-separated collapsed ids"
//	@Success		200	{array}	layout.Placed
//	@Security		BearerAuth
//	@Router			/tree/layout [get]
func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	collapsed, err := parseCollapsed(r.URL.Query().Get("collapsed"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid collapsed list"))
		return
	}
	rows, err := h.svc.Layout(r.Context(), collapsed)
	if err != nil {
		writeError(w, "layout", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func connectorQuery(r *http.Request) (treeservice.ConnectorQuery, error) {
	q := r.URL.Query()
	var out treeservice.ConnectorQuery
	var err error
	if out.Collapsed, err = parseCollapsed(q.Get("collapsed")); err != nil {
		return out, err
	}
	if out.Gap, err = parseFloat(q.Get("gap")); err != nil {
		return out, err
	}
	if out.ScrollX, err = parseFloat(q.Get("scroll_x")); err != nil {
		return out, err
	}
	if out.ScrollY, err = parseFloat(q.Get("scroll_y")); err != nil {
		return out, err
	}
	return out, nil
}

// Connectors handles GET /api/tree/connectors.
//
//	@Summary		Connector paths for a view of the tree
//	@Tags			tree
//	@Produce		json
//	@Param			collapsed	query	string	false	"Comma-separated collapsed ids"
//	@Param			gap			query	number	false	"Trunk offset"
//	@Param			scroll_x	query	number	false	"Horizontal scroll"
//	@Param			scroll_y	query	number	false	"Vertical scroll"
//	@Success		200	{object}	treeservice.ConnectorView
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/connectors [get]
func (h *Handler) Connectors(w http.ResponseWriter, r *http.Request) {
	q, err := connectorQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid query"))
		return
	}
	view, err := h.svc.Connectors(r.Context(), q)
	if err != nil {
		writeError(w, "connectors", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ConnectorsSVG handles GET /api/tree/connectors.svg.
//
//	@Summary		Connector overlay as SVG
//	@Tags			tree
//	@Produce		image/svg+xml
//	@Param			color	query	string	false	"Stroke color: #rgb, #rrggbb, #rrggbbaa or a CSS color name"
//	@Success		200
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tree/connectors.svg [get]
func (h *Handler) ConnectorsSVG(w http.ResponseWriter, r *http.Request) {
	q, err := connectorQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid query"))
		return
	}
	view, err := h.svc.Connectors(r.Context(), q)
	if err != nil {
		writeError(w, "connectors svg", err)
		return
	}
	color := r.URL.Query().Get("color")
	if color != "" && !connector.ValidColor(color) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid color"))
		return
	}
	var buf bytes.Buffer
	connector.RenderSVG(&buf, view.Paths, connector.Rect{Width: view.Width, Height: view.Height},
		connector.SVGOptions{Color: color})
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetView handles GET /api/tree/view.
//
//	@Summary		State of the shared live view
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	live.View
//	@Security		BearerAuth
//	@Router			/tree/view [get]
func (h *Handler) GetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.View())
}

// UpdateView handles PUT /api/tree/view. The resulting paths arrive on
// the event stream as connectors.updated.
//
//	@Summary		Collapse, scroll or resize the shared live view
//	@Tags			tree
//	@Accept			json
//	@Param			body	body	ViewRequest	true	"View changes"
//	@Success		202
//	@Security		BearerAuth
//	@Router			/tree/view [put]
func (h *Handler) UpdateView(w http.ResponseWriter, r *http.Request) {
	var req ViewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Collapsed != nil {
		h.session.SetCollapsed(req.Collapsed)
	}
	if req.Width != nil || req.Height != nil {
		cur := h.session.Size()
		if req.Width != nil {
			cur.Width = *req.Width
		}
		if req.Height != nil {
			cur.Height = *req.Height
		}
		h.session.Resize(cur.Width, cur.Height)
	}
	if req.ScrollX != nil || req.ScrollY != nil {
		v := h.session.View()
		x, y := v.ScrollX, v.ScrollY
		if req.ScrollX != nil {
			x = *req.ScrollX
		}
		if req.ScrollY != nil {
			y = *req.ScrollY
		}
		h.session.ScrollTo(x, y)
	}
	w.WriteHeader(http.StatusAccepted)
}
