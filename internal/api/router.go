package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hiertree/internal/live"
	"github.com/starford/hiertree/internal/treeservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// session, if non-nil, backs the shared live view routes.
func NewRouter(svc *treeservice.Service, authEnabled bool, token string, sseHandler http.Handler, session *live.Session) chi.Router {
	h := NewHandler(svc, session)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Collection.
	r.Get("/nodes", h.ListNodes)
	r.Post("/nodes", h.SaveNodes)
	r.Post("/nodes/{id}/children", h.AddChild)
	r.Patch("/nodes/{id}", h.RenameNode)
	r.Put("/nodes/{id}/parent", h.MoveNode)
	r.Delete("/nodes/{id}", h.DeleteNode)

	// Whole-tree operations.
	r.Post("/tree/reset", h.ResetTree)
	r.Post("/tree/export", h.ExportTree)
	r.Post("/tree/import", h.ImportTree)
	r.Get("/tree/snapshots", h.ListSnapshots)

	// Rendering.
	r.Get("/tree/layout", h.Layout)
	r.Get("/tree/connectors", h.Connectors)
	r.Get("/tree/connectors.svg", h.ConnectorsSVG)
	if session != nil {
		r.Get("/tree/view", h.GetView)
		r.Put("/tree/view", h.UpdateView)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
