package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commentnet/internal/apperr"
	"github.com/starford/commentnet/internal/models"
	"github.com/starford/commentnet/internal/parser"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// nodeID extracts the node id from the URL; ids may contain escaped characters.
func nodeID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// parseWindow reads start and end query parameters. Both absent means no window;
// one without the other is an error.
func parseWindow(q url.Values) (*models.DateRange, error) {
	start, end := q.Get("start"), q.Get("end")
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, errors.New("start and end must be given together")
	}
	s, err := parser.ParseDate(start)
	if err != nil {
		return nil, err
	}
	e, err := parser.ParseDate(end)
	if err != nil {
		return nil, err
	}
	r := models.NewDateRange(s, e)
	return &r, nil
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConfiguration):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, ErrNoBuild), errors.Is(err, ErrNoIndex):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListNodes handles GET /nodes.
//
//	@Summary		List nodes with pagination
//	@Tags			nodes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			sort	query		string	false	"Sort field"	Enums(id, degree, comments)
//	@Success		200		{object}	NodeListResponse
//	@Failure		503		{object}	errResponse
//	@Router			/nodes [get]
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNodes(limit, offset, q.Get("sort"))
	if err != nil {
		writeError(w, "list nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: items, Total: total})
}

// GetNode handles GET /nodes/{id}.
//
//	@Summary		Get a node and its edges
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Author id"
//	@Success		200	{object}	NodeDetail
//	@Failure		404	{object}	errResponse
//	@Router			/nodes/{id} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.svc.GetNode(nodeID(r))
	if err != nil {
		writeError(w, "get node", err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// NodeStats handles GET /nodes/{id}/stats.
//
//	@Summary		Corpus statistics of one author
//	@Tags			nodes
//	@Produce		json
//	@Param			id		path		string	true	"Author id"
//	@Param			start	query		string	false	"Window start (YYYY-MM-DD, inclusive)"
//	@Param			end		query		string	false	"Window end (YYYY-MM-DD, exclusive)"
//	@Param			board	query		string	false	"Restrict to board (repeatable)"
//	@Success		200		{object}	StatsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/nodes/{id}/stats [get]
func (h *Handler) NodeStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := parseWindow(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	stats, err := h.svc.NodeStats(nodeID(r), window, q["board"])
	if err != nil {
		writeError(w, "node stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListEdges handles GET /edges.
//
//	@Summary		Heaviest edges
//	@Tags			edges
//	@Produce		json
//	@Param			limit	query		int	false	"Number of edges"
//	@Success		200		{object}	EdgeListResponse
//	@Router			/edges [get]
func (h *Handler) ListEdges(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	edges, total, err := h.svc.TopEdges(limit)
	if err != nil {
		writeError(w, "list edges", err)
		return
	}
	writeJSON(w, http.StatusOK, EdgeListResponse{Edges: edges, Total: total})
}

// CountEdges handles GET /edges/count.
//
//	@Summary		Count interactions in a date window
//	@Tags			edges
//	@Produce		json
//	@Param			start	query		string	true	"Window start (YYYY-MM-DD, inclusive)"
//	@Param			end		query		string	true	"Window end (YYYY-MM-DD, exclusive)"
//	@Success		200		{object}	EdgeCountResponse
//	@Failure		400		{object}	errResponse
//	@Router			/edges/count [get]
func (h *Handler) CountEdges(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r.URL.Query())
	if err == nil && window == nil {
		err = errors.New("start and end are required")
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	n, err := h.svc.CountEdges(*window)
	if err != nil {
		writeError(w, "count edges", err)
		return
	}
	writeJSON(w, http.StatusOK, EdgeCountResponse{
		Start: parser.FormatDate(window.Start),
		End:   parser.FormatDate(window.End),
		Count: n,
	})
}

// GetBuild handles GET /build.
func (h *Handler) GetBuild(w http.ResponseWriter, _ *http.Request) {
	b, err := h.svc.Build()
	if err != nil {
		writeError(w, "get build", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Search handles GET /search.
//
//	@Summary		Search comment text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		503		{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
