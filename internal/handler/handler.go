// Package handler implements the HTTP transport layer for the application.
//
// EDUCATIONAL CONTEXT:
// The browser overlay is a thin client: it reports pointer events, element
// rectangles and page context, and draws whatever the server says. Handlers
// here are responsible for:
// 1. Parsing incoming HTTP requests (JSON bodies, query params, path vars).
// 2. Invoking the session store or the binding layer.
// 3. Mapping domain errors to status codes and formatting the response.
//
// They hold no session state of their own.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/bluefermion/annotator/internal/binding"
	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/session"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// HistoryLister lists recorded submission attempts.
type HistoryLister interface {
	ListSubmissions(ctx context.Context, limit, offset int) ([]*model.SubmissionRecord, error)
}

// AnnotationHandler groups every annotation endpoint.
type AnnotationHandler struct {
	store   *session.Store
	binder  *binding.Binder
	history HistoryLister
	md      goldmark.Markdown
	// templates maps a page name (e.g., "demo.html") to its parsed template.
	templates map[string]*template.Template
}

// NewAnnotationHandler wires the handler. history may be nil. Templates are
// parsed once; broken templates panic at startup.
func NewAnnotationHandler(store *session.Store, binder *binding.Binder, history HistoryLister, templateFS fs.FS) *AnnotationHandler {
	h := &AnnotationHandler{
		store:   store,
		binder:  binder,
		history: history,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}

	funcMap := template.FuncMap{
		"markdown": h.renderMarkdown,
		"pending": func(cs []model.ChangeRequest) int {
			n := 0
			for _, c := range cs {
				if c.Status == model.StatusPending {
					n++
				}
			}
			return n
		},
	}

	// Base + page: each page is parsed into its own clone of the layout.
	baseTmpl := template.Must(template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "base.html"))

	h.templates = make(map[string]*template.Template)
	for _, page := range []string{"demo.html", "sidebar.html"} {
		clone := template.Must(baseTmpl.Clone())
		h.templates[page] = template.Must(clone.ParseFS(templateFS, page))
	}
	return h
}

// renderMarkdown turns feedback text into HTML. Raw HTML in the source is
// escaped by goldmark's default renderer.
func (h *AnnotationHandler) renderMarkdown(s string) template.HTML {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(buf.String())
}

// Register mounts every annotation route on mux.
func (h *AnnotationHandler) Register(mux *http.ServeMux) {
	// -- Session --
	mux.HandleFunc("GET /api/session", h.HandleSession)
	mux.HandleFunc("POST /api/session/toggle", h.HandleToggle)
	mux.HandleFunc("PUT /api/session/hover", h.HandleHover)
	mux.HandleFunc("POST /api/session/select", h.HandleSelect)
	mux.HandleFunc("DELETE /api/session/select", h.HandleDeselect)
	mux.HandleFunc("POST /api/session/sidebar", h.HandleSidebarToggle)
	mux.HandleFunc("POST /api/session/tree", h.HandleTreeToggle)
	mux.HandleFunc("PATCH /api/session/config", h.HandleConfig)

	// -- Popover --
	mux.HandleFunc("POST /api/popover", h.HandleShowPopover)
	mux.HandleFunc("DELETE /api/popover", h.HandleHidePopover)

	// -- Element binding --
	mux.HandleFunc("GET /api/elements/{usageId}", h.HandleElement)
	mux.HandleFunc("POST /api/elements/{usageId}/enter", h.HandlePointerEnter)
	mux.HandleFunc("POST /api/elements/{usageId}/leave", h.HandlePointerLeave)
	mux.HandleFunc("POST /api/elements/{usageId}/click", h.HandleClick)
	mux.HandleFunc("POST /api/elements/{usageId}/feedback", h.HandleElementFeedback)

	// -- Change requests and submission --
	mux.HandleFunc("GET /api/changes", h.HandleListChanges)
	mux.HandleFunc("POST /api/changes", h.HandleAddChange)
	mux.HandleFunc("DELETE /api/changes", h.HandleClearChanges)
	mux.HandleFunc("GET /api/changes/payload", h.HandlePayload)
	mux.HandleFunc("POST /api/changes/submit", h.HandleSubmit)
	mux.HandleFunc("DELETE /api/changes/submit", h.HandleCancelSubmit)
	mux.HandleFunc("PATCH /api/changes/{id}", h.HandleUpdateChange)
	mux.HandleFunc("DELETE /api/changes/{id}", h.HandleRemoveChange)
	mux.HandleFunc("GET /api/submissions", h.HandleSubmissions)

	// -- Catalog and positioning --
	mux.HandleFunc("GET /api/catalog/definitions/{id}", h.HandleDefinition)
	mux.HandleFunc("GET /api/catalog/usages/{id}", h.HandleUsage)
	mux.HandleFunc("POST /api/position", h.HandlePosition)

	// -- Pages --
	mux.HandleFunc("GET /sidebar", h.HandleSidebarPage)
	mux.HandleFunc("GET /demo", h.HandleDemo)
}

// render renders a page. HTMX requests (HX-Request: true) get only the
// "content" block.
func (h *AnnotationHandler) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	tmpl, ok := h.templates[name]
	if !ok {
		http.Error(w, fmt.Sprintf("Template %s not found", name), http.StatusInternalServerError)
		return
	}

	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	// Render into a buffer so a template error can still produce a clean 500.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, target, data); err != nil {
		log.Error().Err(err).Str("template", name).Str("target", target).Msg("Template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError standardizes error responses.
func (h *AnnotationHandler) writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, model.ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// writeDomainError maps store and binding errors to status codes.
func (h *AnnotationHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrChangeNotFound):
		h.writeError(w, http.StatusNotFound, "Change request not found", "")
	case errors.Is(err, model.ErrEmptyFeedback):
		h.writeError(w, http.StatusBadRequest, "Feedback is required", "")
	case errors.Is(err, session.ErrDisabled),
		errors.Is(err, session.ErrCapacityReached),
		errors.Is(err, session.ErrDuplicateChange),
		errors.Is(err, session.ErrNothingToSubmit),
		errors.Is(err, session.ErrSubmissionInFlight):
		h.writeError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, session.ErrNoSubmitter):
		h.writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	default:
		// Everything else reaching a handler is a validation failure
		// (unknown category, bad config value).
		h.writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	}
}

// queryFloat parses a float query parameter. ok is false when it is absent or
// malformed.
func queryFloat(r *http.Request, key string) (float64, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// queryInt parses a bounded non-negative int query parameter, falling back to def.
func queryInt(r *http.Request, key string, def, limit int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || (limit > 0 && v > limit) {
		return def
	}
	return v
}
