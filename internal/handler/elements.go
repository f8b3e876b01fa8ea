package handler

import (
	"net/http"

	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/position"
)

// HandleElement returns what the overlay should draw for one element. The
// element rectangle (x, y, w, h) and viewport (vw, vh) are optional query
// parameters used for label placement.
// Endpoint: GET /api/elements/{usageId}
func (h *AnnotationHandler) HandleElement(w http.ResponseWriter, r *http.Request) {
	usageID := r.PathValue("usageId")

	var rect *model.Rect
	x, okX := queryFloat(r, "x")
	y, okY := queryFloat(r, "y")
	wd, okW := queryFloat(r, "w")
	ht, okH := queryFloat(r, "h")
	if okX && okY && okW && okH {
		rect = &model.Rect{X: x, Y: y, Width: wd, Height: ht}
	}
	var vp *model.Viewport
	vw, okVW := queryFloat(r, "vw")
	vh, okVH := queryFloat(r, "vh")
	if okVW && okVH {
		vp = &model.Viewport{Width: vw, Height: vh}
	}

	writeJSON(w, http.StatusOK, h.binder.View(usageID, rect, vp))
}

// HandlePointerEnter marks an element hovered.
// Endpoint: POST /api/elements/{usageId}/enter
func (h *AnnotationHandler) HandlePointerEnter(w http.ResponseWriter, r *http.Request) {
	usageID := r.PathValue("usageId")
	h.binder.PointerEnter(usageID)
	writeJSON(w, http.StatusOK, h.binder.View(usageID, nil, nil))
}

// HandlePointerLeave clears the hover.
// Endpoint: POST /api/elements/{usageId}/leave
func (h *AnnotationHandler) HandlePointerLeave(w http.ResponseWriter, r *http.Request) {
	usageID := r.PathValue("usageId")
	h.binder.PointerLeave(usageID)
	writeJSON(w, http.StatusOK, h.binder.View(usageID, nil, nil))
}

// HandleClick selects the element and opens or closes its popover.
// Endpoint: POST /api/elements/{usageId}/click
func (h *AnnotationHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	var req model.ClickRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	res, err := h.binder.Click(r.PathValue("usageId"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleElementFeedback handles the popover form of an element.
// Endpoint: POST /api/elements/{usageId}/feedback
func (h *AnnotationHandler) HandleElementFeedback(w http.ResponseWriter, r *http.Request) {
	var form model.FeedbackForm
	if err := decode(w, r, &form); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	c, err := h.binder.SubmitForm(r.PathValue("usageId"), form)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandlePosition runs the positioning engine.
// Endpoint: POST /api/position
func (h *AnnotationHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	var req model.PositionRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.Viewport.Width <= 0 || req.Viewport.Height <= 0 {
		h.writeError(w, http.StatusBadRequest, "viewport size is required", "")
		return
	}
	panel := position.DefaultPanel
	if req.Panel != nil {
		panel = *req.Panel
	}
	writeJSON(w, http.StatusOK, position.Popover(req.Target, req.Viewport, panel))
}

// HandleDefinition looks up a definition.
// Endpoint: GET /api/catalog/definitions/{id}
func (h *AnnotationHandler) HandleDefinition(w http.ResponseWriter, r *http.Request) {
	d, ok := h.store.Resolver().Definition(r.PathValue("id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "Definition not found", "")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleUsage returns the resolved view of a usage. Unknown ids still resolve,
// with degraded metadata, so the overlay can show something.
// Endpoint: GET /api/catalog/usages/{id}
func (h *AnnotationHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Resolver().Resolve(r.PathValue("id")))
}
