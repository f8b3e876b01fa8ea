package handler

import (
	"net/http"

	"github.com/bluefermion/annotator/internal/model"
)

// HandleSession returns the session snapshot.
// Endpoint: GET /api/session
func (h *AnnotationHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// HandleToggle flips annotation mode.
// Endpoint: POST /api/session/toggle
func (h *AnnotationHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	h.store.ToggleEnabled()
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// HandleHover sets or clears the hovered component.
// Endpoint: PUT /api/session/hover
func (h *AnnotationHandler) HandleHover(w http.ResponseWriter, r *http.Request) {
	var req model.HoverRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	id := ""
	if req.ComponentID != nil {
		id = *req.ComponentID
	}
	h.store.Hover(id)
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// HandleSelect selects a component.
// Endpoint: POST /api/session/select
func (h *AnnotationHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req model.SelectRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.ComponentID == "" {
		h.writeError(w, http.StatusBadRequest, "componentId is required", "")
		return
	}
	if err := h.store.Select(req.ComponentID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// HandleDeselect clears the selection.
// Endpoint: DELETE /api/session/select
func (h *AnnotationHandler) HandleDeselect(w http.ResponseWriter, r *http.Request) {
	h.store.Deselect()
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// HandleSidebarToggle sets the sidebar state, or flips it when no state is sent.
// Endpoint: POST /api/session/sidebar
func (h *AnnotationHandler) HandleSidebarToggle(w http.ResponseWriter, r *http.Request) {
	var req model.SidebarRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.Open != nil {
		h.store.SetSidebarOpen(*req.Open)
	} else {
		h.store.ToggleSidebar()
	}
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// HandleTreeToggle flips the component tree panel.
// Endpoint: POST /api/session/tree
func (h *AnnotationHandler) HandleTreeToggle(w http.ResponseWriter, r *http.Request) {
	h.store.ToggleComponentTree()
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// HandleConfig merges a partial config.
// Endpoint: PATCH /api/session/config
func (h *AnnotationHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	var patch model.ConfigPatch
	if err := decode(w, r, &patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	cfg, err := h.store.UpdateConfig(patch)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid configuration", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

// HandleShowPopover opens the editor popover.
// Endpoint: POST /api/popover
func (h *AnnotationHandler) HandleShowPopover(w http.ResponseWriter, r *http.Request) {
	var req model.PopoverRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.ComponentID == "" {
		h.writeError(w, http.StatusBadRequest, "componentId is required", "")
		return
	}
	state, prefill, err := h.store.ShowPopover(req.ComponentID, req.Position, req.EditingChangeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.PopoverResponse{Popover: state, Prefill: prefill})
}

// HandleHidePopover closes the popover. An in-flight submission is unaffected.
// Endpoint: DELETE /api/popover
func (h *AnnotationHandler) HandleHidePopover(w http.ResponseWriter, r *http.Request) {
	h.store.HidePopover()
	w.WriteHeader(http.StatusNoContent)
}
