package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bluefermion/annotator/internal/model"
)

// addChangeRequest is the body of POST /api/changes. Without a componentId the
// feedback is general.
type addChangeRequest struct {
	ComponentID string `json:"componentId,omitempty"`
	model.FeedbackForm
}

// updateChangeRequest is the body of PATCH /api/changes/{id}. Status is only
// decoded so that a client trying to set it gets a 400.
type updateChangeRequest struct {
	model.ChangePatch
	Status *model.Status `json:"status,omitempty"`
}

// HandleListChanges returns every change request in insertion order.
// Endpoint: GET /api/changes
func (h *AnnotationHandler) HandleListChanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot().Changes)
}

// HandleAddChange records a change request outside the popover flow.
// Endpoint: POST /api/changes
func (h *AnnotationHandler) HandleAddChange(w http.ResponseWriter, r *http.Request) {
	var req addChangeRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	var (
		c   model.ChangeRequest
		err error
	)
	if req.ComponentID == "" || req.ComponentID == model.GeneralComponentID {
		c, err = h.binder.SubmitGeneral(req.FeedbackForm)
	} else {
		c, err = h.binder.SubmitForm(req.ComponentID, req.FeedbackForm)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleUpdateChange merges a partial update.
// Endpoint: PATCH /api/changes/{id}
func (h *AnnotationHandler) HandleUpdateChange(w http.ResponseWriter, r *http.Request) {
	var req updateChangeRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.Status != nil {
		h.writeError(w, http.StatusBadRequest, "Status is read-only", "status changes only through submission")
		return
	}
	patch := req.ChangePatch
	if patch.Category != nil {
		if _, err := model.ParseCategory(string(*patch.Category)); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid category", err.Error())
			return
		}
	}
	if patch.Priority != nil {
		if _, err := model.ParsePriority(string(*patch.Priority)); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid priority", err.Error())
			return
		}
	}
	c, err := h.store.UpdateChange(r.PathValue("id"), patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleRemoveChange deletes one change request.
// Endpoint: DELETE /api/changes/{id}
func (h *AnnotationHandler) HandleRemoveChange(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveChange(r.PathValue("id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearChanges deletes every change request.
// Endpoint: DELETE /api/changes
func (h *AnnotationHandler) HandleClearChanges(w http.ResponseWriter, r *http.Request) {
	n := h.store.ClearAllChanges()
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// hostContext reads the browser context for a payload from the query string
// (vw, vh) and the User-Agent header.
func hostContext(r *http.Request) model.HostContext {
	host := model.HostContext{UserAgent: r.UserAgent()}
	if vw, ok := queryFloat(r, "vw"); ok {
		host.Viewport.Width = vw
	}
	if vh, ok := queryFloat(r, "vh"); ok {
		host.Viewport.Height = vh
	}
	return host
}

// HandlePayload builds the payload a submission would send, without sending it.
// Endpoint: GET /api/changes/payload
func (h *AnnotationHandler) HandlePayload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.PreviewPayload(hostContext(r)))
}

// HandleSubmit starts a submission of every pending change request. It answers
// 202 as soon as the payload is snapshotted; the outcome lands in the session
// state and the submission history.
// Endpoint: POST /api/changes/submit
func (h *AnnotationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var host model.HostContext
	if err := decode(w, r, &host); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if host.UserAgent == "" {
		host.UserAgent = r.UserAgent()
	}

	// The request context ends with this handler; the submission must outlive it
	// and is cancelled only through DELETE /api/changes/submit.
	ctx := context.WithoutCancel(r.Context())
	resultCh, payload, err := h.store.SubmitChangesAsync(ctx, host)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	go func() {
		res := <-resultCh
		log.Debug().
			Str("submission_id", res.SubmissionID).
			Int("attempts", res.Attempts).
			Bool("ok", res.Err == nil).
			Msg("Submission settled")
	}()

	writeJSON(w, http.StatusAccepted, model.SubmitResponse{
		SubmissionID: payload.SubmissionID,
		ChangeCount:  len(payload.Changes),
		Message:      "Submission started",
	})
}

// HandleCancelSubmit aborts the in-flight submission.
// Endpoint: DELETE /api/changes/submit
func (h *AnnotationHandler) HandleCancelSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.store.CancelSubmission() {
		h.writeError(w, http.StatusConflict, "No submission in progress", "")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleSubmissions lists the submission history, newest first.
// Endpoint: GET /api/submissions
func (h *AnnotationHandler) HandleSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []*model.SubmissionRecord{})
		return
	}
	limit := queryInt(r, "limit", 50, 100)
	if limit == 0 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0, 0)

	recs, err := h.history.ListSubmissions(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list submissions")
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve submissions", "")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
