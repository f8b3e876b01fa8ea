package model

// The types below are the JSON contracts between the browser overlay and the
// HTTP layer. Keeping them apart from the entities lets the wire format evolve
// without touching the store.

// HoverRequest sets or clears (null/empty) the hovered component.
type HoverRequest struct {
	ComponentID *string `json:"componentId"`
}

// SelectRequest selects a component.
type SelectRequest struct {
	ComponentID string `json:"componentId"`
}

// SidebarRequest sets the sidebar state; a missing Open toggles it.
type SidebarRequest struct {
	Open *bool `json:"open,omitempty"`
}

// PopoverRequest opens the editor popover.
type PopoverRequest struct {
	ComponentID     string `json:"componentId"`
	Position        Anchor `json:"position"`
	EditingChangeID string `json:"editingChangeId,omitempty"`
}

// PopoverResponse returns the popover state and the change request the form
// should be pre-filled from, if any.
type PopoverResponse struct {
	Popover PopoverState   `json:"popoverState"`
	Prefill *ChangeRequest `json:"prefill,omitempty"`
}

// ClickRequest reports a click on an annotated element.
type ClickRequest struct {
	Rect     Rect     `json:"rect"`
	Viewport Viewport `json:"viewport"`
}

// DOMNode is one ancestor of a clicked element, innermost first.
type DOMNode struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
}

// Capture is the browser context collected when the popover form is submitted.
type Capture struct {
	// Ancestors runs from the element itself outwards to the document root.
	Ancestors  []DOMNode         `json:"ancestors,omitempty"`
	Rect       *Rect             `json:"rect,omitempty"`
	URL        string            `json:"url,omitempty"`
	Title      string            `json:"title,omitempty"`
	Path       string            `json:"path,omitempty"`
	Query      map[string]string `json:"query,omitempty"`
	SourceLine int               `json:"sourceLine,omitempty"`
	SourceCol  int               `json:"sourceColumn,omitempty"`
}

// FeedbackForm is the popover (or general feedback) form.
type FeedbackForm struct {
	Feedback        string   `json:"feedback"`
	Category        Category `json:"category"`
	Priority        Priority `json:"priority"`
	EditingChangeID string   `json:"editingChangeId,omitempty"`
	Capture         Capture  `json:"capture"`
}

// PositionRequest asks the positioning engine for a panel anchor.
type PositionRequest struct {
	Target   Rect     `json:"target"`
	Viewport Viewport `json:"viewport"`
	Panel    *Size    `json:"panel,omitempty"`
}

// SubmitResponse acknowledges a started submission.
type SubmitResponse struct {
	SubmissionID string `json:"submissionId"`
	ChangeCount  int    `json:"changeCount"`
	Message      string `json:"message"`
}

// ErrorResponse defines the standard error structure.
// Structured errors help the overlay display meaningful messages to the user.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
