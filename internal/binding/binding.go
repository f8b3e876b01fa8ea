// Package binding is the per-element glue between a rendered widget and the
// annotation session.
//
// EDUCATIONAL CONTEXT:
// The browser overlay wraps every annotateable widget with a usage id. For each
// of them it asks this package what to draw (idle, hovered or selected, plus
// the resolved catalog metadata) and forwards pointer events and popover form
// submissions here. The binder never mutates session state directly: every
// action goes through a session.Store operation.
package binding

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bluefermion/annotator/internal/catalog"
	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/position"
	"github.com/bluefermion/annotator/internal/session"
)

// Overlay is the visual state of one element.
type Overlay string

const (
	OverlayNone     Overlay = "none"
	OverlayIdle     Overlay = "idle"
	OverlayHovered  Overlay = "hovered"
	OverlaySelected Overlay = "selected"
)

// View is everything the overlay needs to draw one element.
type View struct {
	UsageID string  `json:"usageId"`
	Overlay Overlay `json:"overlay"`
	// Registered is false when the registry is loaded but does not know the id.
	Registered  bool                      `json:"registered"`
	Component   catalog.ResolvedComponent `json:"component"`
	Label       model.LabelPlacement      `json:"labelPlacement,omitempty"`
	Small       bool                      `json:"small"`
	PopoverOpen bool                      `json:"popoverOpen"`
	Popover     *model.PopoverState       `json:"popoverState,omitempty"`
	Pending     *model.ChangeRequest      `json:"pendingChange,omitempty"`
	Color       string                    `json:"highlightColor,omitempty"`
	ShowLabel   bool                      `json:"showLabel"`
}

// ClickResult reports what a click did.
type ClickResult struct {
	Opened  bool                 `json:"opened"`
	Popover *model.PopoverState  `json:"popoverState,omitempty"`
	Prefill *model.ChangeRequest `json:"prefill,omitempty"`
}

// Options configures a Binder.
type Options struct {
	// Production silences the unregistered-usage diagnostic.
	Production bool
	Now        func() time.Time
}

// Binder binds usage ids to the session store and the catalogs.
type Binder struct {
	store      *session.Store
	resolver   *catalog.Resolver
	production bool
	now        func() time.Time

	warned sync.Map
}

// New creates a binder over store. The store's resolver is used for metadata.
func New(store *session.Store, opts Options) *Binder {
	b := &Binder{
		store:      store,
		resolver:   store.Resolver(),
		production: opts.Production,
		now:        opts.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// View computes the overlay for usageID. rect and vp are optional; when both
// are known the label placement is computed as well.
func (b *Binder) View(usageID string, rect *model.Rect, vp *model.Viewport) View {
	st := b.store.Snapshot()

	v := View{
		UsageID:    usageID,
		Overlay:    OverlayNone,
		Registered: true,
		Color:      st.Config.HighlightColor,
		ShowLabel:  st.Config.ShowLabels,
	}

	// Until the registry has loaded, render the element untouched rather than
	// flagging it as unregistered.
	if !b.resolver.Loaded() {
		v.Component = catalog.ResolvedComponent{UsageID: usageID, Name: usageID}
		return v
	}

	v.Component = b.resolver.Resolve(usageID)
	if !v.Component.Registered {
		v.Registered = false
		b.warnUnregistered(usageID)
	}

	if st.Enabled {
		switch usageID {
		case st.SelectedComponentID:
			v.Overlay = OverlaySelected
		case st.HoveredComponentID:
			v.Overlay = OverlayHovered
		default:
			v.Overlay = OverlayIdle
		}
	}
	if st.Popover != nil && st.Popover.TargetID == usageID {
		v.PopoverOpen = true
		p := *st.Popover
		v.Popover = &p
	}
	for i := len(st.Changes) - 1; i >= 0; i-- {
		c := st.Changes[i]
		if c.ComponentID == usageID && c.Status == model.StatusPending {
			v.Pending = &c
			break
		}
	}
	if rect != nil {
		v.Small = position.IsSmall(*rect)
		if vp != nil {
			v.Label = position.Label(*rect, *vp, position.DefaultLabel)
		}
	}
	return v
}

func (b *Binder) warnUnregistered(usageID string) {
	if b.production {
		return
	}
	if _, seen := b.warned.LoadOrStore(usageID, struct{}{}); seen {
		return
	}
	log.Warn().Str("usage_id", usageID).Msg("Annotated element has no registered usage")
}

// PointerEnter marks usageID as hovered.
func (b *Binder) PointerEnter(usageID string) bool {
	return b.store.Hover(usageID)
}

// PointerLeave clears the hover.
func (b *Binder) PointerLeave(usageID string) bool {
	if b.store.Snapshot().HoveredComponentID != usageID {
		return false
	}
	return b.store.Hover("")
}

// Click selects usageID and opens its popover anchored next to rect, or closes
// the popover when it is already open on usageID.
func (b *Binder) Click(usageID string, req model.ClickRequest) (ClickResult, error) {
	anchor := position.Popover(req.Rect, req.Viewport, position.DefaultPanel)
	opened, state, prefill, err := b.store.TogglePopover(usageID, anchor)
	if err != nil {
		return ClickResult{}, err
	}
	res := ClickResult{Opened: opened, Prefill: prefill}
	if opened {
		res.Popover = &state
	}
	return res, nil
}

// SubmitForm handles the popover form for usageID. An existing request (named
// by the form or pending on the element) is updated; otherwise a new request is
// created from the captured browser context. The popover closes on success.
func (b *Binder) SubmitForm(usageID string, form model.FeedbackForm) (model.ChangeRequest, error) {
	if usageID == "" {
		usageID = model.GeneralComponentID
	}
	cat, prio, err := parseEnums(form)
	if err != nil {
		return model.ChangeRequest{}, err
	}

	editing := form.EditingChangeID
	if editing == "" && usageID != model.GeneralComponentID {
		if c, ok := b.store.PendingFor(usageID); ok {
			editing = c.ID
		}
	}

	var out model.ChangeRequest
	if editing != "" {
		out, err = b.store.UpdateChange(editing, model.ChangePatch{
			Feedback: &form.Feedback,
			Category: &cat,
			Priority: &prio,
		})
		if errors.Is(err, session.ErrChangeNotFound) {
			// removed while the popover was open
			out, err = b.create(usageID, form, cat, prio)
		}
	} else {
		out, err = b.create(usageID, form, cat, prio)
	}
	if err != nil {
		return model.ChangeRequest{}, err
	}
	b.store.HidePopover()
	return out, nil
}

// SubmitGeneral records feedback that is not tied to an element.
func (b *Binder) SubmitGeneral(form model.FeedbackForm) (model.ChangeRequest, error) {
	if form.EditingChangeID != "" {
		return b.SubmitForm(model.GeneralComponentID, form)
	}
	cat, prio, err := parseEnums(form)
	if err != nil {
		return model.ChangeRequest{}, err
	}
	if form.Category == "" {
		cat = model.CategoryGeneral
	}
	return b.create(model.GeneralComponentID, form, cat, prio)
}

func (b *Binder) create(usageID string, form model.FeedbackForm, cat model.Category, prio model.Priority) (model.ChangeRequest, error) {
	cc, pc := CaptureContext(form.Capture, b.now())
	return b.store.AddChange(model.ChangeDraft{
		ComponentID:      usageID,
		Feedback:         form.Feedback,
		Category:         cat,
		Priority:         prio,
		ComponentContext: cc,
		PageContext:      pc,
	})
}

// CaptureContext converts captured browser data into the component and page
// contexts of a new change request.
func CaptureContext(c model.Capture, now time.Time) (model.ComponentContext, model.PageContext) {
	cc := model.ComponentContext{
		DOMPath: DOMPath(c.Ancestors),
		Line:    c.SourceLine,
		Column:  c.SourceCol,
	}
	if c.Rect != nil {
		r := *c.Rect
		cc.BoundingBox = &r
	}
	pc := model.PageContext{
		URL:        c.URL,
		Title:      c.Title,
		Path:       c.Path,
		CapturedAt: now.UTC(),
	}
	if len(c.Query) > 0 {
		pc.Query = make(map[string]string, len(c.Query))
		for k, v := range c.Query {
			pc.Query[k] = v
		}
	}
	return cc, pc
}

func parseEnums(form model.FeedbackForm) (model.Category, model.Priority, error) {
	cat, err := model.ParseCategory(string(form.Category))
	if err != nil {
		return "", "", err
	}
	prio, err := model.ParsePriority(string(form.Priority))
	if err != nil {
		return "", "", err
	}
	return cat, prio, nil
}
