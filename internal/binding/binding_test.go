package binding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefermion/annotator/internal/catalog"
	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/session"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newResolver(t *testing.T, usages ...catalog.Usage) *catalog.Resolver {
	t.Helper()
	defs, err := catalog.NewCatalog([]catalog.Definition{
		{ID: "card", Name: "Card", Description: "Content container", SemanticTags: []string{"layout"}},
	}, "https://git.example.com/app/blob/main")
	require.NoError(t, err)
	reg, err := catalog.NewRegistry(usages, "https://git.example.com/app/blob/main")
	require.NoError(t, err)
	return catalog.NewResolver(defs, reg)
}

func newBinder(t *testing.T, resolver *catalog.Resolver) (*Binder, *session.Store) {
	t.Helper()
	store, err := session.New(context.Background(), session.Options{
		Resolver: resolver,
		Enabled:  true,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return New(store, Options{Now: func() time.Time { return fixedNow }}), store
}

func defaultUsages() []catalog.Usage {
	return []catalog.Usage{
		{ID: "pricing-card", DefinitionID: "card", Name: "Pricing card", FilePath: "src/Pricing.tsx", Line: 42, SemanticTags: []string{"pricing"}},
		{ID: "team-card", DefinitionID: "card", FilePath: "src/Team.tsx"},
	}
}

func TestDOMPath(t *testing.T) {
	ancestors := []model.DOMNode{
		{Tag: "BUTTON", Classes: []string{"btn", "btn-primary"}},
		{Tag: "div", ID: "toolbar"},
		{Tag: "main", Classes: []string{" ", "content"}},
		{Tag: "body", Classes: []string{"page"}},
		{Tag: "html"},
	}
	assert.Equal(t, "main.content > div#toolbar > button.btn.btn-primary", DOMPath(ancestors))
	assert.Equal(t, "", DOMPath(nil))
	assert.Equal(t, "", DOMPath([]model.DOMNode{{Tag: "body"}}))
}

func TestViewBeforeRegistryLoads(t *testing.T) {
	b, store := newBinder(t, newResolver(t))
	require.True(t, store.Hover("pricing-card"))

	v := b.View("pricing-card", nil, nil)
	assert.Equal(t, OverlayNone, v.Overlay)
	assert.True(t, v.Registered)
	assert.Equal(t, "pricing-card", v.Component.Name)
}

func TestViewOverlayStates(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))

	assert.Equal(t, OverlayIdle, b.View("pricing-card", nil, nil).Overlay)

	b.PointerEnter("pricing-card")
	assert.Equal(t, OverlayHovered, b.View("pricing-card", nil, nil).Overlay)
	assert.Equal(t, OverlayIdle, b.View("team-card", nil, nil).Overlay)

	// leaving another element does not clear the hover
	assert.False(t, b.PointerLeave("team-card"))
	assert.True(t, b.PointerLeave("pricing-card"))
	assert.Equal(t, OverlayIdle, b.View("pricing-card", nil, nil).Overlay)

	require.NoError(t, store.Select("pricing-card"))
	v := b.View("pricing-card", nil, nil)
	assert.Equal(t, OverlaySelected, v.Overlay)
	assert.Equal(t, "Pricing card", v.Component.Name)
	assert.Equal(t, "Content container", v.Component.Description)

	store.ToggleEnabled()
	assert.Equal(t, OverlayNone, b.View("pricing-card", nil, nil).Overlay)
}

func TestViewUnregisteredUsageDegrades(t *testing.T) {
	b, _ := newBinder(t, newResolver(t, defaultUsages()...))

	v := b.View("ghost", nil, nil)
	assert.False(t, v.Registered)
	assert.Equal(t, "ghost", v.Component.Name)
	assert.Empty(t, v.Component.Description)
	assert.Equal(t, OverlayIdle, v.Overlay)

	// second lookup takes the already-warned path
	assert.False(t, b.View("ghost", nil, nil).Registered)
}

func TestViewLabelPlacement(t *testing.T) {
	b, _ := newBinder(t, newResolver(t, defaultUsages()...))

	rect := &model.Rect{X: 200, Y: 300, Width: 400, Height: 200}
	vp := &model.Viewport{Width: 1280, Height: 800}
	v := b.View("pricing-card", rect, vp)
	assert.Equal(t, model.LabelInside, v.Label)
	assert.False(t, v.Small)

	tiny := &model.Rect{X: 10, Y: 0, Width: 40, Height: 20}
	v = b.View("pricing-card", tiny, vp)
	assert.True(t, v.Small)
	assert.Equal(t, model.LabelRightOutside, v.Label)
}

func TestClickTogglesPopover(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))
	req := model.ClickRequest{
		Rect:     model.Rect{X: 400, Y: 500, Width: 200, Height: 80},
		Viewport: model.Viewport{Width: 1280, Height: 800},
	}

	res, err := b.Click("pricing-card", req)
	require.NoError(t, err)
	assert.True(t, res.Opened)
	require.NotNil(t, res.Popover)
	assert.Equal(t, model.PlacementTop, res.Popover.Position.Placement)
	assert.Nil(t, res.Prefill)

	res, err = b.Click("pricing-card", req)
	require.NoError(t, err)
	assert.False(t, res.Opened)
	st := store.Snapshot()
	assert.Nil(t, st.Popover)
	assert.Empty(t, st.SelectedComponentID)
}

func TestClickMovesSinglePopover(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))
	req := model.ClickRequest{
		Rect:     model.Rect{X: 400, Y: 500, Width: 200, Height: 80},
		Viewport: model.Viewport{Width: 1280, Height: 800},
	}

	_, err := b.Click("pricing-card", req)
	require.NoError(t, err)
	_, err = b.Click("team-card", req)
	require.NoError(t, err)

	st := store.Snapshot()
	require.NotNil(t, st.Popover)
	assert.Equal(t, "team-card", st.Popover.TargetID)
	assert.Equal(t, "team-card", st.SelectedComponentID)
	assert.False(t, b.View("pricing-card", nil, nil).PopoverOpen)
	assert.True(t, b.View("team-card", nil, nil).PopoverOpen)
}

func TestClickWhileDisabled(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))
	store.ToggleEnabled()

	_, err := b.Click("pricing-card", model.ClickRequest{})
	assert.ErrorIs(t, err, session.ErrDisabled)
}

func TestSubmitFormCreatesEnrichedRequest(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))
	_, err := b.Click("pricing-card", model.ClickRequest{
		Rect:     model.Rect{X: 100, Y: 400, Width: 300, Height: 200},
		Viewport: model.Viewport{Width: 1280, Height: 800},
	})
	require.NoError(t, err)

	c, err := b.SubmitForm("pricing-card", model.FeedbackForm{
		Feedback: "  Make the price bigger  ",
		Category: model.CategoryStyling,
		Priority: model.PriorityHigh,
		Capture: model.Capture{
			Ancestors: []model.DOMNode{{Tag: "section", Classes: []string{"pricing"}}, {Tag: "body"}},
			Rect:      &model.Rect{X: 100, Y: 400, Width: 300, Height: 200},
			URL:       "https://app.example.com/pricing?plan=pro",
			Title:     "Pricing",
			Path:      "/pricing",
			Query:     map[string]string{"plan": "pro"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "pricing-card", c.ComponentID)
	assert.Equal(t, "Make the price bigger", c.Feedback)
	assert.Equal(t, model.CategoryStyling, c.Category)
	assert.Equal(t, model.PriorityHigh, c.Priority)
	assert.Equal(t, model.StatusPending, c.Status)

	cc := c.ComponentContext
	assert.Equal(t, "section.pricing", cc.DOMPath)
	require.NotNil(t, cc.BoundingBox)
	assert.Equal(t, 300.0, cc.BoundingBox.Width)
	assert.Equal(t, "Pricing card", cc.Name)
	assert.Equal(t, "card", cc.DefinitionID)
	assert.Equal(t, 42, cc.Line)
	assert.Equal(t, "https://git.example.com/app/blob/main/src/Pricing.tsx#L42", cc.RepositoryURL)
	assert.Subset(t, cc.SemanticTags, []string{"pricing", "layout"})

	assert.Equal(t, "/pricing", c.PageContext.Path)
	assert.Equal(t, "pro", c.PageContext.Query["plan"])
	assert.Equal(t, fixedNow, c.PageContext.CapturedAt)

	assert.Nil(t, store.Snapshot().Popover, "popover closes after submit")
}

func TestSubmitFormEditsPendingRequest(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))

	first, err := b.SubmitForm("pricing-card", model.FeedbackForm{Feedback: "first"})
	require.NoError(t, err)

	// no editing id: the element's pending request is edited, not duplicated
	second, err := b.SubmitForm("pricing-card", model.FeedbackForm{Feedback: "second", Priority: model.PriorityUrgent})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "second", second.Feedback)
	assert.Equal(t, model.PriorityUrgent, second.Priority)
	require.Len(t, store.Snapshot().Changes, 1)

	// explicit editing id for a request that no longer exists creates a new one
	require.NoError(t, store.RemoveChange(first.ID))
	third, err := b.SubmitForm("pricing-card", model.FeedbackForm{Feedback: "third", EditingChangeID: first.ID})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	require.Len(t, store.Snapshot().Changes, 1)
}

func TestSubmitFormRejectsInvalidInput(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))

	_, err := b.SubmitForm("pricing-card", model.FeedbackForm{Feedback: "   "})
	assert.ErrorIs(t, err, model.ErrEmptyFeedback)

	_, err = b.SubmitForm("pricing-card", model.FeedbackForm{Feedback: "x", Category: "nonsense"})
	assert.Error(t, err)

	assert.Empty(t, store.Snapshot().Changes)
}

func TestSubmitGeneral(t *testing.T) {
	b, store := newBinder(t, newResolver(t, defaultUsages()...))

	a, err := b.SubmitGeneral(model.FeedbackForm{Feedback: "The whole page feels slow"})
	require.NoError(t, err)
	bb, err := b.SubmitGeneral(model.FeedbackForm{Feedback: "Add dark mode", Category: model.CategoryEnhancement})
	require.NoError(t, err)

	assert.Equal(t, model.GeneralComponentID, a.ComponentID)
	assert.Equal(t, model.CategoryGeneral, a.Category)
	assert.Equal(t, model.CategoryEnhancement, bb.Category)
	assert.Empty(t, a.ComponentContext.Name)
	assert.Len(t, store.Snapshot().Changes, 2)

	edited, err := b.SubmitGeneral(model.FeedbackForm{Feedback: "Add a dark theme", EditingChangeID: bb.ID})
	require.NoError(t, err)
	assert.Equal(t, bb.ID, edited.ID)
	assert.Len(t, store.Snapshot().Changes, 2)
}
