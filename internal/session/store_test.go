package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefermion/annotator/internal/catalog"
	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/submission"
)

type memPersister struct {
	mu      sync.Mutex
	records map[string]*model.PersistedState
	saves   int
}

func newMemPersister() *memPersister {
	return &memPersister{records: make(map[string]*model.PersistedState)}
}

func (m *memPersister) LoadState(_ context.Context, name string) (*model.PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[name], nil
}

func (m *memPersister) SaveState(_ context.Context, name string, st *model.PersistedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = st
	m.saves++
	return nil
}

type memHistory struct {
	mu      sync.Mutex
	records []*model.SubmissionRecord
}

func (h *memHistory) RecordSubmission(_ context.Context, rec *model.SubmissionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memHistory) last() *model.SubmissionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		return nil
	}
	return h.records[len(h.records)-1]
}

func testResolver(t *testing.T) *catalog.Resolver {
	t.Helper()
	defs, err := catalog.NewCatalog([]catalog.Definition{
		{ID: "button", Name: "Button", Description: "Clickable action", SourceFilePath: "src/Button.tsx", SemanticTags: []string{"action"}},
	}, "")
	require.NoError(t, err)
	usages, err := catalog.NewRegistry([]catalog.Usage{
		{ID: "save-btn", DefinitionID: "button", FilePath: "src/Editor.tsx", Line: 10, SemanticTags: []string{"editor", "persist"}},
		{ID: "cancel-btn", DefinitionID: "button", Name: "Cancel", FilePath: "src/Editor.tsx", Line: 11},
	}, "")
	require.NoError(t, err)
	return catalog.NewResolver(defs, usages)
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Resolver == nil {
		opts.Resolver = testResolver(t)
	}
	if opts.Config.MaxChanges == 0 {
		opts.Config = model.DefaultSessionConfig()
	}
	opts.Enabled = true
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func draft(component, text string) model.ChangeDraft {
	return model.ChangeDraft{ComponentID: component, Feedback: text}
}

func ids(changes []model.ChangeRequest) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.ID
	}
	return out
}

func TestAddChange_AssignsIdentityAndEnriches(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestStore(t, Options{Now: func() time.Time { return now }})

	c, err := s.AddChange(model.ChangeDraft{
		ComponentID:      "save-btn",
		Feedback:         "  make this button larger ",
		Category:         model.CategoryStyling,
		ComponentContext: model.ComponentContext{DOMPath: "div#app > button", SemanticTags: []string{"toolbar"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, model.StatusPending, c.Status)
	assert.Equal(t, now, c.Timestamp)
	assert.Equal(t, "make this button larger", c.Feedback)
	assert.Equal(t, model.PriorityMedium, c.Priority)
	assert.Equal(t, "Button", c.ComponentContext.Name)
	assert.Equal(t, "Clickable action", c.ComponentContext.Description)
	assert.Equal(t, "src/Button.tsx", c.ComponentContext.DefinitionFilePath)
	assert.Equal(t, "src/Editor.tsx", c.ComponentContext.UsageFilePath)
	assert.Equal(t, 10, c.ComponentContext.Line)
	assert.Equal(t, "div#app > button", c.ComponentContext.DOMPath)
	assert.Subset(t, c.ComponentContext.SemanticTags, []string{"editor", "persist", "toolbar"})
}

func TestAddChange_SemanticTagsSupersetOfUsage(t *testing.T) {
	r := testResolver(t)
	s := newTestStore(t, Options{Resolver: r})

	for _, id := range r.Registry.IDs() {
		u, _ := r.Usage(id)
		c, err := s.AddChange(draft(id, "tweak"))
		require.NoError(t, err)
		assert.Subset(t, c.ComponentContext.SemanticTags, u.SemanticTags, id)
	}
}

func TestAddChange_UnknownComponentDegrades(t *testing.T) {
	s := newTestStore(t, Options{})

	c, err := s.AddChange(draft("not-registered", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "not-registered", c.ComponentContext.Name)
	assert.Empty(t, c.ComponentContext.Description)
}

func TestAddChange_ThenRemoveRestoresList(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.AddChange(draft("save-btn", "first"))
	require.NoError(t, err)
	before := ids(s.Snapshot().Changes)

	c, err := s.AddChange(draft(model.GeneralComponentID, "second"))
	require.NoError(t, err)
	require.NoError(t, s.RemoveChange(c.ID))

	assert.ElementsMatch(t, before, ids(s.Snapshot().Changes))
}

func TestAddChange_CapacityBound(t *testing.T) {
	cfg := model.DefaultSessionConfig()
	cfg.MaxChanges = 3
	s := newTestStore(t, Options{Config: cfg})

	var lastErr error
	for i := 0; i < cfg.MaxChanges+1; i++ {
		_, lastErr = s.AddChange(draft(model.GeneralComponentID, fmt.Sprintf("note %d", i)))
	}
	assert.ErrorIs(t, lastErr, ErrCapacityReached)
	assert.Len(t, s.Snapshot().Changes, cfg.MaxChanges)
}

func TestAddChange_RejectsEmptyFeedback(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.AddChange(draft("save-btn", "   "))
	assert.ErrorIs(t, err, model.ErrEmptyFeedback)
	assert.Empty(t, s.Snapshot().Changes)
}

func TestAddChange_OnePendingPerComponent(t *testing.T) {
	s := newTestStore(t, Options{})

	_, err := s.AddChange(draft("save-btn", "one"))
	require.NoError(t, err)
	_, err = s.AddChange(draft("save-btn", "two"))
	assert.ErrorIs(t, err, ErrDuplicateChange)

	_, err = s.AddChange(draft(model.GeneralComponentID, "a"))
	require.NoError(t, err)
	_, err = s.AddChange(draft(model.GeneralComponentID, "b"))
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().Changes, 3)
}

func TestUpdateChange(t *testing.T) {
	s := newTestStore(t, Options{})
	c, err := s.AddChange(draft("save-btn", "old"))
	require.NoError(t, err)

	text := "new text"
	prio := model.PriorityUrgent
	updated, err := s.UpdateChange(c.ID, model.ChangePatch{Feedback: &text, Priority: &prio})
	require.NoError(t, err)
	assert.Equal(t, "new text", updated.Feedback)
	assert.Equal(t, model.PriorityUrgent, updated.Priority)
	assert.Equal(t, c.ID, updated.ID)

	blank := " "
	_, err = s.UpdateChange(c.ID, model.ChangePatch{Feedback: &blank})
	assert.ErrorIs(t, err, model.ErrEmptyFeedback)

	_, err = s.UpdateChange("missing", model.ChangePatch{Feedback: &text})
	assert.ErrorIs(t, err, ErrChangeNotFound)

	got, ok := s.Change(c.ID)
	require.True(t, ok)
	assert.Equal(t, "new text", got.Feedback)
}

func TestClearAllChanges(t *testing.T) {
	s := newTestStore(t, Options{})
	_, _ = s.AddChange(draft("save-btn", "a"))
	_, _ = s.AddChange(draft("cancel-btn", "b"))

	assert.Equal(t, 2, s.ClearAllChanges())
	assert.Empty(t, s.Snapshot().Changes)
	assert.ErrorIs(t, s.RemoveChange("anything"), ErrChangeNotFound)
}

func TestToggleEnabled_ClearsInteractionState(t *testing.T) {
	s := newTestStore(t, Options{})
	require.True(t, s.Hover("save-btn"))
	require.NoError(t, s.Select("cancel-btn"))

	st := s.Snapshot()
	assert.False(t, st.SidebarOpen)

	assert.False(t, s.ToggleEnabled())
	st = s.Snapshot()
	assert.False(t, st.Enabled)
	assert.Empty(t, st.HoveredComponentID)
	assert.Empty(t, st.SelectedComponentID)
	assert.True(t, st.SidebarOpen, "auto-open sidebar flips with the toggle")

	assert.False(t, s.Hover("save-btn"), "hover is ignored while disabled")
	assert.ErrorIs(t, s.Select("save-btn"), ErrDisabled)
}

func TestSelect_ClearsHover(t *testing.T) {
	s := newTestStore(t, Options{})
	s.Hover("save-btn")
	require.NoError(t, s.Select("save-btn"))

	st := s.Snapshot()
	assert.Equal(t, "save-btn", st.SelectedComponentID)
	assert.Empty(t, st.HoveredComponentID)

	s.Deselect()
	assert.Empty(t, s.Snapshot().SelectedComponentID)
}

func TestShowPopover_PrefillsExistingRequest(t *testing.T) {
	s := newTestStore(t, Options{})
	c, err := s.AddChange(draft("save-btn", "existing"))
	require.NoError(t, err)

	state, prefill, err := s.ShowPopover("save-btn", model.Anchor{Top: 10, Placement: model.PlacementTop}, "")
	require.NoError(t, err)
	require.NotNil(t, prefill)
	assert.Equal(t, c.ID, prefill.ID)
	assert.Equal(t, c.ID, state.EditingChangeID)

	_, prefill, err = s.ShowPopover("cancel-btn", model.Anchor{}, "")
	require.NoError(t, err)
	assert.Nil(t, prefill)

	_, prefill, err = s.ShowPopover("cancel-btn", model.Anchor{}, c.ID)
	require.NoError(t, err)
	require.NotNil(t, prefill)
	assert.Equal(t, c.ID, prefill.ID)

	s.HidePopover()
	st := s.Snapshot()
	assert.Nil(t, st.Popover)
	assert.Empty(t, st.SelectedComponentID)
}

func TestTogglePopover_OnePopoverAtATime(t *testing.T) {
	s := newTestStore(t, Options{})

	opened, _, _, err := s.TogglePopover("save-btn", model.Anchor{Top: 1})
	require.NoError(t, err)
	require.True(t, opened)

	opened, state, _, err := s.TogglePopover("cancel-btn", model.Anchor{Top: 2})
	require.NoError(t, err)
	require.True(t, opened)
	assert.Equal(t, "cancel-btn", state.TargetID)

	st := s.Snapshot()
	require.NotNil(t, st.Popover)
	assert.Equal(t, "cancel-btn", st.Popover.TargetID)
	assert.Equal(t, 2.0, st.Popover.Position.Top)
	assert.Equal(t, "cancel-btn", st.SelectedComponentID)

	// clicking the selected element again closes its popover
	opened, _, _, err = s.TogglePopover("cancel-btn", model.Anchor{})
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Nil(t, s.Snapshot().Popover)
}

func TestPersistence_RestoresDurableSubset(t *testing.T) {
	p := newMemPersister()
	s := newTestStore(t, Options{Persister: p, RecordName: "rec"})

	_, err := s.AddChange(draft("save-btn", "remember me"))
	require.NoError(t, err)
	s.SetSidebarOpen(true)
	s.ToggleComponentTree()
	s.Hover("save-btn")

	restored, err := New(context.Background(), Options{Persister: p, RecordName: "rec", Resolver: testResolver(t)})
	require.NoError(t, err)
	defer restored.Close()

	st := restored.Snapshot()
	assert.True(t, st.Enabled)
	assert.True(t, st.SidebarOpen)
	assert.True(t, st.Config.ShowComponentTree)
	require.Len(t, st.Changes, 1)
	assert.Equal(t, "remember me", st.Changes[0].Feedback)
	assert.Empty(t, st.HoveredComponentID)
	assert.False(t, st.IsSubmitting)
	assert.NotEqual(t, s.SessionID(), restored.SessionID())
}

func TestPersistence_ChangesOnlyWhenEnabled(t *testing.T) {
	p := newMemPersister()
	cfg := model.DefaultSessionConfig()
	cfg.PersistChanges = false
	s := newTestStore(t, Options{Persister: p, Config: cfg})

	_, err := s.AddChange(draft("save-btn", "volatile"))
	require.NoError(t, err)
	assert.Empty(t, p.records[DefaultRecordName].Changes)
}

func TestPersistence_HoverDoesNotWrite(t *testing.T) {
	p := newMemPersister()
	s := newTestStore(t, Options{Persister: p})
	s.Hover("save-btn")
	require.NoError(t, s.Select("save-btn"))
	assert.Equal(t, 0, p.saves)
}

func TestUpdateConfig(t *testing.T) {
	s := newTestStore(t, Options{})
	limit := 5
	cfg, err := s.UpdateConfig(model.ConfigPatch{MaxChanges: &limit})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxChanges)

	zero := 0
	_, err = s.UpdateConfig(model.ConfigPatch{MaxChanges: &zero})
	require.Error(t, err)
	assert.Equal(t, 5, s.Snapshot().Config.MaxChanges)

	bad := "not a url"
	_, err = s.UpdateConfig(model.ConfigPatch{SubmitEndpoint: &bad})
	require.Error(t, err)
}

func endpointStore(t *testing.T, handler http.HandlerFunc, opts Options) (*Store, *memHistory) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := model.DefaultSessionConfig()
	cfg.SubmitEndpoint = server.URL
	cfg.AuthToken = "token"
	opts.Config = cfg
	opts.Submitter = submission.NewClient(submission.Options{
		Retry: submission.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, Multiplier: 2},
	})
	h := &memHistory{}
	opts.History = h
	return newTestStore(t, opts), h
}

func TestSubmitChanges_FailureLeavesChangesPending(t *testing.T) {
	s, h := endpointStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, Options{})
	_, err := s.AddChange(draft("save-btn", "a"))
	require.NoError(t, err)
	_, err = s.AddChange(draft(model.GeneralComponentID, "b"))
	require.NoError(t, err)
	before := s.Snapshot().Changes

	_, err = s.SubmitChanges(context.Background(), model.HostContext{})
	require.Error(t, err)

	after := s.Snapshot()
	assert.Equal(t, before, after.Changes)
	assert.False(t, after.IsSubmitting)
	require.NotNil(t, h.last())
	assert.Equal(t, "failed", h.last().Status)
}

func TestSubmitChanges_SuccessMarksSubmittedThenClears(t *testing.T) {
	var got model.SubmissionPayload
	var mu sync.Mutex
	s, h := endpointStore(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"accepted"}`))
	}, Options{ClearDelay: 200 * time.Millisecond, App: AppInfo{Environment: "test", ProjectID: "p1", Version: "1.2.3"}})

	_, err := s.AddChange(model.ChangeDraft{ComponentID: "save-btn", Feedback: "broken", Category: model.CategoryBugFix, Priority: model.PriorityUrgent})
	require.NoError(t, err)

	res, err := s.SubmitChanges(context.Background(), model.HostContext{UserAgent: "test-agent", Viewport: model.Viewport{Width: 1024, Height: 768}})
	require.NoError(t, err)
	assert.Len(t, res.ChangeIDs, 1)

	st := s.Snapshot()
	assert.False(t, st.IsSubmitting)
	require.Len(t, st.Changes, 1)
	assert.Equal(t, model.StatusSubmitted, st.Changes[0].Status)

	mu.Lock()
	assert.Equal(t, res.SubmissionID, got.SubmissionID)
	assert.Equal(t, s.SessionID(), got.GlobalContext.SessionID)
	assert.Equal(t, "test-agent", got.GlobalContext.UserAgent)
	assert.Equal(t, "p1", got.GlobalContext.ProjectID)
	assert.Equal(t, 1, got.Summary.CategoryCounts[model.CategoryBugFix])
	assert.Equal(t, 1, got.Summary.PriorityCounts[model.PriorityUrgent])
	assert.Equal(t, model.ComplexityLow, got.Summary.EstimatedComplexity)
	mu.Unlock()

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Changes) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "succeeded", h.last().Status)
}

func TestSubmitChanges_Guards(t *testing.T) {
	release := make(chan struct{})
	s, _ := endpointStore(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{}`))
	}, Options{})

	_, err := s.SubmitChanges(context.Background(), model.HostContext{})
	assert.ErrorIs(t, err, ErrNothingToSubmit)

	_, err = s.AddChange(draft("save-btn", "a"))
	require.NoError(t, err)

	ch, payload, err := s.SubmitChangesAsync(context.Background(), model.HostContext{})
	require.NoError(t, err)
	require.Len(t, payload.Changes, 1)
	assert.True(t, s.IsSubmitting())

	_, _, err = s.SubmitChangesAsync(context.Background(), model.HostContext{})
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	// added while in flight: not part of this payload, stays pending
	late, err := s.AddChange(draft(model.GeneralComponentID, "late"))
	require.NoError(t, err)

	close(release)
	res := <-ch
	require.NoError(t, res.Err)

	got, ok := s.Change(late.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.False(t, s.IsSubmitting())
}

func TestCancelSubmission(t *testing.T) {
	s, h := endpointStore(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, Options{})
	_, err := s.AddChange(draft("save-btn", "a"))
	require.NoError(t, err)

	assert.False(t, s.CancelSubmission())
	ch, _, err := s.SubmitChangesAsync(context.Background(), model.HostContext{})
	require.NoError(t, err)

	// closing the popover must not abort the network call
	s.HidePopover()
	assert.True(t, s.IsSubmitting())

	require.True(t, s.CancelSubmission())
	res := <-ch
	require.Error(t, res.Err)

	st := s.Snapshot()
	assert.False(t, st.IsSubmitting)
	assert.Equal(t, model.StatusPending, st.Changes[0].Status)
	assert.Equal(t, "cancelled", h.last().Status)
}

func TestSubmitChanges_NoSubmitter(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.AddChange(draft("save-btn", "a"))
	require.NoError(t, err)

	_, err = s.SubmitChanges(context.Background(), model.HostContext{})
	assert.ErrorIs(t, err, ErrNoSubmitter)
	assert.False(t, s.IsSubmitting())
}

func TestPreviewPayload(t *testing.T) {
	s := newTestStore(t, Options{})
	for i := 0; i < 6; i++ {
		_, err := s.AddChange(draft(model.GeneralComponentID, fmt.Sprintf("n%d", i)))
		require.NoError(t, err)
	}
	p := s.PreviewPayload(model.HostContext{})
	assert.Equal(t, 6, p.Summary.TotalChanges)
	assert.Equal(t, model.ComplexityMedium, p.Summary.EstimatedComplexity)
	assert.Len(t, s.Snapshot().Changes, 6)
}
