package session

import (
	"github.com/rs/zerolog/log"

	"github.com/bluefermion/annotator/internal/model"
)

// ToggleEnabled flips annotation mode and clears hover, selection and the
// popover. With AutoOpenSidebar the sidebar flips along with it.
func (s *Store) ToggleEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = !s.enabled
	s.selected = ""
	s.hovered = ""
	s.popover = nil
	if s.config.AutoOpenSidebar {
		s.sidebarOpen = !s.sidebarOpen
	}
	s.persistLocked()

	log.Debug().Bool("enabled", s.enabled).Bool("sidebar_open", s.sidebarOpen).Msg("Annotation mode toggled")
	return s.enabled
}

// Hover sets the hovered component; an empty id clears it. It is a no-op while
// annotation is disabled and reports whether the state changed.
func (s *Store) Hover(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.hovered == id {
		return false
	}
	s.hovered = id
	return true
}

// Select selects id and clears hover. A popover open on another element is
// closed so at most one popover exists.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return ErrDisabled
	}
	s.selected = id
	s.hovered = ""
	if s.popover != nil && s.popover.TargetID != id {
		s.popover = nil
	}
	return nil
}

// Deselect clears selection, hover and the popover.
func (s *Store) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = ""
	s.hovered = ""
	s.popover = nil
}

// ShowPopover opens the editor popover for id at pos and selects id. The
// returned prefill is the change request the form should edit: the one named by
// editingID if it exists, otherwise the component's pending request, otherwise
// nil (a new request will be created).
func (s *Store) ShowPopover(id string, pos model.Anchor, editingID string) (model.PopoverState, *model.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return model.PopoverState{}, nil, ErrDisabled
	}
	return s.showPopoverLocked(id, pos, editingID)
}

func (s *Store) showPopoverLocked(id string, pos model.Anchor, editingID string) (model.PopoverState, *model.ChangeRequest, error) {
	var prefill *model.ChangeRequest
	idx := -1
	if editingID != "" {
		idx = s.indexLocked(editingID)
	}
	if idx < 0 {
		idx = s.pendingIndexLocked(id)
	}
	state := model.PopoverState{TargetID: id, Position: pos}
	if idx >= 0 {
		c := cloneChange(s.changes[idx])
		prefill = &c
		state.EditingChangeID = c.ID
	}

	s.popover = &state
	s.selected = id
	s.hovered = ""
	return state, prefill, nil
}

// TogglePopover handles a click on id: if id is selected with its popover open
// the popover is closed, otherwise the popover is opened on id at pos. The
// check and the transition happen atomically.
func (s *Store) TogglePopover(id string, pos model.Anchor) (opened bool, state model.PopoverState, prefill *model.ChangeRequest, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return false, model.PopoverState{}, nil, ErrDisabled
	}
	if s.selected == id && s.popover != nil && s.popover.TargetID == id {
		s.popover = nil
		s.selected = ""
		return false, model.PopoverState{}, nil, nil
	}
	state, prefill, err = s.showPopoverLocked(id, pos, "")
	return err == nil, state, prefill, err
}

// HidePopover closes the popover and clears the selection. It never touches an
// in-flight submission.
func (s *Store) HidePopover() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.popover = nil
	s.selected = ""
}

// ToggleSidebar flips the sidebar and returns the new state.
func (s *Store) ToggleSidebar() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sidebarOpen = !s.sidebarOpen
	s.persistLocked()
	return s.sidebarOpen
}

// SetSidebarOpen sets the sidebar state.
func (s *Store) SetSidebarOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sidebarOpen == open {
		return
	}
	s.sidebarOpen = open
	s.persistLocked()
}

// ToggleComponentTree flips the component tree panel and returns the new state.
func (s *Store) ToggleComponentTree() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.ShowComponentTree = !s.config.ShowComponentTree
	s.persistLocked()
	return s.config.ShowComponentTree
}

// UpdateConfig merges patch into the config. An invalid result is rejected and
// the config is left unchanged.
func (s *Store) UpdateConfig(patch model.ConfigPatch) (model.SessionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := patch.Apply(s.config)
	if err := next.Validate(); err != nil {
		return s.config, err
	}
	s.config = next
	s.persistLocked()
	return s.config, nil
}
