package session

import (
	"github.com/rs/zerolog/log"

	"github.com/bluefermion/annotator/internal/model"
)

// AddChange creates a change request from draft.
//
// It is rejected, with a warning and no state change, when the list already
// holds MaxChanges entries or when the component already has a pending request
// (general feedback excepted). Otherwise the request gets an id, a timestamp
// and pending status, its component context is enriched from the catalog, and
// it is appended.
func (s *Store) AddChange(draft model.ChangeDraft) (model.ChangeRequest, error) {
	if err := draft.Normalize(); err != nil {
		return model.ChangeRequest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.changes) >= s.config.MaxChanges {
		log.Warn().
			Int("max_changes", s.config.MaxChanges).
			Str("component_id", draft.ComponentID).
			Msg("Change request rejected: capacity reached")
		return model.ChangeRequest{}, ErrCapacityReached
	}
	if draft.ComponentID != model.GeneralComponentID && s.pendingIndexLocked(draft.ComponentID) >= 0 {
		log.Warn().Str("component_id", draft.ComponentID).Msg("Change request rejected: component already has a pending request")
		return model.ChangeRequest{}, ErrDuplicateChange
	}

	cc := draft.ComponentContext
	if draft.ComponentID != model.GeneralComponentID {
		cc = s.resolver.Resolve(draft.ComponentID).Enrich(cc)
	}

	c := model.ChangeRequest{
		ID:               s.newID(),
		ComponentID:      draft.ComponentID,
		Feedback:         draft.Feedback,
		Category:         draft.Category,
		Priority:         draft.Priority,
		Status:           model.StatusPending,
		Timestamp:        s.now().UTC(),
		ComponentContext: cc,
		PageContext:      draft.PageContext,
	}
	s.changes = append(s.changes, c)
	s.persistLocked()

	log.Debug().Str("change_id", c.ID).Str("component_id", c.ComponentID).Msg("Change request added")
	return cloneChange(c), nil
}

// UpdateChange merges patch into the change request id. Unknown ids are a no-op
// reported as ErrChangeNotFound.
func (s *Store) UpdateChange(id string, patch model.ChangePatch) (model.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.ChangeRequest{}, ErrChangeNotFound
	}
	updated := cloneChange(s.changes[i])
	if err := patch.Apply(&updated); err != nil {
		return model.ChangeRequest{}, err
	}
	s.changes[i] = updated
	s.persistLocked()
	return cloneChange(updated), nil
}

// RemoveChange deletes the change request id.
func (s *Store) RemoveChange(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrChangeNotFound
	}
	s.changes = append(s.changes[:i], s.changes[i+1:]...)
	if s.popover != nil && s.popover.EditingChangeID == id {
		s.popover.EditingChangeID = ""
	}
	s.persistLocked()
	return nil
}

// ClearAllChanges deletes every change request and returns how many there were.
func (s *Store) ClearAllChanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.changes)
	s.changes = []model.ChangeRequest{}
	if s.popover != nil {
		s.popover.EditingChangeID = ""
	}
	s.persistLocked()
	return n
}
