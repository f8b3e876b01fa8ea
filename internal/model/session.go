package model

import (
	"errors"
	"net/url"
)

// SessionConfig holds the visual and behavioral options of an annotation session.
// It is part of the persisted record and can be changed at runtime.
type SessionConfig struct {
	// Visual
	HighlightColor    string `json:"highlightColor"`
	ShowLabels        bool   `json:"showLabels"`
	ShowComponentTree bool   `json:"showComponentTree"`

	// Behavior
	AutoOpenSidebar bool `json:"autoOpenSidebar"`
	PersistChanges  bool `json:"persistChanges"`
	MaxChanges      int  `json:"maxChanges"`

	// Submission
	SubmitEndpoint string `json:"submitEndpoint,omitempty"`
	AuthToken      string `json:"authToken,omitempty"`
	// AuthTokenSet is only filled in by Redacted.
	AuthTokenSet bool `json:"authTokenSet,omitempty"`
}

// DefaultSessionConfig returns the options a fresh session starts with.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HighlightColor:  "#3b82f6",
		ShowLabels:      true,
		AutoOpenSidebar: true,
		PersistChanges:  true,
		MaxChanges:      50,
	}
}

// Validate checks the invariants the store relies on.
func (c SessionConfig) Validate() error {
	if c.MaxChanges < 1 {
		return errors.New("maxChanges must be at least 1")
	}
	if c.SubmitEndpoint != "" {
		u, err := url.Parse(c.SubmitEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("submitEndpoint must be an absolute http(s) URL")
		}
	}
	return nil
}

// Redacted returns a copy safe to hand to the browser. The auth token is
// replaced by AuthTokenSet.
func (c SessionConfig) Redacted() SessionConfig {
	c.AuthTokenSet = c.AuthToken != ""
	c.AuthToken = ""
	return c
}

// ConfigPatch is a partial config update; nil fields are kept.
type ConfigPatch struct {
	HighlightColor    *string `json:"highlightColor,omitempty"`
	ShowLabels        *bool   `json:"showLabels,omitempty"`
	ShowComponentTree *bool   `json:"showComponentTree,omitempty"`
	AutoOpenSidebar   *bool   `json:"autoOpenSidebar,omitempty"`
	PersistChanges    *bool   `json:"persistChanges,omitempty"`
	MaxChanges        *int    `json:"maxChanges,omitempty"`
	SubmitEndpoint    *string `json:"submitEndpoint,omitempty"`
	AuthToken         *string `json:"authToken,omitempty"`
}

// Apply returns a copy of c with the patch merged in.
func (p ConfigPatch) Apply(c SessionConfig) SessionConfig {
	if p.HighlightColor != nil {
		c.HighlightColor = *p.HighlightColor
	}
	if p.ShowLabels != nil {
		c.ShowLabels = *p.ShowLabels
	}
	if p.ShowComponentTree != nil {
		c.ShowComponentTree = *p.ShowComponentTree
	}
	if p.AutoOpenSidebar != nil {
		c.AutoOpenSidebar = *p.AutoOpenSidebar
	}
	if p.PersistChanges != nil {
		c.PersistChanges = *p.PersistChanges
	}
	if p.MaxChanges != nil {
		c.MaxChanges = *p.MaxChanges
	}
	if p.SubmitEndpoint != nil {
		c.SubmitEndpoint = *p.SubmitEndpoint
	}
	if p.AuthToken != nil {
		c.AuthToken = *p.AuthToken
	}
	return c
}

// PopoverState describes the open editor popover.
type PopoverState struct {
	TargetID        string `json:"targetId"`
	Position        Anchor `json:"position"`
	EditingChangeID string `json:"editingChangeId,omitempty"`
}

// SessionState is a read-only snapshot of the annotation session.
type SessionState struct {
	SessionID           string          `json:"sessionId"`
	Enabled             bool            `json:"enabled"`
	SelectedComponentID string          `json:"selectedComponentId,omitempty"`
	HoveredComponentID  string          `json:"hoveredComponentId,omitempty"`
	Changes             []ChangeRequest `json:"changes"`
	IsSubmitting        bool            `json:"isSubmitting"`
	SidebarOpen         bool            `json:"sidebarOpen"`
	Popover             *PopoverState   `json:"popoverState,omitempty"`
	Config              SessionConfig   `json:"config"`
}

// PendingCount returns how many changes have not been submitted yet.
func (s *SessionState) PendingCount() int {
	n := 0
	for i := range s.Changes {
		if s.Changes[i].Status == StatusPending {
			n++
		}
	}
	return n
}

// PersistedState is the durable subset of the session, stored as one named record.
type PersistedState struct {
	Enabled           bool            `json:"enabled"`
	Changes           []ChangeRequest `json:"changes,omitempty"`
	Config            SessionConfig   `json:"config"`
	SidebarOpen       bool            `json:"sidebarOpen"`
	ShowComponentTree bool            `json:"showComponentTree"`
}
