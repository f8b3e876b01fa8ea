// Package model defines the domain entities and data transfer objects (DTOs) for the annotator.
//
// EDUCATIONAL CONTEXT:
// The 'model' package holds the core business objects shared by every layer:
// change requests, the session state that coordinates them, and the payload that is
// eventually shipped to the change-processing service. These structs carry 'json'
// tags because the same shapes travel to the browser overlay and to the external
// endpoint, but they contain no storage or transport logic.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// GeneralComponentID marks feedback that is not attached to any rendered element.
const GeneralComponentID = "general"

// ErrEmptyFeedback is returned when a change request would be created or edited
// with blank feedback text.
var ErrEmptyFeedback = errors.New("feedback text is required")

// Category classifies what kind of change is being requested.
type Category string

const (
	CategoryEnhancement   Category = "enhancement"
	CategoryBugFix        Category = "bug_fix"
	CategoryStyling       Category = "styling"
	CategoryContent       Category = "content"
	CategoryBehavior      Category = "behavior"
	CategoryPerformance   Category = "performance"
	CategoryAccessibility Category = "accessibility"
	CategoryGeneral       Category = "general"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryEnhancement, CategoryBugFix, CategoryStyling, CategoryContent,
	CategoryBehavior, CategoryPerformance, CategoryAccessibility, CategoryGeneral,
}

// ParseCategory validates a category string. An empty string yields the default.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryEnhancement, nil
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Priority is how urgently the requester wants the change.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority validates a priority string. An empty string yields the default.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	for _, p := range Priorities {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Status tracks a change request through submission. Pending -> submitted only.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
)

// ComponentContext describes the element a change request is about. It merges
// catalog metadata (usage over definition) with data captured from the live element.
type ComponentContext struct {
	Name               string   `json:"name,omitempty"`
	Description        string   `json:"description,omitempty"`
	DefinitionID       string   `json:"definitionId,omitempty"`
	Category           string   `json:"category,omitempty"`
	DefinitionFilePath string   `json:"definitionFilePath,omitempty"`
	UsageFilePath      string   `json:"usageFilePath,omitempty"`
	RepositoryURL      string   `json:"repositoryUrl,omitempty"`
	Line               int      `json:"line,omitempty"`
	Column             int      `json:"column,omitempty"`
	DOMPath            string   `json:"domPath,omitempty"`
	BoundingBox        *Rect    `json:"boundingBox,omitempty"`
	SemanticTags       []string `json:"semanticTags,omitempty"`
}

// PageContext is the browser navigation state at the time of capture.
type PageContext struct {
	URL        string            `json:"url,omitempty"`
	Title      string            `json:"title,omitempty"`
	Path       string            `json:"path,omitempty"`
	Query      map[string]string `json:"query,omitempty"`
	CapturedAt time.Time         `json:"capturedAt"`
}

// ChangeRequest is a single piece of user feedback about one element.
type ChangeRequest struct {
	ID          string   `json:"id"`
	ComponentID string   `json:"componentId"`
	Feedback    string   `json:"feedback"`
	Category    Category `json:"category"`
	Priority    Priority `json:"priority"`
	Status      Status   `json:"status"`
	// Timestamp is assigned by the store on creation, never by the client.
	Timestamp        time.Time        `json:"timestamp"`
	ComponentContext ComponentContext `json:"componentContext"`
	PageContext      PageContext      `json:"pageContext"`
}

// IsGeneral reports whether the request is not tied to a rendered element.
func (c *ChangeRequest) IsGeneral() bool {
	return c.ComponentID == GeneralComponentID
}

// ChangeDraft is the caller-supplied part of a new change request. The store
// fills in the id, timestamp and status and enriches the component context.
type ChangeDraft struct {
	ComponentID      string           `json:"componentId"`
	Feedback         string           `json:"feedback"`
	Category         Category         `json:"category"`
	Priority         Priority         `json:"priority"`
	ComponentContext ComponentContext `json:"componentContext"`
	PageContext      PageContext      `json:"pageContext"`
}

// Normalize trims the feedback, applies enum defaults and rejects blank text.
func (d *ChangeDraft) Normalize() error {
	d.Feedback = strings.TrimSpace(d.Feedback)
	if d.Feedback == "" {
		return ErrEmptyFeedback
	}
	if d.ComponentID == "" {
		d.ComponentID = GeneralComponentID
	}
	if d.Category == "" {
		d.Category = CategoryEnhancement
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	return nil
}

// ChangePatch is a partial update. Nil fields are left untouched. Status is
// not patchable; only a successful submission moves a request to submitted.
type ChangePatch struct {
	Feedback         *string           `json:"feedback,omitempty"`
	Category         *Category         `json:"category,omitempty"`
	Priority         *Priority         `json:"priority,omitempty"`
	ComponentContext *ComponentContext `json:"componentContext,omitempty"`
	PageContext      *PageContext      `json:"pageContext,omitempty"`
}

// Apply merges the patch into c.
func (p ChangePatch) Apply(c *ChangeRequest) error {
	if p.Feedback != nil {
		text := strings.TrimSpace(*p.Feedback)
		if text == "" {
			return ErrEmptyFeedback
		}
		c.Feedback = text
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.ComponentContext != nil {
		c.ComponentContext = *p.ComponentContext
	}
	if p.PageContext != nil {
		c.PageContext = *p.PageContext
	}
	return nil
}

// MergeTags returns the union of a and b, keeping a's order and appending
// tags from b that are not already present. Blank tags are dropped.
func MergeTags(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
