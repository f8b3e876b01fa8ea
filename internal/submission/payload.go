// Package submission turns pending change requests into a batch payload and
// delivers it to the external change-processing endpoint.
package submission

import (
	"time"

	"github.com/google/uuid"

	"github.com/bluefermion/annotator/internal/model"
)

// NewSubmissionID returns a fresh submission id.
func NewSubmissionID() string {
	return uuid.NewString()
}

// BuildPayload snapshots changes into a payload. The slice is copied so later
// edits to the session do not leak into an in-flight request.
func BuildPayload(submissionID string, changes []model.ChangeRequest, global model.GlobalContext, now time.Time) *model.SubmissionPayload {
	snapshot := make([]model.ChangeRequest, len(changes))
	for i, c := range changes {
		c.ComponentContext.SemanticTags = append([]string(nil), c.ComponentContext.SemanticTags...)
		if c.ComponentContext.BoundingBox != nil {
			box := *c.ComponentContext.BoundingBox
			c.ComponentContext.BoundingBox = &box
		}
		snapshot[i] = c
	}
	return &model.SubmissionPayload{
		SubmissionID:  submissionID,
		Timestamp:     now.UTC(),
		Changes:       snapshot,
		GlobalContext: global,
		Summary:       Summarize(snapshot),
	}
}

// Summarize counts changes per category and priority and lists the distinct
// affected components in first-seen order.
func Summarize(changes []model.ChangeRequest) model.Summary {
	s := model.Summary{
		TotalChanges:       len(changes),
		CategoryCounts:     make(map[model.Category]int),
		PriorityCounts:     make(map[model.Priority]int),
		AffectedComponents: []string{},
	}
	seen := make(map[string]struct{})
	for _, c := range changes {
		s.CategoryCounts[c.Category]++
		s.PriorityCounts[c.Priority]++
		if _, ok := seen[c.ComponentID]; !ok {
			seen[c.ComponentID] = struct{}{}
			s.AffectedComponents = append(s.AffectedComponents, c.ComponentID)
		}
	}
	s.EstimatedComplexity = EstimateComplexity(len(changes))
	return s
}

// EstimateComplexity maps a change count to low (<=5), medium (<=10) or high.
func EstimateComplexity(n int) model.Complexity {
	switch {
	case n <= 5:
		return model.ComplexityLow
	case n <= 10:
		return model.ComplexityMedium
	default:
		return model.ComplexityHigh
	}
}
