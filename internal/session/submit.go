package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/submission"
)

// IsSubmitting reports whether a submission is in flight.
func (s *Store) IsSubmitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// PreviewPayload builds the payload a submission would send right now.
func (s *Store) PreviewPayload(host model.HostContext) *model.SubmissionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return submission.BuildPayload(submission.NewSubmissionID(), s.pendingLocked(), s.globalLocked(host), s.now())
}

func (s *Store) pendingLocked() []model.ChangeRequest {
	var out []model.ChangeRequest
	for i := range s.changes {
		if s.changes[i].Status == model.StatusPending {
			out = append(out, cloneChange(s.changes[i]))
		}
	}
	return out
}

func (s *Store) globalLocked(host model.HostContext) model.GlobalContext {
	return model.GlobalContext{
		SessionID:   s.sessionID,
		UserAgent:   host.UserAgent,
		Viewport:    host.Viewport,
		Environment: s.app.Environment,
		ProjectID:   s.app.ProjectID,
		AppVersion:  s.app.Version,
	}
}

// SubmitChangesAsync snapshots the pending requests into a payload and sends it
// in the background. Validation is synchronous: an empty list or a submission
// already in flight is rejected with a warning. Requests added after this call
// returns are left for the next submission.
//
// The returned channel yields exactly one result once the outcome has been
// applied: on success every sent request is marked submitted and removed after
// the clear delay; on failure nothing changes. isSubmitting is reset either way.
func (s *Store) SubmitChangesAsync(ctx context.Context, host model.HostContext) (<-chan SubmitResult, *model.SubmissionPayload, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		log.Warn().Msg("Submission ignored: already in progress")
		return nil, nil, ErrSubmissionInFlight
	}
	pending := s.pendingLocked()
	if len(pending) == 0 {
		s.mu.Unlock()
		log.Warn().Msg("Submission ignored: no pending change requests")
		return nil, nil, ErrNothingToSubmit
	}

	s.submitting = true
	cfg := s.config
	payload := submission.BuildPayload(submission.NewSubmissionID(), pending, s.globalLocked(host), s.now())
	ctx, cancel := context.WithCancel(ctx)
	s.cancelSubmit = cancel
	s.mu.Unlock()

	log.Info().
		Str("submission_id", payload.SubmissionID).
		Int("changes", len(payload.Changes)).
		Str("endpoint", cfg.SubmitEndpoint).
		Msg("Submitting change requests")

	resultCh := make(chan SubmitResult, 1)
	go func() {
		defer close(resultCh)
		defer cancel()
		resultCh <- s.deliver(ctx, cfg, payload)
	}()
	return resultCh, payload, nil
}

// SubmitChanges is the blocking form of SubmitChangesAsync.
func (s *Store) SubmitChanges(ctx context.Context, host model.HostContext) (SubmitResult, error) {
	ch, _, err := s.SubmitChangesAsync(ctx, host)
	if err != nil {
		return SubmitResult{}, err
	}
	res := <-ch
	return res, res.Err
}

// CancelSubmission aborts the in-flight network call, if any.
func (s *Store) CancelSubmission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelSubmit == nil {
		return false
	}
	s.cancelSubmit()
	return true
}

func (s *Store) deliver(ctx context.Context, cfg model.SessionConfig, payload *model.SubmissionPayload) (out SubmitResult) {
	out.SubmissionID = payload.SubmissionID
	for _, c := range payload.Changes {
		out.ChangeIDs = append(out.ChangeIDs, c.ID)
	}

	// Runs even if the submitter panics, so the session never stays stuck
	// in the submitting state.
	defer func() {
		if r := recover(); r != nil {
			out.Err = errors.New("submitter panicked")
			log.Error().Interface("panic", r).Str("submission_id", out.SubmissionID).Msg("Submission panicked")
		}
		s.finish(out)
		s.record(payload, out)
	}()

	if s.submitter == nil {
		out.Err = ErrNoSubmitter
		return out
	}
	res, err := s.submitter.Submit(ctx, cfg.SubmitEndpoint, cfg.AuthToken, payload)
	out.Attempts = res.Attempts
	out.Err = err
	return out
}

func (s *Store) finish(out SubmitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.submitting = false
	s.cancelSubmit = nil

	if out.Err != nil {
		log.Warn().Err(out.Err).
			Str("submission_id", out.SubmissionID).
			Int("changes", len(out.ChangeIDs)).
			Msg("Submission failed, change requests remain pending")
		return
	}

	sent := make(map[string]struct{}, len(out.ChangeIDs))
	for _, id := range out.ChangeIDs {
		sent[id] = struct{}{}
	}
	for i := range s.changes {
		if _, ok := sent[s.changes[i].ID]; ok {
			s.changes[i].Status = model.StatusSubmitted
		}
	}
	s.persistLocked()
	s.scheduleClearLocked(sent)
}

// scheduleClearLocked removes the given submitted requests after the clear delay.
func (s *Store) scheduleClearLocked(ids map[string]struct{}) {
	if s.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(s.clearDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, t)

		kept := s.changes[:0]
		removed := 0
		for _, c := range s.changes {
			if _, ok := ids[c.ID]; ok && c.Status == model.StatusSubmitted {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		s.changes = kept
		if removed > 0 {
			s.persistLocked()
			log.Debug().Int("removed", removed).Msg("Cleared submitted change requests")
		}
	})
	s.timers[t] = struct{}{}
}

func (s *Store) record(payload *model.SubmissionPayload, out SubmitResult) {
	if s.history == nil {
		return
	}
	rec := &model.SubmissionRecord{
		SubmissionID: payload.SubmissionID,
		ChangeCount:  len(payload.Changes),
		Attempts:     out.Attempts,
		Status:       "succeeded",
		CreatedAt:    s.now().UTC(),
	}
	if out.Err != nil {
		rec.Status = "failed"
		if errors.Is(out.Err, context.Canceled) {
			rec.Status = "cancelled"
		}
		rec.Error = out.Err.Error()
	}
	if err := s.history.RecordSubmission(context.Background(), rec); err != nil {
		log.Error().Err(err).Str("submission_id", payload.SubmissionID).Msg("Failed to record submission")
	}
}
