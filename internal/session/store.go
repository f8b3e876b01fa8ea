// Package session holds the annotation session: the single piece of shared
// mutable state coordinating hover, selection, the editor popover, the list of
// change requests and their submission.
//
// Every mutation goes through a Store method and runs under one mutex, so each
// transition is atomic with respect to the others. The only slow operation, the
// network submission, runs outside the lock: the payload is snapshotted under
// the lock, sent, and the outcome is applied under the lock again.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/bluefermion/annotator/internal/catalog"
	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/submission"
)

var (
	ErrDisabled           = errors.New("annotation is disabled")
	ErrCapacityReached    = errors.New("maximum number of change requests reached")
	ErrDuplicateChange    = errors.New("component already has a pending change request")
	ErrChangeNotFound     = errors.New("change request not found")
	ErrNothingToSubmit    = errors.New("no pending change requests to submit")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNoSubmitter        = errors.New("no submitter configured")
)

// DefaultClearDelay is how long submitted requests stay visible before removal.
const DefaultClearDelay = 3 * time.Second

// DefaultRecordName names the durable session record.
const DefaultRecordName = "annotation-session"

// Persister stores the durable part of the session as one named record.
// LoadState returns nil, nil when no record exists.
type Persister interface {
	LoadState(ctx context.Context, name string) (*model.PersistedState, error)
	SaveState(ctx context.Context, name string, state *model.PersistedState) error
}

// Submitter delivers a payload to the change-processing endpoint.
type Submitter interface {
	Submit(ctx context.Context, endpoint, token string, payload *model.SubmissionPayload) (submission.Result, error)
}

// HistoryRecorder keeps a log of submission attempts.
type HistoryRecorder interface {
	RecordSubmission(ctx context.Context, rec *model.SubmissionRecord) error
}

// AppInfo is copied into every payload's global context.
type AppInfo struct {
	Environment string
	ProjectID   string
	Version     string
}

// Options configures a Store. Zero values are usable defaults.
type Options struct {
	Resolver   *catalog.Resolver
	Persister  Persister
	RecordName string
	Submitter  Submitter
	History    HistoryRecorder
	App        AppInfo

	// Config and Enabled seed a session that has no persisted record.
	Config  model.SessionConfig
	Enabled bool

	ClearDelay time.Duration
	Now        func() time.Time
	NewID      func() string
}

// SubmitResult is the outcome of one submission.
type SubmitResult struct {
	SubmissionID string
	ChangeIDs    []string
	Attempts     int
	Err          error
}

// Store is the annotation session. Create it with New.
type Store struct {
	mu sync.Mutex

	resolver   *catalog.Resolver
	persister  Persister
	recordName string
	submitter  Submitter
	history    HistoryRecorder
	app        AppInfo
	clearDelay time.Duration
	now        func() time.Time
	newID      func() string

	sessionID   string
	enabled     bool
	selected    string
	hovered     string
	changes     []model.ChangeRequest
	submitting  bool
	sidebarOpen bool
	popover     *model.PopoverState
	config      model.SessionConfig

	cancelSubmit context.CancelFunc
	timers       map[*time.Timer]struct{}
	closed       bool
}

// New builds a store and restores the persisted record, if any.
func New(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{
		resolver:   opts.Resolver,
		persister:  opts.Persister,
		recordName: opts.RecordName,
		submitter:  opts.Submitter,
		history:    opts.History,
		app:        opts.App,
		clearDelay: opts.ClearDelay,
		now:        opts.Now,
		newID:      opts.NewID,
		sessionID:  uuid.NewString(),
		enabled:    opts.Enabled,
		config:     opts.Config,
		changes:    []model.ChangeRequest{},
		timers:     make(map[*time.Timer]struct{}),
	}
	if s.recordName == "" {
		s.recordName = DefaultRecordName
	}
	if s.clearDelay <= 0 {
		s.clearDelay = DefaultClearDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return ulid.Make().String() }
	}
	if s.config.MaxChanges == 0 {
		s.config = model.DefaultSessionConfig()
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	if s.persister != nil {
		saved, err := s.persister.LoadState(ctx, s.recordName)
		if err != nil {
			return nil, err
		}
		if saved != nil {
			s.restore(saved)
		}
	}
	return s, nil
}

func (s *Store) restore(saved *model.PersistedState) {
	s.enabled = saved.Enabled
	s.sidebarOpen = saved.SidebarOpen
	if saved.Config.Validate() == nil {
		s.config = saved.Config
	}
	s.config.ShowComponentTree = saved.ShowComponentTree
	if s.config.PersistChanges {
		for _, c := range saved.Changes {
			// requests restored mid grace period were already delivered
			if c.Status == model.StatusPending {
				s.changes = append(s.changes, c)
			}
		}
	}
	log.Info().
		Str("record", s.recordName).
		Bool("enabled", s.enabled).
		Int("changes", len(s.changes)).
		Msg("Restored annotation session")
}

// Close stops pending clear timers and cancels an in-flight submission.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for t := range s.timers {
		t.Stop()
	}
	s.timers = map[*time.Timer]struct{}{}
	if s.cancelSubmit != nil {
		s.cancelSubmit()
	}
}

// SessionID identifies this process-lifetime session.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Resolver returns the catalog resolver the store enriches with.
func (s *Store) Resolver() *catalog.Resolver {
	return s.resolver
}

// Snapshot returns a deep copy of the current state with the auth token
// redacted from the config.
func (s *Store) Snapshot() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.SessionState{
		SessionID:           s.sessionID,
		Enabled:             s.enabled,
		SelectedComponentID: s.selected,
		HoveredComponentID:  s.hovered,
		Changes:             make([]model.ChangeRequest, len(s.changes)),
		IsSubmitting:        s.submitting,
		SidebarOpen:         s.sidebarOpen,
		Config:              s.config.Redacted(),
	}
	for i := range s.changes {
		st.Changes[i] = cloneChange(s.changes[i])
	}
	if s.popover != nil {
		p := *s.popover
		st.Popover = &p
	}
	return st
}

// Change returns a copy of the change request with the given id.
func (s *Store) Change(id string) (model.ChangeRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return cloneChange(s.changes[i]), true
	}
	return model.ChangeRequest{}, false
}

// PendingFor returns the pending change request attached to componentID.
func (s *Store) PendingFor(componentID string) (model.ChangeRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.pendingIndexLocked(componentID); i >= 0 {
		return cloneChange(s.changes[i]), true
	}
	return model.ChangeRequest{}, false
}

func cloneChange(c model.ChangeRequest) model.ChangeRequest {
	c.ComponentContext.SemanticTags = append([]string(nil), c.ComponentContext.SemanticTags...)
	if c.ComponentContext.BoundingBox != nil {
		box := *c.ComponentContext.BoundingBox
		c.ComponentContext.BoundingBox = &box
	}
	if c.PageContext.Query != nil {
		q := make(map[string]string, len(c.PageContext.Query))
		for k, v := range c.PageContext.Query {
			q[k] = v
		}
		c.PageContext.Query = q
	}
	return c
}

func (s *Store) indexLocked(id string) int {
	for i := range s.changes {
		if s.changes[i].ID == id {
			return i
		}
	}
	return -1
}

// pendingIndexLocked finds the most recent pending request for a component.
func (s *Store) pendingIndexLocked(componentID string) int {
	for i := len(s.changes) - 1; i >= 0; i-- {
		c := &s.changes[i]
		if c.ComponentID == componentID && c.Status == model.StatusPending {
			return i
		}
	}
	return -1
}

// persistLocked writes the durable subset. Failures are logged, never returned:
// losing a write must not break the interaction that caused it.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	rec := &model.PersistedState{
		Enabled:           s.enabled,
		Config:            s.config,
		SidebarOpen:       s.sidebarOpen,
		ShowComponentTree: s.config.ShowComponentTree,
	}
	if s.config.PersistChanges {
		rec.Changes = make([]model.ChangeRequest, len(s.changes))
		for i := range s.changes {
			rec.Changes[i] = cloneChange(s.changes[i])
		}
	}
	if err := s.persister.SaveState(context.Background(), s.recordName, rec); err != nil {
		log.Error().Err(err).Str("record", s.recordName).Msg("Failed to persist annotation session")
	}
}
