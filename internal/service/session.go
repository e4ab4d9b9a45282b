// Package service provides business logic for the calendar proposal service.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/activity"
	"github.com/capitalize-ai/calendar-agent/internal/model"
	"github.com/capitalize-ai/calendar-agent/internal/proposal"
	"github.com/capitalize-ai/calendar-agent/internal/review"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/metrics"
)

var (
	// ErrSessionNotFound is returned for unknown, evicted or foreign sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy is returned when a proposal request is already in flight on the
	// same input surface.
	ErrBusy = errors.New("a request is already being processed")
)

// Surface is an input channel that is processed one request at a time.
type Surface string

const (
	SurfaceText  Surface = "text"
	SurfaceImage Surface = "image"
)

// session is one onboarded workspace and its review machine.
type session struct {
	mu      sync.Mutex
	info    model.Session
	loc     *time.Location
	factory *proposal.Factory
	machine *review.Machine
	busy    map[Surface]bool
}

func (s *session) snapshot() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.info.LastActive = now
	s.mu.Unlock()
}

// acquire sets the processing flag of a surface and returns its release.
func (s *session) acquire(surface Surface) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[surface] {
		return nil, ErrBusy
	}
	s.busy[surface] = true
	return func() {
		s.mu.Lock()
		delete(s.busy, surface)
		s.mu.Unlock()
	}, nil
}

// SessionOptions configures new sessions.
type SessionOptions struct {
	RestoreOnFailure bool
	IdleTTL          time.Duration
	CommitTimeout    time.Duration
}

// SessionService owns the in-memory session registry.
type SessionService struct {
	log    activity.Log
	sink   review.Sink
	opts   SessionOptions
	now    func() time.Time
	logger *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionService creates a new session service. Chat entries of every
// session go to log and confirmed proposals go to sink.
func NewSessionService(log activity.Log, sink review.Sink, opts SessionOptions, l *logger.Logger) *SessionService {
	if l == nil {
		l = logger.Nop()
	}
	return &SessionService{
		log:      log,
		sink:     sink,
		opts:     opts,
		now:      time.Now,
		logger:   l,
		sessions: make(map[string]*session),
	}
}

// Create onboards a new session.
func (s *SessionService) Create(ctx context.Context, tenantID, userID string, req *model.CreateSessionRequest) (*model.Session, error) {
	calendarID := strings.TrimSpace(req.CalendarID)
	if calendarID == "" {
		return nil, fmt.Errorf("%w: calendar_id is required", ErrInvalidInput)
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, tz)
	}

	now := s.now().UTC()
	info := model.Session{
		ID:         uuid.Must(uuid.NewV7()).String(),
		TenantID:   tenantID,
		UserID:     userID,
		CalendarID: calendarID,
		Timezone:   loc.String(),
		CreatedAt:  now,
		LastActive: now,
	}

	queue := proposal.NewQueue()
	sess := &session{
		info:    info,
		loc:     loc,
		factory: proposal.NewFactory(proposal.WithLocation(loc)),
		machine: review.New(review.Config{
			SessionID:        info.ID,
			CalendarID:       calendarID,
			Location:         loc,
			RestoreOnFailure: s.opts.RestoreOnFailure,
			CommitTimeout:    s.opts.CommitTimeout,
		}, queue, s.log, s.sink, s.logger),
		busy: make(map[Surface]bool),
	}

	s.mu.Lock()
	s.sessions[info.ID] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsActive.Set(float64(active))
	s.logger.Info("session created",
		zap.String("session_id", info.ID),
		zap.String("tenant_id", tenantID),
		zap.String("timezone", info.Timezone),
	)

	return &info, nil
}

// Get returns a session's info.
func (s *SessionService) Get(ctx context.Context, tenantID, sessionID string) (*model.Session, error) {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	info := sess.snapshot()
	return &info, nil
}

// Activity lists the session's chat log.
func (s *SessionService) Activity(ctx context.Context, tenantID, sessionID string, afterSequence uint64, limit int) (*model.ListActivityResponse, error) {
	if _, err := s.lookup(tenantID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	entries, lastSeq, hasMore, err := s.log.List(ctx, sessionID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	if entries == nil {
		entries = []model.ChatEntry{}
	}

	return &model.ListActivityResponse{
		Entries:      entries,
		HasMore:      hasMore,
		LastSequence: lastSeq,
	}, nil
}

// lookup finds a session owned by tenantID and marks it active.
func (s *SessionService) lookup(tenantID, sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok || sess.snapshot().TenantID != tenantID {
		return nil, ErrSessionNotFound
	}
	sess.touch(s.now().UTC())
	return sess, nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the configured TTL and returns
// how many were removed. Their queued proposals are discarded.
func (s *SessionService) Sweep() int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := s.now().UTC().Add(-s.opts.IdleTTL)

	s.mu.Lock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.snapshot().LastActive.Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if dropper, ok := s.log.(activity.Dropper); ok {
		for _, id := range evicted {
			dropper.Drop(id)
		}
	}

	metrics.SessionsActive.Set(float64(active))
	if len(evicted) > 0 {
		s.logger.Info("evicted idle sessions", zap.Int("count", len(evicted)), zap.Int("active", active))
	}
	return len(evicted)
}

// StartSweeper runs Sweep on a cron schedule. Extra jobs run on the same
// scheduler. The caller stops the returned cron.
func (s *SessionService) StartSweeper(schedule string, jobs ...func()) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	for _, job := range jobs {
		if _, err := c.AddFunc(schedule, job); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
		}
	}
	c.Start()
	return c, nil
}
